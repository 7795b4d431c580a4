package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/spitaweb-web/recepcion-autopilot-wa/internal/errors"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/httputil"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/util"
)

const (
	signatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
)

// SignatureMiddleware verifies Meta's webhook signature: the hex HMAC
// SHA-256 of the raw request body keyed with the app secret, delivered
// as "sha256=<hex>". The body is restored for downstream decoding.
type SignatureMiddleware struct {
	appSecret string
}

func NewSignatureMiddleware(appSecret string) *SignatureMiddleware {
	return &SignatureMiddleware{appSecret: appSecret}
}

func (m *SignatureMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.appSecret == "" {
			log.Warn().Msg("webhook signature verification bypassed: WHATSAPP_APP_SECRET is not configured")
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get(signatureHeader)
		if header == "" {
			log.Warn().Msg("webhook signature: missing header")
			httputil.WriteError(w, apperrors.InvalidSignature())
			return
		}
		signature := strings.TrimPrefix(header, signaturePrefix)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Error().Err(err).Msg("webhook signature: failed to read body")
			httputil.WriteError(w, apperrors.Internal("failed to read request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		computed := util.HmacSHA256(m.appSecret, string(body))
		if !util.ConstantTimeEqual(computed, signature) {
			log.Warn().Msg("webhook signature: mismatch")
			httputil.WriteError(w, apperrors.InvalidSignature())
			return
		}

		next.ServeHTTP(w, r)
	})
}
