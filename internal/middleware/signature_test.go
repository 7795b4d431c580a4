package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/util"
)

func TestSignatureMiddleware(t *testing.T) {
	secret := "test-app-secret"
	body := `{"object":"whatsapp_business_account","entry":[]}`
	validSignature := "sha256=" + util.HmacSHA256(secret, body)

	t.Run("passes through when secret is empty", func(t *testing.T) {
		mw := NewSignatureMiddleware("")
		handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("POST", "/webhook/whatsapp", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects request without signature header", func(t *testing.T) {
		mw := NewSignatureMiddleware(secret)
		handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("POST", "/webhook/whatsapp", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects request with wrong signature", func(t *testing.T) {
		mw := NewSignatureMiddleware(secret)
		handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("POST", "/webhook/whatsapp", bytes.NewBufferString(body))
		req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects signature computed with another secret", func(t *testing.T) {
		mw := NewSignatureMiddleware(secret)
		handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("POST", "/webhook/whatsapp", bytes.NewBufferString(body))
		req.Header.Set("X-Hub-Signature-256", "sha256="+util.HmacSHA256("other-secret", body))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("allows request with valid signature", func(t *testing.T) {
		mw := NewSignatureMiddleware(secret)
		handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("POST", "/webhook/whatsapp", bytes.NewBufferString(body))
		req.Header.Set("X-Hub-Signature-256", validSignature)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("restores the body for the handler", func(t *testing.T) {
		mw := NewSignatureMiddleware(secret)
		handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			assert.Equal(t, body, string(got))
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("POST", "/webhook/whatsapp", bytes.NewBufferString(body))
		req.Header.Set("X-Hub-Signature-256", validSignature)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
