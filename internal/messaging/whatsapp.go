package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/config"
	apperrors "github.com/spitaweb-web/recepcion-autopilot-wa/internal/errors"
)

const graphBaseURL = "https://graph.facebook.com/v19.0"

// Sender delivers outbound text to one recipient.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
}

// WhatsAppSender posts to the Cloud API messages endpoint. With credentials
// missing it degrades to skip-and-log so local runs never crash on send.
type WhatsAppSender struct {
	client        *http.Client
	accessToken   string
	phoneNumberID string
	baseURL       string
}

func NewWhatsAppSender(accessToken, phoneNumberID string) *WhatsAppSender {
	return &WhatsAppSender{
		client:        &http.Client{Timeout: config.SendTimeout},
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		baseURL:       graphBaseURL,
	}
}

type sendTextRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             sendText `json:"text"`
}

type sendText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

func (s *WhatsAppSender) SendText(ctx context.Context, to, body string) error {
	if s.accessToken == "" || s.phoneNumberID == "" {
		log.Warn().Str("to", to).Msg("whatsapp credentials missing, send skipped")
		return nil
	}

	payload, err := json.Marshal(sendTextRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             sendText{Body: body},
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("to", to).
			Dur("elapsed", elapsed).
			Msg("whatsapp send error")
		return apperrors.External("WhatsApp Cloud API", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Error().
			Str("to", to).
			Int("status", resp.StatusCode).
			Str("detail", string(detail)).
			Dur("elapsed", elapsed).
			Msg("whatsapp send failed")
		return apperrors.External("WhatsApp Cloud API",
			fmt.Errorf("send to %s failed with status %d", to, resp.StatusCode))
	}

	log.Debug().
		Str("to", to).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("whatsapp send ok")

	return nil
}
