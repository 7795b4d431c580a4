package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/dedup"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/messaging"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/util"
)

// Meta retries deliveries that are not acked fast, so the POST handler
// writes its 200 before any conversation work runs.
const processTimeout = 60 * time.Second

// InboundProcessor advances one conversation by one message.
type InboundProcessor interface {
	HandleInbound(ctx context.Context, in messaging.Inbound)
}

type WebhookHandler struct {
	verifyToken string
	dedup       dedup.Store
	processor   InboundProcessor
	inflight    sync.WaitGroup
}

func NewWebhookHandler(verifyToken string, dedupStore dedup.Store, processor InboundProcessor) *WebhookHandler {
	return &WebhookHandler{
		verifyToken: verifyToken,
		dedup:       dedupStore,
		processor:   processor,
	}
}

// Verify answers Meta's subscription handshake: echo hub.challenge only
// when the mode is "subscribe" and the verify token matches.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" && util.ConstantTimeEqual(token, h.verifyToken) {
		log.Info().Msg("webhook verification handshake accepted")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	log.Warn().Str("mode", mode).Msg("webhook verification rejected")
	writeJSON(w, http.StatusForbidden, map[string]string{"error": "Verification failed"})
}

// Receive handles a Cloud API delivery. Status-only deliveries are acked
// and dropped; messages are acked first and processed detached from the
// request so the provider's response SLA never depends on downstream I/O.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var env messaging.WebhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		log.Warn().Err(err).Msg("invalid webhook payload")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	inbound := env.InboundMessages()
	writeJSON(w, http.StatusOK, map[string]string{"status": "EVENT_RECEIVED"})

	if len(inbound) == 0 {
		log.Debug().Msg("status-only webhook delivery ignored")
		return
	}

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		h.process(ctx, inbound)
	}()
}

func (h *WebhookHandler) process(ctx context.Context, inbound []messaging.Inbound) {
	for _, in := range inbound {
		seen, err := h.dedup.Seen(ctx, in.MessageID)
		if err != nil {
			// A broken dedup store must not drop messages; worst case is
			// answering a retried delivery twice.
			log.Error().Err(err).Str("message_id", in.MessageID).Msg("dedup check failed")
		} else if seen {
			log.Info().Str("message_id", in.MessageID).Msg("duplicate delivery ignored")
			continue
		}
		h.processor.HandleInbound(ctx, in)
	}
}

// Wait blocks until detached processing for already-acked deliveries has
// finished. Called on shutdown before the audit recorder drains.
func (h *WebhookHandler) Wait() {
	h.inflight.Wait()
}
