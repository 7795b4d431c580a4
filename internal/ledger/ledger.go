// Package ledger mirrors conversation business facts into durable storage:
// one row per case, plus an append-only event trail. The spreadsheet backend
// is the production default; postgres and memory back the same interface.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/config"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/model"
)

// Ledger is the case mirror. GetOrCreateCase must be idempotent per sender:
// repeat contact always lands on the same case id, and cases are never
// deleted. The bool reports whether this call created the case.
type Ledger interface {
	GetOrCreateCase(ctx context.Context, senderID string) (*model.Case, bool, error)
	UpdateCase(ctx context.Context, c *model.Case) error
	AppendEvent(ctx context.Context, e *model.Event) error
}

// NewCase builds the initial lead-state case for a first-contact sender.
func NewCase(senderID string) *model.Case {
	now := time.Now().UTC()
	return &model.Case{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		Status:    model.StatusLead,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewEvent builds an audit event with a truncated preview and an optional
// JSON payload. Marshal failures degrade to an empty payload; the event
// still records.
func NewEvent(caseID, senderID string, typ model.EventType, preview string, payload any) *model.Event {
	e := &model.Event{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		CaseID:    caseID,
		SenderID:  senderID,
		Type:      typ,
		Preview:   TruncateRunes(preview, config.EventPreviewMaxLen),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			e.Payload = string(raw)
		}
	}
	return e
}

// TruncateRunes cuts s to at most n runes. Previews carry Spanish text, so
// the cut must not split multi-byte characters.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
