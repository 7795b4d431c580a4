package model

import (
	"time"
)

// Event is one append-only audit record. Events are never updated or
// deleted; the Eventos sheet is the chronological trail behind each case.
type Event struct {
	ID        string    `db:"event_id" json:"eventId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	CaseID    string    `db:"case_id" json:"caseId,omitempty"`
	SenderID  string    `db:"sender_id" json:"senderId"`
	Type      EventType `db:"event_type" json:"eventType"`
	Preview   string    `db:"preview" json:"preview,omitempty"`
	Payload   string    `db:"payload_json" json:"payloadJson,omitempty"`
}
