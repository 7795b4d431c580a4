package ledger

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/database"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/model"
)

// PostgresLedger keeps the same two logical tables as the spreadsheet:
// cases (one row per sender) and case_events (append-only). Deployments
// that outgrow the sheet switch backends without touching the engine.
type PostgresLedger struct {
	db *database.DB
}

func NewPostgresLedger(db *database.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureSchema creates the ledger tables on first run. Both tables land
// in one transaction so a half-created schema never survives a failure.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	return l.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS cases (
				case_id        TEXT PRIMARY KEY,
				sender_id      TEXT NOT NULL UNIQUE,
				flow_type      TEXT NOT NULL DEFAULT '',
				patient_type   TEXT NOT NULL DEFAULT '',
				os_name        TEXT NOT NULL DEFAULT '',
				os_token       TEXT NOT NULL DEFAULT '',
				service_label  TEXT NOT NULL DEFAULT '',
				deposit_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
				payment_link   TEXT NOT NULL DEFAULT '',
				payment_op_id  TEXT NOT NULL DEFAULT '',
				status         TEXT NOT NULL,
				last_message   TEXT NOT NULL DEFAULT '',
				created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS case_events (
				event_id     TEXT PRIMARY KEY,
				created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				case_id      TEXT NOT NULL DEFAULT '',
				sender_id    TEXT NOT NULL,
				event_type   TEXT NOT NULL,
				preview      TEXT NOT NULL DEFAULT '',
				payload_json TEXT NOT NULL DEFAULT ''
			)
		`); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			CREATE INDEX IF NOT EXISTS idx_case_events_case_id ON case_events (case_id)
		`)
		return err
	})
}

func (l *PostgresLedger) GetOrCreateCase(ctx context.Context, senderID string) (*model.Case, bool, error) {
	fresh := NewCase(senderID)

	var c model.Case
	err := l.db.GetContext(ctx, &c, `
		INSERT INTO cases (case_id, sender_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (sender_id) DO UPDATE SET sender_id = EXCLUDED.sender_id
		RETURNING *
	`, fresh.ID, fresh.SenderID, fresh.Status, fresh.CreatedAt)
	if err != nil {
		return nil, false, err
	}
	return &c, c.ID == fresh.ID, nil
}

func (l *PostgresLedger) UpdateCase(ctx context.Context, c *model.Case) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE cases SET
			flow_type = $2,
			patient_type = $3,
			os_name = $4,
			os_token = $5,
			service_label = $6,
			deposit_amount = $7,
			payment_link = $8,
			payment_op_id = $9,
			status = $10,
			last_message = $11,
			updated_at = NOW()
		WHERE case_id = $1
	`, c.ID, c.Flow, c.PatientType, c.OSName, c.OSToken, c.ServiceLabel,
		c.DepositAmount, c.PaymentLink, c.PaymentOpID, c.Status, c.LastMessage)
	return err
}

func (l *PostgresLedger) AppendEvent(ctx context.Context, e *model.Event) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO case_events (event_id, created_at, case_id, sender_id, event_type, preview, payload_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.CreatedAt, e.CaseID, e.SenderID, e.Type, e.Preview, e.Payload)
	return err
}
