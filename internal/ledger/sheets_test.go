package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/model"
)

func TestParseRowNumber(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected int64
		ok       bool
	}{
		{"single row append", "Casos!A7:N7", 7, true},
		{"large row number", "Casos!A12345:N12345", 12345, true},
		{"events sheet", "Eventos!A2:G2", 2, true},
		{"no row reference", "Casos", 0, false},
		{"empty", "", 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			row, ok := parseRowNumber(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, row)
		})
	}
}

func TestCaseRowLayout(t *testing.T) {
	// Column order A..N is the contract clinic staff read directly; a
	// reorder silently corrupts the sheet.
	created := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	updated := created.Add(5 * time.Minute)
	c := &model.Case{
		ID:            "case-1",
		SenderID:      "5491100000001",
		Flow:          model.FlowTurno,
		PatientType:   model.PatientObraSocial,
		OSName:        "OSDE",
		OSToken:       "30111222",
		ServiceLabel:  "Turno médico",
		DepositAmount: 5000,
		PaymentLink:   "https://mpago.la/abc",
		PaymentOpID:   "123456789",
		Status:        model.StatusAwaitingPayment,
		LastMessage:   "pagué",
		CreatedAt:     created,
		UpdatedAt:     updated,
	}

	row := caseToRow(c)
	require.Len(t, row, 14)
	assert.Equal(t, "2025-03-10T14:00:00Z", row[0])
	assert.Equal(t, "case-1", row[1])
	assert.Equal(t, "5491100000001", row[2])
	assert.Equal(t, "turno", row[3])
	assert.Equal(t, "obra_social", row[4])
	assert.Equal(t, "OSDE", row[5])
	assert.Equal(t, "30111222", row[6])
	assert.Equal(t, "Turno médico", row[7])
	assert.Equal(t, "5000.00", row[8])
	assert.Equal(t, "https://mpago.la/abc", row[9])
	assert.Equal(t, "123456789", row[10])
	assert.Equal(t, "awaiting_payment", row[11])
	assert.Equal(t, "pagué", row[12])
	assert.Equal(t, "2025-03-10T14:05:00Z", row[13])

	back, err := rowToCase(row)
	require.NoError(t, err)
	assert.Equal(t, c.ID, back.ID)
	assert.Equal(t, c.Status, back.Status)
	assert.Equal(t, c.DepositAmount, back.DepositAmount)
	assert.True(t, back.CreatedAt.Equal(created))
}

func TestRowToCaseTolerance(t *testing.T) {
	t.Run("short row still parses", func(t *testing.T) {
		row := []interface{}{"2025-03-10T14:00:00Z", "case-1", "5491100000001", "turno"}
		c, err := rowToCase(row)
		require.NoError(t, err)
		assert.Equal(t, "case-1", c.ID)
		assert.Equal(t, model.FlowTurno, c.Flow)
		assert.Zero(t, c.DepositAmount)
	})

	t.Run("hand-edited timestamp falls back to zero", func(t *testing.T) {
		row := []interface{}{"ayer", "case-1", "5491100000001"}
		c, err := rowToCase(row)
		require.NoError(t, err)
		assert.True(t, c.CreatedAt.IsZero())
	})

	t.Run("row without case id is rejected", func(t *testing.T) {
		row := []interface{}{"2025-03-10T14:00:00Z", "", "5491100000001"}
		_, err := rowToCase(row)
		assert.Error(t, err)
	})

	t.Run("event row order matches Eventos columns", func(t *testing.T) {
		e := NewEvent("case-1", "5491100000001", model.EventPaymentConfirmed, "pago ok", map[string]string{"op": "9"})
		row := eventToRow(e)
		require.Len(t, row, 7)
		assert.Equal(t, e.ID, row[0])
		assert.Equal(t, "case-1", row[2])
		assert.Equal(t, "5491100000001", row[3])
		assert.Equal(t, "payment_confirmed", row[4])
		assert.Equal(t, "pago ok", row[5])
		assert.JSONEq(t, `{"op":"9"}`, row[6].(string))
	})
}
