package ledger

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	apperrors "github.com/spitaweb-web/recepcion-autopilot-wa/internal/errors"
	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/model"
)

// Sheet layout is an external contract shared with the clinic staff who
// read the spreadsheet directly. Casos carries one row per case, columns
// A..N; Eventos is append-only, columns A..G.
const (
	casesSheet  = "Casos"
	eventsSheet = "Eventos"

	casesAppendRange  = casesSheet + "!A:N"
	eventsAppendRange = eventsSheet + "!A:G"
	senderColumnRange = casesSheet + "!C1:C"
)

var rowRefRe = regexp.MustCompile(`![A-Z]+(\d+)`)

// SheetsLedger mirrors cases into a Google spreadsheet. Row numbers are
// cached per sender; on a cache miss the sender column is scanned, and a
// still-missing sender gets a fresh appended row.
type SheetsLedger struct {
	svc           *sheets.Service
	spreadsheetID string

	mu       sync.Mutex
	rowCache map[string]int64
}

func NewSheetsLedger(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsLedger, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &SheetsLedger{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[string]int64),
	}, nil
}

func (l *SheetsLedger) GetOrCreateCase(ctx context.Context, senderID string) (*model.Case, bool, error) {
	row, err := l.findRow(ctx, senderID)
	if err != nil {
		return nil, false, apperrors.Ledger(err)
	}
	if row > 0 {
		c, err := l.readCase(ctx, row)
		if err != nil {
			return nil, false, apperrors.Ledger(err)
		}
		return c, false, nil
	}

	c := NewCase(senderID)
	if err := l.appendCase(ctx, c); err != nil {
		return nil, false, apperrors.Ledger(err)
	}
	return c, true, nil
}

func (l *SheetsLedger) UpdateCase(ctx context.Context, c *model.Case) error {
	c.UpdatedAt = time.Now().UTC()

	row, err := l.findRow(ctx, c.SenderID)
	if err != nil {
		return apperrors.Ledger(err)
	}
	if row == 0 {
		// Row vanished (sheet edited by hand); re-append rather than lose
		// the update.
		if err := l.appendCase(ctx, c); err != nil {
			return apperrors.Ledger(err)
		}
		return nil
	}

	rng := fmt.Sprintf("%s!A%d:N%d", casesSheet, row, row)
	vr := &sheets.ValueRange{Values: [][]interface{}{caseToRow(c)}}
	_, err = l.svc.Spreadsheets.Values.Update(l.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return apperrors.Ledger(fmt.Errorf("update case row %d: %w", row, err))
	}
	return nil
}

func (l *SheetsLedger) AppendEvent(ctx context.Context, e *model.Event) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{eventToRow(e)}}
	_, err := l.svc.Spreadsheets.Values.Append(l.spreadsheetID, eventsAppendRange, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return apperrors.Ledger(fmt.Errorf("append event: %w", err))
	}
	return nil
}

// findRow resolves the sender's row number, 0 when absent. Scan results
// warm the cache for every sender seen on the way.
func (l *SheetsLedger) findRow(ctx context.Context, senderID string) (int64, error) {
	l.mu.Lock()
	if row, ok := l.rowCache[senderID]; ok {
		l.mu.Unlock()
		return row, nil
	}
	l.mu.Unlock()

	resp, err := l.svc.Spreadsheets.Values.Get(l.spreadsheetID, senderColumnRange).
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("scan sender column: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var found int64
	for i, cells := range resp.Values {
		if len(cells) == 0 {
			continue
		}
		id := fmt.Sprint(cells[0])
		if id == "" || id == "sender_id" {
			continue
		}
		row := int64(i + 1)
		l.rowCache[id] = row
		if id == senderID {
			found = row
		}
	}
	return found, nil
}

func (l *SheetsLedger) readCase(ctx context.Context, row int64) (*model.Case, error) {
	rng := fmt.Sprintf("%s!A%d:N%d", casesSheet, row, row)
	resp, err := l.svc.Spreadsheets.Values.Get(l.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read case row %d: %w", row, err)
	}
	if len(resp.Values) == 0 {
		return nil, fmt.Errorf("case row %d is empty", row)
	}
	c, err := rowToCase(resp.Values[0])
	if err != nil {
		return nil, fmt.Errorf("case row %d: %w", row, err)
	}
	return c, nil
}

func (l *SheetsLedger) appendCase(ctx context.Context, c *model.Case) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{caseToRow(c)}}
	resp, err := l.svc.Spreadsheets.Values.Append(l.spreadsheetID, casesAppendRange, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append case: %w", err)
	}

	if resp.Updates != nil {
		if row, ok := parseRowNumber(resp.Updates.UpdatedRange); ok {
			l.mu.Lock()
			l.rowCache[c.SenderID] = row
			l.mu.Unlock()
		}
	}
	return nil
}

// parseRowNumber extracts the 1-based row from an A1 range reference such
// as "Casos!A7:N7".
func parseRowNumber(updatedRange string) (int64, bool) {
	m := rowRefRe.FindStringSubmatch(updatedRange)
	if m == nil {
		return 0, false
	}
	row, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || row <= 0 {
		return 0, false
	}
	return row, true
}

func caseToRow(c *model.Case) []interface{} {
	return []interface{}{
		c.CreatedAt.UTC().Format(time.RFC3339),
		c.ID,
		c.SenderID,
		string(c.Flow),
		string(c.PatientType),
		c.OSName,
		c.OSToken,
		c.ServiceLabel,
		strconv.FormatFloat(c.DepositAmount, 'f', 2, 64),
		c.PaymentLink,
		c.PaymentOpID,
		string(c.Status),
		c.LastMessage,
		c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func eventToRow(e *model.Event) []interface{} {
	return []interface{}{
		e.ID,
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.CaseID,
		e.SenderID,
		string(e.Type),
		e.Preview,
		e.Payload,
	}
}

// rowToCase tolerates short rows and hand-edited cells: timestamps and the
// amount fall back to zero values, but a row without a case id is broken.
func rowToCase(row []interface{}) (*model.Case, error) {
	c := &model.Case{
		ID:           cell(row, 1),
		SenderID:     cell(row, 2),
		Flow:         model.FlowType(cell(row, 3)),
		PatientType:  model.PatientType(cell(row, 4)),
		OSName:       cell(row, 5),
		OSToken:      cell(row, 6),
		ServiceLabel: cell(row, 7),
		PaymentLink:  cell(row, 9),
		PaymentOpID:  cell(row, 10),
		Status:       model.CaseStatus(cell(row, 11)),
		LastMessage:  cell(row, 12),
	}
	if c.ID == "" || c.SenderID == "" {
		return nil, fmt.Errorf("missing case id or sender id")
	}

	if ts, err := time.Parse(time.RFC3339, cell(row, 0)); err == nil {
		c.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, cell(row, 13)); err == nil {
		c.UpdatedAt = ts
	}
	if amount, err := strconv.ParseFloat(cell(row, 8), 64); err == nil {
		c.DepositAmount = amount
	}
	return c, nil
}

func cell(row []interface{}, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return fmt.Sprint(row[i])
}
