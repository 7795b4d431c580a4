package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/model"
)

// MemoryLedger keeps cases and events in process memory. It backs tests and
// local development where no spreadsheet or database is wired.
type MemoryLedger struct {
	mu     sync.Mutex
	cases  map[string]*model.Case
	events []*model.Event
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		cases: make(map[string]*model.Case),
	}
}

func (l *MemoryLedger) GetOrCreateCase(ctx context.Context, senderID string) (*model.Case, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.cases[senderID]; ok {
		return c.Clone(), false, nil
	}
	c := NewCase(senderID)
	l.cases[senderID] = c
	return c.Clone(), true, nil
}

func (l *MemoryLedger) UpdateCase(ctx context.Context, c *model.Case) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := c.Clone()
	cp.UpdatedAt = time.Now().UTC()
	l.cases[c.SenderID] = cp
	return nil
}

func (l *MemoryLedger) AppendEvent(ctx context.Context, e *model.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, e)
	return nil
}

// Events returns a snapshot of the trail, oldest first.
func (l *MemoryLedger) Events() []*model.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*model.Event, len(l.events))
	copy(out, l.events)
	return out
}
