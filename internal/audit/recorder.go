// Package audit appends conversation events to the ledger off the hot
// path. Recording is best-effort: the reply to the user never waits on an
// event row landing in the spreadsheet.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/model"
)

const appendTimeout = 10 * time.Second

// EventAppender is the slice of the ledger the recorder needs.
type EventAppender interface {
	AppendEvent(ctx context.Context, e *model.Event) error
}

type Recorder struct {
	appender EventAppender
	queue    chan *model.Event
	quit     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	closed   atomic.Bool
}

func NewRecorder(appender EventAppender, queueSize int) *Recorder {
	r := &Recorder{
		appender: appender,
		queue:    make(chan *model.Event, queueSize),
		quit:     make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case e := <-r.queue:
			r.append(e)
		case <-r.quit:
			for {
				select {
				case e := <-r.queue:
					r.append(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) append(e *model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := r.appender.AppendEvent(ctx, e); err != nil {
		log.Error().
			Err(err).
			Str("event_type", string(e.Type)).
			Str("case_id", e.CaseID).
			Msg("audit event append failed")
	}
}

// Record enqueues the event. A full queue drops it with a warning instead
// of blocking the conversation; events recorded after Close are discarded
// (reminder timers and sweeps can still fire during shutdown).
func (r *Recorder) Record(e *model.Event) {
	if e == nil || r.closed.Load() {
		return
	}
	select {
	case r.queue <- e:
	default:
		log.Warn().
			Str("event_type", string(e.Type)).
			Str("sender_id", e.SenderID).
			Msg("audit queue full, event dropped")
	}
}

// Close drains pending events and stops the worker. Safe to call twice.
// The queue channel is never closed so late Record calls cannot panic.
func (r *Recorder) Close() {
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.quit)
	})
	r.wg.Wait()
}
