// Package jobs holds the background workers: the periodic sweep of
// expired in-memory state and the per-sender payment reminder timers.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// SweepTarget is any store that can evict its expired entries.
type SweepTarget interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// SweepJob periodically evicts expired sessions and, when the in-memory
// dedup store is in use, expired dedup entries. Redis-backed dedup
// expires by key TTL and needs no sweeping.
type SweepJob struct {
	sessions SweepTarget
	dedup    SweepTarget
	interval time.Duration
	done     chan struct{}
}

func NewSweepJob(sessions, dedup SweepTarget, interval time.Duration) *SweepJob {
	return &SweepJob{
		sessions: sessions,
		dedup:    dedup,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("sweep job started")
}

func (j *SweepJob) Stop() {
	close(j.done)
	log.Info().Msg("sweep job stopped")
}

func (j *SweepJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if j.sessions != nil {
		j.runSweep(ctx, "sessions", j.sessions.DeleteExpired)
	}
	if j.dedup != nil {
		j.runSweep(ctx, "dedup entries", j.dedup.DeleteExpired)
	}
}

func (j *SweepJob) runSweep(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to sweep %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("swept %s", name)
	}
}
