package session

import (
	"context"
	"sync"
	"time"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/model"
)

// Store holds conversation sessions in memory. Sessions are ephemeral: an
// absent or expired entry is indistinguishable from a sender at the menu,
// so losing the map on restart only resets conversations, never cases.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	ttl      time.Duration
	onEvict  func(sess *model.Session)
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*model.Session),
		ttl:      ttl,
	}
}

// SetOnEvict registers a hook fired once per session evicted on TTL
// expiry, after the store lock is released. It receives the evicted
// session so callers can cancel reminder timers and record the expiry.
// Explicit Delete does not fire it.
func (s *Store) SetOnEvict(fn func(sess *model.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = fn
}

// Get returns the sender's session, or a fresh menu session when none
// exists or the stored one has outlived the TTL. Expired entries are
// evicted on sight.
func (s *Store) Get(senderID string) *model.Session {
	s.mu.Lock()
	sess, ok := s.sessions[senderID]
	if ok && time.Since(sess.UpdatedAt) <= s.ttl {
		cp := *sess
		s.mu.Unlock()
		return &cp
	}
	var evict func(*model.Session)
	if ok {
		delete(s.sessions, senderID)
		evict = s.onEvict
	}
	s.mu.Unlock()

	if evict != nil {
		evict(sess)
	}
	return model.NewSession(senderID)
}

// Put stores the session, refreshing its TTL clock.
func (s *Store) Put(sess *model.Session) {
	if sess == nil {
		return
	}
	sess.UpdatedAt = time.Now()
	cp := *sess

	s.mu.Lock()
	s.sessions[sess.SenderID] = &cp
	s.mu.Unlock()
}

// Delete removes the sender's session without firing the evict hook;
// explicit resets manage their own timer cleanup.
func (s *Store) Delete(senderID string) {
	s.mu.Lock()
	delete(s.sessions, senderID)
	s.mu.Unlock()
}

// DeleteExpired evicts every session past the TTL and reports how many
// were removed. The evict hook fires for each after the lock is released.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	var evicted []*model.Session
	for id, sess := range s.sessions {
		if time.Since(sess.UpdatedAt) > s.ttl {
			delete(s.sessions, id)
			evicted = append(evicted, sess)
		}
	}
	evict := s.onEvict
	s.mu.Unlock()

	if evict != nil {
		for _, sess := range evicted {
			evict(sess)
		}
	}
	return int64(len(evicted)), nil
}

// Len reports the number of live sessions, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
