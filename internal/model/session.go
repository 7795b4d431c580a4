package model

import (
	"time"
)

// Session is the transient conversation position for one sender. Sessions
// live in memory only; losing one degrades the sender to the menu, never
// corrupts a case.
type Session struct {
	SenderID  string            `json:"senderId"`
	State     SessionState      `json:"state"`
	CaseID    string            `json:"caseId,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// NewSession returns a fresh session at the menu.
func NewSession(senderID string) *Session {
	return &Session{
		SenderID:  senderID,
		State:     StateMenu,
		Context:   make(map[string]string),
		UpdatedAt: time.Now(),
	}
}

// Set stores a context value, allocating the map on first use so callers
// can mutate zero-value sessions safely.
func (s *Session) Set(key, value string) {
	if s.Context == nil {
		s.Context = make(map[string]string)
	}
	s.Context[key] = value
}

func (s *Session) Get(key string) string {
	if s.Context == nil {
		return ""
	}
	return s.Context[key]
}
