// Package dedup tracks processed webhook message ids for a bounded window
// so retried deliveries are acknowledged without re-running the conversation.
package dedup

import "context"

// Store records message ids. Implementations expire entries after a TTL;
// the window only needs to outlast the provider's retry schedule.
type Store interface {
	// Seen marks the id as processed and reports whether it had already
	// been recorded inside the window.
	Seen(ctx context.Context, messageID string) (bool, error)
}
