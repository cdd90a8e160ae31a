package sessions

import "context"

// Repo defines the interface for session storage operations.
// Get returns errors.ErrSessionNotFound when no session exists for the id.
type Repo interface {
	// Upsert creates or updates a session
	Upsert(ctx context.Context, session *Session) error

	// Get retrieves a session by ID
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Delete removes a session by ID
	Delete(ctx context.Context, sessionID string) error
}
