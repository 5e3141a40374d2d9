package session

import "context"

// Repository persists sessions. LoadSession returns serviceerr.ErrNotFound for
// unknown ids.
type Repository interface {
	LoadSession(ctx context.Context, sessionID string) (Session, error)
	StoreSession(ctx context.Context, s Session) error
	ListSessions(ctx context.Context) ([]Session, error)
	DeleteSession(ctx context.Context, s Session) error
}
