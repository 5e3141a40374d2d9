package sessionmock

import (
	"context"
	"maps"
	"sync"

	"github.com/openkcm/bot-flow/internal/serviceerr"
	"github.com/openkcm/bot-flow/internal/session"
)

type RepositoryOption func(*Repository)

type Repository struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
	stores   int

	loadSessionErr, storeSessionErr, listSessionsErr, deleteSessionErr error
}

func WithSession(sess session.Session) RepositoryOption {
	return func(r *Repository) { r.sessions[sess.ID] = clone(sess) }
}
func WithLoadSessionError(err error) RepositoryOption {
	return func(r *Repository) { r.loadSessionErr = err }
}
func WithStoreSessionError(err error) RepositoryOption {
	return func(r *Repository) { r.storeSessionErr = err }
}
func WithListSessionsError(err error) RepositoryOption {
	return func(r *Repository) { r.listSessionsErr = err }
}
func WithDeleteSessionError(err error) RepositoryOption {
	return func(r *Repository) { r.deleteSessionErr = err }
}

var _ = session.Repository(&Repository{})

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		sessions: make(map[string]session.Session),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// TStores is a helper method for tests to count successful StoreSession calls.
func (r *Repository) TStores() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stores
}

func (r *Repository) LoadSession(_ context.Context, sessionID string) (session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.loadSessionErr != nil {
		return session.Session{}, r.loadSessionErr
	}
	if s, ok := r.sessions[sessionID]; ok {
		return clone(s), nil
	}
	return session.Session{}, serviceerr.ErrNotFound
}

func (r *Repository) StoreSession(_ context.Context, s session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.storeSessionErr != nil {
		return r.storeSessionErr
	}
	r.sessions[s.ID] = clone(s)
	r.stores++
	return nil
}

func (r *Repository) ListSessions(_ context.Context) ([]session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.listSessionsErr != nil {
		return nil, r.listSessionsErr
	}
	sessions := make([]session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, clone(s))
	}
	return sessions, nil
}

func (r *Repository) DeleteSession(_ context.Context, s session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleteSessionErr != nil {
		return r.deleteSessionErr
	}
	if _, ok := r.sessions[s.ID]; !ok {
		return serviceerr.ErrNotFound
	}
	delete(r.sessions, s.ID)
	return nil
}

func clone(s session.Session) session.Session {
	s.Variables = maps.Clone(s.Variables)
	return s
}
