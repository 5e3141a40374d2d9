package sessionvalkey

import (
	"context"
	"errors"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/bot-flow/internal/session"
)

type objectType string

const (
	objectTypeSession objectType = "session"
	objectTypeLock    objectType = "lock"
)

var (
	ErrGetSessions   = errors.New("getting sessions from store")
	ErrGetSession    = errors.New("getting session from store")
	ErrStoreSession  = errors.New("setting session into storage")
	ErrDeleteSession = errors.New("deleting session from store")
)

type Repository struct {
	store *store
	ttl   time.Duration
}

var _ = session.Repository(&Repository{})

// NewRepository stores sessions under "<prefix>:session:<id>". Stored
// sessions expire ttl after their last update; zero keeps them forever.
func NewRepository(valkeyClient valkey.Client, prefix string, ttl time.Duration) *Repository {
	return &Repository{
		store: newStore(valkeyClient, prefix),
		ttl:   ttl,
	}
}

func (r *Repository) LoadSession(ctx context.Context, sessionID string) (session.Session, error) {
	var s session.Session
	if err := r.store.Get(ctx, objectTypeSession, sessionID, &s); err != nil {
		return session.Session{}, errors.Join(ErrGetSession, err)
	}

	return s, nil
}

func (r *Repository) StoreSession(ctx context.Context, s session.Session) error {
	if err := r.store.Set(ctx, objectTypeSession, s.ID, s, r.ttl); err != nil {
		return errors.Join(ErrStoreSession, err)
	}

	return nil
}

func (r *Repository) ListSessions(ctx context.Context) ([]session.Session, error) {
	var sessions []session.Session
	if err := getStoreObjects(ctx, r.store, objectTypeSession, &sessions); err != nil {
		return nil, errors.Join(ErrGetSessions, err)
	}

	return sessions, nil
}

func (r *Repository) DeleteSession(ctx context.Context, s session.Session) error {
	if err := r.store.Destroy(ctx, objectTypeSession, s.ID); err != nil {
		return errors.Join(ErrDeleteSession, err)
	}

	return nil
}
