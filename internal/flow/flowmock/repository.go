package flowmock

import (
	"context"
	"sync"

	"github.com/openkcm/bot-flow/internal/flow"
	"github.com/openkcm/bot-flow/internal/serviceerr"
)

type RepositoryOption func(*Repository)

type Repository struct {
	mu    sync.RWMutex
	flows map[string]flow.Graph
	calls int

	getErr  error
	saveErr error
}

func WithFlow(g flow.Graph) RepositoryOption {
	return func(r *Repository) { r.flows[g.BotID] = g }
}

func WithGetError(err error) RepositoryOption {
	return func(r *Repository) { r.getErr = err }
}

func WithSaveError(err error) RepositoryOption {
	return func(r *Repository) { r.saveErr = err }
}

var _ = flow.Store(&Repository{})

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		flows: make(map[string]flow.Graph),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// TAdd is a helper method for tests to add or replace a flow.
func (r *Repository) TAdd(g flow.Graph) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[g.BotID] = g
}

// TCalls is a helper method for tests to count GetFlow calls.
func (r *Repository) TCalls() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls
}

func (r *Repository) GetFlow(_ context.Context, botID string) (flow.Graph, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++

	if r.getErr != nil {
		return flow.Graph{}, r.getErr
	}
	if g, ok := r.flows[botID]; ok {
		return g, nil
	}
	return flow.Graph{}, serviceerr.ErrNotFound
}

func (r *Repository) SaveFlow(_ context.Context, g flow.Graph) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveErr != nil {
		return r.saveErr
	}
	r.flows[g.BotID] = g
	return nil
}

func (r *Repository) DeleteFlow(_ context.Context, botID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveErr != nil {
		return r.saveErr
	}
	if _, ok := r.flows[botID]; !ok {
		return serviceerr.ErrNotFound
	}
	delete(r.flows, botID)
	return nil
}
