// Package flowcache keeps recently read flow graphs in memory in front of
// another flow repository.
package flowcache

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/bot-flow/internal/flow"
)

type Repository struct {
	next  flow.Store
	cache *cache.Cache
}

var _ = flow.Store(&Repository{})

// NewRepository caches graphs returned by next for ttl. Lookup errors,
// including unknown bots, are not cached.
func NewRepository(next flow.Store, ttl time.Duration) *Repository {
	return &Repository{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (r *Repository) GetFlow(ctx context.Context, botID string) (flow.Graph, error) {
	if v, ok := r.cache.Get(botID); ok {
		if g, ok := v.(flow.Graph); ok {
			return g, nil
		}
	}

	g, err := r.next.GetFlow(ctx, botID)
	if err != nil {
		return flow.Graph{}, err
	}

	r.cache.SetDefault(botID, g)
	slogctx.Debug(ctx, "Cached flow graph", "bot_id", botID, "nodes", len(g.Nodes))

	return g, nil
}

// SaveFlow writes through to the underlying store and forgets the cached
// graph of the bot.
func (r *Repository) SaveFlow(ctx context.Context, g flow.Graph) error {
	if err := r.next.SaveFlow(ctx, g); err != nil {
		return err
	}
	r.Invalidate(g.BotID)
	return nil
}

func (r *Repository) DeleteFlow(ctx context.Context, botID string) error {
	if err := r.next.DeleteFlow(ctx, botID); err != nil {
		return err
	}
	r.Invalidate(botID)
	return nil
}

// Invalidate drops the cached graph of the bot. Flows edited behind the
// store's back stay stale until their ttl expires unless invalidated.
func (r *Repository) Invalidate(botID string) {
	r.cache.Delete(botID)
}
