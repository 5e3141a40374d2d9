package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/bot-flow/internal/serviceerr"
)

// Housekeeper drops sessions that have not moved for longer than the idle
// timeout.
type Housekeeper struct {
	sessions         Repository
	locker           Locker
	idleTimeout      time.Duration
	concurrencyLimit int
	now              func() time.Time
}

type HousekeeperOption func(*Housekeeper)

func WithConcurrencyLimit(limit int) HousekeeperOption {
	return func(h *Housekeeper) { h.concurrencyLimit = limit }
}

func WithClock(now func() time.Time) HousekeeperOption {
	return func(h *Housekeeper) { h.now = now }
}

func NewHousekeeper(sessions Repository, locker Locker, idleTimeout time.Duration, opts ...HousekeeperOption) *Housekeeper {
	h := &Housekeeper{
		sessions:         sessions,
		locker:           locker,
		idleTimeout:      idleTimeout,
		concurrencyLimit: 1,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// DropIdleSessions marks idle active and waiting sessions as dropped and
// returns how many were dropped. Sessions locked by a running walk are
// skipped.
func (h *Housekeeper) DropIdleSessions(ctx context.Context) (int, error) {
	sessions, err := h.sessions.ListSessions(ctx)
	if err != nil {
		return 0, err
	}

	var dropped atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(h.concurrencyLimit, 1))

	for _, s := range sessions {
		if s.Status.IsTerminal() || h.now().Sub(s.UpdatedAt) < h.idleTimeout {
			continue
		}

		g.Go(func() error {
			ok, err := h.drop(ctx, s.ID)
			if err != nil {
				slogctx.Warn(ctx, "Could not drop idle session", "session_id", s.ID, "error", err)
				return nil
			}
			if ok {
				dropped.Add(1)
				slogctx.Info(ctx, "Dropped idle session", "session_id", s.ID, "bot_id", s.BotID)
			}
			return nil
		})
	}

	err = g.Wait()
	return int(dropped.Load()), err
}

func (h *Housekeeper) drop(ctx context.Context, sessionID string) (bool, error) {
	unlock, err := h.locker.Lock(ctx, sessionID)
	if errors.Is(err, serviceerr.ErrLocked) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer func() {
		if err := unlock(ctx); err != nil {
			slogctx.Warn(ctx, "Could not release session lock", "session_id", sessionID, "error", err)
		}
	}()

	// reload under the lock, a walk may have moved the session meanwhile
	s, err := h.sessions.LoadSession(ctx, sessionID)
	if errors.Is(err, serviceerr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	now := h.now()
	if s.Status.IsTerminal() || now.Sub(s.UpdatedAt) < h.idleTimeout {
		return false, nil
	}
	if err := s.TransitionTo(StatusDropped, now); err != nil {
		return false, err
	}

	return true, h.sessions.StoreSession(ctx, s)
}
