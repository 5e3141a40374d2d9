package session

import (
	"context"
	"sync"

	"github.com/openkcm/bot-flow/internal/serviceerr"
)

// UnlockFunc releases a lock taken by a Locker.
type UnlockFunc func(ctx context.Context) error

// Locker grants at most one holder per session id. Lock does not wait: it
// fails with serviceerr.ErrLocked while another holder exists.
type Locker interface {
	Lock(ctx context.Context, sessionID string) (UnlockFunc, error)
}

// LocalLocker is a Locker for a single process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ = Locker(&LocalLocker{})

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held: make(map[string]struct{}),
	}
}

func (l *LocalLocker) Lock(_ context.Context, sessionID string) (UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[sessionID]; ok {
		return nil, serviceerr.ErrLocked
	}
	l.held[sessionID] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, sessionID)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
