package sessionvalkey

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/bot-flow/internal/serviceerr"
	"github.com/openkcm/bot-flow/internal/session"
)

// releaseScript deletes the lock only while it still carries the token of
// the caller, so an expired lock re-taken by another holder survives.
var releaseScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker takes per-session locks with SET NX PX. The ttl bounds how long a
// crashed holder blocks the session.
type Locker struct {
	store *store
	ttl   time.Duration
}

var _ = session.Locker(&Locker{})

func NewLocker(valkeyClient valkey.Client, prefix string, ttl time.Duration) *Locker {
	return &Locker{
		store: newStore(valkeyClient, prefix),
		ttl:   ttl,
	}
}

func (l *Locker) Lock(ctx context.Context, sessionID string) (session.UnlockFunc, error) {
	key := l.store.key(objectTypeLock, sessionID)
	token := uuid.NewString()

	client := l.store.valkey
	err := client.Do(ctx, client.B().Set().Key(key).Value(token).Nx().PxMilliseconds(l.ttl.Milliseconds()).Build()).Error()
	if valkey.IsValkeyNil(err) {
		return nil, serviceerr.ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("executing set nx command: %w", err)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Exec(ctx, client, []string{key}, []string{token}).Error(); err != nil {
			return fmt.Errorf("releasing lock: %w", err)
		}
		return nil
	}, nil
}
