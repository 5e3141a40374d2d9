package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/bot-flow/internal/session"
	"github.com/openkcm/bot-flow/internal/session/sessionmock"
)

func TestHousekeeper_DropIdleSessions(t *testing.T) {
	ctx := t.Context()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mk := func(id string, status session.Status, idle time.Duration) session.Session {
		s := session.New(id, "bot", "contact-"+id, session.Channel{}, now.Add(-idle))
		s.Status = status
		return s
	}

	sessions := sessionmock.NewInMemRepository(
		sessionmock.WithSession(mk("idle-active", session.StatusActive, 2*time.Hour)),
		sessionmock.WithSession(mk("idle-waiting", session.StatusWaitingForInput, 3*time.Hour)),
		sessionmock.WithSession(mk("fresh", session.StatusWaitingForInput, time.Minute)),
		sessionmock.WithSession(mk("completed", session.StatusCompleted, 5*time.Hour)),
		sessionmock.WithSession(mk("locked", session.StatusActive, 5*time.Hour)),
	)
	locker := session.NewLocalLocker()
	unlock, err := locker.Lock(ctx, "locked")
	require.NoError(t, err)
	defer unlock(ctx)

	hk := session.NewHousekeeper(sessions, locker, time.Hour,
		session.WithConcurrencyLimit(2),
		session.WithClock(func() time.Time { return now }),
	)

	dropped, err := hk.DropIdleSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)

	wantStatus := map[string]session.Status{
		"idle-active":  session.StatusDropped,
		"idle-waiting": session.StatusDropped,
		"fresh":        session.StatusWaitingForInput,
		"completed":    session.StatusCompleted,
		"locked":       session.StatusActive,
	}
	for id, want := range wantStatus {
		s, err := sessions.LoadSession(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, s.Status, id)
	}

	s, err := sessions.LoadSession(ctx, "idle-active")
	require.NoError(t, err)
	assert.Equal(t, now, s.UpdatedAt)
}

func TestHousekeeper_ListError(t *testing.T) {
	listErr := errors.New("list failed")
	sessions := sessionmock.NewInMemRepository(sessionmock.WithListSessionsError(listErr))

	hk := session.NewHousekeeper(sessions, session.NewLocalLocker(), time.Hour)
	_, err := hk.DropIdleSessions(t.Context())
	assert.ErrorIs(t, err, listErr)
}
