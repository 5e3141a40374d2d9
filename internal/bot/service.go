// Package bot serialises flow runs per session and manages session
// lifecycles for callers outside the interpreter.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/bot-flow/internal/interpreter"
	"github.com/openkcm/bot-flow/internal/serviceerr"
	"github.com/openkcm/bot-flow/internal/session"
)

// Runner runs a flow for a session.
type Runner interface {
	Run(ctx context.Context, req interpreter.RunRequest) (interpreter.RunResult, error)
}

type Service struct {
	runner   Runner
	sessions session.Repository
	locker   session.Locker
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(runner Runner, sessions session.Repository, locker session.Locker, opts ...Option) *Service {
	s := &Service{
		runner:   runner,
		sessions: sessions,
		locker:   locker,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type TriggerRequest struct {
	BotID         string
	SessionID     string
	ContactID     string
	CurrentNodeID string
	InputText     *string
	Channel       session.Channel
}

// Trigger starts a session at the entry node of the bot's flow, or runs it
// from CurrentNodeID when given.
func (s *Service) Trigger(ctx context.Context, req TriggerRequest) (interpreter.RunResult, error) {
	if req.BotID == "" || req.SessionID == "" {
		return interpreter.RunResult{}, fmt.Errorf("%w: bot id and session id are required", serviceerr.ErrInvalidRequest)
	}

	var res interpreter.RunResult
	err := s.withLock(ctx, req.SessionID, func(ctx context.Context) error {
		var err error
		res, err = s.runner.Run(ctx, interpreter.RunRequest{
			BotID:         req.BotID,
			SessionID:     req.SessionID,
			ContactID:     req.ContactID,
			CurrentNodeID: req.CurrentNodeID,
			InputText:     req.InputText,
			Channel:       req.Channel,
		})
		return err
	})

	return res, err
}

// Resume continues a session from its stored position with the user's
// reply.
func (s *Service) Resume(ctx context.Context, botID, sessionID, input string) (interpreter.RunResult, error) {
	var res interpreter.RunResult
	err := s.withLock(ctx, sessionID, func(ctx context.Context) error {
		sess, err := s.sessions.LoadSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}
		if sess.BotID != botID {
			return fmt.Errorf("%w: session %q belongs to bot %q", serviceerr.ErrInvalidRequest, sessionID, sess.BotID)
		}

		res, err = s.runner.Run(ctx, interpreter.RunRequest{
			BotID:         botID,
			SessionID:     sessionID,
			ContactID:     sess.ContactID,
			CurrentNodeID: sess.CurrentNodeID,
			InputText:     &input,
		})
		return err
	})

	return res, err
}

// Drop abandons a session. Completed and dropped sessions cannot be dropped.
func (s *Service) Drop(ctx context.Context, sessionID string) (session.Session, error) {
	var sess session.Session
	err := s.withLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		sess, err = s.sessions.LoadSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}

		if err := sess.TransitionTo(session.StatusDropped, s.now()); err != nil {
			return errors.Join(interpreter.ErrSessionClosed, err)
		}

		if err := s.sessions.StoreSession(ctx, sess); err != nil {
			return fmt.Errorf("storing session: %w", err)
		}

		slogctx.Info(ctx, "Dropped session", "session_id", sessionID, "bot_id", sess.BotID)
		return nil
	})

	return sess, err
}

// Delete erases a session in any status. A walk holding the session lock
// finishes first.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	return s.withLock(ctx, sessionID, func(ctx context.Context) error {
		sess, err := s.sessions.LoadSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}

		if err := s.sessions.DeleteSession(ctx, sess); err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}

		slogctx.Info(ctx, "Deleted session", "session_id", sessionID, "bot_id", sess.BotID, "status", sess.Status)
		return nil
	})
}

// Get returns the stored session. It does not wait for a running walk.
func (s *Service) Get(ctx context.Context, sessionID string) (session.Session, error) {
	return s.sessions.LoadSession(ctx, sessionID)
}

func (s *Service) withLock(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error {
	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("locking session %q: %w", sessionID, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			slogctx.Warn(ctx, "Could not release session lock", "session_id", sessionID, "error", err)
		}
	}()

	return fn(ctx)
}
