package session

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var ErrInvalidTransition = errors.New("invalid session status transition")

type Status string

const (
	StatusNotStarted      Status = "not_started"
	StatusActive          Status = "active"
	StatusWaitingForInput Status = "waiting_for_input"
	StatusCompleted       Status = "completed"
	StatusDropped         Status = "dropped"
)

var transitions = map[Status][]Status{
	StatusNotStarted:      {StatusActive, StatusDropped},
	StatusActive:          {StatusActive, StatusWaitingForInput, StatusCompleted, StatusDropped},
	StatusWaitingForInput: {StatusActive, StatusDropped},
}

// CanTransitionTo reports whether a session in status s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// IsTerminal reports whether no transition leaves the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusDropped
}

// Channel identifies where the conversation of a session takes place.
type Channel struct {
	ConversationID string `json:"conversationId"`
	Platform       string `json:"platform"`
	Address        string `json:"address"`
}

// Session is one contact's run through the flow of a bot.
type Session struct {
	ID            string         `json:"id"`
	BotID         string         `json:"botId"`
	ContactID     string         `json:"contactId"`
	CurrentNodeID string         `json:"currentNodeId,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Status        Status         `json:"status"`
	Channel       Channel        `json:"channel"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// New returns a session that has not been walked yet.
func New(id, botID, contactID string, ch Channel, now time.Time) Session {
	return Session{
		ID:        id,
		BotID:     botID,
		ContactID: contactID,
		Variables: make(map[string]any),
		Status:    StatusNotStarted,
		Channel:   ch,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo moves the session to next and stamps UpdatedAt.
func (s *Session) TransitionTo(next Status, at time.Time) error {
	if !s.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}
	s.Status = next
	s.UpdatedAt = at
	return nil
}
