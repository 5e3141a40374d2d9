package interpreter

import (
	"context"
	"maps"

	"github.com/openkcm/bot-flow/internal/channel"
	"github.com/openkcm/bot-flow/internal/flow"
	"github.com/openkcm/bot-flow/internal/message"
	"github.com/openkcm/bot-flow/internal/session"
)

// Handler executes one node type.
type Handler interface {
	Handle(ctx context.Context, node flow.Node, exec *Execution) (Result, error)
}

type HandlerFunc func(ctx context.Context, node flow.Node, exec *Execution) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, node flow.Node, exec *Execution) (Result, error) {
	return f(ctx, node, exec)
}

// Result tells the walk where to go after a node. An empty NextNodeID ends
// the walk as completed. Variables are merged into the session only when the
// handler succeeds.
type Result struct {
	NextNodeID    string
	StopExecution bool
	WaitForInput  bool
	Variables     map[string]any
	Effects       []Effect
}

// Effect is work a handler asks for but does not perform itself.
type Effect interface {
	effect()
}

// OutboundSend delivers a recorded message through the channel sender.
type OutboundSend struct {
	BotID     string
	SessionID string
	NodeID    string
	MessageID string
	Platform  string
	Address   string
	Message   channel.Message
}

func (OutboundSend) effect() {}

// EffectRunner executes the effects a run produced.
type EffectRunner interface {
	Run(ctx context.Context, effects []Effect)
}

// Execution is the state of a run as handlers see it.
type Execution struct {
	Graph     flow.Graph
	BotID     string
	SessionID string
	ContactID string
	Channel   session.Channel
	Messages  message.Sink

	vars      map[string]any
	input     *string
	beganAt   string
	nodeID    string
	stepsDone int
}

// Variable returns the current value of a session variable.
func (e *Execution) Variable(name string) (any, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Variables returns a copy of all session variables.
func (e *Execution) Variables() map[string]any {
	vars := make(map[string]any, len(e.vars))
	maps.Copy(vars, e.vars)
	return vars
}

// Input returns the text the caller supplied, but only to the node the walk
// began at and only before any other node ran.
func (e *Execution) Input() (string, bool) {
	if e.input == nil || e.stepsDone > 0 || e.nodeID != e.beganAt {
		return "", false
	}
	return *e.input, true
}
