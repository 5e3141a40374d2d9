// Package interpreter walks bot flow graphs for conversation sessions.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/bot-flow/internal/flow"
	"github.com/openkcm/bot-flow/internal/message"
	"github.com/openkcm/bot-flow/internal/serviceerr"
	"github.com/openkcm/bot-flow/internal/session"
)

const DefaultStepCeiling = 20

type StopReason string

const (
	StopWaitingForInput StopReason = "waiting_for_input"
	StopExplicit        StopReason = "stopped"
	StopCompleted       StopReason = "completed"
	StopDanglingNext    StopReason = "dangling_next"
	StopStepCeiling     StopReason = "step_ceiling"
	StopInvalidStart    StopReason = "invalid_start"
	StopHandlerFailure  StopReason = "handler_failure"
)

type RunRequest struct {
	BotID     string
	SessionID string
	ContactID string
	// CurrentNodeID is where the walk begins. Empty selects the entry node.
	CurrentNodeID string
	// InputText is the user's reply since the session last suspended.
	InputText *string
	Channel   session.Channel
}

type RunResult struct {
	ExecutedSteps int
	Status        session.Status
	CurrentNodeID string
	StopReason    StopReason
	Variables     map[string]any
}

type Interpreter struct {
	flows       flow.Repository
	sessions    session.Repository
	messages    message.Sink
	registry    *Registry
	effects     EffectRunner
	stepCeiling int
	now         func() time.Time
	metrics     metrics
}

type Option func(*Interpreter)

// WithStepCeiling bounds the executed steps of one run. Values below one are
// ignored.
func WithStepCeiling(n int) Option {
	return func(i *Interpreter) {
		if n > 0 {
			i.stepCeiling = n
		}
	}
}

// WithEffectRunner sets where the effects of a run are handed to. Without a
// runner effects are dropped.
func WithEffectRunner(r EffectRunner) Option {
	return func(i *Interpreter) { i.effects = r }
}

func WithClock(now func() time.Time) Option {
	return func(i *Interpreter) { i.now = now }
}

func New(ctx context.Context, flows flow.Repository, sessions session.Repository, messages message.Sink, registry *Registry, opts ...Option) *Interpreter {
	i := &Interpreter{
		flows:       flows,
		sessions:    sessions,
		messages:    messages,
		registry:    registry,
		stepCeiling: DefaultStepCeiling,
		now:         time.Now,
		metrics:     newMetrics(ctx),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run walks the flow of the bot for one session until the walk suspends,
// completes or reaches the step ceiling, then stores the session.
//
// Callers must not run the same session concurrently.
func (i *Interpreter) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	ctx = slogctx.With(ctx, "bot_id", req.BotID, "session_id", req.SessionID)

	tracer := otel.GetTracerProvider()
	ctx, span := tracer.Tracer("").Start(ctx, "interpreter_run", trace.WithAttributes(
		attribute.String("bot_id", req.BotID),
		attribute.String("session_id", req.SessionID),
	))
	defer span.End()

	started := i.now()
	res, err := i.run(ctx, req)

	outcome := string(res.StopReason)
	if err != nil {
		span.RecordError(err)
		outcome = "error"
		res.ExecutedSteps = ExecutedStepsOf(err)
	}
	span.SetAttributes(attribute.Int("executed_steps", res.ExecutedSteps), attribute.String("outcome", outcome))
	i.metrics.record(ctx, req.BotID, outcome, res.ExecutedSteps, i.now().Sub(started))

	return res, err
}

func (i *Interpreter) run(ctx context.Context, req RunRequest) (RunResult, error) {
	g, err := i.flows.GetFlow(ctx, req.BotID)
	if err != nil {
		switch {
		case errors.Is(err, serviceerr.ErrNotFound):
			return RunResult{}, &RunError{Kind: ErrFlowNotFound, Err: err}
		case errors.Is(err, flow.ErrInvalidGraph):
			return RunResult{}, &RunError{Kind: ErrInvalidFlow, Err: err}
		default:
			return RunResult{}, fmt.Errorf("getting flow: %w", err)
		}
	}

	sess, err := i.loadSession(ctx, req)
	if err != nil {
		return RunResult{}, err
	}
	if sess.Status.IsTerminal() {
		return RunResult{}, &RunError{Kind: ErrSessionClosed, NodeID: sess.CurrentNodeID}
	}

	var begin flow.Node
	var ok bool
	if req.CurrentNodeID != "" {
		begin, ok = g.Node(req.CurrentNodeID)
	} else {
		begin, ok = g.EntryNode()
	}
	if !ok {
		slogctx.Info(ctx, "Start position not in flow, nothing to run", "node_id", req.CurrentNodeID)
		return RunResult{
			Status:        sess.Status,
			CurrentNodeID: sess.CurrentNodeID,
			StopReason:    StopInvalidStart,
			Variables:     sess.Variables,
		}, nil
	}

	if err := sess.TransitionTo(session.StatusActive, i.now()); err != nil {
		return RunResult{}, err
	}

	exec := &Execution{
		Graph:     g,
		BotID:     req.BotID,
		SessionID: sess.ID,
		ContactID: sess.ContactID,
		Channel:   sess.Channel,
		Messages:  i.messages,
		vars:      maps.Clone(sess.Variables),
		input:     req.InputText,
		beganAt:   begin.ID,
	}
	if exec.vars == nil {
		exec.vars = make(map[string]any)
	}

	w := i.walk(ctx, g, begin, exec)

	sess.CurrentNodeID = w.position
	sess.Variables = exec.vars

	res := RunResult{
		ExecutedSteps: w.steps,
		CurrentNodeID: w.position,
		StopReason:    w.reason,
		Variables:     maps.Clone(exec.vars),
	}

	status := session.StatusActive
	switch w.reason {
	case StopWaitingForInput:
		status = session.StatusWaitingForInput
	case StopCompleted, StopDanglingNext:
		status = session.StatusCompleted
	}
	if err := sess.TransitionTo(status, i.now()); err != nil {
		return res, err
	}
	res.Status = sess.Status

	storeErr := i.sessions.StoreSession(ctx, sess)

	// messages are recorded already, deliver them even if storing failed
	i.runEffects(ctx, w.effects)

	if w.err != nil {
		if storeErr != nil {
			slogctx.Error(ctx, "Could not store session after handler failure", "node_id", w.position, "error", storeErr)
		}
		return res, &RunError{
			Kind:          ErrHandlerFailure,
			ExecutedSteps: w.steps,
			NodeID:        w.position,
			Err:           errors.Join(w.err, storeErr),
		}
	}
	if storeErr != nil {
		return res, &RunError{
			Kind:          ErrPersistenceFailure,
			ExecutedSteps: w.steps,
			NodeID:        w.position,
			Err:           storeErr,
		}
	}

	slogctx.Debug(ctx, "Flow run finished",
		"executed_steps", w.steps,
		"stop_reason", w.reason,
		"node_id", w.position,
		"status", sess.Status,
	)

	return res, nil
}

func (i *Interpreter) loadSession(ctx context.Context, req RunRequest) (session.Session, error) {
	sess, err := i.sessions.LoadSession(ctx, req.SessionID)
	switch {
	case errors.Is(err, serviceerr.ErrNotFound):
		return session.New(req.SessionID, req.BotID, req.ContactID, req.Channel, i.now()), nil
	case err != nil:
		return session.Session{}, fmt.Errorf("loading session: %w", err)
	}
	if sess.BotID != "" && sess.BotID != req.BotID {
		return session.Session{}, fmt.Errorf("%w: session %q belongs to bot %q", serviceerr.ErrInvalidRequest, sess.ID, sess.BotID)
	}

	if req.ContactID != "" {
		sess.ContactID = req.ContactID
	}
	if req.Channel != (session.Channel{}) {
		sess.Channel = req.Channel
	}
	return sess, nil
}

type walkResult struct {
	steps    int
	position string
	reason   StopReason
	effects  []Effect
	err      error
}

// walk executes nodes from begin. A start node at which the walk begins is
// an entry marker: its first edge is followed without counting a step.
func (i *Interpreter) walk(ctx context.Context, g flow.Graph, begin flow.Node, exec *Execution) walkResult {
	w := walkResult{position: begin.ID}
	current := begin

	if current.Type == flow.NodeTypeStart {
		next, ok := g.FirstTarget(current.ID)
		if !ok {
			w.reason = StopCompleted
			return w
		}
		if current, ok = g.Node(next); !ok {
			slogctx.Warn(ctx, "Edge points to a node missing from the flow", "node_id", begin.ID, "next_node_id", next)
			w.reason = StopDanglingNext
			return w
		}
	}

	for {
		w.position = current.ID
		if w.steps >= i.stepCeiling {
			slogctx.Warn(ctx, "Step ceiling reached", "node_id", current.ID, "step_ceiling", i.stepCeiling)
			w.reason = StopStepCeiling
			return w
		}

		exec.nodeID = current.ID
		exec.stepsDone = w.steps

		var next string
		h, ok := i.registry.Lookup(current.Type)
		if !ok {
			w.steps++
			if next, ok = g.FirstTarget(current.ID); !ok {
				w.reason = StopCompleted
				return w
			}
		} else {
			res, err := invoke(ctx, h, current, exec)
			if err != nil {
				slogctx.Error(ctx, "Node handler failed", "node_id", current.ID, "node_type", current.Type, "error", err)
				w.reason = StopHandlerFailure
				w.err = err
				return w
			}
			w.steps++
			maps.Copy(exec.vars, res.Variables)
			w.effects = append(w.effects, res.Effects...)

			if res.StopExecution {
				w.reason = StopExplicit
				if res.WaitForInput {
					w.reason = StopWaitingForInput
				}
				return w
			}
			if res.NextNodeID == "" {
				w.reason = StopCompleted
				return w
			}
			next = res.NextNodeID
		}

		nextNode, ok := g.Node(next)
		if !ok {
			slogctx.Warn(ctx, "Edge points to a node missing from the flow", "node_id", current.ID, "next_node_id", next)
			w.reason = StopDanglingNext
			return w
		}
		current = nextNode
	}
}

// invoke runs a handler and turns a panic into an error.
func invoke(ctx context.Context, h Handler, node flow.Node, exec *Execution) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, node, exec)
}

func (i *Interpreter) runEffects(ctx context.Context, effects []Effect) {
	if len(effects) == 0 {
		return
	}
	if i.effects == nil {
		slogctx.Debug(ctx, "No effect runner configured, dropping effects", "effects", len(effects))
		return
	}
	i.effects.Run(ctx, effects)
}
