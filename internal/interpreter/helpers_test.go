package interpreter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openkcm/bot-flow/internal/flow"
	"github.com/openkcm/bot-flow/internal/flow/flowmock"
	"github.com/openkcm/bot-flow/internal/interpreter"
	"github.com/openkcm/bot-flow/internal/message/messagemock"
	"github.com/openkcm/bot-flow/internal/session"
	"github.com/openkcm/bot-flow/internal/session/sessionmock"
)

var fixedNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func start(id string) flow.Node {
	return flow.Node{ID: id, Type: flow.NodeTypeStart, Data: flow.StartData{}}
}

func msg(id, content string) flow.Node {
	return flow.Node{ID: id, Type: flow.NodeTypeMessage, Data: flow.MessageData{Content: content}}
}

func input(id, variable string) flow.Node {
	return flow.Node{ID: id, Type: flow.NodeTypeInput, Data: flow.InputData{Variable: variable}}
}

func cond(id, variable string, op flow.Operator, value any, trueNext, falseNext string) flow.Node {
	return flow.Node{ID: id, Type: flow.NodeTypeCondition, Data: flow.ConditionData{
		Variable:  variable,
		Operator:  op,
		Value:     value,
		TrueNext:  trueNext,
		FalseNext: falseNext,
	}}
}

func edge(source, target string) flow.Edge {
	return flow.Edge{Source: source, Target: target}
}

func mustGraph(t *testing.T, botID string, nodes []flow.Node, edges ...flow.Edge) flow.Graph {
	t.Helper()
	g, err := flow.NewGraph(botID, nodes, edges)
	require.NoError(t, err)
	return g
}

type recordingRunner struct {
	mu      sync.Mutex
	effects []interpreter.Effect
}

func (r *recordingRunner) Run(_ context.Context, effects []interpreter.Effect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = append(r.effects, effects...)
}

func (r *recordingRunner) sends() []interpreter.OutboundSend {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sends []interpreter.OutboundSend
	for _, e := range r.effects {
		if s, ok := e.(interpreter.OutboundSend); ok {
			sends = append(sends, s)
		}
	}
	return sends
}

type fixture struct {
	flows    *flowmock.Repository
	sessions *sessionmock.Repository
	messages *messagemock.Sink
	effects  *recordingRunner
	registry *interpreter.Registry
	interp   *interpreter.Interpreter
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	sessionOpts []sessionmock.RepositoryOption
	sinkOpts    []messagemock.SinkOption
	interpOpts  []interpreter.Option
	register    func(*interpreter.Registry)
}

func withSessions(opts ...sessionmock.RepositoryOption) fixtureOption {
	return func(c *fixtureConfig) { c.sessionOpts = append(c.sessionOpts, opts...) }
}

func withSink(opts ...messagemock.SinkOption) fixtureOption {
	return func(c *fixtureConfig) { c.sinkOpts = append(c.sinkOpts, opts...) }
}

func withInterpreter(opts ...interpreter.Option) fixtureOption {
	return func(c *fixtureConfig) { c.interpOpts = append(c.interpOpts, opts...) }
}

func withHandlers(register func(*interpreter.Registry)) fixtureOption {
	return func(c *fixtureConfig) { c.register = register }
}

func newFixture(t *testing.T, graphs []flow.Graph, opts ...fixtureOption) *fixture {
	t.Helper()

	var cfg fixtureConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &fixture{
		flows:    flowmock.NewInMemRepository(),
		sessions: sessionmock.NewInMemRepository(cfg.sessionOpts...),
		messages: messagemock.NewInMemSink(cfg.sinkOpts...),
		effects:  &recordingRunner{},
		registry: interpreter.NewDefaultRegistry(),
	}
	for _, g := range graphs {
		f.flows.TAdd(g)
	}
	if cfg.register != nil {
		cfg.register(f.registry)
	}

	interpOpts := append([]interpreter.Option{
		interpreter.WithEffectRunner(f.effects),
		interpreter.WithClock(func() time.Time { return fixedNow }),
	}, cfg.interpOpts...)
	f.interp = interpreter.New(t.Context(), f.flows, f.sessions, f.messages, f.registry, interpOpts...)

	return f
}

func (f *fixture) stored(t *testing.T, sessionID string) session.Session {
	t.Helper()
	s, err := f.sessions.LoadSession(t.Context(), sessionID)
	require.NoError(t, err)
	return s
}

func ptr[T any](v T) *T {
	return &v
}
