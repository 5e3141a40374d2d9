package interpreter

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/openkcm/bot-flow/internal/channel"
	"github.com/openkcm/bot-flow/internal/flow"
	"github.com/openkcm/bot-flow/internal/message"
)

// RegisterBuiltins registers the message, condition and input handlers.
func RegisterBuiltins(r *Registry) {
	r.RegisterFunc(flow.NodeTypeMessage, handleMessage)
	r.Register(flow.NodeTypeCondition, &conditionHandler{})
	r.RegisterFunc(flow.NodeTypeInput, handleInput)
}

// NewDefaultRegistry returns a registry with the built-in handlers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

func handleMessage(ctx context.Context, node flow.Node, exec *Execution) (Result, error) {
	data, ok := node.Data.(flow.MessageData)
	if !ok {
		return Result{}, fmt.Errorf("message node carries %T payload", node.Data)
	}

	content := Interpolate(data.Content, exec.Variable)
	metadata := map[string]string{
		"bot_id":     exec.BotID,
		"session_id": exec.SessionID,
		"node_id":    node.ID,
	}

	messageID, err := exec.Messages.Record(ctx, exec.Channel.ConversationID, content, message.DirectionOutbound, metadata)
	if err != nil {
		return Result{}, fmt.Errorf("recording message: %w", err)
	}

	next := data.NextID
	if next == "" {
		next, _ = exec.Graph.FirstTarget(node.ID)
	}

	return Result{
		NextNodeID: next,
		Effects: []Effect{OutboundSend{
			BotID:     exec.BotID,
			SessionID: exec.SessionID,
			NodeID:    node.ID,
			MessageID: messageID,
			Platform:  exec.Channel.Platform,
			Address:   exec.Channel.Address,
			Message: channel.Message{
				Text:     content,
				Metadata: map[string]string{"message_id": messageID},
			},
		}},
	}, nil
}

type conditionHandler struct {
	programs sync.Map // expression source -> *vm.Program
}

func (h *conditionHandler) Handle(_ context.Context, node flow.Node, exec *Execution) (Result, error) {
	data, ok := node.Data.(flow.ConditionData)
	if !ok {
		return Result{}, fmt.Errorf("condition node carries %T payload", node.Data)
	}

	var matched bool
	var err error
	if data.Operator == flow.OperatorExpression {
		matched, err = h.evaluateExpression(data.Value, exec.Variables())
	} else {
		actual, set := exec.Variable(data.Variable)
		matched, err = evaluate(data.Operator, actual, set, data.Value)
	}
	if err != nil {
		return Result{}, err
	}

	next, handle := data.FalseNext, "false"
	if matched {
		next, handle = data.TrueNext, "true"
	}
	if next == "" {
		next, _ = exec.Graph.TargetByHandle(node.ID, handle)
	}

	return Result{NextNodeID: next}, nil
}

func (h *conditionHandler) evaluateExpression(value any, vars map[string]any) (bool, error) {
	source, ok := value.(string)
	if !ok {
		return false, fmt.Errorf("expression must be a string, got %T", value)
	}

	program, err := h.compile(source)
	if err != nil {
		return false, err
	}

	out, err := expr.Run(program, vars)
	if err != nil {
		return false, fmt.Errorf("evaluating expression %q: %w", source, err)
	}

	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, want bool", source, out)
	}
	return matched, nil
}

func (h *conditionHandler) compile(source string) (*vm.Program, error) {
	if p, ok := h.programs.Load(source); ok {
		return p.(*vm.Program), nil
	}

	program, err := expr.Compile(source,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compiling expression %q: %w", source, err)
	}

	h.programs.Store(source, program)
	return program, nil
}

func handleInput(_ context.Context, node flow.Node, exec *Execution) (Result, error) {
	text, ok := exec.Input()
	if !ok {
		return Result{StopExecution: true, WaitForInput: true}, nil
	}

	data, _ := node.Data.(flow.InputData)

	var vars map[string]any
	if data.Variable != "" {
		vars = map[string]any{data.Variable: text}
	}

	next := data.NextID
	if next == "" {
		next, _ = exec.Graph.FirstTarget(node.ID)
	}

	return Result{NextNodeID: next, Variables: vars}, nil
}
