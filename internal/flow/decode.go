package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// RawNode is the storage representation of a node: a type tag and an
// undecoded JSON payload.
type RawNode struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DecodeGraph turns stored nodes and edges into a Graph, decoding and
// validating the payload of every node with a known type.
func DecodeGraph(botID string, raw []RawNode, edges []Edge) (Graph, error) {
	nodes := make([]Node, 0, len(raw))
	for _, rn := range raw {
		n, err := DecodeNode(rn)
		if err != nil {
			return Graph{}, err
		}
		nodes = append(nodes, n)
	}

	return NewGraph(botID, nodes, edges)
}

// DecodeNode decodes a single stored node.
func DecodeNode(rn RawNode) (Node, error) {
	n := Node{ID: rn.ID, Type: NodeType(rn.Type)}

	var err error
	switch n.Type {
	case NodeTypeStart:
		n.Data = StartData{}
	case NodeTypeMessage:
		n.Data, err = decodePayload[MessageData](rn.Data)
	case NodeTypeCondition:
		n.Data, err = decodeCondition(rn.Data)
	case NodeTypeInput:
		n.Data, err = decodePayload[InputData](rn.Data)
	default:
		raw := RawData{}
		if len(rn.Data) > 0 {
			err = json.Unmarshal(rn.Data, &raw)
		}
		n.Data = raw
	}
	if err != nil {
		return Node{}, fmt.Errorf("%w: node %q of type %q: %w", ErrInvalidGraph, rn.ID, rn.Type, err)
	}

	return n, nil
}

// EncodeNode is the inverse of DecodeNode.
func EncodeNode(n Node) (RawNode, error) {
	rn := RawNode{ID: n.ID, Type: string(n.Type)}
	if n.Data == nil {
		return rn, nil
	}

	if _, ok := n.Data.(StartData); ok {
		return rn, nil
	}

	data, err := json.Marshal(n.Data)
	if err != nil {
		return RawNode{}, fmt.Errorf("marshaling payload of node %q: %w", n.ID, err)
	}
	rn.Data = data

	return rn, nil
}

func decodePayload[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("unmarshaling payload: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return v, describeValidation(err)
	}
	return v, nil
}

func decodeCondition(data json.RawMessage) (ConditionData, error) {
	c, err := decodePayload[ConditionData](data)
	if err != nil {
		return c, err
	}
	if c.Operator == OperatorExpression {
		if s, ok := c.Value.(string); !ok || strings.TrimSpace(s) == "" {
			return c, errors.New("expression operator requires a non-empty string value")
		}
	}
	return c, nil
}

func describeValidation(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed validation (rule: %s)", fieldErr.Field(), fieldErr.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
