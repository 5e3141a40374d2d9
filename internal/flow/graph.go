// Package flow holds the chatbot flow graph model and the repository contract
// the interpreter reads graphs through.
package flow

import (
	"errors"
	"fmt"
)

var ErrInvalidGraph = errors.New("invalid flow graph")

type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeMessage   NodeType = "message"
	NodeTypeCondition NodeType = "condition"
	NodeTypeInput     NodeType = "input"
)

// Node is a single vertex of a flow graph. Data carries the payload variant
// matching Type, or RawData for types without a typed payload.
type Node struct {
	ID   string
	Type NodeType
	Data Payload
}

// Edge connects two nodes. SourceHandle names the output port of the source
// node the edge leaves from, e.g. "true" or "false" on condition nodes.
type Edge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// Graph is an immutable flow graph. Nodes keep the insertion order of the store.
type Graph struct {
	BotID string
	Nodes []Node
	Edges []Edge

	index    map[string]int
	outgoing map[string][]Edge
}

// NewGraph indexes the given nodes and edges. Node ids must be non-empty and
// unique. Edges referencing unknown nodes are kept; walking into them stops
// the execution at runtime.
func NewGraph(botID string, nodes []Node, edges []Edge) (Graph, error) {
	g := Graph{
		BotID:    botID,
		Nodes:    nodes,
		Edges:    edges,
		index:    make(map[string]int, len(nodes)),
		outgoing: make(map[string][]Edge, len(nodes)),
	}

	for i, n := range nodes {
		if n.ID == "" {
			return Graph{}, fmt.Errorf("%w: node at position %d has no id", ErrInvalidGraph, i)
		}
		if _, dup := g.index[n.ID]; dup {
			return Graph{}, fmt.Errorf("%w: duplicate node id %q", ErrInvalidGraph, n.ID)
		}
		g.index[n.ID] = i
	}

	for _, e := range edges {
		g.outgoing[e.Source] = append(g.outgoing[e.Source], e)
	}

	return g, nil
}

// Node returns the node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// EntryNode returns the first start node in insertion order, or the first
// node of the graph when there is no start node.
func (g Graph) EntryNode() (Node, bool) {
	for _, n := range g.Nodes {
		if n.Type == NodeTypeStart {
			return n, true
		}
	}
	if len(g.Nodes) == 0 {
		return Node{}, false
	}
	return g.Nodes[0], true
}

// Outgoing returns the edges leaving the node in insertion order.
func (g Graph) Outgoing(nodeID string) []Edge {
	return g.outgoing[nodeID]
}

// FirstTarget returns the target of the first edge leaving the node.
func (g Graph) FirstTarget(nodeID string) (string, bool) {
	edges := g.Outgoing(nodeID)
	if len(edges) == 0 {
		return "", false
	}
	return edges[0].Target, true
}

// TargetByHandle returns the target of the first edge leaving the node
// through the given source handle.
func (g Graph) TargetByHandle(nodeID, handle string) (string, bool) {
	for _, e := range g.Outgoing(nodeID) {
		if e.SourceHandle == handle {
			return e.Target, true
		}
	}
	return "", false
}
