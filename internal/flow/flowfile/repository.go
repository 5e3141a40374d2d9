// Package flowfile reads flow graphs from YAML or JSON files in a directory,
// one bot per file.
package flowfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-yaml"

	"github.com/openkcm/bot-flow/internal/flow"
	"github.com/openkcm/bot-flow/internal/serviceerr"
)

var extensions = []string{"*.yaml", "*.yml", "*.json"}

type document struct {
	BotID string         `json:"botId"`
	Nodes []flow.RawNode `json:"nodes"`
	Edges []flow.Edge    `json:"edges"`
}

type Repository struct {
	flows map[string]flow.Graph
}

var _ = flow.Store(&Repository{})

// NewRepository loads and validates every flow file in dir.
func NewRepository(dir string) (*Repository, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening flow directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("flow directory %s is not a directory", dir)
	}

	var files []string
	for _, ext := range extensions {
		matches, err := filepath.Glob(filepath.Join(dir, ext))
		if err != nil {
			return nil, fmt.Errorf("listing flow files: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	r := &Repository{
		flows: make(map[string]flow.Graph, len(files)),
	}
	for _, file := range files {
		g, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		if _, dup := r.flows[g.BotID]; dup {
			return nil, fmt.Errorf("%w: bot %q defined more than once (%s)", serviceerr.ErrConflict, g.BotID, file)
		}
		r.flows[g.BotID] = g
	}

	return r, nil
}

// LoadFile reads a single flow definition. The bot id defaults to the file
// name without extension.
func LoadFile(path string) (flow.Graph, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return flow.Graph{}, fmt.Errorf("reading flow file: %w", err)
	}

	return Parse(content, botIDFromPath(path))
}

// Parse decodes a YAML or JSON flow definition.
func Parse(content []byte, defaultBotID string) (flow.Graph, error) {
	asJSON, err := yaml.YAMLToJSON(content)
	if err != nil {
		return flow.Graph{}, fmt.Errorf("%w: converting yaml: %w", flow.ErrInvalidGraph, err)
	}

	var doc document
	if err := json.Unmarshal(asJSON, &doc); err != nil {
		return flow.Graph{}, fmt.Errorf("%w: unmarshalling flow: %w", flow.ErrInvalidGraph, err)
	}
	if doc.BotID == "" {
		doc.BotID = defaultBotID
	}

	g, err := flow.DecodeGraph(doc.BotID, doc.Nodes, doc.Edges)
	if err != nil {
		return flow.Graph{}, fmt.Errorf("decoding flow of bot %q: %w", doc.BotID, err)
	}

	return g, nil
}

func (r *Repository) GetFlow(_ context.Context, botID string) (flow.Graph, error) {
	g, ok := r.flows[botID]
	if !ok {
		return flow.Graph{}, serviceerr.ErrNotFound
	}
	return g, nil
}

// SaveFlow always fails: flow files are edited on disk.
func (r *Repository) SaveFlow(_ context.Context, g flow.Graph) error {
	return fmt.Errorf("%w: cannot save flow of bot %q", flow.ErrReadOnly, g.BotID)
}

func (r *Repository) DeleteFlow(_ context.Context, botID string) error {
	return fmt.Errorf("%w: cannot delete flow of bot %q", flow.ErrReadOnly, botID)
}

// BotIDs lists the loaded bots in lexical order.
func (r *Repository) BotIDs() []string {
	ids := make([]string, 0, len(r.flows))
	for id := range r.flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func botIDFromPath(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
