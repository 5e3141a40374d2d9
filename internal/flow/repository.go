package flow

import (
	"context"
	"errors"
)

// ErrReadOnly is returned by stores whose flows cannot be edited at runtime.
var ErrReadOnly = errors.New("flow source is read-only")

// Repository reads flow graphs by bot. GetFlow returns serviceerr.ErrNotFound
// for unknown bots and an error wrapping ErrInvalidGraph for stored graphs
// that fail validation.
type Repository interface {
	GetFlow(ctx context.Context, botID string) (Graph, error)
}

// Store is a Repository whose flows can be replaced and removed. DeleteFlow
// returns serviceerr.ErrNotFound for unknown bots.
type Store interface {
	Repository
	SaveFlow(ctx context.Context, g Graph) error
	DeleteFlow(ctx context.Context, botID string) error
}
