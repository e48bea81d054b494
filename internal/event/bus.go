// Package event carries correlation request events between modules.
package event

import (
	"context"
	"errors"

	"github.com/d60-Lab/postboard/internal/correlation"
)

// Handler processes one request event.
type Handler func(ctx context.Context, evt correlation.RequestEvent) error

// Bus is a correlation.Publisher that also dispatches to subscribers.
type Bus interface {
	correlation.Publisher
	// Subscribe must be called before Start.
	Subscribe(kind correlation.Kind, h Handler)
	// Start launches the dispatch workers and returns their stop func.
	Start(workers int) func(context.Context) error
}

var (
	ErrQueueFull = errors.New("event bus queue full")
	ErrStopped   = errors.New("event bus stopped")
)
