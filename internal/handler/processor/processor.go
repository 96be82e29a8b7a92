// Package processor provides a generic interface for processing callbacks using a list of processors.
package processor

import (
	"context"
	"log/slog"

	"github.com/isometry/lark-ai-bridge/internal/models"
	"github.com/pkg/errors"
)

// Option is a function that applies an option to a Processor.
type Option = func(Processor)

// Processor is an interface that defines a method to process a request.
type Processor interface {
	SetLogger(logger *slog.Logger)
	Process(ctx context.Context, req any) (*models.Bus, error)
}

// Request is a raw callback entering the pre-processor chain.
type Request struct {
	Body            []byte
	Headers         map[string]string
	EventProcessors map[string][]Processor
}

// Process runs req through processors in order. It stops at the first error or once a processor marks the bus as handled.
func Process(ctx context.Context, req any, processors ...Processor) (*models.Bus, error) {
	var (
		bus *models.Bus
		err error
	)
	for _, p := range processors {
		bus, err = p.Process(ctx, req)
		if err != nil || bus == nil || bus.Handled {
			return bus, err
		}
		req = bus
	}
	if bus == nil {
		bus, _ = req.(*models.Bus)
	}
	return bus, nil
}

// WithLogger sets the logger of a Processor.
func WithLogger(logger *slog.Logger) Option {
	return func(p Processor) {
		p.SetLogger(logger)
	}
}

func applyOpts(m Processor, opts ...Option) {
	for _, opt := range opts {
		opt(m)
	}
}

func busFrom(req any) (*models.Bus, error) {
	bus, ok := req.(*models.Bus)
	if !ok || bus == nil {
		return nil, errors.Errorf("invalid request type. expected *models.Bus got %T", req)
	}
	return bus, nil
}
