package processor

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/isometry/lark-ai-bridge/internal/dedupe"
	"github.com/isometry/lark-ai-bridge/internal/helpers"
	"github.com/isometry/lark-ai-bridge/internal/models"
)

type dedupeProcessor struct {
	logger       *slog.Logger
	deduplicator dedupe.Deduplicator
}

// NewDedupePreProcessor returns a Processor acknowledging redelivered events without processing them again.
func NewDedupePreProcessor(deduplicator dedupe.Deduplicator, opts ...Option) Processor {
	_inst := &dedupeProcessor{deduplicator: deduplicator, logger: helpers.NewNoopLogger()}
	applyOpts(_inst, opts...)
	return _inst
}

func (p *dedupeProcessor) SetLogger(logger *slog.Logger) {
	p.logger = logger.WithGroup("pre-processor:dedupe")
}

func (p *dedupeProcessor) Process(ctx context.Context, req any) (*models.Bus, error) {
	bus, err := busFrom(req)
	if err != nil {
		return nil, err
	}
	if bus.Header == nil || bus.Header.EventID == "" {
		return bus, nil
	}

	seen, err := p.deduplicator.Seen(ctx, bus.Header.EventID)
	if err != nil {
		p.logger.Warn("failed to check event id, processing anyway", slog.Any("error", err))
		return bus, nil
	}
	if seen {
		p.logger.Info("ignoring duplicate event", slog.String("eventID", bus.Header.EventID))
		bus.Response = models.Response{StatusCode: http.StatusOK}
		bus.Handled = true
	}
	return bus, nil
}
