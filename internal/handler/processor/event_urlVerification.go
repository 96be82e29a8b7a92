package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/isometry/lark-ai-bridge/internal/helpers"
	"github.com/isometry/lark-ai-bridge/internal/models"
	"github.com/pkg/errors"
)

type urlVerificationProcessor struct {
	logger *slog.Logger
}

// NewURLVerificationEventProcessor returns the Processor answering the URL verification handshake.
func NewURLVerificationEventProcessor(opts ...Option) Processor {
	_inst := &urlVerificationProcessor{logger: helpers.NewNoopLogger()}
	applyOpts(_inst, opts...)
	return _inst
}

func (p *urlVerificationProcessor) SetLogger(logger *slog.Logger) {
	p.logger = logger.WithGroup("event-processor:url-verification")
}

func (p *urlVerificationProcessor) Process(_ context.Context, req any) (*models.Bus, error) {
	bus, err := busFrom(req)
	if err != nil {
		return nil, err
	}
	event, ok := bus.Event.(*models.URLVerificationEvent)
	if !ok {
		return bus, errors.Errorf("invalid event type. expected *models.URLVerificationEvent got %T", bus.Event)
	}

	body, err := json.Marshal(struct {
		Challenge string `json:"challenge"`
	}{event.Challenge})
	if err != nil {
		return bus, errors.Wrap(err, "failed to encode challenge")
	}
	p.logger.Info("answering url verification")
	bus.Response = models.Response{Body: string(body), StatusCode: http.StatusOK}
	bus.Handled = true
	return bus, nil
}
