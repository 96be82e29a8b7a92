// Package handler turns Lark callbacks into replies by running them through a chain of processors.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/isometry/lark-ai-bridge/internal/dedupe"
	"github.com/isometry/lark-ai-bridge/internal/handler/processor"
	"github.com/isometry/lark-ai-bridge/internal/helpers"
	"github.com/isometry/lark-ai-bridge/internal/models"
	"github.com/isometry/lark-ai-bridge/internal/validation"
	"github.com/isometry/lark-ai-bridge/internal/worker"
)

// DefaultUnsupportedMessage is the reply sent for message types other than text.
const DefaultUnsupportedMessage = "ERROR：仅支持文本消息"

// Option defines a function type used to configure an instance of the Handler struct.
type Option func(*Handler)

// Handler validates callbacks and dispatches them to the processors registered for their event type.
type Handler struct {
	logger *slog.Logger

	verifier     *validation.Verifier
	generator    processor.Generator
	sender       processor.Sender
	dispatcher   worker.Dispatcher
	deduplicator dedupe.Deduplicator
	archiver     processor.Archiver
	bucket       string
	unsupported  string

	preProcessors   []processor.Processor
	eventProcessors map[string][]processor.Processor
}

// NewHandler creates a Handler. The verifier, generator and sender are mandatory; callbacks are processed
// inline and never de-duplicated unless a dispatcher and a de-duplicator are supplied.
func NewHandler(opts ...Option) (*Handler, error) {
	_inst := &Handler{
		unsupported: DefaultUnsupportedMessage,
	}
	for _, opt := range opts {
		opt(_inst)
	}
	switch {
	case _inst.verifier == nil:
		return nil, &MissingDependencyError{Name: "verifier"}
	case _inst.generator == nil:
		return nil, &MissingDependencyError{Name: "generator"}
	case _inst.sender == nil:
		return nil, &MissingDependencyError{Name: "sender"}
	}
	if _inst.logger == nil {
		_inst.logger = helpers.NewNoopLogger()
	}
	if _inst.dispatcher == nil {
		_inst.dispatcher = worker.Inline{}
	}
	if _inst.deduplicator == nil {
		_inst.deduplicator = dedupe.None{}
	}

	withLogger := processor.WithLogger(_inst.logger)
	_inst.preProcessors = []processor.Processor{
		processor.NewValidatorPreProcessor(_inst.verifier, withLogger),
		processor.NewDedupePreProcessor(_inst.deduplicator, withLogger),
	}
	if _inst.archiver != nil && _inst.bucket != "" {
		_inst.preProcessors = append(_inst.preProcessors,
			processor.NewS3ArchiverPreProcessor(_inst.archiver, _inst.bucket, withLogger))
	}
	_inst.eventProcessors = map[string][]processor.Processor{
		models.EventTypeURLVerification: {
			processor.NewURLVerificationEventProcessor(withLogger),
		},
		models.EventTypeMessageReceive: {
			processor.NewMessageReceiveEventProcessor(_inst.generator, _inst.sender, _inst.dispatcher, _inst.unsupported, withLogger),
		},
	}
	return _inst, nil
}

// Process handles a single callback. Header keys are expected in lower case.
// The returned error, if any, determines the status code of the response.
func (h *Handler) Process(ctx context.Context, body []byte, headers map[string]string) (models.Response, error) {
	h.logger.Debug("processing request...")

	bus, err := processor.Process(ctx, &processor.Request{
		Body:            body,
		Headers:         headers,
		EventProcessors: h.eventProcessors,
	}, h.preProcessors...)
	if err != nil || bus == nil || bus.Handled {
		return responseOf(bus), err
	}

	logger := h.logger.With(slog.Any("bus", bus))
	header := bus.Header
	bus, err = processor.Process(ctx, bus, h.eventProcessors[bus.EventType]...)
	if err != nil {
		logger.Warn("failed to process event", slog.Any("error", err))
		h.forget(ctx, header)
	} else {
		logger.Info("event processed")
	}
	return responseOf(bus), err
}

// forget releases the event id of a failed event, so that Lark's redelivery is processed again.
func (h *Handler) forget(ctx context.Context, header *models.EventHeader) {
	if header == nil || header.EventID == "" {
		return
	}
	if err := h.deduplicator.Forget(context.WithoutCancel(ctx), header.EventID); err != nil {
		h.logger.Warn("failed to release event id", slog.String("eventID", header.EventID), slog.Any("error", err))
	}
}

func responseOf(bus *models.Bus) models.Response {
	if bus == nil {
		return models.Response{StatusCode: http.StatusOK}
	}
	response := bus.Response
	if response.StatusCode == 0 {
		response.StatusCode = http.StatusOK
	}
	return response
}
