package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/isometry/lark-ai-bridge/internal/helpers"
	"github.com/isometry/lark-ai-bridge/internal/models"
	"github.com/isometry/lark-ai-bridge/internal/validation"
	"github.com/pkg/errors"
)

const schemaV2 = "2.0"

type validatorProcessor struct {
	logger   *slog.Logger
	verifier *validation.Verifier
}

// NewValidatorPreProcessor returns the Processor turning a raw *Request into a *models.Bus. It decrypts the body,
// recognises the event, checks the signature of schema 2.0 events and verifies the token.
func NewValidatorPreProcessor(verifier *validation.Verifier, opts ...Option) Processor {
	_inst := &validatorProcessor{verifier: verifier, logger: helpers.NewNoopLogger()}
	applyOpts(_inst, opts...)
	return _inst
}

func (p *validatorProcessor) SetLogger(logger *slog.Logger) {
	p.logger = logger.WithGroup("pre-processor:validator")
}

func (p *validatorProcessor) Process(_ context.Context, req any) (*models.Bus, error) {
	request, ok := req.(*Request)
	if !ok {
		return nil, errors.Errorf("invalid request type. expected *Request got %T", req)
	}
	bus := &models.Bus{
		Body:    request.Body,
		Headers: request.Headers,
	}

	payload, err := p.verifier.Open(request.Body)
	if err != nil {
		p.logger.Warn("opening payload", slog.Any("error", err))
		return bus, err
	}
	bus.Payload = payload

	var envelope models.Envelope
	if err = json.Unmarshal(payload, &envelope); err != nil {
		p.logger.Warn("decoding payload", slog.Any("error", err))
		return bus, errors.Wrap(err, "invalid event payload")
	}

	var token string
	switch {
	case envelope.Type == models.EventTypeURLVerification:
		bus.EventType = models.EventTypeURLVerification
		bus.Event = &models.URLVerificationEvent{
			Type:      envelope.Type,
			Token:     envelope.Token,
			Challenge: envelope.Challenge,
		}
		token = envelope.Token
	case envelope.Schema == schemaV2 && envelope.Header != nil:
		bus.EventType = envelope.Header.EventType
		bus.Header = envelope.Header
		bus.Event = envelope.Event
		token = envelope.Header.Token
		// Lark only signs schema 2.0 events; the URL verification handshake carries no signature headers.
		if err = p.verifier.ValidateSignature(request.Body, request.Headers); err != nil {
			p.logger.Warn("validating signature", slog.Any("error", err))
			return bus, err
		}
	default:
		p.logger.Warn("unrecognised event schema", slog.String("schema", envelope.Schema), slog.String("type", envelope.Type))
		return bus, errors.Errorf("unsupported event schema: %q", envelope.Schema)
	}

	if err = p.verifier.ValidateToken(token); err != nil {
		p.logger.Warn("validating token", slog.String("event", bus.EventType), slog.Any("error", err))
		return bus, err
	}

	if _, handled := request.EventProcessors[bus.EventType]; !handled {
		p.logger.Info("unhandled event type", slog.String("event", bus.EventType))
		bus.Response = models.Response{StatusCode: http.StatusBadRequest}
		return bus, errors.Errorf("unhandled event type: %s", bus.EventType)
	}

	p.logger.Debug("request is valid", slog.Any("bus", bus))
	return bus, nil
}
