package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/isometry/lark-ai-bridge/internal/helpers"
	"github.com/isometry/lark-ai-bridge/internal/models"
	"github.com/isometry/lark-ai-bridge/internal/worker"
	"github.com/pkg/errors"
)

// Generator produces the reply to a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Sender delivers a text message to a user.
type Sender interface {
	SendText(ctx context.Context, openID, text string) error
}

type messageReceiveProcessor struct {
	logger      *slog.Logger
	generator   Generator
	sender      Sender
	dispatcher  worker.Dispatcher
	unsupported string
}

// NewMessageReceiveEventProcessor returns the Processor replying to received messages. Text messages are handed
// to dispatcher to be answered with the output of generator; any other message type is answered with unsupported.
func NewMessageReceiveEventProcessor(generator Generator, sender Sender, dispatcher worker.Dispatcher, unsupported string, opts ...Option) Processor {
	_inst := &messageReceiveProcessor{
		generator:   generator,
		sender:      sender,
		dispatcher:  dispatcher,
		unsupported: unsupported,
		logger:      helpers.NewNoopLogger(),
	}
	applyOpts(_inst, opts...)
	return _inst
}

func (p *messageReceiveProcessor) SetLogger(logger *slog.Logger) {
	p.logger = logger.WithGroup("event-processor:message-receive")
}

func (p *messageReceiveProcessor) Process(ctx context.Context, req any) (*models.Bus, error) {
	bus, err := busFrom(req)
	if err != nil {
		return nil, err
	}
	raw, ok := bus.Event.(json.RawMessage)
	if !ok || len(raw) == 0 {
		return bus, errors.Errorf("invalid event type. expected json.RawMessage got %T", bus.Event)
	}
	var event models.MessageReceiveEvent
	if err = json.Unmarshal(raw, &event); err != nil {
		return bus, errors.Wrap(err, "invalid message event")
	}
	bus.Event = &event

	openID := event.Sender.SenderID.OpenID
	if openID == "" {
		return bus, errors.New("message event has no sender open id")
	}
	logger := p.logger.With(
		slog.String("messageID", event.Message.MessageID),
		slog.String("messageType", event.Message.MessageType),
		slog.String("chatType", event.Message.ChatType))

	bus.Response = models.Response{StatusCode: http.StatusOK}
	bus.Handled = true

	if event.Message.MessageType != models.MessageTypeText {
		logger.Info("replying to unsupported message type")
		if err = p.sender.SendText(ctx, openID, p.unsupported); err != nil {
			return bus, errors.Wrap(err, "failed to reply to unsupported message")
		}
		return bus, nil
	}

	prompt, err := Prompt(event.Message)
	if err != nil {
		return bus, err
	}
	if prompt == "" {
		logger.Info("ignoring empty message")
		return bus, nil
	}

	logger.Debug("dispatching reply...", slog.String("prompt", helpers.Truncate(prompt, 64)))
	err = p.dispatcher.Submit(ctx, "reply:"+event.Message.MessageID, func(ctx context.Context) error {
		return p.reply(ctx, logger, openID, prompt)
	})
	return bus, err
}

func (p *messageReceiveProcessor) reply(ctx context.Context, logger *slog.Logger, openID, prompt string) error {
	content, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return errors.Wrap(err, "failed to generate reply")
	}
	if strings.TrimSpace(content) == "" {
		logger.Warn("generated reply is empty, nothing to send")
		return nil
	}
	if err = p.sender.SendText(ctx, openID, content); err != nil {
		return errors.Wrap(err, "failed to send reply")
	}
	logger.Info("reply sent", slog.Int("length", len(content)))
	return nil
}

// Prompt extracts the text of a text message, without its mention placeholders.
func Prompt(message models.Message) (string, error) {
	var content models.TextContent
	if err := json.Unmarshal([]byte(message.Content), &content); err != nil {
		return "", errors.Wrap(err, "invalid text message content")
	}
	text := content.Text
	for _, mention := range message.Mentions {
		if mention.Key != "" {
			text = strings.ReplaceAll(text, mention.Key, "")
		}
	}
	return strings.TrimSpace(text), nil
}
