package handler

import (
	"log/slog"

	"github.com/isometry/lark-ai-bridge/internal/dedupe"
	"github.com/isometry/lark-ai-bridge/internal/handler/processor"
	"github.com/isometry/lark-ai-bridge/internal/validation"
	"github.com/isometry/lark-ai-bridge/internal/worker"
)

// WithLogger sets the logger instance for the handler.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithVerifier sets the verifier checking the token, signature and encryption of callbacks.
func WithVerifier(verifier *validation.Verifier) Option {
	return func(h *Handler) {
		h.verifier = verifier
	}
}

// WithGenerator sets the AI backend generating replies.
func WithGenerator(generator processor.Generator) Option {
	return func(h *Handler) {
		h.generator = generator
	}
}

// WithSender sets the client delivering replies.
func WithSender(sender processor.Sender) Option {
	return func(h *Handler) {
		h.sender = sender
	}
}

// WithDispatcher sets how generate-and-reply tasks are executed.
func WithDispatcher(dispatcher worker.Dispatcher) Option {
	return func(h *Handler) {
		h.dispatcher = dispatcher
	}
}

// WithDeduplicator sets the de-duplicator of redelivered events.
func WithDeduplicator(deduplicator dedupe.Deduplicator) Option {
	return func(h *Handler) {
		h.deduplicator = deduplicator
	}
}

// WithArchiver enables archiving of every decrypted event in bucket.
func WithArchiver(archiver processor.Archiver, bucket string) Option {
	return func(h *Handler) {
		h.archiver = archiver
		h.bucket = bucket
	}
}

// WithUnsupportedMessage sets the reply sent for message types other than text.
func WithUnsupportedMessage(message string) Option {
	return func(h *Handler) {
		if message != "" {
			h.unsupported = message
		}
	}
}
