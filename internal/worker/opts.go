package worker

import (
	"log/slog"
	"time"
)

// WithLogger sets a custom slog.Logger instance for the Pool.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithTaskTimeout bounds the duration of every task.
func WithTaskTimeout(timeout time.Duration) Option {
	return func(p *Pool) {
		p.taskTimeout = timeout
	}
}

// WithBacklogWarning sets the queue length from which a warning is logged, at most once a minute. Zero disables it.
func WithBacklogWarning(pending int) Option {
	return func(p *Pool) {
		p.warnBacklog = pending
	}
}
