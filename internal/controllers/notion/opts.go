package notion

import (
	"log/slog"
	"net/http"
	"time"
)

// WithLogger sets a custom slog.Logger instance for the Controller.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithHost overrides the Notion endpoint.
func WithHost(host string) Option {
	return func(c *Controller) {
		if host != "" {
			c.host = host
		}
	}
}

// WithCredentials sets the token_v2 cookie value and the workspace (space) id.
func WithCredentials(token, spaceID string) Option {
	return func(c *Controller) {
		c.token = token
		c.spaceID = spaceID
	}
}

// WithModel sets the completion model.
func WithModel(model string) Option {
	return func(c *Controller) {
		if model != "" {
			c.model = model
		}
	}
}

// WithPromptType selects how the prompt is presented to Notion AI.
func WithPromptType(promptType string) Option {
	return func(c *Controller) {
		if promptType != "" {
			c.promptType = promptType
		}
	}
}

// WithTimeout sets the timeout of a completion request. Ignored when WithHTTPClient is used.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Controller) {
		c.httpClient = client
	}
}
