package lark

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// WithLogger sets a custom slog.Logger instance for the Controller.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithContext sets the context used when refreshing the tenant access token.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) {
		c.ctx = ctx
	}
}

// WithHost overrides the open platform endpoint.
func WithHost(host string) Option {
	return func(c *Controller) {
		if host != "" {
			c.host = host
		}
	}
}

// WithCredentials sets the application id and secret.
func WithCredentials(appID, appSecret string) Option {
	return func(c *Controller) {
		c.appID = appID
		c.appSecret = appSecret
	}
}

// WithTimeout sets the timeout of each HTTP request. Ignored when WithHTTPClient is used.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHTTPClient sets the base HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Controller) {
		c.httpClient = client
	}
}

// WithRateLimit limits outgoing messages to rps per second with the given burst. A non-positive rps disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Controller) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}
