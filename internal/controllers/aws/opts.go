package aws

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// WithLogger sets a custom slog.Logger instance for the Controller struct to use for logging operations.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Controller) {
		a.logger = logger
	}
}

// WithContext sets the context used when loading the configuration and fetching secrets.
func WithContext(ctx context.Context) Option {
	return func(a *Controller) {
		a.ctx = ctx
	}
}

// WithConfig uses cfg instead of the default AWS configuration chain.
func WithConfig(cfg *aws.Config) Option {
	return func(a *Controller) {
		a.config = cfg
	}
}

// WithS3PathStyle addresses buckets by path rather than by virtual host, as S3-compatible stores often require.
func WithS3PathStyle(enabled bool) Option {
	return func(a *Controller) {
		a.pathStyle = enabled
	}
}
