package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/isometry/lark-ai-bridge/internal/helpers"
	"github.com/isometry/lark-ai-bridge/internal/models"
)

// Archiver stores an object in a bucket.
type Archiver interface {
	PutS3Object(ctx context.Context, bucket, key string, body []byte) error
}

type s3ArchiverProcessor struct {
	logger   *slog.Logger
	archiver Archiver
	bucket   string
}

// NewS3ArchiverPreProcessor returns a Processor storing every decrypted event in bucket.
// Upload failures are logged and never fail the callback.
func NewS3ArchiverPreProcessor(archiver Archiver, bucket string, opts ...Option) Processor {
	_inst := &s3ArchiverProcessor{archiver: archiver, bucket: bucket, logger: helpers.NewNoopLogger()}
	applyOpts(_inst, opts...)
	return _inst
}

func (p *s3ArchiverProcessor) SetLogger(logger *slog.Logger) {
	p.logger = logger.WithGroup("pre-processor:s3-archiver")
}

func (p *s3ArchiverProcessor) Process(ctx context.Context, req any) (*models.Bus, error) {
	bus, err := busFrom(req)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if bus.Header != nil && bus.Header.EventID != "" {
		id = bus.Header.EventID
	}
	key := fmt.Sprintf("%s/%s.%s.json", bus.EventType, time.Now().UTC().Format(time.RFC3339Nano), id)

	if err = p.archiver.PutS3Object(ctx, p.bucket, key, bus.Payload); err != nil {
		p.logger.Warn("failed to archive event in S3", slog.String("key", key), slog.Any("error", err))
		return bus, nil
	}
	p.logger.Debug("event archived", slog.String("bucket", p.bucket), slog.String("key", key))
	return bus, nil
}
