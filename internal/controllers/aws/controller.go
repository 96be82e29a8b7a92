// Package aws provides the Controller used to read secrets from SSM Parameter Store and archive callbacks to S3.
package aws

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/smithy-go/logging"
	"github.com/isometry/lark-ai-bridge/internal/helpers"
	"github.com/pkg/errors"
)

// Controller wraps the S3 and SSM clients sharing a single AWS configuration.
type Controller struct {
	ctx    context.Context
	logger *slog.Logger

	config    *aws.Config
	pathStyle bool
	s3Client  *s3.Client
	ssmClient *ssm.Client
}

// Option defines a function type used to configure an instance of the Controller struct.
type Option func(*Controller)

// NewController initializes a Controller. Without WithConfig, the default AWS configuration chain is loaded.
func NewController(opts ...Option) (*Controller, error) {
	_inst := &Controller{}
	for _, opt := range opts {
		opt(_inst)
	}
	if _inst.logger == nil {
		_inst.logger = helpers.NewNoopLogger()
	}
	_inst.logger = _inst.logger.With("controller", "aws")
	if _inst.ctx == nil {
		_inst.ctx = context.Background()
	}
	if _inst.config == nil {
		_inst.logger.Debug("loading default AWS configuration...")
		cfg, err := config.LoadDefaultConfig(_inst.ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load AWS configuration")
		}
		_inst.config = &cfg
	}
	if _inst.config.Logger == nil {
		_inst.config.Logger = newAWSLogger(_inst.logger)
	}

	_inst.s3Client = s3.NewFromConfig(*_inst.config, func(o *s3.Options) {
		o.UsePathStyle = _inst.pathStyle
	})
	_inst.ssmClient = ssm.NewFromConfig(*_inst.config)
	return _inst, nil
}

// GetSecret retrieves the value of the SSM parameter named key, decrypting SecureString parameters when encrypted is set.
func (a *Controller) GetSecret(key string, encrypted bool) (*string, error) {
	a.logger.Debug("fetching SSM parameter...", slog.String("key", key))
	out, err := a.ssmClient.GetParameter(a.ctx, &ssm.GetParameterInput{
		Name:           aws.String(key),
		WithDecryption: aws.Bool(encrypted),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get SSM parameter %s", key)
	}
	if out.Parameter == nil {
		return nil, errors.Errorf("SSM parameter %s has no value", key)
	}
	return out.Parameter.Value, nil
}

// PutS3Object stores body as a JSON object under key. It is a no-op when bucket is empty.
func (a *Controller) PutS3Object(ctx context.Context, bucket, key string, body []byte) error {
	if bucket == "" {
		return nil
	}
	a.logger.Debug("uploading object to S3...", slog.String("bucket", bucket), slog.String("key", key))
	_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errors.Wrap(err, "failed to put object to S3")
	}
	return nil
}

type awsLogger struct {
	logger *slog.Logger
}

func newAWSLogger(logger *slog.Logger) *awsLogger {
	return &awsLogger{logger}
}

func (a *awsLogger) Logf(classification logging.Classification, format string, args ...any) {
	a.logger.Debug(fmt.Sprintf("[%v] %s", classification, fmt.Sprintf(format, args...)))
}
