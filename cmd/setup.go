package cmd

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/isometry/lark-ai-bridge/internal/config"
	"github.com/isometry/lark-ai-bridge/internal/controllers/aws"
	"github.com/isometry/lark-ai-bridge/internal/controllers/lark"
	"github.com/isometry/lark-ai-bridge/internal/controllers/notion"
	"github.com/isometry/lark-ai-bridge/internal/credentials"
	"github.com/isometry/lark-ai-bridge/internal/dedupe"
	"github.com/isometry/lark-ai-bridge/internal/handler"
	"github.com/isometry/lark-ai-bridge/internal/runtime"
	"github.com/isometry/lark-ai-bridge/internal/validation"
	"github.com/isometry/lark-ai-bridge/internal/worker"
	"github.com/pkg/errors"
)

// application holds the runtime serving callbacks and what has to be released on shutdown.
type application struct {
	runtime      *runtime.Runtime
	pool         *worker.Pool
	deduplicator dedupe.Deduplicator
}

// setup builds the controllers, the handler and the runtime from the configuration.
func setup(ctx context.Context, dispatch string) (*application, error) {
	creds := credentials.Credentials{
		AppID:             config.Lark.AppID,
		AppSecret:         config.Lark.AppSecret,
		VerificationToken: config.Lark.VerificationToken,
		EncryptKey:        config.Lark.EncryptKey,
		NotionToken:       config.AI.Token,
		NotionSpaceID:     config.AI.SpaceID,
	}

	archive := config.Global.S3.Upload.Enabled && config.Global.S3.Upload.BucketName != ""
	var awsCtl *aws.Controller
	if archive || config.Global.Credentials.Source == config.CredentialsSourceSSM {
		logger.Debug("creating AWS controller...")
		var err error
		awsCtl, err = aws.NewController(
			aws.WithLogger(logger.With("component", "aws-controller")),
			aws.WithContext(ctx),
			aws.WithS3PathStyle(config.Global.S3.Upload.PathStyle))
		if err != nil {
			return nil, errors.Wrap(err, "failed to create AWS controller")
		}
	}
	if config.Global.Credentials.Source == config.CredentialsSourceSSM {
		if err := credentials.Resolve(awsCtl, config.Global.Credentials.SSMKey, &creds, logger); err != nil {
			return nil, err
		}
	}
	if creds.VerificationToken == "" {
		return nil, errors.New("missing Lark verification token [VERIFICATION_TOKEN]")
	}

	logger.Debug("creating Lark controller...")
	larkCtl, err := lark.NewController(
		lark.WithLogger(logger.With("component", "lark-controller")),
		lark.WithContext(ctx),
		lark.WithHost(config.Lark.Host),
		lark.WithCredentials(creds.AppID, creds.AppSecret),
		lark.WithTimeout(config.Lark.Timeout),
		lark.WithRateLimit(config.Lark.RateLimit.RPS, config.Lark.RateLimit.Burst))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Lark controller")
	}

	logger.Debug("creating Notion controller...")
	notionCtl, err := notion.NewController(
		notion.WithLogger(logger.With("component", "notion-controller")),
		notion.WithHost(config.AI.Host),
		notion.WithCredentials(creds.NotionToken, creds.NotionSpaceID),
		notion.WithModel(config.AI.Model),
		notion.WithPromptType(config.AI.PromptType),
		notion.WithTimeout(config.AI.Timeout))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Notion controller")
	}

	deduplicator, err := dedupe.New(config.Bridge.Dedupe.Backend, config.Bridge.Dedupe.TTL, config.Bridge.Dedupe.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create de-duplicator")
	}

	app := &application{deduplicator: deduplicator}
	var dispatcher worker.Dispatcher = worker.Inline{}
	if dispatch == config.DispatchAsync {
		app.pool = worker.NewPool(config.Bridge.Workers,
			worker.WithLogger(logger),
			worker.WithTaskTimeout(config.ReplyTimeout()))
		dispatcher = app.pool
	}

	opts := []handler.Option{
		handler.WithLogger(logger.With("component", "handler")),
		handler.WithVerifier(validation.NewVerifier(creds.VerificationToken, creds.EncryptKey)),
		handler.WithGenerator(notionCtl),
		handler.WithSender(larkCtl),
		handler.WithDispatcher(dispatcher),
		handler.WithDeduplicator(deduplicator),
		handler.WithUnsupportedMessage(config.Bridge.UnsupportedMessage),
	}
	if archive {
		opts = append(opts, handler.WithArchiver(awsCtl, config.Global.S3.Upload.BucketName))
	}
	logger.Debug("creating handler...")
	hdl, err := handler.NewHandler(opts...)
	if err != nil {
		_ = app.shutdown(ctx)
		return nil, errors.Wrap(err, "failed to create handler")
	}

	logger.Debug("creating runtime...")
	app.runtime = runtime.NewRuntime(hdl,
		runtime.WithLogger(logger.With("component", "runtime")),
		runtime.WithLambdaPayloadType(config.Lambda.PayloadType))
	logger.Info("bridge ready",
		slog.String("dispatch", dispatch),
		slog.String("dedupe", config.Bridge.Dedupe.Backend),
		slog.Bool("encrypted", creds.EncryptKey != ""),
		slog.Bool("archive", archive))
	return app, nil
}

// shutdown drains the pending replies and releases the de-duplicator.
func (a *application) shutdown(ctx context.Context) error {
	var errs []error
	if a.pool != nil {
		errs = append(errs, a.pool.Shutdown(ctx))
	}
	if a.deduplicator != nil {
		errs = append(errs, a.deduplicator.Close())
	}
	return stderrors.Join(errs...)
}
