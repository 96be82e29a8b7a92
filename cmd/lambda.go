package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/isometry/lark-ai-bridge/internal/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func cmdLambda() *cobra.Command {
	cmd := &cobra.Command{
		Use: "lambda",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger = logger.With("mode", config.ModeLambda)

			// The execution environment is frozen once the response is returned: replies are produced inline.
			app, err := setup(cmd.Context(), config.DispatchSync)
			if err != nil {
				return errors.Wrap(err, "failed to setup lambda")
			}

			logger.Info("lambda starting...", slog.String("payloadType", config.Lambda.PayloadType))
			lambda.StartWithOptions(app.runtime.Lambda,
				lambda.WithContext(cmd.Context()),
				lambda.WithEnableSIGTERM(func() {
					ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
					defer cancel()
					_ = app.shutdown(ctx)
				}))
			return nil
		},
	}

	bindEnvMap(cmd, lambdaEnvMapString)

	return cmd
}
