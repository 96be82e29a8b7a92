package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/isometry/lark-ai-bridge/internal/config"
	"github.com/spf13/cobra"
)

func cmdService() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "service",
		Aliases: []string{"s", "serve", "server"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger = logger.With("mode", config.ModeService)
			logger.Info("spawning...")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := setup(ctx, config.Bridge.Dispatch)
			if err != nil {
				return err
			}

			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", app.runtime.Healthz)
			mux.Handle(config.Service.Path, app.runtime)

			s := &http.Server{
				Handler:      mux,
				Addr:         net.JoinHostPort(config.Service.Addr, config.Service.Port),
				WriteTimeout: config.Service.Timeout,
				ReadTimeout:  config.Service.Timeout,
				IdleTimeout:  config.Service.Timeout,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Info("serving...", slog.String("address", s.Addr), slog.String("path", config.Service.Path), slog.String("timeout", config.Service.Timeout.String()))
				serveErr <- s.ListenAndServe()
			}()

			select {
			case err = <-serveErr:
			case <-ctx.Done():
				logger.Info("shutting down...")
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.Service.ShutdownTimeout)
			defer cancel()
			if shutdownErr := s.Shutdown(shutdownCtx); shutdownErr != nil {
				logger.Error("failed to shut down server", slog.Any("error", shutdownErr))
			}
			if shutdownErr := app.shutdown(shutdownCtx); shutdownErr != nil {
				logger.Error("failed to drain pending replies", slog.Any("error", shutdownErr))
			}

			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	bindEnvMap(cmd, svcEnvMapString)
	bindEnvMap(cmd, svcEnvMapDuration)

	return cmd
}
