// Package cmd provides the entrypoint for the lark-ai-bridge cli.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/isometry/lark-ai-bridge/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFilePath string
	logger         *slog.Logger
)

// New returns the root command for the lark-ai-bridge.
func New() *cobra.Command {
	// Secrets are commonly kept in a .env file next to the binary; existing variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	cmd := &cobra.Command{
		Use:          "lark-ai-bridge",
		Short:        "Answers Lark messages with Notion AI",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			config.Global.Mode = strings.TrimSpace(config.Global.Mode)
			logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				AddSource: config.Global.Logging.CallerTrace,
				Level:     slog.LevelWarn - slog.Level(config.Global.Logging.Verbosity*4),
			}))
			return config.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch config.Global.Mode {
			case config.ModeService:
				return cmdService().RunE(cmd, args)
			case config.ModeLambda:
				return cmdLambda().RunE(cmd, args)
			default:
				return fmt.Errorf("invalid mode: %s", config.Global.Mode)
			}
		},
	}

	// Root command flags
	configFilePath = lookupConfigPath(os.Args[1:], "config.yaml")
	cmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", configFilePath, "path to the configuration file")

	// Configuration loading & defaults
	if err := errors.Join(
		config.SetDefaults(),
		config.LoadFromFile(configFilePath),
	); err != nil {
		panic(err)
	}

	// Dynamic flags
	setupDynamicFlags(cmd)

	// Subcommands
	cmd.AddCommand(
		cmdLambda(),
		cmdService(),
	)

	return cmd
}

func setupDynamicFlags(cmd *cobra.Command) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(replacer)

	bindEnvMap(cmd, envMapString)
	bindEnvMap(cmd, envMapBool)
	bindEnvMap(cmd, envMapInt)
	bindEnvMap(cmd, envMapFloat)
	bindEnvMap(cmd, envMapDuration)
}
