package cmd

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var replacer = strings.NewReplacer(".", "_", "-", "_")

type argType interface {
	string | bool | int | float64 | time.Duration
}

type boundEnvVar[T argType] struct {
	Name, Description string
	Env, Short        *string
	// Count binds an int as a repeatable counter flag (-vvv) instead of a plain integer.
	Count  bool
	Hidden bool
}

func (b boundEnvVar[T]) envName() string {
	if b.Env != nil {
		return *b.Env
	}
	return strings.ToUpper(replacer.Replace(b.Name))
}

func bindEnvMap[T argType](cmd *cobra.Command, m map[*T]boundEnvVar[T]) {
	for v, cfg := range m {
		env := cfg.envName()
		desc := fmt.Sprintf("[%s] %s", env, cfg.Description)
		_, fromEnv := os.LookupEnv(env)
		_ = viper.BindEnv(env, env)

		switch vt := any(v).(type) {
		case *string:
			def := *vt
			if fromEnv {
				def = viper.GetString(env)
			}
			if cfg.Short == nil {
				cmd.PersistentFlags().StringVar(vt, cfg.Name, def, desc)
			} else {
				cmd.PersistentFlags().StringVarP(vt, cfg.Name, *cfg.Short, def, desc)
			}
		case *bool:
			def := *vt
			if fromEnv {
				def = viper.GetBool(env)
			}
			if cfg.Short == nil {
				cmd.PersistentFlags().BoolVar(vt, cfg.Name, def, desc)
			} else {
				cmd.PersistentFlags().BoolVarP(vt, cfg.Name, *cfg.Short, def, desc)
			}
		case *int:
			def := *vt
			if fromEnv {
				def = viper.GetInt(env)
			}
			switch {
			case cfg.Count && cfg.Short == nil:
				cmd.PersistentFlags().CountVar(vt, cfg.Name, desc)
			case cfg.Count:
				cmd.PersistentFlags().CountVarP(vt, cfg.Name, *cfg.Short, desc)
			case cfg.Short == nil:
				cmd.PersistentFlags().IntVar(vt, cfg.Name, def, desc)
			default:
				cmd.PersistentFlags().IntVarP(vt, cfg.Name, *cfg.Short, def, desc)
			}
			if cfg.Count {
				_ = cmd.PersistentFlags().Lookup(cfg.Name).Value.Set(strconv.Itoa(def))
			}
		case *float64:
			def := *vt
			if fromEnv {
				def = viper.GetFloat64(env)
			}
			if cfg.Short == nil {
				cmd.PersistentFlags().Float64Var(vt, cfg.Name, def, desc)
			} else {
				cmd.PersistentFlags().Float64VarP(vt, cfg.Name, *cfg.Short, def, desc)
			}
		case *time.Duration:
			def := *vt
			if fromEnv {
				def = viper.GetDuration(env)
			}
			if cfg.Short == nil {
				cmd.PersistentFlags().DurationVar(vt, cfg.Name, def, desc)
			} else {
				cmd.PersistentFlags().DurationVarP(vt, cfg.Name, *cfg.Short, def, desc)
			}
		default:
			log.Panicf("command-args parsing error: unhandled default case for type %T", vt)
		}

		_ = viper.BindPFlag(cfg.Name, cmd.PersistentFlags().Lookup(cfg.Name))
		_ = viper.BindEnv(cfg.Name, env)

		if cfg.Hidden {
			_ = cmd.PersistentFlags().MarkHidden(cfg.Name)
		}
	}
}

// lookupConfigPath returns the value of the -c/--config flag before cobra parses the command line, so that
// the file can provide the flag defaults.
func lookupConfigPath(args []string, fallback string) string {
	for i, arg := range args {
		switch {
		case arg == "--":
			return fallback
		case arg == "-c" || arg == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		case strings.HasPrefix(arg, "-c") && len(arg) > 2 && !strings.HasPrefix(arg, "--"):
			return strings.TrimPrefix(strings.TrimPrefix(arg, "-c"), "=")
		}
	}
	return fallback
}
