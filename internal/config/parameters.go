// Package config provides a centralized entrypoint for the application parameters.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/creasty/defaults"
	"go.yaml.in/yaml/v3"
)

var (
	// Global is a struct that contains the global configuration.
	Global global
	// Lark is a struct that contains the configuration of the Lark application.
	Lark lark
	// AI is a struct that contains the configuration of the Notion AI backend.
	AI ai
	// Bridge is a struct that contains the configuration of the message dispatch.
	Bridge bridge
	// Service is a struct that contains the configuration for the service mode.
	Service service
	// Lambda is a struct that contains the configuration for the lambda mode.
	Lambda lambda
)

// Runtime modes.
const (
	ModeService = "service"
	ModeLambda  = "lambda"
)

// Credentials sources.
const (
	CredentialsSourceEnv = "env"
	CredentialsSourceSSM = "ssm"
)

// Dispatch modes.
const (
	DispatchAsync = "async"
	DispatchSync  = "sync"
)

// De-duplication backends.
const (
	DedupeMemory = "memory"
	DedupeRedis  = "redis"
	DedupeNone   = "none"
)

type global struct {
	// Mode is the runtime mode of the application.
	Mode string `yaml:"mode,omitempty" default:"service"`
	// Logging is a struct that contains the logging configuration.
	Logging struct {
		// Verbosity is the verbosity level of the application. It represents slog levels.
		Verbosity int `yaml:"verbosity,omitempty"`
		// CallerTrace is a flag that enables the caller trace in the logger.
		CallerTrace bool `yaml:"callerTrace,omitempty"`
	} `yaml:"logging,omitempty"`
	// S3 is a struct that contains the configuration for S3.
	S3 struct {
		Upload struct {
			BucketName string `yaml:"bucketName,omitempty"`
			Enabled    bool   `yaml:"enabled,omitempty"`
			PathStyle  bool   `yaml:"pathStyle,omitempty"`
		} `yaml:"upload,omitempty"`
	} `yaml:"s3,omitempty"`
	// Credentials selects where secrets left empty are read from.
	Credentials struct {
		Source string `yaml:"source,omitempty" default:"env"`
		// SSMKey is the name of the SSM parameter holding the secrets as a JSON document.
		SSMKey string `yaml:"ssmKey,omitempty" default:"lark-ai-bridge-creds"`
	} `yaml:"credentials,omitempty"`
}

type lark struct {
	AppID             string `yaml:"appId,omitempty"`
	AppSecret         string `yaml:"appSecret,omitempty"`
	VerificationToken string `yaml:"verificationToken,omitempty"`
	EncryptKey        string `yaml:"encryptKey,omitempty"`
	// Host is the open platform endpoint, e.g. https://open.larksuite.com for Lark outside mainland China.
	Host    string        `yaml:"host,omitempty" default:"https://open.feishu.cn"`
	Timeout time.Duration `yaml:"timeout,omitempty" default:"10s"`
	// RateLimit caps outbound messages per second. Zero disables the limit.
	RateLimit struct {
		RPS   float64 `yaml:"rps,omitempty" default:"50"`
		Burst int     `yaml:"burst,omitempty" default:"10"`
	} `yaml:"rateLimit,omitempty"`
}

type ai struct {
	Token      string        `yaml:"token,omitempty"`
	SpaceID    string        `yaml:"spaceId,omitempty"`
	Host       string        `yaml:"host,omitempty" default:"https://www.notion.so"`
	Model      string        `yaml:"model,omitempty" default:"openai-4"`
	PromptType string        `yaml:"promptType,omitempty" default:"blogPost"`
	Timeout    time.Duration `yaml:"timeout,omitempty" default:"60s"`
}

type bridge struct {
	// Workers is the number of concurrent generate-and-reply tasks in async dispatch.
	Workers int `yaml:"workers,omitempty" default:"10"`
	// Dispatch is either async (acknowledge first) or sync (reply before acknowledging).
	Dispatch string `yaml:"dispatch,omitempty" default:"async"`
	// UnsupportedMessage is sent back to the sender of a non-text message.
	UnsupportedMessage string `yaml:"unsupportedMessage,omitempty" default:"ERROR：仅支持文本消息"`
	Dedupe             struct {
		Backend  string        `yaml:"backend,omitempty" default:"memory"`
		TTL      time.Duration `yaml:"ttl,omitempty" default:"1h"`
		RedisURL string        `yaml:"redisUrl,omitempty"`
	} `yaml:"dedupe,omitempty"`
}

type service struct {
	Path    string        `yaml:"path,omitempty" default:"/"`
	Addr    string        `yaml:"addr,omitempty"`
	Port    string        `yaml:"port,omitempty" default:"3000"`
	Timeout time.Duration `yaml:"timeout,omitempty" default:"5s"`
	// ShutdownTimeout bounds the wait for pending replies on shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout,omitempty" default:"30s"`
}

type lambda struct {
	PayloadType string `yaml:"payloadType,omitempty" default:"api-gateway-v2"`
}

// SetDefaults sets the default values for the configuration.
func SetDefaults() error {
	return errors.Join(
		defaults.Set(&Global),
		defaults.Set(&Lark),
		defaults.Set(&AI),
		defaults.Set(&Bridge),
		defaults.Set(&Service),
		defaults.Set(&Lambda),
	)
}

// LoadFromFile loads the configuration from a file on top of the current values.
func LoadFromFile(path string) error {
	if len(path) == 0 {
		return nil
	}
	fstat, err := os.Stat(path)
	if err != nil {
		return nil //nolint:nilerr // If the file does not exist, we ignore it.
	}
	if fstat.IsDir() {
		return fmt.Errorf("configuration file %s is a directory", path)
	}
	if !fstat.Mode().IsRegular() {
		return fmt.Errorf("configuration file %s is not a regular file", path)
	}

	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
	type all struct {
		Global  global  `yaml:"global,omitempty"`
		Lark    lark    `yaml:"lark,omitempty"`
		AI      ai      `yaml:"ai,omitempty"`
		Bridge  bridge  `yaml:"bridge,omitempty"`
		Service service `yaml:"service,omitempty"`
		Lambda  lambda  `yaml:"lambda,omitempty"`
	}
	a := all{Global: Global, Lark: Lark, AI: AI, Bridge: Bridge, Service: Service, Lambda: Lambda}
	if err = yaml.Unmarshal(content, &a); err != nil {
		return fmt.Errorf("failed to unmarshal configuration file %s: %w", path, err)
	}
	Global = a.Global
	Lark = a.Lark
	AI = a.AI
	Bridge = a.Bridge
	Service = a.Service
	Lambda = a.Lambda

	return nil
}

// ReplyTimeout is the longest a reply can take: one completion, one tenant token refresh and one send.
func ReplyTimeout() time.Duration {
	return AI.Timeout + 2*Lark.Timeout
}

// Validate reports configuration values outside of their accepted set.
func Validate() error {
	var errs []error
	if Global.Mode != ModeService && Global.Mode != ModeLambda {
		errs = append(errs, fmt.Errorf("unsupported mode: %q", Global.Mode))
	}
	if s := Global.Credentials.Source; s != CredentialsSourceEnv && s != CredentialsSourceSSM {
		errs = append(errs, fmt.Errorf("unsupported credentials source: %q", s))
	}
	if d := Bridge.Dispatch; d != DispatchAsync && d != DispatchSync {
		errs = append(errs, fmt.Errorf("unsupported dispatch mode: %q", d))
	}
	switch Bridge.Dedupe.Backend {
	case DedupeMemory, DedupeNone:
	case DedupeRedis:
		if Bridge.Dedupe.RedisURL == "" {
			errs = append(errs, errors.New("redis de-duplication requires a redis URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported de-duplication backend: %q", Bridge.Dedupe.Backend))
	}
	if Global.Mode == ModeLambda {
		switch Lambda.PayloadType {
		case "api-gateway-v1", "api-gateway-v2", "lambda-url":
		default:
			errs = append(errs, fmt.Errorf("unsupported lambda payload type: %q", Lambda.PayloadType))
		}
	}
	if Global.Mode == ModeService && Bridge.Dispatch == DispatchSync && Service.Timeout < ReplyTimeout() {
		errs = append(errs, fmt.Errorf("sync dispatch needs a service timeout of at least %s (AI timeout + 2 x Lark timeout), got %s",
			ReplyTimeout(), Service.Timeout))
	}
	if Bridge.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", Bridge.Workers))
	}
	return errors.Join(errs...)
}
