package cmd

import (
	"time"

	"github.com/isometry/lark-ai-bridge/internal/config"
	"github.com/isometry/lark-ai-bridge/internal/helpers"
)

var envMapString = map[*string]boundEnvVar[string]{
	&config.Global.Mode: {
		Name:        "mode",
		Description: "The application runtime mode. Possible values are 'service' and 'lambda'",
		Short:       helpers.Ptr("m"),
	},
	&config.Global.Credentials.Source: {
		Name:        "credentials-source",
		Description: "Where secrets left empty are read from. Supported values are 'env' and 'ssm'",
	},
	&config.Global.Credentials.SSMKey: {
		Name:        "credentials-ssm-key",
		Description: "The SSM parameter holding the secrets as a JSON document",
	},
	&config.Global.S3.Upload.BucketName: {
		Name:        "s3-archive-bucket",
		Description: "The S3 bucket to archive received events to",
		Env:         helpers.Ptr("S3_BUCKET_NAME"),
	},
	&config.Lark.AppID: {
		Name:        "lark-app-id",
		Description: "The Lark application id",
		Env:         helpers.Ptr("APP_ID"),
	},
	&config.Lark.AppSecret: {
		Name:        "lark-app-secret",
		Description: "The Lark application secret",
		Env:         helpers.Ptr("APP_SECRET"),
	},
	&config.Lark.VerificationToken: {
		Name:        "lark-verification-token",
		Description: "The verification token carried by every Lark callback",
		Env:         helpers.Ptr("VERIFICATION_TOKEN"),
	},
	&config.Lark.EncryptKey: {
		Name:        "lark-encrypt-key",
		Description: "The key callbacks are encrypted and signed with. If not specified, callbacks are expected in clear",
		Env:         helpers.Ptr("ENCRYPT_KEY"),
	},
	&config.Lark.Host: {
		Name:        "lark-host",
		Description: "The Lark open platform endpoint",
	},
	&config.AI.Token: {
		Name:        "notion-token",
		Description: "The Notion token_v2 cookie value",
		Env:         helpers.Ptr("NOTION_TOKEN"),
	},
	&config.AI.SpaceID: {
		Name:        "notion-space-id",
		Description: "The Notion workspace id",
		Env:         helpers.Ptr("NOTION_SPACE_ID"),
	},
	&config.AI.Host: {
		Name:        "notion-host",
		Description: "The Notion endpoint",
	},
	&config.AI.Model: {
		Name:        "notion-model",
		Description: "The Notion AI model",
	},
	&config.AI.PromptType: {
		Name:        "notion-prompt-type",
		Description: "How prompts are presented to Notion AI. Supported values are 'blogPost' and 'helpMeWrite'",
	},
	&config.Bridge.Dispatch: {
		Name:        "dispatch",
		Description: "How replies are produced. 'async' acknowledges callbacks first, 'sync' replies before acknowledging",
	},
	&config.Bridge.UnsupportedMessage: {
		Name:        "unsupported-message",
		Description: "The reply sent for message types other than text",
	},
	&config.Bridge.Dedupe.Backend: {
		Name:        "dedupe-backend",
		Description: "The de-duplication backend of redelivered events. Supported values are 'memory', 'redis' and 'none'",
	},
	&config.Bridge.Dedupe.RedisURL: {
		Name:        "dedupe-redis-url",
		Description: "The Redis URL used by the redis de-duplication backend",
		Env:         helpers.Ptr("REDIS_URL"),
	},
}

var envMapBool = map[*bool]boundEnvVar[bool]{
	&config.Global.Logging.CallerTrace: {
		Name:        "verbosity-caller-trace",
		Description: "Enable caller trace in logs",
		Short:       helpers.Ptr("V"),
	},
	&config.Global.S3.Upload.Enabled: {
		Name:        "s3-archive",
		Description: "Enable archiving of received events to S3",
	},
	&config.Global.S3.Upload.PathStyle: {
		Name:        "s3-path-style",
		Description: "Address the S3 bucket by path, as S3-compatible stores often require",
	},
}

var envMapInt = map[*int]boundEnvVar[int]{
	&config.Global.Logging.Verbosity: {
		Name:        "verbosity",
		Description: "Increase logger verbosity (default WarnLevel)",
		Short:       helpers.Ptr("v"),
		Count:       true,
	},
	&config.Bridge.Workers: {
		Name:        "workers",
		Description: "The number of replies produced concurrently in async dispatch",
		Short:       helpers.Ptr("w"),
	},
	&config.Lark.RateLimit.Burst: {
		Name:        "lark-rate-burst",
		Description: "The burst of outgoing Lark messages",
	},
}

var envMapFloat = map[*float64]boundEnvVar[float64]{
	&config.Lark.RateLimit.RPS: {
		Name:        "lark-rate-limit",
		Description: "The maximum number of outgoing Lark messages per second. Zero disables the limit",
	},
}

var envMapDuration = map[*time.Duration]boundEnvVar[time.Duration]{
	&config.Lark.Timeout: {
		Name:        "lark-timeout",
		Description: "The timeout of Lark API calls",
	},
	&config.AI.Timeout: {
		Name:        "notion-timeout",
		Description: "The timeout of a Notion AI completion",
	},
	&config.Bridge.Dedupe.TTL: {
		Name:        "dedupe-ttl",
		Description: "How long event ids are remembered for de-duplication",
	},
}
