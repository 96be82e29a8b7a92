// Package credentials resolves the bridge secrets from the environment or from an SSM parameter.
package credentials

import (
	"encoding/json"
	"log/slog"

	"github.com/isometry/lark-ai-bridge/internal/helpers"
	"github.com/pkg/errors"
)

// Credentials holds every secret the bridge needs. The JSON shape is the one expected in the SSM parameter.
type Credentials struct {
	AppID             string `json:"app_id"`
	AppSecret         string `json:"app_secret"`
	VerificationToken string `json:"verification_token"`
	EncryptKey        string `json:"encrypt_key"`
	NotionToken       string `json:"notion_token"`
	NotionSpaceID     string `json:"notion_space_id"`
}

// SecretGetter reads a single, possibly encrypted, parameter.
type SecretGetter interface {
	GetSecret(key string, encrypted bool) (*string, error)
}

// Resolve fills the empty fields of creds with the values stored as a JSON document in the key parameter.
// Values already set take precedence.
func Resolve(getter SecretGetter, key string, creds *Credentials, logger *slog.Logger) error {
	if logger == nil {
		logger = helpers.NewNoopLogger()
	}
	if key == "" {
		return errors.New("missing SSM credentials key")
	}
	value, err := getter.GetSecret(key, true)
	if err != nil {
		return errors.Wrap(err, "failed to retrieve credentials")
	}
	raw := helpers.String(value)
	if raw == "" {
		return errors.Errorf("credentials parameter %s is empty", key)
	}
	var stored Credentials
	if err = json.Unmarshal([]byte(raw), &stored); err != nil {
		return errors.Wrapf(err, "failed to decode credentials parameter %s", key)
	}

	filled := 0
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&creds.AppID, stored.AppID},
		{&creds.AppSecret, stored.AppSecret},
		{&creds.VerificationToken, stored.VerificationToken},
		{&creds.EncryptKey, stored.EncryptKey},
		{&creds.NotionToken, stored.NotionToken},
		{&creds.NotionSpaceID, stored.NotionSpaceID},
	} {
		if *f.dst == "" && f.src != "" {
			*f.dst = f.src
			filled++
		}
	}
	logger.Debug("credentials resolved from SSM", slog.String("key", key), slog.Int("filled", filled))
	return nil
}
