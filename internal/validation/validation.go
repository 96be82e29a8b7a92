// Package validation provides the checks applied to Lark callbacks before they are dispatched:
// verification token, request signature and payload decryption.
package validation

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/isometry/lark-ai-bridge/internal/apierror"
)

// Lark request headers used for signature validation.
const (
	TimestampHeader = "X-Lark-Request-Timestamp"
	NonceHeader     = "X-Lark-Request-Nonce"
	SignatureHeader = "X-Lark-Signature"
)

// Verifier holds the secrets configured for the Lark application.
type Verifier struct {
	token      string
	encryptKey string
}

// NewVerifier creates a Verifier for the given verification token and (optional) encrypt key.
func NewVerifier(token, encryptKey string) *Verifier {
	return &Verifier{token: token, encryptKey: encryptKey}
}

// Encrypted reports whether an encrypt key is configured.
func (v *Verifier) Encrypted() bool {
	return v.encryptKey != ""
}

// ValidateToken compares the token carried by a callback with the configured verification token.
func (v *Verifier) ValidateToken(token string) error {
	if subtle.ConstantTimeCompare([]byte(token), []byte(v.token)) != 1 {
		return apierror.NewVerificationError("invalid verification token")
	}
	return nil
}

// ValidateSignature checks the X-Lark-Signature header against sha256(timestamp + nonce + encryptKey + body).
// Lark only signs requests when an encrypt key is configured, so the check is skipped otherwise.
// Header keys are expected in lower case.
func (v *Verifier) ValidateSignature(body []byte, headers map[string]string) error {
	if !v.Encrypted() {
		return nil
	}
	timestamp, found := headers[strings.ToLower(TimestampHeader)]
	if !found {
		return apierror.NewVerificationError("missing %s header", TimestampHeader)
	}
	nonce, found := headers[strings.ToLower(NonceHeader)]
	if !found {
		return apierror.NewVerificationError("missing %s header", NonceHeader)
	}
	signature, found := headers[strings.ToLower(SignatureHeader)]
	if !found {
		return apierror.NewVerificationError("missing %s header", SignatureHeader)
	}

	expected := Signature(timestamp, nonce, v.encryptKey, body)
	if subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
		return apierror.NewVerificationError("invalid signature")
	}
	return nil
}

// Signature computes the hex encoded request signature Lark attaches to signed callbacks.
func Signature(timestamp, nonce, encryptKey string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(timestamp + nonce + encryptKey))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
