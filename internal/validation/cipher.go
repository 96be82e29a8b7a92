package validation

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/isometry/lark-ai-bridge/internal/apierror"
	"github.com/pkg/errors"
)

type encryptedEnvelope struct {
	Encrypt *string `json:"encrypt"`
}

// Open returns the plaintext JSON of a callback body. Once an encrypt key is configured, Lark encrypts every
// callback and bodies without an "encrypt" field are rejected; otherwise they are returned unchanged.
func (v *Verifier) Open(body []byte) ([]byte, error) {
	var envelope encryptedEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.Wrap(err, "invalid callback body")
	}
	if envelope.Encrypt == nil {
		if v.Encrypted() {
			return nil, apierror.NewVerificationError("callback is not encrypted")
		}
		return body, nil
	}
	if !v.Encrypted() {
		return nil, errors.New("encrypt key is necessary to decrypt the callback")
	}
	plaintext, err := v.Decrypt(*envelope.Encrypt)
	if err != nil {
		return nil, err
	}
	if !json.Valid(plaintext) {
		return nil, errors.New("decrypted callback is not valid JSON")
	}
	return plaintext, nil
}

// Decrypt decrypts an encrypted callback: base64(iv + AES-256-CBC(payload)) keyed with sha256(encryptKey).
func (v *Verifier) Decrypt(encrypted string) ([]byte, error) {
	buf, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode encrypted payload")
	}
	if len(buf) < 2*aes.BlockSize || len(buf)%aes.BlockSize != 0 {
		return nil, errors.Errorf("invalid encrypted payload length %d", len(buf))
	}

	key := sha256.Sum256([]byte(v.encryptKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cipher")
	}
	iv, ciphertext := buf[:aes.BlockSize], buf[aes.BlockSize:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > aes.BlockSize || padding > len(data) {
		return nil, errors.Errorf("invalid padding value %d", padding)
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
