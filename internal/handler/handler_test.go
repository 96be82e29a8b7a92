package handler_test

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/isometry/lark-ai-bridge/internal/apierror"
	"github.com/isometry/lark-ai-bridge/internal/dedupe"
	"github.com/isometry/lark-ai-bridge/internal/handler"
	"github.com/isometry/lark-ai-bridge/internal/validation"
	"github.com/isometry/lark-ai-bridge/internal/worker"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken      = "v-token"
	testEncryptKey = "e-key"
	testOpenID     = "ou_123"
)

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	output  string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.output, f.err
}

func (f *fakeGenerator) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type sentMessage struct {
	OpenID, Text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendText(_ context.Context, openID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{OpenID: openID, Text: text})
	return f.err
}

func (f *fakeSender) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeArchiver struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeArchiver) PutS3Object(_ context.Context, _, key string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return f.err
}

func urlVerification(token string) string {
	return `{"type":"url_verification","token":"` + token + `","challenge":"c-1"}`
}

func messageEvent(eventID, token, messageType, content string) string {
	payload := map[string]any{
		"schema": "2.0",
		"header": map[string]any{
			"event_id":   eventID,
			"token":      token,
			"event_type": "im.message.receive_v1",
		},
		"event": map[string]any{
			"sender": map[string]any{
				"sender_id": map[string]any{"open_id": testOpenID},
			},
			"message": map[string]any{
				"message_id":   "om_" + eventID,
				"message_type": messageType,
				"content":      content,
				"mentions":     []map[string]any{{"key": "@_user_1", "name": "bot"}},
			},
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func textContent(text string) string {
	b, _ := json.Marshal(map[string]string{"text": text})
	return string(b)
}

func newHandler(t *testing.T, gen *fakeGenerator, snd *fakeSender, opts ...handler.Option) *handler.Handler {
	t.Helper()
	opts = append([]handler.Option{
		handler.WithVerifier(validation.NewVerifier(testToken, "")),
		handler.WithGenerator(gen),
		handler.WithSender(snd),
	}, opts...)
	h, err := handler.NewHandler(opts...)
	require.NoError(t, err)
	return h
}

func TestNewHandler_MissingDependencies(t *testing.T) {
	testCases := []struct {
		Name string
		Opts []handler.Option
	}{
		{Name: "verifier"},
		{Name: "generator", Opts: []handler.Option{handler.WithVerifier(validation.NewVerifier(testToken, ""))}},
		{Name: "sender", Opts: []handler.Option{handler.WithVerifier(validation.NewVerifier(testToken, "")), handler.WithGenerator(&fakeGenerator{})}},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			_, err := handler.NewHandler(tc.Opts...)
			var missing *handler.MissingDependencyError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, tc.Name, missing.Name)
		})
	}
}

func TestHandler_URLVerification(t *testing.T) {
	testCases := []struct {
		Name           string
		Token          string
		ExpectedBody   string
		ExpectedStatus int
		ExpectError    bool
	}{
		{
			Name:           "matching_token",
			Token:          testToken,
			ExpectedBody:   `{"challenge":"c-1"}`,
			ExpectedStatus: http.StatusOK,
		},
		{
			Name:           "mismatched_token",
			Token:          "forged",
			ExpectedStatus: http.StatusInternalServerError,
			ExpectError:    true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			gen, snd := &fakeGenerator{}, &fakeSender{}
			h := newHandler(t, gen, snd)

			resp, err := h.Process(context.Background(), []byte(urlVerification(tc.Token)), map[string]string{})
			if tc.ExpectError {
				require.Error(t, err)
				var verr *apierror.VerificationError
				assert.ErrorAs(t, err, &verr)
				assert.Equal(t, tc.ExpectedStatus, apierror.StatusCode(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.ExpectedStatus, resp.StatusCode)
				assert.JSONEq(t, tc.ExpectedBody, resp.Body)
			}
			assert.Empty(t, gen.Prompts())
			assert.Empty(t, snd.Sent())
		})
	}
}

func TestHandler_UnsupportedMessageType(t *testing.T) {
	gen, snd := &fakeGenerator{output: "unused"}, &fakeSender{}
	h := newHandler(t, gen, snd, handler.WithDispatcher(worker.Inline{}))

	resp, err := h.Process(context.Background(), []byte(messageEvent("evt-1", testToken, "image", `{"image_key":"img"}`)), map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Empty(t, gen.Prompts())
	assert.Equal(t, []sentMessage{{OpenID: testOpenID, Text: handler.DefaultUnsupportedMessage}}, snd.Sent())
}

func TestHandler_UnsupportedMessageType_CustomReply(t *testing.T) {
	gen, snd := &fakeGenerator{}, &fakeSender{}
	h := newHandler(t, gen, snd, handler.WithUnsupportedMessage("text only, please"))

	_, err := h.Process(context.Background(), []byte(messageEvent("evt-1", testToken, "file", `{}`)), map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, []sentMessage{{OpenID: testOpenID, Text: "text only, please"}}, snd.Sent())
}

func TestHandler_TextMessage(t *testing.T) {
	gen, snd := &fakeGenerator{output: "Go is a programming language."}, &fakeSender{}
	h := newHandler(t, gen, snd)

	resp, err := h.Process(context.Background(), []byte(messageEvent("evt-1", testToken, "text", textContent("@_user_1 what is Go?"))), map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"what is Go?"}, gen.Prompts())
	assert.Equal(t, []sentMessage{{OpenID: testOpenID, Text: "Go is a programming language."}}, snd.Sent())
}

func TestHandler_TextMessage_NothingToDo(t *testing.T) {
	testCases := []struct {
		Name            string
		Text            string
		Output          string
		ExpectedPrompts int
	}{
		{
			Name:            "mention_only",
			Text:            "@_user_1  ",
			ExpectedPrompts: 0,
		},
		{
			Name:            "empty_reply",
			Text:            "hello",
			Output:          "  \n",
			ExpectedPrompts: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			gen, snd := &fakeGenerator{output: tc.Output}, &fakeSender{}
			h := newHandler(t, gen, snd)

			_, err := h.Process(context.Background(), []byte(messageEvent("evt-1", testToken, "text", textContent(tc.Text))), map[string]string{})
			require.NoError(t, err)
			assert.Len(t, gen.Prompts(), tc.ExpectedPrompts)
			assert.Empty(t, snd.Sent())
		})
	}
}

func TestHandler_UpstreamErrors(t *testing.T) {
	testCases := []struct {
		Name           string
		MessageType    string
		GeneratorErr   error
		SenderErr      error
		ExpectedStatus int
	}{
		{
			Name:           "generator_http_error",
			MessageType:    "text",
			GeneratorErr:   &apierror.HTTPError{Service: "notion", StatusCode: http.StatusTooManyRequests},
			ExpectedStatus: http.StatusTooManyRequests,
		},
		{
			Name:           "sender_http_error",
			MessageType:    "text",
			SenderErr:      &apierror.HTTPError{Service: "lark", StatusCode: http.StatusServiceUnavailable},
			ExpectedStatus: http.StatusServiceUnavailable,
		},
		{
			Name:           "unsupported_reply_http_error",
			MessageType:    "image",
			SenderErr:      &apierror.HTTPError{Service: "lark", StatusCode: http.StatusBadRequest},
			ExpectedStatus: http.StatusBadRequest,
		},
		{
			Name:           "generator_plain_error",
			MessageType:    "text",
			GeneratorErr:   errors.New("connection reset"),
			ExpectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			gen := &fakeGenerator{output: "reply", err: tc.GeneratorErr}
			snd := &fakeSender{err: tc.SenderErr}
			h := newHandler(t, gen, snd, handler.WithDispatcher(worker.Inline{}))

			_, err := h.Process(context.Background(), []byte(messageEvent("evt-1", testToken, tc.MessageType, textContent("hi"))), map[string]string{})
			require.Error(t, err)
			assert.Equal(t, tc.ExpectedStatus, apierror.StatusCode(err))
		})
	}
}

func TestHandler_InvalidRequests(t *testing.T) {
	testCases := []struct {
		Name           string
		Body           string
		ExpectedStatus int
	}{
		{
			Name:           "unhandled_event_type",
			Body:           `{"schema":"2.0","header":{"event_id":"e","token":"v-token","event_type":"im.chat.disbanded_v1"},"event":{}}`,
			ExpectedStatus: http.StatusBadRequest,
		},
		{
			Name:           "unknown_schema",
			Body:           `{"schema":"1.0","uuid":"x"}`,
			ExpectedStatus: http.StatusInternalServerError,
		},
		{
			Name:           "invalid_json",
			Body:           `{`,
			ExpectedStatus: http.StatusInternalServerError,
		},
		{
			Name:           "missing_event",
			Body:           `{"schema":"2.0","header":{"event_id":"e","token":"v-token","event_type":"im.message.receive_v1"}}`,
			ExpectedStatus: http.StatusInternalServerError,
		},
		{
			Name:           "invalid_text_content",
			Body:           messageEvent("evt-1", testToken, "text", "not-json"),
			ExpectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			gen, snd := &fakeGenerator{}, &fakeSender{}
			h := newHandler(t, gen, snd)

			resp, err := h.Process(context.Background(), []byte(tc.Body), map[string]string{})
			require.Error(t, err)
			status := resp.StatusCode
			if status < http.StatusBadRequest {
				status = apierror.StatusCode(err)
			}
			assert.Equal(t, tc.ExpectedStatus, status)
			assert.Empty(t, gen.Prompts())
		})
	}
}

func TestHandler_EncryptedCallback(t *testing.T) {
	gen, snd := &fakeGenerator{output: "pong"}, &fakeSender{}
	h := newHandler(t, gen, snd, handler.WithVerifier(validation.NewVerifier(testToken, testEncryptKey)))

	body := []byte(`{"encrypt":"` + encrypt(t, testEncryptKey, messageEvent("evt-1", testToken, "text", textContent("ping"))) + `"}`)
	headers := map[string]string{
		strings.ToLower(validation.TimestampHeader): "1700000000",
		strings.ToLower(validation.NonceHeader):     "nonce",
		strings.ToLower(validation.SignatureHeader): validation.Signature("1700000000", "nonce", testEncryptKey, body),
	}

	_, err := h.Process(context.Background(), body, headers)
	require.NoError(t, err)
	assert.Equal(t, []string{"ping"}, gen.Prompts())
	assert.Equal(t, []sentMessage{{OpenID: testOpenID, Text: "pong"}}, snd.Sent())

	headers[strings.ToLower(validation.SignatureHeader)] = "forged"
	_, err = h.Process(context.Background(), body, headers)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apierror.StatusCode(err))
	assert.Len(t, gen.Prompts(), 1)
}

func TestHandler_EncryptedURLVerification(t *testing.T) {
	testCases := []struct {
		Name         string
		Body         string
		ExpectedBody string
		ExpectError  bool
	}{
		{
			Name:         "encrypted_without_signature",
			Body:         `{"encrypt":"` + encrypt(t, testEncryptKey, urlVerification(testToken)) + `"}`,
			ExpectedBody: `{"challenge":"c-1"}`,
		},
		{
			Name:        "encrypted_mismatched_token",
			Body:        `{"encrypt":"` + encrypt(t, testEncryptKey, urlVerification("forged")) + `"}`,
			ExpectError: true,
		},
		{
			Name:        "plaintext_rejected",
			Body:        urlVerification(testToken),
			ExpectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			gen, snd := &fakeGenerator{}, &fakeSender{}
			h := newHandler(t, gen, snd, handler.WithVerifier(validation.NewVerifier(testToken, testEncryptKey)))

			resp, err := h.Process(context.Background(), []byte(tc.Body), map[string]string{})
			if tc.ExpectError {
				require.Error(t, err)
				var verr *apierror.VerificationError
				assert.ErrorAs(t, err, &verr)
				assert.Equal(t, http.StatusInternalServerError, apierror.StatusCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.JSONEq(t, tc.ExpectedBody, resp.Body)
		})
	}
}

func TestHandler_EncryptedCallback_UnsignedEvent(t *testing.T) {
	gen, snd := &fakeGenerator{output: "pong"}, &fakeSender{}
	h := newHandler(t, gen, snd, handler.WithVerifier(validation.NewVerifier(testToken, testEncryptKey)))

	body := []byte(`{"encrypt":"` + encrypt(t, testEncryptKey, messageEvent("evt-1", testToken, "text", textContent("ping"))) + `"}`)
	_, err := h.Process(context.Background(), body, map[string]string{})
	require.Error(t, err)
	var verr *apierror.VerificationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, gen.Prompts())
}

func TestHandler_Deduplication(t *testing.T) {
	gen, snd := &fakeGenerator{output: "reply"}, &fakeSender{}
	d := dedupe.NewMemory(time.Minute)
	t.Cleanup(func() { _ = d.Close() })
	h := newHandler(t, gen, snd, handler.WithDeduplicator(d))

	for range 3 {
		resp, err := h.Process(context.Background(), []byte(messageEvent("evt-1", testToken, "text", textContent("hi"))), map[string]string{})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	_, err := h.Process(context.Background(), []byte(messageEvent("evt-2", testToken, "text", textContent("hi again"))), map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, []string{"hi", "hi again"}, gen.Prompts())
	assert.Len(t, snd.Sent(), 2)
}

func TestHandler_Deduplication_RedeliveryAfterFailure(t *testing.T) {
	testCases := []struct {
		Name         string
		MessageType  string
		Content      string
		GeneratorErr error
		SenderErr    error
	}{
		{
			Name:        "unsupported_reply_failure",
			MessageType: "image",
			Content:     `{"image_key":"img"}`,
			SenderErr:   &apierror.HTTPError{Service: "lark", StatusCode: http.StatusServiceUnavailable},
		},
		{
			Name:         "generator_failure",
			MessageType:  "text",
			Content:      textContent("hi"),
			GeneratorErr: &apierror.HTTPError{Service: "notion", StatusCode: http.StatusBadGateway},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			gen := &fakeGenerator{output: "reply", err: tc.GeneratorErr}
			snd := &fakeSender{err: tc.SenderErr}
			d := dedupe.NewMemory(time.Minute)
			t.Cleanup(func() { _ = d.Close() })
			h := newHandler(t, gen, snd, handler.WithDeduplicator(d), handler.WithDispatcher(worker.Inline{}))
			body := []byte(messageEvent("evt-1", testToken, tc.MessageType, tc.Content))

			_, err := h.Process(context.Background(), body, map[string]string{})
			require.Error(t, err)
			attempts := len(snd.Sent())

			gen.mu.Lock()
			gen.err = nil
			gen.mu.Unlock()
			snd.mu.Lock()
			snd.err = nil
			snd.mu.Unlock()

			resp, err := h.Process(context.Background(), body, map[string]string{})
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			require.Len(t, snd.Sent(), attempts+1, "the redelivered event is processed again")

			_, err = h.Process(context.Background(), body, map[string]string{})
			require.NoError(t, err)
			assert.Len(t, snd.Sent(), attempts+1, "a processed event is not processed twice")
		})
	}
}

func TestHandler_Archive(t *testing.T) {
	testCases := []struct {
		Name string
		Err  error
	}{
		{Name: "uploaded"},
		{Name: "upload_failure_is_ignored", Err: errors.New("access denied")},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			gen, snd := &fakeGenerator{output: "reply"}, &fakeSender{}
			archiver := &fakeArchiver{err: tc.Err}
			h := newHandler(t, gen, snd, handler.WithArchiver(archiver, "bucket"))

			_, err := h.Process(context.Background(), []byte(messageEvent("evt-1", testToken, "text", textContent("hi"))), map[string]string{})
			require.NoError(t, err)
			require.Len(t, archiver.keys, 1)
			assert.True(t, strings.HasPrefix(archiver.keys[0], "im.message.receive_v1/"))
			assert.True(t, strings.HasSuffix(archiver.keys[0], ".evt-1.json"))
			assert.Len(t, snd.Sent(), 1)
		})
	}
}

func TestHandler_AsyncDispatch(t *testing.T) {
	gen := &fakeGenerator{output: "", err: &apierror.HTTPError{Service: "notion", StatusCode: http.StatusBadGateway}}
	snd := &fakeSender{}
	pool := worker.NewPool(2)
	h := newHandler(t, gen, snd, handler.WithDispatcher(pool))

	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		resp, err := h.Process(context.Background(), []byte(messageEvent(id, testToken, "text", textContent("hi"))), map[string]string{})
		require.NoError(t, err, "task errors are not reported to the caller")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
	assert.Len(t, gen.Prompts(), 3)
	assert.Empty(t, snd.Sent())
}

// encrypt produces a callback body the way Lark encrypts it.
func encrypt(t *testing.T, key, plaintext string) string {
	t.Helper()
	k := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(k[:])
	require.NoError(t, err)

	padding := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append([]byte(plaintext), bytes.Repeat([]byte{byte(padding)}, padding)...)

	iv := bytes.Repeat([]byte{3}, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(append(iv, out...))
}
