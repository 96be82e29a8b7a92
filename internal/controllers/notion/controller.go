// Package notion provides a Controller generating content with Notion AI.
package notion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/isometry/lark-ai-bridge/internal/apierror"
	"github.com/isometry/lark-ai-bridge/internal/helpers"
	"github.com/pkg/errors"
)

const (
	// DefaultHost is the Notion web endpoint.
	DefaultHost = "https://www.notion.so"
	// DefaultModel is the completion model requested when none is configured.
	DefaultModel = "openai-4"

	completionPath  = "/api/v3/getCompletion"
	serviceName     = "notion"
	maxErrorBodyLen = 512
	maxLineLen      = 1 << 20
)

// Prompt types understood by the completion endpoint.
const (
	PromptTypeBlogPost    = "blogPost"
	PromptTypeHelpMeWrite = "helpMeWrite"
)

// Controller requests completions from Notion AI on behalf of a workspace.
type Controller struct {
	logger *slog.Logger

	host       string
	token      string
	spaceID    string
	model      string
	promptType string
	timeout    time.Duration
	httpClient *http.Client
	newID      func() string
}

// Option defines a function type used to configure an instance of the Controller struct.
type Option func(*Controller)

// NewController initializes a Controller. The token and space id are mandatory.
func NewController(opts ...Option) (*Controller, error) {
	_inst := &Controller{
		host:       DefaultHost,
		model:      DefaultModel,
		promptType: PromptTypeBlogPost,
		timeout:    60 * time.Second,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(_inst)
	}
	if _inst.token == "" || _inst.spaceID == "" {
		return nil, errors.New("missing Notion credentials [NOTION_TOKEN, NOTION_SPACE_ID]")
	}
	switch _inst.promptType {
	case PromptTypeBlogPost, PromptTypeHelpMeWrite:
	default:
		return nil, errors.Errorf("unsupported prompt type: %s", _inst.promptType)
	}
	if _inst.logger == nil {
		_inst.logger = helpers.NewNoopLogger()
	}
	_inst.logger = _inst.logger.With("controller", serviceName)
	if _inst.httpClient == nil {
		_inst.httpClient = &http.Client{Timeout: _inst.timeout}
	}
	return _inst, nil
}

type completionRequest struct {
	ID                string         `json:"id"`
	Model             string         `json:"model"`
	SpaceID           string         `json:"spaceId"`
	IsSpacePermission bool           `json:"isSpacePermission"`
	Context           map[string]any `json:"context"`
}

type completionChunk struct {
	Type       string `json:"type"`
	Completion string `json:"completion"`
	Message    string `json:"message"`
}

// Generate returns the completion produced for prompt.
func (c *Controller) Generate(ctx context.Context, prompt string) (string, error) {
	id := c.newID()
	logger := c.logger.With(slog.String("requestID", id), slog.String("promptType", c.promptType))

	body, err := json.Marshal(completionRequest{
		ID:      id,
		Model:   c.model,
		SpaceID: c.spaceID,
		Context: c.promptContext(prompt),
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to encode completion request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+completionPath, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "token_v2", Value: c.token})

	logger.Debug("requesting completion...", slog.String("prompt", helpers.Truncate(prompt, 64)))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to request completion")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return "", &apierror.HTTPError{Service: serviceName, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}

	completion, err := readCompletion(resp.Body)
	if err != nil {
		return "", err
	}
	logger.Debug("completion received", slog.Int("length", len(completion)))
	return completion, nil
}

func (c *Controller) promptContext(prompt string) map[string]any {
	switch c.promptType {
	case PromptTypeHelpMeWrite:
		return map[string]any{
			"type":         PromptTypeHelpMeWrite,
			"prompt":       prompt,
			"pageTitle":    "",
			"selectedText": "",
		}
	default:
		return map[string]any{
			"type":  PromptTypeBlogPost,
			"topic": prompt,
		}
	}
}

// readCompletion concatenates the completions of a newline delimited JSON stream.
func readCompletion(r io.Reader) (string, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLen)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk completionChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", errors.Wrap(err, "failed to decode completion chunk")
		}
		switch chunk.Type {
		case "success":
			sb.WriteString(chunk.Completion)
		case "error":
			return "", &apierror.APIError{Service: serviceName, Msg: chunk.Message}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrap(err, "failed to read completion stream")
	}
	return sb.String(), nil
}
