// Package lark provides a Controller for the Lark (Feishu) open platform: tenant access token management and message delivery.
package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/isometry/lark-ai-bridge/internal/apierror"
	"github.com/isometry/lark-ai-bridge/internal/helpers"
	"github.com/isometry/lark-ai-bridge/internal/models"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// DefaultHost is the Feishu open platform endpoint. Lark international tenants use https://open.larksuite.com.
	DefaultHost = "https://open.feishu.cn"

	tenantAccessTokenPath = "/open-apis/auth/v3/tenant_access_token/internal"
	messagesPath          = "/open-apis/im/v1/messages"

	serviceName     = "lark"
	maxErrorBodyLen = 512
)

// ReceiveIDTypeOpenID addresses a message to a user by open id.
const ReceiveIDTypeOpenID = "open_id"

// Controller sends messages on behalf of a Lark application.
type Controller struct {
	ctx    context.Context
	logger *slog.Logger

	host       string
	appID      string
	appSecret  string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter

	client *http.Client
}

// Option defines a function type used to configure an instance of the Controller struct.
type Option func(*Controller)

// NewController initializes a Controller. The application credentials are mandatory.
func NewController(opts ...Option) (*Controller, error) {
	_inst := &Controller{
		host:    DefaultHost,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(_inst)
	}
	if _inst.appID == "" || _inst.appSecret == "" {
		return nil, errors.New("missing Lark application credentials [APP_ID, APP_SECRET]")
	}
	if _inst.ctx == nil {
		_inst.ctx = context.Background()
	}
	if _inst.logger == nil {
		_inst.logger = helpers.NewNoopLogger()
	}
	_inst.logger = _inst.logger.With("controller", serviceName)
	if _inst.httpClient == nil {
		_inst.httpClient = &http.Client{Timeout: _inst.timeout}
	}
	if _inst.limiter == nil {
		_inst.limiter = rate.NewLimiter(rate.Inf, 0)
	}

	// Tokens may be refreshed while pending replies drain after ctx is cancelled.
	src := &tenantTokenSource{
		ctx:       context.WithoutCancel(_inst.ctx),
		logger:    _inst.logger,
		client:    _inst.httpClient,
		url:       _inst.host + tenantAccessTokenPath,
		appID:     _inst.appID,
		appSecret: _inst.appSecret,
	}
	_inst.client = oauth2.NewClient(context.WithValue(_inst.ctx, oauth2.HTTPClient, _inst.httpClient), src)
	_inst.client.Timeout = _inst.httpClient.Timeout
	return _inst, nil
}

type sendMessageRequest struct {
	ReceiveID string `json:"receive_id"`
	MsgType   string `json:"msg_type"`
	Content   string `json:"content"`
}

type sendMessageResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		MessageID string `json:"message_id"`
	} `json:"data"`
}

// SendText sends a plain text message to the user identified by openID.
func (c *Controller) SendText(ctx context.Context, openID, text string) error {
	content, err := json.Marshal(models.TextContent{Text: text})
	if err != nil {
		return errors.Wrap(err, "failed to encode text content")
	}
	return c.Send(ctx, ReceiveIDTypeOpenID, openID, models.MessageTypeText, string(content))
}

// Send delivers a message with an already JSON encoded content.
func (c *Controller) Send(ctx context.Context, receiveIDType, receiveID, msgType, content string) error {
	logger := c.logger.With(slog.String("receiveIDType", receiveIDType), slog.String("receiveID", receiveID), slog.String("msgType", msgType))
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	body, err := json.Marshal(sendMessageRequest{ReceiveID: receiveID, MsgType: msgType, Content: content})
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}
	endpoint := c.host + messagesPath + "?receive_id_type=" + url.QueryEscape(receiveIDType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	logger.Debug("sending message...")
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send message")
	}
	var out sendMessageResponse
	if err = decodeResponse(resp, &out); err != nil {
		logger.Warn("message delivery failed", slog.Any("error", err))
		return err
	}
	if out.Code != 0 {
		logger.Warn("message delivery rejected", slog.Int("code", out.Code), slog.String("msg", out.Msg))
		return &apierror.APIError{Service: serviceName, Code: out.Code, Msg: out.Msg}
	}
	logger.Debug("message sent", slog.String("messageID", out.Data.MessageID))
	return nil
}

// decodeResponse closes resp.Body, converting non-200 statuses into an apierror.HTTPError.
func decodeResponse(resp *http.Response, v any) error {
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return &apierror.HTTPError{Service: serviceName, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}
