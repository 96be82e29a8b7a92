package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/isometry/lark-ai-bridge/internal/apierror"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// tenantTokenSource fetches tenant access tokens for an internal application.
// It is wrapped in an oauth2.ReuseTokenSource, so a token is only refreshed once it expires.
type tenantTokenSource struct {
	ctx    context.Context
	logger *slog.Logger
	client *http.Client

	url       string
	appID     string
	appSecret string
}

type tenantTokenRequest struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

type tenantTokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

// Token implements oauth2.TokenSource.
func (s *tenantTokenSource) Token() (*oauth2.Token, error) {
	s.logger.Debug("fetching tenant access token...")
	body, err := json.Marshal(tenantTokenRequest{AppID: s.appID, AppSecret: s.appSecret})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode token request")
	}
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create token request")
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch tenant access token")
	}
	var out tenantTokenResponse
	if err = decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	if out.Code != 0 {
		return nil, &apierror.APIError{Service: serviceName, Code: out.Code, Msg: out.Msg}
	}
	if out.TenantAccessToken == "" {
		return nil, errors.New("empty tenant access token")
	}

	s.logger.Debug("fetched tenant access token", slog.Int("expire", out.Expire))
	return &oauth2.Token{
		AccessToken: out.TenantAccessToken,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Duration(out.Expire) * time.Second),
	}, nil
}
