// Package runtime exposes the callback handler over HTTP and as an AWS Lambda function.
package runtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/isometry/lark-ai-bridge/internal/helpers"
	"github.com/isometry/lark-ai-bridge/internal/models"
	"github.com/pkg/errors"
)

// Lambda payload types.
const (
	PayloadTypeAPIGatewayV1 = "api-gateway-v1"
	PayloadTypeAPIGatewayV2 = "api-gateway-v2"
	PayloadTypeLambdaURL    = "lambda-url"
)

const maxBodySize = 1 << 20

// Processor handles a single callback.
type Processor interface {
	Process(ctx context.Context, body []byte, headers map[string]string) (models.Response, error)
}

// Option defines a function type used to configure an instance of the Runtime struct.
type Option func(*Runtime)

// WithLogger sets a custom slog.Logger instance for the Runtime.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithLambdaPayloadType sets the shape of the events received in Lambda mode.
func WithLambdaPayloadType(payloadType string) Option {
	return func(r *Runtime) {
		r.payloadType = payloadType
	}
}

// Runtime adapts a Processor to the transports it is served on.
type Runtime struct {
	processor   Processor
	logger      *slog.Logger
	payloadType string
}

// NewRuntime creates a new runtime instance.
func NewRuntime(processor Processor, opts ...Option) *Runtime {
	_inst := &Runtime{processor: processor, payloadType: PayloadTypeAPIGatewayV2}
	for _, opt := range opts {
		opt(_inst)
	}
	if _inst.logger == nil {
		_inst.logger = helpers.NewNoopLogger()
	}
	return _inst
}

// ServeHTTP is the HTTP handler for the runtime.
func (r *Runtime) ServeHTTP(resp http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.logger.Debug("rejecting HTTP request...", slog.Any("requestor", req.RemoteAddr), "reason", "method not allowed", slog.Any("method", req.Method))
		helpers.RespondHTTP(models.Response{StatusCode: http.StatusMethodNotAllowed}, nil, resp)
		return
	}

	r.logger.Debug("received HTTP request...", slog.Any("requestor", req.RemoteAddr), slog.Any("path", req.URL.Path))
	headers := make(map[string]string, len(req.Header))
	for k, v := range req.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(resp, req.Body, maxBodySize))
	if err != nil {
		r.logger.Error("failed to read request body", slog.Any("error", err))
		helpers.RespondHTTP(models.Response{StatusCode: http.StatusBadRequest}, errors.Wrap(err, "failed to read request body"), resp)
		return
	}

	result, err := r.processor.Process(req.Context(), body, headers)
	r.log(result, err)
	helpers.RespondHTTP(result, err, resp)
}

// Healthz reports the service as alive.
func (r *Runtime) Healthz(resp http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet, http.MethodHead:
		helpers.RespondHTTP(models.Response{Body: `{"status":"ok"}`}, nil, resp)
	default:
		helpers.RespondHTTP(models.Response{StatusCode: http.StatusMethodNotAllowed}, nil, resp)
	}
}

// Lambda is the AWS Lambda handler for the runtime. Failures are reported in the HTTP response rather than
// as a Lambda error, so that the caller receives the mapped status code.
func (r *Runtime) Lambda(ctx context.Context, payload json.RawMessage) (any, error) {
	r.logger.Info("received lambda request", slog.String("payloadType", r.payloadType))

	req, err := r.decode(payload)
	if err != nil {
		return nil, err
	}

	var result models.Response
	if req.method != "" && req.method != http.MethodPost {
		result = models.Response{StatusCode: http.StatusMethodNotAllowed}
	} else {
		result, err = r.processor.Process(ctx, req.body, req.headers)
		r.log(result, err)
	}
	final := helpers.Finalize(result, err)

	switch r.payloadType {
	case PayloadTypeAPIGatewayV1:
		return events.APIGatewayProxyResponse{StatusCode: final.StatusCode, Headers: final.Headers, Body: final.Body}, nil
	case PayloadTypeAPIGatewayV2:
		return events.APIGatewayV2HTTPResponse{StatusCode: final.StatusCode, Headers: final.Headers, Body: final.Body}, nil
	default:
		return events.LambdaFunctionURLResponse{StatusCode: final.StatusCode, Headers: final.Headers, Body: final.Body}, nil
	}
}

type lambdaRequest struct {
	method  string
	body    []byte
	headers map[string]string
}

func (r *Runtime) decode(payload json.RawMessage) (*lambdaRequest, error) {
	var (
		body            string
		base64Encoded   bool
		method          string
		receivedHeaders map[string]string
	)
	switch r.payloadType {
	case PayloadTypeAPIGatewayV1:
		var e events.APIGatewayProxyRequest
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, errors.Wrap(err, "failed to decode api-gateway-v1 event")
		}
		body, base64Encoded, method, receivedHeaders = e.Body, e.IsBase64Encoded, e.HTTPMethod, e.Headers
	case PayloadTypeAPIGatewayV2:
		var e events.APIGatewayV2HTTPRequest
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, errors.Wrap(err, "failed to decode api-gateway-v2 event")
		}
		body, base64Encoded, method, receivedHeaders = e.Body, e.IsBase64Encoded, e.RequestContext.HTTP.Method, e.Headers
	case PayloadTypeLambdaURL:
		var e events.LambdaFunctionURLRequest
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, errors.Wrap(err, "failed to decode lambda-url event")
		}
		body, base64Encoded, method, receivedHeaders = e.Body, e.IsBase64Encoded, e.RequestContext.HTTP.Method, e.Headers
	default:
		return nil, errors.Errorf("unsupported lambda payload type: %s", r.payloadType)
	}

	req := &lambdaRequest{
		method:  strings.ToUpper(method),
		body:    []byte(body),
		headers: make(map[string]string, len(receivedHeaders)),
	}
	for k, v := range receivedHeaders {
		req.headers[strings.ToLower(k)] = v
	}
	if base64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode base64 body")
		}
		req.body = decoded
	}
	return req, nil
}

func (r *Runtime) log(result models.Response, err error) {
	if err != nil {
		r.logger.Warn("request failed", slog.Int("statusCode", helpers.Finalize(result, err).StatusCode), slog.Any("error", err))
		return
	}
	r.logger.Info("request handled", slog.Int("statusCode", result.StatusCode))
}
