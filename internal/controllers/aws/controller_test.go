package aws_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsctl "github.com/isometry/lark-ai-bridge/internal/controllers/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAWS struct {
	mu      sync.Mutex
	objects map[string]string
	params  map[string]string
}

func (f *fakeAWS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, _ := io.ReadAll(r.Body)

	if target := r.Header.Get("X-Amz-Target"); strings.HasSuffix(target, ".GetParameter") {
		var in struct{ Name string }
		_ = json.Unmarshal(body, &in)
		value, ok := f.params[in.Name]
		w.Header().Set("Content-Type", "application/x-amz-json-1.1")
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"__type":"ParameterNotFound","message":"not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Parameter": map[string]any{"Name": in.Name, "Type": "SecureString", "Value": value},
		})
		return
	}

	if r.Method == http.MethodPut {
		f.objects[r.URL.Path] = string(body)
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusNotImplemented)
}

func newController(t *testing.T, fake *fakeAWS) *awsctl.Controller {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := aws.Config{
		Region:       "eu-west-1",
		BaseEndpoint: aws.String(srv.URL),
		HTTPClient:   srv.Client(),
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKID", SecretAccessKey: "SECRET"}, nil
		}),
	}
	ctl, err := awsctl.NewController(awsctl.WithConfig(&cfg), awsctl.WithS3PathStyle(true))
	require.NoError(t, err)
	return ctl
}

func TestController_GetSecret(t *testing.T) {
	fake := &fakeAWS{params: map[string]string{"/bridge/credentials": `{"app_secret":"s"}`}}
	ctl := newController(t, fake)

	value, err := ctl.GetSecret("/bridge/credentials", true)
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, `{"app_secret":"s"}`, *value)

	_, err = ctl.GetSecret("/bridge/missing", true)
	assert.Error(t, err)
}

func TestController_PutS3Object(t *testing.T) {
	fake := &fakeAWS{objects: map[string]string{}}
	ctl := newController(t, fake)

	require.NoError(t, ctl.PutS3Object(context.Background(), "archive", "im.message.receive_v1/evt-1.json", []byte(`{"a":1}`)))
	require.NoError(t, ctl.PutS3Object(context.Background(), "", "ignored.json", []byte(`{}`)))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Len(t, fake.objects, 1)
	assert.Contains(t, fake.objects["/archive/im.message.receive_v1/evt-1.json"], `{"a":1}`)
}
