package helpers

import (
	"encoding/json"
	"maps"
	"net/http"

	"github.com/isometry/lark-ai-bridge/internal/apierror"
	"github.com/isometry/lark-ai-bridge/internal/models"
)

type errorResponse struct {
	Message string `json:"message"`
}

// Finalize returns the response to send to the caller. When err is non-nil the body is replaced by a
// {"message": ...} document and the status code falls back to the one carried by err if response does not
// already hold an error status.
func Finalize(response models.Response, err error) models.Response {
	final := models.Response{
		Body:       response.Body,
		StatusCode: response.StatusCode,
		Headers:    make(map[string]string, len(response.Headers)+1),
	}
	maps.Copy(final.Headers, response.Headers)

	if err != nil {
		body, _ := json.Marshal(errorResponse{Message: err.Error()})
		final.Body = string(body)
		if final.StatusCode < http.StatusBadRequest {
			final.StatusCode = apierror.StatusCode(err)
		}
	}
	if final.Body == "" {
		final.Body = "{}"
	}
	if final.StatusCode == 0 {
		final.StatusCode = http.StatusOK
	}
	if !hasContentType(final.Headers) {
		final.Headers["Content-Type"] = "application/json"
	}
	return final
}

func hasContentType(headers map[string]string) bool {
	for k := range headers {
		if http.CanonicalHeaderKey(k) == "Content-Type" {
			return true
		}
	}
	return false
}

// RespondHTTP writes the finalized response to rw.
func RespondHTTP(response models.Response, err error, rw http.ResponseWriter) {
	final := Finalize(response, err)
	for k, v := range final.Headers {
		rw.Header().Set(k, v)
	}
	rw.WriteHeader(final.StatusCode)
	_, _ = rw.Write([]byte(final.Body))
}
