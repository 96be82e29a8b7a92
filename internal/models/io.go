// Package models provides the core data structures for handling Lark callbacks and their responses.
package models

// Response defines the structure for an HTTP response containing a body, headers, and a status code.
// Body is expected to hold a JSON document; an empty body is rendered as an empty JSON object.
type Response struct {
	Body       string
	Headers    map[string]string
	StatusCode int
}
