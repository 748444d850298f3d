package vectorize

import (
	"fmt"
	"net/http"
)

// VectorMIME is the content type of vectorized output.
const VectorMIME = "image/svg+xml"

// Response headers surfaced to clients.
const (
	HeaderImageToken        = "X-Image-Token"
	HeaderEditorURL         = "X-Editor-URL"
	HeaderCreditsCalculated = "X-Credits-Calculated"
	HeaderCreditsCharged    = "X-Credits-Charged"
)

// Client facing error codes for upstream failures.
const (
	CodeUpstreamError  = "UpstreamError"
	CodeTransportError = "TransportError"
)

// OutboundRequest is the translated multipart body sent upstream.
type OutboundRequest struct {
	Body        []byte
	ContentType string
	// Fields lists the form field names in the order they were written.
	Fields []string
}

// UpstreamResponse is the raw response from the vectorization service.
type UpstreamResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// NormalizedResult is what the relay sends back on success.
type NormalizedResult struct {
	Body        []byte
	ContentType string
	Token       string
	EditorURL   string
	Shape       Shape
	// Credits holds passthrough accounting headers keyed by canonical name.
	Credits map[string]string
}

// UpstreamError is a non-success status returned by the vectorization service.
type UpstreamError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
}
