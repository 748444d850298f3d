package vectorize

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"vectorize-relay/internal/platform/errors"
	"vectorize-relay/internal/platform/logging"
	"vectorize-relay/internal/platform/observability"
)

// Upstream issues one vectorization call.
type Upstream interface {
	Vectorize(ctx context.Context, req *OutboundRequest) (*UpstreamResponse, error)
}

// ClientOptions configures the upstream client.
type ClientOptions struct {
	Endpoint  string
	APIID     string
	APISecret string
	// Timeout bounds the whole upstream exchange. Zero disables it.
	Timeout time.Duration
	Logger  *logging.Logger
	Metrics *observability.Metrics
	// HTTPClient overrides the underlying transport (useful for tests).
	HTTPClient *http.Client
}

// Client calls the vectorization service with HTTP basic auth.
type Client struct {
	http     *resty.Client
	endpoint string
	logger   *logging.Logger
	metrics  *observability.Metrics
}

// NewClient builds a client. No retries are performed.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, errors.New(errors.KindConfig, "vectorize.client", "upstream endpoint is required")
	}
	if opts.APIID == "" || opts.APISecret == "" {
		return nil, errors.New(errors.KindConfig, "vectorize.client", "upstream credentials are required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetLogger(restyLogger{opts.Logger}).
		SetBasicAuth(opts.APIID, opts.APISecret).
		SetRetryCount(0).
		SetHeader("User-Agent", "vectorize-relay")
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}

	return &Client{
		http:     rc,
		endpoint: opts.Endpoint,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}, nil
}

// Vectorize posts req upstream. A non-2xx status yields a KindUpstream error
// wrapping *UpstreamError; no response at all yields KindTransport.
func (c *Client) Vectorize(ctx context.Context, req *OutboundRequest) (*UpstreamResponse, error) {
	ctx, spanEnd := observability.StartSpan(ctx, "upstream", "vectorize")
	start := time.Now()

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", req.ContentType).
		SetBody(req.Body).
		Post(c.endpoint)
	duration := time.Since(start)

	if err != nil {
		c.metrics.ObserveUpstream("transport_error", 0, duration)
		c.logger.WarnTag("UPSTREAM", "request failed after %s: %v", duration, err)
		wrapped := errors.Wrap(errors.KindTransport, "vectorize.call", "upstream request failed", err).
			WithCode(CodeTransportError)
		spanEnd(wrapped)
		return nil, wrapped
	}

	out := &UpstreamResponse{
		Status: resp.StatusCode(),
		Header: resp.Header(),
		Body:   resp.Body(),
	}

	if !resp.IsSuccess() {
		c.metrics.ObserveUpstream("upstream_error", out.Status, duration)
		upErr := &UpstreamError{
			Status:  out.Status,
			Message: errorMessage(out),
			Body:    out.Body,
		}
		c.logger.WarnTag("UPSTREAM", "status %d after %s: %s", out.Status, duration, upErr.Message)
		wrapped := errors.Wrap(errors.KindUpstream, "vectorize.call", "upstream returned an error", upErr).
			WithCode(CodeUpstreamError)
		spanEnd(wrapped)
		return nil, wrapped
	}

	c.metrics.ObserveUpstream("success", out.Status, duration)
	c.logger.DebugTag("UPSTREAM", "status %d, %d bytes in %s", out.Status, len(out.Body), duration)
	spanEnd(nil)
	return out, nil
}

// errorMessage stringifies an upstream error body. It prefers the message of a
// JSON error object and falls back to the raw body, then the status text.
func errorMessage(resp *UpstreamResponse) string {
	body := strings.TrimSpace(string(resp.Body))
	if body == "" {
		return http.StatusText(resp.Status)
	}

	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err == nil {
		if len(payload.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(payload.Error, &nested); err == nil && nested.Message != "" {
				return nested.Message
			}
			var flat string
			if err := json.Unmarshal(payload.Error, &flat); err == nil && flat != "" {
				return flat
			}
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return body
}

// restyLogger routes resty's internal messages into the relay logger.
type restyLogger struct {
	logger *logging.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.ErrorTag("UPSTREAM", strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.WarnTag("UPSTREAM", strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.DebugTag("UPSTREAM", strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// String describes the client for startup logs.
func (c *Client) String() string {
	return fmt.Sprintf("vectorize.Client(%s)", c.endpoint)
}
