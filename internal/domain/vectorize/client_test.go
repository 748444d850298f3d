package vectorize

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectorize-relay/internal/domain/image"
	"vectorize-relay/internal/platform/errors"
	"vectorize-relay/internal/platform/observability"
	testhelpers "vectorize-relay/internal/platform/testing"
)

func newTestClient(t *testing.T, endpoint string, timeout time.Duration) *Client {
	t.Helper()
	client, err := NewClient(ClientOptions{
		Endpoint:  endpoint,
		APIID:     "test-id",
		APISecret: "test-secret",
		Timeout:   timeout,
		Logger:    testhelpers.SetupTestLogger(t),
		Metrics:   observability.NewMetrics("client_test"),
	})
	require.NoError(t, err)
	return client
}

func outbound(t *testing.T) *OutboundRequest {
	t.Helper()
	req, err := BuildRequest(&image.UploadRequest{
		Data:        []byte("raster-bytes"),
		Filename:    "in.png",
		ContentType: "image/png",
		Options:     image.ProcessingOptions{"mode": "test", "policy.retention_days": "1"},
	})
	require.NoError(t, err)
	return req
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(ClientOptions{APIID: "a", APISecret: "b"})
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	_, err = NewClient(ClientOptions{Endpoint: "http://x", APIID: "a"})
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestClient_SendsMultipartWithBasicAuth(t *testing.T) {
	stub := testhelpers.NewUpstreamStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("X-Image-Token", "tok")
		_, _ = w.Write([]byte(sampleSVG))
	})

	resp, err := newTestClient(t, stub.URL(), 0).Vectorize(context.Background(), outbound(t))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, sampleSVG, string(resp.Body))
	assert.Equal(t, "tok", resp.Header.Get("X-Image-Token"))

	reqs := stub.Requests()
	require.Len(t, reqs, 1)
	rec := reqs[0]
	assert.Equal(t, http.MethodPost, rec.Method)
	assert.Equal(t, "/api/v1/vectorize", rec.Path)
	assert.True(t, rec.BasicOK)
	assert.Equal(t, "test-id", rec.Username)
	assert.Equal(t, "test-secret", rec.Password)
	assert.Equal(t, []string{"test"}, rec.Fields["mode"])
	assert.Equal(t, []string{"1"}, rec.Fields["policy.retention_days"])
	assert.Equal(t, "in.png", rec.Files["image"].Filename)
	assert.Equal(t, "image/png", rec.Files["image"].ContentType)
	assert.Equal(t, []byte("raster-bytes"), rec.Files["image"].Data)
}

func TestClient_UpstreamErrorStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "nested json error", status: http.StatusPaymentRequired, body: `{"error":{"code":402,"message":"Insufficient credits"}}`, message: "Insufficient credits"},
		{name: "flat json error", status: http.StatusBadRequest, body: `{"error":"bad mode"}`, message: "bad mode"},
		{name: "message field", status: http.StatusUnauthorized, body: `{"message":"invalid credentials"}`, message: "invalid credentials"},
		{name: "plain text", status: http.StatusBadGateway, body: "gateway down", message: "gateway down"},
		{name: "empty body", status: http.StatusServiceUnavailable, body: "", message: "Service Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := testhelpers.NewUpstreamStub(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := newTestClient(t, stub.URL(), 0).Vectorize(context.Background(), outbound(t))
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindUpstream))
			assert.Equal(t, CodeUpstreamError, errors.CodeOf(err))

			var upErr *UpstreamError
			require.True(t, stderrors.As(err, &upErr))
			assert.Equal(t, tt.status, upErr.Status)
			assert.Equal(t, tt.message, upErr.Message)
			assert.Equal(t, 1, stub.Count(), "failed calls must not be retried")
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	stub := testhelpers.NewUpstreamStub(t, nil)
	url := stub.URL()
	stub.Server.Close()

	_, err := newTestClient(t, url, time.Second).Vectorize(context.Background(), outbound(t))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTransport))
	assert.Equal(t, CodeTransportError, errors.CodeOf(err))
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	stub := testhelpers.NewUpstreamStub(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := newTestClient(t, stub.URL(), 50*time.Millisecond).Vectorize(context.Background(), outbound(t))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTransport))
}

func TestClient_ContextCancellation(t *testing.T) {
	started := make(chan struct{})
	stub := testhelpers.NewUpstreamStub(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := newTestClient(t, stub.URL(), 0).Vectorize(ctx, outbound(t))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTransport))
	assert.ErrorIs(t, err, context.Canceled)
}
