package testing

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"vectorize-relay/internal/platform/config"
	"vectorize-relay/internal/platform/logging"
)

// SetupTestConfig returns a default config pointed at endpoint.
func SetupTestConfig(t *testing.T, endpoint string) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Server.Port = 3001
	cfg.Log.Level = "DEBUG"
	cfg.Upstream.Endpoint = endpoint
	cfg.Upstream.APIID = "test-id"
	cfg.Upstream.APISecret = "test-secret"
	cfg.Upstream.Timeout = 5 * time.Second
	cfg.Metrics.Namespace = "test_relay"
	return cfg
}

// SetupTestLogger returns a debug level logger with console output discarded.
func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	logger, err := logging.New(logging.Config{
		Level:   "DEBUG",
		Console: io.Discard,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger
}

// RecordedFile is one file part received by the stub upstream.
type RecordedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RecordedRequest is what the stub upstream saw.
type RecordedRequest struct {
	Method   string
	Path     string
	Header   http.Header
	Username string
	Password string
	BasicOK  bool
	Fields   map[string][]string
	Files    map[string]RecordedFile
}

// UpstreamStub is an httptest server standing in for the vectorization API.
type UpstreamStub struct {
	Server   *httptest.Server
	mu       sync.Mutex
	requests []RecordedRequest
}

// NewUpstreamStub starts a stub that records each request and then calls respond.
func NewUpstreamStub(t *testing.T, respond http.HandlerFunc) *UpstreamStub {
	t.Helper()

	stub := &UpstreamStub{}
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Fields: map[string][]string{},
			Files:  map[string]RecordedFile{},
		}
		rec.Username, rec.Password, rec.BasicOK = r.BasicAuth()

		if err := r.ParseMultipartForm(32 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				rec.Fields[k] = v
			}
			for k, headers := range r.MultipartForm.File {
				if len(headers) == 0 {
					continue
				}
				fh := headers[0]
				f, err := fh.Open()
				if err != nil {
					continue
				}
				data, _ := io.ReadAll(f)
				_ = f.Close()
				rec.Files[k] = RecordedFile{
					Filename:    fh.Filename,
					ContentType: fh.Header.Get("Content-Type"),
					Data:        data,
				}
			}
		}

		stub.mu.Lock()
		stub.requests = append(stub.requests, rec)
		stub.mu.Unlock()

		if respond != nil {
			respond(w, r)
		}
	}))
	t.Cleanup(stub.Server.Close)
	return stub
}

// URL returns the stub endpoint.
func (s *UpstreamStub) URL() string {
	return s.Server.URL + "/api/v1/vectorize"
}

// Requests returns a copy of the recorded requests.
func (s *UpstreamStub) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns the number of requests received.
func (s *UpstreamStub) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

func AssertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if expected != actual {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}
