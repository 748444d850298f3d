package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformconfig "vectorize-relay/internal/platform/config"
	platformerrors "vectorize-relay/internal/platform/errors"
	platformlogging "vectorize-relay/internal/platform/logging"
	testhelpers "vectorize-relay/internal/platform/testing"
)

func testState(env map[string]string) *appState {
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return &appState{
		loader:  platformconfig.NewLoader().WithDotEnv(false).WithLookup(lookup),
		console: io.Discard,
	}
}

func TestInitGraphOrder(t *testing.T) {
	steps := InitGraph()
	want := []string{
		"config:load-runtime",
		"logging:init-provider",
		"observability:setup-hooks",
		"upstream:init-client",
	}
	require.Len(t, steps, len(want))
	for i, step := range steps {
		assert.Equal(t, want[i], step.ID, "step %d", i)
		assert.NotNil(t, step.Execute, step.ID)
	}
}

func TestExecuteInitGraph(t *testing.T) {
	state := testState(map[string]string{"LOG_LEVEL": "DEBUG"})
	require.NoError(t, executeInitSteps(context.Background(), InitGraph(), state))
	defer state.logger.Close()
	defer state.observabilityShutdown(context.Background())

	assert.NotNil(t, state.config)
	assert.Equal(t, "defaults+env", state.configPath)
	assert.NotNil(t, state.logger)
	assert.NotNil(t, state.metrics)
	assert.NotNil(t, state.client)
	assert.NotNil(t, state.relay)
	assert.NotNil(t, state.pipeline)
	assert.True(t, state.config.UsesDevCredentials())
}

func TestExecuteInitStepsMissingDependency(t *testing.T) {
	steps := []initStep{{
		ID:        "b",
		DependsOn: []string{"a"},
		Execute:   func(context.Context, *appState) error { return nil },
	}}
	err := executeInitSteps(context.Background(), steps, &appState{})
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindBootstrap))
	assert.Contains(t, err.Error(), "dependency a not satisfied")
}

func TestExecuteInitStepsWrapsWithStepKind(t *testing.T) {
	steps := []initStep{{
		ID:      "x",
		Kind:    platformerrors.KindConfig,
		Execute: func(context.Context, *appState) error { return errors.New("boom") },
	}}
	err := executeInitSteps(context.Background(), steps, &appState{})
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindConfig))

	err = executeInitSteps(context.Background(), nil, nil)
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindBootstrap))
}

func TestConfigStepFailure(t *testing.T) {
	state := testState(map[string]string{"PORT": "not-a-port"})
	err := executeInitSteps(context.Background(), InitGraph(), state)
	require.Error(t, err)
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindConfig))
	assert.Nil(t, state.logger)
}

func TestLogBootstrapGraphOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := platformlogging.New(platformlogging.Config{Level: "INFO", Console: &buf})
	require.NoError(t, err)

	logBootstrapGraph(InitGraph(), logger)
	require.NoError(t, logger.Close())

	out := buf.String()
	assert.Contains(t, out, "init graph")
	for _, step := range InitGraph() {
		assert.Contains(t, out, step.ID)
	}
}

func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	require.NoError(t, l.Close())
	return port
}

func TestRunServesAndShutsDown(t *testing.T) {
	stub := testhelpers.NewUpstreamStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write([]byte("<svg/>"))
	})
	state := testState(map[string]string{
		"HOST":                  "127.0.0.1",
		"PORT":                  freePort(t),
		"VECTORIZER_API_URL":    stub.URL(),
		"VECTORIZER_API_ID":     "id",
		"VECTORIZER_API_SECRET": "secret",
	})
	state.addr = make(chan string, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, state) }()

	var addr string
	select {
	case addr = <-state.addr:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	_ = resp.Body.Close()
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "vectorize-relay", health["service"])

	resp, err = http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownGrace + time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunPortInUse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	_, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)

	state := testState(map[string]string{"HOST": "127.0.0.1", "PORT": port})
	err = run(context.Background(), state)
	require.Error(t, err)
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindTransport))
}
