package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	domainimage "vectorize-relay/internal/domain/image"
	domainvectorize "vectorize-relay/internal/domain/vectorize"
	platformconfig "vectorize-relay/internal/platform/config"
	platformerrors "vectorize-relay/internal/platform/errors"
	platformlogging "vectorize-relay/internal/platform/logging"
	platformobservability "vectorize-relay/internal/platform/observability"
	httptransport "vectorize-relay/internal/transport/http"
	httpvectorize "vectorize-relay/internal/transport/http/vectorize"
)

// shutdownGrace bounds how long Run waits for every service to stop.
const shutdownGrace = 15 * time.Second

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	// loader and console are test seams; nil means the process defaults.
	loader  *platformconfig.Loader
	console io.Writer

	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	metrics               *platformobservability.Metrics
	observabilityShutdown platformobservability.ShutdownFunc
	pipeline              *domainimage.Pipeline
	client                *domainvectorize.Client
	relay                 *domainvectorize.Relay

	// addr is set once the HTTP listener is bound.
	addr chan string
}

// Run 启动整个服务生命周期，负责加载配置、初始化依赖和优雅关停。
func Run(ctx context.Context) error {
	return run(ctx, &appState{})
}

func run(ctx context.Context, state *appState) error {
	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	logger := state.logger
	if state.config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}
	if state.relay == nil || state.pipeline == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"relay not initialised",
		)
	}
	defer logger.Close()

	logBootstrapGraph(steps, logger)

	if shutdown := state.observabilityShutdown; shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WarnTag("BOOT", "observability did not shut down cleanly: %v", err)
			}
		}()
	}

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		_ = group.Wait()
		return err
	}

	return waitForShutdown(signalCtx, groupCtx, cancel, logger, group)
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("BOOT", "init graph")
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag("BOOT", "  %s: %s", step.ID, step.Title)
			continue
		}
		logger.InfoTag("BOOT", "  %s: %s (after %s)", step.ID, step.Title, strings.Join(step.DependsOn, ", "))
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph returns the ordered startup steps.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load-runtime",
			Title:   "Load runtime configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load-runtime"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "upstream:init-client",
			Title:     "Initialise vectorizer client",
			DependsOn: []string{"config:load-runtime", "logging:init-provider", "observability:setup-hooks"},
			Kind:      platformerrors.KindConfig,
			Execute:   initUpstreamStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := state.loader
	if loader == nil {
		loader = platformconfig.NewLoader()
	}

	result, err := loader.Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load-runtime", "failed to load configuration", err)
	}

	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
		Console:  state.console,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logger = logger
	logger.InfoTag("BOOT", "logging ready [%s] %s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state.logger == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown

	if state.config.Metrics.Enabled {
		state.metrics = platformobservability.NewMetrics(state.config.Metrics.Namespace)
	}
	return nil
}

func initUpstreamStep(_ context.Context, state *appState) error {
	cfg := state.config
	logger := state.logger

	client, err := domainvectorize.NewClient(domainvectorize.ClientOptions{
		Endpoint:  cfg.Upstream.Endpoint,
		APIID:     cfg.Upstream.APIID,
		APISecret: cfg.Upstream.APISecret,
		Timeout:   cfg.Upstream.Timeout,
		Logger:    logger,
		Metrics:   state.metrics,
	})
	if err != nil {
		return err
	}

	relay, err := domainvectorize.NewRelay(client, logger, state.metrics)
	if err != nil {
		return err
	}

	pipeline, err := domainimage.NewPipeline(domainimage.Options{
		MaxBytes: cfg.Upload.MaxBytes,
		Logger:   logger,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "upstream:init-client", "failed to create image pipeline", err)
	}

	if cfg.UsesDevCredentials() {
		logger.WarnTag("CONFIG", "using development placeholder credentials; set %s and %s",
			platformconfig.EnvAPIID, platformconfig.EnvAPISecret)
	}
	logger.InfoTag("UPSTREAM", "%s timeout=%s", client, cfg.Upstream.Timeout)

	state.client = client
	state.relay = relay
	state.pipeline = pipeline
	return nil
}

func buildHandler(ctx context.Context, state *appState) (http.Handler, error) {
	router, err := httptransport.Build(httptransport.Options{
		Config:  state.config,
		Logger:  state.logger,
		Metrics: state.metrics,
	})
	if err != nil {
		return nil, err
	}

	vectorizeService, err := httpvectorize.NewService(state.logger, state.pipeline, state.relay)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindBootstrap, "vectorize:new-service", "failed to create vectorize service", err)
	}

	if err := httptransport.NewHealthService(state.metrics).Register(ctx, router.Root); err != nil {
		return nil, err
	}
	if err := vectorizeService.Register(ctx, router.Root); err != nil {
		return nil, err
	}
	return router.Engine, nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	cfg := state.config
	logger := state.logger

	handler, err := buildHandler(groupCtx, state)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.Server.IP, strconv.Itoa(cfg.Server.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "http:listen", "failed to bind "+addr, err)
	}
	if state.addr != nil {
		state.addr <- listener.Addr().String()
	}

	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "vectorize relay listening on http://%s", listener.Addr())

		go func() {
			<-groupCtx.Done()
			timeout := cfg.Server.ShutdownTimeout
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "HTTP server shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "HTTP server stopped")
			}
		}()

		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	signalCtx context.Context,
	groupCtx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	select {
	case <-signalCtx.Done():
		logger.InfoTag("BOOT", "shutdown requested (%v), releasing resources", context.Cause(signalCtx))
	case <-groupCtx.Done():
		logger.WarnTag("BOOT", "a service stopped unexpectedly, shutting down")
	}

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(shutdownGrace):
		logger.ErrorTag("BOOT", "shutdown timed out")
		return platformerrors.New(platformerrors.KindBootstrap, "bootstrap.shutdown", "shutdown timed out")
	}
	return nil
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	if _, err := startHTTPServer(state, g, groupCtx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	return nil
}
