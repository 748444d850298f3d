package httptransport

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vectorize-relay/internal/domain/vectorize"
	"vectorize-relay/internal/platform/config"
	"vectorize-relay/internal/platform/errors"
	"vectorize-relay/internal/platform/logging"
	"vectorize-relay/internal/platform/observability"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-Id"

// ExposedHeaders are readable by browser clients on cross-origin responses.
var ExposedHeaders = []string{
	vectorize.HeaderImageToken,
	vectorize.HeaderEditorURL,
	vectorize.HeaderCreditsCalculated,
	vectorize.HeaderCreditsCharged,
	HeaderRequestID,
	"Content-Length",
	"Content-Type",
}

// Options configures the HTTP router builder.
type Options struct {
	Config  *config.Config
	Logger  *logging.Logger
	Metrics *observability.Metrics
}

// Router bundles together the gin engine and its root route group.
type Router struct {
	Engine *gin.Engine
	Root   *gin.RouterGroup
}

// Build constructs a gin engine pre-configured with recovery, request ids,
// logging, metrics, CORS and the JSON 404 handler.
func Build(opts Options) (*Router, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("http router requires config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	if strings.EqualFold(opts.Config.Log.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(requestIDMiddleware())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", HeaderRequestID},
		ExposeHeaders:   ExposedHeaders,
		MaxAge:          12 * time.Hour,
	}))
	engine.Use(recoveryMiddleware(logger))
	engine.Use(loggingMiddleware(logger))
	engine.Use(observabilityMiddleware(opts.Metrics))

	if err := engine.SetTrustedProxies(nil); err != nil {
		return nil, errors.Wrap(errors.KindConfig, "http.build", "failed to set trusted proxies", err)
	}

	if dir := opts.Config.Web.StaticDir; dir != "" {
		engine.Use(static.Serve("/app", static.LocalFile(dir, true)))
		logger.InfoTag("HTTP", "serving static client from %s at /app", dir)
	}

	engine.NoRoute(func(c *gin.Context) {
		RespondError(c, errors.New(errors.KindNotFound, "http.route",
			fmt.Sprintf("Route %s %s not found", c.Request.Method, c.Request.URL.Path)))
	})

	return &Router{
		Engine: engine,
		Root:   &engine.RouterGroup,
	}, nil
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(HeaderRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestID returns the correlation id assigned to c.
func RequestID(c *gin.Context) string {
	return c.GetString(HeaderRequestID)
}

func recoveryMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.ErrorTag("HTTP", "panic while handling %s %s [%s]: %v",
			c.Request.Method, c.Request.URL.Path, RequestID(c), recovered)
		RespondError(c, errors.New(errors.KindInternal, "http.recover", fmt.Sprint(recovered)))
	})
}

func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		if len(c.Errors) > 0 && status >= http.StatusInternalServerError {
			logger.WarnTag("HTTP", "%s %s -> %d (%s) [%s] %v",
				c.Request.Method, c.Request.URL.Path, status, duration, RequestID(c), c.Errors.Last().Err)
			return
		}
		logger.InfoTag("HTTP", "%s %s -> %d (%s) [%s]",
			c.Request.Method, c.Request.URL.Path, status, duration, RequestID(c))
	}
}

func observabilityMiddleware(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		reqCtx, spanEnd := observability.StartSpan(c.Request.Context(), "http.server", route)
		c.Request = c.Request.WithContext(reqCtx)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		var spanErr error
		if len(c.Errors) > 0 {
			spanErr = c.Errors.Last().Err
		} else if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			spanErr = fmt.Errorf("status %d", status)
		}
		spanEnd(spanErr)

		metrics.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), duration)
	}
}
