package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vectorize-relay/internal/domain/image"
	"vectorize-relay/internal/platform/observability"
)

// ServiceName is reported by the health and descriptor endpoints.
const ServiceName = "vectorize-relay"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// EndpointInfo describes one route in the descriptor.
type EndpointInfo struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// DescriptorResponse is the body of GET /.
type DescriptorResponse struct {
	Service   string         `json:"service"`
	Endpoints []EndpointInfo `json:"endpoints"`
	Options   []string       `json:"options"`
}

// HealthService serves liveness, the endpoint descriptor and metrics.
type HealthService struct {
	metrics *observability.Metrics
	now     func() time.Time
}

// NewHealthService creates the service. A nil metrics disables GET /metrics.
func NewHealthService(metrics *observability.Metrics) *HealthService {
	return &HealthService{metrics: metrics, now: time.Now}
}

// Register mounts the routes on router.
func (s *HealthService) Register(_ context.Context, router *gin.RouterGroup) error {
	router.GET("/health", s.handleHealth)
	router.GET("/", s.handleDescriptor)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return nil
}

func (s *HealthService) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   ServiceName,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
}

func (s *HealthService) handleDescriptor(c *gin.Context) {
	endpoints := []EndpointInfo{
		{Method: http.MethodGet, Path: "/health", Description: "Liveness check"},
		{Method: http.MethodPost, Path: "/vectorize", Description: "Vectorize an uploaded image (multipart field \"image\")"},
	}
	if s.metrics != nil {
		endpoints = append(endpoints, EndpointInfo{Method: http.MethodGet, Path: "/metrics", Description: "Prometheus metrics"})
	}
	c.JSON(http.StatusOK, DescriptorResponse{
		Service:   ServiceName,
		Endpoints: endpoints,
		Options:   append([]string(nil), image.OptionKeys...),
	})
}
