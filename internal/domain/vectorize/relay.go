package vectorize

import (
	"context"

	"vectorize-relay/internal/domain/image"
	"vectorize-relay/internal/platform/errors"
	"vectorize-relay/internal/platform/logging"
	"vectorize-relay/internal/platform/observability"
)

// Relay runs one upload through translation, the upstream call and
// normalization. It holds no per-request state.
type Relay struct {
	upstream Upstream
	logger   *logging.Logger
	metrics  *observability.Metrics
}

// NewRelay wires a relay around an upstream client.
func NewRelay(upstream Upstream, logger *logging.Logger, metrics *observability.Metrics) (*Relay, error) {
	if upstream == nil {
		return nil, errors.New(errors.KindConfig, "vectorize.relay", "upstream client is required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Relay{upstream: upstream, logger: logger, metrics: metrics}, nil
}

// Process forwards upload and returns the normalized result.
func (r *Relay) Process(ctx context.Context, upload *image.UploadRequest) (*NormalizedResult, error) {
	outbound, err := BuildRequest(upload)
	if err != nil {
		return nil, err
	}

	r.logger.DebugTag("VECTORIZE", "forwarding %s (%d bytes) fields=%v", upload.Filename, len(upload.Data), outbound.Fields)

	resp, err := r.upstream.Vectorize(ctx, outbound)
	if err != nil {
		return nil, err
	}

	result := Normalize(resp)
	r.metrics.ObserveShape(string(result.Shape))
	observability.RecordMetric(ctx, "vectorize.output_bytes", float64(len(result.Body)),
		map[string]string{"shape": string(result.Shape)})
	r.logger.InfoTag("VECTORIZE", "%s -> %s (%d bytes, shape=%s, token=%t, editor=%t)",
		upload.Filename, result.ContentType, len(result.Body), result.Shape,
		result.Token != "", result.EditorURL != "")
	return result, nil
}
