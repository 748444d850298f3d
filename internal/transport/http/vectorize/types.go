package vectorize

import (
	"context"

	domainimage "vectorize-relay/internal/domain/image"
	domainvectorize "vectorize-relay/internal/domain/vectorize"
)

const (
	// multipartOverhead is the body allowance on top of the image cap for
	// boundaries, part headers and option fields.
	multipartOverhead = 1 << 20
	// multipartMemory is held in memory before parts spill to temp files.
	multipartMemory = 32 << 20
)

// Processor runs one upload through the relay.
type Processor interface {
	Process(ctx context.Context, upload *domainimage.UploadRequest) (*domainvectorize.NormalizedResult, error)
}
