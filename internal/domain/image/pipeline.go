package image

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"vectorize-relay/internal/platform/errors"
	"vectorize-relay/internal/platform/logging"
)

// Pipeline reads an uploaded image into memory under a size cap and fills in
// a content type when the client did not declare a usable one.
type Pipeline struct {
	maxBytes int64
	logger   *logging.Logger
}

// Options configures the pipeline behaviour.
type Options struct {
	MaxBytes int64
	Logger   *logging.Logger
}

// Input describes a streaming image payload.
type Input struct {
	Reader       io.Reader
	Filename     string
	DeclaredType string
}

// Output contains the buffered image and its resolved metadata.
type Output struct {
	Bytes       []byte
	Filename    string
	ContentType string
	Format      string
}

// NewPipeline constructs an intake pipeline.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.MaxBytes <= 0 {
		return nil, fmt.Errorf("max upload size must be positive")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Pipeline{maxBytes: opts.MaxBytes, logger: opts.Logger}, nil
}

// MaxBytes returns the configured upload cap.
func (p *Pipeline) MaxBytes() int64 {
	return p.maxBytes
}

// Process buffers input, rejecting empty payloads and payloads larger than the cap.
func (p *Pipeline) Process(ctx context.Context, input Input) (*Output, error) {
	if input.Reader == nil {
		return nil, errors.New(errors.KindValidation, "image.process", "image field is required").
			WithCode(CodeMissingImage)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.KindTransport, "image.process", "request cancelled", err)
	}

	limited := &io.LimitedReader{R: input.Reader, N: p.maxBytes + 1}
	buf := bytes.NewBuffer(make([]byte, 0, 32*1024))
	if _, err := io.Copy(buf, limited); err != nil {
		return nil, errors.Wrap(errors.KindValidation, "image.process", "failed to read image", err).
			WithCode(CodeMissingImage)
	}

	if int64(buf.Len()) > p.maxBytes {
		p.logger.WarnTag("VECTORIZE", "rejected oversized upload: name=%s max=%d", input.Filename, p.maxBytes)
		return nil, errors.New(errors.KindValidation, "image.process",
			fmt.Sprintf("image exceeds maximum size of %d bytes", p.maxBytes)).WithCode(CodeFileTooLarge)
	}
	if buf.Len() == 0 {
		return nil, errors.New(errors.KindValidation, "image.process", "image payload is empty").
			WithCode(CodeMissingImage)
	}

	data := buf.Bytes()
	format := DetectFormat(input.Filename, data)
	return &Output{
		Bytes:       data,
		Filename:    input.Filename,
		ContentType: ResolveContentType(input.DeclaredType, format, data),
		Format:      format,
	}, nil
}
