package vectorize

import (
	"context"
	stderrors "errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	domainimage "vectorize-relay/internal/domain/image"
	domainvectorize "vectorize-relay/internal/domain/vectorize"
	"vectorize-relay/internal/platform/errors"
	"vectorize-relay/internal/platform/logging"
	httptransport "vectorize-relay/internal/transport/http"
)

// Service is the HTTP front of the vectorize relay.
type Service struct {
	logger    *logging.Logger
	pipeline  *domainimage.Pipeline
	processor Processor
}

// NewService creates the vectorize HTTP service.
func NewService(
	logger *logging.Logger,
	pipeline *domainimage.Pipeline,
	processor Processor,
) (*Service, error) {
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "vectorize.new", "logger is required")
	}
	if pipeline == nil {
		return nil, errors.New(errors.KindConfig, "vectorize.new", "image pipeline is required")
	}
	if processor == nil {
		return nil, errors.New(errors.KindConfig, "vectorize.new", "relay is required")
	}

	return &Service{
		logger:    logger,
		pipeline:  pipeline,
		processor: processor,
	}, nil
}

// Register mounts POST /vectorize.
func (s *Service) Register(_ context.Context, router *gin.RouterGroup) error {
	router.POST("/vectorize", s.handlePost)

	s.logger.InfoTag("HTTP", "vectorize route registered (max upload %d bytes)", s.pipeline.MaxBytes())
	return nil
}

func (s *Service) handlePost(c *gin.Context) {
	upload, err := s.parseUpload(c)
	if err != nil {
		s.logger.WarnTag("VECTORIZE", "rejected upload [%s]: %v", httptransport.RequestID(c), err)
		httptransport.RespondError(c, err)
		return
	}

	result, err := s.processor.Process(c.Request.Context(), upload)
	if err != nil {
		s.logger.WarnTag("VECTORIZE", "relay failed [%s]: %v", httptransport.RequestID(c), err)
		httptransport.RespondError(c, err)
		return
	}

	s.respondResult(c, result)
}

func (s *Service) parseUpload(c *gin.Context) (*domainimage.UploadRequest, error) {
	maxBytes := s.pipeline.MaxBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		if isBodyTooLarge(err) {
			return nil, errors.Wrap(errors.KindValidation, "vectorize.parse",
				fmt.Sprintf("image exceeds maximum size of %d bytes", maxBytes), err).
				WithCode(domainimage.CodeFileTooLarge)
		}
		return nil, errors.Wrap(errors.KindValidation, "vectorize.parse",
			"No image file provided", err).WithCode(domainimage.CodeMissingImage)
	}

	file, header, err := c.Request.FormFile(domainimage.FieldImage)
	if err != nil {
		return nil, errors.Wrap(errors.KindValidation, "vectorize.parse",
			"No image file provided", err).WithCode(domainimage.CodeMissingImage)
	}
	defer file.Close()

	if header.Size > maxBytes {
		return nil, errors.New(errors.KindValidation, "vectorize.parse",
			fmt.Sprintf("image exceeds maximum size of %d bytes", maxBytes)).
			WithCode(domainimage.CodeFileTooLarge)
	}

	output, err := s.pipeline.Process(c.Request.Context(), domainimage.Input{
		Reader:       file,
		Filename:     header.Filename,
		DeclaredType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		return nil, err
	}

	return &domainimage.UploadRequest{
		Data:        output.Bytes,
		Filename:    output.Filename,
		ContentType: output.ContentType,
		Options:     domainimage.OptionsFrom(formLookup(c.Request.MultipartForm)),
	}, nil
}

func (s *Service) respondResult(c *gin.Context, result *domainvectorize.NormalizedResult) {
	c.Header("Cache-Control", "no-store")
	if result.Token != "" {
		c.Header(domainvectorize.HeaderImageToken, result.Token)
	}
	if result.EditorURL != "" {
		c.Header(domainvectorize.HeaderEditorURL, result.EditorURL)
	}
	for name, value := range result.Credits {
		c.Header(name, value)
	}
	c.Data(http.StatusOK, result.ContentType, result.Body)
}

func formLookup(form *multipart.Form) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if form == nil {
			return "", false
		}
		values, ok := form.Value[key]
		if !ok || len(values) == 0 {
			return "", false
		}
		return values[0], true
	}
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if stderrors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
