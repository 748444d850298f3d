package httptransport

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vectorize-relay/internal/domain/vectorize"
	"vectorize-relay/internal/platform/errors"
)

// Client facing codes owned by the transport layer.
const (
	CodeNotFound      = "NotFound"
	CodeInternalError = "InternalError"
	CodeBadRequest    = "BadRequest"
)

// ErrorResponse 定义统一的错误返回结构体
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// transportFailureMessage is returned when no upstream response was received.
const transportFailureMessage = "Failed to reach the vectorization service"

// ErrorFor maps an error to its HTTP status and JSON body.
func ErrorFor(err error) (int, ErrorResponse) {
	code := errors.CodeOf(err)

	switch errors.KindOf(err) {
	case errors.KindValidation:
		if code == "" {
			code = CodeBadRequest
		}
		return http.StatusBadRequest, ErrorResponse{Error: code, Message: messageOf(err)}
	case errors.KindUpstream:
		var upErr *vectorize.UpstreamError
		if stderrors.As(err, &upErr) {
			status := upErr.Status
			if status < 100 || status > 999 {
				status = http.StatusInternalServerError
			}
			return status, ErrorResponse{
				Error:   vectorize.CodeUpstreamError,
				Message: upErr.Message,
				Status:  upErr.Status,
			}
		}
		return http.StatusInternalServerError, ErrorResponse{Error: vectorize.CodeUpstreamError, Message: messageOf(err)}
	case errors.KindTransport:
		return http.StatusInternalServerError, ErrorResponse{Error: vectorize.CodeTransportError, Message: transportFailureMessage}
	case errors.KindNotFound:
		return http.StatusNotFound, ErrorResponse{Error: CodeNotFound, Message: messageOf(err)}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: CodeInternalError, Message: "Internal server error"}
	}
}

// RespondError writes the JSON error envelope for err and aborts the chain.
func RespondError(c *gin.Context, err error) {
	status, body := ErrorFor(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func messageOf(err error) string {
	var typed *errors.Error
	if stderrors.As(err, &typed) && typed.Message != "" {
		return typed.Message
	}
	return err.Error()
}
