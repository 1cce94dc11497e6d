package response

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"savings-ledger/pkg/apperror"
)

// HeaderRequestID is propagated from clients and echoed in every envelope.
const HeaderRequestID = "X-Request-ID"

// CtxRequestID is the gin context key holding the request ID.
const CtxRequestID = "request_id"

// SuccessResponse wraps every 2xx body.
type SuccessResponse struct {
	Data      any    `json:"data"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse carries the stable error code clients switch on.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

func OK(c *gin.Context, data any)       { success(c, http.StatusOK, data) }
func Created(c *gin.Context, data any)  { success(c, http.StatusCreated, data) }
func Accepted(c *gin.Context, data any) { success(c, http.StatusAccepted, data) }

func success(c *gin.Context, status int, data any) {
	c.JSON(status, SuccessResponse{Data: data, RequestID: requestID(c), Timestamp: now()})
}

// Error maps err onto its AppError code; anything else becomes SYS_000.
// The full error, cause included, is attached to the gin context for the
// request logger while the client only sees the public message.
func Error(c *gin.Context, err error) {
	_ = c.Error(err)

	status, code, msg := http.StatusInternalServerError, "SYS_000", "Internal server error"
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, code, msg = appErr.HTTPStatus, appErr.Code, appErr.Message
	}
	c.JSON(status, ErrorResponse{ErrorCode: code, Message: msg, RequestID: requestID(c), Timestamp: now()})
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

// requestID prefers the middleware-assigned ID, then the client header.
func requestID(c *gin.Context) string {
	if id := c.GetString(CtxRequestID); id != "" {
		return id
	}
	if c.Request != nil {
		if h := c.GetHeader(HeaderRequestID); h != "" {
			return h
		}
	}
	return uuid.NewString()
}
