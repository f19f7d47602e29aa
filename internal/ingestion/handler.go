package ingestion

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	httperr "github.com/pulse-analytics/pulse/internal/core/errors"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgBodyTooLarge   = "Request body exceeds maximum allowed size"
)

// ingestionError carries the structured HTTP error shape from a helper back to the handler.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	field      string
	details    interface{}
	retryAfter int
}

func (e *ingestionError) Error() string {
	return e.message
}

// collectResponse is the success body. Bot-filtered events are included in Count.
type collectResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

// CollectHandler handles POST /api/collect.
func (s *Service) CollectHandler(c *gin.Context) {
	body, ierr := s.readBody(c)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	res, err := s.Collect(c.Request.Context(), Request{
		Body:       body,
		UserAgent:  c.Request.UserAgent(),
		RemoteAddr: c.ClientIP(),
	})
	if err != nil {
		writeError(c, toIngestionError(err))
		return
	}

	c.JSON(http.StatusOK, collectResponse{Success: true, Count: res.Accepted})
}

// readBody reads the request body up to the configured limit.
func (s *Service) readBody(c *gin.Context) ([]byte, *ingestionError) {
	maxBytes := int64(s.maxBodySizeBytes)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBytes+1))
	if err != nil {
		slog.Error("[Ingestion] Failed to read request body", "error", err)
		return nil, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(body)) > maxBytes {
		slog.Warn("[Ingestion] Request body exceeds maximum size", "size", len(body), "max", maxBytes)
		return nil, &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpPayloadTooLargeErr,
			message:    msgBodyTooLarge,
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}
	return body, nil
}

func toIngestionError(err error) *ingestionError {
	if errors.Is(err, ErrInvalidBody) {
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}

	status, body := httperr.Response(err)
	ie := &ingestionError{
		statusCode: status,
		errorType:  body.ErrorType,
		message:    body.Error,
		field:      body.Field,
		details:    body.Details,
	}

	var rerr *httperr.RateLimitedError
	if errors.As(err, &rerr) {
		ie.retryAfter = int(rerr.RetryAfter.Seconds() + 0.999)
		if ie.retryAfter < 1 {
			ie.retryAfter = 1
		}
	}
	return ie
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	if err.retryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(err.retryAfter))
	}
	c.JSON(err.statusCode, httperr.ErrorResponse{
		Error:     err.message,
		ErrorType: err.errorType,
		Field:     err.field,
		Details:   err.details,
	})
}
