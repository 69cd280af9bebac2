package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	anomalydomain "github.com/fluxhq/flux/internal/anomaly/domain"
	ingestdomain "github.com/fluxhq/flux/internal/ingest/domain"
	metricdefdomain "github.com/fluxhq/flux/internal/metricdef/domain"
	querydomain "github.com/fluxhq/flux/internal/query/domain"
	rollupdomain "github.com/fluxhq/flux/internal/rollup/domain"
	tenantdomain "github.com/fluxhq/flux/internal/tenant/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "rate limit exceeded",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ingestdomain.ErrEmptyBatch),
		errors.Is(err, ingestdomain.ErrMissingName),
		errors.Is(err, ingestdomain.ErrMissingValue),
		errors.Is(err, ingestdomain.ErrInvalidType),
		errors.Is(err, metricdefdomain.ErrInvalidName),
		errors.Is(err, metricdefdomain.ErrInvalidType),
		errors.Is(err, querydomain.ErrInvalidBucketSize),
		errors.Is(err, querydomain.ErrInvalidRange),
		errors.Is(err, querydomain.ErrInvalidTime),
		errors.Is(err, querydomain.ErrMissingMetric),
		errors.Is(err, querydomain.ErrMissingTagKey),
		errors.Is(err, rollupdomain.ErrInvalidBucketSize),
		errors.Is(err, rollupdomain.ErrInvalidWindow),
		errors.Is(err, anomalydomain.ErrMissingSource),
		errors.Is(err, tenantdomain.ErrInvalidName),
		errors.Is(err, tenantdomain.ErrInvalidPlatformID):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, tenantdomain.ErrNotFound),
		errors.Is(err, metricdefdomain.ErrNotFound),
		errors.Is(err, anomalydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
