package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	tenantdomain "github.com/fluxhq/flux/internal/tenant/domain"
)

const (
	headerIngestKey   = "X-Flux-Key"
	contextProjectKey = "flux_project"
)

// RequestLogger logs each request with correlation identifiers and safe
// fields.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader("X-Request-Id"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-Id", requestID)

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if project, ok := projectFrom(c); ok {
			fields = append(fields, zap.String("project_id", project.ID.String()))
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			fields = append(fields, zap.String("error", lastErr.Error()))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// IngestKeyAuth resolves the tenant from the ingest key header and stores
// it on the request context.
func (s *Server) IngestKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(headerIngestKey))
		if key == "" {
			// Accept the Authorization header too, for clients that cannot
			// set custom headers.
			auth := strings.TrimSpace(c.GetHeader("Authorization"))
			key = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
		if key == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		project, err := s.tenantSvc.FindByIngestKey(c.Request.Context(), key)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextProjectKey, project)
		c.Next()
	}
}

// IngestRateLimit applies the per-project token bucket to write routes.
func (s *Server) IngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.ingestLimiter.Enabled() {
			c.Next()
			return
		}
		project, ok := projectFrom(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		result, err := s.ingestLimiter.AllowProject(c.Request.Context(), project.ID.String())
		if err != nil {
			// Redis being down must not take ingestion with it.
			c.Next()
			return
		}
		endpoint := c.FullPath()
		if !result.Allowed {
			s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), project.ID.String(), endpoint, "token_bucket")
			if result.RetryAfter > 0 {
				c.Header("Retry-After", result.RetryAfter.Round(time.Second).String())
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
		s.obsMetrics.RecordRateLimitAllowed(c.Request.Context(), project.ID.String(), endpoint)
		c.Next()
	}
}

func projectFrom(c *gin.Context) (*tenantdomain.Project, bool) {
	value, exists := c.Get(contextProjectKey)
	if !exists {
		return nil, false
	}
	project, ok := value.(*tenantdomain.Project)
	return project, ok && project != nil
}
