package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	ingestdomain "github.com/fluxhq/flux/internal/ingest/domain"
)

type batchRequest struct {
	Metrics []ingestdomain.MetricRecord `json:"metrics"`
	Events  []ingestdomain.EventRecord  `json:"events"`
}

type metricsRequest struct {
	Metrics []ingestdomain.MetricRecord `json:"metrics"`
}

type eventsRequest struct {
	Events []ingestdomain.EventRecord `json:"events"`
}

// IngestBatch accepts metrics and events in one payload.
func (s *Server) IngestBatch(c *gin.Context) {
	project, ok := projectFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if len(req.Metrics) == 0 && len(req.Events) == 0 {
		AbortWithError(c, ingestdomain.ErrEmptyBatch)
		return
	}

	accepted := 0
	if len(req.Metrics) > 0 {
		result, err := s.ingestSvc.IngestMetrics(c.Request.Context(), project.ID, req.Metrics)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		accepted += result.Accepted
		s.obsMetrics.RecordIngest(c.Request.Context(), "metric", result.Accepted)
	}
	if len(req.Events) > 0 {
		result, err := s.ingestSvc.IngestEvents(c.Request.Context(), project.ID, req.Events)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		accepted += result.Accepted
		s.obsMetrics.RecordIngest(c.Request.Context(), "event", result.Accepted)
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}

// IngestMetrics accepts either a single metric record or a batch.
func (s *Server) IngestMetrics(c *gin.Context) {
	project, ok := projectFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req metricsRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil || len(req.Metrics) == 0 {
		// Single-record payloads come through without the wrapper.
		var single ingestdomain.MetricRecord
		if err := c.ShouldBindBodyWith(&single, binding.JSON); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.Metrics = []ingestdomain.MetricRecord{single}
	}

	result, err := s.ingestSvc.IngestMetrics(c.Request.Context(), project.ID, req.Metrics)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.obsMetrics.RecordIngest(c.Request.Context(), "metric", result.Accepted)

	c.JSON(http.StatusAccepted, result)
}

func (s *Server) IngestEvents(c *gin.Context) {
	project, ok := projectFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req eventsRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil || len(req.Events) == 0 {
		var single ingestdomain.EventRecord
		if err := c.ShouldBindBodyWith(&single, binding.JSON); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.Events = []ingestdomain.EventRecord{single}
	}

	result, err := s.ingestSvc.IngestEvents(c.Request.Context(), project.ID, req.Events)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.obsMetrics.RecordIngest(c.Request.Context(), "event", result.Accepted)

	c.JSON(http.StatusAccepted, result)
}
