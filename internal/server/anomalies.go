package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	anomalydomain "github.com/fluxhq/flux/internal/anomaly/domain"
	querydomain "github.com/fluxhq/flux/internal/query/domain"
	"github.com/fluxhq/flux/pkg/db/pagination"
)

func (s *Server) ListAnomalies(c *gin.Context) {
	project, ok := projectFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	filter := anomalydomain.ListFilter{
		AnomalyType: strings.TrimSpace(c.Query("type")),
		Severity:    strings.TrimSpace(c.Query("severity")),
		SourceName:  strings.TrimSpace(c.Query("source")),
		Pagination:  page,
	}
	if raw := strings.TrimSpace(c.Query("acknowledged")); raw != "" {
		acked := raw == "true" || raw == "1"
		filter.Acknowledged = &acked
	}
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		since, err := querydomain.ParseTime(raw, s.clock.Now())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		filter.Since = since
	}

	anomalies, err := s.anomalySvc.List(c.Request.Context(), project.ID, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"anomalies": anomalies})
}

func (s *Server) GetAnomaly(c *gin.Context) {
	project, ok := projectFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	anomaly, err := s.anomalySvc.Get(c.Request.Context(), project.ID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, anomaly)
}

type acknowledgeRequest struct {
	By string `json:"by"`
}

func (s *Server) AcknowledgeAnomaly(c *gin.Context) {
	project, ok := projectFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req acknowledgeRequest
	_ = c.ShouldBindJSON(&req)

	anomaly, err := s.anomalySvc.Acknowledge(c.Request.Context(), project.ID, id, strings.TrimSpace(req.By))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, anomaly)
}
