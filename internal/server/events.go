package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	querydomain "github.com/fluxhq/flux/internal/query/domain"
	"github.com/fluxhq/flux/pkg/db/pagination"
)

// ListEvents returns raw events matching the query filters, newest first.
func (s *Server) ListEvents(c *gin.Context) {
	project, ok := projectFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	filter, err := s.eventFilter(c, false)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	events, err := s.eventQuerySvc.List(c.Request.Context(), project.ID, *filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) CountEvents(c *gin.Context) {
	project, ok := projectFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	filter, err := s.eventFilter(c, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	count, err := s.eventQuerySvc.Count(c.Request.Context(), project.ID, *filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": count,
		"since": filter.Since,
	})
}

// EventStats returns summary figures plus the busiest event names for the
// filtered window.
func (s *Server) EventStats(c *gin.Context) {
	project, ok := projectFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	filter, err := s.eventFilter(c, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	stats, err := s.eventQuerySvc.Stats(c.Request.Context(), project.ID, *filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	byName, err := s.eventQuerySvc.GroupByName(c.Request.Context(), project.ID, *filter, 0)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":   stats,
		"by_name": byName,
		"since":   filter.Since,
	})
}

// eventFilter assembles an event filter from the query string. When
// defaultWindow is set and no explicit since is given, the filter covers
// the last 24 hours.
func (s *Server) eventFilter(c *gin.Context, defaultWindow bool) (*querydomain.EventFilter, error) {
	now := s.clock.Now()

	filter := querydomain.EventFilter{
		Name:        strings.TrimSpace(c.Query("name")),
		UserID:      c.Query("user_id"),
		SessionID:   c.Query("session_id"),
		Environment: c.Query("environment"),
		Service:     c.Query("service"),
		Host:        c.Query("host"),
	}

	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		since, err := querydomain.ParseTime(raw, now)
		if err != nil {
			return nil, err
		}
		filter.Since = since
	} else if defaultWindow {
		filter.Since = now.Add(-querydomain.DefaultLookback)
	}
	if raw := strings.TrimSpace(c.Query("until")); raw != "" {
		until, err := querydomain.ParseTime(raw, now)
		if err != nil {
			return nil, err
		}
		filter.Until = until
	}

	if raw := c.Query("has_value"); raw != "" {
		hasValue := raw == "true"
		filter.HasValue = &hasValue
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	filter.Pagination = pagination.Pagination{Limit: limit, Offset: offset}

	return &filter, nil
}
