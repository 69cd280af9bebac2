package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	metricdefdomain "github.com/fluxhq/flux/internal/metricdef/domain"
	querydomain "github.com/fluxhq/flux/internal/query/domain"
	rollupdomain "github.com/fluxhq/flux/internal/rollup/domain"
)

type metricDefinitionView struct {
	metricdefdomain.MetricDefinition
	FormattedUnit string `json:"formatted_unit,omitempty"`
}

func (s *Server) ListMetricDefinitions(c *gin.Context) {
	project, ok := projectFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	defs, err := s.metricDefSvc.List(c.Request.Context(), project.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]metricDefinitionView, 0, len(defs))
	for _, def := range defs {
		views = append(views, metricDefinitionView{
			MetricDefinition: def,
			FormattedUnit:    def.FormattedUnit(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"metrics": views})
}

func (s *Server) QuerySeries(c *gin.Context) {
	spec, err := s.querySpec(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.querySvc.Series(c.Request.Context(), *spec)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) QueryStats(c *gin.Context) {
	spec, err := s.querySpec(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.querySvc.Stats(c.Request.Context(), *spec)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) QueryLatest(c *gin.Context) {
	project, ok := projectFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	result, err := s.querySvc.Latest(c.Request.Context(), project.ID, c.Param("name"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if result == nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) QueryGroupBy(c *gin.Context) {
	spec, err := s.querySpec(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tagKey := strings.TrimSpace(c.Query("tag"))
	buckets, err := s.querySvc.GroupByTag(c.Request.Context(), *spec, tagKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": buckets})
}

func (s *Server) ReadRollups(c *gin.Context) {
	project, ok := projectFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	bucketSize := c.DefaultQuery("bucket", rollupdomain.BucketHour)
	now := s.clock.Now()
	from, to, err := parseWindow(c, now)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if to.IsZero() {
		to = now
	}
	if from.IsZero() {
		from = to.Add(-querydomain.DefaultLookback)
	}

	rows, err := s.rollupSvc.Read(c.Request.Context(), project.ID, c.Param("name"), bucketSize, from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rollups": rows})
}

// querySpec assembles a query spec from the route and query string. Tag
// filters use "tag."-prefixed parameters: ?tag.region=eu&tag.host=a.
func (s *Server) querySpec(c *gin.Context) (*querydomain.Spec, error) {
	project, ok := projectFrom(c)
	if !ok {
		return nil, ErrUnauthorized
	}

	now := s.clock.Now()
	from, to, err := parseWindow(c, now)
	if err != nil {
		return nil, err
	}

	spec := querydomain.Spec{
		ProjectID:   project.ID,
		Metric:      c.Param("name"),
		From:        from,
		To:          to,
		BucketSize:  c.Query("bucket"),
		Aggregation: c.Query("agg"),
	}

	for key, values := range c.Request.URL.Query() {
		name, found := strings.CutPrefix(key, "tag.")
		if !found || name == "" || len(values) == 0 {
			continue
		}
		if spec.Tags == nil {
			spec.Tags = make(map[string]string)
		}
		spec.Tags[name] = values[0]
	}

	return &spec, nil
}

func parseWindow(c *gin.Context, now time.Time) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error

	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		from, err = querydomain.ParseTime(raw, now)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		to, err = querydomain.ParseTime(raw, now)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return from, to, nil
}
