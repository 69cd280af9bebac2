// Package server exposes the HTTP API: ingestion, queries and anomaly
// management, all scoped to the tenant resolved from the ingest key.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	anomalydomain "github.com/fluxhq/flux/internal/anomaly/domain"
	"github.com/fluxhq/flux/internal/clock"
	"github.com/fluxhq/flux/internal/config"
	ingestdomain "github.com/fluxhq/flux/internal/ingest/domain"
	metricdefdomain "github.com/fluxhq/flux/internal/metricdef/domain"
	obsmetrics "github.com/fluxhq/flux/internal/observability/metrics"
	querydomain "github.com/fluxhq/flux/internal/query/domain"
	"github.com/fluxhq/flux/internal/ratelimit"
	rollupdomain "github.com/fluxhq/flux/internal/rollup/domain"
	tenantdomain "github.com/fluxhq/flux/internal/tenant/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if !cfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger) *gin.Engine {
	return NewEngine(cfg, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	genID         *snowflake.Node
	clock         clock.Clock
	tenantSvc     tenantdomain.Service
	metricDefSvc  metricdefdomain.Service
	ingestSvc     ingestdomain.Service
	querySvc      querydomain.Service
	eventQuerySvc querydomain.EventService
	rollupSvc     rollupdomain.Service
	anomalySvc    anomalydomain.Service
	obsMetrics    *obsmetrics.Metrics
	ingestLimiter *ratelimit.IngestLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	GenID         *snowflake.Node
	Clock         clock.Clock
	TenantSvc     tenantdomain.Service
	MetricDefSvc  metricdefdomain.Service
	IngestSvc     ingestdomain.Service
	QuerySvc      querydomain.Service
	EventQuerySvc querydomain.EventService
	RollupSvc     rollupdomain.Service
	AnomalySvc    anomalydomain.Service

	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
	IngestLimiter *ratelimit.IngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		genID:         p.GenID,
		clock:         p.Clock,
		tenantSvc:     p.TenantSvc,
		metricDefSvc:  p.MetricDefSvc,
		ingestSvc:     p.IngestSvc,
		querySvc:      p.QuerySvc,
		eventQuerySvc: p.EventQuerySvc,
		rollupSvc:     p.RollupSvc,
		anomalySvc:    p.AnomalySvc,
		obsMetrics:    p.ObsMetrics,
		ingestLimiter: p.IngestLimiter,
	}

	svc.registerAdminRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin/v1")

	admin.POST("/projects", s.CreateProject)
	admin.GET("/projects", s.ListProjects)
	admin.GET("/projects/:id", s.GetProject)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", s.IngestKeyAuth())

	write := api.Group("", s.IngestRateLimit())
	write.POST("/batch", s.IngestBatch)
	write.POST("/metrics", s.IngestMetrics)
	write.POST("/metrics/batch", s.IngestMetrics)
	write.POST("/events", s.IngestEvents)

	api.GET("/events", s.ListEvents)
	api.GET("/events/count", s.CountEvents)
	api.GET("/events/stats", s.EventStats)

	api.GET("/metrics", s.ListMetricDefinitions)
	api.GET("/metrics/:name/query", s.QuerySeries)
	api.GET("/metrics/:name/stats", s.QueryStats)
	api.GET("/metrics/:name/latest", s.QueryLatest)
	api.GET("/metrics/:name/group-by", s.QueryGroupBy)
	api.GET("/metrics/:name/rollups", s.ReadRollups)

	api.GET("/anomalies", s.ListAnomalies)
	api.GET("/anomalies/:id", s.GetAnomaly)
	api.POST("/anomalies/:id/acknowledge", s.AcknowledgeAnomaly)
}
