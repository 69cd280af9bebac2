package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fluxhq/flux/internal/cache"
	"github.com/fluxhq/flux/internal/clock"
	"github.com/fluxhq/flux/internal/ingest/domain"
	metricdefdomain "github.com/fluxhq/flux/internal/metricdef/domain"
	metricdefservice "github.com/fluxhq/flux/internal/metricdef/service"
	tenantdomain "github.com/fluxhq/flux/internal/tenant/domain"
	tenantservice "github.com/fluxhq/flux/internal/tenant/service"
)

func setupIngest(t *testing.T) (domain.Service, *gorm.DB, *tenantdomain.Project, *clock.FakeClock) {
	t.Helper()

	dbConn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, dbConn.AutoMigrate(
		&tenantdomain.Project{},
		&metricdefdomain.MetricDefinition{},
		&domain.MetricPoint{},
		&domain.Event{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	tenants := tenantservice.New(tenantservice.Params{DB: dbConn, Log: log, GenID: node})
	project, err := tenants.Create(context.Background(), tenantdomain.CreateProjectRequest{
		PlatformProjectID: "proj-1",
		Name:              "checkout",
	})
	require.NoError(t, err)

	defs := metricdefservice.New(metricdefservice.Params{
		DB:    dbConn,
		Log:   log,
		GenID: node,
		Cache: cache.NewDefinitionCache(),
	})

	svc := New(Params{
		DB:          dbConn,
		Log:         log,
		GenID:       node,
		Clock:       fake,
		Definitions: defs,
		Tenants:     tenants,
	})
	return svc, dbConn, project, fake
}

func TestIngestMetricsCounterDefaultsToOne(t *testing.T) {
	svc, dbConn, project, fake := setupIngest(t)

	result, err := svc.IngestMetrics(context.Background(), project.ID, []domain.MetricRecord{
		{Name: "checkout.completed", Type: metricdefdomain.TypeCounter},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Accepted)

	var point domain.MetricPoint
	require.NoError(t, dbConn.First(&point).Error)
	require.NotNil(t, point.Value)
	assert.Equal(t, 1.0, *point.Value)
	assert.Equal(t, metricdefdomain.TypeCounter, point.MetricType)
	assert.Equal(t, fake.Now(), point.Timestamp)
}

func TestIngestMetricsDistributionShaping(t *testing.T) {
	svc, dbConn, project, _ := setupIngest(t)

	v := 42.5
	_, err := svc.IngestMetrics(context.Background(), project.ID, []domain.MetricRecord{
		{Name: "request.duration", Type: metricdefdomain.TypeDistribution, Value: &v},
	})
	require.NoError(t, err)

	var point domain.MetricPoint
	require.NoError(t, dbConn.First(&point).Error)
	require.NotNil(t, point.Value)
	require.NotNil(t, point.Sum)
	require.NotNil(t, point.Min)
	require.NotNil(t, point.Max)
	assert.Equal(t, v, *point.Value)
	assert.Equal(t, v, *point.Sum)
	assert.Equal(t, v, *point.Min)
	assert.Equal(t, v, *point.Max)
	assert.Equal(t, int64(1), point.SampleCount)
}

func TestIngestMetricsSetShaping(t *testing.T) {
	svc, dbConn, project, _ := setupIngest(t)

	member := 7.0
	_, err := svc.IngestMetrics(context.Background(), project.ID, []domain.MetricRecord{
		{Name: "unique.users", Type: metricdefdomain.TypeSet, Value: &member},
	})
	require.NoError(t, err)

	var point domain.MetricPoint
	require.NoError(t, dbConn.First(&point).Error)
	assert.Nil(t, point.Value)
	require.NotNil(t, point.Tags)
	assert.Equal(t, "7", point.Tags[domain.SetValueTag])
	assert.Equal(t, int64(1), point.SampleCount)
	require.NotNil(t, point.Cardinality)
	assert.Equal(t, int64(1), *point.Cardinality)
}

func TestIngestMetricsDistributionPreAggregated(t *testing.T) {
	svc, dbConn, project, _ := setupIngest(t)

	sum, min, max := 900.0, 10.0, 200.0
	p50, p95 := 45.0, 180.0
	count := int64(20)
	_, err := svc.IngestMetrics(context.Background(), project.ID, []domain.MetricRecord{
		{
			Name: "request.duration", Type: metricdefdomain.TypeDistribution,
			Count: &count, Sum: &sum, Min: &min, Max: &max, P50: &p50, P95: &p95,
		},
	})
	require.NoError(t, err)

	var point domain.MetricPoint
	require.NoError(t, dbConn.First(&point).Error)
	assert.Nil(t, point.Value)
	assert.Equal(t, int64(20), point.SampleCount)
	require.NotNil(t, point.Sum)
	assert.Equal(t, 900.0, *point.Sum)
	require.NotNil(t, point.P50)
	assert.Equal(t, 45.0, *point.P50)
	require.NotNil(t, point.P95)
	assert.Equal(t, 180.0, *point.P95)
	assert.Nil(t, point.P99)
}

func TestIngestMetricsExplicitTimestampPreserved(t *testing.T) {
	svc, dbConn, project, _ := setupIngest(t)

	v := 1.0
	ts := time.Date(2025, 5, 30, 8, 15, 0, 0, time.UTC)
	_, err := svc.IngestMetrics(context.Background(), project.ID, []domain.MetricRecord{
		{Name: "cpu.load", Value: &v, Timestamp: &ts},
	})
	require.NoError(t, err)

	var point domain.MetricPoint
	require.NoError(t, dbConn.First(&point).Error)
	assert.Equal(t, ts, point.Timestamp)
}

func TestIngestMetricsValidation(t *testing.T) {
	svc, _, project, _ := setupIngest(t)
	ctx := context.Background()

	_, err := svc.IngestMetrics(ctx, project.ID, nil)
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)

	v := 1.0
	_, err = svc.IngestMetrics(ctx, project.ID, []domain.MetricRecord{{Value: &v}})
	assert.ErrorIs(t, err, domain.ErrMissingName)

	_, err = svc.IngestMetrics(ctx, project.ID, []domain.MetricRecord{{Name: "g"}})
	assert.ErrorIs(t, err, domain.ErrMissingValue)

	_, err = svc.IngestMetrics(ctx, project.ID, []domain.MetricRecord{
		{Name: "x", Type: "histogram", Value: &v},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidType)
}

func TestIngestMetricsRejectsWholeBatchOnBadRecord(t *testing.T) {
	svc, dbConn, project, _ := setupIngest(t)

	v := 1.0
	_, err := svc.IngestMetrics(context.Background(), project.ID, []domain.MetricRecord{
		{Name: "ok.metric", Value: &v},
		{Value: &v},
	})
	require.ErrorIs(t, err, domain.ErrMissingName)

	var count int64
	require.NoError(t, dbConn.Model(&domain.MetricPoint{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIngestMetricsCreatesDefinitionAndCounter(t *testing.T) {
	svc, dbConn, project, _ := setupIngest(t)

	v := 3.0
	_, err := svc.IngestMetrics(context.Background(), project.ID, []domain.MetricRecord{
		{Name: "orders.total", Value: &v},
		{Name: "orders.total", Value: &v},
	})
	require.NoError(t, err)

	var defCount int64
	require.NoError(t, dbConn.Model(&metricdefdomain.MetricDefinition{}).Count(&defCount).Error)
	assert.Equal(t, int64(1), defCount)

	var stored tenantdomain.Project
	require.NoError(t, dbConn.First(&stored, "id = ?", project.ID).Error)
	assert.Equal(t, int64(2), stored.MetricsCount)
}

func TestIngestEvents(t *testing.T) {
	svc, dbConn, project, fake := setupIngest(t)
	ctx := context.Background()

	amount := 49.99
	result, err := svc.IngestEvents(ctx, project.ID, []domain.EventRecord{
		{
			Name:        "user.signup",
			Value:       &amount,
			Properties:  map[string]any{"plan": "pro"},
			Tags:        map[string]string{"region": "eu"},
			UserID:      "u-1",
			SessionID:   "s-1",
			Environment: "staging",
			Service:     "billing",
			Host:        "web-3",
		},
		{Name: "user.signup"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Accepted)

	var events []domain.Event
	require.NoError(t, dbConn.Order("id asc").Find(&events).Error)
	require.Len(t, events, 2)
	assert.Equal(t, "pro", events[0].Properties["plan"])
	assert.Equal(t, "eu", events[0].Tags["region"])
	require.NotNil(t, events[0].Value)
	assert.Equal(t, amount, *events[0].Value)
	assert.Equal(t, "u-1", events[0].UserID)
	assert.Equal(t, "staging", events[0].Environment)
	assert.Equal(t, "billing", events[0].Service)
	assert.Nil(t, events[1].Value)
	// Unset environment inherits the project's.
	assert.Equal(t, "production", events[1].Environment)
	assert.Equal(t, fake.Now(), events[1].Timestamp)

	var stored tenantdomain.Project
	require.NoError(t, dbConn.First(&stored, "id = ?", project.ID).Error)
	assert.Equal(t, int64(2), stored.EventsCount)

	_, err = svc.IngestEvents(ctx, project.ID, []domain.EventRecord{{}})
	assert.ErrorIs(t, err, domain.ErrMissingName)

	_, err = svc.IngestEvents(ctx, project.ID, nil)
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)
}
