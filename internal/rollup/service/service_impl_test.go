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

	"github.com/fluxhq/flux/internal/clock"
	ingestdomain "github.com/fluxhq/flux/internal/ingest/domain"
	metricdefdomain "github.com/fluxhq/flux/internal/metricdef/domain"
	"github.com/fluxhq/flux/internal/rollup/domain"
)

type rollupFixture struct {
	svc       domain.Service
	db        *gorm.DB
	node      *snowflake.Node
	projectID snowflake.ID
	clock     *clock.FakeClock
}

func setupRollup(t *testing.T) *rollupFixture {
	t.Helper()

	dbConn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, dbConn.AutoMigrate(
		&metricdefdomain.MetricDefinition{},
		&ingestdomain.MetricPoint{},
		&domain.AggregatedMetric{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC))
	svc := New(Params{
		DB:    dbConn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})

	return &rollupFixture{
		svc:       svc,
		db:        dbConn,
		node:      node,
		projectID: node.Generate(),
		clock:     fake,
	}
}

func (f *rollupFixture) seedPoint(t *testing.T, metric string, value *float64, at time.Time) {
	t.Helper()
	point := ingestdomain.MetricPoint{
		ID:          f.node.Generate(),
		ProjectID:   f.projectID,
		Name:        metric,
		MetricType:  metricdefdomain.TypeGauge,
		Value:       value,
		SampleCount: 1,
		Timestamp:   at,
	}
	require.NoError(t, f.db.Create(&point).Error)
}

func ptr(v float64) *float64 { return &v }

func TestAggregateSkipsNullsAndComputesStats(t *testing.T) {
	f := setupRollup(t)
	bucketTime := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)

	f.seedPoint(t, "api.latency", ptr(100), bucketTime.Add(5*time.Minute))
	f.seedPoint(t, "api.latency", nil, bucketTime.Add(10*time.Minute))
	f.seedPoint(t, "api.latency", ptr(200), bucketTime.Add(15*time.Minute))

	require.NoError(t, f.svc.Aggregate(context.Background(), f.projectID, "api.latency", domain.BucketHour, bucketTime))

	var row domain.AggregatedMetric
	require.NoError(t, f.db.First(&row).Error)
	assert.Equal(t, int64(2), row.SampleCount)
	assert.Equal(t, 300.0, row.Sum)
	assert.Equal(t, 150.0, row.Avg)
	assert.Equal(t, 100.0, row.Min)
	assert.Equal(t, 200.0, row.Max)
	assert.Nil(t, row.P50)
	assert.Nil(t, row.P95)
	assert.Nil(t, row.P99)
}

func TestAggregateEmptyWindowWritesNothing(t *testing.T) {
	f := setupRollup(t)

	bucketTime := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.svc.Aggregate(context.Background(), f.projectID, "api.latency", domain.BucketHour, bucketTime))

	var count int64
	require.NoError(t, f.db.Model(&domain.AggregatedMetric{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAggregateInvalidBucketSize(t *testing.T) {
	f := setupRollup(t)
	err := f.svc.Aggregate(context.Background(), f.projectID, "api.latency", "30s", time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidBucketSize)
}

func TestAggregateIsIdempotent(t *testing.T) {
	f := setupRollup(t)
	ctx := context.Background()
	bucketTime := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)

	f.seedPoint(t, "api.latency", ptr(50), bucketTime.Add(time.Minute))

	require.NoError(t, f.svc.Aggregate(ctx, f.projectID, "api.latency", domain.BucketHour, bucketTime))

	// New data arrives late; re-aggregating replaces the row in place.
	f.seedPoint(t, "api.latency", ptr(150), bucketTime.Add(2*time.Minute))
	require.NoError(t, f.svc.Aggregate(ctx, f.projectID, "api.latency", domain.BucketHour, bucketTime))
	require.NoError(t, f.svc.Aggregate(ctx, f.projectID, "api.latency", domain.BucketHour, bucketTime))

	var rows []domain.AggregatedMetric
	require.NoError(t, f.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].SampleCount)
	assert.Equal(t, 100.0, rows[0].Avg)
}

func TestAggregatePercentilesRequireTenSamples(t *testing.T) {
	f := setupRollup(t)
	ctx := context.Background()
	bucketTime := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)

	for i := 1; i <= 10; i++ {
		f.seedPoint(t, "api.latency", ptr(float64(i*10)), bucketTime.Add(time.Duration(i)*time.Minute))
	}

	require.NoError(t, f.svc.Aggregate(ctx, f.projectID, "api.latency", domain.BucketHour, bucketTime))

	var row domain.AggregatedMetric
	require.NoError(t, f.db.First(&row).Error)
	require.NotNil(t, row.P50)
	require.NotNil(t, row.P95)
	require.NotNil(t, row.P99)
	assert.Equal(t, 55.0, *row.P50)
	assert.LessOrEqual(t, *row.P50, *row.P95)
	assert.LessOrEqual(t, *row.P95, *row.P99)
	assert.LessOrEqual(t, *row.P99, row.Max)
	assert.GreaterOrEqual(t, *row.P50, row.Min)
}

func TestBackfillAggregatesEveryBucket(t *testing.T) {
	f := setupRollup(t)
	ctx := context.Background()
	from := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	to := from.Add(3 * time.Hour)

	// Data only in the first and third hours.
	f.seedPoint(t, "api.latency", ptr(10), from.Add(10*time.Minute))
	f.seedPoint(t, "api.latency", ptr(30), from.Add(2*time.Hour+10*time.Minute))

	require.NoError(t, f.svc.Backfill(ctx, f.projectID, "api.latency", domain.BucketHour, from, to))

	var rows []domain.AggregatedMetric
	require.NoError(t, f.db.Order("bucket_time asc").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].BucketTime.Equal(from))
	assert.True(t, rows[1].BucketTime.Equal(from.Add(2*time.Hour)))

	err := f.svc.Backfill(ctx, f.projectID, "api.latency", domain.BucketHour, to, from)
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)
}

func TestAggregateRecentCoversNamesInWindow(t *testing.T) {
	f := setupRollup(t)
	ctx := context.Background()

	// Clock is 12:30:00, so the last completed minute bucket is 12:29.
	now := f.clock.Now()
	f.seedPoint(t, "api.latency", ptr(42), now.Add(-30*time.Second))
	f.seedPoint(t, "db.queries", ptr(7), now.Add(-45*time.Second))
	// Outside the bucket: earlier minute and the still-open one.
	f.seedPoint(t, "api.latency", ptr(44), now.Add(-90*time.Second))
	f.seedPoint(t, "cache.hits", ptr(1), now.Add(10*time.Second))

	require.NoError(t, f.svc.AggregateRecent(ctx, f.projectID, domain.BucketMinute))

	var rows []domain.AggregatedMetric
	require.NoError(t, f.db.Order("name asc").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "api.latency", rows[0].Name)
	assert.Equal(t, int64(1), rows[0].SampleCount)
	assert.Equal(t, 42.0, rows[0].Avg)
	assert.True(t, rows[0].BucketTime.Equal(now.Add(-time.Minute)))
	assert.Equal(t, "db.queries", rows[1].Name)

	require.NoError(t, f.svc.AggregateRecent(ctx, f.projectID, domain.BucketHour))
	var hourRows []domain.AggregatedMetric
	require.NoError(t, f.db.Where("bucket_size = ?", domain.BucketHour).Find(&hourRows).Error)
	// The 11:00 hour bucket is the last completed one and holds no data.
	assert.Empty(t, hourRows)

	err := f.svc.AggregateRecent(ctx, f.projectID, "30s")
	assert.ErrorIs(t, err, domain.ErrInvalidBucketSize)
}
