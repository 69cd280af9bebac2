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
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fluxhq/flux/internal/clock"
	ingestdomain "github.com/fluxhq/flux/internal/ingest/domain"
	metricdefdomain "github.com/fluxhq/flux/internal/metricdef/domain"
	"github.com/fluxhq/flux/internal/query/domain"
)

type queryFixture struct {
	svc       domain.Service
	db        *gorm.DB
	node      *snowflake.Node
	projectID snowflake.ID
	now       time.Time
}

func setupQuery(t *testing.T) *queryFixture {
	t.Helper()

	dbConn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, dbConn.AutoMigrate(&ingestdomain.MetricPoint{}))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := New(Params{
		DB:    dbConn,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(now),
	})

	return &queryFixture{
		svc:       svc,
		db:        dbConn,
		node:      node,
		projectID: node.Generate(),
		now:       now,
	}
}

func (f *queryFixture) seed(t *testing.T, value float64, at time.Time, tags map[string]any) {
	t.Helper()
	v := value
	point := ingestdomain.MetricPoint{
		ID:          f.node.Generate(),
		ProjectID:   f.projectID,
		Name:        "api.latency",
		MetricType:  metricdefdomain.TypeGauge,
		Value:       &v,
		SampleCount: 1,
		Timestamp:   at,
	}
	if tags != nil {
		point.Tags = datatypes.JSONMap(tags)
	}
	require.NoError(t, f.db.Create(&point).Error)
}

func TestSeriesBucketsAndGaps(t *testing.T) {
	f := setupQuery(t)

	from := f.now.Add(-time.Hour)
	// First bucket has two samples, second is empty, third has one.
	f.seed(t, 100, from.Add(10*time.Second), nil)
	f.seed(t, 200, from.Add(30*time.Second), nil)
	f.seed(t, 300, from.Add(2*time.Minute+10*time.Second), nil)

	result, err := f.svc.Series(context.Background(), domain.Spec{
		ProjectID: f.projectID,
		Metric:    "api.latency",
		From:      from,
		To:        f.now,
	})
	require.NoError(t, err)
	// A one-hour window resolves to 1m buckets.
	assert.Equal(t, "1m", result.BucketSize)
	assert.Equal(t, domain.AggAvg, result.Aggregation)
	require.Len(t, result.Points, 60)

	require.NotNil(t, result.Points[0].Value)
	assert.Equal(t, 150.0, *result.Points[0].Value)
	assert.Nil(t, result.Points[1].Value)
	require.NotNil(t, result.Points[2].Value)
	assert.Equal(t, 300.0, *result.Points[2].Value)
	for _, p := range result.Points[3:] {
		assert.Nil(t, p.Value)
	}
}

func TestSeriesAggregations(t *testing.T) {
	f := setupQuery(t)

	from := f.now.Add(-time.Hour)
	f.seed(t, 100, from.Add(10*time.Second), nil)
	f.seed(t, 200, from.Add(20*time.Second), nil)
	f.seed(t, 50, from.Add(30*time.Second), nil)

	tests := []struct {
		agg  string
		want float64
	}{
		{domain.AggSum, 350},
		{domain.AggMin, 50},
		{domain.AggMax, 200},
		{domain.AggCount, 3},
		{domain.AggLast, 50},
	}
	for _, tt := range tests {
		result, err := f.svc.Series(context.Background(), domain.Spec{
			ProjectID:   f.projectID,
			Metric:      "api.latency",
			From:        from,
			To:          f.now,
			Aggregation: tt.agg,
		})
		require.NoError(t, err, tt.agg)
		require.NotNil(t, result.Points[0].Value, tt.agg)
		assert.Equal(t, tt.want, *result.Points[0].Value, tt.agg)
	}
}

func TestSeriesTagFilter(t *testing.T) {
	f := setupQuery(t)

	from := f.now.Add(-time.Hour)
	f.seed(t, 100, from.Add(10*time.Second), map[string]any{"region": "eu"})
	f.seed(t, 900, from.Add(20*time.Second), map[string]any{"region": "us"})

	result, err := f.svc.Series(context.Background(), domain.Spec{
		ProjectID: f.projectID,
		Metric:    "api.latency",
		From:      from,
		To:        f.now,
		Tags:      map[string]string{"region": "eu"},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Points[0].Value)
	assert.Equal(t, 100.0, *result.Points[0].Value)
}

func TestStats(t *testing.T) {
	f := setupQuery(t)

	from := f.now.Add(-time.Hour)
	for i, v := range []float64{10, 20, 30, 40} {
		f.seed(t, v, from.Add(time.Duration(i)*time.Minute), nil)
	}

	result, err := f.svc.Stats(context.Background(), domain.Spec{
		ProjectID: f.projectID,
		Metric:    "api.latency",
		From:      from,
		To:        f.now,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Count)
	assert.Equal(t, 100.0, *result.Sum)
	assert.Equal(t, 25.0, *result.Avg)
	assert.Equal(t, 10.0, *result.Min)
	assert.Equal(t, 40.0, *result.Max)
	assert.Equal(t, 25.0, *result.P50)
}

func TestStatsEmptyWindow(t *testing.T) {
	f := setupQuery(t)

	result, err := f.svc.Stats(context.Background(), domain.Spec{
		ProjectID: f.projectID,
		Metric:    "api.latency",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Count)
	assert.Nil(t, result.Sum)
	assert.Nil(t, result.Avg)
	assert.Nil(t, result.P99)
}

func TestLatest(t *testing.T) {
	f := setupQuery(t)
	ctx := context.Background()

	f.seed(t, 100, f.now.Add(-2*time.Hour), nil)
	f.seed(t, 250, f.now.Add(-5*time.Minute), nil)

	result, err := f.svc.Latest(ctx, f.projectID, "api.latency")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotNil(t, result.Value)
	assert.Equal(t, 250.0, *result.Value)
	assert.True(t, result.Timestamp.Equal(f.now.Add(-5*time.Minute)))

	missing, err := f.svc.Latest(ctx, f.projectID, "unknown.metric")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = f.svc.Latest(ctx, f.projectID, "")
	assert.ErrorIs(t, err, domain.ErrMissingMetric)
}

func TestGroupByTag(t *testing.T) {
	f := setupQuery(t)

	from := f.now.Add(-time.Hour)
	f.seed(t, 100, from.Add(10*time.Second), map[string]any{"region": "eu"})
	f.seed(t, 200, from.Add(20*time.Second), map[string]any{"region": "eu"})
	f.seed(t, 500, from.Add(30*time.Second), map[string]any{"region": "us"})
	f.seed(t, 999, from.Add(40*time.Second), nil)

	buckets, err := f.svc.GroupByTag(context.Background(), domain.Spec{
		ProjectID: f.projectID,
		Metric:    "api.latency",
		From:      from,
		To:        f.now,
	}, "region")
	require.NoError(t, err)
	require.Len(t, buckets, 2)

	assert.Equal(t, "eu", buckets[0].Key)
	assert.Equal(t, int64(2), buckets[0].Count)
	assert.Equal(t, 150.0, *buckets[0].Value)

	assert.Equal(t, "us", buckets[1].Key)
	assert.Equal(t, int64(1), buckets[1].Count)
	assert.Equal(t, 500.0, *buckets[1].Value)

	_, err = f.svc.GroupByTag(context.Background(), domain.Spec{
		ProjectID: f.projectID,
		Metric:    "api.latency",
	}, "")
	assert.ErrorIs(t, err, domain.ErrMissingTagKey)
}
