package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/swell-fusion/internal/domain"
	"github.com/couchcryptid/swell-fusion/internal/fusion"
	"github.com/couchcryptid/swell-fusion/internal/observability"
	"github.com/couchcryptid/swell-fusion/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawMessage
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawMessage, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockPublisher struct {
	published []domain.SwellForecast
	err       error
}

func (m *mockPublisher) PublishForecast(_ context.Context, f domain.SwellForecast) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, f)
	return nil
}

type mockForecastStore struct {
	forecasts   []domain.SwellForecast
	predictions [][]domain.Prediction
	err         error
}

func (m *mockForecastStore) SaveForecast(_ context.Context, f domain.SwellForecast, preds []domain.Prediction) error {
	if m.err != nil {
		return m.err
	}
	m.forecasts = append(m.forecasts, f)
	m.predictions = append(m.predictions, preds)
	return nil
}

type mockHistory struct {
	mae float64
	ok  bool
	err error
}

func (m *mockHistory) RecentMAE(_ context.Context, _ time.Time) (float64, bool, error) {
	return m.mae, m.ok, m.err
}

// --- fixtures ---

var pipeNow = time.Date(2026, 1, 12, 12, 0, 0, 0, time.UTC)

func seriesMessage(t *testing.T, bundleID, sourceID, category string, commits *atomic.Int64, heights ...float64) domain.RawMessage {
	t.Helper()

	records := make([]map[string]string, len(heights))
	for i, h := range heights {
		records[i] = map[string]string{
			"time":          pipeNow.Add(time.Duration(i-len(heights)) * time.Hour).Format(time.RFC3339),
			"height_m":      fmt.Sprintf("%.2f", h),
			"period_s":      "14",
			"direction_deg": "315",
			"energy_m2":     "2.0",
			"significance":  "0.8",
		}
	}
	payload, err := json.Marshal(map[string]any{
		"bundle_id":        bundleID,
		"source_id":        sourceID,
		"category":         category,
		"issued_at":        pipeNow.Format(time.RFC3339),
		"expected_records": len(heights),
		"records":          records,
	})
	require.NoError(t, err)

	return domain.RawMessage{
		Key:       []byte(fmt.Sprintf("%s|%s", bundleID, sourceID)),
		Value:     payload,
		Timestamp: pipeNow,
		Commit: func(context.Context) error {
			commits.Add(1)
			return nil
		},
	}
}

func newTestPipeline(e pipeline.BatchExtractor, pub pipeline.ForecastPublisher, store pipeline.ForecastStore, history pipeline.HistoryProvider) *pipeline.Pipeline {
	logger := slog.Default()
	tiers := domain.NewTierTable(map[string]domain.Tier{
		"ndbc":     domain.TierGovernmentPrimary,
		"noaa-ww3": domain.TierGovernmentPrimary,
	})
	return pipeline.New(e, pub, store, history,
		domain.NewDetector(0.5, 8, 0.4, logger),
		domain.NewSourceScorer(tiers, 6*time.Hour, logger),
		fusion.NewFuser(logger),
		domain.DefaultShores,
		clockwork.NewFakeClockAt(pipeNow),
		logger,
		observability.NewMetricsForTesting(),
		pipeline.Options{BatchSize: 10, BundleQuietPeriod: 0, HistoryDays: 30},
	)
}

// --- tests ---

func TestPipeline_Run_FusesBundle(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		seriesMessage(t, "bundle-1", "ndbc", "buoys", &commits, 2.0, 2.4, 2.8),
		seriesMessage(t, "bundle-1", "noaa-ww3", "models", &commits, 2.2, 2.6, 3.0),
	}}}
	pub := &mockPublisher{}
	store := &mockForecastStore{}

	p := newTestPipeline(ext, pub, store, &mockHistory{})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	require.Len(t, store.forecasts, 1)
	f := store.forecasts[0]
	assert.Equal(t, "bundle-1", f.BundleID)
	assert.Equal(t, domain.StatePending, f.State)

	// Both sources report the same NW swell; it fuses to one event.
	require.Len(t, f.Events, 1)
	assert.Equal(t, domain.SourceFused, f.Events[0].Source)

	assert.Equal(t, 2, f.Metadata.SourceCount)
	assert.ElementsMatch(t, []domain.SourceCategory{domain.CategoryBuoys, domain.CategoryModels}, f.Metadata.PresentCategories)
	assert.Equal(t, 6, f.Metadata.RecordCount)
	require.Len(t, f.Factors, 5)
	assert.Greater(t, f.Confidence, 0.0)
	assert.NotEmpty(t, f.Category)

	// North Shore and West Side predictions extracted from the 315° swell.
	require.Len(t, store.predictions, 1)
	assert.Len(t, store.predictions[0], 2)

	require.Len(t, pub.published, 1)
	assert.Equal(t, f.ID, pub.published[0].ID)

	assert.Equal(t, int64(2), commits.Load(), "offsets committed after persist")
}

func TestPipeline_Run_SeparateBundles(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		seriesMessage(t, "bundle-1", "ndbc", "buoys", &commits, 2.0, 2.4),
		seriesMessage(t, "bundle-2", "ndbc", "buoys", &commits, 1.0, 1.2),
	}}}
	pub := &mockPublisher{}
	store := &mockForecastStore{}

	p := newTestPipeline(ext, pub, store, &mockHistory{})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	require.Len(t, store.forecasts, 2)
	bundles := []string{store.forecasts[0].BundleID, store.forecasts[1].BundleID}
	assert.ElementsMatch(t, []string{"bundle-1", "bundle-2"}, bundles)
}

func TestPipeline_Run_MalformedMessageSkippedAndCommitted(t *testing.T) {
	var commits atomic.Int64
	bad := domain.RawMessage{
		Value:     []byte("not json"),
		Timestamp: pipeNow,
		Commit: func(context.Context) error {
			commits.Add(1)
			return nil
		},
	}
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		bad,
		seriesMessage(t, "bundle-1", "ndbc", "buoys", &commits, 2.0, 2.4),
	}}}
	pub := &mockPublisher{}
	store := &mockForecastStore{}

	p := newTestPipeline(ext, pub, store, &mockHistory{})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	require.Len(t, store.forecasts, 1, "good message still fused")
	assert.Equal(t, int64(2), commits.Load(), "bad message committed so it is not re-read")
}

func TestPipeline_Run_StoreFailureIsFatal(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		seriesMessage(t, "bundle-1", "ndbc", "buoys", &commits, 2.0, 2.4),
	}}}
	pub := &mockPublisher{}
	store := &mockForecastStore{err: errors.New("disk full")}

	p := newTestPipeline(ext, pub, store, &mockHistory{})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, pub.published)
	assert.Equal(t, int64(0), commits.Load(), "offsets not committed on persistence failure")
}

func TestPipeline_Run_PublishFailureIsNotFatal(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		seriesMessage(t, "bundle-1", "ndbc", "buoys", &commits, 2.0, 2.4),
	}}}
	pub := &mockPublisher{err: errors.New("broker down")}
	store := &mockForecastStore{}

	p := newTestPipeline(ext, pub, store, &mockHistory{})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	assert.Len(t, store.forecasts, 1, "forecast persisted despite publish failure")
	assert.Equal(t, int64(1), commits.Load())
}

func TestPipeline_Run_HistoryFailureDegrades(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		seriesMessage(t, "bundle-1", "ndbc", "buoys", &commits, 2.0, 2.4),
	}}}
	pub := &mockPublisher{}
	store := &mockForecastStore{}

	p := newTestPipeline(ext, pub, store, &mockHistory{err: errors.New("db locked")})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	require.Len(t, store.forecasts, 1)
	// With history unavailable the factor falls back to the prior.
	assert.InDelta(t, 0.7, store.forecasts[0].Factors[fusion.FactorHistoricalAccuracy], 1e-9)
}

func TestPipeline_CheckReadiness(t *testing.T) {
	var commits atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		seriesMessage(t, "bundle-1", "ndbc", "buoys", &commits, 2.0, 2.4),
	}}}
	pub := &mockPublisher{}
	store := &mockForecastStore{}

	p := newTestPipeline(ext, pub, store, &mockHistory{})
	assert.Error(t, p.CheckReadiness(context.Background()), "not ready before the first forecast")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{}
	p := newTestPipeline(ext, &mockPublisher{}, &mockForecastStore{}, &mockHistory{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop on cancellation")
	}
}
