// Package pipeline orchestrates the batch fusion loop: assemble bundles
// from the source topic, detect per-source events, fuse across sources,
// score confidence, persist, and publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/swell-fusion/internal/domain"
	"github.com/couchcryptid/swell-fusion/internal/fusion"
	"github.com/couchcryptid/swell-fusion/internal/observability"
)

// BatchExtractor reads up to batchSize raw messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// ForecastPublisher writes a fused forecast to the sink.
type ForecastPublisher interface {
	PublishForecast(ctx context.Context, f domain.SwellForecast) error
}

// ForecastStore persists forecasts with their extracted predictions.
type ForecastStore interface {
	SaveForecast(ctx context.Context, f domain.SwellForecast, preds []domain.Prediction) error
}

// HistoryProvider feeds recent validation accuracy back into scoring. It is
// an injected interface rather than a store coupling so fusion and
// validation stay independently testable.
type HistoryProvider interface {
	RecentMAE(ctx context.Context, cutoff time.Time) (mae float64, ok bool, err error)
}

// Pipeline runs the fusion loop. Detection fans out per source; fusion
// waits on the join barrier so it always sees every source's results.
type Pipeline struct {
	extractor BatchExtractor
	publisher ForecastPublisher
	store     ForecastStore
	history   HistoryProvider

	detector *domain.Detector
	scorer   *domain.SourceScorer
	fuser    *fusion.Fuser
	shores   []domain.Shore

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool

	batchSize   int
	historyDays int
	assembler   *assembler
}

// Options collect the pipeline's knobs.
type Options struct {
	BatchSize         int
	BundleQuietPeriod time.Duration
	HistoryDays       int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, pub ForecastPublisher, store ForecastStore, history HistoryProvider,
	detector *domain.Detector, scorer *domain.SourceScorer, fuser *fusion.Fuser, shores []domain.Shore,
	clk clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	return &Pipeline{
		extractor:   e,
		publisher:   pub,
		store:       store,
		history:     history,
		detector:    detector,
		scorer:      scorer,
		fuser:       fuser,
		shores:      shores,
		clock:       clk,
		logger:      logger,
		metrics:     metrics,
		batchSize:   opts.BatchSize,
		historyDays: opts.HistoryDays,
		assembler:   newAssembler(opts.BundleQuietPeriod),
	}
}

// CheckReadiness returns nil once the pipeline has persisted at least one
// forecast, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not persisted any forecasts yet")
	}
	return nil
}

// Run executes the fusion loop until the context is cancelled or a
// persistence failure makes continuing pointless.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("fusion pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("fusion pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		cont, err := p.step(ctx, &backoff, maxBackoff)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

// step runs one extract-assemble-flush cycle. A false return means stop; a
// non-nil error means a fatal (persistence) failure.
func (p *Pipeline) step(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) (bool, error) {
	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff), nil
	}
	*backoff = 200 * time.Millisecond

	now := p.clock.Now().UTC()
	for _, raw := range batch {
		p.metrics.SeriesConsumed.Inc()
		series, err := domain.ParseSourceSeries(raw)
		if err != nil {
			p.logger.Warn("skipping malformed source message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.ParseErrors.Inc()
			p.commit(ctx, raw.Commit)
			continue
		}
		p.assembler.add(series, raw.Commit, now)
	}

	for _, bundle := range p.assembler.due(p.clock.Now().UTC()) {
		if err := p.processBundle(ctx, bundle); err != nil {
			return false, err
		}
	}
	return ctx.Err() == nil, nil
}

// processBundle runs detection, fusion, and scoring over one assembled
// bundle and persists the resulting forecast. A store failure is fatal —
// losing a forecast record is not locally recoverable.
func (p *Pipeline) processBundle(ctx context.Context, b *bundleState) error {
	start := time.Now()
	now := p.clock.Now().UTC()

	recentMAE := p.recentMAE(ctx, now)

	// Per-source detection is embarrassingly parallel: each goroutine
	// reads only its own series. Fusion waits on the join barrier.
	type detection struct {
		sourceID string
		score    float64
		events   []domain.SwellEvent
	}
	results := make([]detection, 0, len(b.series))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for sourceID, series := range b.series {
		wg.Add(1)
		go func(sourceID string, series domain.SourceSeries) {
			defer wg.Done()
			score := p.scorer.Score(sourceID, now.Sub(series.IssuedAt), series.CompletenessRatio(), recentMAE)
			events := p.detector.Detect(series, score)
			mu.Lock()
			results = append(results, detection{sourceID: sourceID, score: score, events: events})
			mu.Unlock()
		}(sourceID, series)
	}
	wg.Wait()

	perSource := make(map[string][]domain.SwellEvent, len(results))
	scores := make(map[string]float64, len(results))
	detected := 0
	for _, d := range results {
		perSource[d.sourceID] = d.events
		scores[d.sourceID] = d.score
		detected += len(d.events)
	}

	fused := p.fuser.Fuse(perSource)

	f := domain.NewForecast(b.id)
	f.Events = fused
	f.Locations = domain.DeriveLocations(fused, p.shores)
	f.Metadata = p.buildMetadata(b, scores)

	conf := fusion.ScoreConfidence(fusion.ConfidenceInput{
		ModelHeights:      modelPeakHeights(b, perSource),
		SourceScores:      scoreValues(scores),
		PresentCategories: presentCategories(b),
		HorizonDays:       horizonDays(fused, now),
		RecentMAE:         recentMAE,
	})
	f.Confidence = conf.Overall
	f.Category = conf.Category
	f.Factors = conf.Factors

	preds := domain.BuildPredictions(f.ID, f.Locations)

	if err := p.store.SaveForecast(ctx, f, preds); err != nil {
		return fmt.Errorf("save forecast for bundle %s: %w", b.id, err)
	}
	p.metrics.ForecastsPersisted.Inc()
	p.ready.Store(true)

	if err := p.publisher.PublishForecast(ctx, f); err != nil {
		// The forecast is safely persisted; downstream readers can fall
		// back to the store.
		p.logger.Error("publish forecast failed", "forecast_id", f.ID, "error", err)
	} else {
		p.metrics.ForecastsPublished.Inc()
	}

	for _, commit := range b.commits {
		p.commit(ctx, commit)
	}

	p.metrics.BundlesProcessed.Inc()
	p.metrics.BundleSources.Observe(float64(len(b.series)))
	p.metrics.EventsDetected.Add(float64(detected))
	p.metrics.EventsFused.Add(float64(len(fused)))
	p.metrics.FusionDuration.Observe(time.Since(start).Seconds())

	p.logger.Info("bundle fused",
		"bundle_id", b.id,
		"forecast_id", f.ID,
		"sources", len(b.series),
		"events_detected", detected,
		"events_fused", len(fused),
		"confidence", f.Confidence,
		"category", f.Category,
	)
	return nil
}

// recentMAE reads the validation feedback loop. History failures degrade to
// "no history" rather than blocking fusion.
func (p *Pipeline) recentMAE(ctx context.Context, now time.Time) *float64 {
	if p.history == nil {
		return nil
	}
	cutoff := now.AddDate(0, 0, -p.historyDays)
	mae, ok, err := p.history.RecentMAE(ctx, cutoff)
	if err != nil {
		p.logger.Warn("recent MAE lookup failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &mae
}

func (p *Pipeline) buildMetadata(b *bundleState, scores map[string]float64) domain.ForecastMetadata {
	meta := domain.ForecastMetadata{
		SourceScores: scores,
		SourceCount:  len(b.series),
	}

	present := presentCategories(b)
	for _, cat := range domain.AllCategories {
		if present[cat] {
			meta.PresentCategories = append(meta.PresentCategories, cat)
		} else {
			meta.MissingCategories = append(meta.MissingCategories, cat)
		}
	}

	for _, series := range b.series {
		for _, rec := range series.Records {
			meta.RecordCount++
			if !rec.Valid() {
				meta.SkippedRecords++
			}
		}
	}
	return meta
}

// presentCategories marks each source category with at least one valid
// record in the bundle.
func presentCategories(b *bundleState) map[domain.SourceCategory]bool {
	present := make(map[domain.SourceCategory]bool)
	for _, series := range b.series {
		for _, rec := range series.Records {
			if rec.Valid() {
				present[series.Category] = true
				break
			}
		}
	}
	return present
}

// modelPeakHeights collects each model source's highest detected event
// height, the series the consensus factor is computed over.
func modelPeakHeights(b *bundleState, perSource map[string][]domain.SwellEvent) []float64 {
	var ids []string
	for id, series := range b.series {
		if series.Category == domain.CategoryModels {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var heights []float64
	for _, id := range ids {
		peak := 0.0
		for _, ev := range perSource[id] {
			if ev.MaxHeightM > peak {
				peak = ev.MaxHeightM
			}
		}
		if peak > 0 {
			heights = append(heights, peak)
		}
	}
	return heights
}

func scoreValues(scores map[string]float64) []float64 {
	vals := make([]float64, 0, len(scores))
	for _, v := range scores {
		vals = append(vals, v)
	}
	return vals
}

// horizonDays is how far ahead the biggest fused event peaks, floored at
// zero for swells already in the water.
func horizonDays(events []domain.SwellEvent, now time.Time) float64 {
	var biggest *domain.SwellEvent
	for i := range events {
		if biggest == nil || events[i].MaxHeightM > biggest.MaxHeightM {
			biggest = &events[i]
		}
	}
	if biggest == nil {
		return 0
	}
	days := biggest.Peak.Sub(now).Hours() / 24
	if days < 0 {
		return 0
	}
	return days
}

func (p *Pipeline) commit(ctx context.Context, commit func(ctx context.Context) error) {
	if commit == nil {
		return
	}
	if err := commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err)
	}
}

// backoffOrStop sleeps with the current backoff and advances it. Returns
// false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	next := *backoff * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	*backoff = next
	return true
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
