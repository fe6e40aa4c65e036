// Package validation closes the forecast loop: it matches stored
// predictions against buoy observations and computes accuracy metrics.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/swell-fusion/internal/domain"
	"github.com/couchcryptid/swell-fusion/internal/observability"
)

// DirectionAccuracyThresholdDeg is the angular error, after 0°/360°
// wraparound, inside which a matched pair counts as directionally accurate.
const DirectionAccuracyThresholdDeg = 22.5

// Store is the slice of persistence the validator needs.
type Store interface {
	GetForecast(ctx context.Context, id string) (domain.SwellForecast, error)
	Predictions(ctx context.Context, forecastID string) ([]domain.Prediction, error)
	SaveValidation(ctx context.Context, forecastID string, state domain.ValidationState, records []domain.ValidationRecord) error
	Validations(ctx context.Context, forecastID string) ([]domain.ValidationRecord, error)
	ValidationsSince(ctx context.Context, cutoff time.Time) ([]domain.ValidationRecord, error)
	ForecastsNeedingValidation(ctx context.Context, olderThan time.Time) ([]string, error)
}

// Result is the outcome of validating one forecast. Matched < Predictions
// is expected and reported, not an error: a prediction with no observation
// inside the match window simply contributes to neither metric.
type Result struct {
	ForecastID          string
	State               domain.ValidationState
	Predictions         int
	Matched             int
	MAEFt               float64
	RMSEFt              float64
	CategoricalAccuracy float64
	DirectionAccuracy   float64
	Records             []domain.ValidationRecord
}

// Validator matches predictions to observations and persists the results.
type Validator struct {
	store       Store
	fetcher     domain.ObservationFetcher
	shores      []domain.Shore
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
	matchWindow time.Duration
	fetchTimeout time.Duration
	concurrency int
}

// Options tune the validator. Zero values take the standard defaults:
// ±2h match window, 10s fetch timeout, 4 concurrent forecasts.
type Options struct {
	MatchWindow  time.Duration
	FetchTimeout time.Duration
	Concurrency  int
}

// New creates a Validator over the given store and observation source.
func New(store Store, fetcher domain.ObservationFetcher, shores []domain.Shore, clk clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Validator {
	if opts.MatchWindow <= 0 {
		opts.MatchWindow = 2 * time.Hour
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Validator{
		store:        store,
		fetcher:      fetcher,
		shores:       shores,
		clock:        clk,
		logger:       logger,
		metrics:      metrics,
		matchWindow:  opts.MatchWindow,
		fetchTimeout: opts.FetchTimeout,
		concurrency:  opts.Concurrency,
	}
}

// Validate runs the state machine for one forecast.
//
// A forecast younger than hoursAfter comes back Pending with no observation
// fetch attempted. An already-terminal forecast returns its stored result —
// re-validation writes nothing. Otherwise observations are matched, metrics
// computed, and the records persisted along with the terminal state.
func (v *Validator) Validate(ctx context.Context, forecastID string, hoursAfter int) (Result, error) {
	f, err := v.store.GetForecast(ctx, forecastID)
	if err != nil {
		return Result{}, fmt.Errorf("load forecast: %w", err)
	}

	if f.State.Terminal() {
		return v.storedResult(ctx, f)
	}

	age := v.clock.Now().UTC().Sub(f.CreatedAt)
	if age < time.Duration(hoursAfter)*time.Hour {
		v.logger.Info("forecast not yet eligible",
			"forecast_id", forecastID,
			"age_hours", age.Hours(),
			"required_hours", hoursAfter,
		)
		return Result{ForecastID: forecastID, State: domain.StatePending}, nil
	}

	preds, err := v.store.Predictions(ctx, forecastID)
	if err != nil {
		return Result{}, fmt.Errorf("load predictions: %w", err)
	}

	records := v.matchAll(ctx, f, preds)

	state := domain.StateValidated
	if len(records) == 0 {
		state = domain.StateUnvalidatable
		v.logger.Warn("no observations matched any prediction",
			"forecast_id", forecastID,
			"predictions", len(preds),
		)
	}

	if err := v.store.SaveValidation(ctx, forecastID, state, records); err != nil {
		return Result{}, fmt.Errorf("save validation: %w", err)
	}
	v.metrics.ValidationOutcomes.WithLabelValues(string(state)).Inc()

	result := buildResult(forecastID, state, len(preds), records)
	v.logger.Info("forecast validated",
		"forecast_id", forecastID,
		"state", string(state),
		"matched", fmt.Sprintf("%d/%d", result.Matched, result.Predictions),
		"mae_ft", result.MAEFt,
		"rmse_ft", result.RMSEFt,
	)
	return result, nil
}

// ValidateAll sweeps every eligible forecast, bounded by the configured
// concurrency so the observation source's rate limits are respected.
func (v *Validator) ValidateAll(ctx context.Context, hoursAfter int) ([]Result, error) {
	cutoff := v.clock.Now().UTC().Add(-time.Duration(hoursAfter) * time.Hour)
	ids, err := v.store.ForecastsNeedingValidation(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list eligible forecasts: %w", err)
	}

	results := make([]Result, len(ids))
	errsByID := make([]error, len(ids))

	sem := make(chan struct{}, v.concurrency)
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i], errsByID[i] = v.Validate(ctx, id, hoursAfter)
		}()
	}
	wg.Wait()

	out := results[:0]
	for i := range results {
		if errsByID[i] != nil {
			v.logger.Error("validation failed", "forecast_id", ids[i], "error", errsByID[i])
			continue
		}
		out = append(out, results[i])
	}
	return out, nil
}

// storedResult reconstructs the result of a previously validated forecast
// from its persisted records.
func (v *Validator) storedResult(ctx context.Context, f domain.SwellForecast) (Result, error) {
	records, err := v.store.Validations(ctx, f.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load validations: %w", err)
	}
	preds, err := v.store.Predictions(ctx, f.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load predictions: %w", err)
	}
	return buildResult(f.ID, f.State, len(preds), records), nil
}

// matchAll matches each prediction to the temporally closest observation
// from the shore's buoys inside the ±matchWindow. Fetch failures and
// timeouts count as "no observations found" for that prediction.
func (v *Validator) matchAll(ctx context.Context, f domain.SwellForecast, preds []domain.Prediction) []domain.ValidationRecord {
	now := v.clock.Now().UTC()

	var records []domain.ValidationRecord
	for _, pred := range preds {
		obs, ok := v.closestObservation(ctx, pred)
		if !ok {
			v.logger.Info("prediction unmatched",
				"forecast_id", f.ID,
				"shore", pred.Shore,
				"valid_time", pred.ValidTime,
			)
			continue
		}

		observedFt := obs.HeightM * domain.MetersToFeet
		records = append(records, domain.ValidationRecord{
			ID:                   uuid.NewString(),
			PredictionID:         pred.ID,
			ForecastID:           f.ID,
			ObservedHeightFt:     observedFt,
			ObservedPeriodS:      obs.PeriodS,
			ObservedDirectionDeg: obs.DirectionDeg,
			HeightErrorFt:        pred.HeightFt - observedFt,
			PeriodErrorS:         pred.PeriodS - obs.PeriodS,
			DirectionErrorDeg:    domain.AngularDiff(pred.DirectionDeg, obs.DirectionDeg),
			CategoryMatch:        pred.SizeCategory == domain.SizeCategory(observedFt),
			MatchedAt:            obs.Time,
			CreatedAt:            now,
		})
	}
	return records
}

// closestObservation tries the shore's stations nearest first and returns
// the observation closest in time to the prediction's valid time.
func (v *Validator) closestObservation(ctx context.Context, pred domain.Prediction) (domain.Observation, bool) {
	shore, ok := domain.ShoreByName(v.shores, pred.Shore)
	if !ok {
		v.logger.Warn("prediction for unknown shore", "shore", pred.Shore)
		return domain.Observation{}, false
	}

	from := pred.ValidTime.Add(-v.matchWindow)
	to := pred.ValidTime.Add(v.matchWindow)

	for _, station := range shore.Stations {
		fetchCtx, cancel := context.WithTimeout(ctx, v.fetchTimeout)
		start := time.Now()
		obs, err := v.fetcher.Observations(fetchCtx, station, from, to)
		v.metrics.ObservationFetchDuration.Observe(time.Since(start).Seconds())
		cancel()
		if err != nil {
			// Timeout or upstream failure: no observations, not fatal.
			v.logger.Warn("observation fetch failed",
				"station", station,
				"shore", pred.Shore,
				"error", err,
			)
			v.metrics.ObservationFetches.WithLabelValues("error").Inc()
			continue
		}
		v.metrics.ObservationFetches.WithLabelValues("success").Inc()
		if len(obs) == 0 {
			continue
		}

		best := obs[0]
		bestDelta := absDuration(best.Time.Sub(pred.ValidTime))
		for _, o := range obs[1:] {
			if d := absDuration(o.Time.Sub(pred.ValidTime)); d < bestDelta {
				best, bestDelta = o, d
			}
		}
		return best, true
	}
	return domain.Observation{}, false
}

// buildResult aggregates the matched pairs. MAE and RMSE are over height
// errors in feet; categorical and direction accuracy are fractions of the
// matched set.
func buildResult(forecastID string, state domain.ValidationState, predictions int, records []domain.ValidationRecord) Result {
	result := Result{
		ForecastID:  forecastID,
		State:       state,
		Predictions: predictions,
		Matched:     len(records),
		Records:     records,
	}
	if len(records) == 0 {
		return result
	}

	absErrs := make([]float64, len(records))
	sqErrs := make([]float64, len(records))
	categoryHits := 0
	directionHits := 0
	for i, r := range records {
		absErrs[i] = math.Abs(r.HeightErrorFt)
		sqErrs[i] = r.HeightErrorFt * r.HeightErrorFt
		if r.CategoryMatch {
			categoryHits++
		}
		if r.DirectionErrorDeg <= DirectionAccuracyThresholdDeg {
			directionHits++
		}
	}

	result.MAEFt = stat.Mean(absErrs, nil)
	result.RMSEFt = math.Sqrt(stat.Mean(sqErrs, nil))
	result.CategoricalAccuracy = float64(categoryHits) / float64(len(records))
	result.DirectionAccuracy = float64(directionHits) / float64(len(records))
	return result
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
