package validation

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Targets are the configured accuracy bars a validated forecast is held to.
type Targets struct {
	MaxMAEFt       float64
	MinCategorical float64
	MinDirection   float64
}

// Met reports whether a validated result clears every target. Results with
// no matched pairs never pass — there is nothing to certify.
func (t Targets) Met(r Result) bool {
	if r.Matched == 0 {
		return false
	}
	return r.MAEFt <= t.MaxMAEFt &&
		r.CategoricalAccuracy >= t.MinCategorical &&
		r.DirectionAccuracy >= t.MinDirection
}

// AccuracyReport aggregates every stored matched pair across forecasts in
// a window. Because raw pairs are persisted rather than only per-forecast
// aggregates, the report can be recut with different windows at any time.
type AccuracyReport struct {
	Since               time.Time
	Pairs               int
	MAEFt               float64
	RMSEFt              float64
	CategoricalAccuracy float64
	DirectionAccuracy   float64
}

// Report builds the aggregate accuracy report over the trailing number of
// days.
func (v *Validator) Report(ctx context.Context, days int) (AccuracyReport, error) {
	since := v.clock.Now().UTC().AddDate(0, 0, -days)
	records, err := v.store.ValidationsSince(ctx, since)
	if err != nil {
		return AccuracyReport{}, fmt.Errorf("load validations: %w", err)
	}

	report := AccuracyReport{Since: since, Pairs: len(records)}
	if len(records) == 0 {
		return report, nil
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

	report.MAEFt = stat.Mean(absErrs, nil)
	report.RMSEFt = math.Sqrt(stat.Mean(sqErrs, nil))
	report.CategoricalAccuracy = float64(categoryHits) / float64(len(records))
	report.DirectionAccuracy = float64(directionHits) / float64(len(records))
	return report, nil
}
