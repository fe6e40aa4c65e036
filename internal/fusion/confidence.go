package fusion

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/swell-fusion/internal/domain"
)

// Confidence factor names. Every result carries exactly one value per
// factor so downstream narrative generation can explain a low score.
const (
	FactorModelConsensus     = "model_consensus"
	FactorSourceReliability  = "source_reliability"
	FactorDataCompleteness   = "data_completeness"
	FactorForecastHorizon    = "forecast_horizon"
	FactorHistoricalAccuracy = "historical_accuracy"
)

// FactorWeights are the fixed factor weights. They sum to 1.0.
var FactorWeights = map[string]float64{
	FactorModelConsensus:     0.30,
	FactorSourceReliability:  0.25,
	FactorDataCompleteness:   0.20,
	FactorForecastHorizon:    0.15,
	FactorHistoricalAccuracy: 0.10,
}

// Confidence category labels, highest first. Boundaries are inclusive at
// the lower bound: 0.8 is High, 0.79999 is Moderate.
const (
	CategoryHigh     = "high"
	CategoryModerate = "moderate"
	CategoryLow      = "low"
	CategoryVeryLow  = "very_low"
)

// ConfidenceInput gathers everything the scorer reads for one fusion run.
type ConfidenceInput struct {
	// ModelHeights holds each model source's reported peak height for the
	// primary swell. Consensus is undefined with fewer than two models.
	ModelHeights []float64

	// SourceScores are the reliability scores of every contributing source.
	SourceScores []float64

	// PresentCategories marks which of the four source categories
	// contributed at least one successfully parsed record.
	PresentCategories map[domain.SourceCategory]bool

	// HorizonDays is how far ahead the forecast's primary peak lies.
	HorizonDays float64

	// RecentMAE is the system's recent validation MAE in feet; nil when no
	// validation history exists yet.
	RecentMAE *float64
}

// ConfidenceResult is the scored confidence with its full factor breakdown.
type ConfidenceResult struct {
	Overall  float64
	Category string
	Factors  map[string]float64
}

// ScoreConfidence computes the weighted confidence for a fusion result.
//
// Defaults are deliberate: missing model consensus scores a neutral 0.5
// (absence of disagreement is not confirmed agreement), missing source
// scores 0.5, and missing validation history scores a 0.7 optimistic prior
// so a fresh deployment doesn't start out labeled Low.
func ScoreConfidence(in ConfidenceInput) ConfidenceResult {
	factors := map[string]float64{
		FactorModelConsensus:     modelConsensus(in.ModelHeights),
		FactorSourceReliability:  sourceReliability(in.SourceScores),
		FactorDataCompleteness:   completeness(in.PresentCategories),
		FactorForecastHorizon:    horizon(in.HorizonDays),
		FactorHistoricalAccuracy: historicalAccuracy(in.RecentMAE),
	}

	overall := 0.0
	for name, weight := range FactorWeights {
		overall += weight * factors[name]
	}

	return ConfidenceResult{
		Overall:  overall,
		Category: categoryFor(overall),
		Factors:  factors,
	}
}

// modelConsensus is 1/(1+cv) over the model heights. With fewer than two
// models the coefficient of variation is undefined and scores neutral.
func modelConsensus(heights []float64) float64 {
	if len(heights) < 2 {
		return 0.5
	}
	mean, std := stat.MeanStdDev(heights, nil)
	if mean <= 0 || math.IsNaN(std) {
		return 0.5
	}
	return 1 / (1 + std/mean)
}

func sourceReliability(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.5
	}
	return stat.Mean(scores, nil)
}

func completeness(present map[domain.SourceCategory]bool) float64 {
	count := 0
	for _, cat := range domain.AllCategories {
		if present[cat] {
			count++
		}
	}
	return float64(count) / float64(len(domain.AllCategories))
}

// horizon floors at 0.5: even long-range forecasts carry baseline skill
// from climatology.
func horizon(daysAhead float64) float64 {
	if daysAhead < 0 {
		daysAhead = 0
	}
	return math.Max(0.5, 1.0-0.1*daysAhead)
}

func historicalAccuracy(recentMAE *float64) float64 {
	if recentMAE == nil {
		return 0.7
	}
	return math.Max(0.0, 1.0-*recentMAE/5.0)
}

func categoryFor(overall float64) string {
	switch {
	case overall >= 0.8:
		return CategoryHigh
	case overall >= 0.6:
		return CategoryModerate
	case overall >= 0.4:
		return CategoryLow
	default:
		return CategoryVeryLow
	}
}
