package domain

import (
	"time"

	"github.com/google/uuid"
)

// ValidationState tracks a forecast through the validation lifecycle.
// Pending and the two terminal states are persisted; eligibility is a
// function of age and is computed, not stored.
type ValidationState string

const (
	StatePending       ValidationState = "pending"
	StateValidated     ValidationState = "validated"
	StateUnvalidatable ValidationState = "unvalidatable"
)

// Terminal reports whether the state admits no further transitions.
func (s ValidationState) Terminal() bool {
	return s == StateValidated || s == StateUnvalidatable
}

// ForecastLocation is one shore's view of the fused events: the dominant
// swell, the rest ordered by significance, and a qualitative call.
// Recomputed every fusion run, never persisted apart from its forecast.
type ForecastLocation struct {
	Name            string           `json:"name"`
	Lat             float64          `json:"lat"`
	Lon             float64          `json:"lon"`
	DominantSwell   *SwellComponent  `json:"dominant_swell,omitempty"`
	SecondarySwells []SwellComponent `json:"secondary_swells,omitempty"`
	Conditions      string           `json:"conditions"`
	Rating          int              `json:"rating"` // 0–10
}

// ForecastMetadata carries enough provenance that a human can see why
// confidence came out the way it did.
type ForecastMetadata struct {
	SourceScores      map[string]float64 `json:"source_scores"`
	PresentCategories []SourceCategory   `json:"present_categories"`
	MissingCategories []SourceCategory   `json:"missing_categories"`
	SourceCount       int                `json:"source_count"`
	RecordCount       int                `json:"record_count"`
	SkippedRecords    int                `json:"skipped_records"`
}

// SwellForecast is the atomic unit of output: one fusion run over one
// bundle. Immutable after creation.
type SwellForecast struct {
	ID         string             `json:"id"`
	BundleID   string             `json:"bundle_id"`
	CreatedAt  time.Time          `json:"created_at"`
	Locations  []ForecastLocation `json:"locations"`
	Events     []SwellEvent       `json:"events"`
	Confidence float64            `json:"confidence"`
	Category   string             `json:"confidence_category"`
	Factors    map[string]float64 `json:"confidence_factors"`
	Metadata   ForecastMetadata   `json:"metadata"`
	State      ValidationState    `json:"validation_state"`
}

// NewForecast allocates an empty forecast shell for a bundle, stamped from
// the package clock so tests can freeze creation time.
func NewForecast(bundleID string) SwellForecast {
	return SwellForecast{
		ID:        uuid.NewString(),
		BundleID:  bundleID,
		CreatedAt: clock.Now().UTC(),
		State:     StatePending,
	}
}

// Prediction is one shore's extracted prediction from a forecast, written
// at forecast-save time and read back by the validator.
type Prediction struct {
	ID           string    `json:"id"`
	ForecastID   string    `json:"forecast_id"`
	Shore        string    `json:"shore"`
	ValidTime    time.Time `json:"valid_time"`
	HeightFt     float64   `json:"height_ft"`
	PeriodS      float64   `json:"period_s"`
	DirectionDeg float64   `json:"direction_deg"`
	SizeCategory string    `json:"size_category"`
}

// ValidationRecord is one comparison of a prediction against the closest
// matched observation. Append-only audit trail; never updated.
type ValidationRecord struct {
	ID                   string    `json:"id"`
	PredictionID         string    `json:"prediction_id"`
	ForecastID           string    `json:"forecast_id"`
	ObservedHeightFt     float64   `json:"observed_height_ft"`
	ObservedPeriodS      float64   `json:"observed_period_s"`
	ObservedDirectionDeg float64   `json:"observed_direction_deg"`
	HeightErrorFt        float64   `json:"height_error_ft"`
	PeriodErrorS         float64   `json:"period_error_s"`
	DirectionErrorDeg    float64   `json:"direction_error_deg"`
	CategoryMatch        bool      `json:"category_match"`
	MatchedAt            time.Time `json:"matched_at"`
	CreatedAt            time.Time `json:"created_at"`
}
