package domain

import (
	"context"
	"time"
)

// Observation is one buoy measurement used to validate a prediction.
type Observation struct {
	Station      string
	Time         time.Time
	HeightM      float64
	PeriodS      float64
	DirectionDeg float64
}

// ObservationFetcher retrieves buoy observations for a station and window.
// A timeout or empty window is reported as zero observations, not an error
// the validator should treat as fatal.
type ObservationFetcher interface {
	Observations(ctx context.Context, station string, from, to time.Time) ([]Observation, error)
}
