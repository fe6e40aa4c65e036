package domain

import (
	"log/slog"
	"math"
	"sort"
)

// Detector scans a single source's time series and emits swell events that
// clear its thresholds. Safe for concurrent use across sources: Detect
// reads only its arguments.
type Detector struct {
	MinHeightM      float64
	MinPeriodS      float64
	MinSignificance float64

	// Band tracking: samples within these tolerances of an active band
	// belong to the same physical swell even as it slowly rotates.
	DirToleranceDeg  float64
	PeriodToleranceS float64

	// MaxMissedObservations is how many consecutive instants a band may go
	// unconfirmed before it closes. One tolerates a single missing-data gap
	// without fragmenting the event.
	MaxMissedObservations int

	Logger *slog.Logger
}

// NewDetector returns a detector with the standard thresholds and band
// tolerances.
func NewDetector(minHeightM, minPeriodS, minSignificance float64, logger *slog.Logger) *Detector {
	return &Detector{
		MinHeightM:            minHeightM,
		MinPeriodS:            minPeriodS,
		MinSignificance:       minSignificance,
		DirToleranceDeg:       15,
		PeriodToleranceS:      2,
		MaxMissedObservations: 1,
		Logger:                logger,
	}
}

// band tracks one candidate swell while the scan is in progress. The
// reference direction/period follow the latest qualifying sample so a
// slowly rotating swell stays in one band.
type band struct {
	refDirection float64
	refPeriod    float64
	components   []SwellComponent
	misses       int
}

// Detect scans the series and returns the qualifying swell events in start
// order. Malformed samples (NaN, out of range) are logged and skipped; a
// series of nothing but garbage yields an empty slice, never an error.
func (d *Detector) Detect(series SourceSeries, sourceScore float64) []SwellEvent {
	records := sortedByTime(series.Records)

	var active []*band
	var events []SwellEvent

	closeBand := func(b *band) {
		ev, err := NewSwellEvent(series.SourceID, sourceScore, b.components)
		if err != nil {
			return
		}
		events = append(events, ev)
	}

	i := 0
	for i < len(records) {
		// Group all bands observed at the same instant before miss
		// accounting, so multi-band spectra don't starve each other.
		j := i
		touched := make(map[*band]bool)
		for ; j < len(records) && records[j].Time.Equal(records[i].Time); j++ {
			rec := records[j]
			if !rec.Valid() {
				d.Logger.Warn("skipping malformed sample",
					"source", series.SourceID,
					"bundle", series.BundleID,
					"time", rec.Time,
				)
				continue
			}

			b := d.matchBand(active, rec)
			if !d.qualifies(rec) {
				// A matching below-threshold sample counts against the
				// band's gap budget but does not extend it.
				if b != nil {
					touched[b] = true
					b.misses++
				}
				continue
			}

			comp := SwellComponent{
				Time:         rec.Time,
				HeightM:      rec.HeightM,
				PeriodS:      rec.PeriodS,
				DirectionDeg: rec.DirectionDeg,
				EnergyM2:     rec.EnergyM2,
				Significance: rec.Significance,
				Source:       series.SourceID,
			}
			if b == nil {
				b = &band{}
				active = append(active, b)
			}
			touched[b] = true
			b.refDirection = rec.DirectionDeg
			b.refPeriod = rec.PeriodS
			b.components = append(b.components, comp)
			b.misses = 0
		}

		// Bands with no sample this instant burn a miss; close the ones
		// past their budget.
		remaining := active[:0]
		for _, b := range active {
			if !touched[b] {
				b.misses++
			}
			if b.misses > d.MaxMissedObservations {
				closeBand(b)
				continue
			}
			remaining = append(remaining, b)
		}
		active = remaining

		i = j
	}

	for _, b := range active {
		closeBand(b)
	}

	sort.Slice(events, func(a, b int) bool { return events[a].Start.Before(events[b].Start) })
	return events
}

// qualifies reports whether a sample clears all three detection thresholds
// simultaneously.
func (d *Detector) qualifies(rec SourceRecord) bool {
	return rec.HeightM >= d.MinHeightM &&
		rec.PeriodS >= d.MinPeriodS &&
		rec.Significance >= d.MinSignificance
}

// matchBand finds the active band this sample continues, if any.
func (d *Detector) matchBand(active []*band, rec SourceRecord) *band {
	for _, b := range active {
		if AngularDiff(b.refDirection, rec.DirectionDeg) <= d.DirToleranceDeg &&
			math.Abs(b.refPeriod-rec.PeriodS) <= d.PeriodToleranceS {
			return b
		}
	}
	return nil
}

func sortedByTime(records []SourceRecord) []SourceRecord {
	out := make([]SourceRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}
