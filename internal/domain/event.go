package domain

import (
	"fmt"
	"time"
)

// SourceFused is the source id carried by events produced by cross-source
// merging. Per-source events keep their provider id so the originals remain
// auditable next to the merged result.
const SourceFused = "fused"

// SwellComponent is one spectral band of wave energy at one instant,
// tagged with the provider that observed it. Immutable once created.
type SwellComponent struct {
	Time         time.Time `json:"time"`
	HeightM      float64   `json:"height_m"`
	PeriodS      float64   `json:"period_s"`
	DirectionDeg float64   `json:"direction_deg"`
	EnergyM2     float64   `json:"energy_m2"`
	Significance float64   `json:"significance"`
	Source       string    `json:"source"`
}

// SwellEvent is a swell that persists over a time span: an ordered run of
// components from one source, or the merge of several sources' runs.
//
// Height/Period/Direction are the event's representative values: for a
// detected event they are read at the peak sample, for a merged event they
// are the source-score-weighted average of the contributing events' peaks.
// Events are never mutated in place — merging builds a new event and leaves
// the originals intact.
type SwellEvent struct {
	Start        time.Time        `json:"start"`
	End          time.Time        `json:"end"`
	Peak         time.Time        `json:"peak"`
	Components   []SwellComponent `json:"components"`
	MaxHeightM   float64          `json:"max_height_m"`
	HeightM      float64          `json:"height_m"`
	PeriodS      float64          `json:"period_s"`
	DirectionDeg float64          `json:"direction_deg"`
	Source       string           `json:"source"`
	SourceScore  float64          `json:"source_score"`
}

// NewSwellEvent builds an event from a non-empty, time-ordered component
// run. Start/End come from the first and last components, Peak and the
// representative values from the highest sample. A single-component run
// yields the degenerate start=peak=end event.
func NewSwellEvent(source string, sourceScore float64, components []SwellComponent) (SwellEvent, error) {
	if len(components) == 0 {
		return SwellEvent{}, fmt.Errorf("swell event: no components")
	}

	peak := components[0]
	for _, c := range components[1:] {
		if c.HeightM > peak.HeightM {
			peak = c
		}
	}

	ev := SwellEvent{
		Start:        components[0].Time,
		End:          components[len(components)-1].Time,
		Peak:         peak.Time,
		Components:   components,
		MaxHeightM:   peak.HeightM,
		HeightM:      peak.HeightM,
		PeriodS:      peak.PeriodS,
		DirectionDeg: peak.DirectionDeg,
		Source:       source,
		SourceScore:  sourceScore,
	}
	if ev.Peak.Before(ev.Start) || ev.Peak.After(ev.End) {
		return SwellEvent{}, fmt.Errorf("swell event: peak %v outside [%v, %v]", ev.Peak, ev.Start, ev.End)
	}
	return ev, nil
}

// Overlaps reports whether two event spans share any time. Touching
// endpoints count as overlap; cross-source cadences rarely line up exactly,
// so an inclusive test avoids splitting one physical swell on a boundary.
func (e SwellEvent) Overlaps(other SwellEvent) bool {
	return !e.Start.After(other.End) && !other.Start.After(e.End)
}
