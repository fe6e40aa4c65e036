package domain

import (
	"math"
	"sort"

	"github.com/google/uuid"
)

// Shore is one forecast location plus its static exposure geometry: the
// window of swell directions it faces, the shadowing/refraction factor
// applied to in-window energy, and the buoys that verify it.
type Shore struct {
	Name     string
	Lat      float64
	Lon      float64
	Stations []string // buoys used for validation, nearest first

	// WindowStart/WindowEnd bound the "from" directions the shore is open
	// to, clockwise from start to end (the window may cross 0°).
	WindowStart float64
	WindowEnd   float64

	// Exposure scales in-window height for island shadowing and
	// refraction. 1.0 is fully open ocean.
	Exposure float64
}

// Open reports whether a swell from the given direction reaches the shore.
func (s Shore) Open(directionDeg float64) bool {
	if s.WindowStart <= s.WindowEnd {
		return directionDeg >= s.WindowStart && directionDeg <= s.WindowEnd
	}
	// Window crosses north.
	return directionDeg >= s.WindowStart || directionDeg <= s.WindowEnd
}

// FaceFt converts an event height to the exposure-adjusted face height in
// feet seen at this shore. Shadowed directions contribute nothing.
func (s Shore) FaceFt(heightM, directionDeg float64) float64 {
	if !s.Open(directionDeg) {
		return 0
	}
	return heightM * MetersToFeet * s.Exposure
}

// DefaultShores is the O'ahu shore-exposure table. Windows and factors are
// configuration, not physics: they encode which swell windows each coast is
// open to and roughly how much island shadowing knocks down.
var DefaultShores = []Shore{
	{Name: "North Shore", Lat: 21.665, Lon: -158.053, Stations: []string{"51201"}, WindowStart: 280, WindowEnd: 40, Exposure: 1.0},
	{Name: "South Shore", Lat: 21.272, Lon: -157.822, Stations: []string{"51202"}, WindowStart: 140, WindowEnd: 220, Exposure: 0.8},
	{Name: "West Side", Lat: 21.412, Lon: -158.178, Stations: []string{"51212"}, WindowStart: 200, WindowEnd: 320, Exposure: 0.9},
	{Name: "East Side", Lat: 21.440, Lon: -157.740, Stations: []string{"51207"}, WindowStart: 45, WindowEnd: 140, Exposure: 0.7},
}

// ShoreByName returns the named shore from the table, if present.
func ShoreByName(shores []Shore, name string) (Shore, bool) {
	for _, s := range shores {
		if s.Name == name {
			return s, true
		}
	}
	return Shore{}, false
}

// DeriveLocations computes every shore's forecast from the fused events.
// The dominant swell is the event with the highest exposure-adjusted face
// height; the remaining in-window events become secondary swells ordered by
// significance descending.
func DeriveLocations(events []SwellEvent, shores []Shore) []ForecastLocation {
	locations := make([]ForecastLocation, 0, len(shores))
	for _, shore := range shores {
		locations = append(locations, deriveLocation(events, shore))
	}
	return locations
}

func deriveLocation(events []SwellEvent, shore Shore) ForecastLocation {
	loc := ForecastLocation{Name: shore.Name, Lat: shore.Lat, Lon: shore.Lon}

	var dominant *SwellEvent
	bestFace := 0.0
	for i := range events {
		face := shore.FaceFt(events[i].HeightM, events[i].DirectionDeg)
		if face > bestFace {
			bestFace = face
			dominant = &events[i]
		}
	}

	if dominant == nil {
		loc.Conditions = "flat"
		return loc
	}

	dc := representativeComponent(*dominant)
	loc.DominantSwell = &dc

	for i := range events {
		if &events[i] == dominant || !shore.Open(events[i].DirectionDeg) {
			continue
		}
		loc.SecondarySwells = append(loc.SecondarySwells, representativeComponent(events[i]))
	}
	sort.SliceStable(loc.SecondarySwells, func(a, b int) bool {
		return loc.SecondarySwells[a].Significance > loc.SecondarySwells[b].Significance
	})

	loc.Rating = ratingForFace(bestFace)
	loc.Conditions = conditionsForFace(bestFace)
	return loc
}

// representativeComponent collapses an event to a single component at its
// peak, carrying the peak sample's significance.
func representativeComponent(ev SwellEvent) SwellComponent {
	sig := 0.0
	energy := 0.0
	for _, c := range ev.Components {
		if c.Time.Equal(ev.Peak) && c.Significance > sig {
			sig = c.Significance
			energy = c.EnergyM2
		}
	}
	return SwellComponent{
		Time:         ev.Peak,
		HeightM:      ev.HeightM,
		PeriodS:      ev.PeriodS,
		DirectionDeg: ev.DirectionDeg,
		EnergyM2:     energy,
		Significance: sig,
		Source:       ev.Source,
	}
}

// ratingForFace maps adjusted face height to the 0–10 scale, saturating at
// 12 ft faces.
func ratingForFace(faceFt float64) int {
	r := int(math.Round(faceFt * 10 / 12))
	if r > 10 {
		return 10
	}
	if r < 0 {
		return 0
	}
	return r
}

func conditionsForFace(faceFt float64) string {
	switch {
	case faceFt < 1:
		return "flat"
	case faceFt < 3:
		return "small"
	case faceFt < 6:
		return "fair"
	case faceFt < 10:
		return "good"
	default:
		return "epic"
	}
}

// BuildPredictions extracts one prediction per shore with a dominant swell,
// valid at the dominant event's peak.
func BuildPredictions(forecastID string, locations []ForecastLocation) []Prediction {
	var preds []Prediction
	for _, loc := range locations {
		if loc.DominantSwell == nil {
			continue
		}
		heightFt := loc.DominantSwell.HeightM * MetersToFeet
		preds = append(preds, Prediction{
			ID:           uuid.NewString(),
			ForecastID:   forecastID,
			Shore:        loc.Name,
			ValidTime:    loc.DominantSwell.Time,
			HeightFt:     heightFt,
			PeriodS:      loc.DominantSwell.PeriodS,
			DirectionDeg: loc.DominantSwell.DirectionDeg,
			SizeCategory: SizeCategory(heightFt),
		})
	}
	return preds
}
