package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShoreOpen(t *testing.T) {
	north, ok := ShoreByName(DefaultShores, "North Shore")
	require.True(t, ok)

	// North Shore's window crosses 0°.
	assert.True(t, north.Open(315))
	assert.True(t, north.Open(0))
	assert.True(t, north.Open(40))
	assert.True(t, north.Open(280))
	assert.False(t, north.Open(180))
	assert.False(t, north.Open(90))

	south, ok := ShoreByName(DefaultShores, "South Shore")
	require.True(t, ok)
	assert.True(t, south.Open(180))
	assert.False(t, south.Open(315))
}

func TestShoreFaceFt(t *testing.T) {
	south, ok := ShoreByName(DefaultShores, "South Shore")
	require.True(t, ok)

	assert.InDelta(t, 2.0*MetersToFeet*0.8, south.FaceFt(2.0, 180), 1e-9)
	assert.Equal(t, 0.0, south.FaceFt(2.0, 315), "shadowed direction contributes nothing")
}

func fusedEvent(t *testing.T, heightM, periodS, directionDeg, significance float64, peak time.Time) SwellEvent {
	t.Helper()
	ev, err := NewSwellEvent(SourceFused, 0.9, []SwellComponent{{
		Time:         peak,
		HeightM:      heightM,
		PeriodS:      periodS,
		DirectionDeg: directionDeg,
		Significance: significance,
		Source:       SourceFused,
	}})
	require.NoError(t, err)
	return ev
}

func TestDeriveLocations(t *testing.T) {
	peak := time.Date(2026, 1, 12, 6, 0, 0, 0, time.UTC)
	nw := fusedEvent(t, 3.0, 15, 315, 0.9, peak)
	west := fusedEvent(t, 1.2, 12, 290, 0.5, peak.Add(2*time.Hour))
	south := fusedEvent(t, 0.8, 13, 180, 0.4, peak.Add(4*time.Hour))

	locations := DeriveLocations([]SwellEvent{nw, west, south}, DefaultShores)
	require.Len(t, locations, len(DefaultShores))

	byName := make(map[string]ForecastLocation, len(locations))
	for _, loc := range locations {
		byName[loc.Name] = loc
	}

	t.Run("north shore dominated by the NW swell", func(t *testing.T) {
		loc := byName["North Shore"]
		require.NotNil(t, loc.DominantSwell)
		assert.Equal(t, 3.0, loc.DominantSwell.HeightM)
		assert.Equal(t, 315.0, loc.DominantSwell.DirectionDeg)
		// 3.0m * 3.28084 * 1.0 exposure ≈ 9.8 ft faces
		assert.Equal(t, "good", loc.Conditions)
		assert.Equal(t, 8, loc.Rating)
		// The 290° event is also in the window; the 180° one is not.
		require.Len(t, loc.SecondarySwells, 1)
		assert.Equal(t, 290.0, loc.SecondarySwells[0].DirectionDeg)
	})

	t.Run("south shore sees only the south swell", func(t *testing.T) {
		loc := byName["South Shore"]
		require.NotNil(t, loc.DominantSwell)
		assert.Equal(t, 180.0, loc.DominantSwell.DirectionDeg)
		assert.Empty(t, loc.SecondarySwells)
	})

	t.Run("east side is flat", func(t *testing.T) {
		loc := byName["East Side"]
		assert.Nil(t, loc.DominantSwell)
		assert.Equal(t, "flat", loc.Conditions)
		assert.Equal(t, 0, loc.Rating)
	})

	t.Run("west side dominant picked by adjusted face height", func(t *testing.T) {
		// Both the 315° and 290° events reach the West Side; the bigger
		// one wins even after the 0.9 exposure factor.
		loc := byName["West Side"]
		require.NotNil(t, loc.DominantSwell)
		assert.Equal(t, 315.0, loc.DominantSwell.DirectionDeg)
	})
}

func TestDeriveLocations_SecondariesOrderedBySignificance(t *testing.T) {
	peak := time.Date(2026, 1, 12, 6, 0, 0, 0, time.UTC)
	dominant := fusedEvent(t, 3.0, 15, 315, 0.9, peak)
	weak := fusedEvent(t, 0.9, 11, 350, 0.3, peak)
	strong := fusedEvent(t, 1.1, 12, 300, 0.7, peak)

	locations := DeriveLocations([]SwellEvent{dominant, weak, strong}, DefaultShores)
	north := locations[0]
	require.Equal(t, "North Shore", north.Name)
	require.Len(t, north.SecondarySwells, 2)
	assert.Equal(t, 0.7, north.SecondarySwells[0].Significance)
	assert.Equal(t, 0.3, north.SecondarySwells[1].Significance)
}

func TestRatingForFace(t *testing.T) {
	assert.Equal(t, 0, ratingForFace(0))
	assert.Equal(t, 3, ratingForFace(4))
	assert.Equal(t, 10, ratingForFace(12))
	assert.Equal(t, 10, ratingForFace(30), "saturates at 12 ft faces")
}

func TestConditionsForFace(t *testing.T) {
	assert.Equal(t, "flat", conditionsForFace(0.5))
	assert.Equal(t, "small", conditionsForFace(2))
	assert.Equal(t, "fair", conditionsForFace(4))
	assert.Equal(t, "good", conditionsForFace(8))
	assert.Equal(t, "epic", conditionsForFace(12))
}

func TestBuildPredictions(t *testing.T) {
	peak := time.Date(2026, 1, 12, 6, 0, 0, 0, time.UTC)
	nw := fusedEvent(t, 3.0, 15, 315, 0.9, peak)

	locations := DeriveLocations([]SwellEvent{nw}, DefaultShores)
	preds := BuildPredictions("forecast-1", locations)

	// Only shores open to 315°: North Shore and West Side.
	require.Len(t, preds, 2)
	for _, p := range preds {
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, "forecast-1", p.ForecastID)
		assert.Equal(t, peak, p.ValidTime)
		assert.InDelta(t, 3.0*MetersToFeet, p.HeightFt, 1e-9)
		assert.Equal(t, "large", p.SizeCategory)
		assert.Equal(t, 315.0, p.DirectionDeg)
	}
}
