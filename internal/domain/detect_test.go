package domain

import (
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var detectBase = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

func sample(offset time.Duration, heightM, periodS, directionDeg, significance float64) SourceRecord {
	return SourceRecord{
		Time:         detectBase.Add(offset),
		HeightM:      heightM,
		PeriodS:      periodS,
		DirectionDeg: directionDeg,
		EnergyM2:     heightM * heightM,
		Significance: significance,
	}
}

func newTestDetector() *Detector {
	return NewDetector(0.5, 8, 0.4, slog.Default())
}

func TestDetect_SingleSwellWithBriefDip(t *testing.T) {
	// A NW groundswell that builds over twelve hours, dips below threshold
	// for one observation mid-run, and resumes. The dip burns the band's
	// gap budget but does not split the event.
	var records []SourceRecord
	heights := []float64{0.8, 1.2, 1.8, 2.4, 0.3, 2.9, 3.2, 2.7}
	for i, h := range heights {
		sig := 0.7
		if h < 0.5 {
			sig = 0.2
		}
		records = append(records, sample(time.Duration(i)*time.Hour, h, 14, 315+float64(i), sig))
	}

	events := newTestDetector().Detect(SourceSeries{SourceID: "ndbc", Records: records}, 0.9)

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, detectBase, ev.Start)
	assert.Equal(t, detectBase.Add(7*time.Hour), ev.End)
	assert.Equal(t, detectBase.Add(6*time.Hour), ev.Peak)
	assert.Equal(t, 3.2, ev.MaxHeightM)
	assert.Equal(t, "ndbc", ev.Source)
	assert.Equal(t, 0.9, ev.SourceScore)
	assert.Len(t, ev.Components, 7) // the dip sample is excluded
}

func TestDetect_BelowThresholdYieldsNothing(t *testing.T) {
	records := []SourceRecord{
		sample(0, 0.3, 14, 315, 0.8),           // too small
		sample(time.Hour, 2.0, 6, 315, 0.8),    // too short
		sample(2*time.Hour, 2.0, 14, 315, 0.2), // insignificant
	}
	events := newTestDetector().Detect(SourceSeries{SourceID: "ndbc", Records: records}, 0.9)
	assert.Empty(t, events)
}

func TestDetect_DistinctDirectionsSplitBands(t *testing.T) {
	// A NW groundswell and a SSE windswell in the same spectra at the same
	// instants come out as two events.
	var records []SourceRecord
	for i := 0; i < 4; i++ {
		offset := time.Duration(i) * time.Hour
		records = append(records,
			sample(offset, 2.5, 15, 320, 0.8),
			sample(offset, 1.0, 9, 160, 0.5),
		)
	}

	events := newTestDetector().Detect(SourceSeries{SourceID: "noaa-ww3", Records: records}, 0.9)

	require.Len(t, events, 2)
	dirs := []float64{events[0].DirectionDeg, events[1].DirectionDeg}
	assert.Contains(t, dirs, 320.0)
	assert.Contains(t, dirs, 160.0)
	for _, ev := range events {
		assert.Len(t, ev.Components, 4)
	}
}

func TestDetect_SlowRotationStaysOneBand(t *testing.T) {
	// Direction drifts 10° per observation; each sample is within tolerance
	// of the band's latest reference, so the swell stays one event even
	// though first and last samples are 40° apart.
	var records []SourceRecord
	for i := 0; i < 5; i++ {
		records = append(records, sample(time.Duration(i)*time.Hour, 2.0, 14, 300+float64(i*10), 0.8))
	}

	events := newTestDetector().Detect(SourceSeries{SourceID: "ndbc", Records: records}, 0.9)
	require.Len(t, events, 1)
	assert.Len(t, events[0].Components, 5)
}

func TestDetect_GapOverBudgetClosesBand(t *testing.T) {
	// The NW band vanishes for two instants while the south band keeps
	// reporting, then returns. Two NW events, one south event.
	var records []SourceRecord
	for i := 0; i < 6; i++ {
		offset := time.Duration(i) * time.Hour
		records = append(records, sample(offset, 1.0, 9, 160, 0.5))
		if i < 2 || i > 3 {
			records = append(records, sample(offset, 2.5, 15, 320, 0.8))
		}
	}

	events := newTestDetector().Detect(SourceSeries{SourceID: "ndbc", Records: records}, 0.9)

	require.Len(t, events, 3)
	nw := 0
	for _, ev := range events {
		if AngularDiff(ev.DirectionDeg, 320) <= 15 {
			nw++
			assert.Len(t, ev.Components, 2)
		}
	}
	assert.Equal(t, 2, nw)
}

func TestDetect_MalformedSamplesSkipped(t *testing.T) {
	records := []SourceRecord{
		sample(0, 2.0, 14, 315, 0.8),
		{Time: detectBase.Add(time.Hour), HeightM: math.NaN(), PeriodS: 14, DirectionDeg: 315, Significance: 0.8},
		sample(2*time.Hour, 2.2, 14, 315, 0.8),
	}

	events := newTestDetector().Detect(SourceSeries{SourceID: "ndbc", Records: records}, 0.9)
	require.Len(t, events, 1)
	assert.Len(t, events[0].Components, 2)
}

func TestDetect_SingleSampleDegenerateEvent(t *testing.T) {
	records := []SourceRecord{sample(0, 2.0, 14, 315, 0.8)}
	events := newTestDetector().Detect(SourceSeries{SourceID: "ndbc", Records: records}, 0.9)

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, ev.Start, ev.Peak)
	assert.Equal(t, ev.Peak, ev.End)
	assert.Equal(t, 2.0, ev.MaxHeightM)
}

func TestDetect_UnsortedInputHandled(t *testing.T) {
	records := []SourceRecord{
		sample(2*time.Hour, 2.2, 14, 315, 0.8),
		sample(0, 1.8, 14, 315, 0.8),
		sample(time.Hour, 3.0, 14, 315, 0.8),
	}

	events := newTestDetector().Detect(SourceSeries{SourceID: "ndbc", Records: records}, 0.9)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, detectBase, ev.Start)
	assert.Equal(t, detectBase.Add(time.Hour), ev.Peak)
	assert.Equal(t, detectBase.Add(2*time.Hour), ev.End)
}

func TestDetect_EventInvariants(t *testing.T) {
	// Every emitted event keeps start <= peak <= end and MaxHeightM equal
	// to its components' maximum, whatever the input shape.
	var records []SourceRecord
	heights := []float64{1.1, 2.6, 0.2, 1.9, 3.4, 2.2, 0.1, 0.1, 1.4}
	for i, h := range heights {
		records = append(records, sample(time.Duration(i)*time.Hour, h, 13, 310, 0.8))
	}

	events := newTestDetector().Detect(SourceSeries{SourceID: "ndbc", Records: records}, 0.9)
	require.NotEmpty(t, events)

	for _, ev := range events {
		assert.False(t, ev.Peak.Before(ev.Start))
		assert.False(t, ev.Peak.After(ev.End))
		maxComp := 0.0
		for _, c := range ev.Components {
			if c.HeightM > maxComp {
				maxComp = c.HeightM
			}
		}
		assert.Equal(t, maxComp, ev.MaxHeightM)
		assert.Equal(t, maxComp, ev.HeightM)
	}
}
