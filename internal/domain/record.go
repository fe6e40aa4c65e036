package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// MetersToFeet converts significant wave height to the face-height feet
// convention used by shore ratings and validation buckets.
const MetersToFeet = 3.28084

// SourceCategory classifies a provider by collection method. Completeness
// scoring counts how many of the four categories contributed to a forecast.
type SourceCategory string

const (
	CategoryBuoys     SourceCategory = "buoys"
	CategoryModels    SourceCategory = "models"
	CategoryCharts    SourceCategory = "charts"
	CategorySatellite SourceCategory = "satellite"
)

// AllCategories lists every source category in completeness order.
var AllCategories = []SourceCategory{CategoryBuoys, CategoryModels, CategoryCharts, CategorySatellite}

// RawMessage represents an unprocessed message from the source topic.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// wireSeries is the flat JSON structure produced by the collectors: one
// message per (bundle, source). Numeric fields are strings so collectors
// can forward the NDBC "MM" missing-value sentinel untouched.
type wireSeries struct {
	BundleID        string       `json:"bundle_id"`
	SourceID        string       `json:"source_id"`
	Category        string       `json:"category"`
	IssuedAt        string       `json:"issued_at"` // RFC 3339
	ExpectedRecords int          `json:"expected_records"`
	Records         []wireRecord `json:"records"`
}

type wireRecord struct {
	Time         string `json:"time"` // RFC 3339
	Height       string `json:"height_m"`
	Period       string `json:"period_s"`
	Direction    string `json:"direction_deg"`
	Energy       string `json:"energy_m2"`
	Significance string `json:"significance"`
}

// SourceRecord is one parsed sample of one spectral band. Missing
// measurements are NaN, never zero, so detection can tell "flat" from
// "unreported".
type SourceRecord struct {
	Time         time.Time
	HeightM      float64
	PeriodS      float64
	DirectionDeg float64
	EnergyM2     float64
	Significance float64
}

// Valid reports whether the sample is usable for detection: all fields
// present and inside their physical ranges.
func (r SourceRecord) Valid() bool {
	if r.Time.IsZero() {
		return false
	}
	for _, v := range []float64{r.HeightM, r.PeriodS, r.DirectionDeg, r.EnergyM2, r.Significance} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.HeightM >= 0 && r.PeriodS > 0 &&
		r.DirectionDeg >= 0 && r.DirectionDeg <= 360 &&
		r.EnergyM2 >= 0 && r.Significance >= 0 && r.Significance <= 1
}

// SourceSeries is one source's contribution to a bundle: the parsed time
// series plus the provenance needed for reliability scoring.
type SourceSeries struct {
	BundleID        string
	SourceID        string
	Category        SourceCategory
	IssuedAt        time.Time
	ExpectedRecords int
	Records         []SourceRecord
}

// CompletenessRatio is the fraction of expected records that parsed cleanly,
// clamped to [0,1]. When the collector didn't declare an expectation the
// series counts as complete if it is non-empty.
func (s SourceSeries) CompletenessRatio() float64 {
	valid := 0
	for _, r := range s.Records {
		if r.Valid() {
			valid++
		}
	}
	if s.ExpectedRecords <= 0 {
		if valid > 0 {
			return 1
		}
		return 0
	}
	ratio := float64(valid) / float64(s.ExpectedRecords)
	if ratio > 1 {
		return 1
	}
	return ratio
}

// ParseSourceSeries deserializes a RawMessage's value into a SourceSeries.
// Samples with malformed times or values are kept as NaN-bearing records so
// the detector can count and skip them; only an unparseable envelope is an
// error.
func ParseSourceSeries(raw RawMessage) (SourceSeries, error) {
	var w wireSeries
	if err := json.Unmarshal(raw.Value, &w); err != nil {
		return SourceSeries{}, fmt.Errorf("parse source series: %w", err)
	}
	if w.BundleID == "" || w.SourceID == "" {
		return SourceSeries{}, fmt.Errorf("parse source series: missing bundle_id or source_id")
	}

	issuedAt, err := time.Parse(time.RFC3339, w.IssuedAt)
	if err != nil {
		// Fall back to the message timestamp set by the broker.
		issuedAt = raw.Timestamp
	}

	series := SourceSeries{
		BundleID:        w.BundleID,
		SourceID:        w.SourceID,
		Category:        SourceCategory(w.Category),
		IssuedAt:        issuedAt,
		ExpectedRecords: w.ExpectedRecords,
		Records:         make([]SourceRecord, 0, len(w.Records)),
	}
	for _, wr := range w.Records {
		series.Records = append(series.Records, parseRecord(wr))
	}
	return series, nil
}

func parseRecord(w wireRecord) SourceRecord {
	rec := SourceRecord{
		HeightM:      parseFloatOrNaN(w.Height),
		PeriodS:      parseFloatOrNaN(w.Period),
		DirectionDeg: parseFloatOrNaN(w.Direction),
		EnergyM2:     parseFloatOrNaN(w.Energy),
		Significance: parseFloatOrNaN(w.Significance),
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(w.Time)); err == nil {
		rec.Time = t.UTC()
	}
	return rec
}

// parseFloatOrNaN parses a string as float64. Empty strings and the NDBC
// "MM" sentinel become NaN.
func parseFloatOrNaN(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "MM") {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// AngularDiff returns the smallest absolute difference between two compass
// bearings, accounting for 0°/360° wraparound. The result is in [0,180].
func AngularDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// SizeCategory buckets an H1/3 face height in feet: boundaries at 4/8/12 ft.
func SizeCategory(heightFt float64) string {
	switch {
	case heightFt < 4:
		return "small"
	case heightFt < 8:
		return "moderate"
	case heightFt < 12:
		return "large"
	default:
		return "extra_large"
	}
}
