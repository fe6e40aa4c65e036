// Command genbundle generates a synthetic multi-source bundle fixture: the
// same NW swell as seen by a buoy, two wave models, and a chart source,
// each with its own noise, cadence, and units quirks. The output matches
// the collector wire format, so it can be published straight to the source
// topic for local runs or used as a pipeline test fixture.
//
// Usage:
//
//	go run ./cmd/genbundle -bundle-id bundle-20260901 -out data/mock/bundle.json \
//		-obs-out data/mock/51201.txt
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var baseTime = time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)

// wire types mirror the collector output format.
type wireSeries struct {
	BundleID        string       `json:"bundle_id"`
	SourceID        string       `json:"source_id"`
	Category        string       `json:"category"`
	IssuedAt        string       `json:"issued_at"`
	ExpectedRecords int          `json:"expected_records"`
	Records         []wireRecord `json:"records"`
}

type wireRecord struct {
	Time         string `json:"time"`
	Height       string `json:"height_m"`
	Period       string `json:"period_s"`
	Direction    string `json:"direction_deg"`
	Energy       string `json:"energy_m2"`
	Significance string `json:"significance"`
}

type sourceDef struct {
	id       string
	category string
	cadence  time.Duration
	noise    float64 // relative height noise
	dropRate float64 // fraction of records replaced with "MM"
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	bundleID := flag.String("bundle-id", "bundle-20260901", "bundle id for the fixture")
	out := flag.String("out", "", "output path for the bundle JSON fixture")
	obsOut := flag.String("obs-out", "", "optional output path for a matching NDBC-format observation file")
	seed := flag.Int64("seed", 42, "rng seed for reproducible noise")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	rng := rand.New(rand.NewSource(*seed))

	defs := []sourceDef{
		{id: "ndbc", category: "buoys", cadence: 30 * time.Minute, noise: 0.05, dropRate: 0.05},
		{id: "noaa-ww3", category: "models", cadence: 3 * time.Hour, noise: 0.10, dropRate: 0},
		{id: "ecmwf-wam", category: "models", cadence: 3 * time.Hour, noise: 0.15, dropRate: 0},
		{id: "opc-charts", category: "charts", cadence: 6 * time.Hour, noise: 0.20, dropRate: 0.1},
	}

	series := make([]wireSeries, 0, len(defs))
	for _, d := range defs {
		series = append(series, generate(rng, *bundleID, d))
		log.Printf("%s: %d records", d.id, len(series[len(series)-1].Records))
	}

	if err := writeJSON(*out, series); err != nil {
		return fmt.Errorf("writing bundle fixture: %w", err)
	}
	log.Printf("wrote bundle fixture: %s", *out)

	if *obsOut != "" {
		if err := writeObservations(*obsOut, series[0], rng); err != nil {
			return fmt.Errorf("writing observation fixture: %w", err)
		}
		log.Printf("wrote observation fixture: %s", *obsOut)
	}
	return nil
}

// generate produces 48 hours of one source's view of a NW swell that
// builds to 2.8 m / 14 s / 320° around hour 30 and fades.
func generate(rng *rand.Rand, bundleID string, d sourceDef) wireSeries {
	s := wireSeries{
		BundleID: bundleID,
		SourceID: d.id,
		Category: d.category,
		IssuedAt: baseTime.Format(time.RFC3339),
	}

	for t := time.Duration(0); t <= 48*time.Hour; t += d.cadence {
		hours := t.Hours()
		// Gaussian-ish pulse peaking at hour 30.
		envelope := math.Exp(-((hours - 30) * (hours - 30)) / (2 * 12 * 12))
		height := 0.6 + 2.2*envelope
		height *= 1 + d.noise*(2*rng.Float64()-1)
		period := 11 + 3*envelope
		direction := 320 + 8*(2*rng.Float64()-1)
		energy := height * height / 16
		significance := 0.35 + 0.4*envelope

		rec := wireRecord{
			Time:         baseTime.Add(t).Format(time.RFC3339),
			Height:       fmt.Sprintf("%.2f", height),
			Period:       fmt.Sprintf("%.1f", period),
			Direction:    fmt.Sprintf("%.0f", direction),
			Energy:       fmt.Sprintf("%.3f", energy),
			Significance: fmt.Sprintf("%.2f", significance),
		}
		if rng.Float64() < d.dropRate {
			rec.Height = "MM"
		}
		s.Records = append(s.Records, rec)
	}
	s.ExpectedRecords = len(s.Records)
	return s
}

// writeObservations renders the buoy series as an NDBC realtime2-style
// standard meteorological file, with fresh noise so validation runs against
// observations that are close to, but not identical to, the forecast inputs.
func writeObservations(path string, buoy wireSeries, rng *rand.Rand) error {
	var b strings.Builder
	b.WriteString("#YY  MM DD hh mm WDIR WSPD GST  WVHT   DPD   APD MWD   PRES  ATMP  WTMP  DEWP  VIS PTDY  TIDE\n")
	b.WriteString("#yr  mo dy hr mn degT m/s  m/s     m   sec   sec degT   hPa  degC  degC  degC  nmi hPa    ft\n")

	// realtime2 files list the newest row first.
	for i := len(buoy.Records) - 1; i >= 0; i-- {
		rec := buoy.Records[i]
		if rec.Height == "MM" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, rec.Time)
		if err != nil {
			return fmt.Errorf("fixture record time %q: %w", rec.Time, err)
		}
		var height, period, direction float64
		fmt.Sscanf(rec.Height, "%f", &height)
		fmt.Sscanf(rec.Period, "%f", &period)
		fmt.Sscanf(rec.Direction, "%f", &direction)
		height *= 1 + 0.04*(2*rng.Float64()-1)
		direction += 5 * (2*rng.Float64() - 1)

		fmt.Fprintf(&b, "%d %02d %02d %02d %02d  MM   MM   MM  %4.1f  %4.1f    MM %3.0f     MM    MM    MM    MM   MM   MM    MM\n",
			ts.Year(), int(ts.Month()), ts.Day(), ts.Hour(), ts.Minute(),
			height, period, math.Mod(direction+360, 360))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
