// Package ndbc fetches buoy observations from the NDBC realtime2 feed.
package ndbc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/swell-fusion/internal/domain"
)

// Client implements domain.ObservationFetcher against the NDBC realtime2
// standard meteorological text files (one file per station, newest row
// first, ~45 days of history).
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an NDBC client with a per-request timeout.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://www.ndbc.noaa.gov/data/realtime2",
		logger:     logger,
	}
}

// Observations fetches the station's realtime2 file and returns the wave
// observations inside [from, to]. Rows with a missing wave height ("MM")
// are dropped; a station file with no usable rows yields an empty slice.
func (c *Client) Observations(ctx context.Context, station string, from, to time.Time) ([]domain.Observation, error) {
	u := fmt.Sprintf("%s/%s.txt", c.baseURL, station)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ndbc request for %s: %w", station, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ndbc API error for %s: status %d: %s", station, resp.StatusCode, body)
	}

	obs, err := parseRealtime2(resp.Body, station)
	if err != nil {
		return nil, fmt.Errorf("parse realtime2 for %s: %w", station, err)
	}

	var inWindow []domain.Observation
	for _, o := range obs {
		if !o.Time.Before(from) && !o.Time.After(to) {
			inWindow = append(inWindow, o)
		}
	}
	c.logger.Debug("ndbc observations fetched",
		"station", station,
		"total", len(obs),
		"in_window", len(inWindow),
	)
	return inWindow, nil
}

// parseRealtime2 reads the fixed-format text feed. The first header line
// names the columns; WVHT (m), DPD (s), and MWD (degT) carry the wave
// signal. "MM" marks a missing measurement.
func parseRealtime2(r io.Reader, station string) ([]domain.Observation, error) {
	scanner := bufio.NewScanner(r)

	var cols map[string]int
	var obs []domain.Observation
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if cols == nil {
				cols = headerIndex(strings.TrimPrefix(line, "#"))
			}
			continue
		}
		if cols == nil {
			return nil, fmt.Errorf("data before header")
		}

		fields := strings.Fields(line)
		t, ok := rowTime(fields)
		if !ok {
			continue
		}
		height := fieldValue(fields, cols, "WVHT")
		if math.IsNaN(height) {
			continue
		}
		obs = append(obs, domain.Observation{
			Station:      station,
			Time:         t,
			HeightM:      height,
			PeriodS:      fieldValue(fields, cols, "DPD"),
			DirectionDeg: fieldValue(fields, cols, "MWD"),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if cols == nil {
		return nil, fmt.Errorf("missing header")
	}
	return obs, nil
}

func headerIndex(header string) map[string]int {
	cols := make(map[string]int)
	for i, name := range strings.Fields(header) {
		cols[name] = i
	}
	return cols
}

// rowTime assembles the UTC timestamp from the leading YY MM DD hh mm
// columns.
func rowTime(fields []string) (time.Time, bool) {
	if len(fields) < 5 {
		return time.Time{}, false
	}
	parts := make([]int, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.Atoi(fields[i])
		if err != nil {
			return time.Time{}, false
		}
		parts[i] = v
	}
	return time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], 0, 0, time.UTC), true
}

func fieldValue(fields []string, cols map[string]int, name string) float64 {
	idx, ok := cols[name]
	if !ok || idx >= len(fields) {
		return math.NaN()
	}
	s := fields[idx]
	if s == "MM" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
