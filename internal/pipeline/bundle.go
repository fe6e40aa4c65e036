package pipeline

import (
	"context"
	"time"

	"github.com/couchcryptid/swell-fusion/internal/domain"
)

// bundleState accumulates one bundle's per-source series while its messages
// trickle in from the collectors.
type bundleState struct {
	id          string
	series      map[string]domain.SourceSeries
	commits     []func(ctx context.Context) error
	lastMessage time.Time
}

// assembler groups incoming source series by bundle id. A bundle is ready
// for fusion once no new message has arrived for it within the quiet
// period — collectors publish a bundle's sources in a tight burst, so quiet
// means complete (or as complete as this cycle gets).
type assembler struct {
	quietPeriod time.Duration
	bundles     map[string]*bundleState
}

func newAssembler(quietPeriod time.Duration) *assembler {
	return &assembler{
		quietPeriod: quietPeriod,
		bundles:     make(map[string]*bundleState),
	}
}

// add merges a parsed series into its bundle. A second message for the
// same (bundle, source) replaces the first; collectors re-publish on retry.
func (a *assembler) add(series domain.SourceSeries, commit func(ctx context.Context) error, now time.Time) {
	b, ok := a.bundles[series.BundleID]
	if !ok {
		b = &bundleState{
			id:     series.BundleID,
			series: make(map[string]domain.SourceSeries),
		}
		a.bundles[series.BundleID] = b
	}
	b.series[series.SourceID] = series
	if commit != nil {
		b.commits = append(b.commits, commit)
	}
	b.lastMessage = now
}

// due removes and returns the bundles whose quiet period has lapsed,
// ready for processing.
func (a *assembler) due(now time.Time) []*bundleState {
	var ready []*bundleState
	for id, b := range a.bundles {
		if now.Sub(b.lastMessage) >= a.quietPeriod {
			ready = append(ready, b)
			delete(a.bundles, id)
		}
	}
	return ready
}
