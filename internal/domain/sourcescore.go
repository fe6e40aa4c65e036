package domain

import (
	"log/slog"
	"time"
)

// Tier is a provider's place on the fixed reliability ladder.
type Tier int

const (
	TierGovernmentPrimary Tier = iota + 1 // NOAA / NDBC primary feeds
	TierResearch                          // research and academic models
	TierIntlGovernment                    // non-US government agencies
	TierCommercial                        // commercial forecast vendors
	TierAggregator                        // aggregators and unverified feeds
)

// tierWeights maps each tier to its base reliability weight.
var tierWeights = map[Tier]float64{
	TierGovernmentPrimary: 1.0,
	TierResearch:          0.9,
	TierIntlGovernment:    0.7,
	TierCommercial:        0.5,
	TierAggregator:        0.3,
}

// Weight returns the tier's base reliability weight. Unknown tiers get the
// bottom weight.
func (t Tier) Weight() float64 {
	if w, ok := tierWeights[t]; ok {
		return w
	}
	return tierWeights[TierAggregator]
}

// TierTable is the process-wide provider→tier mapping, loaded once at
// startup and passed explicitly into scoring. It is never mutated after
// construction.
type TierTable struct {
	entries map[string]Tier
}

// NewTierTable copies the given mapping into an immutable table.
func NewTierTable(entries map[string]Tier) TierTable {
	copied := make(map[string]Tier, len(entries))
	for id, tier := range entries {
		copied[id] = tier
	}
	return TierTable{entries: copied}
}

// Lookup returns the tier for a source id. Unmapped ids fall to the bottom
// tier so a brand-new provider degrades the score instead of blocking
// fusion.
func (t TierTable) Lookup(sourceID string) Tier {
	if tier, ok := t.entries[sourceID]; ok {
		return tier
	}
	return TierAggregator
}

// discreditingMAEFt is the recent mean absolute error, in feet, at which a
// provider's historical-accuracy factor bottoms out at zero.
const discreditingMAEFt = 5.0

// SourceScorer assigns a reliability score in [0,1] to each provider from
// its tier plus freshness, completeness, and historical-accuracy
// adjustments. Pure over its inputs; the only side effect is an audit log
// line per score.
type SourceScorer struct {
	tiers           TierTable
	stalenessWindow time.Duration
	logger          *slog.Logger
}

// NewSourceScorer creates a scorer. Freshness decays linearly to zero over
// the staleness window.
func NewSourceScorer(tiers TierTable, stalenessWindow time.Duration, logger *slog.Logger) *SourceScorer {
	return &SourceScorer{tiers: tiers, stalenessWindow: stalenessWindow, logger: logger}
}

// Score computes the reliability score for one source.
//
//	score = 0.5*tier + 0.2*freshness + 0.2*completeness + 0.1*historical
//
// historicalMAE is the provider's recent validation MAE in feet; pass nil
// when no validation history exists yet, which scores as a 0.7 optimistic
// prior rather than penalizing a new deployment.
func (s *SourceScorer) Score(sourceID string, freshness time.Duration, completeness float64, historicalMAE *float64) float64 {
	tier := s.tiers.Lookup(sourceID)

	freshFactor := 1.0
	if s.stalenessWindow > 0 {
		freshFactor = 1 - freshness.Seconds()/s.stalenessWindow.Seconds()
	}
	freshFactor = clamp01(freshFactor)

	histFactor := 0.7
	if historicalMAE != nil {
		histFactor = max(0, 1-*historicalMAE/discreditingMAEFt)
	}

	score := 0.5*tier.Weight() + 0.2*freshFactor + 0.2*clamp01(completeness) + 0.1*histFactor

	s.logger.Debug("source scored",
		"source", sourceID,
		"tier", int(tier),
		"freshness_factor", freshFactor,
		"completeness", completeness,
		"historical_factor", histFactor,
		"score", score,
	)
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
