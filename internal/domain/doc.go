// Package domain models multi-source swell observations and the fused
// forecast data derived from them.
//
// # Data Sources
//
// Swell records arrive in per-source bundles published by the collector
// fleet. A bundle is one snapshot of everything collected in a cycle: NDBC
// buoy spectral summaries, WaveWatch III and regional model grids, surface
// analysis charts, and satellite altimetry. Each collector parses its raw
// files, tags every record with a provenance id, and publishes one message
// per (bundle, source) to the Kafka source topic as flat JSON.
//
// # Record Conventions
//
// Height:
//
//	Meters, significant height of the spectral band (not face height).
//	Shore ratings convert to feet at the reporting boundary; the Hawaiian
//	scale used by downstream narrative services is roughly half face height.
//
// Period:
//
//	Seconds, dominant period of the band. Long-period energy (≥ 14 s)
//	travels from distant storms and is the signal this system cares about;
//	short-period wind chop mostly fails the detection thresholds.
//
// Direction:
//
//	Degrees true, meteorological "from" convention: 330° means the swell
//	arrives out of the NNW. All angular math wraps at 0°/360° — the
//	difference between 350° and 10° is 20°, not 340°. See [AngularDiff].
//
// Significance:
//
//	Fraction of total spectral energy at an instant attributable to one
//	band, in [0,1]. Bands observed at the same instant sum to at most 1.
//
// Unknown values:
//
//	NDBC publishes "MM" for missing measurements; collectors forward these
//	as NaN. NaN and out-of-range samples are skipped and logged during
//	detection, never fatal.
//
// # Source Tiers
//
// Providers are ranked on a fixed five-tier reliability ladder, from
// government primary (NOAA/NDBC, weight 1.0) down to unverified
// aggregators (weight 0.3). Unknown source ids fall to the bottom tier
// rather than failing, so a newly added provider degrades gracefully.
// See [TierTable].
//
// # Size Buckets
//
// Categorical accuracy uses H1/3 face-height buckets at 4/8/12 ft:
// small, moderate, large, extra_large. Bucket thresholds are a reporting
// convention, not physics; raw matched pairs are persisted so reports can
// be recut with different thresholds later.
package domain
