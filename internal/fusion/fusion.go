// Package fusion merges per-source swell events into a unified set and
// scores the confidence of the result.
package fusion

import (
	"log/slog"
	"math"
	"sort"

	"github.com/couchcryptid/swell-fusion/internal/domain"
)

// Cross-source match tolerances. Looser than the single-source band
// tolerances because measurement error between providers is larger than
// drift within one provider's series.
const (
	DirToleranceDeg  = 20.0
	PeriodToleranceS = 2.0
)

// Fuser merges candidate events across sources. Ambiguous overlaps are
// resolved by a greedy pairwise merge in order of decreasing combined
// source score; an event never joins more than one fused group. That
// tie-break is a documented design choice, not a physical law — a
// clustering pass over the overlap graph would be an acceptable substitute.
type Fuser struct {
	logger *slog.Logger
}

// NewFuser creates a Fuser.
func NewFuser(logger *slog.Logger) *Fuser {
	return &Fuser{logger: logger}
}

// matchable reports whether two events from different sources look like the
// same physical swell: overlapping spans with direction and period inside
// the cross-source tolerances.
func matchable(a, b domain.SwellEvent) bool {
	if a.Source == b.Source {
		return false
	}
	if !a.Overlaps(b) {
		return false
	}
	return domain.AngularDiff(a.DirectionDeg, b.DirectionDeg) <= DirToleranceDeg &&
		math.Abs(a.PeriodS-b.PeriodS) <= PeriodToleranceS
}

// Fuse merges the per-source candidate events into a unified set. Events
// confirmed by multiple sources come back as a single new event whose
// representative values are the source-score-weighted average of the
// contributing peaks; single-source events pass through unchanged. The
// inputs are never mutated.
func (f *Fuser) Fuse(perSource map[string][]domain.SwellEvent) []domain.SwellEvent {
	var all []domain.SwellEvent
	for _, events := range perSource {
		all = append(all, events...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Start.Equal(all[j].Start) {
			return all[i].Start.Before(all[j].Start)
		}
		return all[i].Source < all[j].Source
	})

	type pair struct {
		a, b     int
		combined float64
	}
	var pairs []pair
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if matchable(all[i], all[j]) {
				pairs = append(pairs, pair{a: i, b: j, combined: all[i].SourceScore + all[j].SourceScore})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].combined > pairs[j].combined })

	// Greedy grouping: highest-combined-score pairs claim their members
	// first; a later pair may pull an ungrouped event into an existing
	// group, but never bridges two groups.
	groupOf := make(map[int]int, len(all))
	var groups [][]int
	for _, p := range pairs {
		ga, aok := groupOf[p.a]
		gb, bok := groupOf[p.b]
		switch {
		case !aok && !bok:
			groups = append(groups, []int{p.a, p.b})
			groupOf[p.a] = len(groups) - 1
			groupOf[p.b] = len(groups) - 1
		case aok && !bok:
			groups[ga] = append(groups[ga], p.b)
			groupOf[p.b] = ga
		case !aok && bok:
			groups[gb] = append(groups[gb], p.a)
			groupOf[p.a] = gb
		case ga != gb:
			f.logger.Info("ambiguous overlap left unmerged",
				"sources", []string{all[p.a].Source, all[p.b].Source},
				"combined_score", p.combined,
			)
		}
	}

	var fused []domain.SwellEvent
	for _, group := range groups {
		members := make([]domain.SwellEvent, len(group))
		for i, idx := range group {
			members[i] = all[idx]
		}
		fused = append(fused, merge(members))
	}
	for i, ev := range all {
		if _, grouped := groupOf[i]; !grouped {
			fused = append(fused, ev)
		}
	}

	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Start.Before(fused[j].Start) })
	return fused
}

// merge combines matched events into a new fused event. Height and period
// are the source-score-weighted average of the members' representative
// values; direction is the weighted circular mean so a 350°/10° pair
// averages to 0°, not 180°. The span is the union, the peak comes from the
// highest member, and the component list is the tagged union of all
// members' components.
func merge(members []domain.SwellEvent) domain.SwellEvent {
	var sumScore, sumHeight, sumPeriod float64
	var sinSum, cosSum float64
	for _, m := range members {
		sumScore += m.SourceScore
		sumHeight += m.HeightM * m.SourceScore
		sumPeriod += m.PeriodS * m.SourceScore
		rad := m.DirectionDeg * math.Pi / 180
		sinSum += math.Sin(rad) * m.SourceScore
		cosSum += math.Cos(rad) * m.SourceScore
	}

	direction := math.Atan2(sinSum, cosSum) * 180 / math.Pi
	if direction < 0 {
		direction += 360
	}

	ev := domain.SwellEvent{
		Source:       domain.SourceFused,
		SourceScore:  sumScore / float64(len(members)),
		HeightM:      sumHeight / sumScore,
		PeriodS:      sumPeriod / sumScore,
		DirectionDeg: direction,
	}

	ev.Start = members[0].Start
	ev.End = members[0].End
	peakOwner := members[0]
	for _, m := range members {
		if m.Start.Before(ev.Start) {
			ev.Start = m.Start
		}
		if m.End.After(ev.End) {
			ev.End = m.End
		}
		if m.MaxHeightM > peakOwner.MaxHeightM {
			peakOwner = m
		}
		ev.Components = append(ev.Components, m.Components...)
		if m.MaxHeightM > ev.MaxHeightM {
			ev.MaxHeightM = m.MaxHeightM
		}
	}
	ev.Peak = peakOwner.Peak
	sort.SliceStable(ev.Components, func(i, j int) bool { return ev.Components[i].Time.Before(ev.Components[j].Time) })
	return ev
}
