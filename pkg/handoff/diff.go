package handoff

import (
	"sort"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
)

// Recommendation summarizes what a diff suggests the next run should do.
// The decision policy consumes these; thresholds follow operational
// experience with subdomain churn on large estates.
type Recommendation string

const (
	// RecommendDeepOSINT fires on heavy growth (>20 new subdomains):
	// the target's surface changed enough to justify deep enumeration.
	RecommendDeepOSINT Recommendation = "RECOMMEND_DEEP_OSINT"

	// RecommendModerateGrowth is normal scan progression (>5 new).
	RecommendModerateGrowth Recommendation = "MODERATE_GROWTH"

	// RecommendNoChanges means nothing new: redundant scans can be
	// skipped.
	RecommendNoChanges Recommendation = "NO_CHANGES"

	// RecommendMinimalGrowth is small movement (1-5 new).
	RecommendMinimalGrowth Recommendation = "MINIMAL_GROWTH"
)

// Diff is the comparison between the current run and the previous
// persisted snapshot of the same target. It is computed once at run
// start (or on demand) and handed to the decision policy read-only.
type Diff struct {
	// New are findings present now but not in the previous snapshot.
	New []finding.Finding `json:"new"`

	// Removed are findings that disappeared since the previous snapshot.
	Removed []finding.Finding `json:"removed"`

	// Unchanged are findings present in both.
	Unchanged []finding.Finding `json:"unchanged"`

	// GrowthPercent is the relative change in subdomain count
	// (100.0 when the previous snapshot had none and the current has any).
	GrowthPercent float64 `json:"growth_percent"`

	// Recommendation summarizes the subdomain movement.
	Recommendation Recommendation `json:"recommendation"`
}

// Compare diffs current findings against a previous snapshot. Either
// side may be nil; a nil previous means everything current is new.
func Compare(current, previous *State) Diff {
	var cur, prev []finding.Finding
	if current != nil {
		cur = current.Findings
	}
	if previous != nil {
		prev = previous.Findings
	}

	prevByKey := make(map[string]finding.Finding, len(prev))
	for _, f := range prev {
		prevByKey[f.Key()] = f
	}
	curKeys := make(map[string]bool, len(cur))

	var d Diff
	for _, f := range cur {
		key := f.Key()
		if curKeys[key] {
			continue
		}
		curKeys[key] = true
		if _, ok := prevByKey[key]; ok {
			d.Unchanged = append(d.Unchanged, f)
		} else {
			d.New = append(d.New, f)
		}
	}
	for _, f := range prev {
		if !curKeys[f.Key()] {
			d.Removed = append(d.Removed, f)
		}
	}

	sortByKey(d.New)
	sortByKey(d.Removed)
	sortByKey(d.Unchanged)

	d.GrowthPercent, d.Recommendation = subdomainMovement(cur, prev, d.New)
	return d
}

func sortByKey(fs []finding.Finding) {
	sort.Slice(fs, func(i, j int) bool { return fs[i].Key() < fs[j].Key() })
}

func subdomainMovement(cur, prev, added []finding.Finding) (float64, Recommendation) {
	countSubs := func(fs []finding.Finding) int {
		n := 0
		for _, f := range fs {
			if f.Kind == finding.KindSubdomain {
				n++
			}
		}
		return n
	}
	curSubs, prevSubs, newSubs := countSubs(cur), countSubs(prev), countSubs(added)

	var growth float64
	switch {
	case prevSubs > 0:
		growth = float64(curSubs-prevSubs) / float64(prevSubs) * 100
	case curSubs > 0:
		growth = 100.0
	}
	// Round to two decimals for stable serialized output.
	growth = float64(int(growth*100+sign(growth)*0.5)) / 100

	switch {
	case newSubs > 20:
		return growth, RecommendDeepOSINT
	case newSubs > 5:
		return growth, RecommendModerateGrowth
	case newSubs == 0:
		return growth, RecommendNoChanges
	default:
		return growth, RecommendMinimalGrowth
	}
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}
