package priority

import (
	"cmp"
	"slices"
)

// FilterPriorities returns the records passing thresholds, ordered by
// descending deficit score and truncated to MaxPriorities. Ties keep their
// input order. The input slice is not modified.
func FilterPriorities(records []AreaRecord, thresholds Thresholds) []AreaRecord {
	out := make([]AreaRecord, 0, min(len(records), MaxPriorities))
	for _, r := range records {
		if thresholds.Qualifies(r) {
			out = append(out, r)
		}
	}

	slices.SortStableFunc(out, func(a, b AreaRecord) int {
		return cmp.Compare(b.DeficitScore, a.DeficitScore)
	})

	if len(out) > MaxPriorities {
		out = out[:MaxPriorities]
	}
	return out
}
