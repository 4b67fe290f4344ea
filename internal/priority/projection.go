package priority

// Projection model constants.
const (
	BaselineYear     = 2025
	BaselineCoverage = 58.0
	MaxCoverage      = 100.0
)

// ProjectionPoint is one year of projected park-access coverage and
// cumulative spend.
type ProjectionPoint struct {
	Year     int     `json:"year"`
	Coverage float64 `json:"coverage"`
	Cost     float64 `json:"cost"`
}

// checkpoint applies separate fractions of the total boost and total cost.
type checkpoint struct {
	year     int
	coverage float64
	cost     float64
}

var checkpoints = []checkpoint{
	{year: 2026, coverage: 0.3, cost: 0.4},
	{year: 2028, coverage: 0.7, cost: 0.8},
	{year: 2030, coverage: 1.0, cost: 1.0},
}

// ProjectImpact projects coverage and cost for the filtered set. The result
// always starts with the baseline; three checkpoints follow when filtered is
// non-empty. Only the final checkpoint's coverage is clamped to 100.
func ProjectImpact(filtered []AreaRecord) []ProjectionPoint {
	points := []ProjectionPoint{{Year: BaselineYear, Coverage: BaselineCoverage}}
	if len(filtered) == 0 {
		return points
	}

	total := TotalImpact(filtered)
	for i, cp := range checkpoints {
		p := ProjectionPoint{
			Year:     cp.year,
			Coverage: BaselineCoverage + cp.coverage*total.AccessBoostPoints,
			Cost:     cp.cost * total.CostUSD,
		}
		if i == len(checkpoints)-1 {
			p.Coverage = min(MaxCoverage, p.Coverage)
		}
		points = append(points, p)
	}
	return points
}
