package priority

// ActionImpact is the static cost and benefit estimate of an action.
type ActionImpact struct {
	AccessBoostPoints float64 `json:"accessBoostPoints"`
	CostUSD           float64 `json:"costUSD"`
	ROIPerResident    float64 `json:"roiPerResident"`
}

var impactTable = map[Action]ActionImpact{
	ActionTwoPocketParks:    {AccessBoostPoints: 14, CostUSD: 850000, ROIPerResident: 42},
	ActionStreetTrees:       {AccessBoostPoints: 8, CostUSD: 320000, ROIPerResident: 68},
	ActionOnePocketPark:     {AccessBoostPoints: 11, CostUSD: 420000, ROIPerResident: 51},
	ActionGreenRoofs:        {AccessBoostPoints: 5, CostUSD: 180000, ROIPerResident: 34},
	ActionSchoolyardSharing: {AccessBoostPoints: 9, CostUSD: 95000, ROIPerResident: 88},
}

// ImpactOf returns the table entry for a, or the zero impact.
func ImpactOf(a Action) ActionImpact {
	return impactTable[a]
}

// Known reports whether a has a table entry.
func (a Action) Known() bool {
	_, ok := impactTable[a]
	return ok
}

// SimulateIntervention returns the impact of the record's recommended action.
// Unknown actions have zero impact.
func SimulateIntervention(r AreaRecord) ActionImpact {
	return ImpactOf(r.RecommendedAction)
}

// TotalImpact sums the impact of every record. ROI is averaged, not summed.
func TotalImpact(records []AreaRecord) ActionImpact {
	var total ActionImpact
	for _, r := range records {
		imp := SimulateIntervention(r)
		total.AccessBoostPoints += imp.AccessBoostPoints
		total.CostUSD += imp.CostUSD
		total.ROIPerResident += imp.ROIPerResident
	}
	if len(records) > 0 {
		total.ROIPerResident /= float64(len(records))
	}
	return total
}
