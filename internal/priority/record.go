// Package priority ranks green-space deficit areas under user thresholds and
// projects the coverage and cost of the recommended interventions.
//
// Every function here is pure: no I/O, no shared state. Callers pass plain
// data in and get plain data out.
package priority

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// Action is a recommended intervention kind.
type Action string

// Known actions.
const (
	ActionTwoPocketParks    Action = "2 pocket parks"
	ActionStreetTrees       Action = "Street tree corridor"
	ActionOnePocketPark     Action = "1 pocket park"
	ActionGreenRoofs        Action = "Green roof program"
	ActionSchoolyardSharing Action = "Schoolyard sharing"
)

// Actions lists the known actions in table order.
var Actions = []Action{
	ActionTwoPocketParks,
	ActionStreetTrees,
	ActionOnePocketPark,
	ActionGreenRoofs,
	ActionSchoolyardSharing,
}

// MaxPriorities caps the ranked list.
const MaxPriorities = 10

// Location is a WGS84 coordinate.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// AreaRecord is one candidate area, typically a census block group.
type AreaRecord struct {
	ID                string    `json:"id" yaml:"id"`
	Name              string    `json:"name" yaml:"name"`
	VegetationIndex   float64   `json:"vegetationIndex" yaml:"vegetation_index"`
	ParkAccessPercent float64   `json:"parkAccessPercent" yaml:"park_access_percent"`
	DeficitScore      float64   `json:"deficitScore" yaml:"deficit_score"`
	RecommendedAction Action    `json:"recommendedAction" yaml:"recommended_action"`
	Location          *Location `json:"location,omitempty" yaml:"location,omitempty"`
}

// Thresholds are the user-controlled cutoffs. An area qualifies when both its
// vegetation percentile and its park access fall strictly below them.
type Thresholds struct {
	VegetationPercentileCutoff float64 `json:"vegetationPercentileCutoff" yaml:"vegetation_percentile_cutoff" mapstructure:"vegetation_percentile_cutoff"`
	ParkAccessPercentCutoff    float64 `json:"parkAccessPercentCutoff" yaml:"park_access_percent_cutoff" mapstructure:"park_access_percent_cutoff"`
}

// DefaultThresholds returns the initial slider positions.
func DefaultThresholds() Thresholds {
	return Thresholds{VegetationPercentileCutoff: 30, ParkAccessPercentCutoff: 60}
}

// Validate rejects cutoffs that are not finite percentages.
func (t Thresholds) Validate() error {
	var errs []string
	check := func(name string, v float64) {
		if math.IsNaN(v) || v < 0 || v > 100 {
			errs = append(errs, name+" must be within [0, 100]")
		}
	}
	check("vegetation percentile cutoff", t.VegetationPercentileCutoff)
	check("park access cutoff", t.ParkAccessPercentCutoff)

	if len(errs) > 0 {
		return eris.Errorf("priority: invalid thresholds: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Qualifies reports whether r passes both cutoffs.
func (t Thresholds) Qualifies(r AreaRecord) bool {
	return r.VegetationIndex*100 < t.VegetationPercentileCutoff &&
		r.ParkAccessPercent < t.ParkAccessPercentCutoff
}
