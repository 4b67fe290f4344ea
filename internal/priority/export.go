package priority

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// ExportFilename is the suggested download name for ExportGeoJSON output.
const ExportFilename = "greengap_priorities.geojson"

// DefaultAnchor is the study-area reference point used for records that carry
// no location of their own.
var DefaultAnchor = Location{Lat: 32.52, Lon: -117.05}

// Severity levels used for map styling.
const (
	SeverityCritical = "critical"
	SeverityElevated = "elevated"
)

// Severity classifies a deficit score: above 75 is critical.
func Severity(deficitScore float64) string {
	if deficitScore > 75 {
		return SeverityCritical
	}
	return SeverityElevated
}

// ExportGeoJSON encodes the records as a FeatureCollection of points.
// Records without a location are placed at anchor and flagged with
// approximateLocation so consumers never mistake the anchor for a real site.
func ExportGeoJSON(filtered []AreaRecord, anchor Location) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(filtered))}

	for _, r := range filtered {
		loc, approximate := anchor, true
		if r.Location != nil {
			loc, approximate = *r.Location, false
		}

		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       r.ID,
			Geometry: geom.NewPointFlat(geom.XY, []float64{loc.Lon, loc.Lat}),
			Properties: map[string]any{
				"name":                r.Name,
				"deficitScore":        r.DeficitScore,
				"recommendedAction":   string(r.RecommendedAction),
				"severity":            Severity(r.DeficitScore),
				"approximateLocation": approximate,
			},
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "priority: encode geojson")
	}
	return data, nil
}
