package boundary

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/citypulse-labs/citypulse/internal/adjacency"
)

type rawCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

type rawFeature struct {
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// DecodeGeoJSON parses a GeoJSON FeatureCollection into a normalized
// collection. Features are decoded one by one so that a single malformed
// geometry leaves that feature without geometry instead of failing the load.
func DecodeGeoJSON(data []byte) (adjacency.Collection, error) {
	var fc rawCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "boundary: decode feature collection")
	}
	if fc.Type != "FeatureCollection" {
		return nil, eris.Errorf("boundary: expected FeatureCollection, got %q", fc.Type)
	}

	out := make(adjacency.Collection, 0, len(fc.Features))
	var malformed int
	for i, raw := range fc.Features {
		var rf rawFeature
		if err := json.Unmarshal(raw, &rf); err != nil {
			malformed++
			out = append(out, adjacency.NewFeature(i, nil, nil))
			continue
		}
		g, ok := decodeGeometry(rf.Geometry)
		if !ok {
			malformed++
		}
		out = append(out, adjacency.NewFeature(i, rf.Properties, g))
	}

	if malformed > 0 {
		zap.L().Warn("boundary: features with malformed geometry",
			zap.Int("malformed", malformed),
			zap.Int("total", len(out)),
		)
	}
	return out, nil
}

// decodeGeometry returns the geometry in raw, or nil. The second value is
// false only when a geometry was present but could not be parsed.
func decodeGeometry(raw json.RawMessage) (orb.Geometry, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, true
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil || g == nil {
		return nil, false
	}
	return g.Geometry(), true
}
