// Package adjacency resolves country features by free-text search and finds
// their geographic neighbors by shared boundary vertices.
package adjacency

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when a search query matches no feature.
var ErrNotFound = eris.New("adjacency: feature not found")

// ErrAmbiguousOrMissing is returned when a target feature cannot be located
// inside the collection it is resolved against.
var ErrAmbiguousOrMissing = eris.New("adjacency: target not present in collection")

// Source property names probed once at normalization time.
var (
	codeProperties   = []string{"ISO_A3", "ISO3", "ADM0_A3", "ISO3166-1-Alpha-3"}
	nameProperties   = []string{"ADMIN", "NAME", "name"}
	searchProperties = []string{"ADMIN", "NAME", "name", "SOVEREIGNT", "ADMIN_A3"}
)

// missingCode is Natural Earth's placeholder for "no ISO code assigned".
const missingCode = "-99"

// Feature is a country (or any area) in canonical form. Source schemas are
// mapped into this shape once, so downstream logic reads fixed fields.
type Feature struct {
	Index       int            `json:"index"`
	Code        string         `json:"code,omitempty"`
	Name        string         `json:"name"`
	SearchTerms []string       `json:"-"`
	Geometry    orb.Geometry   `json:"-"`
	Properties  map[string]any `json:"-"`
}

// Collection is an ordered, read-only set of features.
type Collection []Feature

// Result is the outcome of neighbor resolution.
type Result struct {
	Target    Feature   `json:"target"`
	Neighbors []Feature `json:"neighbors"`
}

// NewFeature normalizes raw GeoJSON properties and a geometry into a Feature.
// Geometries other than Polygon and MultiPolygon are kept for bounds only.
func NewFeature(index int, props map[string]any, g orb.Geometry) Feature {
	f := Feature{
		Index:      index,
		Geometry:   g,
		Properties: props,
	}

	f.Code = firstCode(props)
	f.Name = firstProperty(props, nameProperties)

	for _, key := range searchProperties {
		if v := propertyString(props, key); v != "" {
			f.SearchTerms = append(f.SearchTerms, v)
		}
	}
	return f
}

// Label returns the best human-readable identifier of the feature.
func (f Feature) Label() string {
	switch {
	case f.Name != "":
		return f.Name
	case f.Code != "":
		return f.Code
	default:
		return fmt.Sprintf("feature #%d", f.Index)
	}
}

// Bounds returns the axis-aligned bounding box of the feature's geometry.
// The second value is false when the feature has no usable geometry.
func (f Feature) Bounds() (orb.Bound, bool) {
	if f.Geometry == nil {
		return orb.Bound{}, false
	}
	b := f.Geometry.Bound()
	if b.IsEmpty() {
		return orb.Bound{}, false
	}
	return b, true
}

// Names returns the labels of every feature, in order.
func (c Collection) Names() []string {
	out := make([]string, len(c))
	for i, f := range c {
		out[i] = f.Label()
	}
	return out
}

func firstProperty(props map[string]any, keys []string) string {
	for _, key := range keys {
		if v := propertyString(props, key); v != "" {
			return v
		}
	}
	return ""
}

// firstCode returns the first code property that is neither empty nor the
// Natural Earth placeholder.
func firstCode(props map[string]any) string {
	for _, key := range codeProperties {
		if v := propertyString(props, key); v != "" && v != missingCode {
			return v
		}
	}
	return ""
}

// propertyString renders a scalar property as a trimmed string.
func propertyString(props map[string]any, key string) string {
	raw, ok := props[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%g", v))
	case bool, int, int64:
		return fmt.Sprint(v)
	default:
		return ""
	}
}
