package adjacency

import (
	"bytes"
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// ResolveNeighbors locates target inside c and returns every other feature
// that both intersects the target's bounding box and shares at least one
// vertex key with it.
//
// The bounding box test is a pre-filter only. Polygons that wrap the
// antimeridian get a world-spanning box, which keeps the filter conservative
// but no longer selective for them.
func ResolveNeighbors(c Collection, target Feature) (Result, error) {
	idx, ok := locate(c, target)
	if !ok {
		zap.L().Warn("adjacency: target not found in collection",
			zap.String("target", target.Label()),
		)
		return Result{}, ErrAmbiguousOrMissing
	}

	resolved := c[idx]
	res := Result{Target: resolved, Neighbors: []Feature{}}

	targetBound, ok := resolved.Bounds()
	if !ok {
		return res, nil
	}
	vertices := vertexSet(resolved.Geometry)
	if len(vertices) == 0 {
		return res, nil
	}

	for i, candidate := range c {
		if i == idx {
			continue
		}
		b, ok := candidate.Bounds()
		if !ok || !targetBound.Intersects(b) {
			continue
		}
		if sharesVertex(vertices, candidate.Geometry) {
			res.Neighbors = append(res.Neighbors, candidate)
		}
	}

	zap.L().Debug("adjacency: resolved neighbors",
		zap.String("target", resolved.Label()),
		zap.Int("neighbors", len(res.Neighbors)),
	)
	return res, nil
}

// Neighbors is FindFeature followed by ResolveNeighbors.
func Neighbors(c Collection, query string) (Result, error) {
	f, err := FindFeature(c, query)
	if err != nil {
		return Result{}, err
	}
	return ResolveNeighbors(c, f)
}

// locate finds the in-collection representative of target: by code, then by
// name, then by byte-equal serialized geometry.
func locate(c Collection, target Feature) (int, bool) {
	if target.Code != "" {
		for i, f := range c {
			if f.Code == target.Code {
				return i, true
			}
		}
	}
	if target.Name != "" {
		for i, f := range c {
			if f.Name == target.Name {
				return i, true
			}
		}
	}

	// Last resort: O(n) scan over serialized geometries. Acceptable for
	// country-sized collections only.
	want := serializeGeometry(target.Geometry)
	if want == nil {
		return 0, false
	}
	for i, f := range c {
		if got := serializeGeometry(f.Geometry); got != nil && bytes.Equal(got, want) {
			return i, true
		}
	}
	return 0, false
}

func serializeGeometry(g orb.Geometry) []byte {
	if g == nil {
		return nil
	}
	data, err := json.Marshal(geojson.NewGeometry(g))
	if err != nil {
		return nil
	}
	return data
}
