package adjacency

import (
	"strconv"

	"github.com/paulmach/orb"
)

// vertexPrecision is the number of decimals kept when keying a vertex.
const vertexPrecision = 6

// VertexKey returns the canonical "lat,lon" key of a coordinate, rounded to
// six decimals. Vertices are shared only when their keys are equal.
func VertexKey(p orb.Point) string {
	buf := make([]byte, 0, 24)
	buf = strconv.AppendFloat(buf, p.Lat(), 'f', vertexPrecision, 64)
	buf = append(buf, ',')
	buf = strconv.AppendFloat(buf, p.Lon(), 'f', vertexPrecision, 64)
	return string(buf)
}

// eachVertex calls fn for every vertex of every ring of a Polygon or
// MultiPolygon. Other geometry types contribute nothing.
func eachVertex(g orb.Geometry, fn func(orb.Point) bool) {
	switch geom := g.(type) {
	case orb.Polygon:
		walkPolygon(geom, fn)
	case orb.MultiPolygon:
		for _, poly := range geom {
			if !walkPolygon(poly, fn) {
				return
			}
		}
	}
}

func walkPolygon(poly orb.Polygon, fn func(orb.Point) bool) bool {
	for _, ring := range poly {
		for _, p := range ring {
			if !fn(p) {
				return false
			}
		}
	}
	return true
}

// vertexSet collects the keys of every vertex of g.
func vertexSet(g orb.Geometry) map[string]struct{} {
	set := make(map[string]struct{})
	eachVertex(g, func(p orb.Point) bool {
		set[VertexKey(p)] = struct{}{}
		return true
	})
	return set
}

// sharesVertex reports whether any vertex of g is present in set.
func sharesVertex(set map[string]struct{}, g orb.Geometry) bool {
	if len(set) == 0 {
		return false
	}
	found := false
	eachVertex(g, func(p orb.Point) bool {
		if _, ok := set[VertexKey(p)]; ok {
			found = true
			return false
		}
		return true
	})
	return found
}
