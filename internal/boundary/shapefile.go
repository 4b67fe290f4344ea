package boundary

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	geomjson "github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/citypulse-labs/citypulse/internal/adjacency"
)

// ReadShapefile reads a polygon shapefile (with its .dbf sidecar) into a
// normalized collection. Attribute columns become feature properties.
func ReadShapefile(shpPath string) (adjacency.Collection, error) {
	// go-shp silently returns no attributes when the .dbf is missing, which
	// leaves every feature unnamed and unsearchable.
	dbfPath := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".dbf"
	if _, err := os.Stat(dbfPath); err != nil {
		return nil, eris.Wrapf(err, "boundary: shapefile attributes %s", dbfPath)
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	var out adjacency.Collection
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		props := make(map[string]any, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val != "" {
				props[name] = val
			}
		}

		g, err := shapeGeometry(shape)
		if err != nil {
			return nil, err
		}
		if g == nil {
			skipped++
		}
		out = append(out, adjacency.NewFeature(len(out), props, g))
	}

	if skipped > 0 {
		zap.L().Debug("boundary: shapefile records without polygon geometry",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}

// shapeGeometry converts a shapefile polygon into an orb geometry by way of a
// go-geom MultiPolygon and its GeoJSON encoding. Non-polygon shapes yield nil.
func shapeGeometry(shape shp.Shape) (orb.Geometry, error) {
	p, ok := shape.(*shp.Polygon)
	if !ok {
		return nil, nil
	}
	mp := polygonToMultiPolygon(p)
	if mp == nil {
		return nil, nil
	}

	encoded, err := geomjson.Encode(mp)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: encode shapefile geometry")
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: marshal shapefile geometry")
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: decode shapefile geometry")
	}
	return g.Geometry(), nil
}

// polygonToMultiPolygon turns each shapefile part into its own polygon.
// Shapefiles do not group holes with their shells, and adjacency only needs
// the vertices, so every ring is kept as a shell.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || end-start < 4 {
			zap.L().Debug("boundary: skipping degenerate ring", zap.Int32("part", i))
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("boundary: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("boundary: skipping malformed polygon", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
