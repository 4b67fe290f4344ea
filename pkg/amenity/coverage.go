package amenity

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Coverage search radius bounds, in kilometers.
const (
	MinRadiusKm     = 10
	MaxRadiusKm     = 300
	DefaultRadiusKm = 100
)

// Gap is a probe point with no hospital within RadiusMeters.
type Gap struct {
	Label        string  `json:"label"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	RadiusMeters float64 `json:"radiusMeters"`
}

// Probe is a point checked for hospital coverage.
type Probe struct {
	Label string
	Lat   float64
	Lon   float64
}

// Probes returns the points checked for a box: its center, then the
// north-west, north-east, south-west and south-east corners.
func Probes(b BBox) []Probe {
	lat, lon := b.Center()
	return []Probe{
		{Label: "center", Lat: lat, Lon: lon},
		{Label: "northwest", Lat: b.North, Lon: b.West},
		{Label: "northeast", Lat: b.North, Lon: b.East},
		{Label: "southwest", Lat: b.South, Lon: b.West},
		{Label: "southeast", Lat: b.South, Lon: b.East},
	}
}

// ClampRadiusKm limits a search radius to the supported range. Non-positive
// values select the default.
func ClampRadiusKm(km float64) float64 {
	if km <= 0 {
		return DefaultRadiusKm
	}
	return max(MinRadiusKm, min(MaxRadiusKm, km))
}

// CoverageGaps probes bbox and returns the probe points that have no
// hospital within radiusKm, in probe order. A failed probe is logged and
// skipped; only cancellation of ctx fails the call.
func (c *Client) CoverageGaps(ctx context.Context, bbox BBox, radiusKm float64) ([]Gap, error) {
	if err := bbox.Validate(); err != nil {
		return nil, err
	}
	radius := ClampRadiusKm(radiusKm) * 1000
	probes := Probes(bbox)

	gaps := make([]*Gap, len(probes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.probeConcurrency)

	for i, p := range probes {
		i, p := i, p
		g.Go(func() error {
			found, err := c.hospitalsAround(gctx, p.Lat, p.Lon, radius)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Warn("amenity: coverage probe failed",
					zap.String("probe", p.Label),
					zap.Float64("lat", p.Lat),
					zap.Float64("lon", p.Lon),
					zap.Error(err),
				)
				return nil
			}
			if len(found) == 0 {
				gaps[i] = &Gap{Label: p.Label, Lat: p.Lat, Lon: p.Lon, RadiusMeters: radius}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Gap, 0, len(gaps))
	for _, gap := range gaps {
		if gap != nil {
			out = append(out, *gap)
		}
	}
	return out, nil
}
