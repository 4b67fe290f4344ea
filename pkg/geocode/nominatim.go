package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/citypulse-labs/citypulse/internal/resilience"
)

// nominatimPlace is one element of the jsonv2 search response. Coordinates
// arrive as strings.
type nominatimPlace struct {
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	DisplayName string   `json:"display_name"`
	BoundingBox []string `json:"boundingbox"` // south, north, west, east
}

// Search geocodes query, consulting the cache first. Both matches and
// non-matches are cached.
func (g *geocoder) Search(ctx context.Context, query string) (*Place, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, ErrNoMatch
	}

	key := cacheKey(q)
	if place, found := g.cached(ctx, key); found {
		if place == nil {
			return nil, ErrNoMatch
		}
		return place, nil
	}

	place, err := resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (*Place, error) {
		return resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*Place, error) {
			return g.searchNominatim(ctx, q)
		})
	})
	if err != nil {
		return nil, err
	}

	g.store(ctx, key, place)
	if place == nil {
		return nil, ErrNoMatch
	}
	return place, nil
}

// searchNominatim returns nil, nil when the query matches nothing.
func (g *geocoder) searchNominatim(ctx context.Context, query string) (*Place, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim rate limit")
	}

	params := url.Values{
		"q":      {query},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	reqURL := strings.TrimRight(g.baseURL, "/") + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim build request")
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("geocode: nominatim", resp.StatusCode, reqURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim read body")
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse response")
	}
	if len(places) == 0 {
		return nil, nil
	}
	return places[0].toPlace()
}

func (p nominatimPlace) toPlace() (*Place, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: nominatim invalid lat %q", p.Lat)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: nominatim invalid lon %q", p.Lon)
	}

	place := &Place{Lat: lat, Lon: lon, DisplayName: p.DisplayName}
	if len(p.BoundingBox) == 4 {
		var vals [4]float64
		ok := true
		for i, s := range p.BoundingBox {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if ok {
			place.BoundingBox = &BoundingBox{South: vals[0], North: vals[1], West: vals[2], East: vals[3]}
		}
	}

	zap.L().Debug("geocode: nominatim match",
		zap.String("display_name", place.DisplayName),
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
	)
	return place, nil
}
