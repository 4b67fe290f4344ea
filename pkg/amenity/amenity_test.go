package amenity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"

	"github.com/citypulse-labs/citypulse/internal/resilience"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

var tijuana = BBox{South: 32.25, West: -117.25, North: 32.75, East: -116.75}

func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	opts = append([]Option{
		WithEndpoint(srv.URL + "/api/interpreter"),
		WithRetry(resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}),
	}, opts...)
	c := NewClient(opts...)
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

func TestHospitals(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/interpreter", r.URL.Path)
		gotQuery = r.URL.Query().Get("data")
		_, _ = w.Write([]byte(`{"elements":[
			{"type":"node","id":1,"lat":32.53,"lon":-117.02,"tags":{"amenity":"hospital","name":" Hospital General "}},
			{"type":"node","id":2,"lat":0,"lon":-117.0,"tags":{"amenity":"hospital"}},
			{"type":"node","id":3,"lat":32.5,"lon":-117.05}
		]}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv).Hospitals(context.Background(), tijuana)
	require.NoError(t, err)

	assert.Equal(t, `[out:json];node["amenity"="hospital"](32.25,-117.25,32.75,-116.75);out;`, gotQuery)
	assert.Equal(t, []Hospital{
		{ID: 1, Name: "Hospital General", Lat: 32.53, Lon: -117.02},
		{ID: 3, Lat: 32.5, Lon: -117.05},
	}, got)
}

func TestHospitals_InvalidBBox(t *testing.T) {
	c := NewClient()
	for _, b := range []BBox{
		{South: 10, West: 0, North: 5, East: 1},
		{South: 0, West: 5, North: 1, East: 5},
		{South: -91, West: 0, North: 1, East: 1},
		{South: 0, West: 0, North: 1, East: 181},
	} {
		_, err := c.Hospitals(context.Background(), b)
		assert.ErrorIs(t, err, ErrInvalidBBox, "%+v", b)
	}
}

func TestHospitals_UpstreamErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Hospitals(context.Background(), tijuana)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, int32(2), calls.Load())

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer bad.Close()
	_, err = newTestClient(bad).Hospitals(context.Background(), tijuana)
	assert.Error(t, err)
}

func TestProbes(t *testing.T) {
	p := Probes(BBox{South: 0, West: 10, North: 2, East: 14})
	require.Len(t, p, 5)
	assert.Equal(t, Probe{Label: "center", Lat: 1, Lon: 12}, p[0])
	assert.Equal(t, Probe{Label: "northwest", Lat: 2, Lon: 10}, p[1])
	assert.Equal(t, Probe{Label: "northeast", Lat: 2, Lon: 14}, p[2])
	assert.Equal(t, Probe{Label: "southwest", Lat: 0, Lon: 10}, p[3])
	assert.Equal(t, Probe{Label: "southeast", Lat: 0, Lon: 14}, p[4])
}

func TestClampRadiusKm(t *testing.T) {
	assert.Equal(t, 100.0, ClampRadiusKm(0))
	assert.Equal(t, 10.0, ClampRadiusKm(2))
	assert.Equal(t, 300.0, ClampRadiusKm(900))
	assert.Equal(t, 55.0, ClampRadiusKm(55))
}

// coverageServer answers around: queries. Probes whose latitude appears in
// covered get one hospital; probes whose latitude appears in failing get 400.
func coverageServer(t *testing.T, covered, failing []string) (*httptest.Server, *sync.Map) {
	t.Helper()
	var seen sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("data")
		seen.Store(q, true)
		for _, lat := range failing {
			if strings.Contains(q, ","+lat+",") {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}
		for _, lat := range covered {
			if strings.Contains(q, ","+lat+",") {
				_, _ = w.Write([]byte(`{"elements":[{"type":"node","id":9,"lat":1,"lon":1}]}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"elements":[]}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestCoverageGaps(t *testing.T) {
	srv, seen := coverageServer(t, []string{"32.5"}, nil)
	gaps, err := newTestClient(srv).CoverageGaps(context.Background(), tijuana, 50)
	require.NoError(t, err)

	require.Len(t, gaps, 4, "only the center probe is covered")
	assert.Equal(t, []string{"northwest", "northeast", "southwest", "southeast"},
		[]string{gaps[0].Label, gaps[1].Label, gaps[2].Label, gaps[3].Label})
	for _, g := range gaps {
		assert.Equal(t, 50000.0, g.RadiusMeters)
	}

	_, ok := seen.Load(`[out:json];node["amenity"="hospital"](around:50000,32.5,-117);out;`)
	assert.True(t, ok, "center probe query")
}

func TestCoverageGaps_RadiusClamped(t *testing.T) {
	srv, _ := coverageServer(t, nil, nil)
	gaps, err := newTestClient(srv).CoverageGaps(context.Background(), tijuana, 1000)
	require.NoError(t, err)
	require.Len(t, gaps, 5)
	assert.Equal(t, 300000.0, gaps[0].RadiusMeters)
}

func TestCoverageGaps_FailedProbeSkipped(t *testing.T) {
	srv, _ := coverageServer(t, []string{"32.5"}, []string{"32.75"})
	gaps, err := newTestClient(srv).CoverageGaps(context.Background(), tijuana, 100)
	require.NoError(t, err)

	labels := make([]string, len(gaps))
	for i, g := range gaps {
		labels[i] = g.Label
	}
	assert.Equal(t, []string{"southwest", "southeast"}, labels)
}

func TestCoverageGaps_Cancelled(t *testing.T) {
	srv, _ := coverageServer(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(srv).CoverageGaps(ctx, tijuana, 100)
	assert.ErrorIs(t, err, context.Canceled)
}
