package adjacency

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// square returns a closed unit-ish square polygon with its lower-left corner at (x, y).
func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}}
}

func country(index int, admin, iso string, g orb.Geometry) Feature {
	props := map[string]any{"ADMIN": admin}
	if iso != "" {
		props["ISO_A3"] = iso
	}
	return NewFeature(index, props, g)
}

func names(fs []Feature) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

func TestVertexKey(t *testing.T) {
	tests := []struct {
		name string
		p    orb.Point
		want string
	}{
		{"latitude first", orb.Point{-117.05, 32.52}, "32.520000,-117.050000"},
		{"rounds to six decimals", orb.Point{1.00000049, 2.0000004}, "2.000000,1.000000"},
		{"rounds up", orb.Point{0.0000006, 0}, "0.000000,0.000001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VertexKey(tt.p))
		})
	}
}

func TestNewFeature_Normalization(t *testing.T) {
	f := NewFeature(3, map[string]any{
		"NAME":       "France",
		"SOVEREIGNT": "French Republic",
		"ADM0_A3":    "FRA",
		"ADMIN_A3":   "FRA",
		"ISO_A3":     "-99",
	}, square(0, 0, 1))

	assert.Equal(t, 3, f.Index)
	assert.Equal(t, "FRA", f.Code, "placeholder ISO code must fall through to ADM0_A3")
	assert.Equal(t, "France", f.Name)
	assert.Equal(t, []string{"France", "French Republic", "FRA"}, f.SearchTerms)
	assert.Equal(t, "France", f.Label())
}

func TestFeature_LabelFallbacks(t *testing.T) {
	assert.Equal(t, "MEX", NewFeature(0, map[string]any{"ISO3": "MEX"}, nil).Label())
	assert.Equal(t, "feature #7", NewFeature(7, map[string]any{}, nil).Label())
}

func TestFeature_Bounds(t *testing.T) {
	b, ok := country(0, "A", "", square(2, 3, 1)).Bounds()
	require.True(t, ok)
	assert.Equal(t, orb.Bound{Min: orb.Point{2, 3}, Max: orb.Point{3, 4}}, b)

	_, ok = country(1, "B", "", nil).Bounds()
	assert.False(t, ok)

	_, ok = country(2, "C", "", orb.Polygon{}).Bounds()
	assert.False(t, ok)
}

func TestFindFeature(t *testing.T) {
	c := Collection{
		NewFeature(0, map[string]any{"ADMIN": "Brazil", "ADMIN_A3": "BRA"}, nil),
		NewFeature(1, map[string]any{"ADMIN": "Mexico", "NAME": "México"}, nil),
		NewFeature(2, map[string]any{"ADMIN": "New Mexico Territory"}, nil),
		NewFeature(3, map[string]any{"name": "Côte d'Ivoire"}, nil),
	}

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"exact", "Brazil", "Brazil"},
		{"case insensitive", "bRaZiL", "Brazil"},
		{"substring", "razi", "Brazil"},
		{"trimmed", "  mexico  ", "Mexico"},
		{"first match wins", "mexico", "Mexico"},
		{"alternate field", "MÉXICO", "Mexico"},
		{"admin code", "bra", "Brazil"},
		{"lowercase name property", "côte", "Côte d'Ivoire"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := FindFeature(c, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Name)
		})
	}
}

func TestFindFeature_NotFound(t *testing.T) {
	c := Collection{NewFeature(0, map[string]any{"ADMIN": "Brazil"}, nil)}

	for _, q := range []string{"", "   ", "\t\n", "Atlantis"} {
		_, err := FindFeature(c, q)
		assert.ErrorIs(t, err, ErrNotFound, "query %q", q)
	}

	_, err := FindFeature(nil, "Brazil")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveNeighbors_SharedEdge(t *testing.T) {
	c := Collection{
		country(0, "West", "WST", square(0, 0, 1)),
		country(1, "East", "EST", square(1, 0, 1)),
		country(2, "Far", "FAR", square(10, 10, 1)),
	}

	res, err := ResolveNeighbors(c, c[0])
	require.NoError(t, err)
	assert.Equal(t, "West", res.Target.Name)
	assert.Equal(t, []string{"East"}, names(res.Neighbors))
}

func TestResolveNeighbors_OverlappingBoxesWithoutSharedVertex(t *testing.T) {
	c := Collection{
		country(0, "A", "", square(0, 0, 1)),
		country(1, "B", "", square(0.5, 0.5, 1)),
	}

	res, err := ResolveNeighbors(c, c[0])
	require.NoError(t, err)
	assert.Empty(t, res.Neighbors)
}

func TestResolveNeighbors_SharedVertexAfterRounding(t *testing.T) {
	// Boxes touch at x=1; the only shared key comes from rounding
	// 1.0000004 to six decimals.
	c := Collection{
		country(0, "A", "", orb.Polygon{orb.Ring{
			{0, 0}, {1, 0.5}, {1, 1}, {0, 1}, {0, 0},
		}}),
		country(1, "B", "", orb.Polygon{orb.Ring{
			{1, 0}, {2, 0}, {2, 1}, {1.0000004, 1}, {1, 0},
		}}),
	}

	res, err := ResolveNeighbors(c, c[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, names(res.Neighbors))
}

func TestResolveNeighbors_RoundedKeyWithoutBoxIntersection(t *testing.T) {
	// Keys match after rounding but B starts past A's max x, so the bbox
	// filter rejects it first.
	c := Collection{
		country(0, "A", "", square(0, 0, 1)),
		country(1, "B", "", orb.Polygon{orb.Ring{
			{1.0000001, 0}, {2, 0}, {2, 1}, {1.0000004, 1}, {1.0000001, 0},
		}}),
	}
	require.Equal(t, VertexKey(orb.Point{1, 1}), VertexKey(orb.Point{1.0000004, 1}))

	res, err := ResolveNeighbors(c, c[0])
	require.NoError(t, err)
	assert.Empty(t, res.Neighbors)
}

func TestResolveNeighbors_PlaceholderCodeFallsThrough(t *testing.T) {
	c := Collection{
		NewFeature(0, map[string]any{"ADMIN": "France", "ISO_A3": "-99", "ADM0_A3": "FRA"}, square(0, 0, 1)),
		NewFeature(1, map[string]any{"ADMIN": "Spain", "ISO_A3": "ESP"}, square(0, -1, 1)),
	}

	res, err := ResolveNeighbors(c, Feature{Code: "FRA"})
	require.NoError(t, err)
	assert.Equal(t, "France", res.Target.Name)
	assert.Equal(t, []string{"Spain"}, names(res.Neighbors))
}

func TestResolveNeighbors_Symmetric(t *testing.T) {
	c := Collection{
		country(0, "A", "", square(0, 0, 1)),
		country(1, "B", "", square(1, 0, 1)),
		country(2, "C", "", square(0, 1, 1)),
		country(3, "D", "", square(1.5, 1.5, 1)),
		country(4, "E", "", orb.MultiPolygon{square(5, 5, 1), square(2, 0, 1)}),
	}

	adjacent := make(map[[2]int]bool)
	for i := range c {
		res, err := ResolveNeighbors(c, c[i])
		require.NoError(t, err)
		for _, n := range res.Neighbors {
			adjacent[[2]int{i, n.Index}] = true
		}
	}
	for pair := range adjacent {
		assert.True(t, adjacent[[2]int{pair[1], pair[0]}], "adjacency %v is not symmetric", pair)
	}
	assert.True(t, adjacent[[2]int{0, 1}])
	assert.True(t, adjacent[[2]int{0, 2}])
	assert.True(t, adjacent[[2]int{1, 4}], "multipolygon part must be considered")
	assert.False(t, adjacent[[2]int{0, 3}])
}

func TestResolveNeighbors_MultiPolygonTarget(t *testing.T) {
	c := Collection{
		country(0, "Islands", "", orb.MultiPolygon{square(0, 0, 1), square(20, 20, 1)}),
		country(1, "Mainland", "", square(21, 20, 1)),
		country(2, "Coast", "", square(-1, 0, 1)),
	}

	res, err := ResolveNeighbors(c, c[0])
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Mainland", "Coast"}, names(res.Neighbors))
}

func TestResolveNeighbors_MissingGeometry(t *testing.T) {
	c := Collection{
		country(0, "A", "", square(0, 0, 1)),
		country(1, "Ghost", "", nil),
		country(2, "Point", "", orb.Point{1, 1}),
	}

	res, err := ResolveNeighbors(c, c[0])
	require.NoError(t, err)
	assert.Empty(t, res.Neighbors, "features without polygon vertices are never neighbors")

	res, err = ResolveNeighbors(c, c[1])
	require.NoError(t, err)
	assert.Equal(t, "Ghost", res.Target.Name)
	assert.Empty(t, res.Neighbors)
}

func TestResolveNeighbors_IdentityResolution(t *testing.T) {
	c := Collection{
		country(0, "Alpha", "ALP", square(0, 0, 1)),
		country(1, "Beta", "BET", square(1, 0, 1)),
		NewFeature(2, map[string]any{}, square(3, 0, 1)),
	}

	t.Run("by code", func(t *testing.T) {
		res, err := ResolveNeighbors(c, Feature{Code: "BET", Name: "renamed"})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Target.Index)
	})

	t.Run("by name", func(t *testing.T) {
		res, err := ResolveNeighbors(c, Feature{Name: "Alpha"})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Target.Index)
	})

	t.Run("by geometry", func(t *testing.T) {
		res, err := ResolveNeighbors(c, Feature{Geometry: square(3, 0, 1)})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Target.Index)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := ResolveNeighbors(c, Feature{Name: "Nowhere", Geometry: square(50, 50, 1)})
		assert.ErrorIs(t, err, ErrAmbiguousOrMissing)
	})

	t.Run("nothing to match on", func(t *testing.T) {
		_, err := ResolveNeighbors(c, Feature{})
		assert.ErrorIs(t, err, ErrAmbiguousOrMissing)
	})
}

func TestNeighbors(t *testing.T) {
	c := Collection{
		country(0, "West", "WST", square(0, 0, 1)),
		country(1, "East", "EST", square(1, 0, 1)),
	}

	res, err := Neighbors(c, "east")
	require.NoError(t, err)
	assert.Equal(t, "East", res.Target.Name)
	assert.Equal(t, []string{"West"}, names(res.Neighbors))

	_, err = Neighbors(c, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollection_Names(t *testing.T) {
	c := Collection{country(0, "A", "", nil), NewFeature(1, map[string]any{"ISO3": "BBB"}, nil)}
	assert.Equal(t, []string{"A", "BBB"}, c.Names())
}
