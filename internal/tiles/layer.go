// Package tiles describes the NASA GIBS overlay layers and the OSM basemap,
// and proxies their raster tiles through an in-process cache.
package tiles

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Default upstream endpoints.
const (
	DefaultGIBSBaseURL = "https://gibs.earthdata.nasa.gov/wmts/epsg3857/best"
	DefaultOSMBaseURL  = "https://tile.openstreetmap.org"
)

// BasemapID is the catalog ID of the OSM basemap.
const BasemapID = "osm"

// NDVI year range available for the vegetation time slider.
const (
	MinNDVIYear = 2015
	MaxNDVIYear = 2024
)

const dateLayout = "2006-01-02"

// Source tells how a layer's tile URLs are built.
type Source string

// Layer sources.
const (
	SourceGIBS Source = "gibs"
	SourceXYZ  Source = "xyz"
)

// Layer is one raster tile layer.
type Layer struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Source      Source `json:"source"`
	MaxZoom     int    `json:"maxZoom"`
	Format      string `json:"format"`
	DefaultDate string `json:"defaultDate,omitempty"`
	// FixedDate layers ignore any requested date.
	FixedDate   bool   `json:"fixedDate,omitempty"`
	Attribution string `json:"attribution"`

	baseURL string
}

// TileURL builds the upstream URL of a tile. An empty date uses the layer
// default. GIBS addresses tiles as {z}/{y}/{x}; XYZ sources as {z}/{x}/{y}.
func (l Layer) TileURL(date string, z, x, y int) string {
	if l.Source == SourceXYZ {
		return fmt.Sprintf("%s/%d/%d/%d.%s", l.baseURL, z, x, y, l.Format)
	}
	return fmt.Sprintf("%s/%s/default/%s/GoogleMapsCompatible_Level%d/%d/%d/%d.%s",
		l.baseURL, l.ID, l.ResolveDate(date), l.MaxZoom, z, y, x, l.Format)
}

// ResolveDate returns the date actually used for a request.
func (l Layer) ResolveDate(date string) string {
	if l.Source == SourceXYZ {
		return ""
	}
	if date == "" || l.FixedDate {
		return l.DefaultDate
	}
	return date
}

// ContentType returns the MIME type of the layer's tiles.
func (l Layer) ContentType() string {
	switch l.Format {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Catalog is an ordered set of layers.
type Catalog struct {
	layers []Layer
	byID   map[string]int
}

// NewCatalog builds a catalog. Later duplicates of an ID are ignored.
func NewCatalog(layers ...Layer) *Catalog {
	c := &Catalog{byID: make(map[string]int, len(layers))}
	for _, l := range layers {
		if _, dup := c.byID[l.ID]; dup {
			continue
		}
		c.byID[l.ID] = len(c.layers)
		c.layers = append(c.layers, l)
	}
	return c
}

// DefaultCatalog returns the overlay layers used by the dashboards plus the
// OSM basemap. Empty base URLs fall back to the public endpoints.
func DefaultCatalog(gibsBaseURL, osmBaseURL string) *Catalog {
	if gibsBaseURL == "" {
		gibsBaseURL = DefaultGIBSBaseURL
	}
	if osmBaseURL == "" {
		osmBaseURL = DefaultOSMBaseURL
	}
	gibsBaseURL = strings.TrimRight(gibsBaseURL, "/")
	osmBaseURL = strings.TrimRight(osmBaseURL, "/")

	gibs := func(id, title string, level int, format, date string, fixed bool, attribution string) Layer {
		return Layer{
			ID: id, Title: title, Source: SourceGIBS, MaxZoom: level, Format: format,
			DefaultDate: date, FixedDate: fixed, Attribution: attribution, baseURL: gibsBaseURL,
		}
	}

	return NewCatalog(
		gibs("MODIS_Terra_NDVI_16Day", "Vegetation index (NDVI, MODIS Terra)", 9, "png", NDVIDateForYear(MaxNDVIYear), false, "NASA GIBS (MODIS Terra)"),
		gibs("OMI_Aerosol_Index", "Aerosol index (OMI)", 6, "png", "2025-09-15", false, "NASA GIBS (Aura OMI)"),
		gibs("GPW_Population_Density_2020", "Population density 2020 (GPW)", 7, "png", "2020-01-01", true, "NASA GIBS (SEDAC GPW)"),
		gibs("Probabilities_of_Urban_Expansion_2000_2030", "Urban expansion probability 2000-2030", 7, "png", "2020-10-01", false, "NASA GIBS"),
		gibs("MODIS_Terra_CorrectedReflectance_TrueColor", "True color (MODIS Terra)", 9, "jpg", "2025-10-01", false, "NASA GIBS (MODIS Terra)"),
		gibs("S5P_NO2_TROPOSPHERIC_COLUMN", "NO2 tropospheric column (Sentinel-5P)", 6, "png", "2025-10-01", false, "NASA GIBS (Sentinel-5P)"),
		gibs("MODIS_Aqua_Chlorophyll_A", "Chlorophyll-a (MODIS Aqua)", 7, "png", "2025-10-01", false, "NASA GIBS (MODIS Aqua)"),
		gibs("VIIRS_NOAA20_Aerosol_Type_Day", "Aerosol type (VIIRS NOAA-20)", 6, "jpg", "2017-07-09", false, "NASA GIBS (VIIRS NOAA-20)"),
		Layer{
			ID: BasemapID, Title: "OpenStreetMap", Source: SourceXYZ, MaxZoom: 19, Format: "png",
			Attribution: "© OpenStreetMap contributors", baseURL: osmBaseURL,
		},
	)
}

// Layers returns the layers in catalog order.
func (c *Catalog) Layers() []Layer {
	out := make([]Layer, len(c.layers))
	copy(out, c.layers)
	return out
}

// Layer looks up a layer by ID.
func (c *Catalog) Layer(id string) (Layer, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Layer{}, false
	}
	return c.layers[i], true
}

// NDVIDateForYear returns the composite date used for a vegetation year,
// clamping the year to the published range.
func NDVIDateForYear(year int) string {
	year = max(MinNDVIYear, min(MaxNDVIYear, year))
	return strconv.Itoa(year) + "-09-01"
}

// ErrInvalidDate is returned for dates that are not YYYY-MM-DD.
var ErrInvalidDate = eris.New("tiles: invalid date, want YYYY-MM-DD")

// ValidateDate checks that date is a YYYY-MM-DD calendar date.
func ValidateDate(date string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return eris.Wrapf(ErrInvalidDate, "date %q", date)
	}
	return nil
}
