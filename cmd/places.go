package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/citypulse-labs/citypulse/internal/tiles"
	"github.com/citypulse-labs/citypulse/pkg/amenity"
	"github.com/citypulse-labs/citypulse/pkg/geocode"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode <query>",
	Short: "Look up a place with Nominatim",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeFn, err := newGeocoder()
		if err != nil {
			return err
		}
		defer closeFn()

		place, err := client.Search(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		formatPlace(cmd.OutOrStdout(), place)
		return nil
	},
}

var hospitalsCmd = &cobra.Command{
	Use:   "hospitals",
	Short: "List OpenStreetMap hospitals inside a bounding box",
	RunE: func(cmd *cobra.Command, _ []string) error {
		bbox, err := bboxFromFlags(cmd)
		if err != nil {
			return err
		}
		found, err := newAmenityClient().Hospitals(cmd.Context(), bbox)
		if err != nil {
			return err
		}
		formatHospitals(cmd.OutOrStdout(), found)
		return nil
	},
}

var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "Find probe points with no hospital within a radius",
	Long:  "Checks the center and four corners of a bounding box for hospitals within the radius (clamped to 10-300 km) and reports the points without one.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		bbox, err := bboxFromFlags(cmd)
		if err != nil {
			return err
		}
		radius, _ := cmd.Flags().GetFloat64("radius-km")
		radius = amenity.ClampRadiusKm(radius)

		gaps, err := newAmenityClient().CoverageGaps(cmd.Context(), bbox, radius)
		if err != nil {
			return err
		}
		formatGaps(cmd.OutOrStdout(), radius, gaps)
		return nil
	},
}

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "List the map layers served by the tile proxy",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if year, _ := cmd.Flags().GetInt("ndvi-year"); year != 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tiles.NDVIDateForYear(year))
			return nil
		}
		catalog := tiles.DefaultCatalog(cfg.Tiles.GIBSBaseURL, cfg.Tiles.OSMBaseURL)
		formatLayers(cmd.OutOrStdout(), catalog.Layers())
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{hospitalsCmd, gapsCmd} {
		c.Flags().Float64("south", 0, "southern latitude of the bounding box")
		c.Flags().Float64("west", 0, "western longitude of the bounding box")
		c.Flags().Float64("north", 0, "northern latitude of the bounding box")
		c.Flags().Float64("east", 0, "eastern longitude of the bounding box")
		c.Flags().String("place", "", "geocode a place and use its bounding box instead")
	}
	gapsCmd.Flags().Float64("radius-km", amenity.DefaultRadiusKm, "search radius in kilometers")
	layersCmd.Flags().Int("ndvi-year", 0, "print the NDVI imagery date used for a year and exit")

	rootCmd.AddCommand(geocodeCmd)
	rootCmd.AddCommand(hospitalsCmd)
	rootCmd.AddCommand(gapsCmd)
	rootCmd.AddCommand(layersCmd)
}

// bboxFromFlags reads the bounding box flags, or geocodes --place.
func bboxFromFlags(c *cobra.Command) (amenity.BBox, error) {
	if place, _ := c.Flags().GetString("place"); place != "" {
		client, closeFn, err := newGeocoder()
		if err != nil {
			return amenity.BBox{}, err
		}
		defer closeFn()

		p, err := client.Search(c.Context(), place)
		if err != nil {
			return amenity.BBox{}, err
		}
		if p.BoundingBox == nil {
			return amenity.BBox{}, eris.Errorf("place %q has no bounding box", place)
		}
		return amenity.BBox{
			South: p.BoundingBox.South, West: p.BoundingBox.West,
			North: p.BoundingBox.North, East: p.BoundingBox.East,
		}, nil
	}

	var b amenity.BBox
	b.South, _ = c.Flags().GetFloat64("south")
	b.West, _ = c.Flags().GetFloat64("west")
	b.North, _ = c.Flags().GetFloat64("north")
	b.East, _ = c.Flags().GetFloat64("east")
	if err := b.Validate(); err != nil {
		return b, err
	}
	return b, nil
}

func formatPlace(out io.Writer, p *geocode.Place) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Name:\t%s\n", p.DisplayName)
	_, _ = fmt.Fprintf(w, "Location:\t%.6f, %.6f\n", p.Lat, p.Lon)
	if bb := p.BoundingBox; bb != nil {
		_, _ = fmt.Fprintf(w, "Bounds:\tS %.6f  W %.6f  N %.6f  E %.6f\n", bb.South, bb.West, bb.North, bb.East)
	}
	_ = w.Flush()
}

func formatHospitals(out io.Writer, hs []amenity.Hospital) {
	if len(hs) == 0 {
		_, _ = fmt.Fprintln(out, "No hospitals found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tLAT\tLON")
	_, _ = fmt.Fprintln(w, "--\t----\t---\t---")
	for _, h := range hs {
		name := h.Name
		if name == "" {
			name = "(unnamed)"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%.5f\t%.5f\n", h.ID, name, h.Lat, h.Lon)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "%d hospitals\n", len(hs))
}

func formatGaps(out io.Writer, radiusKm float64, gaps []amenity.Gap) {
	if len(gaps) == 0 {
		_, _ = fmt.Fprintf(out, "Every probe point has a hospital within %g km.\n", radiusKm)
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROBE\tLAT\tLON\tRADIUS")
	_, _ = fmt.Fprintln(w, "-----\t---\t---\t------")
	for _, g := range gaps {
		_, _ = fmt.Fprintf(w, "%s\t%.5f\t%.5f\t%g km\n", g.Label, g.Lat, g.Lon, g.RadiusMeters/1000)
	}
	_ = w.Flush()
}

func formatLayers(out io.Writer, layers []tiles.Layer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTITLE\tSOURCE\tMAX ZOOM\tDATE")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t--------\t----")
	for _, l := range layers {
		date := l.DefaultDate
		if l.FixedDate {
			date += " (fixed)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", l.ID, l.Title, l.Source, l.MaxZoom, date)
	}
	_ = w.Flush()
}
