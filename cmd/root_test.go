package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs the root command with args from an empty temp dir so
// only config defaults apply. Flags are reset between runs.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })

	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"serve", "neighbors", "priorities", "project", "impact", "export", "geocode", "hospitals", "gaps", "layers"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "citypulse", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)

	require.NotNil(t, serveCmd.Flags().Lookup("boundaries"))
}

func TestThresholdFlags(t *testing.T) {
	for _, c := range []*cobra.Command{prioritiesCmd, projectCmd, exportCmd} {
		for _, name := range []string{"vegetation", "access", "dataset"} {
			assert.NotNil(t, c.Flags().Lookup(name), "%s should have --%s", c.Name(), name)
		}
	}
	assert.Equal(t, "geojson", exportCmd.Flags().Lookup("format").DefValue)
	assert.Equal(t, "100", gapsCmd.Flags().Lookup("radius-km").DefValue)
}

func TestPrioritiesCommand_JSON(t *testing.T) {
	out, err := executeCommand(t, "priorities", "--json")
	require.NoError(t, err)

	var got struct {
		Priorities []struct {
			ID string `json:"id"`
		} `json:"priorities"`
		Impact struct {
			AccessBoostPoints float64 `json:"accessBoostPoints"`
			CostUSD           float64 `json:"costUSD"`
		} `json:"impact"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	require.Len(t, got.Priorities, 6)
	assert.Equal(t, "bg_203", got.Priorities[0].ID)
	assert.InDelta(t, 67, got.Impact.AccessBoostPoints, 1e-9)
	assert.InDelta(t, 3_245_000, got.Impact.CostUSD, 1e-6)
}

func TestPrioritiesCommand_Table(t *testing.T) {
	out, err := executeCommand(t, "priorities")
	require.NoError(t, err)
	assert.Contains(t, out, "RANK")
	assert.Contains(t, out, "bg_203")
	assert.Contains(t, out, "$3,245,000")
}

func TestPrioritiesCommand_NothingQualifies(t *testing.T) {
	out, err := executeCommand(t, "priorities", "--vegetation", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "No areas meet the thresholds.")
}

func TestPrioritiesCommand_InvalidThreshold(t *testing.T) {
	_, err := executeCommand(t, "priorities", "--access", "150")
	assert.Error(t, err)
}

func TestProjectCommand(t *testing.T) {
	out, err := executeCommand(t, "project")
	require.NoError(t, err)
	assert.Contains(t, out, "2025")
	assert.Contains(t, out, "58.0%")
	assert.Contains(t, out, "78.1%")
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, "$1,298,000")
}

func TestImpactCommand(t *testing.T) {
	out, err := executeCommand(t, "impact", "bg_101")
	require.NoError(t, err)
	assert.Contains(t, out, "2 pocket parks")
	assert.Contains(t, out, "+14 pts")
	assert.Contains(t, out, "$850,000")

	_, err = executeCommand(t, "impact", "bg_404")
	assert.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.geojson")
	out, err := executeCommand(t, "export", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 6 areas")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"FeatureCollection"`)

	xlsxPath := filepath.Join(t.TempDir(), "out.xlsx")
	_, err = executeCommand(t, "export", "--format", "xlsx", "-o", xlsxPath)
	require.NoError(t, err)
	data, err = os.ReadFile(xlsxPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))

	_, err = executeCommand(t, "export", "--format", "csv")
	assert.Error(t, err)
}

func TestLayersCommand(t *testing.T) {
	out, err := executeCommand(t, "layers")
	require.NoError(t, err)
	assert.Contains(t, out, "MODIS_Terra_NDVI_16Day")
	assert.Contains(t, out, "2020-01-01 (fixed)")

	out, err = executeCommand(t, "layers", "--ndvi-year", "2030")
	require.NoError(t, err)
	assert.Equal(t, "2024-09-01\n", out)
}

func TestNeighborsCommand_LocalGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "countries.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"ADMIN": "West", "ISO_A3": "WST"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
    {"type": "Feature", "properties": {"ADMIN": "East", "ISO_A3": "EST"},
     "geometry": {"type": "Polygon", "coordinates": [[[1,0],[2,0],[2,1],[1,1],[1,0]]]}}
  ]
}`), 0o644))

	out, err := executeCommand(t, "neighbors", "west", "--boundaries", path)
	require.NoError(t, err)
	assert.Contains(t, out, "West [WST] (1 neighbors)")
	assert.Contains(t, out, "EST")

	_, err = executeCommand(t, "neighbors", "atlantis", "--boundaries", path)
	assert.Error(t, err)
}

func TestHospitalsCommand_InvalidBBox(t *testing.T) {
	_, err := executeCommand(t, "hospitals", "--south", "33", "--north", "32", "--west", "-117", "--east", "-116")
	assert.Error(t, err)
}
