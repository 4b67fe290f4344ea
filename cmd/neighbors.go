package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/citypulse-labs/citypulse/internal/adjacency"
)

var neighborsCmd = &cobra.Command{
	Use:   "neighbors <country>",
	Short: "Find the countries that share a border vertex with a country",
	Long:  "Searches the boundary dataset for the first country matching the query (case-insensitive substring of its names) and lists every country sharing at least one boundary vertex with it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("boundaries")
		asJSON, _ := cmd.Flags().GetBool("json")

		c, err := loadBoundaries(cmd.Context(), source)
		if err != nil {
			return err
		}

		res, err := adjacency.Neighbors(c, args[0])
		if err != nil {
			return eris.Wrapf(err, "neighbors %q", args[0])
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		formatNeighbors(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	neighborsCmd.Flags().String("boundaries", "", "boundary source URL or path (default from config)")
	neighborsCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(neighborsCmd)
}

// formatNeighbors writes the target and its neighbors as a table.
func formatNeighbors(out io.Writer, res adjacency.Result) {
	_, _ = fmt.Fprintf(out, "%s (%d neighbors)\n", describeFeature(res.Target), len(res.Neighbors))
	if len(res.Neighbors) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CODE\tNAME")
	_, _ = fmt.Fprintln(w, "----\t----")
	for _, n := range res.Neighbors {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", n.Code, n.Label())
	}
	_ = w.Flush()
}

func describeFeature(f adjacency.Feature) string {
	if f.Code == "" {
		return f.Label()
	}
	return fmt.Sprintf("%s [%s]", f.Label(), f.Code)
}
