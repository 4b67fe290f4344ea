package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/citypulse-labs/citypulse/internal/priority"
)

var usd = message.NewPrinter(language.English)

var prioritiesCmd = &cobra.Command{
	Use:   "priorities",
	Short: "Rank the areas that qualify for green-space intervention",
	Long:  "Keeps the areas whose vegetation percentile and park access both fall below the thresholds, ranks them by deficit score, and prints the top ten with their combined impact.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		records, th, err := rankingInputs(cmd)
		if err != nil {
			return err
		}
		filtered := priority.FilterPriorities(records, th)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSONOut(cmd.OutOrStdout(), map[string]any{
				"thresholds": th,
				"priorities": nonNil(filtered),
				"impact":     priority.TotalImpact(filtered),
			})
		}
		formatPriorities(cmd.OutOrStdout(), th, filtered)
		return nil
	},
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project park-access coverage and cost for the ranked areas",
	RunE: func(cmd *cobra.Command, _ []string) error {
		records, th, err := rankingInputs(cmd)
		if err != nil {
			return err
		}
		points := priority.ProjectImpact(priority.FilterPriorities(records, th))

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSONOut(cmd.OutOrStdout(), points)
		}
		formatProjection(cmd.OutOrStdout(), points)
		return nil
	},
}

var impactCmd = &cobra.Command{
	Use:   "impact <area-id>",
	Short: "Show the intervention impact of one area's recommended action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataset, _ := cmd.Flags().GetString("dataset")
		records, err := loadRecords(dataset)
		if err != nil {
			return err
		}
		rec, ok := priority.FindRecord(records, args[0])
		if !ok {
			return eris.Errorf("impact: unknown area %q", args[0])
		}
		imp := priority.SimulateIntervention(rec)

		out := cmd.OutOrStdout()
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "Area:\t%s (%s)\n", rec.Name, rec.ID)
		_, _ = fmt.Fprintf(w, "Action:\t%s\n", rec.RecommendedAction)
		if !rec.RecommendedAction.Known() {
			_, _ = fmt.Fprintf(w, "Note:\tunknown action, no impact estimate\n")
		}
		_, _ = fmt.Fprintf(w, "Access boost:\t+%.0f pts\n", imp.AccessBoostPoints)
		_, _ = fmt.Fprintf(w, "Cost:\t%s\n", formatUSD(imp.CostUSD))
		_, _ = fmt.Fprintf(w, "ROI per resident:\t%s\n", formatUSD(imp.ROIPerResident))
		return w.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{prioritiesCmd, projectCmd} {
		addThresholdFlags(c)
		c.Flags().Bool("json", false, "print JSON instead of a table")
		rootCmd.AddCommand(c)
	}
	impactCmd.Flags().String("dataset", "", "area dataset YAML (default from config, else built-in sample)")
	rootCmd.AddCommand(impactCmd)
}

func addThresholdFlags(c *cobra.Command) {
	c.Flags().Float64("vegetation", 30, "vegetation percentile cutoff, 0-100 (default from config)")
	c.Flags().Float64("access", 60, "park access percent cutoff, 0-100 (default from config)")
	c.Flags().String("dataset", "", "area dataset YAML (default from config, else built-in sample)")
}

// thresholdsFromFlags starts from the configured thresholds and applies any
// flags the user set explicitly.
func thresholdsFromFlags(c *cobra.Command) (priority.Thresholds, error) {
	th := defaultThresholds()
	if c.Flags().Changed("vegetation") {
		th.VegetationPercentileCutoff, _ = c.Flags().GetFloat64("vegetation")
	}
	if c.Flags().Changed("access") {
		th.ParkAccessPercentCutoff, _ = c.Flags().GetFloat64("access")
	}
	if err := th.Validate(); err != nil {
		return th, err
	}
	return th, nil
}

func rankingInputs(c *cobra.Command) ([]priority.AreaRecord, priority.Thresholds, error) {
	th, err := thresholdsFromFlags(c)
	if err != nil {
		return nil, th, err
	}
	dataset, _ := c.Flags().GetString("dataset")
	records, err := loadRecords(dataset)
	if err != nil {
		return nil, th, err
	}
	return records, th, nil
}

// formatPriorities writes the ranked areas and their combined impact to out.
func formatPriorities(out io.Writer, th priority.Thresholds, filtered []priority.AreaRecord) {
	_, _ = fmt.Fprintf(out, "Thresholds: vegetation < %g, park access < %g%%\n",
		th.VegetationPercentileCutoff, th.ParkAccessPercentCutoff)
	if len(filtered) == 0 {
		_, _ = fmt.Fprintln(out, "No areas meet the thresholds.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tID\tNAME\tDEFICIT\tSEVERITY\tACCESS\tACTION\tBOOST\tCOST")
	_, _ = fmt.Fprintln(w, "----\t--\t----\t-------\t--------\t------\t------\t-----\t----")
	for i, r := range filtered {
		imp := priority.SimulateIntervention(r)
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%.0f\t%s\t%.0f%%\t%s\t+%.0f\t%s\n",
			i+1, r.ID, r.Name, r.DeficitScore, priority.Severity(r.DeficitScore),
			r.ParkAccessPercent, r.RecommendedAction, imp.AccessBoostPoints, formatUSD(imp.CostUSD))
	}
	_ = w.Flush()

	total := priority.TotalImpact(filtered)
	_, _ = fmt.Fprintf(out, "\nTotal: +%.0f access pts, %s, avg ROI %s per resident\n",
		total.AccessBoostPoints, formatUSD(total.CostUSD), formatUSD(total.ROIPerResident))
}

// formatProjection writes the year-by-year projection to out.
func formatProjection(out io.Writer, points []priority.ProjectionPoint) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "YEAR\tCOVERAGE\tCUMULATIVE COST")
	_, _ = fmt.Fprintln(w, "----\t--------\t---------------")
	for _, p := range points {
		_, _ = fmt.Fprintf(w, "%d\t%.1f%%\t%s\n", p.Year, p.Coverage, formatUSD(p.Cost))
	}
	_ = w.Flush()
}

func formatUSD(v float64) string {
	return usd.Sprintf("$%.0f", v)
}

func writeJSONOut(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNil(records []priority.AreaRecord) []priority.AreaRecord {
	if records == nil {
		return []priority.AreaRecord{}
	}
	return records
}
