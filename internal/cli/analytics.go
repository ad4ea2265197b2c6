package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/johnrirwin/orbitsafe/internal/analytics"
)

func newAnalyticsCommand(rt *runtime) *cobra.Command {
	var months int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show detection volume, accuracy, equipment and activity statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.runAnalytics(cmd, months, asJSON)
		},
	}
	cmd.Flags().IntVar(&months, "months", analytics.DefaultMonths, "Number of months in the volume chart")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func (rt *runtime) runAnalytics(cmd *cobra.Command, months int, asJSON bool) error {
	view := rt.client.Analytics
	if err := view.Mount(cmd.Context()); err != nil {
		warn(cmd, "some data is stale: %v", err)
	}
	defer view.Unmount()

	report := view.Report(rt.now(), months)
	out := cmd.OutOrStdout()

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	f := analytics.NewFormatter(language.English)
	fmt.Fprintf(out, "Total detections:  %s\n", f.Count(report.TotalDetections))
	fmt.Fprintf(out, "Average accuracy:  %s\n", f.Percent(report.AvgAccuracy))
	fmt.Fprintf(out, "Safety score:      %s\n", f.Percent(report.SafetyScore))
	fmt.Fprintf(out, "Response time:     %s\n", report.ResponseTime)

	fmt.Fprintln(out, "\nMonthly volume")
	tw := newTable(out)
	for _, b := range report.Monthly {
		fmt.Fprintf(tw, "  %s\t%s\t%s detections\t%s avg\n", b.Label, b.Key, f.Count(b.Detections), f.Percent(b.Accuracy*100))
	}
	tw.Flush()

	fmt.Fprintln(out, "\nEquipment")
	if len(report.Equipment) == 0 {
		fmt.Fprintln(out, "  none detected")
	}
	tw = newTable(out)
	for _, e := range report.Equipment {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", e.Name, f.Count(e.Value), e.Color)
	}
	tw.Flush()

	fmt.Fprintln(out, "\nHourly activity")
	tw = newTable(out)
	for _, h := range report.Hourly {
		if h.Detections == 0 {
			continue
		}
		fmt.Fprintf(tw, "  %s\t%s\n", h.Time, f.Count(h.Detections))
	}
	return tw.Flush()
}
