package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/johnrirwin/orbitsafe/internal/views"
)

func newHistoryCommand(rt *runtime) *cobra.Command {
	var csvPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past submissions or export them as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.runHistory(cmd, csvPath)
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "Write a CSV export to this file or directory (- for stdout)")
	return cmd
}

func (rt *runtime) runHistory(cmd *cobra.Command, csvPath string) error {
	history := rt.client.History
	if err := history.Mount(cmd.Context()); err != nil {
		warn(cmd, "backend unreachable, showing last known records: %v", err)
	}
	defer history.Unmount()

	if csvPath != "" {
		return rt.exportHistory(cmd, history, csvPath)
	}

	records := history.Records().Snapshot()
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No detections yet.")
		return nil
	}

	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "CREATED\tNAME\tOBJECTS\tAVG\tID")
	for _, r := range records {
		created := "-"
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", created, r.DisplayName(), len(r.Detections), avgOf(r), r.ID)
	}
	return tw.Flush()
}

func (rt *runtime) exportHistory(cmd *cobra.Command, history *views.History, target string) error {
	if target == "-" {
		return history.ExportCSV(cmd.OutOrStdout())
	}

	if info, err := os.Stat(target); (err == nil && info.IsDir()) || strings.HasSuffix(target, string(os.PathSeparator)) {
		target = filepath.Join(target, views.ExportFilename(rt.now()))
	}

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	if err := history.ExportCSV(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s\n", history.Records().Len(), target)
	return nil
}
