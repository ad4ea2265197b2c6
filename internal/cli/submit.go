package cli

import (
	"fmt"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/johnrirwin/orbitsafe/internal/media"
	"github.com/johnrirwin/orbitsafe/internal/submission"
)

type submitResult struct {
	path string
	sub  *submission.Submission
	err  error
}

func newSubmitCommand(rt *runtime) *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "submit FILE...",
		Short: "Upload images, run detection and persist the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.runSubmit(cmd, args, parallel)
		},
	}
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 2, "Number of submissions to run at once")
	return cmd
}

func (rt *runtime) runSubmit(cmd *cobra.Command, paths []string, parallel int) error {
	if parallel < 1 {
		parallel = 1
	}
	ctx := cmd.Context()

	// Mounted views follow the orchestrators' events, so the summary below
	// reflects this run without refetching.
	history := rt.client.History
	if err := history.Mount(ctx); err != nil {
		warn(cmd, "history not seeded from the backend: %v", err)
	}
	defer history.Unmount()
	view := rt.client.Analytics
	if err := view.Mount(ctx); err != nil {
		warn(cmd, "analytics not seeded from the backend: %v", err)
	}
	defer view.Unmount()
	before := history.Records().Len()

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Submitting"),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowCount(),
	)

	results := make([]submitResult, len(paths))
	tasks := make(chan int)
	var wg sync.WaitGroup
	var barMu sync.Mutex

	for w := 0; w < parallel; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			orch := rt.client.Orchestrator(nil)
			for i := range tasks {
				res := submitResult{path: paths[i]}
				upload, err := media.ReadFile(paths[i])
				if err != nil {
					res.err = err
				} else {
					res.sub, res.err = orch.Submit(ctx, upload)
				}
				results[i] = res

				barMu.Lock()
				bar.Add(1)
				barMu.Unlock()
			}
		}()
	}
	for i := range paths {
		tasks <- i
	}
	close(tasks)
	wg.Wait()
	bar.Finish()
	fmt.Fprintln(cmd.ErrOrStderr())

	failed := 0
	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "FILE\tSTATE\tID\tOBJECTS\tAVG\tERROR")
	for _, res := range results {
		state := "rejected"
		id, objects, avg := "-", "-", "-"
		if res.sub != nil {
			rec := res.sub.Record()
			state = string(res.sub.State())
			id = shortID(rec.ID)
			objects = fmt.Sprintf("%d", len(rec.Detections))
			avg = avgOf(rec)
			if rec.AvgConfidence == nil && len(res.sub.Estimate()) > 0 {
				avg = percent(res.sub.EstimateAvgConfidence()) + "*"
			}
		}
		errText := ""
		if res.err != nil {
			failed++
			errText = res.err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", res.path, state, id, objects, avg, errText)
	}
	tw.Flush()

	after := history.Records().Len()
	report := view.Report(rt.now(), 0)
	fmt.Fprintf(cmd.OutOrStdout(), "\nHistory: %d records (+%d)\n", after, after-before)
	fmt.Fprintf(cmd.OutOrStdout(), "Total detections: %d\n", report.TotalDetections)

	if failed > 0 {
		return fmt.Errorf("%d of %d submissions failed", failed, len(paths))
	}
	return nil
}
