package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/media"
	"github.com/johnrirwin/orbitsafe/internal/models"
)

func newCaptureCommand(rt *runtime) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "capture FRAME",
		Short: "Run live detection on a single frame and optionally save it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.runCapture(cmd, args[0], save)
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Upload the frame with its detections")
	return cmd
}

func (rt *runtime) runCapture(cmd *cobra.Command, path string, save bool) error {
	ctx := cmd.Context()

	upload, err := media.ReadFile(path)
	if err != nil {
		return err
	}
	frame, err := media.DecodeFrame(upload.Data)
	if err != nil {
		return err
	}

	raw, err := rt.client.Detector.Detect(ctx, upload)
	if err != nil {
		return fmt.Errorf("detect frame: %w", err)
	}

	preview, problems := models.NormalizeRelative(raw, frame.Width, frame.Height)
	for _, p := range problems {
		rt.client.Logger.Debug("Dropped preview detection", logging.WithField("error", p.Error()))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Frame %dx%d, %d detections\n", frame.Width, frame.Height, len(preview))
	tw := newTable(out)
	fmt.Fprintln(tw, "OBJECT\tCONFIDENCE\tX\tY\tW\tH")
	for _, d := range preview {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.3f\t%.3f\t%.3f\n", d.Label, percent(d.Confidence), d.Box.X, d.Box.Y, d.Box.Width, d.Box.Height)
	}
	tw.Flush()

	if !save {
		return nil
	}

	history := rt.client.History
	if err := history.Mount(ctx); err != nil {
		warn(cmd, "history not seeded from the backend: %v", err)
	}
	defer history.Unmount()

	dets, _ := models.NormalizeDetections(raw)
	dets = rt.client.Settings.Policy(ctx).Apply(dets)

	capture, err := media.EncodeCapture(frame.Image, rt.now())
	if err != nil {
		return err
	}
	sub, err := rt.client.Orchestrator(nil).SubmitWithDetections(ctx, capture, dets)
	if err != nil {
		return fmt.Errorf("save capture: %w", err)
	}
	rec := sub.Record()
	fmt.Fprintf(out, "Saved %s as %s with %d detections\n", capture.Name, rec.ID, len(rec.Detections))
	fmt.Fprintf(out, "History: %d records\n", history.Records().Len())
	return nil
}
