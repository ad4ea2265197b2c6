package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/johnrirwin/orbitsafe/internal/models"
)

func newSettingsCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change detection settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rt.client.Settings.Load(cmd.Context())
			if err != nil {
				warn(cmd, "backend unreachable, showing local copy: %v", err)
			}
			printSettings(cmd, s)
			return nil
		},
	}

	var (
		threshold  float64
		maxObjects int
		email      string
		enable     []string
		disable    []string
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Change settings and save them to the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rt.client.Settings.Load(cmd.Context())
			if err != nil {
				warn(cmd, "backend unreachable, editing local copy: %v", err)
			}

			flags := cmd.Flags()
			if flags.Changed("threshold") {
				s.DetectionThreshold = threshold
			}
			if flags.Changed("max-objects") {
				s.MaxObjects = maxObjects
			}
			if flags.Changed("email") {
				s.NotifyEmail = email
			}
			if err := toggle(&s, enable, true); err != nil {
				return err
			}
			if err := toggle(&s, disable, false); err != nil {
				return err
			}

			saved, err := rt.client.Settings.Save(cmd.Context(), s)
			printSettings(cmd, saved)
			if err != nil {
				return fmt.Errorf("%w (local copy updated)", err)
			}
			return nil
		},
	}
	set.Flags().Float64Var(&threshold, "threshold", 0.5, "Detection threshold in [0,1]")
	set.Flags().IntVar(&maxObjects, "max-objects", 10, "Maximum detections kept per image (0 = unlimited)")
	set.Flags().StringVar(&email, "email", "", "Notification email address")
	set.Flags().StringSliceVar(&enable, "enable", nil, "Equipment labels or ids to enable")
	set.Flags().StringSliceVar(&disable, "disable", nil, "Equipment labels or ids to disable")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore default settings locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printSettings(cmd, rt.client.Settings.Reset(cmd.Context()))
			return nil
		},
	}

	cmd.AddCommand(show, set, reset)
	return cmd
}

func toggle(s *models.Settings, names []string, enabled bool) error {
	for _, name := range names {
		found := false
		for i := range s.Objects {
			if strings.EqualFold(s.Objects[i].Label, name) || strings.EqualFold(s.Objects[i].ID, name) {
				s.Objects[i].Enabled = enabled
				found = true
			}
		}
		if !found {
			return fmt.Errorf("unknown equipment %q", name)
		}
	}
	return nil
}

func printSettings(cmd *cobra.Command, s models.Settings) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Detection threshold: %g\n", s.DetectionThreshold)
	if s.MaxObjects == 0 {
		fmt.Fprintln(out, "Max objects:         unlimited")
	} else {
		fmt.Fprintf(out, "Max objects:         %d\n", s.MaxObjects)
	}
	if s.NotifyEmail != "" {
		fmt.Fprintf(out, "Notify email:        %s\n", s.NotifyEmail)
	}

	tw := newTable(out)
	fmt.Fprintln(tw, "\nEQUIPMENT\tID\tENABLED\tCOUNT")
	for _, o := range s.Objects {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\n", o.Label, o.ID, o.Enabled, o.Count)
	}
	tw.Flush()
}
