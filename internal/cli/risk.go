package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRiskCommand(rt *runtime) *cobra.Command {
	var imageID string

	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Evaluate the safety risk of an image (newest by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.runRisk(cmd, imageID)
		},
	}
	cmd.Flags().StringVar(&imageID, "image", "", "Image id to evaluate")
	return cmd
}

func (rt *runtime) runRisk(cmd *cobra.Command, imageID string) error {
	advisor := rt.client.Advisor
	if err := advisor.Mount(cmd.Context()); err != nil {
		warn(cmd, "backend unreachable, using last known records: %v", err)
	}
	defer advisor.Unmount()

	if imageID != "" {
		if err := advisor.Select(imageID); err != nil {
			return fmt.Errorf("select %s: %w", imageID, err)
		}
	}

	result, err := advisor.Evaluate(cmd.Context())
	if err != nil {
		return err
	}
	selected, _ := advisor.Selected()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Image: %s (%s)\n", selected.DisplayName(), selected.ID)
	fmt.Fprintf(out, "Risk: %s (%g)\n", result.Category, result.Score)
	fmt.Fprintln(out, result.Explanation)
	if len(result.Actions) > 0 {
		fmt.Fprintln(out, "\nRecommended actions")
		for i, a := range result.Actions {
			fmt.Fprintf(out, "%d. %s\n   %s\n", i+1, a.Title, a.Description)
		}
	}
	return nil
}
