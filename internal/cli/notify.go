package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/johnrirwin/orbitsafe/internal/media"
	"github.com/johnrirwin/orbitsafe/internal/notify"
)

func newNotifyCommand(rt *runtime) *cobra.Command {
	var name, email, text, attach string

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a detection alert email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				email = rt.client.Settings.Current(cmd.Context()).NotifyEmail
			}
			msg := notify.Message{Name: name, Email: email, Text: text}
			if attach != "" {
				upload, err := media.ReadFile(attach)
				if err != nil {
					return err
				}
				msg.Attachment = &upload
			}

			if err := rt.client.Notifier.Send(cmd.Context(), msg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Notification sent to %s\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Recipient name")
	cmd.Flags().StringVar(&email, "email", "", "Recipient email (defaults to the settings address)")
	cmd.Flags().StringVar(&text, "message", "", "Message text (a default alert text is used when empty)")
	cmd.Flags().StringVar(&attach, "attach", "", "Image to attach")
	return cmd
}
