package cli

import "github.com/spf13/cobra"

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect live sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "display",
		Short: "Show session counts by protocol and TCP state",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return displayTarget("session")
		},
	})
	return cmd
}
