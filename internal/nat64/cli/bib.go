package cli

import "github.com/spf13/cobra"

func bibCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bib",
		Short: "Inspect the Binding Information Base",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "display",
		Short: "Show BIB entry counts by protocol",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return displayTarget("bib")
		},
	})
	return cmd
}
