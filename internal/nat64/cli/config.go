package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pierky/nat64d/internal/nat64/ctlplane"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or update the running configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "display",
		Short: "Show the running configuration",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return displayTarget("config")
		},
	})
	cmd.AddCommand(configUpdateCmd())
	return cmd
}

func configUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <field> <value>",
		Short: "Set one configuration field on the running daemon",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			client, err := ctlplane.Dial("unix", socketPath)
			if err != nil {
				return err
			}
			defer client.Close()

			out, err := client.Set(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}
