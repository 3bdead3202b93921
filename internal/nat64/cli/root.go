// Package cli implements the nat64d command tree: `run` starts
// the daemon in-process, every other subcommand talks to a running daemon
// over the control-plane socket (internal/nat64/ctlplane).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var socketPath string

// Root builds the top-level nat64d command tree.
func Root() *cobra.Command {
	root := &cobra.Command{
		Use:           "nat64d",
		Short:         "Stateful NAT64/SIIT translator daemon and control CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&socketPath, "socket", "/run/nat64d.sock", "nat64d control-plane socket path")

	root.AddCommand(runCmd())
	root.AddCommand(pool4Cmd())
	root.AddCommand(bibCmd())
	root.AddCommand(sessionCmd())
	root.AddCommand(configCmd())

	return root
}

// Execute runs the command tree and exits with status 1 on error.
func Execute() {
	if err := Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
