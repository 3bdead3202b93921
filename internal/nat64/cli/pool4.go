package cli

import (
	"fmt"
	"net/netip"

	"github.com/spf13/cobra"

	"github.com/pierky/nat64d/internal/nat64/ctlplane"
	"github.com/pierky/nat64d/internal/nat64/tuple"
)

func pool4Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool4",
		Short: "Manage the IPv4 transport-address pool",
	}
	cmd.AddCommand(pool4AddCmd())
	cmd.AddCommand(pool4RmCmd())
	cmd.AddCommand(pool4DisplayCmd())
	return cmd
}

func pool4MutateCmd(use, short string, op func(*ctlplane.Client, ctlplane.Pool4Request) (string, error)) *cobra.Command {
	var (
		mark      uint32
		proto     string
		prefix    string
		prefixLen uint8
		portMin   uint16
		portMax   uint16
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			p, err := parseProto(proto)
			if err != nil {
				return err
			}
			addr, err := netip.ParseAddr(prefix)
			if err != nil {
				return fmt.Errorf("parsing --prefix: %w", err)
			}

			client, err := ctlplane.Dial("unix", socketPath)
			if err != nil {
				return err
			}
			defer client.Close()

			out, err := op(client, ctlplane.Pool4Request{
				Mark: mark, Proto: p, Prefix: addr, PrefixLen: prefixLen,
				PortMin: portMin, PortMax: portMax,
			})
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Uint32Var(&mark, "mark", 0, "fwmark the pool entry applies to")
	flags.StringVar(&proto, "proto", "tcp", "protocol: tcp, udp, or icmp")
	flags.StringVar(&prefix, "prefix", "", "IPv4 prefix address (required)")
	flags.Uint8Var(&prefixLen, "prefix-len", 32, "IPv4 prefix length")
	flags.Uint16Var(&portMin, "port-min", 1024, "minimum port")
	flags.Uint16Var(&portMax, "port-max", 65535, "maximum port")
	_ = cmd.MarkFlagRequired("prefix")

	return cmd
}

func pool4AddCmd() *cobra.Command {
	return pool4MutateCmd("add", "Add a pool4 entry", (*ctlplane.Client).Pool4Add)
}

func pool4RmCmd() *cobra.Command {
	return pool4MutateCmd("rm", "Remove a pool4 entry", (*ctlplane.Client).Pool4Rm)
}

func pool4DisplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "display",
		Short: "Show the pool4 table",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return displayTarget("pool4")
		},
	}
}

func parseProto(s string) (tuple.L4Proto, error) {
	switch s {
	case "udp":
		return tuple.UDP, nil
	case "tcp":
		return tuple.TCP, nil
	case "icmp":
		return tuple.ICMP, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q, expected tcp, udp, or icmp", s)
	}
}

func displayTarget(target string) error {
	client, err := ctlplane.Dial("unix", socketPath)
	if err != nil {
		return err
	}
	defer client.Close()

	out, err := client.Display(target)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
