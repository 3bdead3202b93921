// Command nat64d runs the stateful NAT64/SIIT translator daemon and its
// control CLI.
package main

import "github.com/pierky/nat64d/internal/nat64/cli"

func main() {
	cli.Execute()
}
