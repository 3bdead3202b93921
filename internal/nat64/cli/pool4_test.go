package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pierky/nat64d/internal/nat64/tuple"
)

func TestParseProto(t *testing.T) {
	cases := map[string]tuple.L4Proto{"tcp": tuple.TCP, "udp": tuple.UDP, "icmp": tuple.ICMP}
	for in, want := range cases {
		got, err := parseProto(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParseProtoRejectsUnknown(t *testing.T) {
	_, err := parseProto("bogus")
	require.Error(t, err)
}

func TestRootBuildsCommandTree(t *testing.T) {
	root := Root()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "pool4", "bib", "session", "config"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}
