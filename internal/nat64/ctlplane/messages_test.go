package ctlplane

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pierky/nat64d/internal/nat64/tuple"
)

func TestSetRequestRoundTrips(t *testing.T) {
	req := SetRequest{Field: "nat64.ttl.udp", Value: "300s"}
	got, err := DecodeSetRequest(EncodeSetRequest(req))
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestDecodeSetRequestRejectsTruncated(t *testing.T) {
	_, err := DecodeSetRequest([]byte{0x00})
	require.Error(t, err)
}

func TestPool4RequestRoundTrips(t *testing.T) {
	req := Pool4Request{
		Mark:      7,
		Proto:     tuple.TCP,
		Prefix:    netip.MustParseAddr("192.0.2.0"),
		PrefixLen: 29,
		PortMin:   1024,
		PortMax:   2048,
	}
	got, err := DecodePool4Request(EncodePool4Request(req))
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestDecodePool4RequestRejectsWrongSize(t *testing.T) {
	_, err := DecodePool4Request([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDisplayResponseRoundTrips(t *testing.T) {
	resp := DisplayResponse{Text: "pool4: 192.0.2.0/29 ports 1024-2048\n"}
	got := DecodeDisplayResponse(EncodeDisplayResponse(resp))
	assert.Equal(t, resp, got)
}
