package tuple

import (
	"net/netip"
	"testing"
)

func TestL4ProtoString(t *testing.T) {
	cases := map[L4Proto]string{UDP: "udp", TCP: "tcp", ICMP: "icmp", L4Proto(99): "unknown"}
	for proto, want := range cases {
		if got := proto.String(); got != want {
			t.Errorf("L4Proto(%d).String() = %q, want %q", proto, got, want)
		}
	}
}

func TestTuple6String(t *testing.T) {
	tup := Tuple6{
		Src:   Endpoint6{Addr: netip.MustParseAddr("2001:db8::1"), Port: 1000},
		Dst:   Endpoint6{Addr: netip.MustParseAddr("2001:db8::2"), Port: 80},
		Proto: TCP,
	}
	want := "tcp 2001:db8::1#1000->2001:db8::2#80"
	if got := tup.String(); got != want {
		t.Errorf("Tuple6.String() = %q, want %q", got, want)
	}
}

func TestEndpointsAreComparable(t *testing.T) {
	a := Endpoint4{Addr: netip.MustParseAddr("192.0.2.1"), Port: 1}
	b := Endpoint4{Addr: netip.MustParseAddr("192.0.2.1"), Port: 1}
	if a != b {
		t.Errorf("identical endpoints should compare equal for map-key use")
	}
}
