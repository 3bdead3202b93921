// Package tuple defines the 5-tuple types the datapath derives from every
// packet: Tuple6 on the IPv6 side, Tuple4 on the IPv4 side, and the
// transport-address endpoints BIB and pool4 key off of.
package tuple

import (
	"fmt"
	"net/netip"
)

// L4Proto is the layer-4 protocol a tuple/session/BIB entry is for. ICMP
// uses its identifier in the port field.
type L4Proto uint8

const (
	UDP L4Proto = iota
	TCP
	ICMP
)

func (p L4Proto) String() string {
	switch p {
	case UDP:
		return "udp"
	case TCP:
		return "tcp"
	case ICMP:
		return "icmp"
	default:
		return "unknown"
	}
}

// Endpoint6 is an IPv6 transport-address endpoint: address + port (or ICMP
// identifier).
type Endpoint6 struct {
	Addr netip.Addr
	Port uint16
}

func (e Endpoint6) String() string {
	return fmt.Sprintf("%s#%d", e.Addr, e.Port)
}

// Endpoint4 is an IPv4 transport-address endpoint: address + port (or ICMP
// identifier).
type Endpoint4 struct {
	Addr netip.Addr
	Port uint16
}

func (e Endpoint4) String() string {
	return fmt.Sprintf("%s#%d", e.Addr, e.Port)
}

// Tuple6 is the 5-tuple derived from an inbound IPv6 packet.
type Tuple6 struct {
	Src   Endpoint6
	Dst   Endpoint6
	Proto L4Proto
}

// Tuple4 is the 5-tuple derived from an inbound IPv4 packet, or the
// translated counterpart of a Tuple6.
type Tuple4 struct {
	Src   Endpoint4
	Dst   Endpoint4
	Proto L4Proto
}

func (t Tuple6) String() string {
	return fmt.Sprintf("%s %s->%s", t.Proto, t.Src, t.Dst)
}

func (t Tuple4) String() string {
	return fmt.Sprintf("%s %s->%s", t.Proto, t.Src, t.Dst)
}
