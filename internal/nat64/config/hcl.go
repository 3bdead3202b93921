package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	nerrors "github.com/pierky/nat64d/internal/nat64/errors"
	"github.com/pierky/nat64d/internal/nat64/hashfn"
)

// hclDocument is the on-disk/control-channel HCL shape:
//
//	nat64 {
//	  ttl { udp = "5m" ... }
//	  max_stored_pkts = 10
//	  f_args = ["src_addr", "src_port", "dst_addr", "dst_port"]
//	  ...
//	}
//	mtu_plateaus = [65535, ...]
type hclDocument struct {
	Nat64       *hclNat64Block `hcl:"nat64,block"`
	MTUPlateaus []int          `hcl:"mtu_plateaus,optional"`
}

type hclNat64Block struct {
	TTL                   *hclTTLBlock `hcl:"ttl,block"`
	MaxStoredPkts         *int         `hcl:"max_stored_pkts,optional"`
	SrcICMP6ErrsBetter    *bool        `hcl:"src_icmp6errs_better,optional"`
	FArgs                 []string     `hcl:"f_args,optional"`
	HandleRSTDuringFinRcv *bool        `hcl:"handle_rst_during_fin_rcv,optional"`
	DropByAddr            *bool        `hcl:"drop_by_addr,optional"`
	DropExternalTCP       *bool        `hcl:"drop_external_tcp,optional"`
	DropICMP6Info         *bool        `hcl:"drop_icmp6_info,optional"`
}

type hclTTLBlock struct {
	UDP      string `hcl:"udp,optional"`
	ICMP     string `hcl:"icmp,optional"`
	TCPEst   string `hcl:"tcp_est,optional"`
	TCPTrans string `hcl:"tcp_trans,optional"`
	Frag     string `hcl:"frag,optional"`
}

var fArgNames = []struct {
	name string
	bit  hashfn.FArg
}{
	{"src_addr", hashfn.FArgSrcAddr},
	{"src_port", hashfn.FArgSrcPort},
	{"dst_addr", hashfn.FArgDstAddr},
	{"dst_port", hashfn.FArgDstPort},
}

func parseFArgs(names []string) (hashfn.FArgs, error) {
	var args hashfn.FArgs
	for _, n := range names {
		matched := false
		for _, fa := range fArgNames {
			if fa.name == n {
				args = hashfn.FArgs(uint8(args) | uint8(fa.bit))
				matched = true
				break
			}
		}
		if !matched {
			return 0, nerrors.Errorf(nerrors.KindValidation, "unknown f_args entry %q", n)
		}
	}
	return args, nil
}

func formatFArgs(args hashfn.FArgs) []string {
	var out []string
	for _, fa := range fArgNames {
		if uint8(args)&uint8(fa.bit) != 0 {
			out = append(out, fa.name)
		}
	}
	return out
}

func parseDuration(field, s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, nerrors.Wrapf(err, nerrors.KindValidation, "%s: invalid duration %q", field, s)
	}
	return d, nil
}

// Decode parses an HCL document into a Snapshot built
// on top of base (for any field the document leaves unset), validating
// the result against the timeout minima/maxima and normalizing
// mtu_plateaus.
func Decode(filename string, data []byte, base *Snapshot) (*Snapshot, error) {
	var doc hclDocument
	if err := hclsimple.Decode(filename, data, nil, &doc); err != nil {
		return nil, nerrors.Wrap(err, nerrors.KindValidation, "failed to decode nat64 HCL config")
	}

	snap := base.Clone()

	if doc.Nat64 != nil {
		n := doc.Nat64
		if n.TTL != nil {
			var err error
			if snap.TTLs.UDP, err = parseDuration("nat64.ttl.udp", n.TTL.UDP, snap.TTLs.UDP); err != nil {
				return nil, err
			}
			if snap.TTLs.ICMP, err = parseDuration("nat64.ttl.icmp", n.TTL.ICMP, snap.TTLs.ICMP); err != nil {
				return nil, err
			}
			if snap.TTLs.TCPEst, err = parseDuration("nat64.ttl.tcp_est", n.TTL.TCPEst, snap.TTLs.TCPEst); err != nil {
				return nil, err
			}
			if snap.TTLs.TCPTrans, err = parseDuration("nat64.ttl.tcp_trans", n.TTL.TCPTrans, snap.TTLs.TCPTrans); err != nil {
				return nil, err
			}
			if snap.TTLs.Frag, err = parseDuration("nat64.ttl.frag", n.TTL.Frag, snap.TTLs.Frag); err != nil {
				return nil, err
			}
		}
		if n.MaxStoredPkts != nil {
			snap.MaxStoredPkts = uint32(*n.MaxStoredPkts)
		}
		if n.SrcICMP6ErrsBetter != nil {
			snap.SrcICMP6ErrsBetter = *n.SrcICMP6ErrsBetter
		}
		if n.FArgs != nil {
			args, err := parseFArgs(n.FArgs)
			if err != nil {
				return nil, err
			}
			snap.FArgs = args
		}
		if n.HandleRSTDuringFinRcv != nil {
			snap.HandleRSTDuringFinRcv = *n.HandleRSTDuringFinRcv
		}
		if n.DropByAddr != nil {
			snap.DropByAddr = *n.DropByAddr
		}
		if n.DropExternalTCP != nil {
			snap.DropExternalTCP = *n.DropExternalTCP
		}
		if n.DropICMP6Info != nil {
			snap.DropICMP6Info = *n.DropICMP6Info
		}
	}

	if doc.MTUPlateaus != nil {
		raw := make([]uint16, len(doc.MTUPlateaus))
		for i, v := range doc.MTUPlateaus {
			raw[i] = uint16(v)
		}
		if err := ValidateMTUPlateaus(raw); err != nil {
			return nil, nerrors.Wrap(err, nerrors.KindValidation, "invalid mtu_plateaus")
		}
		snap.MTUPlateaus = NormalizeMTUPlateaus(raw)
	}

	if errs := snap.Validate(); errs.HasErrors() {
		return nil, nerrors.Errorf(nerrors.KindValidation, "invalid nat64 configuration: %s", errs.Error())
	}

	return snap, nil
}

// millis renders d as nat64d's kernel boundary does: a millisecond count
// suffixed "ms", not Go's native time.Duration.String() form. Still a
// valid time.ParseDuration input, so Decode reads it back unchanged.
func millis(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// Encode renders snap back to the HCL shape Decode accepts, for DISPLAY
// and audit consumers.
func Encode(snap *Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "nat64 {\n")
	fmt.Fprintf(&b, "  ttl {\n")
	fmt.Fprintf(&b, "    udp       = %q\n", millis(snap.TTLs.UDP))
	fmt.Fprintf(&b, "    icmp      = %q\n", millis(snap.TTLs.ICMP))
	fmt.Fprintf(&b, "    tcp_est   = %q\n", millis(snap.TTLs.TCPEst))
	fmt.Fprintf(&b, "    tcp_trans = %q\n", millis(snap.TTLs.TCPTrans))
	fmt.Fprintf(&b, "    frag      = %q\n", millis(snap.TTLs.Frag))
	fmt.Fprintf(&b, "  }\n")
	fmt.Fprintf(&b, "  max_stored_pkts           = %d\n", snap.MaxStoredPkts)
	fmt.Fprintf(&b, "  src_icmp6errs_better      = %t\n", snap.SrcICMP6ErrsBetter)
	fmt.Fprintf(&b, "  f_args                    = [%s]\n", quoteList(formatFArgs(snap.FArgs)))
	fmt.Fprintf(&b, "  handle_rst_during_fin_rcv = %t\n", snap.HandleRSTDuringFinRcv)
	fmt.Fprintf(&b, "  drop_by_addr              = %t\n", snap.DropByAddr)
	fmt.Fprintf(&b, "  drop_external_tcp         = %t\n", snap.DropExternalTCP)
	fmt.Fprintf(&b, "  drop_icmp6_info           = %t\n", snap.DropICMP6Info)
	fmt.Fprintf(&b, "}\n")
	fmt.Fprintf(&b, "mtu_plateaus = [%s]\n", quoteUint16List(snap.MTUPlateaus))
	return b.String()
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}

func quoteUint16List(items []uint16) string {
	parts := make([]string, len(items))
	for i, v := range items {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}
