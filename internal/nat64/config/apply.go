package config

import (
	"strconv"
	"strings"

	nerrors "github.com/pierky/nat64d/internal/nat64/errors"
)

// ApplyField applies a single dotted field path (as used by MsgSet control
// messages and the `nat64d config update` CLI) to a clone of base, returning
// the resulting Snapshot. It mirrors the field set Decode understands, one
// key at a time instead of a whole document.
func ApplyField(base *Snapshot, field, value string) (*Snapshot, error) {
	snap := base.Clone()

	switch field {
	case "nat64.ttl.udp":
		d, err := parseDuration(field, value, snap.TTLs.UDP)
		if err != nil {
			return nil, err
		}
		snap.TTLs.UDP = d
	case "nat64.ttl.icmp":
		d, err := parseDuration(field, value, snap.TTLs.ICMP)
		if err != nil {
			return nil, err
		}
		snap.TTLs.ICMP = d
	case "nat64.ttl.tcp_est":
		d, err := parseDuration(field, value, snap.TTLs.TCPEst)
		if err != nil {
			return nil, err
		}
		snap.TTLs.TCPEst = d
	case "nat64.ttl.tcp_trans":
		d, err := parseDuration(field, value, snap.TTLs.TCPTrans)
		if err != nil {
			return nil, err
		}
		snap.TTLs.TCPTrans = d
	case "nat64.ttl.frag":
		d, err := parseDuration(field, value, snap.TTLs.Frag)
		if err != nil {
			return nil, err
		}
		snap.TTLs.Frag = d
	case "nat64.max_stored_pkts":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, nerrors.Wrapf(err, nerrors.KindValidation, "parsing %s", field)
		}
		snap.MaxStoredPkts = uint32(n)
	case "nat64.src_icmp6errs_better":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, nerrors.Wrapf(err, nerrors.KindValidation, "parsing %s", field)
		}
		snap.SrcICMP6ErrsBetter = b
	case "nat64.f_args":
		args, err := parseFArgs(strings.Split(value, ","))
		if err != nil {
			return nil, err
		}
		snap.FArgs = args
	case "nat64.handle_rst_during_fin_rcv":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, nerrors.Wrapf(err, nerrors.KindValidation, "parsing %s", field)
		}
		snap.HandleRSTDuringFinRcv = b
	case "nat64.drop_by_addr":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, nerrors.Wrapf(err, nerrors.KindValidation, "parsing %s", field)
		}
		snap.DropByAddr = b
	case "nat64.drop_external_tcp":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, nerrors.Wrapf(err, nerrors.KindValidation, "parsing %s", field)
		}
		snap.DropExternalTCP = b
	case "nat64.drop_icmp6_info":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, nerrors.Wrapf(err, nerrors.KindValidation, "parsing %s", field)
		}
		snap.DropICMP6Info = b
	case "mtu_plateaus":
		plateaus, err := parseUint16List(value)
		if err != nil {
			return nil, nerrors.Wrapf(err, nerrors.KindValidation, "parsing %s", field)
		}
		if err := ValidateMTUPlateaus(plateaus); err != nil {
			return nil, nerrors.Wrap(err, nerrors.KindValidation, "invalid mtu_plateaus")
		}
		snap.MTUPlateaus = NormalizeMTUPlateaus(plateaus)
	default:
		return nil, nerrors.Errorf(nerrors.KindInvalidArgument, "unknown configuration field %q", field)
	}

	if errs := snap.Validate(); errs.HasErrors() {
		return nil, nerrors.Wrap(errs, nerrors.KindValidation, "validating "+field)
	}
	return snap, nil
}

func parseUint16List(value string) ([]uint16, error) {
	parts := strings.Split(value, ",")
	out := make([]uint16, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 16)
		if err != nil {
			return nil, err
		}
		out = append(out, uint16(n))
	}
	return out, nil
}
