package config

import "fmt"

// ChangeType categorizes one field difference between two Snapshots.
type ChangeType string

const (
	Modified ChangeType = "modified"
	Added    ChangeType = "added"
	Removed  ChangeType = "removed"
)

// Change is a single field-level difference, for DISPLAY/audit consumers.
type Change struct {
	Field string
	Old   any
	New   any
	Type  ChangeType
}

func (c Change) String() string {
	return fmt.Sprintf("%s: %v -> %v", c.Field, c.Old, c.New)
}

// Diff compares two Snapshots field by field and returns every Change
// found. a or b may be nil to represent "no prior configuration".
func Diff(a, b *Snapshot) []Change {
	if a == nil && b == nil {
		return nil
	}
	if a == nil {
		return []Change{{Field: "nat64", Old: nil, New: "configured", Type: Added}}
	}
	if b == nil {
		return []Change{{Field: "nat64", Old: "configured", New: nil, Type: Removed}}
	}

	var changes []Change
	add := func(field string, oldV, newV any) {
		if fmt.Sprint(oldV) != fmt.Sprint(newV) {
			changes = append(changes, Change{Field: field, Old: oldV, New: newV, Type: Modified})
		}
	}

	add("nat64.ttl.udp", a.TTLs.UDP, b.TTLs.UDP)
	add("nat64.ttl.icmp", a.TTLs.ICMP, b.TTLs.ICMP)
	add("nat64.ttl.tcp_est", a.TTLs.TCPEst, b.TTLs.TCPEst)
	add("nat64.ttl.tcp_trans", a.TTLs.TCPTrans, b.TTLs.TCPTrans)
	add("nat64.ttl.frag", a.TTLs.Frag, b.TTLs.Frag)
	add("nat64.max_stored_pkts", a.MaxStoredPkts, b.MaxStoredPkts)
	add("nat64.src_icmp6errs_better", a.SrcICMP6ErrsBetter, b.SrcICMP6ErrsBetter)
	add("nat64.f_args", formatFArgs(a.FArgs), formatFArgs(b.FArgs))
	add("nat64.handle_rst_during_fin_rcv", a.HandleRSTDuringFinRcv, b.HandleRSTDuringFinRcv)
	add("nat64.drop_by_addr", a.DropByAddr, b.DropByAddr)
	add("nat64.drop_external_tcp", a.DropExternalTCP, b.DropExternalTCP)
	add("nat64.drop_icmp6_info", a.DropICMP6Info, b.DropICMP6Info)
	add("mtu_plateaus", a.MTUPlateaus, b.MTUPlateaus)

	return changes
}
