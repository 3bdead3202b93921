// Package pool4 implements the IPv4 transport-address allocation pool: a
// dynamic set of (IPv4 prefix, port range) ranges keyed by mark and L4
// protocol, partitioned into hash(mark)-selected shards so the datapath's
// lookups stay cheap regardless of how many marks are configured.
//
// Grounded on pierky/Jool's mod/stateful/pool4/db.c semantics, as pinned
// down by unit/pool4db_test.c's exact visit-order oracle (db.c itself was
// not in the retrieved source, only its unit test).
package pool4

import (
	"net/netip"
	"sort"
	"sync"

	nerrors "github.com/pierky/nat64d/internal/nat64/errors"
	"github.com/pierky/nat64d/internal/nat64/tuple"
)

// PortRange is a closed, inclusive [Min, Max] port interval.
type PortRange struct {
	Min, Max uint16
}

func (r PortRange) valid() bool { return r.Min <= r.Max }

// touches reports whether r and o overlap or are numerically adjacent
// (o.Max+1 == r.Min or r.Max+1 == o.Min), the condition under which two
// ranges for the same address must be merged into one.
func (r PortRange) touches(o PortRange) bool {
	if r.Max < o.Min {
		return uint32(r.Max)+1 == uint32(o.Min)
	}
	if o.Max < r.Min {
		return uint32(o.Max)+1 == uint32(r.Min)
	}
	return true // numeric overlap
}

// overlaps reports strict numeric overlap (touching-but-not-overlapping
// adjacency does not count), the condition rm subtracts against.
func (r PortRange) overlaps(o PortRange) bool {
	return r.Min <= o.Max && o.Min <= r.Max
}

func (r PortRange) contains(o PortRange) bool {
	return r.Min <= o.Min && o.Max <= r.Max
}

func unionRange(rs []PortRange, extra PortRange) PortRange {
	out := extra
	for _, r := range rs {
		if r.Min < out.Min {
			out.Min = r.Min
		}
		if r.Max > out.Max {
			out.Max = r.Max
		}
	}
	return out
}

// IPv4Prefix is a prefix of IPv4 addresses: Addr/Len.
type IPv4Prefix struct {
	Addr netip.Addr
	Len  int // 0..32
}

// addresses expands the prefix into its individual member addresses, in
// ascending numeric order.
func (p IPv4Prefix) addresses() []netip.Addr {
	base := p.Addr.As4()
	baseVal := beToU32(base)
	count := uint64(1) << uint(32-p.Len)
	mask := ^uint32(0)
	if p.Len < 32 {
		mask = ^(uint32(1)<<uint(32-p.Len) - 1)
	}
	start := baseVal & mask
	out := make([]netip.Addr, 0, count)
	for i := uint64(0); i < count; i++ {
		out = append(out, u32ToAddr(uint32(uint64(start)+i)))
	}
	return out
}

func beToU32(b [4]byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func u32ToAddr(v uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// Sample is one (addr, port range) entry as emitted by ForeachSample.
type Sample struct {
	Mark  uint32
	Proto tuple.L4Proto
	Addr  netip.Addr
	Ports PortRange
}

// addrEntry holds the port ranges registered for one address, in the
// append-only insertion order that the conformance oracle depends on:
// merging an existing range removes it and appends the merged result at
// the tail instead of updating it in place.
type addrEntry struct {
	addr   netip.Addr
	ranges []PortRange
}

// protoSet holds every address registered for one (mark, proto) key, with
// addresses enumerated in the order they were first seen (not numeric
// order).
type protoSet struct {
	order []netip.Addr
	byIP  map[netip.Addr]*addrEntry
}

func newProtoSet() *protoSet {
	return &protoSet{byIP: make(map[netip.Addr]*addrEntry)}
}

func (s *protoSet) totalTaddrs() int {
	n := 0
	for _, a := range s.order {
		e := s.byIP[a]
		for _, r := range e.ranges {
			n += int(r.Max-r.Min) + 1
		}
	}
	return n
}

// addOne merges newRange into the address's range list, per the tail-
// append merge semantics above. Returns true if the set changed.
func (s *protoSet) addOne(addr netip.Addr, newRange PortRange) bool {
	entry, ok := s.byIP[addr]
	if !ok {
		entry = &addrEntry{addr: addr, ranges: []PortRange{newRange}}
		s.byIP[addr] = entry
		s.order = append(s.order, addr)
		return true
	}

	var touching []PortRange
	var touchingIdx []int
	for i, r := range entry.ranges {
		if r.touches(newRange) {
			touching = append(touching, r)
			touchingIdx = append(touchingIdx, i)
		}
	}

	if len(touching) == 0 {
		entry.ranges = append(entry.ranges, newRange)
		return true
	}

	if len(touching) == 1 && touching[0].contains(newRange) {
		// Fully redundant: idempotent no-op, position untouched.
		return false
	}

	merged := unionRange(touching, newRange)

	remaining := make([]PortRange, 0, len(entry.ranges)-len(touchingIdx))
	skip := make(map[int]bool, len(touchingIdx))
	for _, i := range touchingIdx {
		skip[i] = true
	}
	for i, r := range entry.ranges {
		if !skip[i] {
			remaining = append(remaining, r)
		}
	}
	entry.ranges = append(remaining, merged)
	return true
}

// rmOne subtracts cut from the address's ranges, splitting, shrinking or
// deleting ranges as needed. Missing sub-intervals are silently tolerated.
func (s *protoSet) rmOne(addr netip.Addr, cut PortRange) {
	entry, ok := s.byIP[addr]
	if !ok {
		return
	}

	out := make([]PortRange, 0, len(entry.ranges))
	for _, r := range entry.ranges {
		if !r.overlaps(cut) {
			out = append(out, r)
			continue
		}

		if cut.Min <= r.Min && r.Max <= cut.Max {
			// fully removed
			continue
		}
		if r.Min < cut.Min && cut.Max < r.Max {
			// split: cut lies strictly inside r
			out = append(out, PortRange{Min: r.Min, Max: cut.Min - 1})
			out = append(out, PortRange{Min: cut.Max + 1, Max: r.Max})
			continue
		}
		if cut.Min <= r.Min {
			out = append(out, PortRange{Min: cut.Max + 1, Max: r.Max})
			continue
		}
		// r.Min < cut.Min <= r.Max <= cut.Max
		out = append(out, PortRange{Min: r.Min, Max: cut.Min - 1})
	}

	if len(out) == 0 {
		delete(s.byIP, addr)
		s.order = removeAddr(s.order, addr)
		return
	}
	entry.ranges = out
}

func removeAddr(order []netip.Addr, addr netip.Addr) []netip.Addr {
	out := order[:0]
	for _, a := range order {
		if a != addr {
			out = append(out, a)
		}
	}
	return out
}

func (s *protoSet) contains(taddr tuple.Endpoint4) bool {
	e, ok := s.byIP[taddr.Addr]
	if !ok {
		return false
	}
	for _, r := range e.ranges {
		if r.Min <= taddr.Port && taddr.Port <= r.Max {
			return true
		}
	}
	return false
}

// markEntry holds the per-proto sets for one mark value.
type markEntry struct {
	protos [3]*protoSet // indexed by tuple.L4Proto
}

func newMarkEntry() *markEntry {
	return &markEntry{}
}

func (m *markEntry) set(proto tuple.L4Proto, create bool) *protoSet {
	if m.protos[proto] == nil && create {
		m.protos[proto] = newProtoSet()
	}
	return m.protos[proto]
}

// shard is one partition of the DB, holding every mark whose hash selects
// it. Each shard has its own mutex so the datapath never contends across
// marks that hash to different shards.
type shard struct {
	mu    sync.Mutex
	marks map[uint32]*markEntry
}

func newShard() *shard {
	return &shard{marks: make(map[uint32]*markEntry)}
}

// DB is the pool4 database: mark+proto -> set of (addr, port range).
type DB struct {
	power uint32 // slots(), always a power of two (or the 16-slot default)

	shards []*shard
}

const defaultSlots = 16

// NewDB builds a DB with the default 16-slot partitioning.
func NewDB() *DB {
	db := &DB{}
	_ = db.InitPower(0)
	return db
}

// InitPower configures the DB's partition count from a requested capacity,
// mirroring pool4db_test.c's test_init_power oracle: capacity 0 selects
// the 16-slot default; capacity in [1, 2^31] selects slots() =
// next_pow2(capacity); anything above 2^31 is rejected since the next
// power of two would overflow a 32-bit slot count.
func (db *DB) InitPower(capacity uint32) error {
	if capacity == 0 {
		db.power = defaultSlots
		db.shards = make([]*shard, db.power)
		for i := range db.shards {
			db.shards[i] = newShard()
		}
		return nil
	}

	p, ok := nextPow2(capacity)
	if !ok {
		return nerrors.Errorf(nerrors.KindInvalidArgument,
			"capacity %d is too large: next power of two would overflow", capacity)
	}

	db.power = p
	db.shards = make([]*shard, db.power)
	for i := range db.shards {
		db.shards[i] = newShard()
	}
	return nil
}

// nextPow2 returns the smallest power of two >= n, or false if that would
// require more than 32 bits (n > 2^31).
func nextPow2(n uint32) (uint32, bool) {
	const maxHalf = 1 << 31
	if n > maxHalf {
		return 0, false
	}
	if n&(n-1) == 0 {
		return n, true
	}
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p, true
}

// Slots returns the current number of hash partitions.
func (db *DB) Slots() uint32 {
	if db.power == 0 {
		return defaultSlots
	}
	return db.power
}

// hash32 is a Knuth multiplicative hash used to scatter marks across
// shards.
func hash32(x uint32) uint32 {
	return x * 2654435761
}

func (db *DB) shardFor(mark uint32) *shard {
	if db.shards == nil {
		_ = db.InitPower(0)
	}
	idx := hash32(mark) & (db.Slots() - 1)
	return db.shards[idx]
}

// Add inserts ports for every address covered by prefix, under (mark,
// proto), merging with any touching or overlapping existing range. Adding
// a subset of an existing range is a no-op.
func (db *DB) Add(mark uint32, proto tuple.L4Proto, prefix IPv4Prefix, ports PortRange) error {
	if !ports.valid() {
		return nerrors.Errorf(nerrors.KindInvalidArgument, "invalid port range %d-%d", ports.Min, ports.Max)
	}
	if prefix.Len < 0 || prefix.Len > 32 {
		return nerrors.Errorf(nerrors.KindInvalidArgument, "invalid prefix length %d", prefix.Len)
	}

	sh := db.shardFor(mark)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	me, ok := sh.marks[mark]
	if !ok {
		me = newMarkEntry()
		sh.marks[mark] = me
	}
	set := me.set(proto, true)

	for _, addr := range prefix.addresses() {
		set.addOne(addr, ports)
	}
	return nil
}

// Rm subtracts ports from every existing range covering prefix under
// (mark, proto). May split a range in two, shrink it, or delete it
// entirely. Missing sub-intervals are silently tolerated.
func (db *DB) Rm(mark uint32, proto tuple.L4Proto, prefix IPv4Prefix, ports PortRange) error {
	if !ports.valid() {
		return nerrors.Errorf(nerrors.KindInvalidArgument, "invalid port range %d-%d", ports.Min, ports.Max)
	}
	if prefix.Len < 0 || prefix.Len > 32 {
		return nerrors.Errorf(nerrors.KindInvalidArgument, "invalid prefix length %d", prefix.Len)
	}

	sh := db.shardFor(mark)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	me, ok := sh.marks[mark]
	if !ok {
		return nil
	}
	set := me.set(proto, false)
	if set == nil {
		return nil
	}

	for _, addr := range prefix.addresses() {
		set.rmOne(addr, ports)
	}

	if len(set.order) == 0 {
		me.protos[proto] = nil
	}
	return nil
}

// Contains reports whether some range in any mark's entry for proto
// covers taddr.
func (db *DB) Contains(proto tuple.L4Proto, taddr tuple.Endpoint4) bool {
	for _, sh := range db.shards {
		sh.mu.Lock()
		for _, me := range sh.marks {
			if set := me.protos[proto]; set != nil && set.contains(taddr) {
				sh.mu.Unlock()
				return true
			}
		}
		sh.mu.Unlock()
	}
	return false
}

// TotalTAddrs returns the number of (address, port) transport addresses
// registered for proto, summed across every mark.
func (db *DB) TotalTAddrs(proto tuple.L4Proto) int {
	n := 0
	for _, sh := range db.shards {
		sh.mu.Lock()
		for _, me := range sh.marks {
			if set := me.protos[proto]; set != nil {
				n += set.totalTaddrs()
			}
		}
		sh.mu.Unlock()
	}
	return n
}

// SampleVisitor is called once per (mark, proto, addr, port range). It
// returns a non-zero verdict to stop iteration early.
type SampleVisitor func(Sample) int

// ForeachSample emits each (mark, proto, addr, [min,max]) tuple in a stable
// order. If offset is non-nil, iteration starts strictly after the element
// equal to *offset.
func (db *DB) ForeachSample(visit SampleVisitor, offset *Sample) error {
	all := db.allSamples()

	start := 0
	if offset != nil {
		found := -1
		for i, s := range all {
			if sameSample(s, *offset) {
				found = i
				break
			}
		}
		if found < 0 {
			return nerrors.New(nerrors.KindNotFound, "offset sample not found")
		}
		start = found + 1
	}

	for _, s := range all[start:] {
		if v := visit(s); v != 0 {
			return nil
		}
	}
	return nil
}

func sameSample(a, b Sample) bool {
	return a.Mark == b.Mark && a.Proto == b.Proto && a.Addr == b.Addr && a.Ports == b.Ports
}

// allSamples builds the full, stably-ordered sample list: marks and
// protos ordered numerically (there is no meaningful insertion order
// across marks since they may live in different shards), addresses and
// ranges within a (mark, proto) ordered per addOne's insertion semantics.
func (db *DB) allSamples() []Sample {
	type markKey struct {
		mark  uint32
		proto tuple.L4Proto
	}
	var keys []markKey
	sets := make(map[markKey]*protoSet)

	for _, sh := range db.shards {
		sh.mu.Lock()
		for mark, me := range sh.marks {
			for p := 0; p < 3; p++ {
				if set := me.protos[p]; set != nil {
					k := markKey{mark, tuple.L4Proto(p)}
					keys = append(keys, k)
					sets[k] = set
				}
			}
		}
		sh.mu.Unlock()
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].mark != keys[j].mark {
			return keys[i].mark < keys[j].mark
		}
		return keys[i].proto < keys[j].proto
	})

	var out []Sample
	for _, k := range keys {
		set := sets[k]
		for _, addr := range set.order {
			e := set.byIP[addr]
			for _, r := range e.ranges {
				out = append(out, Sample{Mark: k.mark, Proto: k.proto, Addr: addr, Ports: r})
			}
		}
	}
	return out
}

// TAddrVisitor is called once per individual (addr, port) transport
// address. It returns a non-zero verdict to stop iteration early; that
// verdict is propagated as ForeachTAddr4's return value.
type TAddrVisitor func(tuple.Endpoint4) int

// ForeachTAddr4 enumerates every individual (addr, port) reachable from
// (mark, proto), optionally restricted to daddr, starting at position
// offset mod total and wrapping once, visiting each transport address
// exactly once. Returns (verdict, nerrors.KindNoKey) when there is no
// pool4 entry for (mark, proto).
func (db *DB) ForeachTAddr4(mark uint32, proto tuple.L4Proto, daddr *netip.Addr, visit TAddrVisitor, offset uint32) (int, error) {
	sh := db.shardFor(mark)
	sh.mu.Lock()
	var taddrs []tuple.Endpoint4
	if me, ok := sh.marks[mark]; ok {
		if set := me.protos[proto]; set != nil {
			for _, addr := range set.order {
				if daddr != nil && addr != *daddr {
					continue
				}
				e := set.byIP[addr]
				for _, r := range e.ranges {
					for port := uint32(r.Min); port <= uint32(r.Max); port++ {
						taddrs = append(taddrs, tuple.Endpoint4{Addr: addr, Port: uint16(port)})
					}
				}
			}
		}
	}
	sh.mu.Unlock()

	total := len(taddrs)
	if total == 0 {
		return 0, nerrors.New(nerrors.KindNoKey, "no pool4 entries for this mark/proto")
	}

	start := int(offset % uint32(total))
	for i := 0; i < total; i++ {
		idx := (start + i) % total
		if v := visit(taddrs[idx]); v != 0 {
			return v, nil
		}
	}
	return 0, nil
}
