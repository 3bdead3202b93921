// Package palloc implements RFC 6056 Algorithm 3 port allocation: given an
// inbound IPv6 tuple, pick an IPv4 transport address from pool4 that the
// BIB does not already own for that protocol. Grounded
// line-for-line on pierky/Jool's mod/stateful/bib/port_allocator.c
// palloc_allocate()/choose_port().
package palloc

import (
	"net/netip"
	"strconv"
	"sync/atomic"

	"github.com/pierky/nat64d/internal/nat64/bib"
	nerrors "github.com/pierky/nat64d/internal/nat64/errors"
	"github.com/pierky/nat64d/internal/nat64/hashfn"
	"github.com/pierky/nat64d/internal/nat64/logging"
	"github.com/pierky/nat64d/internal/nat64/metrics"
	"github.com/pierky/nat64d/internal/nat64/pool4"
	"github.com/pierky/nat64d/internal/nat64/tuple"
)

// Allocator binds pool4, the BIB, and F together into the allocation
// algorithm. One Allocator is shared by every worker; nextEphemeral is the
// single process-wide counter RFC 6056 Algorithm 3 advances on every
// candidate considered, not just the one accepted.
type Allocator struct {
	pool4         *pool4.DB
	bibDB         *bib.DB
	f             *hashfn.F
	fArgs         hashfn.FArgs
	warnings      *logging.RateLimiter
	metrics       *metrics.Metrics
	nextEphemeral atomic.Uint32
}

// New builds an Allocator. initialCounter should come from a
// cryptographically random source; fArgs selects which Tuple6 fields feed F.
func New(pool4DB *pool4.DB, bibDB *bib.DB, f *hashfn.F, fArgs hashfn.FArgs, initialCounter uint32, warnings *logging.RateLimiter) *Allocator {
	a := &Allocator{pool4: pool4DB, bibDB: bibDB, f: f, fArgs: fArgs, warnings: warnings}
	a.nextEphemeral.Store(initialCounter)
	return a
}

// SetMetrics attaches m so Allocate counts successful allocations and
// exhaustions by protocol. Optional; Allocate is nil-safe without it.
func (a *Allocator) SetMetrics(m *metrics.Metrics) {
	a.metrics = m
}

func toFields(t tuple.Tuple6) hashfn.Tuple6Fields {
	return hashfn.Tuple6Fields{
		SrcAddr: t.Src.Addr.As16(),
		SrcPort: t.Src.Port,
		DstAddr: t.Dst.Addr.As16(),
		DstPort: t.Dst.Port,
	}
}

// Allocate picks a free IPv4 transport address for mark/proto, starting
// the pool4 walk at F(tuple6)+nextEphemeral and advancing nextEphemeral on
// every candidate examined, whether or not it is accepted. daddr, when
// non-nil, restricts the search to that pool4 address (used for
// address-dependent filtering callers).
//
// Returns (addr, nil) on success. Returns a KindNoKey error when mark/proto
// has no pool4 entries at all (normal: the caller should treat this as "we
// don't serve this traffic"), and a KindExhausted error when pool4 has
// entries but every one of them collides with an existing BIB entry.
func (a *Allocator) Allocate(mark uint32, proto tuple.L4Proto, t tuple.Tuple6, daddr *netip.Addr) (tuple.Endpoint4, error) {
	offset := a.f.Hash(toFields(t), a.fArgs)

	var chosen tuple.Endpoint4
	visit := func(candidate tuple.Endpoint4) int {
		a.nextEphemeral.Add(1)
		if a.bibDB.Contains4(proto, candidate) {
			return 0
		}
		chosen = candidate
		return 1
	}

	start := offset + a.nextEphemeral.Add(1)
	verdict, err := a.pool4.ForeachTAddr4(mark, proto, daddr, visit, start)
	if err != nil {
		return tuple.Endpoint4{}, err
	}
	if verdict == 1 {
		if a.metrics != nil {
			a.metrics.PallocAllocations.WithLabelValues(proto.String()).Inc()
		}
		return chosen, nil
	}

	if a.warnings != nil {
		a.warnings.Warn(
			poolExhaustedKey(mark, proto),
			"pool4 is exhausted: no transport addresses left",
			"mark", mark, "proto", proto.String(),
		)
	}
	if a.metrics != nil {
		a.metrics.PallocExhausted.WithLabelValues(proto.String()).Inc()
	}
	return tuple.Endpoint4{}, nerrors.Errorf(nerrors.KindExhausted, "pool4 exhausted for mark %d proto %s", mark, proto)
}

func poolExhaustedKey(mark uint32, proto tuple.L4Proto) string {
	return "pool4-exhausted:" + proto.String() + ":" + strconv.FormatUint(uint64(mark), 10)
}
