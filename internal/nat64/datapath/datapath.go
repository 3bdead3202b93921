// Package datapath implements the per-packet dispatcher:
// given an already-parsed tuple, it looks up or creates BIB/session state
// and returns a translation verdict. Header rewriting, checksum and
// fragmentation arithmetic, and EAM/pool6 address synthesis are external
// collaborators; this package only ever sees tuples
// and endpoints its caller has already resolved.
package datapath

import (
	"sync"
	"time"

	"github.com/pierky/nat64d/internal/nat64/bib"
	"github.com/pierky/nat64d/internal/nat64/config"
	nerrors "github.com/pierky/nat64d/internal/nat64/errors"
	"github.com/pierky/nat64d/internal/nat64/logging"
	"github.com/pierky/nat64d/internal/nat64/palloc"
	"github.com/pierky/nat64d/internal/nat64/session"
	"github.com/pierky/nat64d/internal/nat64/tuple"
)

// Verdict is the datapath's decision for one packet.
type Verdict int

const (
	// DROP discards the packet silently.
	DROP Verdict = iota
	// TRANSLATE forwards the packet through header translation.
	TRANSLATE
	// STOLEN means the packet was consumed by the translator itself (e.g.
	// an ICMP error it chose to answer locally) and must not be forwarded
	// or freed by the caller.
	STOLEN
	// ACCEPT passes the packet through unmodified.
	ACCEPT
)

func (v Verdict) String() string {
	switch v {
	case DROP:
		return "DROP"
	case TRANSLATE:
		return "TRANSLATE"
	case STOLEN:
		return "STOLEN"
	case ACCEPT:
		return "ACCEPT"
	default:
		return "UNKNOWN"
	}
}

// Flags carries the per-packet control bits the dispatcher needs beyond
// the bare tuple: which TCP control bits are set, and whether an ICMPv6
// packet is an informational (as opposed to error) message.
type Flags struct {
	SYN      bool
	FIN      bool
	RST      bool
	ICMPInfo bool
}

// Dispatcher wires config, BIB, sessions and the port allocator together
// into the per-packet decision.
type Dispatcher struct {
	cfg      *config.Store
	bibDB    *bib.DB
	sessions *session.Table
	alloc    *palloc.Allocator
	logger   *logging.Logger

	pendingMu     sync.Mutex
	pendingCounts map[tuple.Tuple6]uint32
}

// New builds a Dispatcher.
func New(cfg *config.Store, bibDB *bib.DB, sessions *session.Table, alloc *palloc.Allocator, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:           cfg,
		bibDB:         bibDB,
		sessions:      sessions,
		alloc:         alloc,
		logger:        logger,
		pendingCounts: make(map[tuple.Tuple6]uint32),
	}
}

// beginPending registers one more packet waiting on an allocation for t,
// rejecting once nat64.max_stored_pkts is reached.
func (d *Dispatcher) beginPending(t tuple.Tuple6, max uint32) bool {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	if d.pendingCounts[t] >= max {
		return false
	}
	d.pendingCounts[t]++
	return true
}

func (d *Dispatcher) endPending(t tuple.Tuple6) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	if d.pendingCounts[t] > 1 {
		d.pendingCounts[t]--
	} else {
		delete(d.pendingCounts, t)
	}
}

func tcpEvent(flags Flags, from6 bool) (session.Event, bool) {
	switch {
	case flags.RST:
		return session.EvRST, true
	case flags.SYN && from6:
		return session.Ev6SYN, true
	case flags.SYN && !from6:
		return session.Ev4SYN, true
	case flags.FIN && from6:
		return session.Ev6FIN, true
	case flags.FIN && !from6:
		return session.Ev4FIN, true
	default:
		return session.EvData, true
	}
}

// ttlKindForState returns the TTLKind a session in the given state should
// be refreshed with when a non-transitioning packet arrives.
func ttlKindForState(proto tuple.L4Proto, state session.State) session.TTLKind {
	if proto != tuple.TCP {
		if proto == tuple.ICMP {
			return session.TTLICMP
		}
		return session.TTLUDP
	}
	switch state {
	case session.V4Init:
		return session.TTLTCPV4InitFixed
	case session.V6Init, session.Established, session.V4FinRcv, session.V6FinRcv:
		return session.TTLTCPEst
	default:
		return session.TTLTCPTrans
	}
}

// Handle6In processes a packet arriving from the IPv6 side. remote4 is the
// IPv4 endpoint of the real destination host, already resolved by the
// caller's address-synthesis layer (out of scope here).
func (d *Dispatcher) Handle6In(mark uint32, t tuple.Tuple6, remote4 tuple.Endpoint4, flags Flags, now time.Time) (Verdict, error) {
	snap := d.cfg.Current()

	if t.Proto == tuple.ICMP && flags.ICMPInfo && snap.DropICMP6Info {
		return DROP, nil
	}

	entry, ok := d.bibDB.Get6(t.Proto, t.Src)
	if !ok {
		var err error
		entry, err = d.allocateAndBind(mark, t, snap.MaxStoredPkts)
		if err != nil {
			return DROP, err
		}
	}

	key := session.Key{Remote6: t.Src, Local6: t.Dst, Local4: entry.IPv4, Remote4: remote4, Proto: t.Proto}
	sess, found := d.sessions.Lookup(key)
	if !found {
		state, ttlKind := initialState(t.Proto, flags, true)
		d.sessions.Create(entry, key, state, snap.TTLs.Deadline(now, ttlKind))
		return TRANSLATE, nil
	}

	d.advance(sess, t.Proto, flags, true, snap, now)
	return TRANSLATE, nil
}

// allocateAndBind runs the port allocator and installs a new dynamic BIB
// entry for t.Src, respecting nat64.max_stored_pkts while the allocation
// is in flight. If a racing allocator already bound t.Src, its entry is
// returned; if the chosen IPv4 endpoint was taken by another flow, the
// allocator is called again, up to maxBindAttempts times in all, before
// failing KindExhausted.
func (d *Dispatcher) allocateAndBind(mark uint32, t tuple.Tuple6, maxStored uint32) (*bib.Entry, error) {
	if !d.beginPending(t, maxStored) {
		return nil, nerrors.Errorf(nerrors.KindExhausted, "too many packets pending a BIB for this flow")
	}
	defer d.endPending(t)

	const maxBindAttempts = 16
	for attempt := 0; attempt < maxBindAttempts; attempt++ {
		addr4, err := d.alloc.Allocate(mark, t.Proto, t, nil)
		if err != nil {
			return nil, err
		}

		entry := &bib.Entry{IPv6: t.Src, IPv4: addr4, Proto: t.Proto, Mark: mark}
		if err := d.bibDB.AddDynamic(entry); err != nil {
			if nerrors.GetKind(err) != nerrors.KindAlreadyExists {
				return nil, err
			}
			if winner, ok := d.bibDB.Get6(t.Proto, t.Src); ok {
				return winner, nil
			}
			continue
		}
		return entry, nil
	}
	return nil, nerrors.Errorf(nerrors.KindExhausted, "BIB collision on %d consecutive allocations", maxBindAttempts)
}

// Handle4In processes a packet arriving from the IPv4 side. remoteAsV6 is
// the synthesized IPv6 representation of t.Src, already resolved by the
// caller's address-synthesis layer the same way Handle6In's tuple.Dst is
// (it is the Local6 half of the session key on both sides of a flow).
// newFlowV6Client, when non-nil, is the IPv6 endpoint a static mapping
// resolved for an externally-initiated flow that has no BIB entry yet;
// nil means no such mapping exists.
func (d *Dispatcher) Handle4In(mark uint32, t tuple.Tuple4, remoteAsV6 tuple.Endpoint6, newFlowV6Client *tuple.Endpoint6, flags Flags, now time.Time) (Verdict, error) {
	snap := d.cfg.Current()

	entry, ok := d.bibDB.Get4(t.Proto, t.Dst)
	if !ok {
		if newFlowV6Client == nil {
			return DROP, nil
		}
		if t.Proto == tuple.TCP && flags.SYN && snap.DropExternalTCP {
			return DROP, nil
		}

		newEntry := &bib.Entry{IPv6: *newFlowV6Client, IPv4: t.Dst, Proto: t.Proto, Mark: mark}
		if err := d.bibDB.AddDynamic(newEntry); err != nil {
			if nerrors.GetKind(err) != nerrors.KindAlreadyExists {
				return DROP, err
			}
			winner, ok := d.bibDB.Get4(t.Proto, t.Dst)
			if !ok {
				return DROP, err
			}
			entry = winner
		} else {
			entry = newEntry
		}
	}

	key := session.Key{Remote6: entry.IPv6, Local6: remoteAsV6, Local4: entry.IPv4, Remote4: t.Src, Proto: t.Proto}
	sess, found := d.sessions.Lookup(key)
	if !found {
		if snap.DropByAddr {
			return DROP, nil
		}
		state, ttlKind := initialState(t.Proto, flags, false)
		d.sessions.Create(entry, key, state, snap.TTLs.Deadline(now, ttlKind))
		return TRANSLATE, nil
	}

	d.advance(sess, t.Proto, flags, false, snap, now)
	return TRANSLATE, nil
}

// initialState computes the state (and the TTLKind its deadline should
// use) a brand-new session is created in.
func initialState(proto tuple.L4Proto, flags Flags, from6 bool) (session.State, session.TTLKind) {
	if proto != tuple.TCP {
		if proto == tuple.ICMP {
			return session.Established, session.TTLICMP
		}
		return session.Established, session.TTLUDP
	}

	switch {
	case flags.SYN && from6:
		return session.V6Init, session.TTLTCPTrans
	case flags.SYN && !from6:
		return session.V4Init, session.TTLTCPV4InitFixed
	default:
		// A TCP packet with no prior session and no SYN: the handshake
		// was not observed (daemon restart, asymmetric routing). Admit it
		// directly into ESTABLISHED rather than dropping a live flow.
		return session.Established, session.TTLTCPEst
	}
}

// advance drives sess through the TCP state machine (or simply refreshes
// its deadline for UDP/ICMP) in response to one packet.
func (d *Dispatcher) advance(sess *session.Session, proto tuple.L4Proto, flags Flags, from6 bool, snap *config.Snapshot, now time.Time) {
	if proto != tuple.TCP {
		d.sessions.Touch(sess, snap.TTLs.Deadline(now, ttlKindForState(proto, sess.State)))
		return
	}

	ev, _ := tcpEvent(flags, from6)
	next, ttlKind, transitioned := session.TCPNext(sess.State, ev, snap.HandleRSTDuringFinRcv)
	if transitioned {
		d.sessions.Transition(sess, next, snap.TTLs.Deadline(now, ttlKind))
		return
	}
	d.sessions.Touch(sess, snap.TTLs.Deadline(now, ttlKindForState(proto, sess.State)))
}
