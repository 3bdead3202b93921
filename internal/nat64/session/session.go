// Package session implements the session table: the per-flow state that
// sits above the BIB and drives when a binding's transport-layer traffic
// is still live.
//
// Every session pins the bib.Entry it was created against via a refcount
// (bib.DB.IncRef/DecRef); the session table never holds that entry by
// value, avoiding a pointer cycle between the two tables.
package session

import (
	"container/heap"
	"sync"
	"time"

	"github.com/pierky/nat64d/internal/nat64/bib"
	"github.com/pierky/nat64d/internal/nat64/tuple"
)

// Key identifies a session: the four endpoints of its flow plus protocol.
// Local4/Remote4 is the IPv4 side of the binding, Remote6/Local6 the IPv6
// side, matching the four-tuple a packet's header translation produces.
type Key struct {
	Remote6 tuple.Endpoint6
	Local6  tuple.Endpoint6
	Local4  tuple.Endpoint4
	Remote4 tuple.Endpoint4
	Proto   tuple.L4Proto
}

// Session is one live flow's state.
type Session struct {
	Key
	BIB      *bib.Entry
	State    State
	Deadline time.Time

	heapIndex int
}

// TTLs holds the configured session lifetimes that feed deadline
// computation. The TCP v4-init grace period is fixed at 6s and is
// not part of this struct.
type TTLs struct {
	UDP      time.Duration
	ICMP     time.Duration
	TCPEst   time.Duration
	TCPTrans time.Duration
}

const tcpV4InitGrace = 6 * time.Second

// Deadline returns now+duration for the given TTLKind, using ttls for the
// configurable kinds and the fixed grace period for TTLTCPV4InitFixed.
func (ttls TTLs) Deadline(now time.Time, kind TTLKind) time.Time {
	switch kind {
	case TTLUDP:
		return now.Add(ttls.UDP)
	case TTLICMP:
		return now.Add(ttls.ICMP)
	case TTLTCPEst:
		return now.Add(ttls.TCPEst)
	case TTLTCPTrans:
		return now.Add(ttls.TCPTrans)
	case TTLTCPV4InitFixed:
		return now.Add(tcpV4InitGrace)
	default:
		return now
	}
}

// sessionHeap is a container/heap min-heap ordered by Deadline, one per
// protocol, used by the expiry sweeper to always know the next session due
// to expire without a full scan.
type sessionHeap []*Session

func (h sessionHeap) Len() int            { return len(h) }
func (h sessionHeap) Less(i, j int) bool  { return h[i].Deadline.Before(h[j].Deadline) }
func (h sessionHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *sessionHeap) Push(x any) {
	s := x.(*Session)
	s.heapIndex = len(*h)
	*h = append(*h, s)
}
func (h *sessionHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	s.heapIndex = -1
	*h = old[:n-1]
	return s
}

type protoState struct {
	mu    sync.Mutex
	byKey map[Key]*Session
	byBIB map[*bib.Entry]map[*Session]struct{}
	pq    sessionHeap
}

func newProtoState() *protoState {
	return &protoState{
		byKey: make(map[Key]*Session),
		byBIB: make(map[*bib.Entry]map[*Session]struct{}),
	}
}

// Table is the session table, one protoState per L4 protocol.
type Table struct {
	bibDB  *bib.DB
	states [3]*protoState
}

// NewTable builds an empty session table bound to bibDB; every created
// session increments its bib.Entry's refcount, every removed session
// decrements it.
func NewTable(bibDB *bib.DB) *Table {
	t := &Table{bibDB: bibDB}
	for i := range t.states {
		t.states[i] = newProtoState()
	}
	return t
}

func (t *Table) state(proto tuple.L4Proto) *protoState {
	return t.states[proto]
}

// Lookup finds the session for key, if any.
func (t *Table) Lookup(key Key) (*Session, bool) {
	st := t.state(key.Proto)
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.byKey[key]
	return s, ok
}

// Create installs a new session against entry, in the given initial
// state, with a deadline already computed by the caller (via TTLs.Deadline
// or a fixed value), and increments entry's BIB refcount.
func (t *Table) Create(entry *bib.Entry, key Key, state State, deadline time.Time) *Session {
	st := t.state(key.Proto)
	st.mu.Lock()
	defer st.mu.Unlock()

	s := &Session{Key: key, BIB: entry, State: state, Deadline: deadline, heapIndex: -1}
	st.byKey[key] = s
	if st.byBIB[entry] == nil {
		st.byBIB[entry] = make(map[*Session]struct{})
	}
	st.byBIB[entry][s] = struct{}{}
	heap.Push(&st.pq, s)

	t.bibDB.IncRef(entry)
	return s
}

// Transition moves s to next with a new deadline, reordering it within the
// deadline heap.
func (t *Table) Transition(s *Session, next State, deadline time.Time) {
	st := t.state(s.Proto)
	st.mu.Lock()
	defer st.mu.Unlock()

	s.State = next
	s.Deadline = deadline
	heap.Fix(&st.pq, s.heapIndex)
}

// Touch refreshes s's deadline without changing state (used on ordinary
// UDP/ICMP/ESTABLISHED data that resets the idle timer).
func (t *Table) Touch(s *Session, deadline time.Time) {
	t.Transition(s, s.State, deadline)
}

// Remove deletes s from the table and drops its BIB reference, removing
// the underlying bib.Entry too if that was its last session and it is not
// static.
func (t *Table) Remove(s *Session) {
	st := t.state(s.Proto)
	st.mu.Lock()
	delete(st.byKey, s.Key)
	if set := st.byBIB[s.BIB]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(st.byBIB, s.BIB)
		}
	}
	if s.heapIndex >= 0 {
		heap.Remove(&st.pq, s.heapIndex)
	}
	st.mu.Unlock()

	t.bibDB.DecRef(s.BIB)
}

// SessionsForEntry returns every live session currently pinning entry, for
// DISPLAY tooling and BIB-removal cascades.
func (t *Table) SessionsForEntry(entry *bib.Entry) []*Session {
	st := t.state(entry.Proto)
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*Session, 0, len(st.byBIB[entry]))
	for s := range st.byBIB[entry] {
		out = append(out, s)
	}
	return out
}

// Count returns the number of live sessions for proto.
func (t *Table) Count(proto tuple.L4Proto) int {
	st := t.state(proto)
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.byKey)
}

// CountByState returns the number of live sessions for proto, broken down
// by FSM state, for DISPLAY tooling and metrics export.
func (t *Table) CountByState(proto tuple.L4Proto) map[State]int {
	st := t.state(proto)
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make(map[State]int)
	for _, s := range st.byKey {
		out[s.State]++
	}
	return out
}

// nextDeadline returns the earliest deadline across proto's sessions, and
// false if there are none.
func (t *Table) nextDeadline(proto tuple.L4Proto) (time.Time, bool) {
	st := t.state(proto)
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.pq) == 0 {
		return time.Time{}, false
	}
	return st.pq[0].Deadline, true
}

// sweepProto removes every session of proto whose deadline is <= now,
// returning how many were removed.
func (t *Table) sweepProto(proto tuple.L4Proto, now time.Time) int {
	st := t.state(proto)

	var expired []*Session
	st.mu.Lock()
	for len(st.pq) > 0 && !st.pq[0].Deadline.After(now) {
		s := heap.Pop(&st.pq).(*Session)
		delete(st.byKey, s.Key)
		if set := st.byBIB[s.BIB]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(st.byBIB, s.BIB)
			}
		}
		expired = append(expired, s)
	}
	st.mu.Unlock()

	for _, s := range expired {
		t.bibDB.DecRef(s.BIB)
	}
	return len(expired)
}

// Sweep removes every expired session across all protocols, returning the
// total removed.
func (t *Table) Sweep(now time.Time) int {
	total := 0
	for _, p := range []tuple.L4Proto{tuple.UDP, tuple.TCP, tuple.ICMP} {
		total += t.sweepProto(p, now)
	}
	return total
}

// earliestDeadline returns the soonest deadline pending across every
// protocol's heap, used by Sweeper to pace its wakeups.
func (t *Table) earliestDeadline() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, p := range []tuple.L4Proto{tuple.UDP, tuple.TCP, tuple.ICMP} {
		d, ok := t.nextDeadline(p)
		if !ok {
			continue
		}
		if !found || d.Before(earliest) {
			earliest = d
			found = true
		}
	}
	return earliest, found
}
