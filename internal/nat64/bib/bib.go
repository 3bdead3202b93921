// Package bib implements the Binding Information Base: a dual-indexed
// bijection between IPv6 and IPv4 transport-address endpoints, per L4
// protocol.
//
// An Entry is shared-owned by its two index slots and by every Session
// that pins it; rather than materialize that
// cycle with pointers in both directions, the session table holds a
// refcount inside the Entry itself, guarded by the same per-proto mutex
// the indexes use, and asks the BIB to remove the entry once the last
// session referencing it is gone.
package bib

import (
	"sync"

	nerrors "github.com/pierky/nat64d/internal/nat64/errors"
	"github.com/pierky/nat64d/internal/nat64/tuple"
)

// Entry is one BIB binding: an IPv6 transport endpoint bound to an IPv4
// transport endpoint for one protocol.
type Entry struct {
	IPv6     tuple.Endpoint6
	IPv4     tuple.Endpoint4
	Proto    tuple.L4Proto
	Mark     uint32
	IsStatic bool

	// refs counts live sessions pinning this entry. It is only ever read
	// or mutated while holding the owning protoTable's mutex.
	refs int
}

// protoTable is the dual index for one protocol.
type protoTable struct {
	mu     sync.RWMutex
	byIPv6 map[tuple.Endpoint6]*Entry
	byIPv4 map[tuple.Endpoint4]*Entry
}

func newProtoTable() *protoTable {
	return &protoTable{
		byIPv6: make(map[tuple.Endpoint6]*Entry),
		byIPv4: make(map[tuple.Endpoint4]*Entry),
	}
}

// DB is the Binding Information Base, one dual index per protocol.
type DB struct {
	tables [3]*protoTable
}

// NewDB builds an empty BIB.
func NewDB() *DB {
	db := &DB{}
	for i := range db.tables {
		db.tables[i] = newProtoTable()
	}
	return db
}

func (db *DB) table(proto tuple.L4Proto) *protoTable {
	return db.tables[proto]
}

// Get6 looks up the entry bound to an IPv6 transport endpoint.
func (db *DB) Get6(proto tuple.L4Proto, ipv6 tuple.Endpoint6) (*Entry, bool) {
	t := db.table(proto)
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.byIPv6[ipv6]
	return e, ok
}

// Get4 looks up the entry bound to an IPv4 transport endpoint.
func (db *DB) Get4(proto tuple.L4Proto, ipv4 tuple.Endpoint4) (*Entry, bool) {
	t := db.table(proto)
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.byIPv4[ipv4]
	return e, ok
}

// Contains4 reports whether proto has any entry bound to ipv4, used by the
// port allocator's collision check.
func (db *DB) Contains4(proto tuple.L4Proto, ipv4 tuple.Endpoint4) bool {
	_, ok := db.Get4(proto, ipv4)
	return ok
}

// AddStatic installs a permanent entry, failing KindAlreadyExists if
// either key already has a mate.
func (db *DB) AddStatic(e *Entry) error {
	e.IsStatic = true
	return db.add(e)
}

// AddDynamic installs a dynamic entry (one the allocator produced),
// failing KindAlreadyExists if a racing allocation got there first; the
// caller is expected to retry palloc on that error.
func (db *DB) AddDynamic(e *Entry) error {
	e.IsStatic = false
	return db.add(e)
}

func (db *DB) add(e *Entry) error {
	t := db.table(e.Proto)
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byIPv6[e.IPv6]; exists {
		return nerrors.Errorf(nerrors.KindAlreadyExists, "BIB already has an entry for ipv6 endpoint %s", e.IPv6)
	}
	if _, exists := t.byIPv4[e.IPv4]; exists {
		return nerrors.Errorf(nerrors.KindAlreadyExists, "BIB already has an entry for ipv4 endpoint %s", e.IPv4)
	}

	t.byIPv6[e.IPv6] = e
	t.byIPv4[e.IPv4] = e
	return nil
}

// Remove deletes e, but only when no session refers to it.
func (db *DB) Remove(e *Entry) error {
	t := db.table(e.Proto)
	t.mu.Lock()
	defer t.mu.Unlock()
	return db.removeLocked(t, e)
}

func (db *DB) removeLocked(t *protoTable, e *Entry) error {
	if e.refs > 0 {
		return nerrors.Errorf(nerrors.KindConflict, "cannot remove BIB entry %s: %d sessions still reference it", e.IPv6, e.refs)
	}
	delete(t.byIPv6, e.IPv6)
	delete(t.byIPv4, e.IPv4)
	return nil
}

// IncRef registers a new session reference against e. Called by the
// session table when a session is created against this BIB entry.
func (db *DB) IncRef(e *Entry) {
	t := db.table(e.Proto)
	t.mu.Lock()
	e.refs++
	t.mu.Unlock()
}

// DecRef drops a session reference against e. If that was the last
// reference and e is not static, the entry is removed and removed is
// true, implementing "removing the last session of a non-static BIB
// entry removes the entry".
func (db *DB) DecRef(e *Entry) (removed bool) {
	t := db.table(e.Proto)
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.refs > 0 {
		e.refs--
	}
	if e.refs == 0 && !e.IsStatic {
		delete(t.byIPv6, e.IPv6)
		delete(t.byIPv4, e.IPv4)
		return true
	}
	return false
}

// RefCount returns the current session refcount of e, for tests and
// DISPLAY tooling.
func (db *DB) RefCount(e *Entry) int {
	t := db.table(e.Proto)
	t.mu.RLock()
	defer t.mu.RUnlock()
	return e.refs
}

// Count returns the number of live BIB entries for proto.
func (db *DB) Count(proto tuple.L4Proto) int {
	t := db.table(proto)
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byIPv6)
}
