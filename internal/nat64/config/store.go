package config

import (
	"runtime"
	"sync/atomic"
)

// Store publishes Snapshots using the same publish/grace-period pattern as
// original_source mod/common/config.c's config_clone/config_replace: an
// atomic pointer swap for writers, plus an epoch counter so Replace can
// wait until every reader that began before publication has finished,
// mirroring config_replace()'s synchronize_rcu_bh() call.
//
// Unlike the original, Go's garbage collector reclaims a superseded
// Snapshot whenever its last reference drops, so Current is safe to call
// without any grace-period participation at all; Enter/Exit exist for
// callers (the control plane's apply-then-acknowledge path) that need the
// stronger guarantee that no reader is still observing the snapshot being
// replaced.
type Store struct {
	ptr     atomic.Pointer[Snapshot]
	epoch   atomic.Uint64
	readers [2]atomic.Int64
}

// NewStore builds a Store already publishing initial.
func NewStore(initial *Snapshot) *Store {
	s := &Store{}
	s.ptr.Store(initial)
	return s
}

// Current returns the currently published Snapshot. Safe for concurrent
// use with Replace; never blocks.
func (s *Store) Current() *Snapshot {
	return s.ptr.Load()
}

// Enter begins a read-side critical section, returning the current
// Snapshot and a token to pass to Exit. Readers that need Replace to be
// able to wait for them should use Enter/Exit
// instead of Current.
func (s *Store) Enter() (*Snapshot, uint64) {
	e := s.epoch.Load() & 1
	s.readers[e].Add(1)
	return s.ptr.Load(), e
}

// Exit ends a read-side critical section started by Enter.
func (s *Store) Exit(token uint64) {
	s.readers[token].Add(-1)
}

// Replace publishes next as the current Snapshot, then blocks until every
// reader that entered before publication has called Exit.
func (s *Store) Replace(next *Snapshot) {
	oldEpoch := s.epoch.Load() & 1
	s.ptr.Store(next)
	s.epoch.Add(1)

	for s.readers[oldEpoch].Load() > 0 {
		runtime.Gosched()
	}
}
