// Package config holds the translator's global configuration: the
// Snapshot/TTLs key table, its publish/grace-period store, and an HCL
// codec for reading it from disk or a control message.
package config

import (
	"time"

	"github.com/pierky/nat64d/internal/nat64/hashfn"
	"github.com/pierky/nat64d/internal/nat64/session"
)

// TTLs holds the five session-deadline durations nat64.ttl.* configures.
type TTLs struct {
	UDP      time.Duration
	ICMP     time.Duration
	TCPEst   time.Duration
	TCPTrans time.Duration
	Frag     time.Duration
}

// Deadline returns now plus the duration kind selects, as session.TTLs
// computes it from the four session lifetimes configured here.
func (t TTLs) Deadline(now time.Time, kind session.TTLKind) time.Time {
	return session.TTLs{UDP: t.UDP, ICMP: t.ICMP, TCPEst: t.TCPEst, TCPTrans: t.TCPTrans}.Deadline(now, kind)
}

// Snapshot is one immutable configuration generation. Once published via
// Store.Replace it is never mutated; every field a reader reads stays
// coherent for the snapshot's whole lifetime.
type Snapshot struct {
	TTLs TTLs

	MaxStoredPkts          uint32
	SrcICMP6ErrsBetter     bool
	FArgs                  hashfn.FArgs
	HandleRSTDuringFinRcv  bool
	DropByAddr             bool
	DropExternalTCP        bool
	DropICMP6Info          bool
	MTUPlateaus            []uint16

	// Pool6Present/EAMTPresent report whether the IPv6 prefix pool and the
	// stateless EAM table hold any entries; header-translation arithmetic
	// and the EAM lookup itself are out of scope (Non-goals), but
	// DISPLAY still needs to report whether those tables are configured at
	// all, so the bit survives here as a derived flag an external loader
	// sets.
	Pool6Present bool
	EAMTPresent  bool
}

// DefaultSnapshot mirrors the defaults a fresh translator boots with
// before any configuration is loaded (the minima of the timeout
// table plus the shipped f_args default).
func DefaultSnapshot() *Snapshot {
	return &Snapshot{
		TTLs: TTLs{
			UDP:      300 * time.Second,
			ICMP:     60 * time.Second,
			TCPEst:   2*time.Hour + 4*time.Minute,
			TCPTrans: 4 * time.Minute,
			Frag:     fragmentMin,
		},
		MaxStoredPkts:         10,
		SrcICMP6ErrsBetter:    true,
		FArgs:                 hashfn.DefaultFArgs,
		HandleRSTDuringFinRcv: false,
		DropByAddr:            false,
		DropExternalTCP:       false,
		DropICMP6Info:         false,
		MTUPlateaus:           []uint16{65535, 32000, 17914, 8166, 1500, 1280, 1006, 508, 296, 68},
	}
}

// Clone returns a deep-enough copy of s for a writer to mutate before
// publishing, so the currently-published Snapshot is never touched in
// place.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.MTUPlateaus = append([]uint16(nil), s.MTUPlateaus...)
	return &c
}
