// Package hashfn implements F, the keyed hash the port allocator uses to
// derive a pseudo-random starting offset into pool4 from a Tuple6.
// Grounded line-for-line on pierky/Jool's
// mod/stateful/bib/port_allocator.c build_scatterlist()/f(): concatenate
// the f_args-selected fields in SRC_ADDR, SRC_PORT, DST_ADDR, DST_PORT
// order, append the process secret, MD5, take the last 32 bits.
package hashfn

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	"sync"
)

// FArg selects which Tuple6 fields feed F. Bits combine via OR into an
// FArgs bitmask.
type FArg uint8

const (
	FArgSrcAddr FArg = 1 << iota
	FArgSrcPort
	FArgDstAddr
	FArgDstPort
)

// FArgs is the configured field-selector bitmask.
type FArgs uint8

// DefaultFArgs selects every field, Jool's shipped default.
const DefaultFArgs FArgs = FArgs(FArgSrcAddr | FArgSrcPort | FArgDstAddr | FArgDstPort)

func (a FArgs) has(f FArg) bool { return FArg(a)&f != 0 }

const secretLen = 128

// Tuple6Fields is the subset of a Tuple6 that F consumes: it deliberately
// avoids importing the tuple package so hashfn has no dependency on the
// wider datapath types, matching the original's standalone scatterlist
// builder.
type Tuple6Fields struct {
	SrcAddr [16]byte
	SrcPort uint16
	DstAddr [16]byte
	DstPort uint16
}

// F is the keyed hash engine. Its secret is generated once at construction
// and is immutable afterward; each Hash call computes a fresh md5.Sum while
// holding a single mutex matching the original's tfm_lock, so no md5 state
// is shared between calls.
type F struct {
	mu     sync.Mutex
	secret [secretLen]byte
}

// New builds an F with a fresh, process-wide random secret.
func New() (*F, error) {
	f := &F{}
	if _, err := rand.Read(f.secret[:]); err != nil {
		return nil, err
	}
	return f, nil
}

// Hash computes F(tuple6) under the given field selector, returning the
// last 32 bits of MD5(selected fields || secret). The mutex around the
// digest mirrors the original's tfm_lock discipline; Go's
// crypto/md5 has no shared mutable state across calls, so it isn't load-
// bearing here, but it keeps the call shape identical to a pooled-tfm
// implementation.
func (f *F) Hash(t Tuple6Fields, args FArgs) uint32 {
	var buf []byte
	if args.has(FArgSrcAddr) {
		buf = append(buf, t.SrcAddr[:]...)
	}
	if args.has(FArgSrcPort) {
		var p [2]byte
		binary.BigEndian.PutUint16(p[:], t.SrcPort)
		buf = append(buf, p[:]...)
	}
	if args.has(FArgDstAddr) {
		buf = append(buf, t.DstAddr[:]...)
	}
	if args.has(FArgDstPort) {
		var p [2]byte
		binary.BigEndian.PutUint16(p[:], t.DstPort)
		buf = append(buf, p[:]...)
	}

	f.mu.Lock()
	buf = append(buf, f.secret[:]...)
	sum := md5.Sum(buf)
	f.mu.Unlock()

	return binary.BigEndian.Uint32(sum[12:16])
}
