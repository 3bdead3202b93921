// Package ctlplane implements the wire framing used between nat64d and its
// control clients. It owns only the record framing and the
// request/response structs; the actual transport socket (netlink, unix
// socket, whatever the deployment picks) is an external collaborator.
package ctlplane

import (
	"encoding/binary"
	"fmt"
	"io"

	nerrors "github.com/pierky/nat64d/internal/nat64/errors"
)

// MsgType tags the payload that follows a Record's header.
type MsgType uint8

const (
	MsgEnable MsgType = iota
	MsgDisable
	MsgSet
	MsgDisplay
	MsgPool4Add
	MsgPool4Rm
)

func (t MsgType) String() string {
	switch t {
	case MsgEnable:
		return "ENABLE"
	case MsgDisable:
		return "DISABLE"
	case MsgSet:
		return "SET"
	case MsgDisplay:
		return "DISPLAY"
	case MsgPool4Add:
		return "POOL4_ADD"
	case MsgPool4Rm:
		return "POOL4_RM"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

// maxRecordLength bounds a single record's payload so a corrupt or hostile
// peer can't make Decode allocate an unbounded buffer.
const maxRecordLength = 1 << 20

// Record is one framed control-plane message: an 8-bit type tag, a 32-bit
// big-endian payload length, and the payload itself.
type Record struct {
	Type    MsgType
	Payload []byte
}

// Encode writes r's wire representation to w.
func (r Record) Encode(w io.Writer) error {
	if len(r.Payload) > maxRecordLength {
		return nerrors.Errorf(nerrors.KindInvalidArgument, "control-plane payload too large: %d bytes", len(r.Payload))
	}

	var header [5]byte
	header[0] = byte(r.Type)
	binary.BigEndian.PutUint32(header[1:], uint32(len(r.Payload)))

	if _, err := w.Write(header[:]); err != nil {
		return nerrors.Wrap(err, nerrors.KindInternal, "writing control-plane record header")
	}
	if len(r.Payload) == 0 {
		return nil
	}
	if _, err := w.Write(r.Payload); err != nil {
		return nerrors.Wrap(err, nerrors.KindInternal, "writing control-plane record payload")
	}
	return nil
}

// Decode reads one framed record from r. It refuses to allocate a payload
// buffer larger than maxRecordLength, and returns io.ErrUnexpectedEOF (via
// io.ReadFull) if r is closed mid-record rather than at a record boundary.
func Decode(r io.Reader) (Record, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, nerrors.Wrap(err, nerrors.KindInternal, "reading control-plane record header")
	}

	length := binary.BigEndian.Uint32(header[1:])
	if length > maxRecordLength {
		return Record{}, nerrors.Errorf(nerrors.KindInvalidArgument, "control-plane record claims %d bytes, over the %d limit", length, maxRecordLength)
	}

	rec := Record{Type: MsgType(header[0])}
	if length == 0 {
		return rec, nil
	}

	rec.Payload = make([]byte, length)
	if _, err := io.ReadFull(r, rec.Payload); err != nil {
		return Record{}, nerrors.Wrap(err, nerrors.KindInternal, "reading control-plane record payload")
	}
	return rec, nil
}
