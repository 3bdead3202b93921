package ctlplane

import (
	"encoding/binary"
	"net/netip"

	nerrors "github.com/pierky/nat64d/internal/nat64/errors"
	"github.com/pierky/nat64d/internal/nat64/tuple"
)

// SetRequest carries a key/value pair for MsgSet (one HCL field path per
// message, matching the HCL decoder's per-field overrides in
// internal/nat64/config).
type SetRequest struct {
	Field string
	Value string
}

// EncodeSetRequest serializes a SetRequest payload.
func EncodeSetRequest(req SetRequest) []byte {
	return encodeStrings(req.Field, req.Value)
}

// DecodeSetRequest parses a MsgSet payload.
func DecodeSetRequest(payload []byte) (SetRequest, error) {
	parts, err := decodeStrings(payload, 2)
	if err != nil {
		return SetRequest{}, err
	}
	return SetRequest{Field: parts[0], Value: parts[1]}, nil
}

// Pool4Request carries a pool4 mutation for MsgPool4Add/MsgPool4Rm.
type Pool4Request struct {
	Mark      uint32
	Proto     tuple.L4Proto
	Prefix    netip.Addr
	PrefixLen uint8
	PortMin   uint16
	PortMax   uint16
}

// EncodePool4Request serializes a Pool4Request payload.
func EncodePool4Request(req Pool4Request) []byte {
	buf := make([]byte, 4+1+4+1+2+2)
	binary.BigEndian.PutUint32(buf[0:4], req.Mark)
	buf[4] = byte(req.Proto)
	addr4 := req.Prefix.As4()
	copy(buf[5:9], addr4[:])
	buf[9] = req.PrefixLen
	binary.BigEndian.PutUint16(buf[10:12], req.PortMin)
	binary.BigEndian.PutUint16(buf[12:14], req.PortMax)
	return buf
}

// DecodePool4Request parses a MsgPool4Add/MsgPool4Rm payload.
func DecodePool4Request(payload []byte) (Pool4Request, error) {
	if len(payload) != 14 {
		return Pool4Request{}, nerrors.Errorf(nerrors.KindInvalidArgument, "pool4 request payload must be 14 bytes, got %d", len(payload))
	}
	var addrBytes [4]byte
	copy(addrBytes[:], payload[5:9])
	return Pool4Request{
		Mark:      binary.BigEndian.Uint32(payload[0:4]),
		Proto:     tuple.L4Proto(payload[4]),
		Prefix:    netip.AddrFrom4(addrBytes),
		PrefixLen: payload[9],
		PortMin:   binary.BigEndian.Uint16(payload[10:12]),
		PortMax:   binary.BigEndian.Uint16(payload[12:14]),
	}, nil
}

// DisplayResponse carries a free-form rendered table (pool4/BIB/session
// listings, config dumps) back to the CLI. The framing only needs to move
// the rendered text; formatting stays the caller's concern.
type DisplayResponse struct {
	Text string
}

// EncodeDisplayResponse serializes a DisplayResponse payload.
func EncodeDisplayResponse(resp DisplayResponse) []byte {
	return []byte(resp.Text)
}

// DecodeDisplayResponse parses a MsgDisplay response payload.
func DecodeDisplayResponse(payload []byte) DisplayResponse {
	return DisplayResponse{Text: string(payload)}
}

// encodeStrings joins a fixed arity of strings behind 16-bit length
// prefixes so fields can contain arbitrary bytes.
func encodeStrings(parts ...string) []byte {
	size := 0
	for _, p := range parts {
		size += 2 + len(p)
	}
	buf := make([]byte, 0, size)
	for _, p := range parts {
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(p)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, p...)
	}
	return buf
}

func decodeStrings(payload []byte, count int) ([]string, error) {
	out := make([]string, 0, count)
	rest := payload
	for i := 0; i < count; i++ {
		if len(rest) < 2 {
			return nil, nerrors.Errorf(nerrors.KindInvalidArgument, "truncated string field %d", i)
		}
		n := int(binary.BigEndian.Uint16(rest[0:2]))
		rest = rest[2:]
		if len(rest) < n {
			return nil, nerrors.Errorf(nerrors.KindInvalidArgument, "truncated string field %d: need %d bytes, have %d", i, n, len(rest))
		}
		out = append(out, string(rest[:n]))
		rest = rest[n:]
	}
	return out, nil
}
