package ctlplane

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrips(t *testing.T) {
	rec := Record{Type: MsgSet, Payload: []byte("nat64.ttl.udp=300s")}

	var buf bytes.Buffer
	require.NoError(t, rec.Encode(&buf))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, rec.Type, got.Type)
	assert.Equal(t, rec.Payload, got.Payload)
}

func TestRecordEmptyPayloadRoundTrips(t *testing.T) {
	rec := Record{Type: MsgDisplay}

	var buf bytes.Buffer
	require.NoError(t, rec.Encode(&buf))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgDisplay, got.Type)
	assert.Empty(t, got.Payload)
}

func TestDecodeReturnsEOFOnEmptyReader(t *testing.T) {
	_, err := Decode(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeRejectsTruncatedHeader(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{byte(MsgEnable), 0x00, 0x00}))
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(MsgSet))
	buf.Write([]byte{0x00, 0x00, 0x00, 0x10}) // claims 16 bytes
	buf.Write([]byte("short"))

	_, err := Decode(&buf)
	require.Error(t, err)
}

func TestDecodeRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(MsgSet))
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	_, err := Decode(&buf)
	require.Error(t, err)
}

func TestMsgTypeString(t *testing.T) {
	assert.Equal(t, "ENABLE", MsgEnable.String())
	assert.Equal(t, "POOL4_ADD", MsgPool4Add.String())
}
