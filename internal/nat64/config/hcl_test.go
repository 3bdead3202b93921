package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHCL = `
nat64 {
  ttl {
    udp       = "5m"
    icmp      = "1m1s"
    tcp_est   = "2h4m"
    tcp_trans = "4m"
    frag      = "3s"
  }
  max_stored_pkts          = 15
  src_icmp6errs_better     = false
  f_args                   = ["src_addr", "dst_addr"]
  handle_rst_during_fin_rcv = true
  drop_by_addr             = true
  drop_external_tcp        = true
  drop_icmp6_info          = true
}
mtu_plateaus = [0, 1500, 1500, 68]
`

func TestDecodeAppliesEveryField(t *testing.T) {
	snap, err := Decode("test.hcl", []byte(sampleHCL), DefaultSnapshot())
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, snap.TTLs.UDP)
	assert.Equal(t, 61*time.Second, snap.TTLs.ICMP)
	assert.Equal(t, 2*time.Hour+4*time.Minute, snap.TTLs.TCPEst)
	assert.Equal(t, 4*time.Minute, snap.TTLs.TCPTrans)
	assert.Equal(t, 3*time.Second, snap.TTLs.Frag)
	assert.Equal(t, uint32(15), snap.MaxStoredPkts)
	assert.False(t, snap.SrcICMP6ErrsBetter)
	assert.True(t, snap.HandleRSTDuringFinRcv)
	assert.True(t, snap.DropByAddr)
	assert.True(t, snap.DropExternalTCP)
	assert.True(t, snap.DropICMP6Info)
	assert.Equal(t, []uint16{1500, 68}, snap.MTUPlateaus)
}

func TestDecodeRejectsUnknownFArg(t *testing.T) {
	bad := `nat64 { f_args = ["bogus"] }`
	_, err := Decode("bad.hcl", []byte(bad), DefaultSnapshot())
	require.Error(t, err)
}

func TestDecodeRejectsTTLBelowMinimum(t *testing.T) {
	bad := `nat64 { ttl { udp = "1s" } }`
	_, err := Decode("bad.hcl", []byte(bad), DefaultSnapshot())
	require.Error(t, err)
}

func TestDecodeRejectsAllZeroMTUPlateaus(t *testing.T) {
	bad := `mtu_plateaus = [0, 0]`
	_, err := Decode("bad.hcl", []byte(bad), DefaultSnapshot())
	require.Error(t, err)
}

func TestEncodeDecodeRoundTrips(t *testing.T) {
	snap, err := Decode("test.hcl", []byte(sampleHCL), DefaultSnapshot())
	require.NoError(t, err)

	rendered := Encode(snap)
	again, err := Decode("rendered.hcl", []byte(rendered), DefaultSnapshot())
	require.NoError(t, err)

	assert.Equal(t, snap.TTLs, again.TTLs)
	assert.Equal(t, snap.MaxStoredPkts, again.MaxStoredPkts)
	assert.Equal(t, snap.FArgs, again.FArgs)
	assert.Equal(t, snap.MTUPlateaus, again.MTUPlateaus)
}

func TestEncodeRendersTTLsAsMilliseconds(t *testing.T) {
	snap := DefaultSnapshot()
	snap.TTLs.UDP = 5 * time.Minute

	rendered := Encode(snap)
	assert.Contains(t, rendered, `udp       = "300000ms"`)
	assert.NotContains(t, rendered, "5m0s")
}

func TestDecodeFallsBackToBaseForOmittedBlock(t *testing.T) {
	base := DefaultSnapshot()
	base.MaxStoredPkts = 77

	snap, err := Decode("empty.hcl", []byte(`nat64 {}`), base)
	require.NoError(t, err)
	assert.Equal(t, uint32(77), snap.MaxStoredPkts)
}
