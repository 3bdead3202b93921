package metrics

import (
	"net/netip"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pierky/nat64d/internal/nat64/bib"
	"github.com/pierky/nat64d/internal/nat64/pool4"
	"github.com/pierky/nat64d/internal/nat64/session"
	"github.com/pierky/nat64d/internal/nat64/tuple"
)

func TestSyncGaugesReflectsLiveState(t *testing.T) {
	m := New()

	p4 := pool4.NewDB()
	require.NoError(t, p4.Add(1, tuple.UDP, pool4.IPv4Prefix{Addr: netip.MustParseAddr("192.0.2.0"), Len: 30}, pool4.PortRange{Min: 100, Max: 109}))

	bibDB := bib.NewDB()
	entry := &bib.Entry{
		IPv6:  tuple.Endpoint6{Addr: netip.MustParseAddr("2001:db8::1"), Port: 1},
		IPv4:  tuple.Endpoint4{Addr: netip.MustParseAddr("192.0.2.1"), Port: 100},
		Proto: tuple.UDP,
	}
	require.NoError(t, bibDB.AddDynamic(entry))

	sessions := session.NewTable(bibDB)
	key := session.Key{
		Remote6: entry.IPv6,
		Local6:  tuple.Endpoint6{Addr: netip.MustParseAddr("64:ff9b::1"), Port: 53},
		Local4:  entry.IPv4,
		Remote4: tuple.Endpoint4{Addr: netip.MustParseAddr("203.0.113.1"), Port: 53},
		Proto:   tuple.UDP,
	}
	sessions.Create(entry, key, session.Established, time.Now().Add(time.Minute))

	m.SyncGauges(p4, bibDB, sessions)

	require.Equal(t, float64(40), testutil.ToFloat64(m.Pool4TAddrs.WithLabelValues("udp")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.BIBEntries.WithLabelValues("udp")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Sessions.WithLabelValues("udp", "ESTABLISHED")))
}

func TestRegisterSucceeds(t *testing.T) {
	m := New()
	require.NoError(t, m.Register())
}
