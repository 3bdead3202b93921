package session

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pierky/nat64d/internal/nat64/bib"
	"github.com/pierky/nat64d/internal/nat64/logging"
	"github.com/pierky/nat64d/internal/nat64/tuple"
)

func TestSweeperRemovesExpiredSessionsEventually(t *testing.T) {
	bibDB := bib.NewDB()
	entry := &bib.Entry{
		IPv6:  tuple.Endpoint6{Addr: netip.MustParseAddr("2001:db8::1"), Port: 1},
		IPv4:  tuple.Endpoint4{Addr: netip.MustParseAddr("192.0.2.1"), Port: 1},
		Proto: tuple.UDP,
	}
	require.NoError(t, bibDB.AddDynamic(entry))

	table := NewTable(bibDB)
	key := Key{
		Remote6: tuple.Endpoint6{Addr: netip.MustParseAddr("2001:db8::2"), Port: 2},
		Local6:  entry.IPv6,
		Local4:  entry.IPv4,
		Remote4: tuple.Endpoint4{Addr: netip.MustParseAddr("203.0.113.1"), Port: 53},
		Proto:   tuple.UDP,
	}
	table.Create(entry, key, Established, time.Now().Add(20*time.Millisecond))

	sw := NewSweeper(table, logging.New(nil), 10*time.Millisecond, 50*time.Millisecond)
	sw.Start()
	defer sw.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if table.Count(tuple.UDP) == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, 0, table.Count(tuple.UDP))
	assert.Equal(t, 0, bibDB.RefCount(entry))
}

func TestSweeperStopIsIdempotentAndBlocksUntilExit(t *testing.T) {
	bibDB := bib.NewDB()
	table := NewTable(bibDB)
	sw := NewSweeper(table, logging.New(nil), 10*time.Millisecond, 50*time.Millisecond)
	sw.Start()
	sw.Stop()
}
