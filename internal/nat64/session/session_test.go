package session

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pierky/nat64d/internal/nat64/bib"
	"github.com/pierky/nat64d/internal/nat64/tuple"
)

func ep6(addr string, port uint16) tuple.Endpoint6 {
	return tuple.Endpoint6{Addr: netip.MustParseAddr(addr), Port: port}
}

func ep4(addr string, port uint16) tuple.Endpoint4 {
	return tuple.Endpoint4{Addr: netip.MustParseAddr(addr), Port: port}
}

func newFixture(t *testing.T) (*bib.DB, *bib.Entry, *Table) {
	t.Helper()
	bibDB := bib.NewDB()
	entry := &bib.Entry{
		IPv6:  ep6("2001:db8::1", 1000),
		IPv4:  ep4("192.0.2.1", 2000),
		Proto: tuple.TCP,
	}
	require.NoError(t, bibDB.AddDynamic(entry))
	return bibDB, entry, NewTable(bibDB)
}

func testKey(proto tuple.L4Proto) Key {
	return Key{
		Remote6: ep6("2001:db8::2", 5000),
		Local6:  ep6("2001:db8::1", 1000),
		Local4:  ep4("192.0.2.1", 2000),
		Remote4: ep4("203.0.113.1", 80),
		Proto:   proto,
	}
}

func TestCreateIncrementsBIBRefcount(t *testing.T) {
	bibDB, entry, table := newFixture(t)
	now := time.Now()

	s := table.Create(entry, testKey(tuple.TCP), Closed, now.Add(time.Minute))
	assert.Equal(t, 1, bibDB.RefCount(entry))
	assert.Same(t, entry, s.BIB)

	got, ok := table.Lookup(testKey(tuple.TCP))
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestRemoveDecrementsAndCleansUpNonStaticEntry(t *testing.T) {
	bibDB, entry, table := newFixture(t)
	now := time.Now()

	s := table.Create(entry, testKey(tuple.TCP), Closed, now.Add(time.Minute))
	table.Remove(s)

	_, ok := table.Lookup(testKey(tuple.TCP))
	assert.False(t, ok)
	assert.Equal(t, 0, bibDB.RefCount(entry))

	_, ok = bibDB.Get6(tuple.TCP, entry.IPv6)
	assert.False(t, ok, "non-static BIB entry must be removed once its last session is gone")
}

func TestTransitionReordersDeadlineHeap(t *testing.T) {
	_, entry, table := newFixture(t)
	now := time.Now()

	key := testKey(tuple.TCP)
	s := table.Create(entry, key, Closed, now.Add(10*time.Second))

	table.Transition(s, V6Init, now.Add(1*time.Second))
	assert.Equal(t, V6Init, s.State)

	earliest, ok := table.earliestDeadline()
	require.True(t, ok)
	assert.WithinDuration(t, now.Add(1*time.Second), earliest, 50*time.Millisecond)
}

func TestSweepRemovesExpiredAndDecrementsBIB(t *testing.T) {
	bibDB, entry, table := newFixture(t)
	now := time.Now()

	key := testKey(tuple.TCP)
	s := table.Create(entry, key, Established, now.Add(-time.Second))
	_ = s

	removed := table.Sweep(now)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, bibDB.RefCount(entry))

	_, ok := table.Lookup(key)
	assert.False(t, ok)
}

func TestSweepKeepsUnexpiredSessions(t *testing.T) {
	_, entry, table := newFixture(t)
	now := time.Now()

	key := testKey(tuple.UDP)
	table.Create(entry, key, Established, now.Add(time.Hour))

	removed := table.Sweep(now)
	assert.Equal(t, 0, removed)

	_, ok := table.Lookup(key)
	assert.True(t, ok)
}

func TestSessionsForEntryTracksMultipleFlows(t *testing.T) {
	bibDB, entry, table := newFixture(t)
	now := time.Now()

	k1 := testKey(tuple.TCP)
	k2 := testKey(tuple.TCP)
	k2.Remote6 = ep6("2001:db8::3", 5001)

	s1 := table.Create(entry, k1, Established, now.Add(time.Minute))
	s2 := table.Create(entry, k2, Established, now.Add(time.Minute))

	sessions := table.SessionsForEntry(entry)
	assert.ElementsMatch(t, []*Session{s1, s2}, sessions)
	assert.Equal(t, 2, bibDB.RefCount(entry))
}

func TestCountReflectsLiveSessions(t *testing.T) {
	_, entry, table := newFixture(t)
	now := time.Now()

	assert.Equal(t, 0, table.Count(tuple.TCP))
	table.Create(entry, testKey(tuple.TCP), Established, now.Add(time.Minute))
	assert.Equal(t, 1, table.Count(tuple.TCP))
}

func TestTTLsDeadline(t *testing.T) {
	ttls := TTLs{UDP: 5 * time.Minute, ICMP: time.Minute, TCPEst: 2 * time.Hour, TCPTrans: 4 * time.Minute}
	now := time.Now()

	assert.WithinDuration(t, now.Add(5*time.Minute), ttls.Deadline(now, TTLUDP), time.Millisecond)
	assert.WithinDuration(t, now.Add(time.Minute), ttls.Deadline(now, TTLICMP), time.Millisecond)
	assert.WithinDuration(t, now.Add(2*time.Hour), ttls.Deadline(now, TTLTCPEst), time.Millisecond)
	assert.WithinDuration(t, now.Add(4*time.Minute), ttls.Deadline(now, TTLTCPTrans), time.Millisecond)
	assert.WithinDuration(t, now.Add(tcpV4InitGrace), ttls.Deadline(now, TTLTCPV4InitFixed), time.Millisecond)
}
