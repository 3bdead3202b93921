package metrics

import (
	"strconv"

	"github.com/pierky/nat64d/internal/nat64/bib"
	"github.com/pierky/nat64d/internal/nat64/pool4"
	"github.com/pierky/nat64d/internal/nat64/session"
	"github.com/pierky/nat64d/internal/nat64/tuple"
)

var protoNames = [...]string{tuple.UDP: "udp", tuple.TCP: "tcp", tuple.ICMP: "icmp"}

func protoLabel(p tuple.L4Proto) string {
	if int(p) < len(protoNames) {
		return protoNames[p]
	}
	return strconv.Itoa(int(p))
}

var allProtos = []tuple.L4Proto{tuple.UDP, tuple.TCP, tuple.ICMP}

// SyncGauges refreshes the point-in-time gauges (pool4/BIB/session counts)
// from the live tables. Counters (allocations, exhaustions) are updated
// in-line by their callers instead, since they are events rather than
// snapshots.
func (m *Metrics) SyncGauges(pool4DB *pool4.DB, bibDB *bib.DB, sessions *session.Table) {
	for _, proto := range allProtos {
		label := protoLabel(proto)
		m.Pool4TAddrs.WithLabelValues(label).Set(float64(pool4DB.TotalTAddrs(proto)))
		m.BIBEntries.WithLabelValues(label).Set(float64(bibDB.Count(proto)))

		for state, count := range sessions.CountByState(proto) {
			m.Sessions.WithLabelValues(label, state.String()).Set(float64(count))
		}
	}
}
