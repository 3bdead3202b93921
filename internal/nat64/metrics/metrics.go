// Package metrics exposes nat64d's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector nat64d exports.
type Metrics struct {
	Pool4TAddrs       *prometheus.GaugeVec
	BIBEntries        *prometheus.GaugeVec
	Sessions          *prometheus.GaugeVec
	PallocExhausted   *prometheus.CounterVec
	PallocAllocations *prometheus.CounterVec
}

// New builds a Metrics with every collector constructed; none is registered
// with a registry until Register is called.
func New() *Metrics {
	return &Metrics{
		Pool4TAddrs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nat64_pool4_taddrs_total",
			Help: "Number of (address, port) transport addresses available in pool4, by protocol.",
		}, []string{"proto"}),

		BIBEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nat64_bib_entries",
			Help: "Number of live BIB entries, by protocol.",
		}, []string{"proto"}),

		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nat64_sessions",
			Help: "Number of live sessions, by protocol and TCP FSM state.",
		}, []string{"proto", "state"}),

		PallocExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nat64_palloc_exhausted_total",
			Help: "Total number of port allocations that failed because pool4 had no free transport address, by protocol.",
		}, []string{"proto"}),

		PallocAllocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nat64_palloc_allocations_total",
			Help: "Total number of successful port allocations, by protocol.",
		}, []string{"proto"}),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Pool4TAddrs.Describe(ch)
	m.BIBEntries.Describe(ch)
	m.Sessions.Describe(ch)
	m.PallocExhausted.Describe(ch)
	m.PallocAllocations.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Pool4TAddrs.Collect(ch)
	m.BIBEntries.Collect(ch)
	m.Sessions.Collect(ch)
	m.PallocExhausted.Collect(ch)
	m.PallocAllocations.Collect(ch)
}

// Register registers m with the default Prometheus registry.
func (m *Metrics) Register() error {
	return prometheus.Register(m)
}
