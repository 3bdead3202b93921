package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// fragmentMin is FRAGMENT_MIN, the floor below which the fragment
// reassembly TTL is rejected.
const fragmentMin = 2 * time.Second

// maxDuration is the "values >= 2^32 ms are rejected" ceiling.
const maxDuration = (1 << 32) * time.Millisecond

// ValidationError is a single configuration problem, named by the field
// it concerns.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one pass over a
// Snapshot, rather than stopping at the first.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// HasErrors reports whether any problem was found.
func (e ValidationErrors) HasErrors() bool { return len(e) > 0 }

// Validate checks s against the timeout minima/maxima and returns
// every violation found.
func (s *Snapshot) Validate() ValidationErrors {
	var errs ValidationErrors
	errs = append(errs, s.validateTTLs()...)
	errs = append(errs, s.validateCounts()...)
	return errs
}

func (s *Snapshot) validateTTLs() ValidationErrors {
	var errs ValidationErrors

	check := func(field string, d, min time.Duration) {
		if d < min {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("%s is below the minimum of %s", d, min)})
		}
		if d >= maxDuration {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("%s is at or above the 2^32ms ceiling", d)})
		}
	}

	check("nat64.ttl.udp", s.TTLs.UDP, 300*time.Second)
	check("nat64.ttl.tcp_est", s.TTLs.TCPEst, 7440*time.Second)
	check("nat64.ttl.tcp_trans", s.TTLs.TCPTrans, 240*time.Second)
	check("nat64.ttl.frag", s.TTLs.Frag, fragmentMin)
	// ICMP has no published floor beyond the general 2^32ms ceiling.
	if s.TTLs.ICMP >= maxDuration {
		errs = append(errs, ValidationError{Field: "nat64.ttl.icmp", Message: "at or above the 2^32ms ceiling"})
	}

	return errs
}

func (s *Snapshot) validateCounts() ValidationErrors {
	var errs ValidationErrors
	if s.MaxStoredPkts == 0 {
		errs = append(errs, ValidationError{Field: "nat64.max_stored_pkts", Message: "must be at least 1"})
	}
	return errs
}

// ValidateMTUPlateaus rejects a non-empty mtu_plateaus list whose entries
// are all 0, mirroring update_plateaus()'s "if (list[0] == 0) return
// -EINVAL" check: a list that normalizes to nothing is a configuration
// mistake, not a valid "no plateaus" request. Must run against the raw
// list before NormalizeMTUPlateaus strips the zeros.
func ValidateMTUPlateaus(plateaus []uint16) error {
	if len(plateaus) == 0 {
		return nil
	}
	for _, p := range plateaus {
		if p != 0 {
			return nil
		}
	}
	return ValidationError{Field: "mtu_plateaus", Message: "must not be an all-zero list"}
}

// NormalizeMTUPlateaus sorts plateaus descending, strips zero entries, and
// deduplicates, per the "sorted descending, zero-stripped,
// deduplicated" rule for mtu_plateaus.
func NormalizeMTUPlateaus(plateaus []uint16) []uint16 {
	seen := make(map[uint16]bool, len(plateaus))
	out := make([]uint16, 0, len(plateaus))
	for _, p := range plateaus {
		if p == 0 || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}
