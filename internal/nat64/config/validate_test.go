package config

import (
	"testing"
	"time"
)

func TestValidateRejectsBelowMinimumTTLs(t *testing.T) {
	snap := DefaultSnapshot()
	snap.TTLs.UDP = 1 * time.Second

	errs := snap.Validate()
	if !errs.HasErrors() {
		t.Fatalf("expected a validation error for a too-small UDP TTL")
	}
}

func TestValidateRejectsCeilingViolation(t *testing.T) {
	snap := DefaultSnapshot()
	snap.TTLs.TCPEst = (1 << 32) * time.Millisecond

	errs := snap.Validate()
	if !errs.HasErrors() {
		t.Fatalf("expected a validation error for a TTL at the 2^32ms ceiling")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	snap := DefaultSnapshot()
	if errs := snap.Validate(); errs.HasErrors() {
		t.Fatalf("default snapshot should validate cleanly, got: %s", errs.Error())
	}
}

func TestValidateRejectsZeroMaxStoredPkts(t *testing.T) {
	snap := DefaultSnapshot()
	snap.MaxStoredPkts = 0

	errs := snap.Validate()
	if !errs.HasErrors() {
		t.Fatalf("expected a validation error for max_stored_pkts == 0")
	}
}

func TestValidateMTUPlateausRejectsAllZero(t *testing.T) {
	if err := ValidateMTUPlateaus([]uint16{0, 0, 0}); err == nil {
		t.Fatalf("expected an error for an all-zero mtu_plateaus list")
	}
}

func TestValidateMTUPlateausAcceptsEmpty(t *testing.T) {
	if err := ValidateMTUPlateaus(nil); err != nil {
		t.Fatalf("expected no error for an empty mtu_plateaus list, got %v", err)
	}
}

func TestValidateMTUPlateausAcceptsNonZero(t *testing.T) {
	if err := ValidateMTUPlateaus([]uint16{0, 1500}); err != nil {
		t.Fatalf("expected no error when at least one entry is non-zero, got %v", err)
	}
}

func TestNormalizeMTUPlateausSortsStripsDedupes(t *testing.T) {
	got := NormalizeMTUPlateaus([]uint16{0, 1500, 1500, 0, 9000, 68})
	want := []uint16{9000, 1500, 68}

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
