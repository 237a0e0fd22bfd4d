package store

import (
	"testing"
	"time"
)

func TestEligibilityCutoff(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	cycle := 5 * time.Minute
	cutoff := eligibilityCutoff(now, cycle)

	// An agent that engaged a full cycle ago is due.
	fullCycleAgo := now.Add(-5 * time.Minute)
	if !fullCycleAgo.Before(cutoff) {
		t.Errorf("agent engaged %v ago should be eligible", now.Sub(fullCycleAgo))
	}

	// The one-minute grace admits an agent that ran slightly early last sweep.
	graceAgo := now.Add(-4*time.Minute - 30*time.Second)
	if !graceAgo.Before(cutoff) {
		t.Errorf("agent engaged %v ago should be inside the grace window", now.Sub(graceAgo))
	}

	// An agent that just engaged is not due.
	justRan := now.Add(-3 * time.Minute)
	if justRan.Before(cutoff) {
		t.Errorf("agent engaged %v ago should not be eligible", now.Sub(justRan))
	}
}

func TestEligibilityCutoffLongCycle(t *testing.T) {
	now := time.Now()
	cutoff := eligibilityCutoff(now, 10*time.Minute)
	if want := now.Add(-9 * time.Minute); !cutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", cutoff, want)
	}
}
