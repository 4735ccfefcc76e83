package graflow

import (
	"testing"
	"time"
)

func TestRetryPolicyNextDelayCapped(t *testing.T) {
	p := RetryPolicy{
		InitialInterval: 1 * time.Second,
		Multiplier:      2.0,
		MaxInterval:     5 * time.Second,
		MaxAttempts:     10,
	}
	for attempt := 0; attempt < 10; attempt++ {
		d := p.NextDelay(attempt)
		if d > p.MaxInterval {
			t.Fatalf("NextDelay(%d) = %v exceeds MaxInterval %v", attempt, d, p.MaxInterval)
		}
		if d < 0 {
			t.Fatalf("NextDelay(%d) = %v must not be negative", attempt, d)
		}
	}
}

func TestRetryPolicyNextDelayNonDecreasingBeforeCap(t *testing.T) {
	p := RetryPolicy{
		InitialInterval: 1 * time.Second,
		Multiplier:      2.0,
		MaxInterval:     1 * time.Hour,
		MaxAttempts:     5,
	}
	// jitter is in [1.0, 1.25), so worst case attempt i's delay floor
	// (no jitter) must still exceed attempt i-1's delay ceiling (with
	// jitter) once the multiplier has enough room: using multiplier 2 the
	// floor at attempt+1 is 2x the attempt's raw value, comfortably above
	// a 1.25x jitter ceiling.
	prevMax := time.Duration(0)
	for attempt := 0; attempt < 5; attempt++ {
		raw := float64(p.InitialInterval) * pow2(attempt)
		floor := time.Duration(raw)
		if floor < prevMax {
			t.Fatalf("attempt %d floor %v is below previous attempt's jittered max %v", attempt, floor, prevMax)
		}
		prevMax = time.Duration(raw * 1.25)
	}
}

func pow2(n int) float64 {
	out := 1.0
	for i := 0; i < n; i++ {
		out *= 2
	}
	return out
}

func TestRetryPolicyNextRetryAt(t *testing.T) {
	p := DefaultRetryPolicy()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	at := p.NextRetryAt(0, now)
	if !at.After(now) {
		t.Error("NextRetryAt must be strictly after now")
	}
}

func TestDefaultRetryPolicyMatchesSpecDefaults(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.InitialInterval != 1*time.Second {
		t.Errorf("InitialInterval = %v, want 1s", p.InitialInterval)
	}
	if p.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want 2.0", p.Multiplier)
	}
	if p.MaxInterval != 60*time.Second {
		t.Errorf("MaxInterval = %v, want 60s", p.MaxInterval)
	}
	if p.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %v, want 3", p.MaxAttempts)
	}
}
