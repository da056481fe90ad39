package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 3, CleanupInterval: time.Hour})
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("7") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("7") {
		t.Error("fourth request should be rejected")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	if !rl.Allow("7") {
		t.Fatal("first owner should be allowed")
	}
	if !rl.Allow("8") {
		t.Error("second owner should have its own window")
	}
	if rl.Allow("7") {
		t.Error("first owner should now be limited")
	}
	if got := rl.ActiveClients(); got != 2 {
		t.Errorf("ActiveClients = %d, want 2", got)
	}
}

func TestZeroConfigFallsBackToDefaults(t *testing.T) {
	rl := NewLimiter(Config{})
	defer rl.Stop()

	if rl.requestsPerMinute != 60 {
		t.Errorf("requestsPerMinute = %d, want 60", rl.requestsPerMinute)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	rl := NewLimiter(DefaultConfig())
	rl.Stop()
	rl.Stop()
}
