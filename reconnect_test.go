package eftl

import (
	"testing"
	"time"
)

func TestBackoffDelay_FirstAttemptJittered(t *testing.T) {
	for range 50 {
		var first time.Duration
		d := backoffDelay(0, &first, 30*time.Second)
		if d < 500*time.Millisecond || d >= 1500*time.Millisecond {
			t.Fatalf("attempt 0 delay %v outside [0.5s, 1.5s)", d)
		}
		if first != d {
			t.Fatalf("first delay not remembered: %v != %v", first, d)
		}
	}
}

func TestBackoffDelay_ExponentialGrowth(t *testing.T) {
	first := time.Second
	tests := []struct {
		k    int
		want time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.k, &first, 30*time.Second); got != tt.want {
			t.Errorf("attempt %d: got %v, want %v", tt.k, got, tt.want)
		}
	}
}

func TestBackoffDelay_CappedAtMaxDelay(t *testing.T) {
	first := time.Second
	maxDelay := 5 * time.Second
	for k := 3; k < 40; k++ {
		if got := backoffDelay(k, &first, maxDelay); got != maxDelay {
			t.Errorf("attempt %d: got %v, want cap %v", k, got, maxDelay)
		}
	}
}
