package bwlimit

import (
	"testing"
	"time"
)

func TestRegisterClampsDebtToBurst(t *testing.T) {
	l := New(8<<20, 4096) // 8 MiB/s, 4096 byte burst
	var slept time.Duration
	l.sleep = func(d time.Duration) { slept += d }

	l.Register(1 << 20) // 1 MiB in one call, far exceeding burst

	if l.debt > l.burst {
		t.Errorf("debt %f exceeds burst %f", l.debt, l.burst)
	}
	if slept <= 0 {
		t.Errorf("expected a sleep to be requested for an over-burst registration")
	}
}

func TestRecommendedReadSizeBoundedByBurst(t *testing.T) {
	l := New(1<<20, 1024)
	l.sleep = func(time.Duration) {}
	got := l.RecommendedReadSize(8192)
	if got > 1024 {
		t.Errorf("recommended read size %d exceeds burst 1024", got)
	}
}

func TestUnlimitedNeverRestricts(t *testing.T) {
	var u Unlimited
	if got := u.RecommendedReadSize(65536); got != 65536 {
		t.Errorf("got %d, want 65536", got)
	}
}
