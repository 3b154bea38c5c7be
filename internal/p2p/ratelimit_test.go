package p2p

import (
	"testing"
	"time"
)

func TestRateMeter_Empty(t *testing.T) {
	m := NewRateMeter()
	if m.Rate() != 0 {
		t.Errorf("fresh meter should read 0, got %d", m.Rate())
	}
}

func TestRateMeter_AveragesOverWindow(t *testing.T) {
	m := NewRateMeter()
	windowSecs := uint64(rateWindow / time.Second)

	// One full window's worth of bytes in a single burst averages out to
	// the per-second figure.
	m.Record(windowSecs * 500)
	if got := m.Rate(); got != 500 {
		t.Errorf("rate %d, want 500", got)
	}
}

func TestRateMeter_Accumulates(t *testing.T) {
	m := NewRateMeter()
	windowSecs := uint64(rateWindow / time.Second)

	m.Record(windowSecs * 100)
	m.Record(windowSecs * 100)
	if got := m.Rate(); got != 200 {
		t.Errorf("rate %d, want 200", got)
	}
}

func TestRateMeter_OldBucketsExpire(t *testing.T) {
	m := NewRateMeter()
	m.Record(1 << 20)

	// Simulate the window passing: the last observation is pushed far
	// into the past.
	m.mu.Lock()
	m.lastTick -= int64(len(m.buckets)) + 1
	m.mu.Unlock()

	if got := m.Rate(); got != 0 {
		t.Errorf("rate after the window passed should be 0, got %d", got)
	}
}
