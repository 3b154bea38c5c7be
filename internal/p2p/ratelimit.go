package p2p

import (
	"sync"
	"time"
)

// rateWindow is the rolling window over which byte rates are averaged.
const rateWindow = 10 * time.Second

// RateMeter measures an observed byte rate over a rolling window of
// one-second buckets. One meter per direction per connection.
type RateMeter struct {
	mu       sync.Mutex
	buckets  []uint64
	lastTick int64 // unix second of the most recent bucket
}

// NewRateMeter creates a meter over the default window.
func NewRateMeter() *RateMeter {
	return &RateMeter{
		buckets: make([]uint64, int(rateWindow/time.Second)),
	}
}

// Record adds n observed bytes at the current time.
func (m *RateMeter) Record(n uint64) {
	now := time.Now().Unix()
	m.mu.Lock()
	m.advance(now)
	m.buckets[now%int64(len(m.buckets))] += n
	m.mu.Unlock()
}

// Rate returns the average bytes/second over the window.
func (m *RateMeter) Rate() uint64 {
	now := time.Now().Unix()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advance(now)
	var total uint64
	for _, b := range m.buckets {
		total += b
	}
	return total / uint64(len(m.buckets))
}

// advance zeroes buckets for seconds that have passed since the last
// observation. Callers hold the lock.
func (m *RateMeter) advance(now int64) {
	if m.lastTick == 0 {
		m.lastTick = now
		return
	}
	gap := now - m.lastTick
	if gap <= 0 {
		return
	}
	if gap >= int64(len(m.buckets)) {
		for i := range m.buckets {
			m.buckets[i] = 0
		}
	} else {
		for s := m.lastTick + 1; s <= now; s++ {
			m.buckets[s%int64(len(m.buckets))] = 0
		}
	}
	m.lastTick = now
}
