package p2p

import (
	"sync"
	"time"

	klog "github.com/shroudnet/shroud-node/internal/log"
)

// BanDuration is how long a ban lasts before the peer may reconnect.
const BanDuration = 24 * time.Hour

// BanManager tracks banned peers by ip:port address. Bans are persisted
// through the BanStore and honoured on subsequent dial and accept attempts.
type BanManager struct {
	mu    sync.RWMutex
	bans  map[string]*BanRecord // In-memory ban cache by address.
	store *BanStore             // Persistence (nil for tests).
}

// NewBanManager creates a new BanManager.
// store may be nil to disable persistence (useful for tests).
func NewBanManager(store *BanStore) *BanManager {
	return &BanManager{
		bans:  make(map[string]*BanRecord),
		store: store,
	}
}

// LoadBans restores persisted bans from the store into the in-memory cache.
func (bm *BanManager) LoadBans() {
	if bm.store == nil {
		return
	}

	// Prune expired bans first.
	bm.store.PruneExpired()

	bm.mu.Lock()
	defer bm.mu.Unlock()

	bm.store.ForEach(func(rec *BanRecord) error {
		if !rec.IsExpired() {
			bm.bans[rec.Addr] = rec
		}
		return nil
	})
}

// Ban records a ban for the peer at addr with the given reason.
func (bm *BanManager) Ban(addr string, reason BanReason) {
	now := time.Now()
	rec := &BanRecord{
		Addr:      addr,
		Reason:    reason,
		BannedAt:  now.Unix(),
		ExpiresAt: now.Add(BanDuration).Unix(),
	}

	bm.mu.Lock()
	bm.bans[addr] = rec
	bm.mu.Unlock()

	if bm.store != nil {
		bm.store.Put(rec)
	}

	klog.P2P.Warn().
		Str("peer", addr).
		Str("reason", reason.String()).
		Msg("Peer banned")
}

// IsBanned returns true if the peer at addr is currently banned.
func (bm *BanManager) IsBanned(addr string) bool {
	bm.mu.RLock()
	rec, ok := bm.bans[addr]
	bm.mu.RUnlock()

	if !ok {
		return false
	}

	if rec.IsExpired() {
		// Clean up expired ban.
		bm.mu.Lock()
		delete(bm.bans, addr)
		bm.mu.Unlock()
		if bm.store != nil {
			bm.store.Delete(addr)
		}
		return false
	}

	return true
}

// Unban manually removes a ban.
func (bm *BanManager) Unban(addr string) {
	bm.mu.Lock()
	delete(bm.bans, addr)
	bm.mu.Unlock()

	if bm.store != nil {
		bm.store.Delete(addr)
	}
}

// ClearAll removes every ban, in memory and persisted.
func (bm *BanManager) ClearAll() {
	bm.mu.Lock()
	bm.bans = make(map[string]*BanRecord)
	bm.mu.Unlock()

	if bm.store != nil {
		bm.store.Clear()
	}
}

// BanList returns a snapshot of all active bans.
func (bm *BanManager) BanList() []BanRecord {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	var list []BanRecord
	for _, rec := range bm.bans {
		if !rec.IsExpired() {
			list = append(list, *rec)
		}
	}
	return list
}

// RunPruneLoop periodically prunes expired bans.
// Call in a goroutine. Stops when done channel is closed.
func (bm *BanManager) RunPruneLoop(done <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			bm.pruneExpired()
		}
	}
}

func (bm *BanManager) pruneExpired() {
	bm.mu.Lock()
	var expired []string
	for addr, rec := range bm.bans {
		if rec.IsExpired() {
			expired = append(expired, addr)
		}
	}
	for _, addr := range expired {
		delete(bm.bans, addr)
	}
	bm.mu.Unlock()

	if bm.store != nil {
		bm.store.PruneExpired()
	}
}
