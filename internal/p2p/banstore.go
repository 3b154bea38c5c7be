package p2p

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shroudnet/shroud-node/internal/storage"
)

const banKeyPrefix = "ban/"

// BanReason is the machine-readable cause of a peer ban, persisted with
// the ban record and sent to the peer in a BanReason message.
type BanReason uint32

const (
	BanNone BanReason = iota
	BanBadBlock
	BanBadCompactBlock
	BanBadBlockHeader
	BanBadTxHashSet
	BanManual
	BanFraudHeight
	BanBadHandshake
	BanBadTransaction
)

// String returns the ban reason name.
func (r BanReason) String() string {
	switch r {
	case BanNone:
		return "none"
	case BanBadBlock:
		return "bad_block"
	case BanBadCompactBlock:
		return "bad_compact_block"
	case BanBadBlockHeader:
		return "bad_block_header"
	case BanBadTxHashSet:
		return "bad_txhashset"
	case BanManual:
		return "manual"
	case BanFraudHeight:
		return "fraud_height"
	case BanBadHandshake:
		return "bad_handshake"
	case BanBadTransaction:
		return "bad_transaction"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(r))
	}
}

// BanRecord is a persisted ban entry, keyed by the peer's host address.
type BanRecord struct {
	Addr      string    `json:"addr"`
	Reason    BanReason `json:"reason"`
	BannedAt  int64     `json:"banned_at"`  // Unix timestamp
	ExpiresAt int64     `json:"expires_at"` // Unix timestamp (0 = permanent)
}

// IsExpired returns true if the ban has a non-zero expiry that has passed.
func (r *BanRecord) IsExpired() bool {
	return r.ExpiresAt > 0 && time.Now().Unix() >= r.ExpiresAt
}

// BanStore persists ban records in a storage.DB under the "ban/" prefix.
type BanStore struct {
	db storage.DB
}

// NewBanStore creates a new BanStore backed by the given DB.
func NewBanStore(db storage.DB) *BanStore {
	return &BanStore{db: db}
}

func banKey(addr string) []byte {
	return []byte(banKeyPrefix + addr)
}

// Get retrieves a ban record by peer address.
func (bs *BanStore) Get(addr string) (*BanRecord, error) {
	data, err := bs.db.Get(banKey(addr))
	if err != nil {
		return nil, err
	}
	var rec BanRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal ban record: %w", err)
	}
	return &rec, nil
}

// Put persists a ban record.
func (bs *BanStore) Put(rec *BanRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal ban record: %w", err)
	}
	return bs.db.Put(banKey(rec.Addr), data)
}

// Delete removes a ban record.
func (bs *BanStore) Delete(addr string) error {
	return bs.db.Delete(banKey(addr))
}

// ForEach iterates over all ban records.
func (bs *BanStore) ForEach(fn func(*BanRecord) error) error {
	return bs.db.ForEach([]byte(banKeyPrefix), func(key, value []byte) error {
		var rec BanRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil // Skip corrupt records.
		}
		return fn(&rec)
	})
}

// Clear deletes every ban record.
func (bs *BanStore) Clear() error {
	var toDelete [][]byte
	err := bs.db.ForEach([]byte(banKeyPrefix), func(key, _ []byte) error {
		keyCopy := make([]byte, len(key))
		copy(keyCopy, key)
		toDelete = append(toDelete, keyCopy)
		return nil
	})
	if err != nil {
		return fmt.Errorf("iterate for clear: %w", err)
	}
	for _, k := range toDelete {
		if err := bs.db.Delete(k); err != nil {
			return fmt.Errorf("delete ban: %w", err)
		}
	}
	return nil
}

// PruneExpired removes all expired ban records. Returns the number pruned.
func (bs *BanStore) PruneExpired() (int, error) {
	now := time.Now().Unix()
	var toDelete [][]byte

	err := bs.db.ForEach([]byte(banKeyPrefix), func(key, value []byte) error {
		var rec BanRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			keyCopy := make([]byte, len(key))
			copy(keyCopy, key)
			toDelete = append(toDelete, keyCopy)
			return nil
		}
		if rec.ExpiresAt > 0 && now >= rec.ExpiresAt {
			keyCopy := make([]byte, len(key))
			copy(keyCopy, key)
			toDelete = append(toDelete, keyCopy)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("iterate for prune: %w", err)
	}

	for _, k := range toDelete {
		if err := bs.db.Delete(k); err != nil {
			return 0, fmt.Errorf("delete expired ban: %w", err)
		}
	}
	return len(toDelete), nil
}
