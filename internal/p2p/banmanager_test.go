package p2p

import (
	"testing"
	"time"

	"github.com/shroudnet/shroud-node/internal/storage"
)

func TestBanManager_BanAndCheck(t *testing.T) {
	bm := NewBanManager(nil)

	bm.Ban("203.0.113.1", BanBadBlock)
	if !bm.IsBanned("203.0.113.1") {
		t.Error("peer should be banned")
	}
	if bm.IsBanned("203.0.113.2") {
		t.Error("other peers should not be banned")
	}
}

func TestBanManager_Unban(t *testing.T) {
	bm := NewBanManager(nil)

	bm.Ban("203.0.113.1", BanManual)
	bm.Unban("203.0.113.1")
	if bm.IsBanned("203.0.113.1") {
		t.Error("peer should not be banned after Unban")
	}
}

func TestBanManager_BanList(t *testing.T) {
	bm := NewBanManager(nil)

	bm.Ban("203.0.113.1", BanBadBlock)
	bm.Ban("203.0.113.2", BanFraudHeight)

	list := bm.BanList()
	if len(list) != 2 {
		t.Errorf("expected 2 bans, got %d", len(list))
	}
}

func TestBanManager_Persistence(t *testing.T) {
	db := storage.NewMemory()
	store := NewBanStore(db)
	bm := NewBanManager(store)

	bm.Ban("203.0.113.1", BanBadHandshake)
	if !bm.IsBanned("203.0.113.1") {
		t.Fatal("peer should be banned")
	}

	// A new BanManager from the same store sees the ban.
	bm2 := NewBanManager(store)
	bm2.LoadBans()
	if !bm2.IsBanned("203.0.113.1") {
		t.Error("ban should survive reload from store")
	}

	rec, err := store.Get("203.0.113.1")
	if err != nil {
		t.Fatalf("load ban record: %v", err)
	}
	if rec.Reason != BanBadHandshake {
		t.Errorf("persisted reason %s, want bad_handshake", rec.Reason)
	}
}

func TestBanManager_ExpiredBanLifts(t *testing.T) {
	bm := NewBanManager(nil)
	bm.Ban("203.0.113.1", BanBadBlock)

	// Force the record into the past.
	bm.mu.Lock()
	bm.bans["203.0.113.1"].ExpiresAt = time.Now().Add(-time.Minute).Unix()
	bm.mu.Unlock()

	if bm.IsBanned("203.0.113.1") {
		t.Error("expired ban should lift")
	}
}

func TestBanManager_ClearAll(t *testing.T) {
	store := NewBanStore(storage.NewMemory())
	bm := NewBanManager(store)

	bm.Ban("203.0.113.1", BanBadBlock)
	bm.Ban("203.0.113.2", BanManual)
	bm.ClearAll()

	if bm.IsBanned("203.0.113.1") || bm.IsBanned("203.0.113.2") {
		t.Error("no peer should remain banned after ClearAll")
	}
	if list := bm.BanList(); len(list) != 0 {
		t.Errorf("ban list should be empty, got %d", len(list))
	}

	bm2 := NewBanManager(store)
	bm2.LoadBans()
	if bm2.IsBanned("203.0.113.1") {
		t.Error("cleared bans must not reload from the store")
	}
}

func TestBanReason_Strings(t *testing.T) {
	tests := map[BanReason]string{
		BanNone:            "none",
		BanBadBlock:        "bad_block",
		BanBadCompactBlock: "bad_compact_block",
		BanBadTxHashSet:    "bad_txhashset",
		BanManual:          "manual",
		BanFraudHeight:     "fraud_height",
		BanBadHandshake:    "bad_handshake",
		BanBadTransaction:  "bad_transaction",
	}
	for reason, want := range tests {
		if reason.String() != want {
			t.Errorf("%d.String() = %s, want %s", reason, reason, want)
		}
	}
}
