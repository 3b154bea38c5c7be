package chain

import (
	"errors"
	"testing"
	"time"

	"github.com/shroudnet/shroud-node/config"
	"github.com/shroudnet/shroud-node/internal/storage"
	"github.com/shroudnet/shroud-node/pkg/core"
	"github.com/shroudnet/shroud-node/pkg/crypto"
	"github.com/shroudnet/shroud-node/pkg/types"
)

func newTestChain(t *testing.T) *Chain {
	t.Helper()
	c, err := New(storage.NewMemory(), config.Testnet)
	if err != nil {
		t.Fatalf("open chain: %v", err)
	}
	return c
}

func TestChain_BootstrapGenesis(t *testing.T) {
	c := newTestChain(t)
	if c.Height() != 0 {
		t.Errorf("fresh chain height should be 0, got %d", c.Height())
	}

	want, err := GenesisHash(config.Testnet)
	if err != nil {
		t.Fatalf("genesis hash: %v", err)
	}
	if c.Tip().Hash() != want {
		t.Errorf("tip should be the genesis block")
	}

	// Genesis sums are persisted.
	sums, err := c.Store().BlockSums(want)
	if err != nil {
		t.Fatalf("genesis sums missing: %v", err)
	}
	wantSums, err := GenesisSums(config.Testnet)
	if err != nil {
		t.Fatalf("compute genesis sums: %v", err)
	}
	if sums != wantSums {
		t.Errorf("persisted genesis sums mismatch")
	}
}

func TestChain_ReopenRebuildsState(t *testing.T) {
	db := storage.NewMemory()
	c1, err := New(db, config.Testnet)
	if err != nil {
		t.Fatalf("open chain: %v", err)
	}
	out, cb := makeCoinbase(t, "reopen-cb", 0)
	b := buildNextBlock(t, c1, core.TransactionBody{
		Outputs: []core.Output{out},
		Kernels: []core.Kernel{cb},
	})
	if err := c1.ProcessBlock(b); err != nil {
		t.Fatalf("process block: %v", err)
	}

	c2, err := New(db, config.Testnet)
	if err != nil {
		t.Fatalf("reopen chain: %v", err)
	}
	if c2.Height() != 1 {
		t.Errorf("reopened chain height should be 1, got %d", c2.Height())
	}
	if !c2.View().ValidateRoots(c2.Tip()) {
		t.Error("rebuilt txhashset must agree with the tip header")
	}
}

func TestChain_ProcessBlock_Extension(t *testing.T) {
	c := newTestChain(t)
	genesisSums, err := GenesisSums(config.Testnet)
	if err != nil {
		t.Fatalf("genesis sums: %v", err)
	}

	out, cb := makeCoinbase(t, "ext1-cb", 0)
	b := buildNextBlock(t, c, core.TransactionBody{
		Outputs: []core.Output{out},
		Kernels: []core.Kernel{cb},
	})
	if err := c.ProcessBlock(b); err != nil {
		t.Fatalf("process block: %v", err)
	}
	if c.Height() != 1 {
		t.Errorf("height should be 1, got %d", c.Height())
	}

	// The new sums fold the block's excess into the parent's kernel sum.
	sums, err := c.Store().BlockSums(b.Hash())
	if err != nil {
		t.Fatalf("block sums: %v", err)
	}
	want, err := crypto.AddCommitments(
		[]crypto.Commitment{genesisSums.KernelSum, cb.Excess}, nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !sums.KernelSum.Equal(want) {
		t.Error("kernel sum must equal parent sum plus block excess")
	}

	// Output positions are recorded.
	loc, err := c.Store().OutputPosition(out.Commitment)
	if err != nil {
		t.Fatalf("output position: %v", err)
	}
	if loc.BlockHeight != 1 {
		t.Errorf("output recorded at height %d, want 1", loc.BlockHeight)
	}
}

func TestChain_ProcessBlock_Duplicate(t *testing.T) {
	c := newTestChain(t)
	out, cb := makeCoinbase(t, "dup-cb", 0)
	b := buildNextBlock(t, c, core.TransactionBody{
		Outputs: []core.Output{out},
		Kernels: []core.Kernel{cb},
	})
	if err := c.ProcessBlock(b); err != nil {
		t.Fatalf("first process: %v", err)
	}
	if err := c.ProcessBlock(b); err != nil {
		t.Errorf("duplicate block should be a no-op, got %v", err)
	}
	if c.Height() != 1 {
		t.Errorf("height should still be 1, got %d", c.Height())
	}
}

func TestChain_ProcessBlock_Orphan(t *testing.T) {
	c := newTestChain(t)
	out, cb := makeCoinbase(t, "orph-cb", 0)
	b := &core.Block{
		Header: core.Header{
			Version:   1,
			Height:    5,
			Previous:  crypto.Blake2b([]byte("nowhere")),
			Timestamp: time.Now().Unix(),
		},
		Body: core.TransactionBody{
			Outputs: []core.Output{out},
			Kernels: []core.Kernel{cb},
		},
	}
	sortBody(&b.Body)

	err := c.ProcessBlock(b)
	if !errors.Is(err, ErrChainMissingData) {
		t.Errorf("expected ErrChainMissingData for an orphan, got %v", err)
	}
}

func TestChain_ProcessBlock_BadBlockDoesNotMutate(t *testing.T) {
	c := newTestChain(t)
	rootsBefore := c.View().Roots()
	tipBefore := c.Tip().Hash()

	// Coinbase claiming a unit too much: self-consistency fails.
	sk := testSecret(t, "greedy-chain")
	commit, err := crypto.Commit(config.Reward+1, sk.Blinding())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	out := core.Output{Features: core.OutputCoinbase, Commitment: commit, RangeProof: testProof(commit)}
	k := core.Kernel{Features: core.KernelCoinbase, Excess: sk.PublicPoint()}
	msg := k.SignatureMessage()
	sig, err := sk.Sign(msg[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	copy(k.ExcessSignature[:], sig)

	b := buildNextBlock(t, c, core.TransactionBody{
		Outputs: []core.Output{out},
		Kernels: []core.Kernel{k},
	})
	if err := c.ProcessBlock(b); !errors.Is(err, ErrBadData) {
		t.Fatalf("expected ErrBadData, got %v", err)
	}

	if c.Tip().Hash() != tipBefore {
		t.Error("rejected block must not move the tip")
	}
	if c.View().Roots() != rootsBefore {
		t.Error("rejected block must leave the txhashset untouched")
	}
	if have, _ := c.Store().HasBlock(b.Hash()); have {
		t.Error("rejected block must not be persisted")
	}
}

func TestChain_LocatorAndHeadersByLocator(t *testing.T) {
	c := newTestChain(t)
	for i := 0; i < 3; i++ {
		out, cb := makeCoinbase(t, "loc-cb-"+string(rune('a'+i)), 0)
		b := buildNextBlock(t, c, core.TransactionBody{
			Outputs: []core.Output{out},
			Kernels: []core.Kernel{cb},
		})
		if err := c.ProcessBlock(b); err != nil {
			t.Fatalf("process block %d: %v", i, err)
		}
	}

	locator := c.Locator()
	if len(locator) == 0 {
		t.Fatal("locator must not be empty")
	}
	if locator[0] != c.Tip().Hash() {
		t.Error("locator should lead with the tip")
	}
	genesisHash, err := GenesisHash(config.Testnet)
	if err != nil {
		t.Fatalf("genesis hash: %v", err)
	}
	if locator[len(locator)-1] != genesisHash {
		t.Error("locator should end at genesis")
	}

	// A peer at genesis gets headers 1..3.
	headers := c.HeadersByLocator([]types.Hash{genesisHash}, 0)
	if len(headers) != 3 {
		t.Fatalf("want 3 headers after genesis, got %d", len(headers))
	}
	if headers[0].Height != 1 || headers[2].Height != 3 {
		t.Errorf("headers should cover heights 1..3, got %d..%d",
			headers[0].Height, headers[len(headers)-1].Height)
	}

	// An unknown locator falls back to genesis.
	headers = c.HeadersByLocator([]types.Hash{crypto.Blake2b([]byte("unknown"))}, 0)
	if len(headers) != 3 {
		t.Errorf("unknown locator should serve from genesis, got %d headers", len(headers))
	}
}

func TestChain_ProcessHeaders(t *testing.T) {
	c := newTestChain(t)
	out, cb := makeCoinbase(t, "ph-cb", 0)
	b := buildNextBlock(t, c, core.TransactionBody{
		Outputs: []core.Output{out},
		Kernels: []core.Kernel{cb},
	})

	wanted, err := c.ProcessHeaders([]core.Header{b.Header})
	if err != nil {
		t.Fatalf("process headers: %v", err)
	}
	if len(wanted) != 1 || wanted[0] != b.Hash() {
		t.Errorf("header above the tip should be wanted")
	}

	// Headers at or below the tip are not requested again.
	wanted, err = c.ProcessHeaders([]core.Header{*c.Tip()})
	if err != nil {
		t.Fatalf("process headers: %v", err)
	}
	if len(wanted) != 0 {
		t.Errorf("tip header should not be wanted, got %d", len(wanted))
	}

	// A batch that does not chain is bad data.
	h2 := b.Header
	h2.Height = b.Header.Height + 1
	h2.Previous = crypto.Blake2b([]byte("broken"))
	if _, err := c.ProcessHeaders([]core.Header{b.Header, h2}); !errors.Is(err, ErrBadData) {
		t.Errorf("expected ErrBadData for a non-chaining batch, got %v", err)
	}
}
