package chain

import (
	"bytes"
	"sort"
	"testing"
	"time"

	"github.com/shroudnet/shroud-node/config"
	"github.com/shroudnet/shroud-node/internal/storage"
	"github.com/shroudnet/shroud-node/internal/txhashset"
	"github.com/shroudnet/shroud-node/pkg/core"
	"github.com/shroudnet/shroud-node/pkg/crypto"
	"github.com/shroudnet/shroud-node/pkg/types"
)

func testSecret(t *testing.T, name string) *crypto.SecretKey {
	t.Helper()
	seed := crypto.Blake2b([]byte(name))
	sk, err := crypto.SecretKeyFromBytes(seed[:])
	if err != nil {
		t.Fatalf("secret key %q: %v", name, err)
	}
	return sk
}

func testProof(commit crypto.Commitment) []byte {
	proof := make([]byte, config.RangeProofSize)
	h := crypto.Blake2b(commit[:])
	off := 0
	for off < len(proof) {
		off += copy(proof[off:], h[:])
		h = crypto.Blake2b(h[:])
	}
	return proof
}

// makeCoinbase builds a balanced coinbase output/kernel pair for a block
// collecting the given fees.
func makeCoinbase(t *testing.T, name string, fees uint64) (core.Output, core.Kernel) {
	t.Helper()
	sk := testSecret(t, name)
	commit, err := crypto.Commit(config.Reward+fees, sk.Blinding())
	if err != nil {
		t.Fatalf("coinbase commit: %v", err)
	}
	out := core.Output{Features: core.OutputCoinbase, Commitment: commit, RangeProof: testProof(commit)}

	k := core.Kernel{Features: core.KernelCoinbase, Excess: sk.PublicPoint()}
	msg := k.SignatureMessage()
	sig, err := sk.Sign(msg[:])
	if err != nil {
		t.Fatalf("coinbase sign: %v", err)
	}
	copy(k.ExcessSignature[:], sig)
	return out, k
}

// makeKernel signs a plain kernel under the named excess blind.
func makeKernel(t *testing.T, name string, features core.KernelFeatures, fee, lockHeight uint64) core.Kernel {
	t.Helper()
	sk := testSecret(t, name)
	k := core.Kernel{Features: features, Fee: fee, LockHeight: lockHeight, Excess: sk.PublicPoint()}
	msg := k.SignatureMessage()
	sig, err := sk.Sign(msg[:])
	if err != nil {
		t.Fatalf("kernel sign: %v", err)
	}
	copy(k.ExcessSignature[:], sig)
	return k
}

func sortBody(b *core.TransactionBody) {
	sort.Slice(b.Inputs, func(i, j int) bool {
		return bytes.Compare(b.Inputs[i].Commitment[:], b.Inputs[j].Commitment[:]) < 0
	})
	sort.Slice(b.Outputs, func(i, j int) bool {
		return bytes.Compare(b.Outputs[i].Commitment[:], b.Outputs[j].Commitment[:]) < 0
	})
	sort.Slice(b.Kernels, func(i, j int) bool {
		return bytes.Compare(b.Kernels[i].Excess[:], b.Kernels[j].Excess[:]) < 0
	})
}

// stubView answers every root check with a fixed verdict.
type stubView struct{ ok bool }

func (v stubView) ValidateRoots(*core.Header) bool { return v.ok }

// untouchableStore fails the test on any access; for checks that must
// complete (or fail) before the store is consulted.
type untouchableStore struct{ t *testing.T }

func (s untouchableStore) OutputPosition(crypto.Commitment) (OutputLocation, error) {
	s.t.Fatal("store consulted during self-consistency checks")
	return OutputLocation{}, nil
}

func (s untouchableStore) BlockSums(types.Hash) (core.BlockSums, error) {
	s.t.Fatal("store consulted during self-consistency checks")
	return core.BlockSums{}, nil
}

func (s untouchableStore) Header(types.Hash) (*core.Header, error) {
	s.t.Fatal("store consulted during self-consistency checks")
	return nil, nil
}

// memStore is a real chain store over the in-memory DB.
func memStore() *Store {
	return NewStore(storage.NewMemory())
}

// buildNextBlock assembles a block extending the chain's tip, with roots
// computed by replaying the chain plus the new body into a scratch view.
func buildNextBlock(t *testing.T, c *Chain, body core.TransactionBody) *core.Block {
	t.Helper()
	sortBody(&body)

	scratch := txhashset.New()
	for h := uint64(0); h <= c.Height(); h++ {
		blk, err := c.BlockByHeight(h)
		if err != nil {
			t.Fatalf("replay height %d: %v", h, err)
		}
		scratch.ApplyBlock(blk)
	}

	tip := c.Tip()
	b := &core.Block{
		Header: core.Header{
			Version:         1,
			Height:          tip.Height + 1,
			Previous:        tip.Hash(),
			Timestamp:       time.Now().Unix(),
			TotalDifficulty: tip.TotalDifficulty + 1,
		},
		Body: body,
	}
	scratch.ApplyBlock(b)
	roots := scratch.Roots()
	b.Header.OutputRoot = roots.Output
	b.Header.RangeProofRoot = roots.RangeProof
	b.Header.KernelRoot = roots.Kernel
	b.Header.OutputMMRSize, b.Header.KernelMMRSize = scratch.Sizes()
	return b
}
