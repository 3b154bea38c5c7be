package chain

import (
	"testing"

	"github.com/shroudnet/shroud-node/config"
	"github.com/shroudnet/shroud-node/pkg/crypto"
)

func TestGenesis_Deterministic(t *testing.T) {
	a, err := GenesisHash(config.Mainnet)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	b, err := GenesisHash(config.Mainnet)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if a != b {
		t.Error("genesis hash must be deterministic")
	}
}

func TestGenesis_NetworksDiffer(t *testing.T) {
	mainnet, err := GenesisHash(config.Mainnet)
	if err != nil {
		t.Fatalf("mainnet genesis: %v", err)
	}
	testnet, err := GenesisHash(config.Testnet)
	if err != nil {
		t.Fatalf("testnet genesis: %v", err)
	}
	if mainnet == testnet {
		t.Error("mainnet and testnet genesis must differ")
	}
}

func TestGenesis_SelfConsistent(t *testing.T) {
	b, err := GenesisBlock(config.Testnet)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if b.Height() != 0 {
		t.Errorf("genesis height must be 0, got %d", b.Height())
	}
	if len(b.Body.Outputs) != 1 || !b.Body.Outputs[0].IsCoinbase() {
		t.Error("genesis must carry exactly one coinbase output")
	}
	if len(b.Body.Kernels) != 1 || !b.Body.Kernels[0].IsCoinbase() {
		t.Error("genesis must carry exactly one coinbase kernel")
	}
	if !b.Body.Kernels[0].VerifySignature() {
		t.Error("genesis kernel signature must verify")
	}
}

func TestGenesisSums_Balance(t *testing.T) {
	// With a zero kernel offset, the cumulative balance reduces to
	// output_sum == kernel_sum.
	sums, err := GenesisSums(config.Testnet)
	if err != nil {
		t.Fatalf("genesis sums: %v", err)
	}
	if !sums.OutputSum.Equal(sums.KernelSum) {
		t.Error("genesis output sum must equal its kernel sum")
	}
	if sums.KernelSum.IsIdentity() {
		t.Error("genesis kernel sum must not be the identity")
	}
}

func TestGenesis_CoinbaseEquation(t *testing.T) {
	b, err := GenesisBlock(config.Testnet)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	// output - reward*H == kernel excess.
	adjusted, err := crypto.AddCommitments(
		[]crypto.Commitment{b.Body.Outputs[0].Commitment},
		[]crypto.Commitment{crypto.CommitTransparent(config.Reward)})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !adjusted.Equal(b.Body.Kernels[0].Excess) {
		t.Error("genesis coinbase must balance its kernel excess")
	}
}
