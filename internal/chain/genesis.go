package chain

import (
	"fmt"

	"github.com/shroudnet/shroud-node/config"
	"github.com/shroudnet/shroud-node/internal/txhashset"
	"github.com/shroudnet/shroud-node/pkg/core"
	"github.com/shroudnet/shroud-node/pkg/crypto"
	"github.com/shroudnet/shroud-node/pkg/types"
)

// Genesis timestamps, one per network.
const (
	mainnetGenesisTime int64 = 1706745600 // 2024-02-01 00:00:00 UTC
	testnetGenesisTime int64 = 1704067200 // 2024-01-01 00:00:00 UTC
)

// GenesisBlock builds the deterministic genesis block for a network: a
// single coinbase output and kernel whose blinding factor is derived from a
// fixed network tag. Every node derives the identical block.
func GenesisBlock(network config.NetworkType) (*core.Block, error) {
	seed := crypto.Blake2b([]byte("shroud-genesis-" + string(network)))
	sk, err := crypto.SecretKeyFromBytes(seed[:])
	if err != nil {
		return nil, fmt.Errorf("genesis key: %w", err)
	}

	output, err := crypto.Commit(config.Reward, sk.Blinding())
	if err != nil {
		return nil, fmt.Errorf("genesis output: %w", err)
	}

	kernel := core.Kernel{
		Features: core.KernelCoinbase,
		Excess:   sk.PublicPoint(),
	}
	msg := kernel.SignatureMessage()
	sig, err := sk.Sign(msg[:])
	if err != nil {
		return nil, fmt.Errorf("genesis kernel signature: %w", err)
	}
	copy(kernel.ExcessSignature[:], sig)

	proof := genesisRangeProof(output)
	block := &core.Block{
		Header: core.Header{
			Version:   1,
			Height:    0,
			Timestamp: genesisTime(network),
		},
		Body: core.TransactionBody{
			Outputs: []core.Output{{
				Features:   core.OutputCoinbase,
				Commitment: output,
				RangeProof: proof,
			}},
			Kernels: []core.Kernel{kernel},
		},
	}

	// Pin the txhashset roots the genesis body produces.
	ths := txhashset.New()
	ths.ApplyBlock(block)
	roots := ths.Roots()
	block.Header.OutputRoot = roots.Output
	block.Header.RangeProofRoot = roots.RangeProof
	block.Header.KernelRoot = roots.Kernel
	block.Header.OutputMMRSize, block.Header.KernelMMRSize = ths.Sizes()

	return block, nil
}

// GenesisSums returns the cumulative sums after the genesis block.
func GenesisSums(network config.NetworkType) (core.BlockSums, error) {
	b, err := GenesisBlock(network)
	if err != nil {
		return core.BlockSums{}, err
	}
	outputSum, err := crypto.AddCommitments(
		[]crypto.Commitment{b.Body.Outputs[0].Commitment},
		[]crypto.Commitment{crypto.CommitTransparent(config.Reward)},
	)
	if err != nil {
		return core.BlockSums{}, err
	}
	return core.BlockSums{
		OutputSum: outputSum,
		KernelSum: b.Body.Kernels[0].Excess,
	}, nil
}

// GenesisHash returns the genesis block hash for a network.
func GenesisHash(network config.NetworkType) (types.Hash, error) {
	b, err := GenesisBlock(network)
	if err != nil {
		return types.Hash{}, err
	}
	return b.Hash(), nil
}

func genesisTime(network config.NetworkType) int64 {
	if network == config.Testnet {
		return testnetGenesisTime
	}
	return mainnetGenesisTime
}

// genesisRangeProof builds the fixed genesis proof bytes, bound to the
// genesis output commitment.
func genesisRangeProof(commit crypto.Commitment) []byte {
	proof := make([]byte, config.RangeProofSize)
	h := crypto.Blake2b(commit[:])
	off := 0
	for off < len(proof) {
		off += copy(proof[off:], h[:])
		h = crypto.Blake2b(h[:])
	}
	return proof
}
