package config

// Consensus constants. These are protocol rules: changing any of them is a
// hard fork.
const (
	// Reward is the fixed coinbase reward per block, in base units.
	Reward uint64 = 60_000_000_000

	// CoinbaseMaturity is the number of blocks a coinbase output must age
	// before it can be spent.
	CoinbaseMaturity uint64 = 1440

	// Body weight units per element.
	InputWeight  uint64 = 1
	OutputWeight uint64 = 21
	KernelWeight uint64 = 3

	// MaxBlockWeight caps the total weight of a block body.
	MaxBlockWeight uint64 = 40_000

	// RangeProofSize is the fixed size of a bulletproof range proof.
	RangeProofSize = 675
)

// MaxCoinbaseHeight returns the greatest block height at which an output may
// have been created for a coinbase spend at blockHeight to be mature.
// Saturates at zero for the first CoinbaseMaturity blocks.
func MaxCoinbaseHeight(blockHeight uint64) uint64 {
	if blockHeight < CoinbaseMaturity {
		return 0
	}
	return blockHeight - CoinbaseMaturity
}

// BlockWeight computes the consensus weight of a body with the given element
// counts.
func BlockWeight(inputs, outputs, kernels int) uint64 {
	return uint64(inputs)*InputWeight + uint64(outputs)*OutputWeight + uint64(kernels)*KernelWeight
}

// Wire protocol parameters.
const (
	// ProtocolV1 and ProtocolV2 are the supported wire protocol versions.
	// They differ in how outputs are serialized inside full blocks.
	ProtocolV1 uint32 = 1
	ProtocolV2 uint32 = 2

	// ProtocolVersion is the highest version this node speaks. The
	// effective version per connection is the minimum of both sides.
	ProtocolVersion = ProtocolV2
)

// Magic returns the two wire magic bytes for the given network.
func Magic(network NetworkType) [2]byte {
	if network == Testnet {
		return [2]byte{0x53, 0x54} // "ST"
	}
	return [2]byte{0x53, 0x4e} // "SN"
}
