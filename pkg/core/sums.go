package core

import (
	"io"

	"github.com/shroudnet/shroud-node/pkg/crypto"
)

// BlockSums carries the cumulative commitment sums for the chain at a given
// block: the UTXO sum adjusted for rewards, and the kernel excess sum
// (excluding the kernel offset, which the header tracks cumulatively).
// They make the next block's sum invariant checkable in O(block size).
type BlockSums struct {
	OutputSum crypto.Commitment `json:"output_sum"`
	KernelSum crypto.Commitment `json:"kernel_sum"`
}

// Serialize writes the sums in wire order.
func (s *BlockSums) Serialize(w io.Writer) error {
	if err := writeBytes(w, s.OutputSum[:]); err != nil {
		return err
	}
	return writeBytes(w, s.KernelSum[:])
}

// DeserializeBlockSums reads block sums in wire order.
func DeserializeBlockSums(r io.Reader) (BlockSums, error) {
	var s BlockSums
	var err error
	if s.OutputSum, err = readCommitment(r); err != nil {
		return s, err
	}
	if s.KernelSum, err = readCommitment(r); err != nil {
		return s, err
	}
	return s, nil
}
