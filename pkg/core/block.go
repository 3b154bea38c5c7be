package core

import (
	"io"

	"github.com/shroudnet/shroud-node/pkg/crypto"
	"github.com/shroudnet/shroud-node/pkg/types"
)

// Block is a full block: header plus transaction body.
type Block struct {
	Header Header          `json:"header"`
	Body   TransactionBody `json:"body"`
}

// Hash returns the block identity (the header hash).
func (b *Block) Hash() types.Hash {
	return b.Header.Hash()
}

// Height returns the block height.
func (b *Block) Height() uint64 {
	return b.Header.Height
}

// CoinbaseOutputCommitments returns the commitments of outputs marked
// coinbase.
func (b *Block) CoinbaseOutputCommitments() []crypto.Commitment {
	var commits []crypto.Commitment
	for i := range b.Body.Outputs {
		if b.Body.Outputs[i].IsCoinbase() {
			commits = append(commits, b.Body.Outputs[i].Commitment)
		}
	}
	return commits
}

// CoinbaseKernelExcesses returns the excesses of kernels marked coinbase.
func (b *Block) CoinbaseKernelExcesses() []crypto.Commitment {
	var excesses []crypto.Commitment
	for i := range b.Body.Kernels {
		if b.Body.Kernels[i].IsCoinbase() {
			excesses = append(excesses, b.Body.Kernels[i].Excess)
		}
	}
	return excesses
}

// Serialize writes the block in wire order at the given protocol version.
func (b *Block) Serialize(w io.Writer, version uint32) error {
	if err := b.Header.Serialize(w); err != nil {
		return err
	}
	return b.Body.Serialize(w, version)
}

// DeserializeBlock reads a block in wire order at the given protocol version.
func DeserializeBlock(r io.Reader, version uint32) (Block, error) {
	var b Block
	var err error
	if b.Header, err = DeserializeHeader(r); err != nil {
		return b, err
	}
	if b.Body, err = DeserializeBody(r, version); err != nil {
		return b, err
	}
	return b, nil
}
