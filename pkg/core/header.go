package core

import (
	"bytes"
	"io"

	"github.com/shroudnet/shroud-node/pkg/crypto"
	"github.com/shroudnet/shroud-node/pkg/types"
)

// Header is a block header. The three MMR roots pin the txhashset state
// after the block's body is applied; TotalKernelOffset is the cumulative
// kernel offset of the chain up to and including this block.
type Header struct {
	Version           uint16                `json:"version"`
	Height            uint64                `json:"height"`
	Previous          types.Hash            `json:"previous"`
	Timestamp         int64                 `json:"timestamp"`
	OutputRoot        types.Hash            `json:"output_root"`
	RangeProofRoot    types.Hash            `json:"range_proof_root"`
	KernelRoot        types.Hash            `json:"kernel_root"`
	TotalKernelOffset crypto.BlindingFactor `json:"total_kernel_offset"`
	OutputMMRSize     uint64                `json:"output_mmr_size"`
	KernelMMRSize     uint64                `json:"kernel_mmr_size"`
	TotalDifficulty   uint64                `json:"total_difficulty"`
	Nonce             uint64                `json:"nonce"`
}

// Serialize writes the header in wire order.
func (h *Header) Serialize(w io.Writer) error {
	if err := writeUint16(w, h.Version); err != nil {
		return err
	}
	if err := writeUint64(w, h.Height); err != nil {
		return err
	}
	if err := writeBytes(w, h.Previous[:]); err != nil {
		return err
	}
	if err := writeInt64(w, h.Timestamp); err != nil {
		return err
	}
	if err := writeBytes(w, h.OutputRoot[:]); err != nil {
		return err
	}
	if err := writeBytes(w, h.RangeProofRoot[:]); err != nil {
		return err
	}
	if err := writeBytes(w, h.KernelRoot[:]); err != nil {
		return err
	}
	if err := writeBytes(w, h.TotalKernelOffset[:]); err != nil {
		return err
	}
	if err := writeUint64(w, h.OutputMMRSize); err != nil {
		return err
	}
	if err := writeUint64(w, h.KernelMMRSize); err != nil {
		return err
	}
	if err := writeUint64(w, h.TotalDifficulty); err != nil {
		return err
	}
	return writeUint64(w, h.Nonce)
}

// DeserializeHeader reads a header in wire order.
func DeserializeHeader(r io.Reader) (Header, error) {
	var h Header
	var err error
	if h.Version, err = readUint16(r); err != nil {
		return h, err
	}
	if h.Height, err = readUint64(r); err != nil {
		return h, err
	}
	if h.Previous, err = readHash(r); err != nil {
		return h, err
	}
	if h.Timestamp, err = readInt64(r); err != nil {
		return h, err
	}
	if h.OutputRoot, err = readHash(r); err != nil {
		return h, err
	}
	if h.RangeProofRoot, err = readHash(r); err != nil {
		return h, err
	}
	if h.KernelRoot, err = readHash(r); err != nil {
		return h, err
	}
	if h.TotalKernelOffset, err = readBlinding(r); err != nil {
		return h, err
	}
	if h.OutputMMRSize, err = readUint64(r); err != nil {
		return h, err
	}
	if h.KernelMMRSize, err = readUint64(r); err != nil {
		return h, err
	}
	if h.TotalDifficulty, err = readUint64(r); err != nil {
		return h, err
	}
	if h.Nonce, err = readUint64(r); err != nil {
		return h, err
	}
	return h, nil
}

// Hash returns the proof-of-work digest of the serialized header, which
// doubles as the block identity.
func (h *Header) Hash() types.Hash {
	var buf bytes.Buffer
	// Serialization into a buffer cannot fail.
	_ = h.Serialize(&buf)
	return crypto.PoWHash(buf.Bytes())
}
