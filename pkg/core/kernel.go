package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/shroudnet/shroud-node/pkg/crypto"
	"github.com/shroudnet/shroud-node/pkg/types"
)

// KernelFeatures marks the kind of a transaction kernel.
type KernelFeatures uint8

const (
	KernelPlain KernelFeatures = iota
	KernelCoinbase
	KernelHeightLocked
	KernelNoRecentDuplicate
)

// ErrFeeOverflow is returned when summing kernel fees would wrap a uint64.
var ErrFeeOverflow = errors.New("kernel fee sum overflows")

// String returns a human-readable feature name.
func (f KernelFeatures) String() string {
	switch f {
	case KernelPlain:
		return "plain"
	case KernelCoinbase:
		return "coinbase"
	case KernelHeightLocked:
		return "height_locked"
	case KernelNoRecentDuplicate:
		return "no_recent_duplicate"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

// Kernel is the signed part of a transaction: it proves the excess is a
// commitment to zero whose blinding factor the sender knew, and carries the
// fee and lock height.
type Kernel struct {
	Features        KernelFeatures        `json:"features"`
	Fee             uint64                `json:"fee"`
	LockHeight      uint64                `json:"lock_height"`
	Excess          crypto.Commitment     `json:"excess"`
	ExcessSignature [crypto.SignatureSize]byte `json:"excess_sig"`
}

// IsCoinbase reports whether this is a coinbase kernel.
func (k *Kernel) IsCoinbase() bool {
	return k.Features == KernelCoinbase
}

// SignatureMessage returns the hash the excess signature commits to:
// BLAKE2b(features || fee || lock_height).
func (k *Kernel) SignatureMessage() types.Hash {
	var buf [17]byte
	buf[0] = uint8(k.Features)
	binary.BigEndian.PutUint64(buf[1:9], k.Fee)
	binary.BigEndian.PutUint64(buf[9:17], k.LockHeight)
	return crypto.Blake2b(buf[:])
}

// VerifySignature checks the excess signature with the excess as public key.
func (k *Kernel) VerifySignature() bool {
	msg := k.SignatureMessage()
	return crypto.VerifyExcessSignature(msg[:], k.ExcessSignature[:], k.Excess)
}

// Serialize writes the kernel in wire order.
func (k *Kernel) Serialize(w io.Writer) error {
	if err := writeUint8(w, uint8(k.Features)); err != nil {
		return err
	}
	if err := writeUint64(w, k.Fee); err != nil {
		return err
	}
	if err := writeUint64(w, k.LockHeight); err != nil {
		return err
	}
	if err := writeBytes(w, k.Excess[:]); err != nil {
		return err
	}
	return writeBytes(w, k.ExcessSignature[:])
}

// DeserializeKernel reads a kernel in wire order.
func DeserializeKernel(r io.Reader) (Kernel, error) {
	var k Kernel
	features, err := readUint8(r)
	if err != nil {
		return k, err
	}
	if features > uint8(KernelNoRecentDuplicate) {
		return k, fmt.Errorf("invalid kernel features %d", features)
	}
	k.Features = KernelFeatures(features)
	if k.Fee, err = readUint64(r); err != nil {
		return k, err
	}
	if k.LockHeight, err = readUint64(r); err != nil {
		return k, err
	}
	if k.Excess, err = readCommitment(r); err != nil {
		return k, err
	}
	if _, err = io.ReadFull(r, k.ExcessSignature[:]); err != nil {
		return k, err
	}
	return k, nil
}

// SumFees adds the fees of all kernels, failing on uint64 overflow rather
// than wrapping.
func SumFees(kernels []Kernel) (uint64, error) {
	var total uint64
	for i := range kernels {
		fee := kernels[i].Fee
		if total+fee < total {
			return 0, ErrFeeOverflow
		}
		total += fee
	}
	return total, nil
}
