// Package core defines the Mimblewimble transaction and block model:
// inputs, outputs, kernels, transaction bodies, block headers, full blocks,
// and the cumulative block sums the chain maintains per block.
package core

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/shroudnet/shroud-node/pkg/crypto"
	"github.com/shroudnet/shroud-node/pkg/types"
)

// Binary serialization is big-endian throughout, matching the wire protocol.

func writeUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func writeUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeInt64(w io.Writer, v int64) error {
	return writeUint64(w, uint64(v))
}

func writeBytes(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

func readUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func readUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func readInt64(r io.Reader) (int64, error) {
	v, err := readUint64(r)
	return int64(v), err
}

func readHash(r io.Reader) (types.Hash, error) {
	var h types.Hash
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return types.Hash{}, err
	}
	return h, nil
}

func readCommitment(r io.Reader) (crypto.Commitment, error) {
	var buf [crypto.CommitmentSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return crypto.Commitment{}, err
	}
	return crypto.CommitmentFromBytes(buf[:])
}

func readBlinding(r io.Reader) (crypto.BlindingFactor, error) {
	var b crypto.BlindingFactor
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return crypto.BlindingFactor{}, err
	}
	return b, nil
}

// readCount reads a u64 element count and rejects absurd values before any
// allocation is sized from attacker-controlled input.
func readCount(r io.Reader, max uint64) (uint64, error) {
	n, err := readUint64(r)
	if err != nil {
		return 0, err
	}
	if n > max {
		return 0, fmt.Errorf("element count %d exceeds limit %d", n, max)
	}
	return n, nil
}
