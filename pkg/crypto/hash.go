// Package crypto provides cryptographic primitives for Shroud: hashing,
// Pedersen commitments, and Schnorr signatures over secp256k1.
package crypto

import (
	"github.com/shroudnet/shroud-node/pkg/types"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Blake2b computes a BLAKE2b-256 hash of the input data. All consensus
// structures (MMR leaves, kernel signature messages) hash with BLAKE2b.
func Blake2b(data []byte) types.Hash {
	return blake2b.Sum256(data)
}

// PoWHash computes a BLAKE3-256 hash of the input data. Header identity
// and proof-of-work use BLAKE3.
func PoWHash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HashConcat hashes the concatenation of two hashes with BLAKE2b.
// Used for building MMR parent nodes.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Blake2b(buf[:])
}
