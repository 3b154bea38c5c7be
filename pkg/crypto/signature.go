package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// SignatureSize is the length of a serialized Schnorr signature.
const SignatureSize = 64

// SecretKey wraps a secp256k1 private key for Schnorr signing. Kernel
// excess signatures are produced over the excess as public key.
type SecretKey struct {
	key *secp256k1.PrivateKey
}

// GenerateSecretKey creates a new random secp256k1 private key.
func GenerateSecretKey() (*SecretKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &SecretKey{key: key}, nil
}

// SecretKeyFromBytes creates a SecretKey from a 32-byte scalar.
func SecretKeyFromBytes(b []byte) (*SecretKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("secret key must be 32 bytes, got %d", len(b))
	}
	key := secp256k1.PrivKeyFromBytes(b)
	if key.Key.IsZero() {
		return nil, fmt.Errorf("secret key is zero")
	}
	return &SecretKey{key: key}, nil
}

// Sign produces a Schnorr signature over a 32-byte hash.
func (sk *SecretKey) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	sig, err := schnorr.Sign(sk.key, hash)
	if err != nil {
		return nil, fmt.Errorf("schnorr sign: %w", err)
	}
	return sig.Serialize(), nil
}

// PublicPoint returns the public key as a commitment-compatible 33-byte
// compressed point. The excess of a kernel is exactly this serialization.
func (sk *SecretKey) PublicPoint() Commitment {
	var c Commitment
	copy(c[:], sk.key.PubKey().SerializeCompressed())
	return c
}

// Blinding returns the 32-byte secret scalar as a blinding factor.
func (sk *SecretKey) Blinding() BlindingFactor {
	var b BlindingFactor
	copy(b[:], sk.key.Serialize())
	return b
}

// Zero securely zeroes the secret key memory.
func (sk *SecretKey) Zero() {
	sk.key.Zero()
}

// VerifySignature checks a Schnorr signature against a 32-byte hash
// and a compressed public key. Returns false on any error.
func VerifySignature(hash, signature, publicKey []byte) bool {
	pubKey, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(hash, pubKey)
}

// VerifyExcessSignature checks a kernel's excess signature, treating the
// excess commitment as the public key.
func VerifyExcessSignature(msgHash []byte, signature []byte, excess Commitment) bool {
	if excess.IsIdentity() {
		return false
	}
	return VerifySignature(msgHash, signature, excess[:])
}
