// Package tor speaks the Tor control protocol: authentication, hidden
// service publication (ADD_ONION/DEL_ONION), detached-service queries, and
// liveness signals.
package tor

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/base32"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/sha3"
)

// onionEncoding is the lowercase unpadded base32 used by onion addresses.
var onionEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// OnionAddress derives the v3 onion address for an ed25519 public key:
// base32(pubkey || checksum || version) + ".onion", where the checksum is
// the first two bytes of SHA3-256(".onion checksum" || pubkey || version).
func OnionAddress(pub ed25519.PublicKey) string {
	const version = 0x03

	checksumInput := make([]byte, 0, 15+ed25519.PublicKeySize+1)
	checksumInput = append(checksumInput, []byte(".onion checksum")...)
	checksumInput = append(checksumInput, pub...)
	checksumInput = append(checksumInput, version)
	checksum := sha3.Sum256(checksumInput)

	raw := make([]byte, 0, ed25519.PublicKeySize+3)
	raw = append(raw, pub...)
	raw = append(raw, checksum[0], checksum[1], version)
	return strings.ToLower(onionEncoding.EncodeToString(raw)) + ".onion"
}

// ServiceID returns the onion address without the ".onion" suffix, the
// form the control port uses.
func ServiceID(pub ed25519.PublicKey) string {
	return strings.TrimSuffix(OnionAddress(pub), ".onion")
}

// TorKeyBlob expands a 32-byte ed25519 seed into the ED25519-V3 key the
// control port expects: base64 of the 32-byte expanded secret scalar
// (clamped, little-endian) concatenated with the 32-byte PRF secret.
func TorKeyBlob(seed []byte) string {
	h := sha512.Sum512(seed)
	// Standard ed25519 clamping of the secret scalar.
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return base64.StdEncoding.EncodeToString(h[:])
}
