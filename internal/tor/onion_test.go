package tor

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"
	"testing"
)

func TestOnionAddress_Shape(t *testing.T) {
	pub := ed25519.NewKeyFromSeed(testSeed("shape")).Public().(ed25519.PublicKey)
	addr := OnionAddress(pub)

	if !strings.HasSuffix(addr, ".onion") {
		t.Fatalf("address %q must end in .onion", addr)
	}
	base := strings.TrimSuffix(addr, ".onion")
	if len(base) != 56 {
		t.Errorf("v3 onion base is 56 chars, got %d (%q)", len(base), base)
	}
	if base != strings.ToLower(base) {
		t.Error("onion addresses are lowercase")
	}
}

func TestOnionAddress_Deterministic(t *testing.T) {
	pub := ed25519.NewKeyFromSeed(testSeed("det")).Public().(ed25519.PublicKey)
	if OnionAddress(pub) != OnionAddress(pub) {
		t.Error("address must be deterministic")
	}

	other := ed25519.NewKeyFromSeed(testSeed("other")).Public().(ed25519.PublicKey)
	if OnionAddress(pub) == OnionAddress(other) {
		t.Error("distinct keys must yield distinct addresses")
	}
}

func TestServiceID_StripsSuffix(t *testing.T) {
	pub := ed25519.NewKeyFromSeed(testSeed("svc")).Public().(ed25519.PublicKey)
	if ServiceID(pub)+".onion" != OnionAddress(pub) {
		t.Error("service id plus .onion must equal the address")
	}
}

func TestTorKeyBlob_Shape(t *testing.T) {
	blob := TorKeyBlob(testSeed("blob"))
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		t.Fatalf("blob is not base64: %v", err)
	}
	if len(raw) != 64 {
		t.Fatalf("blob decodes to %d bytes, want 64", len(raw))
	}

	// The first half is the clamped secret scalar.
	if raw[0]&7 != 0 {
		t.Error("low three bits of the scalar must be cleared")
	}
	if raw[31]&128 != 0 {
		t.Error("top bit of the scalar must be cleared")
	}
	if raw[31]&64 == 0 {
		t.Error("second-highest bit of the scalar must be set")
	}
}
