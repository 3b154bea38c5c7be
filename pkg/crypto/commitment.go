package crypto

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// CommitmentSize is the length of a serialized Pedersen commitment.
const CommitmentSize = 33

// Commitment is a Pedersen commitment r*G + v*H, serialized as a 33-byte
// compressed secp256k1 point. The zero value is the group identity.
type Commitment [CommitmentSize]byte

// BlindingFactor is a secp256k1 scalar used as the blinding term of a
// commitment or as a kernel offset.
type BlindingFactor [32]byte

// Commitment parse/serialize errors.
var (
	ErrBadCommitment = errors.New("malformed commitment")
	ErrBadBlinding   = errors.New("blinding factor out of range")
)

// genH is the value generator H, the secondary NUMS generator used by
// secp256k1 Pedersen commitments.
var genH = func() *secp256k1.JacobianPoint {
	xBytes, _ := hex.DecodeString("50929b74c1a04954b78b4b6035e97a5e078a5a0f28ec96d547bfee9ace803ac0")
	yBytes, _ := hex.DecodeString("31d3c6863973926e049e637cb1b5f40a36dac28af1766968c30c2313f3a38904")
	var x, y secp256k1.FieldVal
	x.SetByteSlice(xBytes)
	y.SetByteSlice(yBytes)
	var p secp256k1.JacobianPoint
	p.X.Set(&x)
	p.Y.Set(&y)
	p.Z.SetInt(1)
	return &p
}()

// IsIdentity returns true for the identity (zero-value) commitment.
func (c Commitment) IsIdentity() bool {
	return c == Commitment{}
}

// Equal reports whether two commitments are byte-equal.
func (c Commitment) Equal(other Commitment) bool {
	return c == other
}

// String returns the hex-encoded commitment.
func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// Bytes returns a copy of the commitment as a byte slice.
func (c Commitment) Bytes() []byte {
	b := make([]byte, CommitmentSize)
	copy(b, c[:])
	return b
}

// MarshalJSON encodes the commitment as a hex string.
func (c Commitment) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a hex string into a commitment.
func (c *Commitment) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid commitment hex: %w", err)
	}
	if len(decoded) != CommitmentSize {
		return fmt.Errorf("commitment must be %d bytes, got %d", CommitmentSize, len(decoded))
	}
	copy(c[:], decoded)
	return nil
}

// CommitmentFromBytes parses a 33-byte serialized commitment.
func CommitmentFromBytes(b []byte) (Commitment, error) {
	if len(b) != CommitmentSize {
		return Commitment{}, fmt.Errorf("%w: %d bytes", ErrBadCommitment, len(b))
	}
	var c Commitment
	copy(c[:], b)
	if c.IsIdentity() {
		return c, nil
	}
	if _, err := secp256k1.ParsePubKey(c[:]); err != nil {
		return Commitment{}, fmt.Errorf("%w: %v", ErrBadCommitment, err)
	}
	return c, nil
}

// toJacobian decodes a commitment into a Jacobian point. The identity
// commitment decodes to the point at infinity.
func (c Commitment) toJacobian(result *secp256k1.JacobianPoint) error {
	if c.IsIdentity() {
		*result = secp256k1.JacobianPoint{}
		return nil
	}
	pub, err := secp256k1.ParsePubKey(c[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadCommitment, err)
	}
	pub.AsJacobian(result)
	return nil
}

// fromJacobian serializes a Jacobian point as a commitment. The point at
// infinity serializes to the identity commitment.
func fromJacobian(p *secp256k1.JacobianPoint) Commitment {
	if p.Z.Normalize().IsZero() {
		return Commitment{}
	}
	p.ToAffine()
	pub := secp256k1.NewPublicKey(&p.X, &p.Y)
	var c Commitment
	copy(c[:], pub.SerializeCompressed())
	return c
}

// AddCommitments returns the commitment whose value is the sum of the
// positives minus the sum of the negatives. Homomorphic: the blinding
// factors add the same way.
func AddCommitments(positives, negatives []Commitment) (Commitment, error) {
	var sum secp256k1.JacobianPoint
	var term secp256k1.JacobianPoint
	for _, c := range positives {
		if err := c.toJacobian(&term); err != nil {
			return Commitment{}, err
		}
		secp256k1.AddNonConst(&sum, &term, &sum)
	}
	for _, c := range negatives {
		if err := c.toJacobian(&term); err != nil {
			return Commitment{}, err
		}
		if !term.Z.Normalize().IsZero() {
			term.Y.Negate(1).Normalize()
		}
		secp256k1.AddNonConst(&sum, &term, &sum)
	}
	return fromJacobian(&sum), nil
}

// CommitTransparent returns the commitment to value with a zero blinding
// factor: value*H. Committing to zero yields the identity.
func CommitTransparent(value uint64) Commitment {
	if value == 0 {
		return Commitment{}
	}
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[24:], value)
	var k secp256k1.ModNScalar
	k.SetBytes(&buf)
	var p secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&k, genH, &p)
	return fromJacobian(&p)
}

// CommitBlind returns the commitment blind*G, a commitment to zero. This is
// how a kernel offset enters the sum equation.
func CommitBlind(blind BlindingFactor) (Commitment, error) {
	var k secp256k1.ModNScalar
	if overflow := k.SetBytes((*[32]byte)(&blind)); overflow != 0 {
		return Commitment{}, ErrBadBlinding
	}
	if k.IsZero() {
		return Commitment{}, nil
	}
	var p secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&k, &p)
	return fromJacobian(&p), nil
}

// Commit returns the full Pedersen commitment blind*G + value*H.
func Commit(value uint64, blind BlindingFactor) (Commitment, error) {
	blindPart, err := CommitBlind(blind)
	if err != nil {
		return Commitment{}, err
	}
	return AddCommitments([]Commitment{blindPart, CommitTransparent(value)}, nil)
}

// BlindSum adds and subtracts blinding factors mod the curve order.
func BlindSum(positives, negatives []BlindingFactor) (BlindingFactor, error) {
	var sum secp256k1.ModNScalar
	var term secp256k1.ModNScalar
	for _, b := range positives {
		if overflow := term.SetBytes((*[32]byte)(&b)); overflow != 0 {
			return BlindingFactor{}, ErrBadBlinding
		}
		sum.Add(&term)
	}
	for _, b := range negatives {
		if overflow := term.SetBytes((*[32]byte)(&b)); overflow != 0 {
			return BlindingFactor{}, ErrBadBlinding
		}
		term.Negate()
		sum.Add(&term)
	}
	var out BlindingFactor
	sum.PutBytes((*[32]byte)(&out))
	return out, nil
}

// IsZero returns true for the all-zero blinding factor.
func (b BlindingFactor) IsZero() bool {
	return b == BlindingFactor{}
}

// String returns the hex-encoded blinding factor.
func (b BlindingFactor) String() string {
	return hex.EncodeToString(b[:])
}

// MarshalJSON encodes the blinding factor as a hex string.
func (b BlindingFactor) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON decodes a hex string into a blinding factor.
func (b *BlindingFactor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid blinding factor hex: %w", err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("blinding factor must be 32 bytes, got %d", len(decoded))
	}
	copy(b[:], decoded)
	return nil
}
