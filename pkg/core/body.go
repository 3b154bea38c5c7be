package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/shroudnet/shroud-node/config"
	"github.com/shroudnet/shroud-node/pkg/crypto"
)

// OutputFeatures marks outputs (and the inputs that spend them) as plain or
// coinbase.
type OutputFeatures uint8

const (
	OutputPlain OutputFeatures = iota
	OutputCoinbase
)

// Body validation errors.
var (
	ErrBadSortOrder       = errors.New("elements not in canonical order")
	ErrDuplicateElement   = errors.New("duplicate element in body")
	ErrBodyTooHeavy       = errors.New("body weight exceeds consensus limit")
	ErrBadRangeProof      = errors.New("invalid range proof")
	ErrBadKernelSignature = errors.New("kernel signature does not verify")
	ErrBodySumMismatch    = errors.New("body commitment sums do not balance")
)

// Input spends an existing output, referenced by its commitment.
type Input struct {
	Features   OutputFeatures    `json:"features"`
	Commitment crypto.Commitment `json:"commit"`
}

// IsCoinbase reports whether the input spends a coinbase output.
func (in *Input) IsCoinbase() bool {
	return in.Features == OutputCoinbase
}

// Output is a new commitment with an attached range proof.
type Output struct {
	Features   OutputFeatures    `json:"features"`
	Commitment crypto.Commitment `json:"commit"`
	RangeProof []byte            `json:"proof"`
}

// IsCoinbase reports whether the output carries coinbase features.
func (out *Output) IsCoinbase() bool {
	return out.Features == OutputCoinbase
}

// VerifyRangeProof checks the structural validity of the output's range
// proof: fixed length and not degenerate.
func (out *Output) VerifyRangeProof() bool {
	if len(out.RangeProof) != config.RangeProofSize {
		return false
	}
	for _, b := range out.RangeProof {
		if b != 0 {
			return true
		}
	}
	return false
}

// TransactionBody holds the inputs, outputs, and kernels of a transaction
// or a block. All three sequences are canonically sorted and duplicate-free.
type TransactionBody struct {
	Inputs  []Input  `json:"inputs"`
	Outputs []Output `json:"outputs"`
	Kernels []Kernel `json:"kernels"`
}

// Weight returns the consensus weight of the body.
func (b *TransactionBody) Weight() uint64 {
	return config.BlockWeight(len(b.Inputs), len(b.Outputs), len(b.Kernels))
}

// Validate checks the stateless consistency of the body: canonical sort
// order with no duplicates, weight, range proofs, kernel signatures, and —
// unless the body belongs to a block, where the coinbase adjustment is
// applied at block level instead — the commitment sum balance.
func (b *TransactionBody) Validate(inBlock bool) error {
	if b.Weight() > config.MaxBlockWeight {
		return fmt.Errorf("%w: %d > %d", ErrBodyTooHeavy, b.Weight(), config.MaxBlockWeight)
	}
	if err := b.verifySorted(); err != nil {
		return err
	}
	for i := range b.Outputs {
		if !b.Outputs[i].VerifyRangeProof() {
			return fmt.Errorf("output %d: %w", i, ErrBadRangeProof)
		}
	}
	for i := range b.Kernels {
		if !b.Kernels[i].VerifySignature() {
			return fmt.Errorf("kernel %d: %w", i, ErrBadKernelSignature)
		}
	}
	if !inBlock {
		if err := b.verifySums(); err != nil {
			return err
		}
	}
	return nil
}

// verifySorted enforces ascending commitment/excess order with no duplicates
// in each of the three sequences.
func (b *TransactionBody) verifySorted() error {
	for i := 1; i < len(b.Inputs); i++ {
		switch bytes.Compare(b.Inputs[i-1].Commitment[:], b.Inputs[i].Commitment[:]) {
		case 0:
			return fmt.Errorf("input %d: %w", i, ErrDuplicateElement)
		case 1:
			return fmt.Errorf("input %d: %w", i, ErrBadSortOrder)
		}
	}
	for i := 1; i < len(b.Outputs); i++ {
		switch bytes.Compare(b.Outputs[i-1].Commitment[:], b.Outputs[i].Commitment[:]) {
		case 0:
			return fmt.Errorf("output %d: %w", i, ErrDuplicateElement)
		case 1:
			return fmt.Errorf("output %d: %w", i, ErrBadSortOrder)
		}
	}
	for i := 1; i < len(b.Kernels); i++ {
		switch bytes.Compare(b.Kernels[i-1].Excess[:], b.Kernels[i].Excess[:]) {
		case 0:
			return fmt.Errorf("kernel %d: %w", i, ErrDuplicateElement)
		case 1:
			return fmt.Errorf("kernel %d: %w", i, ErrBadSortOrder)
		}
	}
	return nil
}

// verifySums checks that for a standalone (non-coinbase) body,
// sum(outputs) - sum(inputs) = sum(kernel excesses) + fee*H.
func (b *TransactionBody) verifySums() error {
	fees, err := SumFees(b.Kernels)
	if err != nil {
		return err
	}

	outputs := make([]crypto.Commitment, 0, len(b.Outputs))
	for i := range b.Outputs {
		outputs = append(outputs, b.Outputs[i].Commitment)
	}
	inputs := make([]crypto.Commitment, 0, len(b.Inputs))
	for i := range b.Inputs {
		inputs = append(inputs, b.Inputs[i].Commitment)
	}
	left, err := crypto.AddCommitments(outputs, inputs)
	if err != nil {
		return err
	}

	excesses := make([]crypto.Commitment, 0, len(b.Kernels)+1)
	for i := range b.Kernels {
		excesses = append(excesses, b.Kernels[i].Excess)
	}
	excesses = append(excesses, crypto.CommitTransparent(fees))
	right, err := crypto.AddCommitments(excesses, nil)
	if err != nil {
		return err
	}

	if !left.Equal(right) {
		return ErrBodySumMismatch
	}
	return nil
}

// maxBodyElements bounds decoded element counts; far above anything a
// weight-valid body can hold.
const maxBodyElements = 1 << 20

// Serialize writes the body in wire order at the given protocol version.
func (b *TransactionBody) Serialize(w io.Writer, version uint32) error {
	if err := writeUint64(w, uint64(len(b.Inputs))); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(len(b.Outputs))); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(len(b.Kernels))); err != nil {
		return err
	}
	for i := range b.Inputs {
		in := &b.Inputs[i]
		if err := writeUint8(w, uint8(in.Features)); err != nil {
			return err
		}
		if err := writeBytes(w, in.Commitment[:]); err != nil {
			return err
		}
	}
	for i := range b.Outputs {
		if err := serializeOutput(w, &b.Outputs[i], version); err != nil {
			return err
		}
	}
	for i := range b.Kernels {
		if err := b.Kernels[i].Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// serializeOutput writes one output. V1 length-prefixes the range proof;
// V2 relies on the fixed proof size.
func serializeOutput(w io.Writer, out *Output, version uint32) error {
	if err := writeUint8(w, uint8(out.Features)); err != nil {
		return err
	}
	if err := writeBytes(w, out.Commitment[:]); err != nil {
		return err
	}
	if version < config.ProtocolV2 {
		if err := writeUint64(w, uint64(len(out.RangeProof))); err != nil {
			return err
		}
	}
	return writeBytes(w, out.RangeProof)
}

// DeserializeBody reads a body in wire order at the given protocol version.
func DeserializeBody(r io.Reader, version uint32) (TransactionBody, error) {
	var b TransactionBody
	numInputs, err := readCount(r, maxBodyElements)
	if err != nil {
		return b, err
	}
	numOutputs, err := readCount(r, maxBodyElements)
	if err != nil {
		return b, err
	}
	numKernels, err := readCount(r, maxBodyElements)
	if err != nil {
		return b, err
	}

	b.Inputs = make([]Input, 0, numInputs)
	for i := uint64(0); i < numInputs; i++ {
		features, err := readUint8(r)
		if err != nil {
			return b, err
		}
		if features > uint8(OutputCoinbase) {
			return b, fmt.Errorf("invalid input features %d", features)
		}
		commit, err := readCommitment(r)
		if err != nil {
			return b, err
		}
		b.Inputs = append(b.Inputs, Input{Features: OutputFeatures(features), Commitment: commit})
	}

	b.Outputs = make([]Output, 0, numOutputs)
	for i := uint64(0); i < numOutputs; i++ {
		out, err := deserializeOutput(r, version)
		if err != nil {
			return b, err
		}
		b.Outputs = append(b.Outputs, out)
	}

	b.Kernels = make([]Kernel, 0, numKernels)
	for i := uint64(0); i < numKernels; i++ {
		k, err := DeserializeKernel(r)
		if err != nil {
			return b, err
		}
		b.Kernels = append(b.Kernels, k)
	}
	return b, nil
}

func deserializeOutput(r io.Reader, version uint32) (Output, error) {
	var out Output
	features, err := readUint8(r)
	if err != nil {
		return out, err
	}
	if features > uint8(OutputCoinbase) {
		return out, fmt.Errorf("invalid output features %d", features)
	}
	out.Features = OutputFeatures(features)
	if out.Commitment, err = readCommitment(r); err != nil {
		return out, err
	}

	proofLen := uint64(config.RangeProofSize)
	if version < config.ProtocolV2 {
		if proofLen, err = readCount(r, config.RangeProofSize); err != nil {
			return out, err
		}
	}
	out.RangeProof = make([]byte, proofLen)
	if _, err = io.ReadFull(r, out.RangeProof); err != nil {
		return out, err
	}
	return out, nil
}
