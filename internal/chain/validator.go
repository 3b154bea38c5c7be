package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shroudnet/shroud-node/config"
	"github.com/shroudnet/shroud-node/internal/storage"
	"github.com/shroudnet/shroud-node/pkg/core"
	"github.com/shroudnet/shroud-node/pkg/crypto"
	"github.com/shroudnet/shroud-node/pkg/types"
)

// StoreReader is the read-only slice of the chain store the validator needs.
type StoreReader interface {
	OutputPosition(commit crypto.Commitment) (OutputLocation, error)
	BlockSums(hash types.Hash) (core.BlockSums, error)
	Header(hash types.Hash) (*core.Header, error)
}

// RootsView verifies the current MMR roots against a header. The block
// pipeline applies the body before validation; the validator only checks.
type RootsView interface {
	ValidateRoots(h *core.Header) bool
}

// Validator decides whether a full block may extend the chain. It reads
// from the store and roots view and never mutates either.
type Validator struct {
	store StoreReader
	view  RootsView

	// Blocks that already passed self-consistency this process, by hash.
	// Failure never marks a block.
	mu        sync.Mutex
	validated map[types.Hash]struct{}
}

// NewValidator creates a block validator over the given store and view.
func NewValidator(store StoreReader, view RootsView) *Validator {
	return &Validator{
		store:     store,
		view:      view,
		validated: make(map[types.Hash]struct{}),
	}
}

// ValidateBlock checks a block for self-consistency and state-consistency
// and returns the block's new cumulative sums. Fails with ErrBadData on a
// consensus violation and ErrChainMissingData when the parent's sums are
// not yet known.
func (v *Validator) ValidateBlock(b *core.Block) (core.BlockSums, error) {
	if err := v.verifySelfConsistent(b); err != nil {
		return core.BlockSums{}, err
	}

	// Coinbase maturity: every coinbase input must spend an output old
	// enough to have matured.
	maxHeight := config.MaxCoinbaseHeight(b.Height())
	for i := range b.Body.Inputs {
		in := &b.Body.Inputs[i]
		if !in.IsCoinbase() {
			continue
		}
		loc, err := v.store.OutputPosition(in.Commitment)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return core.BlockSums{}, fmt.Errorf("%w: coinbase input %s has no known position", ErrBadData, in.Commitment)
			}
			return core.BlockSums{}, err
		}
		if loc.BlockHeight > maxHeight {
			return core.BlockSums{}, fmt.Errorf("%w: coinbase input %s not mature (created at %d, block %d)",
				ErrBadData, in.Commitment, loc.BlockHeight, b.Height())
		}
	}

	if !v.view.ValidateRoots(&b.Header) {
		return core.BlockSums{}, fmt.Errorf("%w: txhashset roots do not match header %s", ErrBadData, b.Hash().Short())
	}

	// Parent sums. Genesis extends nothing: its "previous" sums are the
	// identity and the balance equation holds against them directly.
	var prevSums core.BlockSums
	if b.Height() > 0 {
		var err error
		prevSums, err = v.store.BlockSums(b.Header.Previous)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return core.BlockSums{}, fmt.Errorf("%w: no sums for parent %s", ErrChainMissingData, b.Header.Previous.Short())
			}
			return core.BlockSums{}, err
		}
	}

	return v.validateKernelSums(b, prevSums)
}

// verifySelfConsistent checks everything that needs no chain state: body
// validity, kernel lock heights, and the coinbase equation. A block that
// passes once is remembered by hash and not re-checked.
func (v *Validator) verifySelfConsistent(b *core.Block) error {
	hash := b.Hash()
	v.mu.Lock()
	_, done := v.validated[hash]
	v.mu.Unlock()
	if done {
		return nil
	}

	if err := b.Body.Validate(true); err != nil {
		return fmt.Errorf("%w: %v", ErrBadData, err)
	}

	// No kernel may lock past the block it is included in.
	for i := range b.Body.Kernels {
		if b.Body.Kernels[i].LockHeight > b.Height() {
			return fmt.Errorf("%w: kernel %d lock height %d > block height %d",
				ErrBadData, i, b.Body.Kernels[i].LockHeight, b.Height())
		}
	}

	if err := v.verifyCoinbase(b); err != nil {
		return err
	}

	v.mu.Lock()
	v.validated[hash] = struct{}{}
	v.mu.Unlock()
	return nil
}

// verifyCoinbase checks that the coinbase outputs balance the coinbase
// kernels accounting for the block reward and all fees:
//
//	sum(coinbase outputs) - (reward + fees)*H = sum(coinbase kernel excesses)
func (v *Validator) verifyCoinbase(b *core.Block) error {
	fees, err := core.SumFees(b.Body.Kernels)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadData, err)
	}
	reward := config.Reward + fees
	if reward < fees {
		return fmt.Errorf("%w: %v", ErrBadData, core.ErrFeeOverflow)
	}

	outputAdjustedSum, err := crypto.AddCommitments(
		b.CoinbaseOutputCommitments(),
		[]crypto.Commitment{crypto.CommitTransparent(reward)},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadData, err)
	}
	kernelSum, err := crypto.AddCommitments(b.CoinbaseKernelExcesses(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadData, err)
	}

	if !kernelSum.Equal(outputAdjustedSum) {
		return fmt.Errorf("%w: coinbase outputs do not balance coinbase kernels for block %s", ErrBadData, b.Hash().Short())
	}
	return nil
}

// validateKernelSums folds the block into the parent's cumulative sums and
// verifies the chain-wide balance equation:
//
//	output_sum = kernel_sum + total_kernel_offset*G
//
// where output_sum already nets out every block's reward.
func (v *Validator) validateKernelSums(b *core.Block, prevSums core.BlockSums) (core.BlockSums, error) {
	outputs := make([]crypto.Commitment, 0, len(b.Body.Outputs)+1)
	outputs = append(outputs, prevSums.OutputSum)
	for i := range b.Body.Outputs {
		outputs = append(outputs, b.Body.Outputs[i].Commitment)
	}
	inputs := make([]crypto.Commitment, 0, len(b.Body.Inputs)+1)
	for i := range b.Body.Inputs {
		inputs = append(inputs, b.Body.Inputs[i].Commitment)
	}
	inputs = append(inputs, crypto.CommitTransparent(config.Reward))

	outputSum, err := crypto.AddCommitments(outputs, inputs)
	if err != nil {
		return core.BlockSums{}, fmt.Errorf("%w: %v", ErrBadData, err)
	}

	excesses := make([]crypto.Commitment, 0, len(b.Body.Kernels)+1)
	excesses = append(excesses, prevSums.KernelSum)
	for i := range b.Body.Kernels {
		excesses = append(excesses, b.Body.Kernels[i].Excess)
	}
	kernelSum, err := crypto.AddCommitments(excesses, nil)
	if err != nil {
		return core.BlockSums{}, fmt.Errorf("%w: %v", ErrBadData, err)
	}

	offsetCommit, err := crypto.CommitBlind(b.Header.TotalKernelOffset)
	if err != nil {
		return core.BlockSums{}, fmt.Errorf("%w: %v", ErrBadData, err)
	}
	kernelSumPlusOffset, err := crypto.AddCommitments([]crypto.Commitment{kernelSum, offsetCommit}, nil)
	if err != nil {
		return core.BlockSums{}, fmt.Errorf("%w: %v", ErrBadData, err)
	}

	if !outputSum.Equal(kernelSumPlusOffset) {
		return core.BlockSums{}, fmt.Errorf("%w: block %s sums do not balance", ErrBadData, b.Hash().Short())
	}

	return core.BlockSums{OutputSum: outputSum, KernelSum: kernelSum}, nil
}
