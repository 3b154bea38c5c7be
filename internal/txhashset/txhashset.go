package txhashset

import (
	"bytes"
	"sync"

	"github.com/shroudnet/shroud-node/pkg/core"
	"github.com/shroudnet/shroud-node/pkg/crypto"
	"github.com/shroudnet/shroud-node/pkg/types"
)

// Roots bundles the three MMR roots a header pins.
type Roots struct {
	Output     types.Hash `json:"output_root"`
	RangeProof types.Hash `json:"range_proof_root"`
	Kernel     types.Hash `json:"kernel_root"`
}

// TxHashSet is the node's view over the output, range-proof, and kernel
// MMRs. The block pipeline applies bodies; the validator only checks roots.
type TxHashSet struct {
	mu          sync.RWMutex
	outputs     *MMR
	rangeProofs *MMR
	kernels     *MMR
}

// New creates an empty TxHashSet.
func New() *TxHashSet {
	return &TxHashSet{
		outputs:     NewMMR(),
		rangeProofs: NewMMR(),
		kernels:     NewMMR(),
	}
}

// ApplyBlock appends the block body's outputs, range proofs, and kernels.
// Returns the MMR index at which the first new output landed.
func (t *TxHashSet) ApplyBlock(b *core.Block) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	firstOutputIdx := t.outputs.LeafCount()
	for i := range b.Body.Outputs {
		out := &b.Body.Outputs[i]
		t.outputs.Push(OutputLeaf(out))
		t.rangeProofs.Push(crypto.Blake2b(out.RangeProof))
	}
	for i := range b.Body.Kernels {
		t.kernels.Push(KernelLeaf(&b.Body.Kernels[i]))
	}
	return firstOutputIdx
}

// Marks returns the current leaf counts of the three MMRs, for a later
// Rewind if block validation fails after the body was applied.
func (t *TxHashSet) Marks() (outputs, rangeProofs, kernels uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.outputs.LeafCount(), t.rangeProofs.LeafCount(), t.kernels.LeafCount()
}

// Rewind truncates the three MMRs back to previously captured marks.
func (t *TxHashSet) Rewind(outputs, rangeProofs, kernels uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outputs.RewindTo(outputs)
	t.rangeProofs.RewindTo(rangeProofs)
	t.kernels.RewindTo(kernels)
}

// Roots returns the current roots of the three MMRs.
func (t *TxHashSet) Roots() Roots {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Roots{
		Output:     t.outputs.Root(),
		RangeProof: t.rangeProofs.Root(),
		Kernel:     t.kernels.Root(),
	}
}

// ValidateRoots reports whether the current MMR roots and sizes agree with
// the given header.
func (t *TxHashSet) ValidateRoots(h *core.Header) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.outputs.Root() != h.OutputRoot {
		return false
	}
	if t.rangeProofs.Root() != h.RangeProofRoot {
		return false
	}
	if t.kernels.Root() != h.KernelRoot {
		return false
	}
	if t.outputs.Size() != h.OutputMMRSize || t.kernels.Size() != h.KernelMMRSize {
		return false
	}
	return true
}

// Sizes returns the node counts of the output and kernel MMRs, the values
// a new header must carry.
func (t *TxHashSet) Sizes() (outputSize, kernelSize uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.outputs.Size(), t.kernels.Size()
}

// LastOutputs returns the hashes of the most recent n output leaves.
func (t *TxHashSet) LastOutputs(n uint64) []types.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.outputs.LastN(n)
}

// LastRangeProofs returns the hashes of the most recent n range-proof leaves.
func (t *TxHashSet) LastRangeProofs(n uint64) []types.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rangeProofs.LastN(n)
}

// LastKernels returns the hashes of the most recent n kernel leaves.
func (t *TxHashSet) LastKernels(n uint64) []types.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.kernels.LastN(n)
}

// OutputLeaf hashes an output (features and commitment) into its MMR leaf.
func OutputLeaf(out *core.Output) types.Hash {
	var buf bytes.Buffer
	buf.WriteByte(uint8(out.Features))
	buf.Write(out.Commitment[:])
	return crypto.Blake2b(buf.Bytes())
}

// KernelLeaf hashes a kernel into its MMR leaf.
func KernelLeaf(k *core.Kernel) types.Hash {
	var buf bytes.Buffer
	// Serialization into a buffer cannot fail.
	_ = k.Serialize(&buf)
	return crypto.Blake2b(buf.Bytes())
}
