// Package txhashset maintains the append-only MMRs that authenticate the
// chain state: one each for outputs, range proofs, and kernels. The roots
// of the three MMRs are pinned by every block header.
package txhashset

import (
	"math/bits"

	"github.com/shroudnet/shroud-node/pkg/crypto"
	"github.com/shroudnet/shroud-node/pkg/types"
)

// MMR is a Merkle Mountain Range over 32-byte leaves. Leaves are retained
// in append order; roots are computed by bagging the peaks of the perfect
// subtrees given by the binary decomposition of the leaf count.
type MMR struct {
	leaves []types.Hash
}

// NewMMR creates an empty MMR.
func NewMMR() *MMR {
	return &MMR{}
}

// Push appends a leaf.
func (m *MMR) Push(leaf types.Hash) {
	m.leaves = append(m.leaves, leaf)
}

// LeafCount returns the number of leaves.
func (m *MMR) LeafCount() uint64 {
	return uint64(len(m.leaves))
}

// Size returns the MMR node count (leaves plus internal nodes), the value
// headers carry as the MMR size.
func (m *MMR) Size() uint64 {
	n := uint64(len(m.leaves))
	if n == 0 {
		return 0
	}
	return 2*n - uint64(bits.OnesCount64(n))
}

// Root returns the bagged-peaks root, or the zero hash for an empty MMR.
func (m *MMR) Root() types.Hash {
	if len(m.leaves) == 0 {
		return types.Hash{}
	}

	// Split the leaves into perfect subtrees, largest first.
	var peaks []types.Hash
	rest := m.leaves
	for len(rest) > 0 {
		span := 1 << (bits.Len(uint(len(rest))) - 1)
		peaks = append(peaks, subtreeRoot(rest[:span]))
		rest = rest[span:]
	}

	// Bag peaks right to left.
	root := peaks[len(peaks)-1]
	for i := len(peaks) - 2; i >= 0; i-- {
		root = crypto.HashConcat(peaks[i], root)
	}
	return root
}

// RewindTo truncates the MMR back to the given leaf count. A no-op when
// the MMR is already at or below it.
func (m *MMR) RewindTo(leafCount uint64) {
	if leafCount < uint64(len(m.leaves)) {
		m.leaves = m.leaves[:leafCount]
	}
}

// LastN returns the most recent n leaves, newest last. Returns all leaves
// when n exceeds the leaf count.
func (m *MMR) LastN(n uint64) []types.Hash {
	count := uint64(len(m.leaves))
	if n > count {
		n = count
	}
	out := make([]types.Hash, n)
	copy(out, m.leaves[count-n:])
	return out
}

// subtreeRoot computes the merkle root of a perfect power-of-two leaf span.
func subtreeRoot(leaves []types.Hash) types.Hash {
	if len(leaves) == 1 {
		return leaves[0]
	}
	mid := len(leaves) / 2
	return crypto.HashConcat(subtreeRoot(leaves[:mid]), subtreeRoot(leaves[mid:]))
}
