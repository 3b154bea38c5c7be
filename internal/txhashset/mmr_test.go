package txhashset

import (
	"testing"

	"github.com/shroudnet/shroud-node/pkg/crypto"
	"github.com/shroudnet/shroud-node/pkg/types"
)

func leaf(name string) types.Hash {
	return crypto.Blake2b([]byte(name))
}

func TestMMR_EmptyRoot(t *testing.T) {
	m := NewMMR()
	if !m.Root().IsZero() {
		t.Error("empty MMR should have a zero root")
	}
	if m.Size() != 0 {
		t.Errorf("empty MMR size should be 0, got %d", m.Size())
	}
}

func TestMMR_RootChangesOnPush(t *testing.T) {
	m := NewMMR()
	m.Push(leaf("a"))
	first := m.Root()
	m.Push(leaf("b"))
	second := m.Root()
	if first == second {
		t.Error("root must change when a leaf is appended")
	}
}

func TestMMR_SingleLeafRootIsLeaf(t *testing.T) {
	m := NewMMR()
	m.Push(leaf("only"))
	if m.Root() != leaf("only") {
		t.Error("single-leaf root should be the leaf itself")
	}
}

func TestMMR_Deterministic(t *testing.T) {
	build := func() types.Hash {
		m := NewMMR()
		for _, name := range []string{"a", "b", "c", "d", "e"} {
			m.Push(leaf(name))
		}
		return m.Root()
	}
	if build() != build() {
		t.Error("same leaves must give the same root")
	}
}

func TestMMR_SizeFormula(t *testing.T) {
	// Node count is 2n - popcount(n).
	tests := []struct {
		leaves uint64
		size   uint64
	}{
		{1, 1},
		{2, 3},
		{3, 4},
		{4, 7},
		{5, 8},
		{7, 11},
		{8, 15},
	}
	for _, tt := range tests {
		m := NewMMR()
		for i := uint64(0); i < tt.leaves; i++ {
			m.Push(leaf(string(rune('a' + i))))
		}
		if m.Size() != tt.size {
			t.Errorf("%d leaves: size %d, want %d", tt.leaves, m.Size(), tt.size)
		}
	}
}

func TestMMR_LastN(t *testing.T) {
	m := NewMMR()
	names := []string{"a", "b", "c", "d"}
	for _, n := range names {
		m.Push(leaf(n))
	}

	last := m.LastN(2)
	if len(last) != 2 || last[0] != leaf("c") || last[1] != leaf("d") {
		t.Errorf("LastN(2) should return the two newest leaves in order")
	}

	all := m.LastN(100)
	if len(all) != 4 {
		t.Errorf("LastN beyond the leaf count should return all %d leaves, got %d", 4, len(all))
	}
}

func TestMMR_RewindRestoresRoot(t *testing.T) {
	m := NewMMR()
	m.Push(leaf("a"))
	m.Push(leaf("b"))
	mark := m.LeafCount()
	before := m.Root()

	m.Push(leaf("c"))
	m.Push(leaf("d"))
	m.RewindTo(mark)

	if m.Root() != before {
		t.Error("rewind must restore the previous root")
	}
	if m.LeafCount() != mark {
		t.Errorf("rewind must restore the leaf count to %d, got %d", mark, m.LeafCount())
	}
}
