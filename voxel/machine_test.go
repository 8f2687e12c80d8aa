package voxel

import (
	"errors"
	"reflect"
	"testing"
)

func testAlphabetAtoms() map[string]Atom {
	return map[string]Atom{
		"F":  MoveAtom("F", V(1, 0, 0)),
		"U":  MoveAtom("U", V(0, 1, 0)),
		"R":  RotateAtom("R", PlaneXZ, Clockwise),
		"[":  PushAtom("["),
		"]":  PopAtom("]"),
		"b":  PlaceAtom("b", "armor", false, V(0, 0, 0), V(1, 1, 1)),
		"ck": PlaceAtom("ck", "cockpit", true, V(0, 0, 0), V(1, 1, 1)),
	}
}

func atomsOf(t *testing.T, symbols ...string) []Atom {
	t.Helper()
	proto := testAlphabetAtoms()
	out := make([]Atom, 0, len(symbols))
	for _, s := range symbols {
		a, ok := proto[s]
		if !ok {
			t.Fatalf("test alphabet has no symbol [%s]", s)
		}
		out = append(out, a)
	}
	return out
}

func TestFillSingleBlock(t *testing.T) {
	m := NewMachine(nil)
	st, err := m.Fill(NewStructure(), atomsOf(t, "ck"))
	if err != nil {
		t.Fatalf("Unexpected failure calling Machine.Fill. %v", err)
	}
	if st.BlockCount() != 1 {
		t.Errorf("Block count [%d] is not 1", st.BlockCount())
	}
	b := st.At(V(0, 0, 0))
	if b == nil {
		t.Fatalf("No block at origin")
	}
	if b.Type != "cockpit" || !b.Functional {
		t.Errorf("Block at origin is [%v], expected functional cockpit", b)
	}
}

func TestFillPushPopRestoresCursor(t *testing.T) {
	m := NewMachine(nil)
	// b [ F F R b ] b : the two outer blocks must sit on adjacent cells of
	// the branch-free path, since ] restores the pre-[ cursor exactly.
	_, err := m.Fill(NewStructure(), atomsOf(t, "b", "[", "F", "F", "R", "b", "]"))
	if err != nil {
		t.Fatalf("Unexpected failure calling Machine.Fill. %v", err)
	}
	if m.Position() != V(0, 0, 0) {
		t.Errorf("Cursor after pop is %v, expected origin", m.Position())
	}
	if m.Frame() != DefaultOrientation() {
		t.Errorf("Frame after pop is %+v, expected default", m.Frame())
	}
	if m.Depth() != 0 {
		t.Errorf("Stack depth after balanced string is %d", m.Depth())
	}
}

func TestFillUnbalancedPop(t *testing.T) {
	m := NewMachine(nil)
	_, err := m.Fill(NewStructure(), atomsOf(t, "b", "]"))
	var scope *UnbalancedScopeError
	if !errors.As(err, &scope) {
		t.Fatalf("Expected UnbalancedScopeError, got %v", err)
	}
	if scope.Index != 1 {
		t.Errorf("Scope error index [%d] is not 1", scope.Index)
	}
}

func TestFillIntersection(t *testing.T) {
	m := NewMachine(nil)
	_, err := m.Fill(NewStructure(), atomsOf(t, "b", "b"))
	var hit *IntersectionError
	if !errors.As(err, &hit) {
		t.Fatalf("Expected IntersectionError, got %v", err)
	}
	if hit.BlockType != "armor" || hit.Existing != "armor" {
		t.Errorf("Intersection error types [%s]/[%s] unexpected", hit.BlockType, hit.Existing)
	}
}

func TestFillDeterministic(t *testing.T) {
	atoms := atomsOf(t, "b", "F", "b", "R", "F", "b", "[", "U", "b", "]", "F", "b")
	first, err := NewMachine(nil).Fill(NewStructure(), atoms)
	if err != nil {
		t.Fatalf("Unexpected failure on first fill. %v", err)
	}
	second, err := NewMachine(nil).Fill(NewStructure(), atoms)
	if err != nil {
		t.Fatalf("Unexpected failure on second fill. %v", err)
	}
	if !reflect.DeepEqual(first.OccupiedCells(), second.OccupiedCells()) {
		t.Errorf("Occupied cells differ between identical fills:\n%v\n%v",
			first.OccupiedCells(), second.OccupiedCells())
	}
}

func TestFillNoDuplicateCells(t *testing.T) {
	atoms := atomsOf(t, "b", "F", "b", "U", "b", "R", "F", "b")
	st, err := NewMachine(nil).Fill(NewStructure(), atoms)
	if err != nil {
		t.Fatalf("Unexpected failure calling Machine.Fill. %v", err)
	}
	seen := make(map[Vec]bool)
	for _, b := range st.Blocks() {
		for _, c := range b.Cells {
			if seen[c] {
				t.Errorf("Cell %v occupied by more than one block", c)
			}
			seen[c] = true
		}
	}
}

func TestFillOpBudget(t *testing.T) {
	m := NewMachine(&MachineConfig{MaxOpsExecuted: 2})
	_, err := m.Fill(NewStructure(), atomsOf(t, "F", "F", "F"))
	if !errors.Is(err, ErrMaxOpsExecuted) {
		t.Errorf("Expected ErrMaxOpsExecuted, got %v", err)
	}
}

func TestSanifyAnchorsAtOrigin(t *testing.T) {
	// Walk backwards before placing so the raw cells go negative.
	proto := testAlphabetAtoms()
	back := MoveAtom("B", V(-1, 0, 0))
	atoms := []Atom{back, back, proto["b"], back, proto["b"]}
	st, err := NewMachine(nil).Fill(NewStructure(), atoms)
	if err != nil {
		t.Fatalf("Unexpected failure calling Machine.Fill. %v", err)
	}
	min, max, ok := st.BoundingBox()
	if !ok {
		t.Fatalf("Empty structure after fill")
	}
	if min != V(0, 0, 0) {
		t.Errorf("Sanified min corner is %v, expected origin", min)
	}
	if max != V(1, 0, 0) {
		t.Errorf("Sanified max corner is %v, expected (1,0,0)", max)
	}
	if st.Origin != V(-3, 0, 0) {
		t.Errorf("Origin shift is %v, expected (-3,0,0)", st.Origin)
	}
	if st.Dims() != V(2, 1, 1) {
		t.Errorf("Dims are %v, expected (2,1,1)", st.Dims())
	}
}

func TestMultiCellTile(t *testing.T) {
	tile := PlaceAtom("thr", "thruster", true, V(0, 0, 0), V(2, 1, 2))
	st, err := NewMachine(nil).Fill(NewStructure(), []Atom{tile})
	if err != nil {
		t.Fatalf("Unexpected failure calling Machine.Fill. %v", err)
	}
	if st.BlockCount() != 1 {
		t.Errorf("Tile placed as [%d] blocks, expected 1", st.BlockCount())
	}
	if st.OccupiedVolume() != 4 {
		t.Errorf("Tile occupies [%d] cells, expected 4", st.OccupiedVolume())
	}
	if st.Blocks()[0].Volume() != 4 {
		t.Errorf("Tile volume [%d] is not 4", st.Blocks()[0].Volume())
	}
}
