package shipwright

import (
	"testing"

	voxel "nickandperla.net/voxel"
)

func builtStructure(t *testing.T, s string) *CandidateSolution {
	t.Helper()
	ls := shipLSystem(42, nil)
	cs := NewCandidateSolution(s)
	if err := ls.SetStructure(cs); err != nil {
		t.Fatalf("Failed to build structure for [%s]: %v", s, err)
	}
	return cs
}

func TestEvaluateAtCountsByLevel(t *testing.T) {
	pass := func(*CandidateSolution) bool { return true }
	fail := func(*CandidateSolution) bool { return false }
	set := &ConstraintSet{
		Name: "mixed",
		Handlers: []*ConstraintHandler{
			{Name: "h1", Level: HardConstraint, When: EndOfExpansion, Check: fail},
			{Name: "h2", Level: HardConstraint, When: EndOfExpansion, Check: pass},
			{Name: "s1", Level: SoftConstraint, When: EndOfExpansion, Check: fail},
			{Name: "s2", Level: SoftConstraint, When: EndOfExpansion, Check: fail},
			{Name: "other-time", Level: HardConstraint, When: DuringExpansion, Check: fail},
		},
	}

	cs := NewCandidateSolution("c")
	hard, soft, firstHard := set.EvaluateAt(cs, EndOfExpansion, false)
	if hard != 1 {
		t.Errorf("Hard count [%d] is not expected value [1]", hard)
	}
	if soft != 2 {
		t.Errorf("Soft count [%d] is not expected value [2]", soft)
	}
	if firstHard != "h1" {
		t.Errorf("First hard failure [%s] is not expected value [h1]", firstHard)
	}
}

func TestEvaluateAtDefersNeedsLL(t *testing.T) {
	fail := func(*CandidateSolution) bool { return false }
	set := &ConstraintSet{
		Name: "deferred",
		Handlers: []*ConstraintHandler{
			{Name: "needs-ll", Level: HardConstraint, When: EndOfExpansion, NeedsLL: true, Check: fail},
		},
	}

	cs := NewCandidateSolution("c")
	if hard, _, _ := set.EvaluateAt(cs, EndOfExpansion, false); hard != 0 {
		t.Errorf("NeedsLL handler ran without the low-level translation, hard=%d", hard)
	}
	if hard, _, _ := set.EvaluateAt(cs, EndOfExpansion, true); hard != 1 {
		t.Errorf("NeedsLL handler skipped with the translation available, hard=%d", hard)
	}
}

func TestNoIntersectionConstraint(t *testing.T) {
	alphabet := shipAlphabet()
	h := NewNoIntersectionConstraint(alphabet, nil)

	if !h.Check(NewCandidateSolution("c>a>t")) {
		t.Error("Disjoint placements should pass")
	}
	if h.Check(NewCandidateSolution("ca")) {
		t.Error("Two placements on the same cell should fail")
	}
}

func TestNoIntersectionConstraintSkipsNonterminals(t *testing.T) {
	alphabet := shipAlphabet()
	alphabet.RegisterNonterminals([]string{"body"})
	h := NewNoIntersectionConstraint(alphabet, nil)

	if !h.Check(NewCandidateSolution("c>body>a")) {
		t.Error("A partial string with nonterminals should pass the dry run")
	}
}

func TestNoIntersectionConstraintToleratesOpenBranch(t *testing.T) {
	alphabet := shipAlphabet()
	h := NewNoIntersectionConstraint(alphabet, nil)

	// Mid-derivation a branch may not be closed yet.
	if !h.Check(NewCandidateSolution("c>[^a")) {
		t.Error("An open branch should be tolerated during expansion")
	}
}

func TestRequiredComponentsConstraint(t *testing.T) {
	h := NewRequiredComponentsConstraint(map[string]int{"cockpit": 1})

	with := builtStructure(t, "cockpit>corridor")
	without := builtStructure(t, "corridor>corridor")

	if !h.Check(with) {
		t.Error("Structure with a cockpit should pass")
	}
	if h.Check(without) {
		t.Error("Structure without a cockpit should fail")
	}
	if h.Check(NewCandidateSolution("cockpit")) {
		t.Error("A candidate without a built structure should fail")
	}
}

func TestMaxDimensionsConstraint(t *testing.T) {
	h := NewMaxDimensionsConstraint(voxel.V(2, 2, 2))

	small := builtStructure(t, "cockpit>corridor")
	long := builtStructure(t, "cockpit>corridor>corridor>corridor")

	if !h.Check(small) {
		t.Error("A 2x1x1 structure should fit in 2x2x2")
	}
	if h.Check(long) {
		t.Error("A 4x1x1 structure should not fit in 2x2x2")
	}
}

func TestSymmetryScore(t *testing.T) {
	// A single row along X is trivially mirror-symmetric across the Z
	// midplane.
	row := builtStructure(t, "cockpit>corridor>corridor")
	if score := SymmetryScore(row.Structure()); score != 1.0 {
		t.Errorf("Row symmetry [%v] is not expected value [1.0]", score)
	}

	// An L-shape off the midplane is not fully symmetric.
	ls := shipLSystem(42, nil)
	asym := NewCandidateSolution("c>a}a")
	if err := ls.SetStructure(asym); err != nil {
		t.Fatalf("Failed to build structure: %v", err)
	}
	if score := SymmetryScore(asym.Structure()); score >= 1.0 {
		t.Errorf("Asymmetric structure scored [%v], expected < 1.0", score)
	}
}
