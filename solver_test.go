package shipwright

import (
	"errors"
	rnd "math/rand"
	"strings"
	"testing"

	voxel "nickandperla.net/voxel"
)

// shipAlphabet is the shared fixture: moves, rotations, block-level place
// atoms and the tile symbols the low-level rules expand.
func shipAlphabet() *Alphabet {
	unit := voxel.V(0, 0, 0)
	one := voxel.V(1, 1, 1)
	return NewAlphabet(map[string]voxel.Atom{
		">":        voxel.MoveAtom(">", voxel.V(1, 0, 0)),
		"<":        voxel.MoveAtom("<", voxel.V(-1, 0, 0)),
		"^":        voxel.MoveAtom("^", voxel.V(0, 1, 0)),
		"_":        voxel.MoveAtom("_", voxel.V(0, -1, 0)),
		"}":        voxel.MoveAtom("}", voxel.V(0, 0, 1)),
		"{":        voxel.MoveAtom("{", voxel.V(0, 0, -1)),
		"!":        voxel.RotateAtom("!", voxel.PlaneXY, voxel.Clockwise),
		"?":        voxel.RotateAtom("?", voxel.PlaneXY, voxel.CounterClockwise),
		"a":        voxel.PlaceAtom("a", "armor", false, unit, one),
		"c":        voxel.PlaceAtom("c", "cockpit", true, unit, one),
		"t":        voxel.PlaceAtom("t", "thruster", true, unit, one),
		"cockpit":  voxel.PlaceAtom("cockpit", "cockpit", true, unit, one),
		"corridor": voxel.PlaceAtom("corridor", "armor", false, unit, one),
		"thruster": voxel.PlaceAtom("thruster", "thruster", true, unit, one),
	})
}

// shipLSystem wires a small but complete grammar: the head seats the
// cockpit, the body grows corridors, the tail mounts a thruster. Seeded for
// reproducibility.
func shipLSystem(seed int64, constraints *ConstraintSet) *LSystem {
	alphabet := shipAlphabet()
	src := rnd.New(rnd.NewSource(seed))

	hl := NewRuleSet("hlrules", alphabet, src)
	hl.AddRule("head", []string{"cockpit", ">"}, 1.0)
	hl.AddRule("body", []string{"corridor", ">", "body"}, 0.4)
	hl.AddRule("body", []string{"[", "^", "corridor", "]", "corridor", ">", "body"}, 0.2)
	hl.AddRule("body", []string{"corridor", ">"}, 0.4)
	hl.AddRule("tail", []string{"thruster"}, 1.0)

	ll := NewRuleSet("llrules", alphabet, src)
	ll.AddRule("cockpit", []string{"c"}, 1.0)
	ll.AddRule("corridor", []string{"a"}, 1.0)
	ll.AddRule("thruster", []string{"t"}, 1.0)

	return NewLSystem(alphabet, hl, ll, constraints, nil)
}

func shipModules() []ModuleSpec {
	return []ModuleSpec{
		{Name: "head", Axiom: "head", Iterations: 1, Mutable: false},
		{Name: "body", Axiom: "body", Iterations: 6, Mutable: true},
		{Name: "tail", Axiom: "tail", Iterations: 1, Mutable: true},
	}
}

func TestExpandModuleSingleTile(t *testing.T) {
	ls := shipLSystem(42, nil)

	cs, err := ls.ExpandModule(ModuleSpec{Name: "head", Axiom: "head", Iterations: 1})
	if err != nil {
		t.Fatalf("ExpandModule failed: %v", err)
	}
	if cs.String != "cockpit>" {
		t.Errorf("Derived string [%s] is not expected value [cockpit>]", cs.String)
	}
}

func TestExpandModuleRetriesExhaust(t *testing.T) {
	rejectAll := &ConstraintSet{
		Name: "reject-all",
		Handlers: []*ConstraintHandler{{
			Name:  "never",
			Level: HardConstraint,
			When:  DuringExpansion,
			Check: func(*CandidateSolution) bool { return false },
		}},
	}
	ls := shipLSystem(42, rejectAll)

	_, err := ls.ExpandModule(ModuleSpec{Name: "body", Axiom: "body", Iterations: 2})
	if err == nil {
		t.Fatal("Expected exhaustion against an always-failing hard constraint")
	}
	var exhausted *FeasibilityExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected FeasibilityExhausted, got %T: %v", err, err)
	}
	if exhausted.Retries != ls.Config.Retries {
		t.Errorf("Reported retries [%d] do not match budget [%d]", exhausted.Retries, ls.Config.Retries)
	}
}

func TestApplyRulesMergesModulesInOrder(t *testing.T) {
	ls := shipLSystem(42, nil)

	cs, err := ls.ApplyRules(shipModules())
	if err != nil {
		t.Fatalf("ApplyRules failed: %v", err)
	}
	if !strings.HasPrefix(cs.String, "cockpit>") {
		t.Errorf("Merged string [%s] does not start with the head", cs.String)
	}
	if !strings.HasSuffix(cs.String, "thruster") {
		t.Errorf("Merged string [%s] does not end with the tail", cs.String)
	}
	if len(cs.Modules) != 3 {
		t.Fatalf("Candidate has [%d] modules, expected [3]", len(cs.Modules))
	}
	if cs.Modules["head"].Mutable {
		t.Error("Head module should be immutable")
	}
	if !cs.Modules["body"].Mutable || !cs.Modules["tail"].Mutable {
		t.Error("Body and tail modules should be mutable")
	}
	if cs.Modules["head"].Order != 0 || cs.Modules["body"].Order != 1 || cs.Modules["tail"].Order != 2 {
		t.Errorf("Module orders are wrong: %v", cs.Modules)
	}
}

func TestAddLLString(t *testing.T) {
	ls := shipLSystem(42, nil)

	cs := NewCandidateSolution("cockpit>corridor>thruster")
	if err := ls.AddLLString(cs); err != nil {
		t.Fatalf("AddLLString failed: %v", err)
	}
	if cs.LLString != "c>a>t" {
		t.Errorf("Low-level string [%s] is not expected value [c>a>t]", cs.LLString)
	}
}

func TestAddLLStringNonTerminatingRules(t *testing.T) {
	alphabet := shipAlphabet()
	ll := NewRuleSet("llrules", alphabet, rnd.New(rnd.NewSource(1)))
	ll.AddRule("loop", []string{"loop"}, 1.0)
	hl := NewRuleSet("hlrules", alphabet, nil)
	ls := NewLSystem(alphabet, hl, ll, nil, nil)

	cs := NewCandidateSolution("loop")
	if err := ls.AddLLString(cs); err == nil {
		t.Error("Expected an error for a low-level expansion that never terminates")
	}
}

func TestSetStructureSingleBlock(t *testing.T) {
	ls := shipLSystem(42, nil)

	cs := NewCandidateSolution("cockpit")
	if err := ls.SetStructure(cs); err != nil {
		t.Fatalf("SetStructure failed: %v", err)
	}
	st := cs.Structure()
	if st == nil {
		t.Fatal("Structure not attached")
	}
	if st.BlockCount() != 1 {
		t.Fatalf("Block count [%d] is not expected value [1]", st.BlockCount())
	}
	if st.At(voxel.V(0, 0, 0)) == nil {
		t.Error("Expected a block at the origin")
	}
	if st.CountBlockType("cockpit") != 1 {
		t.Error("Expected one cockpit block")
	}
	m := cs.Measurements()
	if m == nil || m.TotalBlocks != 1 || m.FunctionalBlocks != 1 {
		t.Errorf("Measurements [%+v] are wrong for a single functional block", m)
	}
}

func TestSetStructureIntersectionMarksInfeasible(t *testing.T) {
	ls := shipLSystem(42, nil)

	// Two placements on the same cell.
	cs := NewCandidateSolution("cockpitcorridor")
	err := ls.SetStructure(cs)
	if err == nil {
		t.Fatal("Expected an intersection error")
	}
	var hit *voxel.IntersectionError
	if !errors.As(err, &hit) {
		t.Fatalf("Expected IntersectionError, got %T", err)
	}
	if cs.Feasible {
		t.Error("Candidate should be infeasible after an intersection")
	}
}

func TestSubdivideSolutions(t *testing.T) {
	constraints := &ConstraintSet{
		Name: "ship",
		Handlers: []*ConstraintHandler{
			NewRequiredComponentsConstraint(map[string]int{"cockpit": 1, "thruster": 1}),
		},
	}
	ls := shipLSystem(42, constraints)

	good := NewCandidateSolution("cockpit>corridor>thruster")
	bad := NewCandidateSolution("corridor>corridor")
	ls.SubdivideSolutions([]*CandidateSolution{good, bad})

	if !good.Feasible {
		t.Error("Candidate with cockpit and thruster should be feasible")
	}
	if good.NCV != 0 {
		t.Errorf("Feasible candidate NCV [%d] is not expected value [0]", good.NCV)
	}
	if bad.Feasible {
		t.Error("Candidate without required components should be infeasible")
	}
	if bad.NCV != 1 {
		t.Errorf("Infeasible candidate NCV [%d] is not expected value [1]", bad.NCV)
	}
}

func TestSubdivideCountsSoftViolations(t *testing.T) {
	constraints := &ConstraintSet{
		Name: "ship",
		Handlers: []*ConstraintHandler{
			NewMaxDimensionsConstraint(voxel.V(1, 1, 1)),
		},
	}
	ls := shipLSystem(42, constraints)

	cs := NewCandidateSolution("cockpit>corridor>thruster")
	ls.SubdivideSolutions([]*CandidateSolution{cs})
	if !cs.Feasible {
		t.Fatal("Soft violations alone should not make a candidate infeasible")
	}
	if cs.NCV != 1 {
		t.Errorf("Soft violation count [%d] is not expected value [1]", cs.NCV)
	}
}

func TestGenerateCandidates(t *testing.T) {
	ls := shipLSystem(42, nil)

	batch, err := ls.GenerateCandidates(shipModules(), 5)
	if err != nil {
		t.Fatalf("GenerateCandidates failed: %v", err)
	}
	if len(batch) != 5 {
		t.Fatalf("Batch size [%d] is not expected value [5]", len(batch))
	}
	for _, cs := range batch {
		if !strings.HasPrefix(cs.String, "cockpit>") {
			t.Errorf("Candidate [%s] missing its head", cs.String)
		}
	}
}

func TestDisableSATCheckLetsInfeasibleThrough(t *testing.T) {
	rejectAll := &ConstraintSet{
		Name: "reject-all",
		Handlers: []*ConstraintHandler{{
			Name:  "never",
			Level: HardConstraint,
			When:  DuringExpansion,
			Check: func(*CandidateSolution) bool { return false },
		}},
	}
	ls := shipLSystem(42, rejectAll)
	ls.DisableSATCheck()
	defer ls.EnableSATCheck()

	if _, err := ls.ExpandModule(ModuleSpec{Name: "body", Axiom: "body", Iterations: 2}); err != nil {
		t.Errorf("Expansion with filtering disabled should succeed, got: %v", err)
	}
}

func TestLocalExpansionReplayable(t *testing.T) {
	ls := shipLSystem(42, nil)

	first, err := ls.LocalExpansion("body", rnd.New(rnd.NewSource(9)))
	if err != nil {
		t.Fatalf("LocalExpansion failed: %v", err)
	}
	second, err := ls.LocalExpansion("body", rnd.New(rnd.NewSource(9)))
	if err != nil {
		t.Fatalf("LocalExpansion failed: %v", err)
	}
	if first != second {
		t.Errorf("Seeded local expansions differ: [%s] vs [%s]", first, second)
	}
}
