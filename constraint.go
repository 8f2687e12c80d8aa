package shipwright

import (
	"errors"
	"fmt"

	voxel "nickandperla.net/voxel"
)

// ConstraintLevel separates discarding checks from penalizing ones.
type ConstraintLevel int

const (
	HardConstraint ConstraintLevel = iota
	SoftConstraint
)

func (l ConstraintLevel) String() string {
	if l == HardConstraint {
		return "hard"
	}
	return "soft"
}

// ConstraintTime is when a handler runs: per expansion iteration, or once
// after the final one.
type ConstraintTime int

const (
	DuringExpansion ConstraintTime = iota
	EndOfExpansion
)

// ConstraintFunc inspects a candidate and reports whether it passes.
// Handlers never mutate their input.
type ConstraintFunc func(*CandidateSolution) bool

// ConstraintHandler is a named, leveled predicate with a defined evaluation
// time. NeedsLL handlers require the low-level translation (and structure),
// so the solver defers them until after the structure builder has run.
type ConstraintHandler struct {
	Name    string
	Level   ConstraintLevel
	When    ConstraintTime
	NeedsLL bool
	Check   ConstraintFunc
}

// ConstraintSet batches handlers for one derivation step; all must pass
// (logical AND) for the candidate to survive the hard ones.
type ConstraintSet struct {
	Name     string
	Handlers []*ConstraintHandler
}

// EvaluateAt runs every handler scheduled at the given time whose LL
// requirement is satisfied, returning hard and soft violation counts and
// the first failing hard handler's name.
func (s *ConstraintSet) EvaluateAt(cs *CandidateSolution, when ConstraintTime, hasLL bool) (hard, soft int, firstHard string) {
	for _, h := range s.Handlers {
		if h.When != when {
			continue
		}
		if h.NeedsLL && !hasLL {
			continue
		}
		if h.Check(cs) {
			continue
		}
		if h.Level == HardConstraint {
			hard++
			if firstHard == "" {
				firstHard = h.Name
			}
			log.Debugf("constraint [%s] (hard) failed for [%.40s...]", h.Name, cs.String)
		} else {
			soft++
			log.Debugf("constraint [%s] (soft) failed for [%.40s...]", h.Name, cs.String)
		}
	}
	return hard, soft, firstHard
}

// NewNoIntersectionConstraint builds the hard, during-expansion check that a
// partially expanded string places no two blocks in overlapping volume. The
// partial string may still contain nonterminals; those have no structural
// meaning yet and are skipped in the dry run.
func NewNoIntersectionConstraint(alphabet *Alphabet, mc *voxel.MachineConfig) *ConstraintHandler {
	return &ConstraintHandler{
		Name:  "no-intersection",
		Level: HardConstraint,
		When:  DuringExpansion,
		Check: func(cs *CandidateSolution) bool {
			tokens, err := alphabet.Tokenize(cs.String)
			if err != nil {
				return false
			}
			atoms := make([]voxel.Atom, 0, len(tokens))
			for _, tok := range tokens {
				if atom, ok := alphabet.Atom(tok); ok {
					atoms = append(atoms, atom)
				}
			}
			_, err = voxel.NewMachine(mc).Fill(voxel.NewStructure(), atoms)
			if err != nil {
				var hit *voxel.IntersectionError
				if errors.As(err, &hit) {
					return false
				}
				// Scope imbalance inside a partial branch is tolerated here;
				// the parser rejects it at the end if it persists.
				var scope *voxel.UnbalancedScopeError
				if errors.As(err, &scope) {
					return true
				}
				return false
			}
			return true
		},
	}
}

// NewRequiredComponentsConstraint builds the hard, end-of-expansion check
// that the built structure contains at least the given count of each block
// type (a ship needs a cockpit).
func NewRequiredComponentsConstraint(required map[string]int) *ConstraintHandler {
	return &ConstraintHandler{
		Name:    "required-components",
		Level:   HardConstraint,
		When:    EndOfExpansion,
		NeedsLL: true,
		Check: func(cs *CandidateSolution) bool {
			st := cs.Structure()
			if st == nil {
				return false
			}
			for blockType, n := range required {
				if st.CountBlockType(blockType) < n {
					return false
				}
			}
			return true
		},
	}
}

// NewMaxDimensionsConstraint builds the soft check that the structure's
// bounding box stays within per-axis maximums.
func NewMaxDimensionsConstraint(max voxel.Vec) *ConstraintHandler {
	return &ConstraintHandler{
		Name:    fmt.Sprintf("max-dimensions-%s", max),
		Level:   SoftConstraint,
		When:    EndOfExpansion,
		NeedsLL: true,
		Check: func(cs *CandidateSolution) bool {
			st := cs.Structure()
			if st == nil {
				return false
			}
			d := st.Dims()
			return d.X <= max.X && d.Y <= max.Y && d.Z <= max.Z
		},
	}
}

// NewSymmetryConstraint builds the soft check that at least minScore of the
// occupied cells mirror across the structure's lateral midplane. Ships tend
// to look broken below ~0.6.
func NewSymmetryConstraint(minScore float64) *ConstraintHandler {
	return &ConstraintHandler{
		Name:    "symmetry",
		Level:   SoftConstraint,
		When:    EndOfExpansion,
		NeedsLL: true,
		Check: func(cs *CandidateSolution) bool {
			st := cs.Structure()
			if st == nil {
				return false
			}
			return SymmetryScore(st) >= minScore
		},
	}
}

// SymmetryScore is the fraction of occupied cells whose mirror across the
// Z midplane is also occupied.
func SymmetryScore(st *voxel.Structure) float64 {
	cells := st.OccupiedCells()
	if len(cells) == 0 {
		return 0
	}
	min, max, _ := st.BoundingBox()
	mirrored := 0
	for _, c := range cells {
		m := voxel.V(c.X, c.Y, min.Z+max.Z-c.Z)
		if st.At(m) != nil {
			mirrored++
		}
	}
	return float64(mirrored) / float64(len(cells))
}
