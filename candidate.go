package shipwright

import (
	"fmt"

	cp "github.com/jinzhu/copier"

	voxel "nickandperla.net/voxel"
)

// ModuleString records the slice of a merged candidate that one grammar
// module (head, body, tail) produced, and whether genetic operators may
// touch it.
type ModuleString struct {
	String  string
	Mutable bool
	Order   int // concatenation position within the merged string
}

// CandidateSolution is one solver product: the canonical high-level string
// plus everything derived from it. Identity is the string; two candidates
// with equal strings are the same individual.
type CandidateSolution struct {
	String   string
	LLString string

	Age            int
	BDescs         [2]float64
	CFitness       float64
	Fitness        []float64
	Representation []float64
	Feasible       bool
	NCV            int // constraints violated at last subdivision
	NOffspring     int
	NFeasOffspring int
	Parents        []*CandidateSolution
	Modules        map[string]ModuleString

	structure    *voxel.Structure
	measurements *Measurements
}

func NewCandidateSolution(s string) *CandidateSolution {
	return &CandidateSolution{
		String:   s,
		Feasible: true,
		Modules:  make(map[string]ModuleString),
	}
}

func (c *CandidateSolution) Equal(other *CandidateSolution) bool {
	return other != nil && c.String == other.String
}

// SetStructure attaches the translated structure. A candidate owns at most
// one structure for its lifetime.
func (c *CandidateSolution) SetStructure(st *voxel.Structure) error {
	if c.structure != nil {
		return fmt.Errorf("structure already set for candidate [%s]", c.String)
	}
	c.structure = st
	return nil
}

// Structure returns the attached structure, or nil if not yet built.
func (c *CandidateSolution) Structure() *voxel.Structure {
	return c.structure
}

// HasStructure reports whether the low-level translation has been built.
func (c *CandidateSolution) HasStructure() bool {
	return c.structure != nil
}

// SetMeasurements caches the structure measurements used by estimators.
func (c *CandidateSolution) SetMeasurements(m *Measurements) {
	c.measurements = m
}

func (c *CandidateSolution) Measurements() *Measurements {
	return c.measurements
}

// Clone deep-copies the genome fields; derived artifacts (structure,
// measurements, fitness) do not survive the copy since the clone is about
// to diverge.
func (c *CandidateSolution) Clone() *CandidateSolution {
	clone := &CandidateSolution{}
	cp.Copy(clone, c)
	// copier leaves map fields shared; the clone needs its own layout so
	// genetic operators can rewrite modules without touching the parent.
	clone.Modules = make(map[string]ModuleString, len(c.Modules))
	for name, m := range c.Modules {
		clone.Modules[name] = m
	}
	clone.structure = nil
	clone.measurements = nil
	clone.Fitness = nil
	clone.Representation = nil
	clone.CFitness = 0
	clone.NCV = 0
	clone.Parents = nil
	return clone
}

func (c *CandidateSolution) describe() string {
	return fmt.Sprintf("%s; fitness: %v; feasible: %v", c.String, c.CFitness, c.Feasible)
}

// MergeSolutions concatenates per-module solutions into one candidate,
// recording each module's slice and default mutability.
func MergeSolutions(parts []*CandidateSolution, names []string, active []bool) (*CandidateSolution, error) {
	if len(parts) != len(names) || len(parts) != len(active) {
		return nil, fmt.Errorf("each solution needs a module name and mutability: %d solutions, %d names, %d flags",
			len(parts), len(names), len(active))
	}
	merged := ""
	for _, p := range parts {
		merged += p.String
	}
	out := NewCandidateSolution(merged)
	for i, p := range parts {
		out.Modules[names[i]] = ModuleString{String: p.String, Mutable: active[i], Order: i}
	}
	return out, nil
}
