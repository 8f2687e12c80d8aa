package shipwright

import (
	"fmt"

	voxel "nickandperla.net/voxel"
)

// Measurements are the raw statistics the estimators score. Axis ratios are
// taken over the bounding box dimensions, matching the calibration corpus.
type Measurements struct {
	TotalBlocks      int
	FunctionalBlocks int
	OccupiedVolume   int
	Dims             voxel.Vec

	FuncRatio float64 // functional / total blocks
	FillRatio float64 // occupied cells / bounding volume
	MaMe      float64 // largest / medium axis
	MaMi      float64 // largest / smallest axis
}

// Measure derives all statistics from a sanified structure.
func Measure(st *voxel.Structure) *Measurements {
	m := &Measurements{
		TotalBlocks:      st.BlockCount(),
		FunctionalBlocks: st.FunctionalCount(),
		OccupiedVolume:   st.OccupiedVolume(),
		Dims:             st.Dims(),
	}
	if m.TotalBlocks > 0 {
		m.FuncRatio = float64(m.FunctionalBlocks) / float64(m.TotalBlocks)
	}
	volume := m.Dims.X * m.Dims.Y * m.Dims.Z
	if volume > 0 {
		m.FillRatio = float64(m.OccupiedVolume) / float64(volume)
	}
	largest, medium, smallest := sortedAxes(m.Dims)
	if medium > 0 {
		m.MaMe = float64(largest) / float64(medium)
	}
	if smallest > 0 {
		m.MaMi = float64(largest) / float64(smallest)
	}
	return m
}

func sortedAxes(d voxel.Vec) (largest, medium, smallest int) {
	a, b, c := d.X, d.Y, d.Z
	if a < b {
		a, b = b, a
	}
	if b < c {
		b, c = c, b
	}
	if a < b {
		a, b = b, a
	}
	return a, b, c
}

// Evaluation is a snapshot of one candidate's measurements and scores,
// persisted per generation for offline analysis.
type Evaluation struct {
	ID          uint
	CandidateID uint
	FuncRatio   float64
	FillRatio   float64
	MaMe        float64
	MaMi        float64
	TotalBlocks int
	OccupiedVol int
	DimX        int
	DimY        int
	DimZ        int
	CombinedFit float64
	Feasible    bool
	NCV         int
}

// EvaluatorConfig wires the calibrated estimators and the soft-constraint
// bonus term.
type EvaluatorConfig struct {
	Fitnesses   []FitnessParam `toml:"fitness"`
	MaxDims     []int          `toml:"max_dims"`
	UseBBox     bool           `toml:"use_bbox"`
	SoftBonusNn int            `toml:"-"` // number of soft constraints, set by the loop
}

// Evaluator scores candidates: each active estimator contributes one
// fitness component, weighted into the combined score, plus the
// soft-constraint bonus (nsc - ncv) for feasible candidates. Infeasible
// candidates are scored by their distance to feasibility (hard violation
// count) instead.
type Evaluator struct {
	Fitnesses []*Fitness
	NSC       float64
}

func NewEvaluator(ec *EvaluatorConfig) (*Evaluator, error) {
	e := &Evaluator{NSC: float64(ec.SoftBonusNn) * 0.5}
	for _, p := range ec.Fitnesses {
		f, err := NewFitness(p)
		if err != nil {
			return nil, err
		}
		e.Fitnesses = append(e.Fitnesses, f)
	}
	if ec.UseBBox {
		if len(ec.MaxDims) != 3 {
			return nil, fmt.Errorf("bounding-box fitness requires 3 max_dims, got %d", len(ec.MaxDims))
		}
		e.Fitnesses = append(e.Fitnesses, NewBoundingBoxFitness(voxel.V(ec.MaxDims[0], ec.MaxDims[1], ec.MaxDims[2])))
	}
	return e, nil
}

// Evaluate fills in the candidate's fitness vector and combined score and
// returns the persistable snapshot. The candidate must carry measurements
// (its structure must have been built).
func (e *Evaluator) Evaluate(cs *CandidateSolution) (*Evaluation, error) {
	m := cs.Measurements()
	if m == nil {
		if cs.Feasible {
			return nil, fmt.Errorf("candidate [%.40s...] has no measurements; build its structure first", cs.String)
		}
		// Infeasible candidates may have no buildable structure at all;
		// they are scored purely by distance to feasibility.
		m = &Measurements{}
	}

	eval := &Evaluation{
		FuncRatio:   m.FuncRatio,
		FillRatio:   m.FillRatio,
		MaMe:        m.MaMe,
		MaMi:        m.MaMi,
		TotalBlocks: m.TotalBlocks,
		OccupiedVol: m.OccupiedVolume,
		DimX:        m.Dims.X,
		DimY:        m.Dims.Y,
		DimZ:        m.Dims.Z,
		Feasible:    cs.Feasible,
		NCV:         cs.NCV,
	}

	if cs.Feasible {
		cs.Fitness = cs.Fitness[:0]
		combined := 0.0
		for _, f := range e.Fitnesses {
			v := f.Evaluate(m)
			cs.Fitness = append(cs.Fitness, v)
			combined += f.Weight * v
		}
		cs.CFitness = combined + (e.NSC - float64(cs.NCV))
		cs.Representation = append([]float64(nil), cs.Fitness...)
	} else {
		cs.CFitness = float64(cs.NCV)
	}
	eval.CombinedFit = cs.CFitness
	return eval, nil
}
