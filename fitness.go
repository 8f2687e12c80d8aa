package shipwright

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	voxel "nickandperla.net/voxel"
)

// GaussianEstimator scores a raw measurement against an empirically fitted
// normal density, normalized by the density's own maximum so that a value
// at the mode scores exactly 1.
type GaussianEstimator struct {
	dist distuv.Normal
}

func NewGaussianEstimator(mean, std float64) *GaussianEstimator {
	if std <= 0 {
		std = 1e-9
	}
	return &GaussianEstimator{dist: distuv.Normal{Mu: mean, Sigma: std}}
}

func (g *GaussianEstimator) Evaluate(x float64) float64 {
	return g.dist.Prob(x) / g.dist.Prob(g.dist.Mu)
}

// Fitness is one scoring dimension over structure measurements. Bounds are
// the estimator's output range, Weight its share in the combined score.
type Fitness struct {
	Name   string
	Weight float64
	Bounds [2]float64
	f      func(*Measurements) float64
}

func (f *Fitness) Evaluate(m *Measurements) float64 {
	return f.f(m)
}

// FitnessParam is the calibration input for one built-in estimator: the
// (mean, std) pair fitted offline from the analyzed workshop corpus.
type FitnessParam struct {
	Name   string  `toml:"name"`
	Mean   float64 `toml:"mean"`
	Std    float64 `toml:"std"`
	Weight float64 `toml:"weight"`
}

// NewFitness builds one of the four built-in estimators by name:
// "func-blocks" (functional to total block ratio), "box-filling" (filled to
// bounding volume ratio), "mame" (largest/medium axis), "mami"
// (largest/smallest axis).
func NewFitness(p FitnessParam) (*Fitness, error) {
	est := NewGaussianEstimator(p.Mean, p.Std)
	weight := p.Weight
	if weight == 0 {
		weight = 1
	}
	var measure func(*Measurements) float64
	switch p.Name {
	case "func-blocks":
		measure = func(m *Measurements) float64 { return m.FuncRatio }
	case "box-filling":
		measure = func(m *Measurements) float64 { return m.FillRatio }
	case "mame":
		measure = func(m *Measurements) float64 { return m.MaMe }
	case "mami":
		measure = func(m *Measurements) float64 { return m.MaMi }
	default:
		return nil, fmt.Errorf("unrecognized fitness [%s]", p.Name)
	}
	return &Fitness{
		Name:   p.Name,
		Weight: weight,
		Bounds: [2]float64{0, 1},
		f:      func(m *Measurements) float64 { return est.Evaluate(measure(m)) },
	}, nil
}

// NewBoundingBoxFitness scores how far the structure stays within the
// configured per-axis maximums: (1 - |actual-max|/max) per axis, averaged,
// clamped to [0,1].
func NewBoundingBoxFitness(max voxel.Vec) *Fitness {
	return &Fitness{
		Name:   "bounding-box",
		Weight: 1,
		Bounds: [2]float64{0, 1},
		f: func(m *Measurements) float64 {
			axes := [3][2]int{
				{m.Dims.X, max.X},
				{m.Dims.Y, max.Y},
				{m.Dims.Z, max.Z},
			}
			total := 0.0
			for _, a := range axes {
				actual, limit := float64(a[0]), float64(a[1])
				if limit <= 0 {
					continue
				}
				total += 1 - math.Abs(actual-limit)/limit
			}
			return clamp01(total / 3)
		},
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
