package shipwright

import (
	"fmt"
	"sort"

	sm "github.com/xrash/smetrics"
)

// FI2Pop is the two-population solver: a feasible pool bred toward higher
// fitness and an infeasible pool bred toward feasibility (minimizing hard
// violation count). Both pools are bounded and truncated back to capacity
// after every generation.
type FI2Pop struct {
	ls        *LSystem
	evaluator *Evaluator
	ops       *GeneticOps
	conf      *EvoConfig
	specs     []ModuleSpec

	Feasible   []*CandidateSolution
	Infeasible []*CandidateSolution

	// Per-generation tracking, index 0 is the initial population.
	FTop, FMean        []float64
	ITop, IMean        []float64
	PercFeasFromInfeas []float64
}

// InitRetries bounds how many solver batches initialization may burn
// through before giving up on filling the pools.
const InitRetries = 100

func NewFI2Pop(ls *LSystem, evaluator *Evaluator, ops *GeneticOps, conf *EvoConfig, specs []ModuleSpec) *FI2Pop {
	return &FI2Pop{
		ls:        ls,
		evaluator: evaluator,
		ops:       ops,
		conf:      conf.withDefaults(),
		specs:     specs,
	}
}

// Initialize fills both pools from fresh derivations. During-expansion
// filtering is disabled so infeasible strings come through for the
// infeasible pool; classification happens in SubdivideSolutions.
func (f *FI2Pop) Initialize() error {
	f.ls.DisableSATCheck()
	defer f.ls.EnableSATCheck()

	for i := 0; i < InitRetries; i++ {
		cs, err := f.ls.ApplyRules(f.specs)
		if err != nil {
			log.Debugf("initialization derivation failed: %v", err)
			continue
		}
		f.ls.SubdivideSolutions([]*CandidateSolution{cs})
		if _, err := f.evaluator.Evaluate(cs); err != nil {
			log.Debugf("initialization evaluation failed: %v", err)
			continue
		}
		cs.Age = f.conf.MaxAge
		if cs.Feasible && len(f.Feasible) < f.conf.PopSize && !contains(f.Feasible, cs) {
			f.Feasible = append(f.Feasible, cs)
		} else if !cs.Feasible && len(f.Infeasible) < f.conf.PopSize && !contains(f.Infeasible, cs) {
			f.Infeasible = append(f.Infeasible, cs)
		}
		if len(f.Feasible) == f.conf.PopSize && len(f.Infeasible) == f.conf.PopSize {
			break
		}
	}
	if len(f.Feasible) == 0 {
		return &FeasibilityExhausted{Axiom: f.specsSummary(), Retries: InitRetries}
	}
	f.track()
	log.Infof("initialized populations: feasible %d/%d, infeasible %d/%d",
		len(f.Feasible), f.conf.PopSize, len(f.Infeasible), f.conf.PopSize)
	return nil
}

func (f *FI2Pop) specsSummary() string {
	s := ""
	for _, spec := range f.specs {
		s += spec.Axiom
	}
	return s
}

// Step runs one generation: breed each population, classify the offspring
// into the right pool, re-evaluate, and truncate both pools back to
// capacity keeping the best.
func (f *FI2Pop) Step(gen int) error {
	newFeasFromInfeas := 0

	for _, minimize := range []bool{false, true} {
		parents := f.Feasible
		if minimize {
			parents = f.Infeasible
		}
		if len(parents) == 0 {
			continue
		}
		pool, err := f.ops.NewPool(parents, gen, f.conf.PopSize, minimize)
		if err != nil {
			return fmt.Errorf("generation %d breeding failed: %w", gen, err)
		}
		f.ls.SubdivideSolutions(pool)
		for _, cs := range pool {
			if _, err := f.evaluator.Evaluate(cs); err != nil {
				log.Debugf("offspring evaluation failed, discarding: %v", err)
				continue
			}
			cs.Age = f.conf.MaxAge
			if cs.Feasible {
				if minimize && len(cs.Parents) > 0 && !cs.Parents[0].Feasible {
					newFeasFromInfeas++
					cs.Parents[0].NFeasOffspring++
				}
				f.Feasible = append(f.Feasible, cs)
			} else {
				f.Infeasible = append(f.Infeasible, cs)
			}
		}
	}

	f.Feasible = reducePopulation(f.Feasible, f.conf.PopSize, false, f.conf.DedupDistance)
	f.Infeasible = reducePopulation(f.Infeasible, f.conf.PopSize, true, f.conf.DedupDistance)

	for _, cs := range f.Feasible {
		cs.Age--
	}
	for _, cs := range f.Infeasible {
		cs.Age--
	}

	if len(f.Feasible) > 0 {
		f.PercFeasFromInfeas = append(f.PercFeasFromInfeas, float64(newFeasFromInfeas)/float64(len(f.Feasible)))
	}
	f.track()
	return nil
}

// Evolve runs the configured number of generations.
func (f *FI2Pop) Evolve() error {
	for gen := 0; gen < f.conf.Generations; gen++ {
		if err := f.Step(gen); err != nil {
			return err
		}
		log.Infof("generation %d: top-f %.3f mean-f %.3f top-i %.3f mean-i %.3f",
			gen, last(f.FTop), last(f.FMean), last(f.ITop), last(f.IMean))
	}
	return nil
}

// Best returns the fittest feasible candidate, or nil.
func (f *FI2Pop) Best() *CandidateSolution {
	var best *CandidateSolution
	for _, cs := range f.Feasible {
		if best == nil || cs.CFitness > best.CFitness {
			best = cs
		}
	}
	return best
}

func (f *FI2Pop) track() {
	if len(f.Feasible) > 0 {
		top, mean := poolStats(f.Feasible, false)
		f.FTop = append(f.FTop, top)
		f.FMean = append(f.FMean, mean)
	}
	if len(f.Infeasible) > 0 {
		top, mean := poolStats(f.Infeasible, true)
		f.ITop = append(f.ITop, top)
		f.IMean = append(f.IMean, mean)
	}
}

func poolStats(pop []*CandidateSolution, minimize bool) (top, mean float64) {
	top = pop[0].CFitness
	sum := 0.0
	for _, cs := range pop {
		sum += cs.CFitness
		if minimize && cs.CFitness < top {
			top = cs.CFitness
		}
		if !minimize && cs.CFitness > top {
			top = cs.CFitness
		}
	}
	return top, sum / float64(len(pop))
}

func last(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return xs[len(xs)-1]
}

func contains(pop []*CandidateSolution, cs *CandidateSolution) bool {
	for _, other := range pop {
		if other.Equal(cs) {
			return true
		}
	}
	return false
}

// reducePopulation truncates a pool back to capacity keeping the best,
// suppressing near-duplicates first: two strings within dedupDist edits of
// each other (Wagner-Fischer) count as the same individual and only the
// better-ranked one survives.
func reducePopulation(pop []*CandidateSolution, to int, minimize bool, dedupDist int) []*CandidateSolution {
	if len(pop) <= to {
		return pop
	}
	sorted := make([]*CandidateSolution, len(pop))
	copy(sorted, pop)
	sort.SliceStable(sorted, func(i, j int) bool {
		if minimize {
			return sorted[i].CFitness < sorted[j].CFitness
		}
		return sorted[i].CFitness > sorted[j].CFitness
	})

	var kept []*CandidateSolution
	for _, cs := range sorted {
		dup := false
		for _, k := range kept {
			if cs.String == k.String {
				dup = true
				break
			}
			if dedupDist > 0 && sm.WagnerFischer(cs.String, k.String, 1, 1, 2) <= dedupDist {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, cs)
		}
		if len(kept) == to {
			return kept
		}
	}
	// Not enough distinct individuals; backfill with the best duplicates.
	for _, cs := range sorted {
		if len(kept) == to {
			break
		}
		if !containsPtr(kept, cs) {
			kept = append(kept, cs)
		}
	}
	return kept
}

func containsPtr(pop []*CandidateSolution, cs *CandidateSolution) bool {
	for _, other := range pop {
		if other == cs {
			return true
		}
	}
	return false
}
