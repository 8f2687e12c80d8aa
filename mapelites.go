package shipwright

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// BehaviorCharacterization projects a candidate onto one axis of the
// behavior space. Bounds delimit the binned value range; values outside are
// clamped into the edge bins.
type BehaviorCharacterization struct {
	Name   string
	Bounds [2]float64
	f      func(*CandidateSolution) float64
}

func (b *BehaviorCharacterization) Evaluate(cs *CandidateSolution) float64 {
	return b.f(cs)
}

// NewBehavior builds a named descriptor: "dim-x", "dim-y", "dim-z"
// (bounding box axis sizes), "fill" (filled ratio) or "mame"/"mami" (axis
// proportions).
func NewBehavior(name string, lo, hi float64) (*BehaviorCharacterization, error) {
	var f func(*CandidateSolution) float64
	measure := func(cs *CandidateSolution, pick func(*Measurements) float64) float64 {
		if m := cs.Measurements(); m != nil {
			return pick(m)
		}
		return 0
	}
	switch name {
	case "dim-x":
		f = func(cs *CandidateSolution) float64 {
			return measure(cs, func(m *Measurements) float64 { return float64(m.Dims.X) })
		}
	case "dim-y":
		f = func(cs *CandidateSolution) float64 {
			return measure(cs, func(m *Measurements) float64 { return float64(m.Dims.Y) })
		}
	case "dim-z":
		f = func(cs *CandidateSolution) float64 {
			return measure(cs, func(m *Measurements) float64 { return float64(m.Dims.Z) })
		}
	case "fill":
		f = func(cs *CandidateSolution) float64 {
			return measure(cs, func(m *Measurements) float64 { return m.FillRatio })
		}
	case "mame":
		f = func(cs *CandidateSolution) float64 {
			return measure(cs, func(m *Measurements) float64 { return m.MaMe })
		}
	case "mami":
		f = func(cs *CandidateSolution) float64 {
			return measure(cs, func(m *Measurements) float64 { return m.MaMi })
		}
	default:
		return nil, fmt.Errorf("unrecognized behavior descriptor [%s]", name)
	}
	return &BehaviorCharacterization{Name: name, Bounds: [2]float64{lo, hi}, f: f}, nil
}

// MapBin is one cell of the behavior archive, holding bounded feasible and
// infeasible pools.
type MapBin struct {
	Idx        [2]int
	Feasible   []*CandidateSolution
	Infeasible []*CandidateSolution
}

func (b *MapBin) pool(feasible bool) *[]*CandidateSolution {
	if feasible {
		return &b.Feasible
	}
	return &b.Infeasible
}

// Insert adds a candidate if its pool has free capacity or the candidate
// beats the pool's worst occupant; the loser is dropped.
func (b *MapBin) Insert(cs *CandidateSolution, capacity int) bool {
	pool := b.pool(cs.Feasible)
	for _, other := range *pool {
		if other.Equal(cs) {
			return false
		}
	}
	minimize := !cs.Feasible
	if len(*pool) < capacity {
		*pool = append(*pool, cs)
		sortPool(*pool, minimize)
		return true
	}
	worst := (*pool)[len(*pool)-1]
	improves := cs.CFitness > worst.CFitness
	if minimize {
		improves = cs.CFitness < worst.CFitness
	}
	if !improves {
		return false
	}
	(*pool)[len(*pool)-1] = cs
	sortPool(*pool, minimize)
	return true
}

// Elite returns the bin's best candidate of the given pool, or nil.
func (b *MapBin) Elite(feasible bool) *CandidateSolution {
	pool := *b.pool(feasible)
	if len(pool) == 0 {
		return nil
	}
	return pool[0]
}

func sortPool(pool []*CandidateSolution, minimize bool) {
	sort.SliceStable(pool, func(i, j int) bool {
		if minimize {
			return pool[i].CFitness < pool[j].CFitness
		}
		return pool[i].CFitness > pool[j].CFitness
	})
}

// MapElitesConfig shapes the archive.
type MapElitesConfig struct {
	BinsX             int     `toml:"bins_x"`
	BinsY             int     `toml:"bins_y"`
	BinPopulation     int     `toml:"bin_population"`
	AlignmentInterval int     `toml:"alignment_interval"`
	DescriptorX       string  `toml:"descriptor_x"`
	DescriptorY       string  `toml:"descriptor_y"`
	RangeXLo          float64 `toml:"range_x_lo"`
	RangeXHi          float64 `toml:"range_x_hi"`
	RangeYLo          float64 `toml:"range_y_lo"`
	RangeYHi          float64 `toml:"range_y_hi"`
}

func (c *MapElitesConfig) withDefaults() *MapElitesConfig {
	out := *c
	if out.BinsX <= 0 {
		out.BinsX = 8
	}
	if out.BinsY <= 0 {
		out.BinsY = 8
	}
	if out.BinPopulation <= 0 {
		out.BinPopulation = 5
	}
	if out.AlignmentInterval <= 0 {
		out.AlignmentInterval = 10
	}
	return &out
}

// MAPElites maintains the behavior-binned archive: a candidate lands in the
// bin addressed by its descriptor pair and survives only while it stays
// competitive there. Periodic alignment re-fits the descriptor ranges to
// the archive's actual spread.
type MAPElites struct {
	ls        *LSystem
	evaluator *Evaluator
	ops       *GeneticOps
	conf      *MapElitesConfig
	evo       *EvoConfig
	specs     []ModuleSpec

	descX, descY *BehaviorCharacterization
	bins         [][]*MapBin
}

func NewMAPElites(ls *LSystem, evaluator *Evaluator, ops *GeneticOps, evo *EvoConfig, conf *MapElitesConfig, specs []ModuleSpec) (*MAPElites, error) {
	conf = conf.withDefaults()
	descX, err := NewBehavior(conf.DescriptorX, conf.RangeXLo, conf.RangeXHi)
	if err != nil {
		return nil, err
	}
	descY, err := NewBehavior(conf.DescriptorY, conf.RangeYLo, conf.RangeYHi)
	if err != nil {
		return nil, err
	}
	m := &MAPElites{
		ls:        ls,
		evaluator: evaluator,
		ops:       ops,
		conf:      conf,
		evo:       evo.withDefaults(),
		specs:     specs,
		descX:     descX,
		descY:     descY,
	}
	m.resetBins()
	return m, nil
}

func (m *MAPElites) resetBins() {
	m.bins = make([][]*MapBin, m.conf.BinsX)
	for i := range m.bins {
		m.bins[i] = make([]*MapBin, m.conf.BinsY)
		for j := range m.bins[i] {
			m.bins[i][j] = &MapBin{Idx: [2]int{i, j}}
		}
	}
}

// BinIndex is a pure function of the descriptor pair and the configured bin
// counts and ranges: identical descriptors always address the same bin.
func (m *MAPElites) BinIndex(bx, by float64) (int, int) {
	return linearBin(bx, m.descX.Bounds, m.conf.BinsX), linearBin(by, m.descY.Bounds, m.conf.BinsY)
}

func linearBin(v float64, bounds [2]float64, bins int) int {
	lo, hi := bounds[0], bounds[1]
	if hi <= lo {
		return 0
	}
	idx := int(float64(bins) * (v - lo) / (hi - lo))
	if idx < 0 {
		return 0
	}
	if idx >= bins {
		return bins - 1
	}
	return idx
}

func (m *MAPElites) assign(cs *CandidateSolution) {
	cs.BDescs = [2]float64{m.descX.Evaluate(cs), m.descY.Evaluate(cs)}
	i, j := m.BinIndex(cs.BDescs[0], cs.BDescs[1])
	if m.bins[i][j].Insert(cs, m.conf.BinPopulation) {
		cs.Age = m.evo.MaxAge
	}
}

// Initialize seeds the archive the same way FI-2Pop seeds its pools.
func (m *MAPElites) Initialize() error {
	m.ls.DisableSATCheck()
	defer m.ls.EnableSATCheck()

	inserted := 0
	for i := 0; i < InitRetries; i++ {
		cs, err := m.ls.ApplyRules(m.specs)
		if err != nil {
			log.Debugf("archive initialization derivation failed: %v", err)
			continue
		}
		m.ls.SubdivideSolutions([]*CandidateSolution{cs})
		if _, err := m.evaluator.Evaluate(cs); err != nil {
			log.Debugf("archive initialization evaluation failed: %v", err)
			continue
		}
		m.assign(cs)
		inserted++
	}
	if inserted == 0 {
		return &FeasibilityExhausted{Axiom: "archive", Retries: InitRetries}
	}
	return nil
}

// validBins lists bins holding at least one feasible candidate.
func (m *MAPElites) validBins() []*MapBin {
	var out []*MapBin
	for _, row := range m.bins {
		for _, b := range row {
			if len(b.Feasible) > 0 {
				out = append(out, b)
			}
		}
	}
	return out
}

// Step ages the archive, breeds offspring from one randomly selected valid
// bin, and inserts the offspring wherever their descriptors land.
func (m *MAPElites) Step(gen int) error {
	m.ageArchive()

	valid := m.validBins()
	if len(valid) == 0 {
		return &FeasibilityExhausted{Axiom: "archive", Retries: 0}
	}
	bin := valid[rng.Intn(len(valid))]

	for _, minimize := range []bool{false, true} {
		parents := bin.Feasible
		if minimize {
			parents = bin.Infeasible
		}
		if len(parents) == 0 {
			continue
		}
		pool, err := m.ops.NewPool(parents, gen, m.conf.BinPopulation, minimize)
		if err != nil {
			return fmt.Errorf("generation %d archive breeding failed: %w", gen, err)
		}
		m.ls.SubdivideSolutions(pool)
		for _, cs := range pool {
			if _, err := m.evaluator.Evaluate(cs); err != nil {
				log.Debugf("archive offspring evaluation failed, discarding: %v", err)
				continue
			}
			m.assign(cs)
		}
	}

	if m.conf.AlignmentInterval > 0 && gen > 0 && gen%m.conf.AlignmentInterval == 0 {
		m.Realign()
	}
	return nil
}

// Evolve runs the configured number of generations.
func (m *MAPElites) Evolve() error {
	for gen := 0; gen < m.evo.Generations; gen++ {
		if err := m.Step(gen); err != nil {
			return err
		}
		if best := m.Best(); best != nil {
			log.Infof("generation %d: archive coverage %.2f best %.3f", gen, m.Coverage(), best.CFitness)
		}
	}
	return nil
}

// ageArchive decrements every occupant's age and evicts the expired, who
// sat max_age generations without improving their bin.
func (m *MAPElites) ageArchive() {
	for _, row := range m.bins {
		for _, b := range row {
			b.Feasible = dropExpired(b.Feasible)
			b.Infeasible = dropExpired(b.Infeasible)
		}
	}
}

func dropExpired(pool []*CandidateSolution) []*CandidateSolution {
	kept := pool[:0]
	for _, cs := range pool {
		cs.Age--
		if cs.Age > 0 {
			kept = append(kept, cs)
		}
	}
	return kept
}

// Realign re-fits both descriptor ranges to mean +/- 2 std of the current
// archive contents and redistributes every occupant into the new bins.
func (m *MAPElites) Realign() {
	all := m.drain()
	if len(all) < 2 {
		for _, cs := range all {
			m.assign(cs)
		}
		return
	}
	var xs, ys []float64
	for _, cs := range all {
		xs = append(xs, m.descX.Evaluate(cs))
		ys = append(ys, m.descY.Evaluate(cs))
	}
	m.descX.Bounds = alignedBounds(xs, m.descX.Bounds)
	m.descY.Bounds = alignedBounds(ys, m.descY.Bounds)
	log.Debugf("realigned descriptor ranges: %s %v, %s %v",
		m.descX.Name, m.descX.Bounds, m.descY.Name, m.descY.Bounds)
	m.resetBins()
	for _, cs := range all {
		m.assign(cs)
	}
}

func alignedBounds(vs []float64, fallback [2]float64) [2]float64 {
	mean, std := stat.MeanStdDev(vs, nil)
	if std == 0 {
		return fallback
	}
	return [2]float64{mean - 2*std, mean + 2*std}
}

func (m *MAPElites) drain() []*CandidateSolution {
	var all []*CandidateSolution
	for _, row := range m.bins {
		for _, b := range row {
			all = append(all, b.Feasible...)
			all = append(all, b.Infeasible...)
		}
	}
	return all
}

// Coverage is the fraction of bins holding at least one feasible candidate.
func (m *MAPElites) Coverage() float64 {
	total := m.conf.BinsX * m.conf.BinsY
	if total == 0 {
		return 0
	}
	return float64(len(m.validBins())) / float64(total)
}

// Best returns the fittest feasible elite across the archive, or nil.
func (m *MAPElites) Best() *CandidateSolution {
	var best *CandidateSolution
	for _, row := range m.bins {
		for _, b := range row {
			if e := b.Elite(true); e != nil {
				if best == nil || e.CFitness > best.CFitness {
					best = e
				}
			}
		}
	}
	return best
}

// Bins exposes the archive for inspection and persistence.
func (m *MAPElites) Bins() [][]*MapBin {
	return m.bins
}
