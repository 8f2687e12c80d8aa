package shipwright

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
)

// EvoConfig tunes the shared genetic machinery. Parent selection is
// roulette wheel (fitness proportional); rank-based selection was
// considered and rejected to keep selection pressure tied to the actual
// fitness landscape.
type EvoConfig struct {
	PopSize       int     `toml:"pop_size"`
	Generations   int     `toml:"generations"`
	MaxAge        int     `toml:"max_age"`
	MutationP0    float64 `toml:"mutation_p0"`
	MutationDecay float64 `toml:"mutation_decay"`
	CrossoverP    float64 `toml:"crossover_p"`
	DedupDistance int     `toml:"dedup_distance"`
}

func (c *EvoConfig) withDefaults() *EvoConfig {
	out := *c
	if out.PopSize <= 0 {
		out.PopSize = 20
	}
	if out.MaxAge <= 0 {
		out.MaxAge = 5
	}
	if out.MutationP0 <= 0 {
		out.MutationP0 = 0.8
	}
	if out.MutationDecay <= 0 || out.MutationDecay >= 1 {
		out.MutationDecay = 0.9
	}
	if out.CrossoverP <= 0 {
		out.CrossoverP = 0.6
	}
	return &out
}

// GeneticOps applies mutation and crossover to candidates, respecting
// module mutability. All sampling goes through the injected source.
type GeneticOps struct {
	ls   *LSystem
	conf *EvoConfig
	rnd  *rand.Rand
}

func NewGeneticOps(ls *LSystem, conf *EvoConfig, rnd *rand.Rand) *GeneticOps {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(int64(rng.Intn(math.MaxInt32))))
	}
	return &GeneticOps{ls: ls, conf: conf.withDefaults(), rnd: rnd}
}

// MutationProb decays geometrically with the generation counter, so early
// generations explore and late ones refine.
func (g *GeneticOps) MutationProb(gen int) float64 {
	return g.conf.MutationP0 * math.Pow(g.conf.MutationDecay, float64(gen))
}

// Mutate regrows a random rewritable substring of one mutable module with a
// freshly sampled local expansion. The input candidate is never touched.
func (g *GeneticOps) Mutate(cs *CandidateSolution, gen int) (*CandidateSolution, error) {
	if g.rnd.Float64() >= g.MutationProb(gen) {
		return cs, nil
	}
	child := cs.Clone()
	// A crossover offspring already points at the original pool members;
	// keep that lineage instead of crediting the intermediate clone.
	if len(cs.Parents) > 0 {
		child.Parents = cs.Parents
	} else {
		child.Parents = []*CandidateSolution{cs}
	}

	name, module, ok := g.pickMutableModule(child)
	if !ok {
		return child, nil
	}
	mutated, err := g.mutateString(module.String)
	if err != nil {
		return nil, err
	}
	child.Modules[name] = ModuleString{String: mutated, Mutable: module.Mutable, Order: module.Order}
	child.String = rebuildString(child)
	child.LLString = ""
	cs.NOffspring++
	return child, nil
}

func (g *GeneticOps) pickMutableModule(cs *CandidateSolution) (string, ModuleString, bool) {
	if len(cs.Modules) == 0 {
		// Unmerged candidate: treat the whole string as one mutable module.
		cs.Modules[""] = ModuleString{String: cs.String, Mutable: true}
	}
	var names []string
	for name, m := range cs.Modules {
		if m.Mutable {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", ModuleString{}, false
	}
	// Map iteration order is random but not seedable; sort for
	// reproducible picks.
	sort.Strings(names)
	name := names[g.rnd.Intn(len(names))]
	return name, cs.Modules[name], true
}

func (g *GeneticOps) mutateString(s string) (string, error) {
	tokens, err := g.ls.Alphabet.Tokenize(s)
	if err != nil {
		return "", err
	}
	var rewritable []int
	for i, tok := range tokens {
		if g.ls.HLRules.HasRule(tok) {
			rewritable = append(rewritable, i)
		}
	}
	if len(rewritable) == 0 {
		return s, nil
	}
	at := rewritable[g.rnd.Intn(len(rewritable))]
	replacement, err := g.ls.LocalExpansion(tokens[at], g.rnd)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, tok := range tokens {
		if i == at {
			sb.WriteString(replacement)
		} else {
			sb.WriteString(tok)
		}
	}
	return sb.String(), nil
}

// Crossover splices the parents' strings at matching bracket-depth-zero
// boundaries, producing two offspring. Candidates sharing module layout are
// crossed per mutable module so immutable sections survive intact.
func (g *GeneticOps) Crossover(a, b *CandidateSolution) (*CandidateSolution, *CandidateSolution, error) {
	c1, c2 := a.Clone(), b.Clone()
	c1.Parents = []*CandidateSolution{a, b}
	c2.Parents = []*CandidateSolution{b, a}

	if g.rnd.Float64() >= g.conf.CrossoverP {
		return c1, c2, nil
	}

	if sameModuleLayout(a, b) {
		// Map iteration order is random but not seedable; sort so the same
		// seed pairs the same draws with the same modules.
		names := make([]string, 0, len(a.Modules))
		for name := range a.Modules {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ma, mb := a.Modules[name], b.Modules[name]
			if !ma.Mutable {
				continue
			}
			s1, s2, err := g.spliceStrings(ma.String, mb.String)
			if err != nil {
				return nil, nil, err
			}
			c1.Modules[name] = ModuleString{String: s1, Mutable: true, Order: ma.Order}
			c2.Modules[name] = ModuleString{String: s2, Mutable: true, Order: ma.Order}
		}
		c1.String = rebuildString(c1)
		c2.String = rebuildString(c2)
	} else {
		s1, s2, err := g.spliceStrings(a.String, b.String)
		if err != nil {
			return nil, nil, err
		}
		c1.String, c2.String = s1, s2
		// The inherited module layout no longer describes the spliced
		// strings; drop it so later operators work on the whole string.
		c1.Modules = make(map[string]ModuleString)
		c2.Modules = make(map[string]ModuleString)
	}
	c1.LLString, c2.LLString = "", ""
	a.NOffspring++
	b.NOffspring++
	return c1, c2, nil
}

func sameModuleLayout(a, b *CandidateSolution) bool {
	if len(a.Modules) == 0 || len(a.Modules) != len(b.Modules) {
		return false
	}
	for name := range a.Modules {
		if _, ok := b.Modules[name]; !ok {
			return false
		}
	}
	return true
}

func (g *GeneticOps) spliceStrings(sa, sb string) (string, string, error) {
	ta, err := g.ls.Alphabet.Tokenize(sa)
	if err != nil {
		return "", "", err
	}
	tb, err := g.ls.Alphabet.Tokenize(sb)
	if err != nil {
		return "", "", err
	}
	cutsA := depthZeroCuts(ta)
	cutsB := depthZeroCuts(tb)
	if len(cutsA) == 0 || len(cutsB) == 0 {
		return sa, sb, nil
	}
	i := cutsA[g.rnd.Intn(len(cutsA))]
	j := cutsB[g.rnd.Intn(len(cutsB))]
	s1 := strings.Join(ta[:i], "") + strings.Join(tb[j:], "")
	s2 := strings.Join(tb[:j], "") + strings.Join(ta[i:], "")
	return s1, s2, nil
}

// depthZeroCuts lists the interior token boundaries at bracket depth zero;
// splicing there keeps both offspring scope-balanced.
func depthZeroCuts(tokens []string) []int {
	var cuts []int
	depth := 0
	for i, tok := range tokens {
		switch tok {
		case PushSymbol:
			depth++
		case PopSymbol:
			depth--
		}
		if depth == 0 && i+1 < len(tokens) {
			cuts = append(cuts, i+1)
		}
	}
	return cuts
}

// Roulette selects one parent fitness-proportionally. For infeasible pools
// (minimize=true) the wheel is inverted so smaller distances to feasibility
// weigh more.
func (g *GeneticOps) Roulette(pop []*CandidateSolution, minimize bool) (*CandidateSolution, error) {
	if len(pop) == 0 {
		return nil, fmt.Errorf("cannot select from an empty population")
	}
	worst, best := pop[0].CFitness, pop[0].CFitness
	for _, cs := range pop {
		if cs.CFitness > best {
			best = cs.CFitness
		}
		if cs.CFitness < worst {
			worst = cs.CFitness
		}
	}
	const slack = 1e-6
	total := 0.0
	weights := make([]float64, len(pop))
	for i, cs := range pop {
		w := cs.CFitness - worst + slack
		if minimize {
			w = best - cs.CFitness + slack
		}
		weights[i] = w
		total += w
	}
	roll := g.rnd.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if roll < acc {
			return pop[i], nil
		}
	}
	return pop[len(pop)-1], nil
}

// NewPool breeds n offspring from a population: roulette parents, splice,
// then mutate, ages reset by the caller after re-evaluation.
func (g *GeneticOps) NewPool(pop []*CandidateSolution, gen, n int, minimize bool) ([]*CandidateSolution, error) {
	var out []*CandidateSolution
	for len(out) < n {
		p1, err := g.Roulette(pop, minimize)
		if err != nil {
			return nil, err
		}
		p2, err := g.Roulette(pop, minimize)
		if err != nil {
			return nil, err
		}
		c1, c2, err := g.Crossover(p1, p2)
		if err != nil {
			return nil, err
		}
		for _, c := range []*CandidateSolution{c1, c2} {
			child, err := g.Mutate(c, gen)
			if err != nil {
				return nil, err
			}
			out = append(out, child)
		}
	}
	return out[:n], nil
}

func rebuildString(cs *CandidateSolution) string {
	if len(cs.Modules) == 0 {
		return cs.String
	}
	names := make([]string, 0, len(cs.Modules))
	for name := range cs.Modules {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return cs.Modules[names[i]].Order < cs.Modules[names[j]].Order
	})
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(cs.Modules[name].String)
	}
	return sb.String()
}
