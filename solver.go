package shipwright

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	voxel "nickandperla.net/voxel"
)

// SolverState is the derivation state machine.
type SolverState int

const (
	Expanding SolverState = iota
	ConstraintChecking
	Terminal
	Rejected
)

func (s SolverState) String() string {
	switch s {
	case Expanding:
		return "expanding"
	case ConstraintChecking:
		return "constraint-checking"
	case Terminal:
		return "terminal"
	case Rejected:
		return "rejected"
	}
	return "??"
}

// ModuleSpec is one independently expanded grammar section of a ship.
type ModuleSpec struct {
	Name       string `toml:"name"`
	Axiom      string `toml:"axiom"`
	Iterations int    `toml:"iterations"`
	Mutable    bool   `toml:"mutable"`
}

type SolverConfig struct {
	Retries       int                  `toml:"retries"`
	MaxLLDepth    int                  `toml:"max_ll_depth"`
	Machine       *voxel.MachineConfig `toml:"machine"`
	DisableDuring bool                 `toml:"disable_during"`
}

// LSystem drives iterative rule application, parsing and constraint
// filtering: the heart of the grammar pipeline. High-level rules shape the
// ship out of tiles; each tile is then the axiom of an inner low-level
// expansion that emits placeable blocks.
type LSystem struct {
	Alphabet *Alphabet
	Parser   *Parser
	HLRules  *RuleSet
	LLRules  *RuleSet

	Constraints *ConstraintSet
	Config      *SolverConfig

	machine *voxel.Machine
}

func NewLSystem(alphabet *Alphabet, hl, ll *RuleSet, constraints *ConstraintSet, config *SolverConfig) *LSystem {
	if config == nil {
		config = &SolverConfig{}
	}
	if config.Retries <= 0 {
		config.Retries = 10
	}
	if config.MaxLLDepth <= 0 {
		config.MaxLLDepth = 20
	}
	if constraints == nil {
		constraints = &ConstraintSet{Name: "default"}
	}
	return &LSystem{
		Alphabet:    alphabet,
		Parser:      NewParser(alphabet),
		HLRules:     hl,
		LLRules:     ll,
		Constraints: constraints,
		Config:      config,
		machine:     voxel.NewMachine(config.Machine),
	}
}

// DisableSATCheck turns off during-expansion constraint filtering, letting
// infeasible strings through for the infeasible population.
func (ls *LSystem) DisableSATCheck() { ls.Config.DisableDuring = true }

// EnableSATCheck restores during-expansion filtering.
func (ls *LSystem) EnableSATCheck() { ls.Config.DisableDuring = false }

// ExpandModule derives one module: starting from its axiom, expand one
// grammar iteration at a time, running DURING constraints after each. A
// hard failure discards the sampled iteration and resamples from the same
// prefix, up to the retry budget per iteration; exhaustion surfaces
// FeasibilityExhausted. END constraints that do not need the low-level
// translation run once after the last iteration.
func (ls *LSystem) ExpandModule(spec ModuleSpec) (*CandidateSolution, error) {
	state := Expanding
	tokens, err := ls.Alphabet.Tokenize(spec.Axiom)
	if err != nil {
		return nil, fmt.Errorf("module [%s]: %w", spec.Name, err)
	}

	for it := 0; it < spec.Iterations; it++ {
		accepted := false
		for attempt := 0; attempt < ls.Config.Retries; attempt++ {
			state = Expanding
			next, err := ls.HLRules.Apply(tokens, 1)
			if err != nil {
				var unknown *UnknownSymbolError
				if errors.As(err, &unknown) {
					return nil, fmt.Errorf("module [%s]: %w", spec.Name, err)
				}
				return nil, err
			}
			if ls.Config.DisableDuring {
				tokens = next
				accepted = true
				break
			}
			state = ConstraintChecking
			partial := NewCandidateSolution(strings.Join(next, ""))
			hard, _, failed := ls.Constraints.EvaluateAt(partial, DuringExpansion, false)
			if hard == 0 {
				tokens = next
				accepted = true
				break
			}
			state = Rejected
			log.Debugf("module [%s] iteration %d attempt %d rejected by [%s]", spec.Name, it, attempt, failed)
		}
		if !accepted {
			return nil, &FeasibilityExhausted{Axiom: spec.Axiom, Retries: ls.Config.Retries}
		}
	}

	cs := NewCandidateSolution(strings.Join(tokens, ""))
	state = ConstraintChecking
	hard, soft, failed := ls.Constraints.EvaluateAt(cs, EndOfExpansion, false)
	if hard > 0 && !ls.Config.DisableDuring {
		state = Rejected
		log.Debugf("module [%s] terminal string rejected by [%s] (state %v)", spec.Name, failed, state)
		return nil, &FeasibilityExhausted{Axiom: spec.Axiom, Retries: ls.Config.Retries}
	}
	cs.NCV = soft
	state = Terminal
	log.Debugf("module [%s] reached %v after %d iterations", spec.Name, state, spec.Iterations)
	return cs, nil
}

// ApplyRules expands every module independently and merges the terminal
// strings into one candidate. A module that exhausts its budget fails alone;
// the other modules' derivations are not restarted (partial-failure
// semantics: per-section retry, whole-derivation failure only when a section
// gives up).
func (ls *LSystem) ApplyRules(specs []ModuleSpec) (*CandidateSolution, error) {
	parts := make([]*CandidateSolution, 0, len(specs))
	names := make([]string, 0, len(specs))
	active := make([]bool, 0, len(specs))
	for _, spec := range specs {
		cs, err := ls.ExpandModule(spec)
		if err != nil {
			return nil, err
		}
		parts = append(parts, cs)
		names = append(names, spec.Name)
		active = append(active, spec.Mutable)
	}
	merged, err := MergeSolutions(parts, names, active)
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		merged.NCV += p.NCV
	}
	return merged, nil
}

// GenerateCandidates runs ApplyRules up to n times, collecting candidates
// and tolerating per-candidate feasibility exhaustion until the whole batch
// comes back empty.
func (ls *LSystem) GenerateCandidates(specs []ModuleSpec, n int) ([]*CandidateSolution, error) {
	var out []*CandidateSolution
	var lastErr error
	for i := 0; i < n; i++ {
		cs, err := ls.ApplyRules(specs)
		if err != nil {
			var exhausted *FeasibilityExhausted
			if errors.As(err, &exhausted) {
				lastErr = err
				continue
			}
			return nil, err
		}
		out = append(out, cs)
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// AddLLString translates the candidate's high-level string into its
// low-level expansion: every high-level tile atom is the seed axiom of an
// inner llrules derivation, expanded to fixpoint and substituted in place.
// Atoms without low-level rules pass through unchanged.
func (ls *LSystem) AddLLString(cs *CandidateSolution) error {
	tokens, err := ls.Alphabet.Tokenize(cs.String)
	if err != nil {
		return err
	}
	var sb strings.Builder
	for _, tok := range tokens {
		if !ls.LLRules.HasRule(tok) {
			sb.WriteString(tok)
			continue
		}
		inner := []string{tok}
		depth := 0
		for ls.anyExpandable(inner) {
			inner, err = ls.LLRules.Apply(inner, 1)
			if err != nil {
				return err
			}
			depth++
			if depth > ls.Config.MaxLLDepth {
				return fmt.Errorf("low-level expansion of [%s] did not terminate within depth [%d]", tok, ls.Config.MaxLLDepth)
			}
		}
		sb.WriteString(strings.Join(inner, ""))
	}
	cs.LLString = sb.String()
	return nil
}

func (ls *LSystem) anyExpandable(tokens []string) bool {
	for _, t := range tokens {
		if ls.LLRules.HasRule(t) {
			return true
		}
	}
	return false
}

// SetStructure parses the candidate's low-level string and runs the voxel
// machine over it, attaching the sanified structure. An IntersectionError
// here means a constraint gap upstream: the candidate is marked infeasible
// and the error returned for the caller to log and discard.
func (ls *LSystem) SetStructure(cs *CandidateSolution) error {
	if cs.HasStructure() {
		return nil
	}
	if cs.LLString == "" {
		if err := ls.AddLLString(cs); err != nil {
			return err
		}
	}
	atoms, err := ls.Parser.Parse(cs.LLString)
	if err != nil {
		return err
	}
	st, err := ls.machine.Fill(voxel.NewStructure(), atoms)
	if err != nil {
		var hit *voxel.IntersectionError
		if errors.As(err, &hit) {
			cs.Feasible = false
			log.Warnf("intersection during placement of [%.40s...]: %v", cs.String, hit)
		}
		return err
	}
	if err := cs.SetStructure(st); err != nil {
		return err
	}
	cs.SetMeasurements(Measure(st))
	return nil
}

// SubdivideSolutions classifies candidates into feasible and infeasible by
// running the full constraint set (needs-LL handlers included, building the
// structure on demand). Feasible candidates carry their soft violation
// count in NCV; infeasible ones carry the hard count, their distance to
// feasibility.
func (ls *LSystem) SubdivideSolutions(lcs []*CandidateSolution) {
	for _, cs := range lcs {
		if !cs.HasStructure() {
			if err := ls.SetStructure(cs); err != nil {
				cs.Feasible = false
				cs.NCV++
				continue
			}
		}
		hardD, softD, _ := ls.Constraints.EvaluateAt(cs, DuringExpansion, true)
		hardE, softE, _ := ls.Constraints.EvaluateAt(cs, EndOfExpansion, true)
		hard, soft := hardD+hardE, softD+softE
		if hard > 0 {
			cs.Feasible = false
			cs.NCV = hard
		} else {
			cs.Feasible = true
			cs.NCV = soft
		}
	}
}

// LocalExpansion samples a fresh expansion of a single symbol, used by the
// mutation operator to regrow a substring in place.
func (ls *LSystem) LocalExpansion(symbol string, rnd *rand.Rand) (string, error) {
	rs := ls.HLRules
	if rnd != nil {
		// A transient rule set view with the caller's source keeps mutation
		// replayable without disturbing the solver's own stream.
		rs = &RuleSet{Name: rs.Name, alphabet: rs.alphabet, rules: rs.rules, rnd: rnd}
	}
	out, err := rs.Expand(symbol)
	if err != nil {
		return "", err
	}
	return strings.Join(out, ""), nil
}
