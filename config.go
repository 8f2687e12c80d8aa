package shipwright

import (
	"fmt"
	"path/filepath"

	logrus "github.com/sirupsen/logrus"

	voxel "nickandperla.net/voxel"
)

// ToolConfig is the shared surface of the cmd/ tools, decoded from
// config.toml. Engine tuning lives in the separate evolution config.
type ToolConfig struct {
	LogLevel    string             `toml:"log_level"`
	CandLogPath string             `toml:"candidate_log"`
	Persistence *PersistenceConfig `toml:"persistence"`
	Bridge      *BridgeConfig      `toml:"bridge"`
	Hull        *HullConfig        `toml:"hull"`
}

// ApplyLogLevel sets the package logger level from the config, defaulting
// to info on empty or unparseable input.
func (c *ToolConfig) ApplyLogLevel() {
	level := logrus.InfoLevel
	if c.LogLevel != "" {
		parsed, err := logrus.ParseLevel(c.LogLevel)
		if err == nil {
			level = parsed
		} else {
			log.Warnf("unknown log level [%s], using info", c.LogLevel)
		}
	}
	log.SetLevel(level)
}

// GrammarConfig locates the grammar assets and names the ship modules to
// derive from them.
type GrammarConfig struct {
	Dir          string       `toml:"dir"`
	AlphabetFile string       `toml:"alphabet"`
	HLRulesFile  string       `toml:"hlrules"`
	LLRulesFile  string       `toml:"llrules"`
	Modules      []ModuleSpec `toml:"modules"`
}

func (c *GrammarConfig) withDefaults() *GrammarConfig {
	out := *c
	if out.AlphabetFile == "" {
		out.AlphabetFile = "alphabet.json"
	}
	if out.HLRulesFile == "" {
		out.HLRulesFile = "hlrules"
	}
	if out.LLRulesFile == "" {
		out.LLRulesFile = "llrules"
	}
	return &out
}

// ConstraintConfig selects and parameterizes the constraint handlers.
type ConstraintConfig struct {
	NoIntersection bool           `toml:"no_intersection"`
	Required       map[string]int `toml:"required"`
	MaxDims        []int          `toml:"max_dims"`
	SymmetryMin    float64        `toml:"symmetry_min"`
}

// EvolutionConfig is the full engine configuration, decoded from evo.toml.
type EvolutionConfig struct {
	Method      string            `toml:"method"` // "fi2pop" (default) or "mapelites"
	Seed        int64             `toml:"seed"`
	Grammar     *GrammarConfig    `toml:"grammar"`
	Solver      *SolverConfig     `toml:"solver"`
	Constraints *ConstraintConfig `toml:"constraints"`
	Evaluator   *EvaluatorConfig  `toml:"evaluator"`
	Evo         *EvoConfig        `toml:"evo"`
	MapElites   *MapElitesConfig  `toml:"mapelites"`
}

// BuildConstraints assembles the configured handler set. The machine config
// is shared with the solver so dry runs respect the same op budget.
func BuildConstraints(cc *ConstraintConfig, alphabet *Alphabet, mc *voxel.MachineConfig) *ConstraintSet {
	set := &ConstraintSet{Name: "ship"}
	if cc == nil {
		return set
	}
	if cc.NoIntersection {
		set.Handlers = append(set.Handlers, NewNoIntersectionConstraint(alphabet, mc))
	}
	if len(cc.Required) > 0 {
		set.Handlers = append(set.Handlers, NewRequiredComponentsConstraint(cc.Required))
	}
	if len(cc.MaxDims) == 3 {
		set.Handlers = append(set.Handlers, NewMaxDimensionsConstraint(voxel.V(cc.MaxDims[0], cc.MaxDims[1], cc.MaxDims[2])))
	}
	if cc.SymmetryMin > 0 {
		set.Handlers = append(set.Handlers, NewSymmetryConstraint(cc.SymmetryMin))
	}
	return set
}

// SoftCount reports how many configured handlers are soft, feeding the
// evaluator's bonus term.
func (s *ConstraintSet) SoftCount() int {
	n := 0
	for _, h := range s.Handlers {
		if h.Level == SoftConstraint {
			n++
		}
	}
	return n
}

// BuildLSystem loads the grammar assets and wires the solver from the
// evolution config. Malformed grammar files are fatal to the caller.
func BuildLSystem(ec *EvolutionConfig) (*LSystem, error) {
	if ec.Grammar == nil {
		return nil, fmt.Errorf("evolution config is missing its [grammar] section")
	}
	gc := ec.Grammar.withDefaults()
	if len(gc.Modules) == 0 {
		return nil, fmt.Errorf("grammar config names no modules")
	}

	alphabet, err := LoadAlphabet(filepath.Join(gc.Dir, gc.AlphabetFile))
	if err != nil {
		return nil, fmt.Errorf("loading alphabet: %w", err)
	}
	hl, err := LoadRuleSet(filepath.Join(gc.Dir, gc.HLRulesFile), "hlrules", alphabet, nil)
	if err != nil {
		return nil, fmt.Errorf("loading hlrules: %w", err)
	}
	ll, err := LoadRuleSet(filepath.Join(gc.Dir, gc.LLRulesFile), "llrules", alphabet, nil)
	if err != nil {
		return nil, fmt.Errorf("loading llrules: %w", err)
	}

	sc := ec.Solver
	if sc == nil {
		sc = &SolverConfig{}
	}
	constraints := BuildConstraints(ec.Constraints, alphabet, sc.Machine)
	return NewLSystem(alphabet, hl, ll, constraints, sc), nil
}
