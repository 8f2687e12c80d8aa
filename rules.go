package shipwright

import (
	"bufio"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

// Production is one right-hand side of a stochastic rule with its sampling
// probability.
type Production struct {
	RHS []string
	P   float64
}

// RuleSet holds the stochastic production rules of one grammar layer. Rules
// are loaded once and are immutable for the lifetime of a solver run; the
// random source is injected so derivations replay under a fixed seed.
type RuleSet struct {
	Name     string
	alphabet *Alphabet
	rules    map[string][]Production
	rnd      *rand.Rand
}

// NewRuleSet builds an empty rule set bound to an alphabet. rnd may be nil,
// in which case the package source is used.
func NewRuleSet(name string, alphabet *Alphabet, rnd *rand.Rand) *RuleSet {
	return &RuleSet{
		Name:     name,
		alphabet: alphabet,
		rules:    make(map[string][]Production),
		rnd:      rnd,
	}
}

// LoadRuleSet reads a plain-text rule file: one `LHS -> RHS [: probability]`
// per line, `#` comments. The probability defaults to 1. Probabilities for
// each LHS must sum to 1 within ProbEpsilon; violations are startup-fatal.
func LoadRuleSet(path, name string, alphabet *Alphabet, rnd *rand.Rand) (*RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule file [%s]: %w", path, err)
	}
	defer f.Close()

	type rawRule struct {
		lhs  string
		rhs  string
		p    float64
		line int
	}
	var raws []rawRule

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lhs, rest, found := strings.Cut(line, "->")
		if !found {
			return nil, fmt.Errorf("rule file [%s] line %d: missing '->'", path, lineNo)
		}
		rhs, probPart, hasProb := strings.Cut(rest, ":")
		p := 1.0
		if hasProb {
			p, err = strconv.ParseFloat(strings.TrimSpace(probPart), 64)
			if err != nil {
				return nil, fmt.Errorf("rule file [%s] line %d: bad probability: %w", path, lineNo, err)
			}
		}
		raws = append(raws, rawRule{
			lhs:  strings.TrimSpace(lhs),
			rhs:  strings.TrimSpace(rhs),
			p:    p,
			line: lineNo,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rule file [%s]: %w", path, err)
	}

	// Register all LHS symbols first so RHS strings containing other
	// nonterminals tokenize on the second pass.
	lhsSymbols := make([]string, 0, len(raws))
	for _, r := range raws {
		lhsSymbols = append(lhsSymbols, r.lhs)
	}
	alphabet.RegisterNonterminals(lhsSymbols)

	rs := NewRuleSet(name, alphabet, rnd)
	for _, r := range raws {
		tokens, err := alphabet.Tokenize(r.rhs)
		if err != nil {
			return nil, fmt.Errorf("rule file [%s] line %d: %w", path, r.line, err)
		}
		rs.rules[r.lhs] = append(rs.rules[r.lhs], Production{RHS: tokens, P: r.p})
	}

	if err := rs.validate(); err != nil {
		return nil, fmt.Errorf("rule file [%s]: %w", path, err)
	}
	return rs, nil
}

func (rs *RuleSet) validate() error {
	for lhs, prods := range rs.rules {
		if len(prods) == 0 {
			return fmt.Errorf("rule [%s] has no productions", lhs)
		}
		sum := 0.0
		for _, p := range prods {
			if p.P < 0 {
				return fmt.Errorf("rule [%s] has a negative probability", lhs)
			}
			sum += p.P
		}
		if math.Abs(sum-1.0) > ProbEpsilon {
			return fmt.Errorf("rule [%s] probabilities sum to %v, expected 1", lhs, sum)
		}
	}
	return nil
}

// AddRule appends a production; used by tests and programmatic grammars.
// Call validate via Validate when done.
func (rs *RuleSet) AddRule(lhs string, rhs []string, p float64) {
	rs.rules[lhs] = append(rs.rules[lhs], Production{RHS: rhs, P: p})
	rs.alphabet.RegisterNonterminals([]string{lhs})
}

// Validate re-checks probability mass per LHS.
func (rs *RuleSet) Validate() error {
	return rs.validate()
}

// Nonterminals returns all LHS symbols.
func (rs *RuleSet) Nonterminals() []string {
	out := make([]string, 0, len(rs.rules))
	for lhs := range rs.rules {
		out = append(out, lhs)
	}
	return out
}

// HasRule reports whether a symbol has productions.
func (rs *RuleSet) HasRule(symbol string) bool {
	return len(rs.rules[symbol]) > 0
}

func (rs *RuleSet) float64() float64 {
	if rs.rnd != nil {
		return rs.rnd.Float64()
	}
	return rng.Float64()
}

// Expand samples one production for a symbol by weighted random choice. A
// symbol with no rule but present in the alphabet is a terminal and passes
// through unchanged. A symbol with neither rule nor alphabet entry is an
// UnknownSymbolError.
func (rs *RuleSet) Expand(symbol string) ([]string, error) {
	prods, ok := rs.rules[symbol]
	if !ok {
		if _, terminal := rs.alphabet.Atom(symbol); terminal {
			return []string{symbol}, nil
		}
		return nil, &UnknownSymbolError{Token: symbol}
	}
	roll := rs.float64()
	acc := 0.0
	for _, p := range prods {
		acc += p.P
		if roll < acc {
			return p.RHS, nil
		}
	}
	// Floating point slack: the roll landed in the epsilon tail.
	return prods[len(prods)-1].RHS, nil
}

// Apply rewrites a token string for the given number of iterations. Each
// iteration scans left to right and replaces every nonterminal with one
// sampled expansion simultaneously, classic L-system semantics.
func (rs *RuleSet) Apply(tokens []string, iterations int) ([]string, error) {
	current := tokens
	for it := 0; it < iterations; it++ {
		next := make([]string, 0, len(current)*2)
		for _, sym := range current {
			expansion, err := rs.Expand(sym)
			if err != nil {
				return nil, err
			}
			next = append(next, expansion...)
		}
		current = next
	}
	return current, nil
}

// ApplyString is Apply over a raw string, returning the concatenated result.
func (rs *RuleSet) ApplyString(s string, iterations int) (string, error) {
	tokens, err := rs.alphabet.Tokenize(s)
	if err != nil {
		return "", err
	}
	out, err := rs.Apply(tokens, iterations)
	if err != nil {
		return "", err
	}
	return strings.Join(out, ""), nil
}
