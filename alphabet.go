package shipwright

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	voxel "nickandperla.net/voxel"
)

// Alphabet is the declared symbol set: every terminal symbol maps to an atom
// prototype, and every rule nonterminal is registered so the tokenizer can
// recognize it during intermediate derivation steps. Loaded once at startup
// and read-only afterwards.
type Alphabet struct {
	atoms        map[string]voxel.Atom
	nonterminals map[string]bool
	vocab        []string // all symbols, longest first, for greedy matching
}

// atomSpec is the JSON shape of one alphabet entry.
type atomSpec struct {
	Action     string `json:"action"`
	Direction  []int  `json:"direction,omitempty"`
	Plane      string `json:"plane,omitempty"`
	Sense      string `json:"sense,omitempty"`
	Block      string `json:"block,omitempty"`
	Functional bool   `json:"functional,omitempty"`
	Offset     []int  `json:"offset,omitempty"`
	Dims       []int  `json:"dims,omitempty"`
}

// LoadAlphabet reads a JSON file mapping symbol -> {action, args}. A
// malformed file is startup-fatal to the caller.
func LoadAlphabet(path string) (*Alphabet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alphabet file [%s]: %w", path, err)
	}
	var specs map[string]atomSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alphabet file [%s]: %w", path, err)
	}

	atoms := make(map[string]voxel.Atom, len(specs))
	for symbol, spec := range specs {
		atom, err := makeAtom(symbol, spec)
		if err != nil {
			return nil, fmt.Errorf("alphabet symbol [%s]: %w", symbol, err)
		}
		atoms[symbol] = atom
	}
	return NewAlphabet(atoms), nil
}

// NewAlphabet builds an alphabet from already-constructed atom prototypes.
func NewAlphabet(atoms map[string]voxel.Atom) *Alphabet {
	a := &Alphabet{
		atoms:        make(map[string]voxel.Atom, len(atoms)+2),
		nonterminals: make(map[string]bool),
	}
	for s, atom := range atoms {
		a.atoms[s] = atom
	}
	// Brackets are always part of the vocabulary.
	if _, ok := a.atoms[PushSymbol]; !ok {
		a.atoms[PushSymbol] = voxel.PushAtom(PushSymbol)
	}
	if _, ok := a.atoms[PopSymbol]; !ok {
		a.atoms[PopSymbol] = voxel.PopAtom(PopSymbol)
	}
	a.rebuildVocab()
	return a
}

func makeAtom(symbol string, spec atomSpec) (voxel.Atom, error) {
	switch spec.Action {
	case "move":
		if len(spec.Direction) != 3 {
			return voxel.Atom{}, fmt.Errorf("move action requires a 3-element direction")
		}
		return voxel.MoveAtom(symbol, vecOf(spec.Direction)), nil
	case "rotate":
		plane, err := parsePlane(spec.Plane)
		if err != nil {
			return voxel.Atom{}, err
		}
		sense, err := parseSense(spec.Sense)
		if err != nil {
			return voxel.Atom{}, err
		}
		return voxel.RotateAtom(symbol, plane, sense), nil
	case "place":
		if spec.Block == "" {
			return voxel.Atom{}, fmt.Errorf("place action requires a block type")
		}
		offset, dims := voxel.V(0, 0, 0), voxel.V(1, 1, 1)
		if len(spec.Offset) == 3 {
			offset = vecOf(spec.Offset)
		}
		if len(spec.Dims) == 3 {
			dims = vecOf(spec.Dims)
		}
		return voxel.PlaceAtom(symbol, spec.Block, spec.Functional, offset, dims), nil
	case "push":
		return voxel.PushAtom(symbol), nil
	case "pop":
		return voxel.PopAtom(symbol), nil
	}
	return voxel.Atom{}, fmt.Errorf("unrecognized action [%s]", spec.Action)
}

func vecOf(xs []int) voxel.Vec {
	return voxel.V(xs[0], xs[1], xs[2])
}

func parsePlane(s string) (voxel.RotationPlane, error) {
	switch strings.ToLower(s) {
	case "xy":
		return voxel.PlaneXY, nil
	case "xz":
		return voxel.PlaneXZ, nil
	case "yz":
		return voxel.PlaneYZ, nil
	}
	return 0, fmt.Errorf("unrecognized rotation plane [%s]", s)
}

func parseSense(s string) (voxel.RotationSense, error) {
	switch strings.ToLower(s) {
	case "cw":
		return voxel.Clockwise, nil
	case "ccw":
		return voxel.CounterClockwise, nil
	}
	return 0, fmt.Errorf("unrecognized rotation sense [%s]", s)
}

// Atom returns the prototype for a terminal symbol.
func (a *Alphabet) Atom(symbol string) (voxel.Atom, bool) {
	atom, ok := a.atoms[symbol]
	return atom, ok
}

// IsNonterminal reports whether a symbol was registered by a rule set.
func (a *Alphabet) IsNonterminal(symbol string) bool {
	return a.nonterminals[symbol]
}

// RegisterNonterminals adds rule LHS symbols to the vocabulary so that
// intermediate (not yet fully expanded) strings still tokenize.
func (a *Alphabet) RegisterNonterminals(symbols []string) {
	for _, s := range symbols {
		if _, ok := a.atoms[s]; !ok {
			a.nonterminals[s] = true
		}
	}
	a.rebuildVocab()
}

func (a *Alphabet) rebuildVocab() {
	vocab := make([]string, 0, len(a.atoms)+len(a.nonterminals))
	for s := range a.atoms {
		vocab = append(vocab, s)
	}
	for s := range a.nonterminals {
		vocab = append(vocab, s)
	}
	// Longest first so greedy matching picks "corridor2" over "corridor".
	sort.Slice(vocab, func(i, j int) bool {
		if len(vocab[i]) != len(vocab[j]) {
			return len(vocab[i]) > len(vocab[j])
		}
		return vocab[i] < vocab[j]
	})
	a.vocab = vocab
}

// Symbols returns every known symbol, longest first.
func (a *Alphabet) Symbols() []string {
	return a.vocab
}

// Tokenize splits a raw string into vocabulary symbols by greedy longest
// match. Whitespace separates tokens but is otherwise ignored. An
// unrecognizable run produces an UnknownSymbolError carrying the offending
// token and its token index.
func (a *Alphabet) Tokenize(s string) ([]string, error) {
	var tokens []string
	i := 0
	for i < len(s) {
		if unicode.IsSpace(rune(s[i])) {
			i++
			continue
		}
		matched := ""
		for _, sym := range a.vocab {
			if strings.HasPrefix(s[i:], sym) {
				matched = sym
				break
			}
		}
		if matched == "" {
			return nil, &UnknownSymbolError{Token: unknownRun(s[i:]), Index: len(tokens)}
		}
		tokens = append(tokens, matched)
		i += len(matched)
	}
	return tokens, nil
}

// unknownRun extracts the offending token for diagnostics: a maximal
// alphanumeric run, or the single offending rune.
func unknownRun(s string) string {
	end := 0
	for end < len(s) {
		r := rune(s[end])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		end++
	}
	if end == 0 {
		return s[:1]
	}
	return s[:end]
}
