package shipwright

import (
	voxel "nickandperla.net/voxel"
)

// Node is the derived tree view of a parsed string. Strings stay the
// canonical representation; the tree exists only for algorithms that need
// hierarchical scope, like bracket-aligned crossover.
type Node struct {
	Atom     voxel.Atom
	Children []*Node
}

// Parser turns raw strings into atom sequences against a declared alphabet.
type Parser struct {
	Alphabet *Alphabet
}

func NewParser(alphabet *Alphabet) *Parser {
	return &Parser{Alphabet: alphabet}
}

// Parse tokenizes and resolves a string into a flat atom sequence,
// validating every token against the alphabet. Nonterminal tokens (symbols
// still awaiting expansion) are rejected: only fully expanded strings have a
// structural meaning. Errors: UnknownSymbolError with the offending token
// and index, UnbalancedScopeError on bracket mismatch.
func (p *Parser) Parse(s string) ([]voxel.Atom, error) {
	tokens, err := p.Alphabet.Tokenize(s)
	if err != nil {
		return nil, err
	}
	atoms := make([]voxel.Atom, 0, len(tokens))
	depth := 0
	for i, tok := range tokens {
		atom, ok := p.Alphabet.Atom(tok)
		if !ok {
			return nil, &UnknownSymbolError{Token: tok, Index: i}
		}
		switch atom.Kind {
		case voxel.Push:
			depth++
		case voxel.Pop:
			depth--
			if depth < 0 {
				return nil, &voxel.UnbalancedScopeError{Index: i}
			}
		}
		atoms = append(atoms, atom)
	}
	if depth != 0 {
		return nil, &voxel.UnbalancedScopeError{Index: len(tokens)}
	}
	return atoms, nil
}

// ParseTree parses a string into its bracket tree: each push atom owns the
// atoms of its branch as children, and the matching pop closes the scope.
// Built iteratively with an explicit stack; nesting depth costs no call
// stack.
func (p *Parser) ParseTree(s string) (*Node, error) {
	atoms, err := p.Parse(s)
	if err != nil {
		return nil, err
	}
	root := &Node{}
	stack := []*Node{root}
	for _, atom := range atoms {
		top := stack[len(stack)-1]
		node := &Node{Atom: atom}
		switch atom.Kind {
		case voxel.Push:
			top.Children = append(top.Children, node)
			stack = append(stack, node)
		case voxel.Pop:
			stack = stack[:len(stack)-1]
		default:
			top.Children = append(top.Children, node)
		}
	}
	return root, nil
}

// Flatten walks the tree back into the flat atom order, reinserting the
// closing pop of every push scope.
func Flatten(n *Node) []voxel.Atom {
	var out []voxel.Atom
	var walk func(*Node)
	walk = func(node *Node) {
		for _, c := range node.Children {
			out = append(out, c.Atom)
			if c.Atom.Kind == voxel.Push {
				walk(c)
				out = append(out, voxel.PopAtom(PopSymbol))
			}
		}
	}
	walk(n)
	return out
}
