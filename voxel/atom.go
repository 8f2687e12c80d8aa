package voxel

import (
	"fmt"
)

// ActionKind is the closed set of things an atom can do to the machine.
type ActionKind int

const (
	Move ActionKind = iota
	Rotate
	Place
	Push
	Pop
)

func (k ActionKind) String() string {
	switch k {
	case Move:
		return "move"
	case Rotate:
		return "rotate"
	case Place:
		return "place"
	case Push:
		return "push"
	case Pop:
		return "pop"
	}
	return "??"
}

// Atom is one grammar symbol instance bound to a structural action. Atoms
// are value types and are never mutated after construction; a string is an
// ordered []Atom owned by whichever candidate holds it.
type Atom struct {
	Symbol string
	Kind   ActionKind

	// Move
	Direction Vec

	// Rotate
	Plane RotationPlane
	Sense RotationSense

	// Place
	BlockType  string
	Functional bool
	Offset     Vec // tile offset from the cursor, in frame-local units
	Dims       Vec // tile extent, in frame-local units; (1,1,1) for a block
}

func (a Atom) String() string {
	switch a.Kind {
	case Move:
		return fmt.Sprintf("%s<move %s>", a.Symbol, a.Direction)
	case Rotate:
		return fmt.Sprintf("%s<rotate %s %s>", a.Symbol, a.Plane, a.Sense)
	case Place:
		return fmt.Sprintf("%s<place %s dims=%s>", a.Symbol, a.BlockType, a.Dims)
	case Push:
		return a.Symbol + "<push>"
	case Pop:
		return a.Symbol + "<pop>"
	}
	return a.Symbol
}

// MoveAtom, RotateAtom, PlaceAtom, PushAtom and PopAtom are the only
// sanctioned constructors; they keep zero-valued fields out of the parts of
// the variant that matter.

func MoveAtom(symbol string, dir Vec) Atom {
	return Atom{Symbol: symbol, Kind: Move, Direction: dir}
}

func RotateAtom(symbol string, plane RotationPlane, sense RotationSense) Atom {
	return Atom{Symbol: symbol, Kind: Rotate, Plane: plane, Sense: sense}
}

func PlaceAtom(symbol, blockType string, functional bool, offset, dims Vec) Atom {
	if dims.X < 1 {
		dims.X = 1
	}
	if dims.Y < 1 {
		dims.Y = 1
	}
	if dims.Z < 1 {
		dims.Z = 1
	}
	return Atom{
		Symbol:     symbol,
		Kind:       Place,
		BlockType:  blockType,
		Functional: functional,
		Offset:     offset,
		Dims:       dims,
	}
}

func PushAtom(symbol string) Atom {
	return Atom{Symbol: symbol, Kind: Push}
}

func PopAtom(symbol string) Atom {
	return Atom{Symbol: symbol, Kind: Pop}
}
