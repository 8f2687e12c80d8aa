package voxel

import (
	"sort"
)

// Block is one placed tile. A multi-cell tile is a single Block whose Cells
// list every grid cell it spans; the structure's cell index points each of
// those cells back at the same Block.
type Block struct {
	Type        string
	Functional  bool
	Origin      Vec
	Orientation Orientation
	Cells       []Vec
}

// Volume is the number of grid cells the block spans.
func (b *Block) Volume() int {
	return len(b.Cells)
}

// Structure is a sparse voxel grid with world placement vectors. The grid is
// stored relative to Origin; Sanify re-anchors it after building.
type Structure struct {
	Origin  Vec
	Forward Vec
	Up      Vec

	cells  map[Vec]*Block
	blocks []*Block
}

func NewStructure() *Structure {
	return &Structure{
		Forward: V(1, 0, 0),
		Up:      V(0, 1, 0),
		cells:   make(map[Vec]*Block),
	}
}

// At returns the block occupying a cell, or nil.
func (s *Structure) At(cell Vec) *Block {
	return s.cells[cell]
}

// Occupied reports whether any of the given cells already hold a block.
func (s *Structure) Occupied(cells []Vec) *Block {
	for _, c := range cells {
		if b := s.cells[c]; b != nil {
			return b
		}
	}
	return nil
}

// AddBlock indexes a block into the grid. The caller must have checked for
// intersection; a collision here returns an IntersectionError.
func (s *Structure) AddBlock(b *Block) error {
	if hit := s.Occupied(b.Cells); hit != nil {
		var at Vec
		for _, c := range b.Cells {
			if s.cells[c] == hit {
				at = c
				break
			}
		}
		return &IntersectionError{Cell: at, BlockType: b.Type, Existing: hit.Type}
	}
	for _, c := range b.Cells {
		s.cells[c] = b
	}
	s.blocks = append(s.blocks, b)
	return nil
}

// Blocks returns the placed blocks in placement order.
func (s *Structure) Blocks() []*Block {
	return s.blocks
}

// BlockCount is the number of placed blocks (a multi-cell tile counts once).
func (s *Structure) BlockCount() int {
	return len(s.blocks)
}

// FunctionalCount is the number of placed blocks flagged functional.
func (s *Structure) FunctionalCount() int {
	n := 0
	for _, b := range s.blocks {
		if b.Functional {
			n++
		}
	}
	return n
}

// OccupiedVolume is the number of occupied grid cells.
func (s *Structure) OccupiedVolume() int {
	return len(s.cells)
}

// CountBlockType counts placed blocks of the given type.
func (s *Structure) CountBlockType(blockType string) int {
	n := 0
	for _, b := range s.blocks {
		if b.Type == blockType {
			n++
		}
	}
	return n
}

// OccupiedCells returns the occupied cells in deterministic (sorted) order.
func (s *Structure) OccupiedCells() []Vec {
	out := make([]Vec, 0, len(s.cells))
	for c := range s.cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return out
}

// BoundingBox returns the min and max occupied corners. ok is false for an
// empty structure.
func (s *Structure) BoundingBox() (min, max Vec, ok bool) {
	first := true
	for c := range s.cells {
		if first {
			min, max = c, c
			first = false
			continue
		}
		if c.X < min.X {
			min.X = c.X
		}
		if c.Y < min.Y {
			min.Y = c.Y
		}
		if c.Z < min.Z {
			min.Z = c.Z
		}
		if c.X > max.X {
			max.X = c.X
		}
		if c.Y > max.Y {
			max.Y = c.Y
		}
		if c.Z > max.Z {
			max.Z = c.Z
		}
	}
	return min, max, !first
}

// Dims returns the bounding box extent per axis, in cells.
func (s *Structure) Dims() Vec {
	min, max, ok := s.BoundingBox()
	if !ok {
		return Vec{}
	}
	return V(max.X-min.X+1, max.Y-min.Y+1, max.Z-min.Z+1)
}

// Sanify re-derives the bounding box and shifts the grid so the minimum
// occupied corner sits at (0,0,0), folding the shift into Origin.
func (s *Structure) Sanify() {
	min, _, ok := s.BoundingBox()
	if !ok || min == (Vec{}) {
		return
	}
	shifted := make(map[Vec]*Block, len(s.cells))
	seen := make(map[*Block]bool, len(s.blocks))
	for c, b := range s.cells {
		if !seen[b] {
			seen[b] = true
			b.Origin = b.Origin.Sub(min)
			for i := range b.Cells {
				b.Cells[i] = b.Cells[i].Sub(min)
			}
		}
		shifted[c.Sub(min)] = b
	}
	s.cells = shifted
	s.Origin = s.Origin.Add(min)
}
