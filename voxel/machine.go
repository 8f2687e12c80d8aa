package voxel

import (
	"fmt"
)

// Machine is the turtle that interprets an atom sequence into block
// placements. It keeps a cursor (position + orientation frame) and an
// explicit stack of saved frames for bracketed branches; no recursion, so
// nesting depth is bounded only by memory.
type Machine struct {
	Config      *MachineConfig
	OpsExecuted uint

	position Vec
	frame    Orientation
	stack    []savedFrame
}

type MachineConfig struct {
	MaxOpsExecuted uint `toml:"max_ops_executed"`
}

type savedFrame struct {
	position Vec
	frame    Orientation
}

func NewMachine(mc *MachineConfig) *Machine {
	if mc == nil {
		mc = &MachineConfig{}
	}
	return &Machine{Config: mc}
}

func (m *Machine) Reset() {
	m.position = Vec{}
	m.frame = DefaultOrientation()
	m.stack = m.stack[:0]
	m.OpsExecuted = 0
}

// Position returns the current cursor cell.
func (m *Machine) Position() Vec {
	return m.position
}

// Frame returns the current orientation frame.
func (m *Machine) Frame() Orientation {
	return m.frame
}

// Depth returns the number of saved frames.
func (m *Machine) Depth() int {
	return len(m.stack)
}

// Fill interprets atoms left to right, placing blocks into st. The structure
// is mutated in place and returned for chaining. Errors: IntersectionError
// on overlapping placement, UnbalancedScopeError on a pop with no saved
// frame, ErrMaxOpsExecuted if the configured op budget runs out.
func (m *Machine) Fill(st *Structure, atoms []Atom) (*Structure, error) {
	m.Reset()
	for i, a := range atoms {
		m.OpsExecuted++
		if m.Config.MaxOpsExecuted > 0 && m.OpsExecuted > m.Config.MaxOpsExecuted {
			return st, fmt.Errorf("atom index [%d]: %w", i, ErrMaxOpsExecuted)
		}
		if err := m.step(st, i, a); err != nil {
			return st, err
		}
	}
	st.Sanify()
	return st, nil
}

func (m *Machine) step(st *Structure, idx int, a Atom) error {
	switch a.Kind {
	case Move:
		m.position = m.position.Add(m.frame.Apply(a.Direction))
	case Rotate:
		m.frame = m.frame.Rotate90(a.Plane, a.Sense)
	case Place:
		block := m.makeBlock(a)
		if err := st.AddBlock(block); err != nil {
			return fmt.Errorf("atom index [%d]: %w", idx, err)
		}
	case Push:
		m.stack = append(m.stack, savedFrame{position: m.position, frame: m.frame})
	case Pop:
		if len(m.stack) == 0 {
			return &UnbalancedScopeError{Index: idx}
		}
		top := m.stack[len(m.stack)-1]
		m.stack = m.stack[:len(m.stack)-1]
		m.position = top.position
		m.frame = top.frame
	default:
		return fmt.Errorf("atom index [%d]: unhandled action kind [%v]", idx, a.Kind)
	}
	return nil
}

// makeBlock expands a place atom's tile box into world cells through the
// current frame.
func (m *Machine) makeBlock(a Atom) *Block {
	origin := m.position.Add(m.frame.Apply(a.Offset))
	cells := make([]Vec, 0, a.Dims.X*a.Dims.Y*a.Dims.Z)
	for x := 0; x < a.Dims.X; x++ {
		for y := 0; y < a.Dims.Y; y++ {
			for z := 0; z < a.Dims.Z; z++ {
				local := a.Offset.Add(V(x, y, z))
				cells = append(cells, m.position.Add(m.frame.Apply(local)))
			}
		}
	}
	return &Block{
		Type:        a.BlockType,
		Functional:  a.Functional,
		Origin:      origin,
		Orientation: m.frame,
		Cells:       cells,
	}
}
