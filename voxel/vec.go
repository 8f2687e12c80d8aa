package voxel

import (
	"fmt"
)

// Vec is an integer 3-vector. Grid cells, movement directions and tile
// dimensions are all Vecs.
type Vec struct {
	X int
	Y int
	Z int
}

func V(x, y, z int) Vec {
	return Vec{X: x, Y: y, Z: z}
}

func (v Vec) Add(o Vec) Vec {
	return Vec{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vec) Sub(o Vec) Vec {
	return Vec{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vec) Scale(k int) Vec {
	return Vec{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

func (v Vec) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}

// RotationPlane names the axis pair a 90 degree rotation acts on.
type RotationPlane int

const (
	PlaneXY RotationPlane = iota
	PlaneXZ
	PlaneYZ
)

func (p RotationPlane) String() string {
	switch p {
	case PlaneXY:
		return "xy"
	case PlaneXZ:
		return "xz"
	case PlaneYZ:
		return "yz"
	}
	return "??"
}

// RotationSense is the direction of a 90 degree rotation.
type RotationSense int

const (
	Clockwise RotationSense = iota
	CounterClockwise
)

func (s RotationSense) String() string {
	if s == Clockwise {
		return "cw"
	}
	return "ccw"
}

// Rotate90 applies a single 90 degree rotation in the given plane and sense.
// The two rotations of a plane are exact inverses.
func (v Vec) Rotate90(plane RotationPlane, sense RotationSense) Vec {
	switch plane {
	case PlaneXY:
		if sense == Clockwise {
			return Vec{X: v.Y, Y: -v.X, Z: v.Z}
		}
		return Vec{X: -v.Y, Y: v.X, Z: v.Z}
	case PlaneXZ:
		if sense == Clockwise {
			return Vec{X: v.Z, Y: v.Y, Z: -v.X}
		}
		return Vec{X: -v.Z, Y: v.Y, Z: v.X}
	case PlaneYZ:
		if sense == Clockwise {
			return Vec{X: v.X, Y: v.Z, Z: -v.Y}
		}
		return Vec{X: v.X, Y: -v.Z, Z: v.Y}
	}
	return v
}

// Orientation is a right-handed frame described by its forward and up unit
// vectors. Right is derived (forward x up) so the frame cannot skew.
type Orientation struct {
	Forward Vec
	Up      Vec
}

// DefaultOrientation faces +X with +Y up.
func DefaultOrientation() Orientation {
	return Orientation{Forward: V(1, 0, 0), Up: V(0, 1, 0)}
}

// Right is the cross product Forward x Up.
func (o Orientation) Right() Vec {
	f, u := o.Forward, o.Up
	return Vec{
		X: f.Y*u.Z - f.Z*u.Y,
		Y: f.Z*u.X - f.X*u.Z,
		Z: f.X*u.Y - f.Y*u.X,
	}
}

// Rotate90 rotates the whole frame in the given plane and sense.
func (o Orientation) Rotate90(plane RotationPlane, sense RotationSense) Orientation {
	return Orientation{
		Forward: o.Forward.Rotate90(plane, sense),
		Up:      o.Up.Rotate90(plane, sense),
	}
}

// Apply maps a frame-local vector into world space: local +X is forward,
// +Y is up, +Z is right.
func (o Orientation) Apply(local Vec) Vec {
	r := o.Right()
	return o.Forward.Scale(local.X).Add(o.Up.Scale(local.Y)).Add(r.Scale(local.Z))
}
