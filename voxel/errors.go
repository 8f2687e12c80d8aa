package voxel

import (
	"fmt"
)

// IntersectionError reports a Place into an already occupied cell. The
// grammar's no-intersection constraint normally prevents this upstream, so
// seeing one means a constraint gap, not a machine bug.
type IntersectionError struct {
	Cell      Vec
	BlockType string
	Existing  string
}

func (e *IntersectionError) Error() string {
	return fmt.Sprintf("block [%s] intersects existing [%s] at cell %s", e.BlockType, e.Existing, e.Cell)
}

// UnbalancedScopeError reports a Pop with no saved frame. Always a
// grammar or rule bug; never retried.
type UnbalancedScopeError struct {
	Index int
}

func (e *UnbalancedScopeError) Error() string {
	return fmt.Sprintf("pop at atom index [%d] with empty scope stack", e.Index)
}

var ErrMaxOpsExecuted error = fmt.Errorf("machine op execution limit reached")
