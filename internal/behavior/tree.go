package behavior

import (
	"math/rand/v2"
	"time"

	"github.com/voxelforge/mobai/internal/blackboard"
)

// Tree owns a root node and drives it once per agent tick. The
// Running status of the root is the only suspension mechanism:
// long-running work is expressed as stateful nodes resumed across
// ticks, never as a suspended call stack.
type Tree struct {
	root Node
	rng  *rand.Rand
	last Status
}

// NewTree creates a tree around a root node with a seeded RNG so
// probabilistic nodes are reproducible per agent.
func NewTree(root Node, seed uint64) *Tree {
	return &Tree{
		root: root,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		last: StatusInvalid,
	}
}

// Tick evaluates the tree for one frame.
func (t *Tree) Tick(dt float64, now time.Time, agent any, bb *blackboard.Blackboard) Status {
	if t.root == nil {
		return StatusFailure
	}
	ctx := &Context{DT: dt, Now: now, Agent: agent, BB: bb, Rand: t.rng}
	t.last = t.root.Tick(ctx)
	return t.last
}

// LastStatus returns the status of the most recent tick.
func (t *Tree) LastStatus() Status { return t.last }

// Reset clears all node state recursively.
func (t *Tree) Reset() {
	if t.root != nil {
		t.root.Reset()
	}
	t.last = StatusInvalid
}

// Root exposes the root node for inspection and metrics collection.
func (t *Tree) Root() Node { return t.root }
