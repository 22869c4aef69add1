// Package behavior implements the tick-driven behavior tree that
// drives mob decisions. A tree is owned by exactly one agent and is
// only mutated during that agent's tick.
package behavior

import (
	"math/rand/v2"
	"time"

	"github.com/voxelforge/mobai/internal/blackboard"
)

// Status is the result of ticking a node.
type Status uint8

const (
	StatusInvalid Status = iota
	StatusRunning
	StatusSuccess
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "invalid"
	}
}

// Context carries per-tick inputs down the tree. The agent is opaque
// to this package: action and condition callbacks cast it back.
type Context struct {
	DT    float64
	Now   time.Time
	Agent any
	BB    *blackboard.Blackboard
	Rand  *rand.Rand
}

// Metrics accumulates per-node execution counters.
type Metrics struct {
	Executions uint64
	Successes  uint64
	Failures   uint64
	TotalTime  time.Duration
	MaxTime    time.Duration
}

// Node is a behavior tree node. Tick drives it; Reset is called when
// the parent switches away so resume state never leaks across
// activations.
type Node interface {
	Name() string
	Tick(ctx *Context) Status
	Reset()
	Status() Status
	Metrics() Metrics
}

// core holds state common to every node kind.
type core struct {
	name    string
	status  Status
	metrics Metrics
}

func (c *core) Name() string     { return c.name }
func (c *core) Status() Status   { return c.status }
func (c *core) Metrics() Metrics { return c.metrics }

func (c *core) resetCore() { c.status = StatusInvalid }

// track runs fn, records timing and counters, and stores the status.
func (c *core) track(fn func() Status) Status {
	start := time.Now()
	s := fn()
	elapsed := time.Since(start)

	c.metrics.Executions++
	c.metrics.TotalTime += elapsed
	if elapsed > c.metrics.MaxTime {
		c.metrics.MaxTime = elapsed
	}
	switch s {
	case StatusSuccess:
		c.metrics.Successes++
	case StatusFailure:
		c.metrics.Failures++
	}
	c.status = s
	return s
}
