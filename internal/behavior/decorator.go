package behavior

import (
	"time"

	"github.com/voxelforge/mobai/internal/blackboard"
)

// Inverter swaps Success and Failure; Running passes through.
type Inverter struct {
	core
	child Node
}

// NewInverter creates an inverter decorator.
func NewInverter(name string, child Node) *Inverter {
	return &Inverter{core: core{name: name}, child: child}
}

func (n *Inverter) Tick(ctx *Context) Status {
	return n.track(func() Status {
		switch n.child.Tick(ctx) {
		case StatusSuccess:
			return StatusFailure
		case StatusFailure:
			return StatusSuccess
		default:
			return StatusRunning
		}
	})
}

func (n *Inverter) Reset() {
	n.child.Reset()
	n.resetCore()
}

// Succeeder forces Success when the child completes.
type Succeeder struct {
	core
	child Node
}

// NewSucceeder creates a succeeder decorator.
func NewSucceeder(name string, child Node) *Succeeder {
	return &Succeeder{core: core{name: name}, child: child}
}

func (n *Succeeder) Tick(ctx *Context) Status {
	return n.track(func() Status {
		if n.child.Tick(ctx) == StatusRunning {
			return StatusRunning
		}
		return StatusSuccess
	})
}

func (n *Succeeder) Reset() {
	n.child.Reset()
	n.resetCore()
}

// Failer forces Failure when the child completes.
type Failer struct {
	core
	child Node
}

// NewFailer creates a failer decorator.
func NewFailer(name string, child Node) *Failer {
	return &Failer{core: core{name: name}, child: child}
}

func (n *Failer) Tick(ctx *Context) Status {
	return n.track(func() Status {
		if n.child.Tick(ctx) == StatusRunning {
			return StatusRunning
		}
		return StatusFailure
	})
}

func (n *Failer) Reset() {
	n.child.Reset()
	n.resetCore()
}

// Repeat ticks its child until maxRepeats successes (-1 = infinite)
// or a Failure, which propagates.
type Repeat struct {
	core
	child      Node
	maxRepeats int
	done       int
}

// NewRepeat creates a repeat decorator. maxRepeats = -1 repeats forever.
func NewRepeat(name string, maxRepeats int, child Node) *Repeat {
	return &Repeat{core: core{name: name}, child: child, maxRepeats: maxRepeats}
}

func (n *Repeat) Tick(ctx *Context) Status {
	return n.track(func() Status {
		switch n.child.Tick(ctx) {
		case StatusRunning:
			return StatusRunning
		case StatusFailure:
			n.done = 0
			return StatusFailure
		default:
			n.done++
			n.child.Reset()
			if n.maxRepeats >= 0 && n.done >= n.maxRepeats {
				n.done = 0
				return StatusSuccess
			}
			return StatusRunning
		}
	})
}

func (n *Repeat) Reset() {
	n.child.Reset()
	n.done = 0
	n.resetCore()
}

// RepeatUntilFail reruns the child until it fails, then succeeds.
type RepeatUntilFail struct {
	core
	child Node
}

// NewRepeatUntilFail creates the decorator.
func NewRepeatUntilFail(name string, child Node) *RepeatUntilFail {
	return &RepeatUntilFail{core: core{name: name}, child: child}
}

func (n *RepeatUntilFail) Tick(ctx *Context) Status {
	return n.track(func() Status {
		switch n.child.Tick(ctx) {
		case StatusRunning:
			return StatusRunning
		case StatusFailure:
			return StatusSuccess
		default:
			n.child.Reset()
			return StatusRunning
		}
	})
}

func (n *RepeatUntilFail) Reset() {
	n.child.Reset()
	n.resetCore()
}

// RepeatUntilSuccess reruns the child until it succeeds.
type RepeatUntilSuccess struct {
	core
	child Node
}

// NewRepeatUntilSuccess creates the decorator.
func NewRepeatUntilSuccess(name string, child Node) *RepeatUntilSuccess {
	return &RepeatUntilSuccess{core: core{name: name}, child: child}
}

func (n *RepeatUntilSuccess) Tick(ctx *Context) Status {
	return n.track(func() Status {
		switch n.child.Tick(ctx) {
		case StatusRunning:
			return StatusRunning
		case StatusSuccess:
			return StatusSuccess
		default:
			n.child.Reset()
			return StatusRunning
		}
	})
}

func (n *RepeatUntilSuccess) Reset() {
	n.child.Reset()
	n.resetCore()
}

// Timer grants the child at most budget cumulative seconds of
// Running; exceeding the budget fails the subtree.
type Timer struct {
	core
	child   Node
	budget  float64
	elapsed float64
}

// NewTimer creates a timer decorator with a budget in seconds.
func NewTimer(name string, budget float64, child Node) *Timer {
	return &Timer{core: core{name: name}, child: child, budget: budget}
}

func (n *Timer) Tick(ctx *Context) Status {
	return n.track(func() Status {
		s := n.child.Tick(ctx)
		if s != StatusRunning {
			n.elapsed = 0
			return s
		}
		n.elapsed += ctx.DT
		if n.elapsed >= n.budget {
			n.child.Reset()
			n.elapsed = 0
			return StatusFailure
		}
		return StatusRunning
	})
}

func (n *Timer) Reset() {
	n.child.Reset()
	n.elapsed = 0
	n.resetCore()
}

// Timeout is the wall-clock variant of Timer: the child must complete
// within the deadline measured from activation, regardless of how
// much simulated time each tick carried.
type Timeout struct {
	core
	child    Node
	limit    time.Duration
	deadline time.Time
	active   bool
}

// NewTimeout creates a wall-clock timeout decorator.
func NewTimeout(name string, limit time.Duration, child Node) *Timeout {
	return &Timeout{core: core{name: name}, child: child, limit: limit}
}

func (n *Timeout) Tick(ctx *Context) Status {
	return n.track(func() Status {
		if !n.active {
			n.active = true
			n.deadline = ctx.Now.Add(n.limit)
		}
		if ctx.Now.After(n.deadline) {
			n.child.Reset()
			n.active = false
			return StatusFailure
		}
		s := n.child.Tick(ctx)
		if s != StatusRunning {
			n.active = false
		}
		return s
	})
}

func (n *Timeout) Reset() {
	n.child.Reset()
	n.active = false
	n.resetCore()
}

// Cooldown suppresses reactivation for a period after the child
// completes; while suppressed it returns Failure without ticking.
type Cooldown struct {
	core
	child   Node
	period  float64
	cooling float64
	active  bool
}

// NewCooldown creates a cooldown decorator with a period in seconds.
func NewCooldown(name string, period float64, child Node) *Cooldown {
	return &Cooldown{core: core{name: name}, child: child, period: period}
}

func (n *Cooldown) Tick(ctx *Context) Status {
	return n.track(func() Status {
		if !n.active && n.cooling > 0 {
			n.cooling -= ctx.DT
			if n.cooling > 0 {
				return StatusFailure
			}
		}
		s := n.child.Tick(ctx)
		n.active = s == StatusRunning
		if !n.active {
			n.cooling = n.period
		}
		return s
	})
}

func (n *Cooldown) Reset() {
	n.child.Reset()
	n.active = false
	n.resetCore()
}

// Delay returns Running for the first delay seconds of every
// activation, then delegates to the child.
type Delay struct {
	core
	child   Node
	delay   float64
	waited  float64
	started bool
}

// NewDelay creates a delay decorator with a duration in seconds.
func NewDelay(name string, delay float64, child Node) *Delay {
	return &Delay{core: core{name: name}, child: child, delay: delay}
}

func (n *Delay) Tick(ctx *Context) Status {
	return n.track(func() Status {
		if !n.started {
			n.waited += ctx.DT
			if n.waited < n.delay {
				return StatusRunning
			}
			n.started = true
		}
		s := n.child.Tick(ctx)
		if s != StatusRunning {
			n.started = false
			n.waited = 0
		}
		return s
	})
}

func (n *Delay) Reset() {
	n.child.Reset()
	n.started = false
	n.waited = 0
	n.resetCore()
}

// Conditional gates the child behind a predicate evaluated every tick.
type Conditional struct {
	core
	child Node
	fn    ConditionFunc
}

// NewConditional creates a conditional decorator.
func NewConditional(name string, fn ConditionFunc, child Node) *Conditional {
	return &Conditional{core: core{name: name}, child: child, fn: fn}
}

func (n *Conditional) Tick(ctx *Context) Status {
	return n.track(func() Status {
		if n.fn == nil || !safeCondition(n.name, n.fn, ctx) {
			if n.child.Status() == StatusRunning {
				n.child.Reset()
			}
			return StatusFailure
		}
		return n.child.Tick(ctx)
	})
}

func (n *Conditional) Reset() {
	n.child.Reset()
	n.resetCore()
}

// Probability samples once per activation; with probability 1-p the
// subtree fails without ticking the child.
type Probability struct {
	core
	child  Node
	p      float64
	rolled bool
	passed bool
}

// NewProbability creates a probability gate with p in [0, 1].
func NewProbability(name string, p float64, child Node) *Probability {
	return &Probability{core: core{name: name}, child: child, p: p}
}

func (n *Probability) Tick(ctx *Context) Status {
	return n.track(func() Status {
		if !n.rolled {
			n.rolled = true
			n.passed = ctx.Rand.Float64() < n.p
		}
		if !n.passed {
			n.rolled = false
			return StatusFailure
		}
		s := n.child.Tick(ctx)
		if s != StatusRunning {
			n.rolled = false
		}
		return s
	})
}

func (n *Probability) Reset() {
	n.child.Reset()
	n.rolled = false
	n.resetCore()
}

// Counter limits the child to maxActivations lifetime activations;
// afterwards the subtree always fails.
type Counter struct {
	core
	child          Node
	maxActivations int
	used           int
	active         bool
}

// NewCounter creates a counter decorator.
func NewCounter(name string, maxActivations int, child Node) *Counter {
	return &Counter{core: core{name: name}, child: child, maxActivations: maxActivations}
}

func (n *Counter) Tick(ctx *Context) Status {
	return n.track(func() Status {
		if !n.active {
			if n.used >= n.maxActivations {
				return StatusFailure
			}
			n.used++
		}
		s := n.child.Tick(ctx)
		n.active = s == StatusRunning
		return s
	})
}

func (n *Counter) Reset() {
	n.child.Reset()
	n.active = false
	n.resetCore()
}

// BlackboardCheck gates the child behind a predicate over a
// blackboard value. A missing key fails.
type BlackboardCheck struct {
	core
	child Node
	key   string
	pred  func(v blackboard.Value) bool
}

// NewBlackboardCheck creates a blackboard gate. pred receives the
// raw stored value.
func NewBlackboardCheck(name, key string, pred func(v blackboard.Value) bool, child Node) *BlackboardCheck {
	return &BlackboardCheck{core: core{name: name}, child: child, key: key, pred: pred}
}

func (n *BlackboardCheck) Tick(ctx *Context) Status {
	return n.track(func() Status {
		v, ok := ctx.BB.Get(n.key)
		if !ok || n.pred == nil || !n.pred(v) {
			if n.child.Status() == StatusRunning {
				n.child.Reset()
			}
			return StatusFailure
		}
		return n.child.Tick(ctx)
	})
}

func (n *BlackboardCheck) Reset() {
	n.child.Reset()
	n.resetCore()
}
