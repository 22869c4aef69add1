package behavior

import "sort"

// Sequence ticks children left to right from the resume cursor.
// First Failure fails the sequence and resets the cursor; Running
// holds the cursor; all Success succeeds.
type Sequence struct {
	core
	children []Node
	cursor   int
}

// NewSequence creates a sequence composite.
func NewSequence(name string, children ...Node) *Sequence {
	return &Sequence{core: core{name: name}, children: children}
}

func (s *Sequence) Tick(ctx *Context) Status {
	return s.track(func() Status {
		for s.cursor < len(s.children) {
			switch s.children[s.cursor].Tick(ctx) {
			case StatusRunning:
				return StatusRunning
			case StatusFailure:
				s.rewind()
				return StatusFailure
			default:
				s.cursor++
			}
		}
		s.rewind()
		return StatusSuccess
	})
}

func (s *Sequence) rewind() {
	s.cursor = 0
	for _, c := range s.children {
		c.Reset()
	}
}

func (s *Sequence) Reset() {
	s.rewind()
	s.resetCore()
}

// Selector is the dual of Sequence: first Success succeeds, Running
// holds the cursor, all Failure fails.
type Selector struct {
	core
	children []Node
	cursor   int
}

// NewSelector creates a selector composite.
func NewSelector(name string, children ...Node) *Selector {
	return &Selector{core: core{name: name}, children: children}
}

func (s *Selector) Tick(ctx *Context) Status {
	return s.track(func() Status {
		for s.cursor < len(s.children) {
			switch s.children[s.cursor].Tick(ctx) {
			case StatusRunning:
				return StatusRunning
			case StatusSuccess:
				s.rewind()
				return StatusSuccess
			default:
				s.cursor++
			}
		}
		s.rewind()
		return StatusFailure
	})
}

func (s *Selector) rewind() {
	s.cursor = 0
	for _, c := range s.children {
		c.Reset()
	}
}

func (s *Selector) Reset() {
	s.rewind()
	s.resetCore()
}

// Parallel ticks every child each frame and applies threshold
// policies: Success when successes reach SuccessThreshold, Failure
// when failures reach FailureThreshold, otherwise Running.
type Parallel struct {
	core
	children         []Node
	successThreshold int
	failureThreshold int
}

// NewParallel creates a parallel composite. Thresholds <= 0 default
// to "all children".
func NewParallel(name string, successThreshold, failureThreshold int, children ...Node) *Parallel {
	if successThreshold <= 0 {
		successThreshold = len(children)
	}
	if failureThreshold <= 0 {
		failureThreshold = len(children)
	}
	return &Parallel{
		core:             core{name: name},
		children:         children,
		successThreshold: successThreshold,
		failureThreshold: failureThreshold,
	}
}

func (p *Parallel) Tick(ctx *Context) Status {
	return p.track(func() Status {
		successes, failures := 0, 0
		for _, c := range p.children {
			switch c.Tick(ctx) {
			case StatusSuccess:
				successes++
			case StatusFailure:
				failures++
			}
		}
		if successes >= p.successThreshold {
			p.resetChildren()
			return StatusSuccess
		}
		if failures >= p.failureThreshold {
			p.resetChildren()
			return StatusFailure
		}
		return StatusRunning
	})
}

func (p *Parallel) resetChildren() {
	for _, c := range p.children {
		c.Reset()
	}
}

func (p *Parallel) Reset() {
	p.resetChildren()
	p.resetCore()
}

// RandomSelector picks one child uniformly each time the composite
// becomes active and runs it to completion.
type RandomSelector struct {
	core
	children []Node
	picked   int // -1 = none active
}

// NewRandomSelector creates a random selector composite.
func NewRandomSelector(name string, children ...Node) *RandomSelector {
	return &RandomSelector{core: core{name: name}, children: children, picked: -1}
}

func (r *RandomSelector) Tick(ctx *Context) Status {
	return r.track(func() Status {
		if len(r.children) == 0 {
			return StatusFailure
		}
		if r.picked < 0 {
			r.picked = ctx.Rand.IntN(len(r.children))
		}
		s := r.children[r.picked].Tick(ctx)
		if s != StatusRunning {
			r.children[r.picked].Reset()
			r.picked = -1
		}
		return s
	})
}

func (r *RandomSelector) Reset() {
	for _, c := range r.children {
		c.Reset()
	}
	r.picked = -1
	r.resetCore()
}

// WeightedRandom picks a child with probability proportional to its
// weight each activation and runs it to completion.
type WeightedRandom struct {
	core
	children []Node
	weights  []float64
	total    float64
	picked   int
}

// NewWeightedRandom creates a weighted random composite. Weights must
// be positive and match children in length; zero or negative weights
// are treated as 1.
func NewWeightedRandom(name string, weights []float64, children ...Node) *WeightedRandom {
	w := make([]float64, len(children))
	total := 0.0
	for i := range children {
		wi := 1.0
		if i < len(weights) && weights[i] > 0 {
			wi = weights[i]
		}
		w[i] = wi
		total += wi
	}
	return &WeightedRandom{
		core:     core{name: name},
		children: children,
		weights:  w,
		total:    total,
		picked:   -1,
	}
}

func (w *WeightedRandom) Tick(ctx *Context) Status {
	return w.track(func() Status {
		if len(w.children) == 0 {
			return StatusFailure
		}
		if w.picked < 0 {
			roll := ctx.Rand.Float64() * w.total
			acc := 0.0
			w.picked = len(w.children) - 1
			for i, wi := range w.weights {
				acc += wi
				if roll < acc {
					w.picked = i
					break
				}
			}
		}
		s := w.children[w.picked].Tick(ctx)
		if s != StatusRunning {
			w.children[w.picked].Reset()
			w.picked = -1
		}
		return s
	})
}

func (w *WeightedRandom) Reset() {
	for _, c := range w.children {
		c.Reset()
	}
	w.picked = -1
	w.resetCore()
}

// Priority evaluates children in descending priority order. With
// preemption disabled (the default) a Running child keeps control
// until it completes; with preemption enabled a higher-priority child
// that stops failing takes over and the preempted child is reset.
type Priority struct {
	core
	children   []Node
	priorities []int
	order      []int // child indices sorted by priority, highest first
	running    int   // index into children, -1 = none
	preemption bool
}

// NewPriority creates a priority composite. priorities[i] belongs to
// children[i]; higher values run first.
func NewPriority(name string, priorities []int, preemption bool, children ...Node) *Priority {
	p := &Priority{
		core:       core{name: name},
		children:   children,
		priorities: make([]int, len(children)),
		running:    -1,
		preemption: preemption,
	}
	copy(p.priorities, priorities)
	p.order = make([]int, len(children))
	for i := range p.order {
		p.order[i] = i
	}
	sort.SliceStable(p.order, func(a, b int) bool {
		return p.priorities[p.order[a]] > p.priorities[p.order[b]]
	})
	return p
}

func (p *Priority) Tick(ctx *Context) Status {
	return p.track(func() Status {
		if p.running >= 0 && !p.preemption {
			// Committed to the running child until it completes.
			s := p.children[p.running].Tick(ctx)
			if s != StatusRunning {
				p.children[p.running].Reset()
				p.running = -1
			}
			return s
		}

		for _, idx := range p.order {
			s := p.children[idx].Tick(ctx)
			switch s {
			case StatusRunning:
				if p.running >= 0 && p.running != idx {
					p.children[p.running].Reset()
				}
				p.running = idx
				return StatusRunning
			case StatusSuccess:
				if p.running >= 0 && p.running != idx {
					p.children[p.running].Reset()
				}
				p.running = -1
				return StatusSuccess
			}
		}
		p.running = -1
		return StatusFailure
	})
}

func (p *Priority) Reset() {
	for _, c := range p.children {
		c.Reset()
	}
	p.running = -1
	p.resetCore()
}

// All is a non-short-circuiting Sequence: every child is ticked each
// frame, and the composite succeeds only when all have succeeded.
// Any Running child keeps it Running; otherwise a single Failure
// fails it.
type All struct {
	core
	children []Node
}

// NewAll creates an all composite.
func NewAll(name string, children ...Node) *All {
	return &All{core: core{name: name}, children: children}
}

func (a *All) Tick(ctx *Context) Status {
	return a.track(func() Status {
		running, failed := false, false
		for _, c := range a.children {
			switch c.Tick(ctx) {
			case StatusRunning:
				running = true
			case StatusFailure:
				failed = true
			}
		}
		if running {
			return StatusRunning
		}
		a.resetChildren()
		if failed {
			return StatusFailure
		}
		return StatusSuccess
	})
}

func (a *All) resetChildren() {
	for _, c := range a.children {
		c.Reset()
	}
}

func (a *All) Reset() {
	a.resetChildren()
	a.resetCore()
}

// Any is a non-short-circuiting Selector: every child is ticked each
// frame, and the composite succeeds if at least one succeeded.
type Any struct {
	core
	children []Node
}

// NewAny creates an any composite.
func NewAny(name string, children ...Node) *Any {
	return &Any{core: core{name: name}, children: children}
}

func (a *Any) Tick(ctx *Context) Status {
	return a.track(func() Status {
		running, succeeded := false, false
		for _, c := range a.children {
			switch c.Tick(ctx) {
			case StatusRunning:
				running = true
			case StatusSuccess:
				succeeded = true
			}
		}
		if running {
			return StatusRunning
		}
		a.resetChildren()
		if succeeded {
			return StatusSuccess
		}
		return StatusFailure
	})
}

func (a *Any) resetChildren() {
	for _, c := range a.children {
		c.Reset()
	}
}

func (a *Any) Reset() {
	a.resetChildren()
	a.resetCore()
}
