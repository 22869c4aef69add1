package behavior

import "log/slog"

// ActionFunc is user behavior code invoked by an Action node.
type ActionFunc func(ctx *Context) Status

// ConditionFunc is a predicate invoked by a Condition node.
type ConditionFunc func(ctx *Context) bool

// Action is a leaf that runs user code. Panics in the callback are
// caught, logged and mapped to Failure so no exception crosses the
// tree boundary. A disabled action fails without invoking the
// callback.
type Action struct {
	core
	fn       ActionFunc
	disabled bool
}

// NewAction creates an action leaf.
func NewAction(name string, fn ActionFunc) *Action {
	return &Action{core: core{name: name}, fn: fn}
}

// SetEnabled toggles the action. Disabled actions return Failure.
func (a *Action) SetEnabled(enabled bool) { a.disabled = !enabled }

func (a *Action) Tick(ctx *Context) Status {
	return a.track(func() Status {
		if a.disabled || a.fn == nil {
			return StatusFailure
		}
		return safeAction(a.name, a.fn, ctx)
	})
}

func (a *Action) Reset() { a.resetCore() }

func safeAction(name string, fn ActionFunc, ctx *Context) (s Status) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("behavior action panicked", "node", name, "panic", r)
			s = StatusFailure
		}
	}()
	return fn(ctx)
}

// Condition is a leaf mapping a predicate to Success/Failure.
type Condition struct {
	core
	fn ConditionFunc
}

// NewCondition creates a condition leaf.
func NewCondition(name string, fn ConditionFunc) *Condition {
	return &Condition{core: core{name: name}, fn: fn}
}

func (c *Condition) Tick(ctx *Context) Status {
	return c.track(func() Status {
		if c.fn == nil {
			return StatusFailure
		}
		if safeCondition(c.name, c.fn, ctx) {
			return StatusSuccess
		}
		return StatusFailure
	})
}

func (c *Condition) Reset() { c.resetCore() }

func safeCondition(name string, fn ConditionFunc, ctx *Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("behavior condition panicked", "node", name, "panic", r)
			ok = false
		}
	}()
	return fn(ctx)
}
