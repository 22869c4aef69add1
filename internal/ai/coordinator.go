package ai

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxelforge/mobai/internal/agent"
	"github.com/voxelforge/mobai/internal/debugview"
	"github.com/voxelforge/mobai/internal/mathx"
	"github.com/voxelforge/mobai/internal/nav"
	"github.com/voxelforge/mobai/internal/sense"
	"github.com/voxelforge/mobai/internal/world"
)

// Factory builds one agent of a registered type. The coordinator
// assigns the id and passes the shared collaborators.
type Factory func(id uint64, pos mathx.Vec3, orient mathx.Quat, deps agent.Deps) (*agent.Agent, error)

// LifecycleState is the coordinator's own state machine. Error is
// sticky until Reset.
type LifecycleState uint8

const (
	StateInactive LifecycleState = iota
	StateActive
	StatePaused
	StateError
)

func (s LifecycleState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Config sizes the coordinator and its subsystems.
type Config struct {
	BaseMaxAgents    int           // agent cap in Normal mode
	Workers          int           // task pool size; pathfinder gets half
	AgentDecayWindow time.Duration // how long dead agents linger
	BodyHeight       int32         // clearance cells for grid rebuilds
	Pathfinder       nav.Options
}

// DefaultConfig matches the demo simulation.
func DefaultConfig() Config {
	return Config{
		BaseMaxAgents:    256,
		Workers:          4,
		AgentDecayWindow: 10 * time.Second,
		BodyHeight:       2,
		Pathfinder:       nav.DefaultOptions(),
	}
}

// Metrics is a snapshot of coordinator counters.
type Metrics struct {
	Ticks         uint64
	LiveAgents    int
	SpawnedTotal  uint64
	Despawned     uint64
	AgentErrors   uint64
	TasksExecuted uint64
	TaskPanics    uint64
	State         LifecycleState
	Mode          Mode
}

// Coordinator owns the agent registry and drives every subsystem
// from a single-threaded Tick. Only the tick mutates agent state;
// the pathfinder and sensory engine parallelize internally against
// read-shared structures.
type Coordinator struct {
	cfg      Config
	world    world.World
	entities world.EntityManager
	physics  world.Physics

	pathfinder *nav.Pathfinder
	senses     *sense.Engine

	stateMu sync.Mutex
	state   LifecycleState
	mode    Mode
	pol     policy

	factoriesMu sync.RWMutex
	factories   map[string]Factory

	agents      sync.Map // uint64 -> *agent.Agent
	agentCount  atomic.Int32
	nextAgentID atomic.Uint64

	tasksMu    sync.Mutex
	scheduled  map[uint64]*scheduledTask
	nextTaskID atomic.Uint64
	pool       *taskPool

	dirtyMu  sync.Mutex
	dirty    []world.Region
	dirtySub int

	debug    *debugview.Buffer
	debugSrv *debugview.Server

	ticks        atomic.Uint64
	spawnedTotal atomic.Uint64
	despawned    atomic.Uint64
	agentErrors  atomic.Uint64
}

// New wires the coordinator around an existing navigation grid. The
// pathfinder gets at most half the coordinator's worker budget.
func New(cfg Config, w world.World, em world.EntityManager, phys world.Physics, grid *nav.Grid) (*Coordinator, error) {
	if grid == nil {
		return nil, fmt.Errorf("coordinator: nil navigation grid")
	}
	if cfg.BaseMaxAgents <= 0 {
		cfg.BaseMaxAgents = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.AgentDecayWindow <= 0 {
		cfg.AgentDecayWindow = 10 * time.Second
	}
	if cfg.BodyHeight <= 0 {
		cfg.BodyHeight = 2
	}
	pfOpts := cfg.Pathfinder
	if pfOpts.Workers <= 0 || pfOpts.Workers > cfg.Workers/2 {
		pfOpts.Workers = cfg.Workers / 2
		if pfOpts.Workers < 1 {
			pfOpts.Workers = 1
		}
	}

	c := &Coordinator{
		cfg:        cfg,
		world:      w,
		entities:   em,
		physics:    phys,
		pathfinder: nav.NewPathfinder(grid, pfOpts),
		senses:     sense.NewEngine(w, em),
		state:      StateInactive,
		mode:       ModeNormal,
		pol:        policyFor(ModeNormal, cfg.BaseMaxAgents),
		factories:  make(map[string]Factory),
		scheduled:  make(map[uint64]*scheduledTask),
		pool:       newTaskPool(cfg.Workers),
	}
	c.pool.SetInline(!c.pol.useWorkers)

	if w != nil {
		c.dirtySub = w.SubscribeRegionDirty(func(r world.Region) {
			c.dirtyMu.Lock()
			c.dirty = append(c.dirty, r)
			c.dirtyMu.Unlock()
		})
	}
	return c, nil
}

// Pathfinder exposes the owned pathfinder for direct queries.
func (c *Coordinator) Pathfinder() *nav.Pathfinder { return c.pathfinder }

// Senses exposes the owned sensory engine, e.g. to register sounds.
func (c *Coordinator) Senses() *sense.Engine { return c.senses }

// SetDebugSink attaches a capture buffer and an optional broadcast
// server. Capture only happens in modes that enable it.
func (c *Coordinator) SetDebugSink(buf *debugview.Buffer, srv *debugview.Server) {
	c.stateMu.Lock()
	c.debug = buf
	c.debugSrv = srv
	if buf != nil {
		buf.SetEnabled(c.pol.debugCapture)
	}
	c.stateMu.Unlock()
}

// State returns the lifecycle state.
func (c *Coordinator) State() LifecycleState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Start activates the coordinator. No-op unless Inactive.
func (c *Coordinator) Start() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	switch c.state {
	case StateError:
		return fmt.Errorf("coordinator in error state, reset first")
	case StateInactive:
		c.state = StateActive
		slog.Info("coordinator started", "mode", c.mode.String(), "maxAgents", c.pol.maxActiveAgents)
	}
	return nil
}

// Pause suspends ticking without releasing resources.
func (c *Coordinator) Pause() {
	c.stateMu.Lock()
	if c.state == StateActive {
		c.state = StatePaused
		slog.Info("coordinator paused")
	}
	c.stateMu.Unlock()
}

// Resume returns a paused coordinator to Active.
func (c *Coordinator) Resume() {
	c.stateMu.Lock()
	if c.state == StatePaused {
		c.state = StateActive
		slog.Info("coordinator resumed")
	}
	c.stateMu.Unlock()
}

// Reset clears a sticky error back to Inactive.
func (c *Coordinator) Reset() {
	c.stateMu.Lock()
	if c.state == StateError {
		c.state = StateInactive
		slog.Warn("coordinator error state cleared")
	}
	c.stateMu.Unlock()
}

// fail marks the coordinator as unrecoverable.
func (c *Coordinator) fail(err error) {
	c.stateMu.Lock()
	c.state = StateError
	c.stateMu.Unlock()
	slog.Error("coordinator entered error state", "error", err)
}

// SetMode switches the policy knob.
func (c *Coordinator) SetMode(m Mode) {
	c.stateMu.Lock()
	c.mode = m
	c.pol = policyFor(m, c.cfg.BaseMaxAgents)
	if c.debug != nil {
		c.debug.SetEnabled(c.pol.debugCapture)
	}
	c.pool.SetInline(!c.pol.useWorkers)
	c.stateMu.Unlock()
	slog.Info("coordinator mode changed", "mode", m.String(), "maxAgents", c.pol.maxActiveAgents)
}

// Mode returns the active mode.
func (c *Coordinator) Mode() Mode {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.mode
}

// RegisterAgentType binds a factory to a type name. Fails when the
// name is taken.
func (c *Coordinator) RegisterAgentType(typeName string, f Factory) error {
	if f == nil {
		return fmt.Errorf("register %q: nil factory", typeName)
	}
	c.factoriesMu.Lock()
	defer c.factoriesMu.Unlock()
	if _, exists := c.factories[typeName]; exists {
		return fmt.Errorf("register %q: type already bound", typeName)
	}
	c.factories[typeName] = f
	return nil
}

// SpawnAgent creates and registers an agent. Returns 0 on unknown
// type or factory failure. The agent is fully initialized before its
// id becomes visible to queries.
func (c *Coordinator) SpawnAgent(typeName string, pos mathx.Vec3, orient mathx.Quat) uint64 {
	c.factoriesMu.RLock()
	f, ok := c.factories[typeName]
	c.factoriesMu.RUnlock()
	if !ok {
		slog.Warn("spawn rejected, unknown agent type", "type", typeName)
		return 0
	}

	id := c.nextAgentID.Add(1)
	deps := agent.Deps{
		Pathfinder: c.pathfinder,
		Senses:     c.senses,
		Physics:    c.physics,
		Entities:   c.entities,
		OnAttack:   c.resolveAttack,
	}
	a, err := f(id, pos, orient, deps)
	if err != nil || a == nil {
		slog.Warn("spawn rejected, factory failed", "type", typeName, "error", err)
		return 0
	}

	c.agents.Store(id, a)
	c.agentCount.Add(1)
	c.spawnedTotal.Add(1)
	if c.entities != nil {
		c.entities.AddEntity(world.EntityInfo{ID: id, Pos: pos, EyeHeight: 1.6, Tag: typeName})
	}

	if IsDebugEnabled() {
		slog.Debug("agent spawned", "id", id, "type", typeName, "pos", pos)
	}
	return id
}

// DespawnAgent removes an agent. Idempotent.
func (c *Coordinator) DespawnAgent(id uint64) {
	value, ok := c.agents.LoadAndDelete(id)
	if !ok {
		return
	}
	c.agentCount.Add(-1)
	c.despawned.Add(1)

	a := value.(*agent.Agent)
	a.ClearPath()
	if c.entities != nil {
		c.entities.RemoveEntity(id)
	}
	if IsDebugEnabled() {
		slog.Debug("agent despawned", "id", id, "type", a.TypeName)
	}
}

// GetAgent returns a live agent by id.
func (c *Coordinator) GetAgent(id uint64) (*agent.Agent, bool) {
	value, ok := c.agents.Load(id)
	if !ok {
		return nil, false
	}
	return value.(*agent.Agent), true
}

// GetAgentsInRadius snapshots agents within radius of center.
func (c *Coordinator) GetAgentsInRadius(center mathx.Vec3, radius float64) []*agent.Agent {
	var out []*agent.Agent
	rSq := radius * radius
	c.agents.Range(func(_, value any) bool {
		a := value.(*agent.Agent)
		if a.Pos.DistSq(center) <= rSq {
			out = append(out, a)
		}
		return true
	})
	return out
}

// AgentCount returns the live agent count.
func (c *Coordinator) AgentCount() int {
	return int(c.agentCount.Load())
}

// ScheduleTask registers fn to run after delay; with recurring it
// refires every interval. Zero delay fires on the next tick.
func (c *Coordinator) ScheduleTask(fn func(), delay, interval time.Duration, recurring bool) uint64 {
	if fn == nil {
		return 0
	}
	id := c.nextTaskID.Add(1)
	t := &scheduledTask{
		id:        id,
		fn:        fn,
		interval:  interval,
		recurring: recurring,
	}
	if delay > 0 {
		t.fireAt = time.Now().Add(delay)
	}
	c.tasksMu.Lock()
	c.scheduled[id] = t
	c.tasksMu.Unlock()
	return id
}

// CancelTask removes a scheduled task. A recurring task disappears
// at its next due point at the latest.
func (c *Coordinator) CancelTask(id uint64) {
	c.tasksMu.Lock()
	if t, ok := c.scheduled[id]; ok {
		t.cancelled.Store(true)
		delete(c.scheduled, id)
	}
	c.tasksMu.Unlock()
}

// SubmitTask queues ad-hoc work on the pool (or inline in Minimal
// mode at the next tick).
func (c *Coordinator) SubmitTask(priority int, fn func()) {
	if fn == nil {
		return
	}
	c.pool.Submit(priority, fn)
}

// Tick runs one coordinator frame. dt is seconds. Safe to call only
// from a single goroutine.
func (c *Coordinator) Tick(dt float64) {
	c.stateMu.Lock()
	state := c.state
	pol := c.pol
	c.stateMu.Unlock()
	if state != StateActive {
		return
	}
	// Agent and task panics are isolated further down; one escaping a
	// subsystem here means the frame cannot be trusted anymore.
	defer func() {
		if r := recover(); r != nil {
			c.fail(fmt.Errorf("subsystem panic: %v", r))
		}
	}()

	now := time.Now()
	c.ticks.Add(1)

	c.runScheduled(now)
	if !pol.useWorkers {
		c.pool.Drain()
	}

	c.applyDirtyRegions()
	c.senses.Update(now)
	c.pathfinder.Update(dt)

	c.tickAgents(dt, now, pol.maxActiveAgents)
	c.sweep(now)

	if pol.debugCapture && c.debug != nil {
		c.captureDebug()
		frame := c.debug.Flush(now)
		if c.debugSrv != nil {
			c.debugSrv.Broadcast(frame)
		}
	}
}

// runScheduled fires due tasks. Panics are isolated per task.
func (c *Coordinator) runScheduled(now time.Time) {
	c.tasksMu.Lock()
	due := make([]*scheduledTask, 0, 4)
	for id, t := range c.scheduled {
		if t.fireAt.After(now) {
			continue
		}
		due = append(due, t)
		if t.recurring && t.interval > 0 {
			t.fireAt = now.Add(t.interval)
		} else {
			delete(c.scheduled, id)
		}
	}
	c.tasksMu.Unlock()

	for _, t := range due {
		if t.cancelled.Load() {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("scheduled task panicked", "task", t.id, "panic", r)
				}
			}()
			t.fn()
		}()
	}
}

// applyDirtyRegions forwards world changes to the grid.
func (c *Coordinator) applyDirtyRegions() {
	c.dirtyMu.Lock()
	regions := c.dirty
	c.dirty = nil
	c.dirtyMu.Unlock()

	grid := c.pathfinder.Grid()
	for _, r := range regions {
		grid.UpdateRegion(c.world, c.cfg.BodyHeight,
			mathx.V3(float64(r.Min.X), float64(r.Min.Y), float64(r.Min.Z)),
			mathx.V3(float64(r.Max.X), float64(r.Max.Y), float64(r.Max.Z)))
	}
	if len(regions) > 0 && IsDebugEnabled() {
		slog.Debug("navigation grid updated", "regions", len(regions), "version", grid.Version())
	}
}

// tickAgents updates every live agent up to the cap, isolating
// per-agent panics.
func (c *Coordinator) tickAgents(dt float64, now time.Time, maxActive int) {
	snapshot := make([]*agent.Agent, 0, c.agentCount.Load())
	c.agents.Range(func(_, value any) bool {
		snapshot = append(snapshot, value.(*agent.Agent))
		return true
	})
	// Deterministic iteration keeps replays and tests stable.
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })

	updated := 0
	for _, a := range snapshot {
		if !a.Alive() {
			continue
		}
		if maxActive > 0 && updated >= maxActive {
			break
		}
		updated++
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.agentErrors.Add(1)
					slog.Error("agent update panicked", "agent", a.ID, "type", a.TypeName, "panic", r)
				}
			}()
			a.Update(dt, now)
		}()
	}
}

// sweep removes dead agents past the decay window and agents that
// fail structural validation.
func (c *Coordinator) sweep(now time.Time) {
	c.agents.Range(func(key, value any) bool {
		a := value.(*agent.Agent)
		switch {
		case !a.Validate():
			c.agentErrors.Add(1)
			slog.Warn("agent failed validation, removing", "agent", a.ID, "type", a.TypeName)
			c.DespawnAgent(key.(uint64))
		case a.State() == agent.StateDead && now.Sub(a.DiedAt) > c.cfg.AgentDecayWindow:
			c.DespawnAgent(key.(uint64))
		}
		return true
	})
}

// captureDebug draws agent markers and remaining paths.
func (c *Coordinator) captureDebug() {
	c.agents.Range(func(_, value any) bool {
		a := value.(*agent.Agent)
		color := debugview.ColorGreen
		switch a.State() {
		case agent.StateAttacking, agent.StateChasing:
			color = debugview.ColorRed
		case agent.StateFleeing:
			color = debugview.ColorYellow
		case agent.StateDead:
			color = debugview.ColorWhite
		}
		c.debug.Sphere(a.Pos, 0.4, color, 0)
		c.debug.Text(a.Pos.Add(mathx.V3(0, 2, 0)), a.State().String(), debugview.ColorWhite, 0)

		path := a.Path()
		prev := a.Pos
		for _, wp := range path {
			c.debug.Line(prev, wp, debugview.ColorBlue, 0)
			prev = wp
		}
		return true
	})
}

// resolveAttack lands damage from one agent on another. Targets that
// are not coordinator agents are left to the external entity layer.
func (c *Coordinator) resolveAttack(attacker, target uint64, damage float64) {
	if victim, ok := c.GetAgent(target); ok {
		victim.Damage(damage, time.Now())
		if IsDebugEnabled() {
			slog.Debug("attack resolved",
				"attacker", attacker,
				"target", target,
				"damage", damage,
				"targetHealth", victim.Stats.Health)
		}
	}
}

// Metrics snapshots the counters.
func (c *Coordinator) Metrics() Metrics {
	c.stateMu.Lock()
	state, mode := c.state, c.mode
	c.stateMu.Unlock()
	return Metrics{
		Ticks:         c.ticks.Load(),
		LiveAgents:    int(c.agentCount.Load()),
		SpawnedTotal:  c.spawnedTotal.Load(),
		Despawned:     c.despawned.Load(),
		AgentErrors:   c.agentErrors.Load(),
		TasksExecuted: c.pool.executed.Load(),
		TaskPanics:    c.pool.panics.Load(),
		State:         state,
		Mode:          mode,
	}
}

// Shutdown stops the pool and the pathfinder and unsubscribes from
// the world. The coordinator goes Inactive.
func (c *Coordinator) Shutdown() {
	c.stateMu.Lock()
	c.state = StateInactive
	c.stateMu.Unlock()

	if c.world != nil {
		c.world.UnsubscribeRegionDirty(c.dirtySub)
	}
	c.pool.Shutdown()
	c.pathfinder.Shutdown()
	slog.Info("coordinator shut down", "spawnedTotal", c.spawnedTotal.Load())
}
