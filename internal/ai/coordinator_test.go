package ai

import (
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxelforge/mobai/internal/agent"
	"github.com/voxelforge/mobai/internal/behavior"
	"github.com/voxelforge/mobai/internal/blackboard"
	"github.com/voxelforge/mobai/internal/mathx"
	"github.com/voxelforge/mobai/internal/nav"
	"github.com/voxelforge/mobai/internal/sense"
	"github.com/voxelforge/mobai/internal/world"
)

// coordEnv stands up a coordinator over a flat world: solid ground at
// y=-1, an open 16x3x16 navigation grid and an empty entity registry.
func coordEnv(t *testing.T, cfg Config) (*Coordinator, *world.BlockWorld, *world.Entities) {
	t.Helper()
	w := world.NewBlockWorld(-1)
	em := world.NewEntities()
	g := nav.NewGrid(mathx.Vec3{}, 1, 16, 3, 16)
	c, err := New(cfg, w, em, nil, g)
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c, w, em
}

// idleFactory spawns a minimal agent whose tree always succeeds.
func idleFactory(stats agent.Stats) Factory {
	return func(id uint64, pos mathx.Vec3, orient mathx.Quat, deps agent.Deps) (*agent.Agent, error) {
		tree := behavior.NewTree(behavior.NewAction("idle", func(*behavior.Context) behavior.Status {
			return behavior.StatusSuccess
		}), id)
		return agent.New(id, "idle", pos, orient, stats, 0, tree, sense.Config{}, deps), nil
	}
}

func TestCoordinatorRequiresGrid(t *testing.T) {
	_, err := New(DefaultConfig(), world.NewBlockWorld(-1), world.NewEntities(), nil, nil)
	assert.Error(t, err)
}

func TestCoordinatorLifecycle(t *testing.T) {
	c, _, _ := coordEnv(t, DefaultConfig())
	assert.Equal(t, StateInactive, c.State())

	// Ticks are ignored until Start.
	c.Tick(0.05)
	assert.Zero(t, c.Metrics().Ticks)

	require.NoError(t, c.Start())
	assert.Equal(t, StateActive, c.State())
	c.Tick(0.05)
	assert.Equal(t, uint64(1), c.Metrics().Ticks)

	c.Pause()
	assert.Equal(t, StatePaused, c.State())
	c.Tick(0.05)
	assert.Equal(t, uint64(1), c.Metrics().Ticks)

	c.Resume()
	assert.Equal(t, StateActive, c.State())

	c.fail(errors.New("boom"))
	assert.Equal(t, StateError, c.State())
	assert.Error(t, c.Start(), "error state is sticky")
	c.Reset()
	assert.Equal(t, StateInactive, c.State())
	require.NoError(t, c.Start())
}

func TestRegisterAgentType(t *testing.T) {
	c, _, _ := coordEnv(t, DefaultConfig())
	require.NoError(t, c.RegisterAgentType("mob", idleFactory(agent.Stats{Health: 1, MaxHealth: 1})))
	assert.Error(t, c.RegisterAgentType("mob", idleFactory(agent.Stats{})), "duplicate type name")
	assert.Error(t, c.RegisterAgentType("nilfac", nil))
}

func TestSpawnAndDespawn(t *testing.T) {
	c, _, em := coordEnv(t, DefaultConfig())
	require.NoError(t, c.RegisterAgentType("mob", idleFactory(agent.Stats{Health: 10, MaxHealth: 10})))

	assert.Zero(t, c.SpawnAgent("ghost", mathx.Vec3{}, mathx.QuatIdentity()), "unknown type")

	pos := mathx.V3(4.5, 0.5, 4.5)
	id := c.SpawnAgent("mob", pos, mathx.QuatIdentity())
	require.NotZero(t, id)
	assert.Equal(t, 1, c.AgentCount())

	a, ok := c.GetAgent(id)
	require.True(t, ok)
	assert.Equal(t, pos, a.Pos)

	ent, ok := em.GetEntity(id)
	require.True(t, ok, "spawn registers the agent with the entity layer")
	assert.Equal(t, pos, ent.Pos)

	c.DespawnAgent(id)
	_, ok = c.GetAgent(id)
	assert.False(t, ok)
	assert.Zero(t, c.AgentCount())
	_, ok = em.GetEntity(id)
	assert.False(t, ok)

	c.DespawnAgent(id) // idempotent
	m := c.Metrics()
	assert.Equal(t, uint64(1), m.SpawnedTotal)
	assert.Equal(t, uint64(1), m.Despawned)
}

func TestSpawnFactoryFailure(t *testing.T) {
	c, _, _ := coordEnv(t, DefaultConfig())
	require.NoError(t, c.RegisterAgentType("broken", func(uint64, mathx.Vec3, mathx.Quat, agent.Deps) (*agent.Agent, error) {
		return nil, errors.New("no parts")
	}))
	assert.Zero(t, c.SpawnAgent("broken", mathx.Vec3{}, mathx.QuatIdentity()))
	assert.Zero(t, c.AgentCount())
}

func TestGetAgentsInRadius(t *testing.T) {
	c, _, _ := coordEnv(t, DefaultConfig())
	require.NoError(t, c.RegisterAgentType("mob", idleFactory(agent.Stats{Health: 1, MaxHealth: 1})))

	near := c.SpawnAgent("mob", mathx.V3(1.5, 0.5, 1.5), mathx.QuatIdentity())
	c.SpawnAgent("mob", mathx.V3(14.5, 0.5, 14.5), mathx.QuatIdentity())

	found := c.GetAgentsInRadius(mathx.V3(1, 0.5, 1), 3)
	require.Len(t, found, 1)
	assert.Equal(t, near, found[0].ID)

	assert.Len(t, c.GetAgentsInRadius(mathx.V3(8, 0.5, 8), 100), 2)
}

func TestTickUpdatesAgents(t *testing.T) {
	c, _, _ := coordEnv(t, DefaultConfig())
	require.NoError(t, c.RegisterAgentType("mob", idleFactory(agent.Stats{Health: 5, MaxHealth: 5})))
	require.NoError(t, c.Start())

	id := c.SpawnAgent("mob", mathx.V3(3.5, 0.5, 3.5), mathx.QuatIdentity())
	a, _ := c.GetAgent(id)

	c.Tick(0.05)
	c.Tick(0.05)
	assert.Equal(t, uint64(2), a.Updates)
}

func TestDeadAgentSweep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AgentDecayWindow = 50 * time.Millisecond
	c, _, _ := coordEnv(t, cfg)
	require.NoError(t, c.RegisterAgentType("mob", idleFactory(agent.Stats{Health: 5, MaxHealth: 5})))
	require.NoError(t, c.Start())

	id := c.SpawnAgent("mob", mathx.V3(3.5, 0.5, 3.5), mathx.QuatIdentity())
	a, _ := c.GetAgent(id)

	c.resolveAttack(0, id, 100)
	assert.False(t, a.Alive())

	// Dead but still inside the decay window: kept, not ticked.
	c.Tick(0.05)
	_, ok := c.GetAgent(id)
	assert.True(t, ok)
	assert.Zero(t, a.Updates)

	time.Sleep(70 * time.Millisecond)
	c.Tick(0.05)
	_, ok = c.GetAgent(id)
	assert.False(t, ok, "decayed corpse is despawned")
}

func TestSweepRemovesInvalidAgents(t *testing.T) {
	c, _, _ := coordEnv(t, DefaultConfig())
	require.NoError(t, c.RegisterAgentType("mob", idleFactory(agent.Stats{Health: 5, MaxHealth: 5})))
	require.NoError(t, c.Start())

	id := c.SpawnAgent("mob", mathx.V3(3.5, 0.5, 3.5), mathx.QuatIdentity())
	a, _ := c.GetAgent(id)
	a.Tree = nil

	c.Tick(0.05)
	_, ok := c.GetAgent(id)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, c.Metrics().AgentErrors, uint64(1))
}

func TestAgentPanicIsolated(t *testing.T) {
	c, _, _ := coordEnv(t, DefaultConfig())
	require.NoError(t, c.RegisterAgentType("bomb", func(id uint64, pos mathx.Vec3, orient mathx.Quat, deps agent.Deps) (*agent.Agent, error) {
		tree := behavior.NewTree(behavior.NewAction("boom", func(*behavior.Context) behavior.Status {
			panic("kaboom")
		}), id)
		return agent.New(id, "bomb", pos, orient, agent.Stats{Health: 1, MaxHealth: 1}, 0, tree, sense.Config{}, deps), nil
	}))
	require.NoError(t, c.RegisterAgentType("mob", idleFactory(agent.Stats{Health: 1, MaxHealth: 1})))
	require.NoError(t, c.Start())

	c.SpawnAgent("bomb", mathx.V3(2.5, 0.5, 2.5), mathx.QuatIdentity())
	calm := c.SpawnAgent("mob", mathx.V3(3.5, 0.5, 3.5), mathx.QuatIdentity())

	c.Tick(0.05)

	a, ok := c.GetAgent(calm)
	require.True(t, ok)
	assert.Equal(t, uint64(1), a.Updates, "a panicking neighbor must not stop the tick")
}

func TestScheduledTaskFiresOnce(t *testing.T) {
	c, _, _ := coordEnv(t, DefaultConfig())
	require.NoError(t, c.Start())

	var fired atomic.Int32
	c.ScheduleTask(func() { fired.Add(1) }, 0, 0, false)

	c.Tick(0.05)
	assert.Equal(t, int32(1), fired.Load())
	c.Tick(0.05)
	assert.Equal(t, int32(1), fired.Load(), "one-shot tasks do not refire")
}

func TestScheduledTaskRecurring(t *testing.T) {
	c, _, _ := coordEnv(t, DefaultConfig())
	require.NoError(t, c.Start())

	var fired atomic.Int32
	id := c.ScheduleTask(func() { fired.Add(1) }, 0, 10*time.Millisecond, true)

	c.Tick(0.05)
	time.Sleep(20 * time.Millisecond)
	c.Tick(0.05)
	assert.GreaterOrEqual(t, fired.Load(), int32(2))

	c.CancelTask(id)
	n := fired.Load()
	time.Sleep(20 * time.Millisecond)
	c.Tick(0.05)
	assert.Equal(t, n, fired.Load(), "cancelled tasks never refire")
}

func TestScheduledTaskDelay(t *testing.T) {
	c, _, _ := coordEnv(t, DefaultConfig())
	require.NoError(t, c.Start())

	var fired atomic.Int32
	c.ScheduleTask(func() { fired.Add(1) }, time.Hour, 0, false)
	c.Tick(0.05)
	assert.Zero(t, fired.Load())
}

func TestScheduledTaskPanicIsolated(t *testing.T) {
	c, _, _ := coordEnv(t, DefaultConfig())
	require.NoError(t, c.Start())

	var after atomic.Int32
	c.ScheduleTask(func() { panic("bad task") }, 0, 0, false)
	c.ScheduleTask(func() { after.Add(1) }, 0, 0, false)

	c.Tick(0.05)
	assert.Equal(t, int32(1), after.Load())
}

func TestSubmitTaskRunsOnPool(t *testing.T) {
	c, _, _ := coordEnv(t, DefaultConfig())

	done := make(chan struct{})
	c.SubmitTask(5, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool never ran the task")
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.Metrics().TasksExecuted == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.GreaterOrEqual(t, c.Metrics().TasksExecuted, uint64(1))
}

func TestDirtyRegionRebuildsGrid(t *testing.T) {
	c, w, _ := coordEnv(t, DefaultConfig())
	require.NoError(t, c.Start())

	g := c.Pathfinder().Grid()
	v0 := g.Version()

	// A two-block pillar lands in the walkable area.
	w.FillSolid(world.Region{
		Min: world.BlockPos{X: 4, Y: 0, Z: 4},
		Max: world.BlockPos{X: 4, Y: 1, Z: 4},
	})
	c.Tick(0.05)

	assert.Greater(t, g.Version(), v0)
	assert.False(t, g.IsWalkable(nav.Cell{X: 4, Y: 0, Z: 4}))
	assert.False(t, g.IsWalkable(nav.Cell{X: 4, Y: 1, Z: 4}))
}

func TestModeSwitching(t *testing.T) {
	c, _, _ := coordEnv(t, DefaultConfig())
	assert.Equal(t, ModeNormal, c.Mode())

	c.SetMode(ModePerformance)
	assert.Equal(t, ModePerformance, c.Mode())
	assert.Equal(t, ModePerformance, c.Metrics().Mode)
}

func TestPolicyFor(t *testing.T) {
	base := 100
	assert.Equal(t, policy{maxActiveAgents: 100, useWorkers: true}, policyFor(ModeNormal, base))
	assert.Equal(t, policy{maxActiveAgents: 100, debugCapture: true, useWorkers: true}, policyFor(ModeDebug, base))
	assert.Equal(t, policy{maxActiveAgents: 200, useWorkers: true}, policyFor(ModePerformance, base))
	assert.Equal(t, policy{maxActiveAgents: 100, debugCapture: true, useWorkers: true}, policyFor(ModeLearning, base))
	assert.Equal(t, policy{maxActiveAgents: 25}, policyFor(ModeMinimal, base))
}

func TestResolveAttackBetweenAgents(t *testing.T) {
	c, _, _ := coordEnv(t, DefaultConfig())
	require.NoError(t, c.RegisterAgentType("mob", idleFactory(agent.Stats{Health: 30, MaxHealth: 30})))

	attacker := c.SpawnAgent("mob", mathx.V3(2.5, 0.5, 2.5), mathx.QuatIdentity())
	victimID := c.SpawnAgent("mob", mathx.V3(3.5, 0.5, 3.5), mathx.QuatIdentity())
	victim, _ := c.GetAgent(victimID)

	c.resolveAttack(attacker, victimID, 12)
	assert.Equal(t, 18.0, victim.Stats.Health)

	// Unknown targets belong to the external entity layer.
	c.resolveAttack(attacker, 9999, 12)
}

func TestHunterHuntsHostile(t *testing.T) {
	if testing.Short() {
		t.Skip("real-time hunt simulation")
	}
	c, _, em := coordEnv(t, DefaultConfig())
	require.NoError(t, c.RegisterAgentType("hunter", NewHunterFactory(6)))
	require.NoError(t, c.Start())

	// Identity orientation faces -Z, so the prey stands dead ahead.
	em.AddEntity(world.EntityInfo{ID: 9000, Pos: mathx.V3(8.5, 0.5, 2.5), EyeHeight: 1.6, Hostile: true})

	id := c.SpawnAgent("hunter", mathx.V3(8.5, 0.5, 8.5), mathx.QuatIdentity())
	hunter, _ := c.GetAgent(id)

	attacked := false
	for i := 0; i < 600; i++ {
		c.Tick(0.05)
		if c.Senses().Sounds.Len() > 0 {
			attacked = true
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !attacked {
		t.Fatalf("hunter never attacked; state=%s pos=%+v", hunter.State(), hunter.Pos)
	}
	assert.Equal(t, agent.StateAttacking, hunter.State())
	assert.InDelta(t, 0, hunter.Pos.Dist(mathx.V3(8.5, 0.5, 2.5)), hunter.Stats.AttackRange+0.5)
}

func TestMinimalModeRunsTasksInline(t *testing.T) {
	c, _, _ := coordEnv(t, DefaultConfig())
	require.NoError(t, c.Start())
	c.SetMode(ModeMinimal)

	var ran atomic.Bool
	c.SubmitTask(5, func() { ran.Store(true) })
	time.Sleep(100 * time.Millisecond)
	assert.False(t, ran.Load(), "queued work waits for the tick in single-threaded mode")

	c.Tick(0.05)
	assert.True(t, ran.Load())
	assert.Equal(t, uint64(1), c.Metrics().TasksExecuted)
}

func TestManyAgentsReachRandomGoals(t *testing.T) {
	if testing.Short() {
		t.Skip("real-time mass simulation")
	}
	w := world.NewBlockWorld(-1)
	em := world.NewEntities()
	g := nav.NewGrid(mathx.Vec3{}, 1, 32, 3, 32)
	c, err := New(DefaultConfig(), w, em, nil, g)
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)

	require.NoError(t, c.RegisterAgentType("runner", func(id uint64, pos mathx.Vec3, orient mathx.Quat, deps agent.Deps) (*agent.Agent, error) {
		tree := behavior.NewTree(behavior.NewAction("idle", func(*behavior.Context) behavior.Status {
			return behavior.StatusSuccess
		}), id)
		stats := agent.Stats{Health: 10, MaxHealth: 10, Speed: 3}
		return agent.New(id, "runner", pos, orient, stats, agent.CanMove, tree, sense.Config{}, deps), nil
	}))

	const n = 48
	rng := rand.New(rand.NewPCG(3, 9))
	cellPos := func() mathx.Vec3 {
		return mathx.V3(2+rng.Float64()*28, 0.5, 2+rng.Float64()*28)
	}

	starts := make(map[uint64]mathx.Vec3, n)
	for i := 0; i < n; i++ {
		pos := cellPos()
		id := c.SpawnAgent("runner", pos, mathx.QuatIdentity())
		require.NotZero(t, id)
		starts[id] = pos

		goal := cellPos()
		for goal.Dist(pos) < 4 {
			goal = cellPos()
		}
		a, ok := c.GetAgent(id)
		require.True(t, ok)
		a.BB.Set(agent.KeyMoveTarget, blackboard.Vec3(goal), 0, 0)
	}
	require.NoError(t, c.Start())
	require.Equal(t, n, c.AgentCount())

	// Two simulated seconds at 60 Hz, with real time for the
	// pathfinder workers to answer the initial burst of requests.
	for i := 0; i < 120; i++ {
		c.Tick(1.0 / 60.0)
		time.Sleep(time.Millisecond)
	}

	moved := 0
	for id, start := range starts {
		a, ok := c.GetAgent(id)
		require.True(t, ok)
		if a.Pos.Dist(start) >= 1 {
			moved++
		}
	}
	assert.GreaterOrEqual(t, float64(moved), 0.95*n, "nearly every agent makes progress toward its goal")
	assert.Equal(t, n, c.AgentCount())
	assert.Zero(t, c.Metrics().AgentErrors)
}

// faultyWorld switches to panicking on voxel reads once broken.
type faultyWorld struct {
	*world.BlockWorld
	broken atomic.Bool
}

func (f *faultyWorld) IsBlockSolid(x, y, z int32) bool {
	if f.broken.Load() {
		panic("voxel store unavailable")
	}
	return f.BlockWorld.IsBlockSolid(x, y, z)
}

func TestSubsystemPanicEntersErrorState(t *testing.T) {
	fw := &faultyWorld{BlockWorld: world.NewBlockWorld(-1)}
	em := world.NewEntities()
	g := nav.NewGrid(mathx.Vec3{}, 1, 16, 3, 16)
	c, err := New(DefaultConfig(), fw, em, nil, g)
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	require.NoError(t, c.Start())

	c.Tick(0.05)
	require.Equal(t, StateActive, c.State())

	// A dirty region forces a grid rebuild against the broken store.
	fw.SetSolid(4, 0, 4, true)
	fw.broken.Store(true)
	c.Tick(0.05)
	assert.Equal(t, StateError, c.State())

	ticks := c.Metrics().Ticks
	c.Tick(0.05)
	assert.Equal(t, ticks, c.Metrics().Ticks, "error state halts ticking")
	assert.Error(t, c.Start(), "error state is sticky until Reset")
}

func TestLifecycleStateStrings(t *testing.T) {
	assert.Equal(t, "inactive", StateInactive.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "unknown", LifecycleState(9).String())
}
