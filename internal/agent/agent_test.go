package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/voxelforge/mobai/internal/behavior"
	"github.com/voxelforge/mobai/internal/blackboard"
	"github.com/voxelforge/mobai/internal/mathx"
	"github.com/voxelforge/mobai/internal/nav"
	"github.com/voxelforge/mobai/internal/sense"
	"github.com/voxelforge/mobai/internal/world"
)

// openPathfinder builds a fully walkable unit grid with one worker, so
// path requests resolve quickly and deterministically.
func openPathfinder(w, d int32) (*nav.Grid, *nav.Pathfinder) {
	g := nav.NewGrid(mathx.Vec3{}, 1, w, 1, d)
	return g, nav.NewPathfinder(g, nav.Options{Workers: 1})
}

func mobStats() Stats {
	return Stats{
		Health:         20,
		MaxHealth:      20,
		Speed:          4,
		AttackDamage:   5,
		AttackRange:    2,
		AttackCooldown: time.Second,
	}
}

// setOnceTree returns a tree whose single action writes key exactly
// once and then reports success.
func setOnceTree(key string, val blackboard.Value) *behavior.Tree {
	done := false
	root := behavior.NewAction("set-"+key, func(ctx *behavior.Context) behavior.Status {
		if !done {
			ctx.BB.Set(key, val, 0, 0)
			done = true
		}
		return behavior.StatusSuccess
	})
	return behavior.NewTree(root, 1)
}

func idleTree() *behavior.Tree {
	return behavior.NewTree(behavior.NewAction("idle", func(*behavior.Context) behavior.Status {
		return behavior.StatusSuccess
	}), 1)
}

func TestAgentFollowsPathToMoveTarget(t *testing.T) {
	_, pf := openPathfinder(10, 10)
	defer pf.Shutdown()

	start := mathx.Vec3{X: 0.5, Y: 0.5, Z: 0.5}
	goal := mathx.Vec3{X: 5.5, Y: 0.5, Z: 5.5}
	a := New(1, "walker", start, mathx.QuatIdentity(), mobStats(), CanMove,
		setOnceTree(KeyMoveTarget, blackboard.Vec3(goal)), sense.Config{}, Deps{Pathfinder: pf})

	now := time.Now()
	a.Update(0.1, now)
	if !a.Moving() {
		t.Fatal("expected a pending path request after the tree set the move target")
	}

	arrived := false
	for i := 0; i < 400; i++ {
		now = now.Add(100 * time.Millisecond)
		a.Update(0.1, now)
		if a.Pos.Dist(goal) < 1e-6 && !a.HasPath() {
			arrived = true
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !arrived {
		t.Fatalf("agent never reached goal, stopped at %+v", a.Pos)
	}

	// One more frame with nothing left to follow: velocity settles.
	now = now.Add(100 * time.Millisecond)
	a.Update(0.1, now)
	assert.Equal(t, mathx.Vec3{}, a.Velocity)
}

func TestAgentSelfIntegratesWithoutPhysics(t *testing.T) {
	_, pf := openPathfinder(10, 10)
	defer pf.Shutdown()

	start := mathx.Vec3{X: 0.5, Y: 0.5, Z: 0.5}
	goal := mathx.Vec3{X: 8.5, Y: 0.5, Z: 0.5}
	a := New(2, "walker", start, mathx.QuatIdentity(), mobStats(), CanMove,
		setOnceTree(KeyMoveTarget, blackboard.Vec3(goal)), sense.Config{}, Deps{Pathfinder: pf})

	now := time.Now()
	for i := 0; i < 50 && !a.HasPath(); i++ {
		a.Update(0.1, now)
		now = now.Add(100 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
	if !a.HasPath() {
		t.Fatal("path request never resolved")
	}

	before := a.Pos
	a.Update(0.1, now)
	moved := a.Pos.Dist(before)
	assert.InDelta(t, a.Stats.Speed*0.1, moved, 1e-9, "one frame advances speed*dt")
	assert.NotEqual(t, mathx.Vec3{}, a.Velocity)
}

func TestAgentFacesTravelDirection(t *testing.T) {
	_, pf := openPathfinder(10, 10)
	defer pf.Shutdown()

	start := mathx.Vec3{X: 0.5, Y: 0.5, Z: 0.5}
	goal := mathx.Vec3{X: 7.5, Y: 0.5, Z: 0.5}
	a := New(3, "walker", start, mathx.QuatIdentity(), mobStats(), CanMove,
		setOnceTree(KeyMoveTarget, blackboard.Vec3(goal)), sense.Config{}, Deps{Pathfinder: pf})

	now := time.Now()
	for i := 0; i < 50 && a.Velocity == (mathx.Vec3{}); i++ {
		a.Update(0.1, now)
		now = now.Add(100 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}

	fwd := a.Orientation.Forward()
	dir := goal.Sub(start).Normalize()
	// Forward is -Z at identity; travel along +X yaws the agent so
	// its forward vector lines up with the direction of motion.
	assert.InDelta(t, 1, fwd.Dot(dir), 0.15)
}

func TestAgentClearPathCancelsPending(t *testing.T) {
	_, pf := openPathfinder(10, 10)
	defer pf.Shutdown()

	a := New(4, "walker", mathx.Vec3{X: 0.5, Y: 0.5, Z: 0.5}, mathx.QuatIdentity(), mobStats(), CanMove,
		setOnceTree(KeyMoveTarget, blackboard.Vec3(mathx.Vec3{X: 9.5, Y: 0.5, Z: 9.5})), sense.Config{}, Deps{Pathfinder: pf})

	a.Update(0.1, time.Now())
	if !a.Moving() {
		t.Fatal("expected a pending request")
	}
	a.ClearPath()
	if a.Moving() {
		t.Error("ClearPath must drop both the path and the pending request")
	}
	assert.Nil(t, a.Path())
}

func TestAgentCombatCooldown(t *testing.T) {
	em := world.NewEntities()
	em.AddEntity(world.EntityInfo{ID: 7, Pos: mathx.Vec3{X: 1, Y: 1, Z: 0}, Hostile: true})

	w := world.NewBlockWorld(-10)
	eng := sense.NewEngine(w, em)

	hits := 0
	deps := Deps{
		Entities: em,
		Senses:   eng,
		OnAttack: func(attacker, target uint64, damage float64) {
			hits++
			assert.Equal(t, uint64(5), attacker)
			assert.Equal(t, uint64(7), target)
			assert.Equal(t, 5.0, damage)
		},
	}
	tree := behavior.NewTree(behavior.NewAction("attack", func(ctx *behavior.Context) behavior.Status {
		ctx.BB.Set(KeyAttackTarget, blackboard.Handle(7), 0, 0)
		return behavior.StatusRunning
	}), 1)

	a := New(5, "brawler", mathx.Vec3{Y: 1}, mathx.QuatIdentity(), mobStats(), CanAttack, tree, sense.Config{}, deps)

	now := time.Now()
	for i := 0; i < 5; i++ {
		a.Update(0.1, now)
		now = now.Add(100 * time.Millisecond)
	}
	assert.Equal(t, 1, hits, "cooldown suppresses repeat attacks")

	for i := 0; i < 6; i++ {
		a.Update(0.1, now)
		now = now.Add(100 * time.Millisecond)
	}
	assert.Equal(t, 2, hits, "second attack lands once the cooldown drains")

	// Each landed attack registers an audible emission.
	assert.Equal(t, 2, eng.Sounds.Len())
}

func TestAgentCombatRangeGate(t *testing.T) {
	em := world.NewEntities()
	em.AddEntity(world.EntityInfo{ID: 8, Pos: mathx.Vec3{X: 30, Y: 1, Z: 0}, Hostile: true})

	hits := 0
	tree := behavior.NewTree(behavior.NewAction("attack", func(ctx *behavior.Context) behavior.Status {
		ctx.BB.Set(KeyAttackTarget, blackboard.Handle(8), 0, 0)
		return behavior.StatusRunning
	}), 1)
	a := New(6, "brawler", mathx.Vec3{Y: 1}, mathx.QuatIdentity(), mobStats(), CanAttack, tree, sense.Config{},
		Deps{Entities: em, OnAttack: func(uint64, uint64, float64) { hits++ }})

	a.Update(0.1, time.Now())
	assert.Zero(t, hits, "target out of range must not be hit")
	// The queued target is consumed either way.
	assert.Zero(t, a.BB.GetHandle(KeyAttackTarget, 0))
}

func TestAgentSensesPublishKeys(t *testing.T) {
	em := world.NewEntities()
	// Identity orientation faces -Z; put the hostile dead ahead.
	em.AddEntity(world.EntityInfo{ID: 9, Pos: mathx.Vec3{X: 0, Y: 1, Z: -10}, EyeHeight: 1.6, Hostile: true})

	w := world.NewBlockWorld(-10)
	eng := sense.NewEngine(w, em)

	cfg := sense.DefaultConfig()
	cfg.Vision.Interval = 0
	cfg.Hearing.Interval = 0
	cfg.Enabled = sense.SenseSet(0).With(sense.SenseVision).With(sense.SenseHearing)

	now := time.Now()
	eng.Sounds.Add(sense.Emission{
		Position:     mathx.Vec3{X: 2, Y: 1, Z: 0},
		Intensity:    1,
		Source:       99,
		RegisteredAt: now,
	})

	a := New(10, "watcher", mathx.Vec3{Y: 1}, mathx.QuatIdentity(), mobStats(), HasSenses, idleTree(), cfg,
		Deps{Senses: eng, Entities: em})
	a.Update(0.1, now)

	assert.Equal(t, uint64(9), a.BB.GetHandle(KeyVisibleNearestHostile, 0))
	assert.Greater(t, a.BB.GetFloat(KeyThreatLevel, 0), 0.0)

	loud, ok := a.BB.GetVec3(KeyLastLoudSound, blackboard.Value{}).AsVec3()
	if !ok {
		t.Fatal("loud sound position not published")
	}
	assert.Equal(t, mathx.Vec3{X: 2, Y: 1, Z: 0}, loud)
}

func TestAgentDeathStopsUpdates(t *testing.T) {
	a := New(11, "victim", mathx.Vec3{}, mathx.QuatIdentity(), mobStats(), 0, idleTree(), sense.Config{}, Deps{})

	now := time.Now()
	a.Update(0.1, now)
	assert.Equal(t, uint64(1), a.Updates)

	a.Damage(25, now)
	assert.Equal(t, StateDead, a.State())
	assert.False(t, a.Alive())
	assert.Equal(t, now, a.DiedAt)
	assert.Zero(t, a.Stats.Health)

	// Dead agents are inert: no further damage, no further frames.
	a.Damage(5, now.Add(time.Second))
	assert.Equal(t, now, a.DiedAt)
	a.Update(0.1, now.Add(time.Second))
	assert.Equal(t, uint64(1), a.Updates)
}

func TestAgentTimersAdvanceStats(t *testing.T) {
	st := mobStats()
	st.HungerPerSec = 0.1
	st.ThirstPerSec = 0.2
	st.TirednessPerSec = 2 // clamps at 1
	a := New(12, "mob", mathx.Vec3{}, mathx.QuatIdentity(), st, 0, idleTree(), sense.Config{}, Deps{})

	now := time.Now()
	for i := 0; i < 10; i++ {
		a.Update(0.1, now)
		now = now.Add(100 * time.Millisecond)
	}
	assert.InDelta(t, 0.1, a.Stats.Hunger, 1e-9)
	assert.InDelta(t, 0.2, a.Stats.Thirst, 1e-9)
	assert.Equal(t, 1.0, a.Stats.Tiredness)
}

func TestAgentStateMirroredOnBlackboard(t *testing.T) {
	a := New(13, "mob", mathx.Vec3{}, mathx.QuatIdentity(), mobStats(), 0, idleTree(), sense.Config{}, Deps{})
	assert.Equal(t, int64(StateIdle), a.BB.GetInt(KeyState, -1))

	a.SetState(StateChasing)
	assert.Equal(t, StateChasing, a.State())
	assert.Equal(t, int64(StateChasing), a.BB.GetInt(KeyState, -1))

	a.SetState(State(200))
	assert.Equal(t, StateChasing, a.State(), "invalid states are ignored")
}

func TestAgentValidate(t *testing.T) {
	a := New(14, "mob", mathx.Vec3{}, mathx.QuatIdentity(), mobStats(), 0, idleTree(), sense.Config{}, Deps{})
	assert.True(t, a.Validate())

	a.Tree = nil
	assert.False(t, a.Validate())
}

func TestPriorityFor(t *testing.T) {
	assert.Equal(t, 100, priorityFor(StateFleeing))
	assert.Equal(t, 50, priorityFor(StateAttacking))
	assert.Equal(t, 50, priorityFor(StateChasing))
	assert.Equal(t, 20, priorityFor(StateInvestigating))
	assert.Equal(t, 0, priorityFor(StateIdle))
	assert.Equal(t, 0, priorityFor(StatePatrolling))
}

func TestStateStrings(t *testing.T) {
	names := map[State]string{
		StateIdle: "idle", StatePatrolling: "patrolling", StateInvestigating: "investigating",
		StateChasing: "chasing", StateAttacking: "attacking", StateFleeing: "fleeing",
		StateFeeding: "feeding", StateResting: "resting", StateDead: "dead",
	}
	for s, want := range names {
		assert.Equal(t, want, s.String())
	}
	assert.Equal(t, "unknown", State(200).String())
	assert.False(t, State(200).Valid())
}
