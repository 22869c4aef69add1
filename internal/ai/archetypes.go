package ai

import (
	"time"

	"github.com/voxelforge/mobai/internal/agent"
	"github.com/voxelforge/mobai/internal/behavior"
	"github.com/voxelforge/mobai/internal/blackboard"
	"github.com/voxelforge/mobai/internal/mathx"
	"github.com/voxelforge/mobai/internal/sense"
)

// Stock agent archetypes. They cover the two basic mob behaviors the
// demo needs: a passive wanderer and a hostile hunter. Games with
// richer behaviors register their own factories.

// WandererStats is the default passive mob profile.
func WandererStats() agent.Stats {
	return agent.Stats{
		Health:          40,
		MaxHealth:       40,
		Speed:           2.5,
		HungerPerSec:    0.002,
		ThirstPerSec:    0.003,
		TirednessPerSec: 0.001,
	}
}

// HunterStats is the default hostile mob profile.
func HunterStats() agent.Stats {
	return agent.Stats{
		Health:          80,
		MaxHealth:       80,
		Aggression:      0.8,
		Speed:           4,
		AttackDamage:    10,
		AttackRange:     1.8,
		AttackCooldown:  1200 * time.Millisecond,
		HungerPerSec:    0.004,
		ThirstPerSec:    0.003,
		TirednessPerSec: 0.002,
	}
}

// NewWandererFactory returns a factory for a mob that drifts around
// its spawn point and flees loud noise.
func NewWandererFactory(wanderRadius float64) Factory {
	return func(id uint64, pos mathx.Vec3, orient mathx.Quat, deps agent.Deps) (*agent.Agent, error) {
		home := pos
		root := behavior.NewSelector("wanderer",
			fleeBranch(),
			wanderBranch(home, wanderRadius, 3),
		)
		a := agent.New(id, "wanderer", pos, orient, WandererStats(),
			agent.CanMove|agent.HasSenses|agent.HasMemory,
			behavior.NewTree(root, id), sense.DefaultConfig(), deps)
		return a, nil
	}
}

// NewHunterFactory returns a factory for a mob that chases and
// attacks visible hostiles, investigates sounds, and otherwise
// patrols.
func NewHunterFactory(patrolRadius float64) Factory {
	return func(id uint64, pos mathx.Vec3, orient mathx.Quat, deps agent.Deps) (*agent.Agent, error) {
		home := pos
		root := behavior.NewPriority("hunter",
			[]int{100, 50, 0}, true,
			engageBranch(),
			investigateBranch(),
			wanderBranch(home, patrolRadius, 5),
		)
		cfg := sense.DefaultConfig()
		cfg.Vision.Range = 32
		a := agent.New(id, "hunter", pos, orient, HunterStats(),
			agent.CanMove|agent.CanAttack|agent.HasSenses|agent.HasMemory,
			behavior.NewTree(root, id), cfg, deps)
		return a, nil
	}
}

// engageBranch chases the nearest visible hostile and attacks once
// in range.
func engageBranch() behavior.Node {
	chase := behavior.NewAction("chase", func(ctx *behavior.Context) behavior.Status {
		a := ctx.Agent.(*agent.Agent)
		target := ctx.BB.GetHandle(agent.KeyVisibleNearestHostile, 0)
		if target == 0 {
			return behavior.StatusFailure
		}
		ent, ok := a.Entity(target)
		if !ok {
			return behavior.StatusFailure
		}

		if ent.Pos.Dist(a.Pos) <= a.Stats.AttackRange {
			a.SetState(agent.StateAttacking)
			ctx.BB.Set(agent.KeyAttackTarget, blackboard.Handle(target), 0, 0)
			return behavior.StatusSuccess
		}
		a.SetState(agent.StateChasing)
		ctx.BB.Set(agent.KeyMoveTarget, blackboard.Vec3(ent.Pos), 0, 0)
		return behavior.StatusRunning
	})

	return behavior.NewBlackboardCheck("has-hostile", agent.KeyVisibleNearestHostile,
		func(v blackboard.Value) bool {
			h, ok := v.AsHandle()
			return ok && h != 0
		},
		chase)
}

// investigateBranch walks to the last loud sound.
func investigateBranch() behavior.Node {
	investigate := behavior.NewAction("investigate", func(ctx *behavior.Context) behavior.Status {
		a := ctx.Agent.(*agent.Agent)
		posVal := ctx.BB.GetVec3(agent.KeyLastLoudSound, blackboard.Value{})
		pos, ok := posVal.AsVec3()
		if !ok {
			return behavior.StatusFailure
		}
		a.SetState(agent.StateInvestigating)
		if pos.Dist(a.Pos) <= 1.5 {
			ctx.BB.Remove(agent.KeyLastLoudSound)
			a.SetState(agent.StateIdle)
			return behavior.StatusSuccess
		}
		ctx.BB.Set(agent.KeyMoveTarget, blackboard.Vec3(pos), 0, 0)
		return behavior.StatusRunning
	})

	return behavior.NewBlackboardCheck("heard-sound", agent.KeyLastLoudSound,
		func(v blackboard.Value) bool {
			_, ok := v.AsVec3()
			return ok
		},
		investigate)
}

// fleeBranch runs from high threat.
func fleeBranch() behavior.Node {
	flee := behavior.NewAction("flee", func(ctx *behavior.Context) behavior.Status {
		a := ctx.Agent.(*agent.Agent)
		threatPos, haveSrc := threatSource(ctx, a)
		if !haveSrc {
			a.SetState(agent.StateIdle)
			return behavior.StatusSuccess
		}
		a.SetState(agent.StateFleeing)
		away := a.Pos.Sub(threatPos).Normalize()
		if away.IsZero() {
			away = mathx.V3(1, 0, 0)
		}
		ctx.BB.Set(agent.KeyMoveTarget, blackboard.Vec3(a.Pos.Add(away.Scale(12))), 0, 0)
		return behavior.StatusRunning
	})

	return behavior.NewConditional("threatened",
		func(ctx *behavior.Context) bool {
			return ctx.BB.GetFloat(agent.KeyThreatLevel, 0) >= 0.4
		},
		behavior.NewTimer("flee-burst", 4, flee))
}

// wanderBranch drifts to random points around home, pausing between
// moves.
func wanderBranch(home mathx.Vec3, radius float64, pauseSecs float64) behavior.Node {
	pick := behavior.NewAction("pick-target", func(ctx *behavior.Context) behavior.Status {
		a := ctx.Agent.(*agent.Agent)
		a.SetState(agent.StatePatrolling)
		dx := (ctx.Rand.Float64()*2 - 1) * radius
		dz := (ctx.Rand.Float64()*2 - 1) * radius
		ctx.BB.Set(agent.KeyMoveTarget, blackboard.Vec3(home.Add(mathx.V3(dx, 0, dz))), 0, 0)
		return behavior.StatusSuccess
	})
	walk := behavior.NewAction("walk", func(ctx *behavior.Context) behavior.Status {
		a := ctx.Agent.(*agent.Agent)
		if a.Moving() {
			return behavior.StatusRunning
		}
		ctx.BB.Remove(agent.KeyMoveTarget)
		a.SetState(agent.StateIdle)
		return behavior.StatusSuccess
	})

	return behavior.NewCooldown("wander-pause", pauseSecs,
		behavior.NewSequence("wander", pick, walk))
}

func threatSource(ctx *behavior.Context, a *agent.Agent) (mathx.Vec3, bool) {
	if h := ctx.BB.GetHandle(agent.KeyVisibleNearestHostile, 0); h != 0 {
		if ent, ok := a.Entity(h); ok {
			return ent.Pos, true
		}
	}
	posVal := ctx.BB.GetVec3(agent.KeyLastLoudSound, blackboard.Value{})
	if pos, ok := posVal.AsVec3(); ok {
		return pos, true
	}
	return mathx.Vec3{}, false
}
