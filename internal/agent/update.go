package agent

import (
	"log/slog"
	"math"
	"time"

	"github.com/voxelforge/mobai/internal/blackboard"
	"github.com/voxelforge/mobai/internal/mathx"
	"github.com/voxelforge/mobai/internal/nav"
	"github.com/voxelforge/mobai/internal/sense"
)

// Update runs one agent frame. The order is fixed: timers, senses,
// behavior, movement, combat, velocity publication. dt is seconds.
func (a *Agent) Update(dt float64, now time.Time) {
	if a.state == StateDead {
		return
	}
	a.Updates++

	// Physics moved us since last tick.
	if a.deps.Physics != nil {
		if p, ok := a.deps.Physics.Position(a.ID); ok {
			a.Pos = p
		}
	}

	a.advanceTimers(dt)

	if a.Flags.Has(HasSenses) && a.deps.Senses != nil {
		a.runSenses(now)
	}

	a.BB.ExpireEntries(now)
	a.Tree.Tick(dt, now, a, a.BB)

	a.applyMovement(dt, now)
	a.applyCombat(now)

	if a.deps.Physics != nil {
		a.deps.Physics.SetDesiredVelocity(a.ID, a.Velocity)
	}
	if a.deps.Entities != nil {
		if e, ok := a.deps.Entities.GetEntity(a.ID); ok {
			e.Pos = a.Pos
			e.Vel = a.Velocity
			a.deps.Entities.AddEntity(e)
		}
	}
}

func (a *Agent) advanceTimers(dt float64) {
	if a.attackTimer > 0 {
		a.attackTimer -= time.Duration(dt * float64(time.Second))
		if a.attackTimer < 0 {
			a.attackTimer = 0
		}
	}
	a.Stats.Hunger = mathx.Clamp01(a.Stats.Hunger + a.Stats.HungerPerSec*dt)
	a.Stats.Thirst = mathx.Clamp01(a.Stats.Thirst + a.Stats.ThirstPerSec*dt)
	a.Stats.Tiredness = mathx.Clamp01(a.Stats.Tiredness + a.Stats.TirednessPerSec*dt)
}

// runSenses performs the sensory pass and publishes the well-known
// keys the behavior library reads.
func (a *Agent) runSenses(now time.Time) {
	facing := a.Orientation.Forward()
	stimuli := a.deps.Senses.Sense(a.Senses, a.ID, a.Pos, facing, now)

	var (
		nearestHostile     uint64
		nearestHostileDist = math.Inf(1)
		loudest            *sense.Stimulus
		threat             float64
	)
	for i := range stimuli {
		st := &stimuli[i]
		switch st.Sense {
		case sense.SenseVision:
			if st.Properties["hostile"] > 0 {
				d := st.Position.Dist(a.Pos)
				if d < nearestHostileDist {
					nearestHostileDist = d
					nearestHostile = st.Source
				}
				if st.Confidence > threat {
					threat = st.Confidence
				}
			}
		case sense.SenseHearing:
			if loudest == nil || st.Intensity > loudest.Intensity {
				loudest = st
			}
		}
	}

	if nearestHostile != 0 {
		a.BB.Set(KeyVisibleNearestHostile, blackboard.Handle(nearestHostile), blackboard.FlagAutoExpire, 2*time.Second)
	}
	if loudest != nil && loudest.Intensity >= 0.3 {
		a.BB.Set(KeyLastLoudSound, blackboard.Vec3(loudest.Position), blackboard.FlagAutoExpire, 10*time.Second)
		if threat < loudest.Intensity/2 {
			threat = loudest.Intensity / 2
		}
	}
	a.BB.Set(KeyThreatLevel, blackboard.Float(threat), 0, 0)
}

// applyMovement follows the active path and services the move.target
// key written by the tree.
func (a *Agent) applyMovement(dt float64, now time.Time) {
	a.Velocity = mathx.Vec3{}
	if !a.Flags.Has(CanMove) {
		return
	}

	a.collectPathResult()
	a.requestPathIfNeeded()

	if !a.HasPath() {
		return
	}

	next := a.path[a.pathCursor]
	to := next.Sub(a.Pos)
	dist := to.Len()
	if dist <= a.arrivalEpsilon {
		a.Pos = next
		a.pathCursor++
		if a.pathCursor >= len(a.path) {
			a.path = nil
			a.pathCursor = 0
			a.hasGoal = false
			return
		}
		next = a.path[a.pathCursor]
		to = next.Sub(a.Pos)
		dist = to.Len()
		if dist < 1e-6 {
			return
		}
	}

	dir := to.Scale(1 / dist)
	step := a.Stats.Speed * dt
	if step > dist {
		step = dist
	}
	a.Velocity = dir.Scale(a.Stats.Speed)
	// Forward is -Z at identity, so the yaw negates both axes.
	a.Orientation = mathx.QuatYaw(math.Atan2(-dir.X, -dir.Z))

	// Without an external physics layer we integrate here.
	if a.deps.Physics == nil {
		a.Pos = a.Pos.Add(dir.Scale(step))
	}
}

// collectPathResult polls an outstanding request.
func (a *Agent) collectPathResult() {
	if a.pendingReq == 0 {
		return
	}
	res, ok := a.deps.Pathfinder.Poll(a.pendingReq)
	if !ok {
		return
	}
	a.pendingReq = 0

	switch res.Status {
	case nav.StatusSuccess, nav.StatusPartial:
		a.path = res.Waypoints
		a.pathCursor = 0
		// Skip a leading waypoint we already stand on.
		if len(a.path) > 0 && a.path[0].Dist(a.Pos) <= a.arrivalEpsilon {
			a.pathCursor = 1
		}
	default:
		slog.Debug("path request unsuccessful",
			"agent", a.ID,
			"status", res.Status.String(),
			"reason", res.FailureReason)
		a.hasGoal = false
	}
}

// requestPathIfNeeded submits a request when the tree moved the
// target and nothing is pending.
func (a *Agent) requestPathIfNeeded() {
	goalVal := a.BB.GetVec3(KeyMoveTarget, blackboard.Value{})
	goal, ok := goalVal.AsVec3()
	if !ok {
		if a.hasGoal && !a.HasPath() && a.pendingReq == 0 {
			a.hasGoal = false
		}
		return
	}

	if a.hasGoal && goal.Dist(a.requestedGoal) < a.arrivalEpsilon {
		return
	}
	if a.pendingReq != 0 {
		a.deps.Pathfinder.Cancel(a.pendingReq)
	}

	a.requestedGoal = goal
	a.hasGoal = true
	a.pendingReq = a.deps.Pathfinder.Request(nav.Request{
		Start:        a.Pos,
		Goal:         goal,
		AgentID:      a.ID,
		Type:         nav.PathGround,
		AllowPartial: true,
		AgentRadius:  0.4,
		AgentHeight:  1.8,
		Priority:     priorityFor(a.state),
	})
}

// applyCombat resolves an attack the tree queued this tick.
func (a *Agent) applyCombat(now time.Time) {
	if !a.Flags.Has(CanAttack) || a.attackTimer > 0 {
		return
	}
	target := a.BB.GetHandle(KeyAttackTarget, 0)
	if target == 0 {
		return
	}
	a.BB.Remove(KeyAttackTarget)

	if a.deps.Entities == nil {
		return
	}
	ent, ok := a.deps.Entities.GetEntity(target)
	if !ok || ent.Pos.Dist(a.Pos) > a.Stats.AttackRange {
		return
	}

	a.attackTimer = a.Stats.AttackCooldown
	if a.deps.OnAttack != nil {
		a.deps.OnAttack(a.ID, target, a.Stats.AttackDamage)
	}
	// Attacks are loud.
	if a.deps.Senses != nil {
		a.deps.Senses.Sounds.Add(sense.Emission{
			Position:     a.Pos,
			Intensity:    0.8,
			Source:       a.ID,
			RegisteredAt: now,
			DecayPerSec:  1,
		})
	}
}

// priorityFor maps lifecycle state to path request priority so
// fleeing and fighting agents jump the queue.
func priorityFor(s State) int {
	switch s {
	case StateFleeing:
		return 100
	case StateAttacking, StateChasing:
		return 50
	case StateInvestigating:
		return 20
	default:
		return 0
	}
}
