package agent

import (
	"time"

	"github.com/voxelforge/mobai/internal/behavior"
	"github.com/voxelforge/mobai/internal/blackboard"
	"github.com/voxelforge/mobai/internal/mathx"
	"github.com/voxelforge/mobai/internal/nav"
	"github.com/voxelforge/mobai/internal/sense"
	"github.com/voxelforge/mobai/internal/world"
)

// State is the agent's lifecycle state, driven by its behavior tree.
type State uint8

const (
	StateIdle State = iota
	StatePatrolling
	StateInvestigating
	StateChasing
	StateAttacking
	StateFleeing
	StateFeeding
	StateResting
	StateDead
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePatrolling:
		return "patrolling"
	case StateInvestigating:
		return "investigating"
	case StateChasing:
		return "chasing"
	case StateAttacking:
		return "attacking"
	case StateFleeing:
		return "fleeing"
	case StateFeeding:
		return "feeding"
	case StateResting:
		return "resting"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Valid reports whether s names a real state.
func (s State) Valid() bool { return s <= StateDead }

// Flags is the capability bitset.
type Flags uint32

const (
	CanMove Flags = 1 << iota
	CanJump
	CanFly
	CanSwim
	CanAttack
	CanBreed
	HasSenses
	HasMemory
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// Stats are the scalar attributes a tree reads and timers advance.
type Stats struct {
	Health     float64
	MaxHealth  float64
	Hunger     float64 // [0,1], grows over time
	Thirst     float64
	Tiredness  float64
	Aggression float64 // [0,1]

	Speed          float64 // world units per second
	AttackDamage   float64
	AttackRange    float64
	AttackCooldown time.Duration

	HungerPerSec    float64
	ThirstPerSec    float64
	TirednessPerSec float64
}

// Well-known blackboard keys the sensory pass publishes and trees
// read. Trees write the move/attack keys; the agent consumes them.
const (
	KeyVisibleNearestHostile = "visible.nearest.hostile"
	KeyLastLoudSound         = "sound.last.loud.position"
	KeyThreatLevel           = "threat.level"
	KeyMoveTarget            = "move.target"
	KeyAttackTarget          = "attack.target"
	KeyState                 = "agent.state"
)

// Deps are the collaborators handed to every agent by the
// coordinator. Combat lands through OnAttack so the damage model
// stays outside the core.
type Deps struct {
	Pathfinder *nav.Pathfinder
	Senses     *sense.Engine
	Physics    world.Physics
	Entities   world.EntityManager
	OnAttack   func(attacker, target uint64, damage float64)
}

// Agent is one AI-driven mob. All fields are mutated only on the
// coordinator tick, so none of them need locks.
type Agent struct {
	ID       uint64
	TypeName string

	Pos         mathx.Vec3
	Orientation mathx.Quat
	Velocity    mathx.Vec3

	Stats Stats
	Flags Flags

	BB     *blackboard.Blackboard
	Tree   *behavior.Tree
	Senses *sense.State

	deps Deps

	state   State
	DiedAt  time.Time
	Updates uint64

	// path following
	path          []mathx.Vec3
	pathCursor    int
	pendingReq    uint64
	requestedGoal mathx.Vec3
	hasGoal       bool
	repathNeeded  bool

	// combat
	attackTimer time.Duration

	arrivalEpsilon float64
}

// New builds an agent around its tree and sensory config. Position
// and orientation come from the spawn call.
func New(id uint64, typeName string, pos mathx.Vec3, orient mathx.Quat, stats Stats, flags Flags, tree *behavior.Tree, senseCfg sense.Config, deps Deps) *Agent {
	a := &Agent{
		ID:             id,
		TypeName:       typeName,
		Pos:            pos,
		Orientation:    orient,
		Stats:          stats,
		Flags:          flags,
		BB:             blackboard.New(),
		Tree:           tree,
		Senses:         sense.NewState(senseCfg),
		deps:           deps,
		state:          StateIdle,
		arrivalEpsilon: 0.25,
	}
	a.BB.Set(KeyState, blackboard.Int(int64(StateIdle)), blackboard.FlagDebugVisible, 0)
	return a
}

// State returns the lifecycle state.
func (a *Agent) State() State { return a.state }

// SetState transitions the lifecycle state and mirrors it onto the
// blackboard for tree conditions and debug capture.
func (a *Agent) SetState(s State) {
	if s == a.state || !s.Valid() {
		return
	}
	a.state = s
	a.BB.Set(KeyState, blackboard.Int(int64(s)), blackboard.FlagDebugVisible, 0)
}

// Alive reports whether the agent still participates in ticks.
func (a *Agent) Alive() bool { return a.state != StateDead }

// Damage applies incoming damage; at zero health the agent dies.
func (a *Agent) Damage(amount float64, now time.Time) {
	if a.state == StateDead {
		return
	}
	a.Stats.Health -= amount
	if a.Stats.Health <= 0 {
		a.Stats.Health = 0
		a.DiedAt = now
		a.SetState(StateDead)
		a.ClearPath()
	}
}

// Path returns the remaining waypoints from the cursor on.
func (a *Agent) Path() []mathx.Vec3 {
	if a.pathCursor >= len(a.path) {
		return nil
	}
	return a.path[a.pathCursor:]
}

// HasPath reports whether waypoints remain.
func (a *Agent) HasPath() bool { return a.pathCursor < len(a.path) }

// Moving reports whether the agent is following a path or waiting on
// a pathfinding result.
func (a *Agent) Moving() bool { return a.HasPath() || a.pendingReq != 0 }

// ClearPath drops the current path and any pending request.
func (a *Agent) ClearPath() {
	if a.pendingReq != 0 {
		a.deps.Pathfinder.Cancel(a.pendingReq)
		a.pendingReq = 0
	}
	a.path = nil
	a.pathCursor = 0
	a.hasGoal = false
}

// Entity looks up another entity through the external manager.
func (a *Agent) Entity(id uint64) (world.EntityInfo, bool) {
	if a.deps.Entities == nil {
		return world.EntityInfo{}, false
	}
	return a.deps.Entities.GetEntity(id)
}

// Validate checks structural invariants; the coordinator sweeps
// agents that fail it.
func (a *Agent) Validate() bool {
	return a.state.Valid() && a.Stats.Health >= 0 && a.BB != nil && a.Tree != nil
}
