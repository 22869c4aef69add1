package sense

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/voxelforge/mobai/internal/mathx"
	"github.com/voxelforge/mobai/internal/world"
)

// State is one agent's sensory state. Owned by the agent; the engine
// only touches it inside that agent's sensory pass.
type State struct {
	Config  Config
	Memory  *MemoryStore
	Current []Stimulus // rebuilt on every pass

	lastRun   [senseCount]time.Time
	lastDecay time.Time
}

// NewState builds sensory state from a config.
func NewState(cfg Config) *State {
	return &State{
		Config: cfg,
		Memory: NewMemoryStore(cfg.MemoryCapacity, cfg.HistoryCap, cfg.MemoryHalfLife, cfg.ForgetThreshold),
	}
}

// due reports whether a sense should run this pass and records the
// run time when it does.
func (s *State) due(sn Sense, now time.Time) bool {
	ch := s.Config.channel(sn)
	if ch == nil {
		return false
	}
	if !s.lastRun[sn].IsZero() && now.Sub(s.lastRun[sn]) < ch.Interval {
		return false
	}
	s.lastRun[sn] = now
	return true
}

// Engine owns the global emission registries and the environmental
// modifiers, and runs detection for agents. Agents may be sensed in
// parallel: the engine reads the world and registries shared and
// writes only into the caller's State.
type Engine struct {
	world    world.World
	entities world.EntityManager
	Sounds   *Registry
	Scents   *Registry

	mu        sync.RWMutex
	modifiers map[string]float64 // e.g. "darkness", "fog" in [0,1]

	stimuliTotal uint64
	passes       uint64
	statsMu      sync.Mutex
}

func NewEngine(w world.World, em world.EntityManager) *Engine {
	return &Engine{
		world:     w,
		entities:  em,
		Sounds:    NewRegistry(),
		Scents:    NewRegistry(),
		modifiers: make(map[string]float64),
	}
}

// SetModifier sets a named environmental factor in [0,1], where 0
// means no impairment.
func (e *Engine) SetModifier(name string, value float64) {
	e.mu.Lock()
	e.modifiers[name] = mathx.Clamp01(value)
	e.mu.Unlock()
}

// visionFactor folds darkness and fog into one multiplier.
func (e *Engine) visionFactor() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f := 1.0
	f *= 1 - e.modifiers["darkness"]
	f *= 1 - e.modifiers["fog"]
	return f
}

// Update runs once per coordinator tick: ages out dead emissions.
func (e *Engine) Update(now time.Time) {
	purged := e.Sounds.Purge(now) + e.Scents.Purge(now)
	if purged > 0 {
		slog.Debug("sensory emissions purged", "count", purged)
	}
}

// Sense runs every due channel for one agent, reinforces its memory
// with the fresh stimuli and decays the rest. Facing must be a unit
// vector. The returned slice aliases state.Current.
func (e *Engine) Sense(st *State, agentID uint64, pos, facing mathx.Vec3, now time.Time) []Stimulus {
	st.Current = st.Current[:0]

	if st.Config.Enabled.Has(SenseVision) && st.due(SenseVision, now) {
		e.senseVision(st, agentID, pos, facing, now)
	}
	if st.Config.Enabled.Has(SenseHearing) && st.due(SenseHearing, now) {
		e.senseHearing(st, pos, now)
	}
	if st.Config.Enabled.Has(SenseSmell) && st.due(SenseSmell, now) {
		e.senseSmell(st, pos, now)
	}

	for i := range st.Current {
		st.Memory.Observe(st.Current[i])
	}
	if !st.lastDecay.IsZero() {
		st.Memory.Decay(now.Sub(st.lastDecay))
	}
	st.lastDecay = now

	e.statsMu.Lock()
	e.passes++
	e.stimuliTotal += uint64(len(st.Current))
	e.statsMu.Unlock()

	return st.Current
}

func (e *Engine) senseVision(st *State, agentID uint64, pos, facing mathx.Vec3, now time.Time) {
	cfg := &st.Config.Vision
	halfAngle := cfg.FOVDegrees * math.Pi / 360 // degrees/2 in radians
	cosHalf := math.Cos(halfAngle)
	env := e.visionFactor()
	eye := pos.Add(mathx.Vec3{Y: st.Config.EyeHeight})

	e.entities.ForEachInRadius(pos, cfg.Range, func(ent world.EntityInfo) bool {
		if ent.ID == agentID {
			return true
		}
		toTarget := ent.Pos.Sub(pos)
		dist := toTarget.Len()
		if dist < 1e-6 {
			return true
		}
		dir := toTarget.Scale(1 / dist)
		alignment := dir.Dot(facing)
		if alignment < cosHalf {
			return true
		}

		targetEye := ent.Pos.Add(mathx.Vec3{Y: ent.EyeHeight})
		ray := targetEye.Sub(eye)
		rayLen := ray.Len()
		if rayLen > 1e-6 {
			if hit, blocked := e.world.RaycastFirstSolid(eye, ray.Scale(1/rayLen), rayLen); blocked && hit.Distance < rayLen-0.01 {
				return true
			}
		}

		// Alignment remapped so dead-center sees 1 and the cone edge
		// sees ~0.5.
		centering := 0.5 + 0.5*(alignment-cosHalf)/(1-cosHalf+1e-9)
		confidence := cfg.Sensitivity * centering * (1 - dist/cfg.Range) * env
		if confidence < cfg.NoiseFloor {
			return true
		}

		st.Current = append(st.Current, Stimulus{
			Kind:       KindEntity,
			Sense:      SenseVision,
			Position:   ent.Pos,
			Direction:  dir,
			Intensity:  mathx.Clamp01(1 - dist/cfg.Range),
			Confidence: mathx.Clamp01(confidence),
			Timestamp:  now,
			Source:     ent.ID,
			Properties: map[string]float64{"hostile": boolToFloat(ent.Hostile)},
		})
		return true
	})
}

func (e *Engine) senseHearing(st *State, pos mathx.Vec3, now time.Time) {
	cfg := &st.Config.Hearing
	k := st.Config.HearingAttenuation

	e.Sounds.ForEachInRange(pos, cfg.Range, now, func(em Emission, decayed float64) {
		d := em.Position.Dist(pos)
		effective := decayed / (1 + k*d*d)
		if effective < st.Config.HearingThreshold || effective < cfg.NoiseFloor {
			return
		}
		dir := mathx.Vec3{}
		if d > 1e-6 {
			dir = em.Position.Sub(pos).Scale(1 / d)
		}
		st.Current = append(st.Current, Stimulus{
			Kind:       KindSound,
			Sense:      SenseHearing,
			Position:   em.Position,
			Direction:  dir,
			Intensity:  mathx.Clamp01(effective),
			Confidence: mathx.Clamp01(effective * cfg.Sensitivity),
			Timestamp:  now,
			Source:     em.Source,
			Properties: em.Properties,
		})
	})
}

func (e *Engine) senseSmell(st *State, pos mathx.Vec3, now time.Time) {
	cfg := &st.Config.Smell

	e.Scents.ForEachInRange(pos, cfg.Range, now, func(em Emission, decayed float64) {
		d := em.Position.Dist(pos)
		diffusion := 1 - d/cfg.Range
		if diffusion < 0 {
			return
		}
		effective := decayed * diffusion
		if effective < st.Config.SmellThreshold || effective < cfg.NoiseFloor {
			return
		}
		dir := mathx.Vec3{}
		if d > 1e-6 {
			dir = em.Position.Sub(pos).Scale(1 / d)
		}
		st.Current = append(st.Current, Stimulus{
			Kind:       KindScent,
			Sense:      SenseSmell,
			Position:   em.Position,
			Direction:  dir,
			Intensity:  mathx.Clamp01(effective),
			Confidence: mathx.Clamp01(effective * cfg.Sensitivity),
			Timestamp:  now,
			Source:     em.Source,
			Properties: em.Properties,
		})
	})
}

// Stats returns pass and stimulus totals.
func (e *Engine) Stats() (passes, stimuli uint64) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.passes, e.stimuliTotal
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
