package world

import (
	"sync"

	"github.com/voxelforge/mobai/internal/mathx"
)

// Entities is an in-memory EntityManager. The engine's real entity
// registry replaces this in production; the demo binary and tests
// use it directly.
type Entities struct {
	mu   sync.RWMutex
	byID map[uint64]EntityInfo
}

// NewEntities creates an empty entity registry.
func NewEntities() *Entities {
	return &Entities{byID: make(map[uint64]EntityInfo)}
}

// AddEntity implements EntityManager. Re-adding an id overwrites it.
func (e *Entities) AddEntity(info EntityInfo) {
	e.mu.Lock()
	e.byID[info.ID] = info
	e.mu.Unlock()
}

// RemoveEntity implements EntityManager. Idempotent.
func (e *Entities) RemoveEntity(id uint64) {
	e.mu.Lock()
	delete(e.byID, id)
	e.mu.Unlock()
}

// GetEntity implements EntityManager.
func (e *Entities) GetEntity(id uint64) (EntityInfo, bool) {
	e.mu.RLock()
	info, ok := e.byID[id]
	e.mu.RUnlock()
	return info, ok
}

// UpdatePosition moves an entity without touching other fields.
func (e *Entities) UpdatePosition(id uint64, pos, vel mathx.Vec3) {
	e.mu.Lock()
	if info, ok := e.byID[id]; ok {
		info.Pos = pos
		info.Vel = vel
		e.byID[id] = info
	}
	e.mu.Unlock()
}

// ForEachInRadius implements EntityManager. Snapshot is taken under
// the read lock; fn runs without it.
func (e *Entities) ForEachInRadius(center mathx.Vec3, radius float64, fn func(EntityInfo) bool) {
	rSq := radius * radius

	e.mu.RLock()
	snapshot := make([]EntityInfo, 0, len(e.byID))
	for _, info := range e.byID {
		if info.Pos.DistSq(center) <= rSq {
			snapshot = append(snapshot, info)
		}
	}
	e.mu.RUnlock()

	for _, info := range snapshot {
		if !fn(info) {
			return
		}
	}
}

// Count returns the number of registered entities.
func (e *Entities) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byID)
}

// KinematicPhysics is a minimal Physics implementation: positions
// integrate desired velocity directly, with no collision response.
// The demo binary and tests use it; the engine's rigid-body layer
// replaces it in production.
type KinematicPhysics struct {
	mu  sync.RWMutex
	pos map[uint64]mathx.Vec3
	vel map[uint64]mathx.Vec3
}

// NewKinematicPhysics creates an empty physics store.
func NewKinematicPhysics() *KinematicPhysics {
	return &KinematicPhysics{
		pos: make(map[uint64]mathx.Vec3),
		vel: make(map[uint64]mathx.Vec3),
	}
}

// Place registers a body at a position.
func (p *KinematicPhysics) Place(id uint64, at mathx.Vec3) {
	p.mu.Lock()
	p.pos[id] = at
	p.mu.Unlock()
}

// Remove drops a body.
func (p *KinematicPhysics) Remove(id uint64) {
	p.mu.Lock()
	delete(p.pos, id)
	delete(p.vel, id)
	p.mu.Unlock()
}

// SetDesiredVelocity implements Physics.
func (p *KinematicPhysics) SetDesiredVelocity(id uint64, v mathx.Vec3) {
	p.mu.Lock()
	p.vel[id] = v
	p.mu.Unlock()
}

// Position implements Physics.
func (p *KinematicPhysics) Position(id uint64) (mathx.Vec3, bool) {
	p.mu.RLock()
	pos, ok := p.pos[id]
	p.mu.RUnlock()
	return pos, ok
}

// Step integrates all bodies by dt seconds.
func (p *KinematicPhysics) Step(dt float64) {
	p.mu.Lock()
	for id, v := range p.vel {
		if pos, ok := p.pos[id]; ok {
			p.pos[id] = pos.Add(v.Scale(dt))
		}
	}
	p.mu.Unlock()
}
