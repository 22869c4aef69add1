package sense

import (
	"sync"
	"time"

	"github.com/voxelforge/mobai/internal/mathx"
)

// Emission is one registered sound or scent source.
type Emission struct {
	Position     mathx.Vec3
	Intensity    float64 // [0,1] at the source
	Source       uint64  // entity id, 0 when anonymous
	RegisteredAt time.Time
	DecayPerSec  float64 // fraction of intensity lost per second
	Properties   map[string]float64
}

// intensityAt returns the source intensity after decay.
func (e *Emission) intensityAt(now time.Time) float64 {
	age := now.Sub(e.RegisteredAt).Seconds()
	if age <= 0 {
		return e.Intensity
	}
	left := e.Intensity - e.Intensity*e.DecayPerSec*age
	if left < 0 {
		return 0
	}
	return left
}

// Registry holds the world-global emissions of one kind. Sounds and
// scents each get their own instance; agents read it shared during
// their sensory pass.
type Registry struct {
	mu      sync.RWMutex
	entries []Emission
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers an emission. Zero or negative intensity is ignored.
func (r *Registry) Add(e Emission) {
	if e.Intensity <= 0 {
		return
	}
	if e.RegisteredAt.IsZero() {
		e.RegisteredAt = time.Now()
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Purge drops entries whose decayed intensity reached zero.
func (r *Registry) Purge(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	for i := range r.entries {
		if r.entries[i].intensityAt(now) > 0 {
			kept = append(kept, r.entries[i])
		}
	}
	removed := len(r.entries) - len(kept)
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = Emission{}
	}
	r.entries = kept
	return removed
}

// ForEachInRange visits live emissions within radius of center.
func (r *Registry) ForEachInRange(center mathx.Vec3, radius float64, now time.Time, fn func(e Emission, decayed float64)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.entries {
		e := &r.entries[i]
		if e.Position.Dist(center) > radius {
			continue
		}
		if in := e.intensityAt(now); in > 0 {
			fn(*e, in)
		}
	}
}

// Len returns the entry count including fully decayed ones not yet
// purged.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
