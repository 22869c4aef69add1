package sense

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/voxelforge/mobai/internal/mathx"
)

func stim(kind Kind, source uint64, intensity float64, at time.Time) Stimulus {
	return Stimulus{
		Kind:      kind,
		Position:  mathx.V3(float64(source), 0, 0),
		Intensity: intensity,
		Timestamp: at,
		Source:    source,
	}
}

func TestObserveAllocatesAndReinforces(t *testing.T) {
	m := NewMemoryStore(8, 4, 30*time.Second, 0.05)
	now := time.Now()

	mem := m.Observe(stim(KindEntity, 7, 0.8, now))
	assert.Equal(t, 1, mem.Detections)
	assert.Equal(t, 0.8, mem.MeanIntensity)
	assert.Equal(t, 1.0, mem.Strength)
	assert.Equal(t, 1, m.Len())

	// Same (kind, source) reinforces instead of allocating.
	later := now.Add(time.Second)
	mem2 := m.Observe(stim(KindEntity, 7, 0.4, later))
	assert.Same(t, mem, mem2)
	assert.Equal(t, 2, mem.Detections)
	assert.InDelta(t, 0.6, mem.MeanIntensity, 1e-9)
	assert.Equal(t, now, mem.FirstSeen)
	assert.Equal(t, later, mem.LastSeen)
	assert.Equal(t, 1, m.Len())
}

func TestHistoryBounded(t *testing.T) {
	m := NewMemoryStore(8, 3, 30*time.Second, 0.05)
	now := time.Now()
	for i := 0; i < 10; i++ {
		s := stim(KindEntity, 1, 0.5, now)
		s.Position = mathx.V3(float64(i), 0, 0)
		m.Observe(s)
	}
	mem, _ := m.Recall(KindEntity, 1)
	assert.Len(t, mem.History, 3)
	// Oldest first: the tail of the observed positions.
	assert.Equal(t, mathx.V3(7, 0, 0), mem.History[0])
	assert.Equal(t, mathx.V3(9, 0, 0), mem.History[2])
}

func TestDecayIsMonotonic(t *testing.T) {
	m := NewMemoryStore(8, 4, 10*time.Second, 0.01)
	m.Observe(stim(KindEntity, 1, 1, time.Now()))
	mem, _ := m.Recall(KindEntity, 1)

	prev := mem.Strength
	for i := 0; i < 20; i++ {
		m.Decay(time.Second)
		assert.LessOrEqual(t, mem.Strength, prev,
			"strength never rises between reinforcements")
		prev = mem.Strength
	}
}

func TestDecayHalfLife(t *testing.T) {
	m := NewMemoryStore(8, 4, 10*time.Second, 0.01)
	m.Observe(stim(KindEntity, 1, 1, time.Now()))
	mem, _ := m.Recall(KindEntity, 1)

	m.Decay(10 * time.Second)
	assert.InDelta(t, 0.5, mem.Strength, 1e-9, "one half-life halves the strength")
}

func TestDecayForgets(t *testing.T) {
	m := NewMemoryStore(8, 4, time.Second, 0.5)
	m.Observe(stim(KindEntity, 1, 1, time.Now()))

	removed := m.Decay(5 * time.Second)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, m.Len())
	_, ok := m.Recall(KindEntity, 1)
	assert.False(t, ok)
}

func TestEvictWeakest(t *testing.T) {
	m := NewMemoryStore(2, 4, 30*time.Second, 0.01)
	now := time.Now()

	m.Observe(stim(KindEntity, 1, 1, now))
	m.Decay(20 * time.Second) // weaken entity 1
	m.Observe(stim(KindEntity, 2, 1, now))

	// Store is full; the weakest memory makes room.
	m.Observe(stim(KindEntity, 3, 1, now))
	assert.Equal(t, 2, m.Len())
	_, ok := m.Recall(KindEntity, 1)
	assert.False(t, ok, "the decayed memory was evicted")
	_, ok = m.Recall(KindEntity, 2)
	assert.True(t, ok)
	_, ok = m.Recall(KindEntity, 3)
	assert.True(t, ok)
}

func TestStrongest(t *testing.T) {
	m := NewMemoryStore(8, 4, 30*time.Second, 0.01)
	now := time.Now()

	assert.Nil(t, m.Strongest(KindEntity))

	m.Observe(stim(KindEntity, 1, 1, now))
	m.Decay(10 * time.Second)
	m.Observe(stim(KindEntity, 2, 1, now)) // fresh, strength 1
	m.Observe(stim(KindSound, 3, 1, now))

	best := m.Strongest(KindEntity)
	if assert.NotNil(t, best) {
		assert.Equal(t, uint64(2), best.Stimulus.Source)
	}
}

func TestRestore(t *testing.T) {
	m := NewMemoryStore(8, 4, 30*time.Second, 0.01)
	now := time.Now()

	saved := Memory{
		Stimulus:      stim(KindScent, 5, 0.7, now),
		FirstSeen:     now.Add(-time.Minute),
		LastSeen:      now,
		Detections:    12,
		MeanIntensity: 0.6,
		History:       []mathx.Vec3{mathx.V3(1, 0, 0)},
		Strength:      0.4,
	}
	m.Restore(saved)

	mem, ok := m.Recall(KindScent, 5)
	if assert.True(t, ok) {
		assert.Equal(t, 12, mem.Detections)
		assert.Equal(t, 0.4, mem.Strength)
		assert.Equal(t, saved.FirstSeen, mem.FirstSeen)
	}
}

func TestClear(t *testing.T) {
	m := NewMemoryStore(8, 4, 30*time.Second, 0.01)
	for i := uint64(1); i <= 3; i++ {
		m.Observe(stim(KindEntity, i, 1, time.Now()))
	}
	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestForEach(t *testing.T) {
	m := NewMemoryStore(8, 4, 30*time.Second, 0.01)
	for i := uint64(1); i <= 3; i++ {
		m.Observe(stim(KindEntity, i, 1, time.Now()))
	}
	seen := map[string]bool{}
	m.ForEach(func(mem *Memory) {
		seen[fmt.Sprintf("%d", mem.Stimulus.Source)] = true
	})
	assert.Len(t, seen, 3)
}
