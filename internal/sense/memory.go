package sense

import (
	"math"
	"time"

	"github.com/voxelforge/mobai/internal/mathx"
)

// Memory is a remembered stimulus with reinforcement bookkeeping.
// Strength only goes down between reinforcements; a matching fresh
// stimulus resets it to 1.
type Memory struct {
	Stimulus      Stimulus
	FirstSeen     time.Time
	LastSeen      time.Time
	Detections    int
	MeanIntensity float64
	History       []mathx.Vec3 // recent positions, oldest first
	Strength      float64      // [0,1]
}

// MemoryStore is one agent's bounded sensory memory. It is only
// touched from that agent's own sensory pass, so it carries no lock.
type MemoryStore struct {
	byKey           map[memoryKey]*Memory
	capacity        int
	historyCap      int
	halfLife        time.Duration
	forgetThreshold float64
}

func NewMemoryStore(capacity, historyCap int, halfLife time.Duration, forgetThreshold float64) *MemoryStore {
	if capacity <= 0 {
		capacity = 32
	}
	if historyCap <= 0 {
		historyCap = 8
	}
	if halfLife <= 0 {
		halfLife = 30 * time.Second
	}
	return &MemoryStore{
		byKey:           make(map[memoryKey]*Memory, capacity),
		capacity:        capacity,
		historyCap:      historyCap,
		halfLife:        halfLife,
		forgetThreshold: forgetThreshold,
	}
}

// Observe reinforces the matching memory or allocates a new one.
func (m *MemoryStore) Observe(st Stimulus) *Memory {
	key := st.key()
	if mem, ok := m.byKey[key]; ok {
		mem.Stimulus = st
		mem.LastSeen = st.Timestamp
		mem.Detections++
		mem.MeanIntensity += (st.Intensity - mem.MeanIntensity) / float64(mem.Detections)
		mem.History = append(mem.History, st.Position)
		if len(mem.History) > m.historyCap {
			mem.History = mem.History[len(mem.History)-m.historyCap:]
		}
		mem.Strength = 1
		return mem
	}

	if len(m.byKey) >= m.capacity {
		m.evictWeakest()
	}
	mem := &Memory{
		Stimulus:      st,
		FirstSeen:     st.Timestamp,
		LastSeen:      st.Timestamp,
		Detections:    1,
		MeanIntensity: st.Intensity,
		History:       []mathx.Vec3{st.Position},
		Strength:      1,
	}
	m.byKey[key] = mem
	return mem
}

// Decay ages all memories by dt and drops the forgotten ones.
// Returns how many were removed.
func (m *MemoryStore) Decay(dt time.Duration) int {
	if dt <= 0 {
		return 0
	}
	lambda := math.Ln2 / m.halfLife.Seconds()
	factor := math.Exp(-lambda * dt.Seconds())

	removed := 0
	for key, mem := range m.byKey {
		mem.Strength *= factor
		if mem.Strength < m.forgetThreshold {
			delete(m.byKey, key)
			removed++
		}
	}
	return removed
}

func (m *MemoryStore) evictWeakest() {
	var weakestKey memoryKey
	weakest := math.Inf(1)
	found := false
	for key, mem := range m.byKey {
		if mem.Strength < weakest {
			weakest = mem.Strength
			weakestKey = key
			found = true
		}
	}
	if found {
		delete(m.byKey, weakestKey)
	}
}

// Restore installs a deserialized memory verbatim, evicting the
// weakest entry if the store is full.
func (m *MemoryStore) Restore(mem Memory) {
	key := mem.Stimulus.key()
	if _, exists := m.byKey[key]; !exists && len(m.byKey) >= m.capacity {
		m.evictWeakest()
	}
	cp := mem
	m.byKey[key] = &cp
}

// Recall returns the memory for (kind, source) if still held.
func (m *MemoryStore) Recall(kind Kind, source uint64) (*Memory, bool) {
	mem, ok := m.byKey[memoryKey{kind: kind, source: source}]
	return mem, ok
}

// Strongest returns the strongest memory of a kind, nil when none.
func (m *MemoryStore) Strongest(kind Kind) *Memory {
	var best *Memory
	for key, mem := range m.byKey {
		if key.kind != kind {
			continue
		}
		if best == nil || mem.Strength > best.Strength {
			best = mem
		}
	}
	return best
}

// ForEach visits every memory.
func (m *MemoryStore) ForEach(fn func(mem *Memory)) {
	for _, mem := range m.byKey {
		fn(mem)
	}
}

// Len returns the held memory count.
func (m *MemoryStore) Len() int { return len(m.byKey) }

// Clear drops everything.
func (m *MemoryStore) Clear() {
	clear(m.byKey)
}
