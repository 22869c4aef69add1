package sense

import (
	"time"

	"github.com/voxelforge/mobai/internal/mathx"
)

// Kind classifies what produced a stimulus.
type Kind uint8

const (
	KindEntity Kind = iota
	KindSound
	KindScent
	KindLight
	KindMovement
	KindVibration
	KindTemperature
	KindChemical
	KindProjectile
	KindEnvironmental
)

func (k Kind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindSound:
		return "sound"
	case KindScent:
		return "scent"
	case KindLight:
		return "light"
	case KindMovement:
		return "movement"
	case KindVibration:
		return "vibration"
	case KindTemperature:
		return "temperature"
	case KindChemical:
		return "chemical"
	case KindProjectile:
		return "projectile"
	case KindEnvironmental:
		return "environmental"
	default:
		return "unknown"
	}
}

// Sense names a detection channel.
type Sense uint8

const (
	SenseVision Sense = iota
	SenseHearing
	SenseSmell
	SenseTouch
	SenseVibration

	senseCount
)

func (s Sense) String() string {
	switch s {
	case SenseVision:
		return "vision"
	case SenseHearing:
		return "hearing"
	case SenseSmell:
		return "smell"
	case SenseTouch:
		return "touch"
	case SenseVibration:
		return "vibration"
	default:
		return "unknown"
	}
}

// SenseSet is a bitset of enabled senses.
type SenseSet uint8

func (ss SenseSet) Has(s Sense) bool         { return ss&(1<<s) != 0 }
func (ss SenseSet) With(s Sense) SenseSet    { return ss | (1 << s) }
func (ss SenseSet) Without(s Sense) SenseSet { return ss &^ (1 << s) }

// AllSenses enables every channel.
const AllSenses SenseSet = 1<<senseCount - 1

// Stimulus is one detection produced by a sensory pass.
type Stimulus struct {
	Kind       Kind
	Sense      Sense
	Position   mathx.Vec3
	Direction  mathx.Vec3 // unit vector from agent toward the stimulus
	Intensity  float64    // [0,1]
	Confidence float64    // [0,1]
	Timestamp  time.Time
	Source     uint64 // entity id, 0 when anonymous
	Properties map[string]float64
}

// memoryKey identifies which memory a stimulus reinforces.
type memoryKey struct {
	kind   Kind
	source uint64
}

func (st Stimulus) key() memoryKey {
	return memoryKey{kind: st.Kind, source: st.Source}
}
