package debugview

import (
	"sync"
	"time"

	"github.com/voxelforge/mobai/internal/mathx"
)

// PrimitiveKind tags a debug draw primitive.
type PrimitiveKind uint8

const (
	KindSphere PrimitiveKind = iota
	KindLine
	KindBox
	KindText
)

func (k PrimitiveKind) String() string {
	switch k {
	case KindSphere:
		return "sphere"
	case KindLine:
		return "line"
	case KindBox:
		return "box"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Color is RGBA with 8-bit channels.
type Color struct {
	R, G, B, A uint8
}

var (
	ColorRed    = Color{255, 64, 64, 255}
	ColorGreen  = Color{64, 255, 64, 255}
	ColorBlue   = Color{64, 128, 255, 255}
	ColorYellow = Color{255, 220, 64, 255}
	ColorWhite  = Color{255, 255, 255, 255}
)

// Primitive is one debug draw command. Which fields matter depends
// on Kind: Sphere uses Pos+Radius, Line uses Pos+End, Box uses
// Pos+Extent, Text uses Pos+Text.
type Primitive struct {
	Kind   PrimitiveKind `json:"kind"`
	Pos    mathx.Vec3    `json:"pos"`
	End    mathx.Vec3    `json:"end,omitempty"`
	Extent mathx.Vec3    `json:"extent,omitempty"`
	Radius float64       `json:"radius,omitempty"`
	Text   string        `json:"text,omitempty"`
	Color  Color         `json:"color"`
	TTL    float64       `json:"ttl"` // seconds the client should keep it
}

// Frame is one tick's worth of primitives.
type Frame struct {
	Tick       uint64      `json:"tick"`
	Time       time.Time   `json:"time"`
	Primitives []Primitive `json:"primitives"`
}

// Buffer accumulates primitives during a tick and swaps them into a
// frame when the tick closes. Writers are the coordinator tick and
// the subsystems it calls, so a small mutex is enough.
type Buffer struct {
	mu      sync.Mutex
	pending []Primitive
	tick    uint64
	enabled bool
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// SetEnabled toggles capture; while disabled Add is a no-op.
func (b *Buffer) SetEnabled(on bool) {
	b.mu.Lock()
	b.enabled = on
	if !on {
		b.pending = nil
	}
	b.mu.Unlock()
}

// Enabled reports whether capture is on.
func (b *Buffer) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// Add appends a primitive to the current tick.
func (b *Buffer) Add(p Primitive) {
	b.mu.Lock()
	if b.enabled {
		b.pending = append(b.pending, p)
	}
	b.mu.Unlock()
}

// Sphere, Line, Box and Text are convenience wrappers around Add.

func (b *Buffer) Sphere(pos mathx.Vec3, radius float64, c Color, ttl float64) {
	b.Add(Primitive{Kind: KindSphere, Pos: pos, Radius: radius, Color: c, TTL: ttl})
}

func (b *Buffer) Line(from, to mathx.Vec3, c Color, ttl float64) {
	b.Add(Primitive{Kind: KindLine, Pos: from, End: to, Color: c, TTL: ttl})
}

func (b *Buffer) Box(pos, extent mathx.Vec3, c Color, ttl float64) {
	b.Add(Primitive{Kind: KindBox, Pos: pos, Extent: extent, Color: c, TTL: ttl})
}

func (b *Buffer) Text(pos mathx.Vec3, text string, c Color, ttl float64) {
	b.Add(Primitive{Kind: KindText, Pos: pos, Text: text, Color: c, TTL: ttl})
}

// Flush closes the tick: the pending primitives become a frame and
// the buffer starts fresh.
func (b *Buffer) Flush(now time.Time) Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tick++
	f := Frame{Tick: b.tick, Time: now, Primitives: b.pending}
	b.pending = nil
	return f
}
