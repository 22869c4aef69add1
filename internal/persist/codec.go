package persist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"

	"github.com/voxelforge/mobai/internal/agent"
	"github.com/voxelforge/mobai/internal/blackboard"
	"github.com/voxelforge/mobai/internal/mathx"
	"github.com/voxelforge/mobai/internal/nav"
	"github.com/voxelforge/mobai/internal/sense"
)

// Snapshot wire format:
//
//	magic "MOBS" | major u16 | minor u16 | kind u8 |
//	payloadLen u32 | zstd(payload) | blake2b-256 of all preceding bytes
//
// Readers reject unknown major versions and bad checksums. Minor
// bumps are additive and readable by older minors of the same major.
const (
	codecMagic = "MOBS"
	CodecMajor = 1
	CodecMinor = 0

	kindAgent byte = 1
	kindGrid  byte = 2
)

// BBEntry is one serialized blackboard entry.
type BBEntry struct {
	Key   string
	Value blackboard.Value
	Flags blackboard.Flags
}

// AgentRecord is the persistable slice of an agent: stats, pose,
// persistent blackboard entries and sensory memories. Trees and
// collaborator handles are rebuilt by the type factory on load.
type AgentRecord struct {
	ID          uint64
	TypeName    string
	Pos         mathx.Vec3
	Orientation mathx.Quat
	Stats       agent.Stats
	State       agent.State
	Flags       agent.Flags
	Blackboard  []BBEntry
	Memories    []sense.Memory
}

// RecordOf extracts the persistable state from a live agent.
func RecordOf(a *agent.Agent) AgentRecord {
	rec := AgentRecord{
		ID:          a.ID,
		TypeName:    a.TypeName,
		Pos:         a.Pos,
		Orientation: a.Orientation,
		Stats:       a.Stats,
		State:       a.State(),
		Flags:       a.Flags,
	}
	a.BB.ForEachPersistent(func(key string, v blackboard.Value, flags blackboard.Flags) {
		rec.Blackboard = append(rec.Blackboard, BBEntry{Key: key, Value: v, Flags: flags})
	})
	if a.Senses != nil && a.Senses.Memory != nil {
		a.Senses.Memory.ForEach(func(mem *sense.Memory) {
			rec.Memories = append(rec.Memories, *mem)
		})
	}
	return rec
}

// Apply hydrates a freshly constructed agent from a record.
func (rec AgentRecord) Apply(a *agent.Agent) {
	a.Pos = rec.Pos
	a.Orientation = rec.Orientation
	a.Stats = rec.Stats
	a.Flags = rec.Flags
	a.SetState(rec.State)
	for _, e := range rec.Blackboard {
		a.BB.Set(e.Key, e.Value, e.Flags, 0)
	}
	if a.Senses != nil && a.Senses.Memory != nil {
		for _, mem := range rec.Memories {
			a.Senses.Memory.Restore(mem)
		}
	}
}

// EncodeAgent serializes an agent record.
func EncodeAgent(rec AgentRecord) ([]byte, error) {
	var payload bytes.Buffer
	w := &writer{buf: &payload}

	w.u64(rec.ID)
	w.str(rec.TypeName)
	w.vec3(rec.Pos)
	w.quat(rec.Orientation)
	w.stats(rec.Stats)
	w.u8(uint8(rec.State))
	w.u32(uint32(rec.Flags))

	w.u16(uint16(len(rec.Blackboard)))
	for _, e := range rec.Blackboard {
		w.str(e.Key)
		w.value(e.Value)
		w.u16(uint16(e.Flags))
	}

	w.u16(uint16(len(rec.Memories)))
	for i := range rec.Memories {
		w.memory(&rec.Memories[i])
	}

	return seal(kindAgent, payload.Bytes())
}

// DecodeAgent parses a serialized agent record.
func DecodeAgent(data []byte) (AgentRecord, error) {
	payload, err := open(kindAgent, data)
	if err != nil {
		return AgentRecord{}, err
	}
	r := &reader{buf: bytes.NewReader(payload)}

	var rec AgentRecord
	rec.ID = r.u64()
	rec.TypeName = r.str()
	rec.Pos = r.vec3()
	rec.Orientation = r.quat()
	rec.Stats = r.stats()
	rec.State = agent.State(r.u8())
	rec.Flags = agent.Flags(r.u32())

	nbb := int(r.u16())
	for i := 0; i < nbb; i++ {
		e := BBEntry{Key: r.str()}
		e.Value = r.value()
		e.Flags = blackboard.Flags(r.u16())
		rec.Blackboard = append(rec.Blackboard, e)
	}

	nmem := int(r.u16())
	for i := 0; i < nmem; i++ {
		rec.Memories = append(rec.Memories, r.memory())
	}

	if r.err != nil {
		return AgentRecord{}, fmt.Errorf("decoding agent record: %w", r.err)
	}
	return rec, nil
}

// GridRecord is the persistable grid state.
type GridRecord struct {
	Origin   mathx.Vec3
	CellSize float64
	W, H, D  int32
	Version  uint64
	Walkable []bool
	Cost     []float32
}

// RecordOfGrid snapshots a navigation grid.
func RecordOfGrid(g *nav.Grid) GridRecord {
	w, h, d := g.Dims()
	walkable, cost, version := g.Snapshot()
	return GridRecord{
		Origin:   g.Origin(),
		CellSize: g.CellSize(),
		W:        w, H: h, D: d,
		Version:  version,
		Walkable: walkable,
		Cost:     cost,
	}
}

// EncodeGrid serializes a grid record. Walkable flags are packed
// eight to a byte.
func EncodeGrid(rec GridRecord) ([]byte, error) {
	var payload bytes.Buffer
	w := &writer{buf: &payload}

	w.vec3(rec.Origin)
	w.f64(rec.CellSize)
	w.i32(rec.W)
	w.i32(rec.H)
	w.i32(rec.D)
	w.u64(rec.Version)

	w.u32(uint32(len(rec.Walkable)))
	packed := make([]byte, (len(rec.Walkable)+7)/8)
	for i, wk := range rec.Walkable {
		if wk {
			packed[i/8] |= 1 << (i % 8)
		}
	}
	w.bytes(packed)

	w.u32(uint32(len(rec.Cost)))
	for _, c := range rec.Cost {
		w.f32(c)
	}

	return seal(kindGrid, payload.Bytes())
}

// DecodeGrid parses a serialized grid record.
func DecodeGrid(data []byte) (GridRecord, error) {
	payload, err := open(kindGrid, data)
	if err != nil {
		return GridRecord{}, err
	}
	r := &reader{buf: bytes.NewReader(payload)}

	var rec GridRecord
	rec.Origin = r.vec3()
	rec.CellSize = r.f64()
	rec.W = r.i32()
	rec.H = r.i32()
	rec.D = r.i32()
	rec.Version = r.u64()

	nwalk := int(r.u32())
	packed := r.bytes((nwalk + 7) / 8)
	rec.Walkable = make([]bool, nwalk)
	for i := range rec.Walkable {
		rec.Walkable[i] = packed[i/8]&(1<<(i%8)) != 0
	}

	ncost := int(r.u32())
	rec.Cost = make([]float32, ncost)
	for i := range rec.Cost {
		rec.Cost[i] = r.f32()
	}

	if r.err != nil {
		return GridRecord{}, fmt.Errorf("decoding grid record: %w", r.err)
	}
	if nwalk != ncost {
		return GridRecord{}, fmt.Errorf("decoding grid record: walkable/cost length mismatch %d != %d", nwalk, ncost)
	}
	return rec, nil
}

// seal compresses the payload and wraps it in the versioned,
// checksummed envelope.
func seal(kind byte, payload []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	compressed := enc.EncodeAll(payload, nil)
	_ = enc.Close()

	var out bytes.Buffer
	out.WriteString(codecMagic)
	var hdr [5]byte
	binary.LittleEndian.PutUint16(hdr[0:2], CodecMajor)
	binary.LittleEndian.PutUint16(hdr[2:4], CodecMinor)
	hdr[4] = kind
	out.Write(hdr[:])

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(compressed)))
	out.Write(lenBuf[:])
	out.Write(compressed)

	sum := blake2b.Sum256(out.Bytes())
	out.Write(sum[:])
	return out.Bytes(), nil
}

// open verifies the envelope and returns the decompressed payload.
func open(kind byte, data []byte) ([]byte, error) {
	const headerLen = 4 + 5 + 4
	if len(data) < headerLen+blake2b.Size256 {
		return nil, fmt.Errorf("snapshot too short: %d bytes", len(data))
	}
	body, trailer := data[:len(data)-blake2b.Size256], data[len(data)-blake2b.Size256:]
	sum := blake2b.Sum256(body)
	if !bytes.Equal(sum[:], trailer) {
		return nil, fmt.Errorf("snapshot checksum mismatch")
	}

	if string(body[0:4]) != codecMagic {
		return nil, fmt.Errorf("bad snapshot magic %q", body[0:4])
	}
	major := binary.LittleEndian.Uint16(body[4:6])
	if major != CodecMajor {
		return nil, fmt.Errorf("unsupported snapshot version %d (reader supports %d)", major, CodecMajor)
	}
	if body[8] != kind {
		return nil, fmt.Errorf("snapshot kind mismatch: got %d want %d", body[8], kind)
	}

	clen := binary.LittleEndian.Uint32(body[9:13])
	if int(clen) != len(body)-headerLen {
		return nil, fmt.Errorf("snapshot length mismatch")
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()
	payload, err := dec.DecodeAll(body[headerLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}
	return payload, nil
}

// writer packs little-endian fields into a buffer. bytes.Buffer
// writes cannot fail, so no error plumbing.
type writer struct {
	buf *bytes.Buffer
}

func (w *writer) u8(v uint8) { w.buf.WriteByte(v) }
func (w *writer) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}
func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}
func (w *writer) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}
func (w *writer) i32(v int32) { w.u32(uint32(v)) }
func (w *writer) i64(v int64) { w.u64(uint64(v)) }
func (w *writer) f32(v float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	w.buf.Write(b[:])
}
func (w *writer) f64(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	w.buf.Write(b[:])
}
func (w *writer) bytes(b []byte) { w.buf.Write(b) }
func (w *writer) str(s string) {
	w.u16(uint16(len(s)))
	w.buf.WriteString(s)
}
func (w *writer) vec3(v mathx.Vec3) { w.f64(v.X); w.f64(v.Y); w.f64(v.Z) }
func (w *writer) quat(q mathx.Quat) { w.f64(q.W); w.f64(q.X); w.f64(q.Y); w.f64(q.Z) }
func (w *writer) ts(t time.Time) {
	if t.IsZero() {
		w.i64(0)
		return
	}
	w.i64(t.UnixNano())
}

func (w *writer) stats(s agent.Stats) {
	w.f64(s.Health)
	w.f64(s.MaxHealth)
	w.f64(s.Hunger)
	w.f64(s.Thirst)
	w.f64(s.Tiredness)
	w.f64(s.Aggression)
	w.f64(s.Speed)
	w.f64(s.AttackDamage)
	w.f64(s.AttackRange)
	w.i64(int64(s.AttackCooldown))
	w.f64(s.HungerPerSec)
	w.f64(s.ThirstPerSec)
	w.f64(s.TirednessPerSec)
}

func (w *writer) value(v blackboard.Value) {
	w.u8(uint8(v.Kind()))
	switch v.Kind() {
	case blackboard.KindBool:
		b, _ := v.AsBool()
		if b {
			w.u8(1)
		} else {
			w.u8(0)
		}
	case blackboard.KindInt:
		i, _ := v.AsInt()
		w.i64(i)
	case blackboard.KindFloat:
		f, _ := v.AsFloat()
		w.f64(f)
	case blackboard.KindString:
		s, _ := v.AsString()
		w.str(s)
	case blackboard.KindVec3:
		vec, _ := v.AsVec3()
		w.vec3(vec)
	case blackboard.KindQuat:
		q, _ := v.AsQuat()
		w.quat(q)
	case blackboard.KindHandle:
		h, _ := v.AsHandle()
		w.u64(h)
	case blackboard.KindOpaque:
		id, raw, _ := v.AsOpaque()
		w.u32(id)
		w.u32(uint32(len(raw)))
		w.bytes(raw)
	}
}

func (w *writer) memory(m *sense.Memory) {
	w.u8(uint8(m.Stimulus.Kind))
	w.u8(uint8(m.Stimulus.Sense))
	w.u64(m.Stimulus.Source)
	w.vec3(m.Stimulus.Position)
	w.vec3(m.Stimulus.Direction)
	w.f64(m.Stimulus.Intensity)
	w.f64(m.Stimulus.Confidence)
	w.ts(m.Stimulus.Timestamp)
	w.ts(m.FirstSeen)
	w.ts(m.LastSeen)
	w.u32(uint32(m.Detections))
	w.f64(m.MeanIntensity)
	w.f64(m.Strength)
	w.u8(uint8(len(m.History)))
	for _, p := range m.History {
		w.vec3(p)
	}
}

// reader unpacks fields, remembering the first failure.
type reader struct {
	buf *bytes.Reader
	err error
}

func (r *reader) read(b []byte) {
	if r.err != nil {
		return
	}
	if _, err := io.ReadFull(r.buf, b); err != nil {
		r.err = err
	}
}

func (r *reader) u8() uint8 {
	var b [1]byte
	r.read(b[:])
	return b[0]
}
func (r *reader) u16() uint16 {
	var b [2]byte
	r.read(b[:])
	return binary.LittleEndian.Uint16(b[:])
}
func (r *reader) u32() uint32 {
	var b [4]byte
	r.read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}
func (r *reader) u64() uint64 {
	var b [8]byte
	r.read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}
func (r *reader) i32() int32 { return int32(r.u32()) }
func (r *reader) i64() int64 { return int64(r.u64()) }
func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}
func (r *reader) f64() float64 {
	return math.Float64frombits(r.u64())
}
func (r *reader) bytes(n int) []byte {
	if n < 0 || r.err != nil {
		return nil
	}
	b := make([]byte, n)
	r.read(b)
	return b
}
func (r *reader) str() string {
	n := int(r.u16())
	return string(r.bytes(n))
}
func (r *reader) vec3() mathx.Vec3 {
	return mathx.Vec3{X: r.f64(), Y: r.f64(), Z: r.f64()}
}
func (r *reader) quat() mathx.Quat {
	return mathx.Quat{W: r.f64(), X: r.f64(), Y: r.f64(), Z: r.f64()}
}
func (r *reader) ts() time.Time {
	n := r.i64()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (r *reader) stats() agent.Stats {
	return agent.Stats{
		Health:          r.f64(),
		MaxHealth:       r.f64(),
		Hunger:          r.f64(),
		Thirst:          r.f64(),
		Tiredness:       r.f64(),
		Aggression:      r.f64(),
		Speed:           r.f64(),
		AttackDamage:    r.f64(),
		AttackRange:     r.f64(),
		AttackCooldown:  time.Duration(r.i64()),
		HungerPerSec:    r.f64(),
		ThirstPerSec:    r.f64(),
		TirednessPerSec: r.f64(),
	}
}

func (r *reader) value() blackboard.Value {
	kind := blackboard.Kind(r.u8())
	switch kind {
	case blackboard.KindBool:
		return blackboard.Bool(r.u8() != 0)
	case blackboard.KindInt:
		return blackboard.Int(r.i64())
	case blackboard.KindFloat:
		return blackboard.Float(r.f64())
	case blackboard.KindString:
		return blackboard.String(r.str())
	case blackboard.KindVec3:
		return blackboard.Vec3(r.vec3())
	case blackboard.KindQuat:
		return blackboard.Quat(r.quat())
	case blackboard.KindHandle:
		return blackboard.Handle(r.u64())
	case blackboard.KindOpaque:
		id := r.u32()
		n := int(r.u32())
		return blackboard.Opaque(id, r.bytes(n))
	default:
		return blackboard.Value{}
	}
}

func (r *reader) memory() sense.Memory {
	m := sense.Memory{
		Stimulus: sense.Stimulus{
			Kind:   sense.Kind(r.u8()),
			Sense:  sense.Sense(r.u8()),
			Source: r.u64(),
		},
	}
	m.Stimulus.Position = r.vec3()
	m.Stimulus.Direction = r.vec3()
	m.Stimulus.Intensity = r.f64()
	m.Stimulus.Confidence = r.f64()
	m.Stimulus.Timestamp = r.ts()
	m.FirstSeen = r.ts()
	m.LastSeen = r.ts()
	m.Detections = int(r.u32())
	m.MeanIntensity = r.f64()
	m.Strength = r.f64()
	nhist := int(r.u8())
	for i := 0; i < nhist; i++ {
		m.History = append(m.History, r.vec3())
	}
	return m
}
