package persist

import (
	"encoding/binary"
	"testing"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxelforge/mobai/internal/agent"
	"github.com/voxelforge/mobai/internal/behavior"
	"github.com/voxelforge/mobai/internal/blackboard"
	"github.com/voxelforge/mobai/internal/mathx"
	"github.com/voxelforge/mobai/internal/nav"
	"github.com/voxelforge/mobai/internal/sense"
)

// Wall-clock fixtures; time.Unix values survive the UnixNano
// roundtrip bit for bit, unlike time.Now with its monotonic reading.
var (
	t0 = time.Unix(0, 1_724_900_000_000_000_000)
	t1 = t0.Add(3 * time.Second)
)

func sampleRecord() AgentRecord {
	return AgentRecord{
		ID:          42,
		TypeName:    "hunter",
		Pos:         mathx.V3(10.5, 64, -3.25),
		Orientation: mathx.QuatYaw(1.25),
		Stats: agent.Stats{
			Health: 55, MaxHealth: 80,
			Hunger: 0.3, Thirst: 0.1, Tiredness: 0.7, Aggression: 0.8,
			Speed: 4, AttackDamage: 10, AttackRange: 1.8,
			AttackCooldown: 1200 * time.Millisecond,
			HungerPerSec:   0.004, ThirstPerSec: 0.003, TirednessPerSec: 0.002,
		},
		State: agent.StateChasing,
		Flags: agent.CanMove | agent.CanAttack | agent.HasSenses,
		Blackboard: []BBEntry{
			{Key: "home.position", Value: blackboard.Vec3(mathx.V3(8, 64, 8)), Flags: blackboard.FlagShared},
			{Key: "pack.leader", Value: blackboard.Handle(7)},
			{Key: "bravery", Value: blackboard.Float(0.9)},
			{Key: "name", Value: blackboard.String("grendel")},
			{Key: "tamed", Value: blackboard.Bool(true)},
			{Key: "kills", Value: blackboard.Int(12)},
			{Key: "custom", Value: blackboard.Opaque(3, []byte{1, 2, 3, 4})},
		},
		Memories: []sense.Memory{
			{
				Stimulus: sense.Stimulus{
					Kind: sense.KindEntity, Sense: sense.SenseVision, Source: 9,
					Position: mathx.V3(1, 2, 3), Direction: mathx.V3(0, 0, -1),
					Intensity: 0.8, Confidence: 0.6, Timestamp: t1,
				},
				FirstSeen: t0, LastSeen: t1, Detections: 4,
				MeanIntensity: 0.55, Strength: 0.7,
				History: []mathx.Vec3{mathx.V3(1, 2, 2), mathx.V3(1, 2, 3)},
			},
		},
	}
}

func TestAgentRecordRoundTrip(t *testing.T) {
	want := sampleRecord()

	data, err := EncodeAgent(want)
	require.NoError(t, err)

	got, err := DecodeAgent(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGridRecordRoundTrip(t *testing.T) {
	g := nav.NewGrid(mathx.V3(-8, 0, -8), 0.5, 6, 2, 6)
	g.SetWalkable(nav.Cell{X: 1, Y: 0, Z: 1}, false)
	g.SetWalkable(nav.Cell{X: 5, Y: 1, Z: 5}, false)
	g.SetCost(nav.Cell{X: 2, Y: 0, Z: 2}, 3.5)

	want := RecordOfGrid(g)
	data, err := EncodeGrid(want)
	require.NoError(t, err)

	got, err := DecodeGrid(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// A restored grid answers queries like the original.
	g2 := nav.NewGrid(got.Origin, got.CellSize, got.W, got.H, got.D)
	g2.Restore(got.Walkable, got.Cost, got.Version)
	assert.False(t, g2.IsWalkable(nav.Cell{X: 1, Y: 0, Z: 1}))
	assert.True(t, g2.IsWalkable(nav.Cell{X: 0, Y: 0, Z: 0}))
	assert.Equal(t, 3.5, g2.CostAt(nav.Cell{X: 2, Y: 0, Z: 2}))
	assert.Equal(t, g.Version(), g2.Version())
}

// reseal recomputes the trailing checksum after a header mutation, so
// tests reach the validation behind it.
func reseal(data []byte) []byte {
	body := data[:len(data)-blake2b.Size256]
	sum := blake2b.Sum256(body)
	return append(append([]byte{}, body...), sum[:]...)
}

func TestDecodeRejectsCorruption(t *testing.T) {
	data, err := EncodeAgent(sampleRecord())
	require.NoError(t, err)

	flipped := append([]byte{}, data...)
	flipped[len(flipped)/2] ^= 0xff
	_, err = DecodeAgent(flipped)
	assert.ErrorContains(t, err, "checksum")

	_, err = DecodeAgent(data[:10])
	assert.ErrorContains(t, err, "too short")
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data, err := EncodeAgent(sampleRecord())
	require.NoError(t, err)

	data[0] = 'X'
	_, err = DecodeAgent(reseal(data))
	assert.ErrorContains(t, err, "magic")
}

func TestDecodeRejectsUnknownMajor(t *testing.T) {
	data, err := EncodeAgent(sampleRecord())
	require.NoError(t, err)

	binary.LittleEndian.PutUint16(data[4:6], CodecMajor+1)
	_, err = DecodeAgent(reseal(data))
	assert.ErrorContains(t, err, "unsupported snapshot version")
}

func TestDecodeRejectsKindMismatch(t *testing.T) {
	data, err := EncodeAgent(sampleRecord())
	require.NoError(t, err)

	_, err = DecodeGrid(data)
	assert.ErrorContains(t, err, "kind mismatch")
}

func TestRecordOfAndApply(t *testing.T) {
	tree := behavior.NewTree(behavior.NewAction("noop", func(*behavior.Context) behavior.Status {
		return behavior.StatusSuccess
	}), 1)
	cfg := sense.DefaultConfig()

	src := agent.New(5, "wanderer", mathx.V3(1, 64, 1), mathx.QuatYaw(0.5),
		agent.Stats{Health: 30, MaxHealth: 40, Speed: 2.5},
		agent.CanMove|agent.HasSenses|agent.HasMemory, tree, cfg, agent.Deps{})
	src.SetState(agent.StatePatrolling)
	src.BB.Set("home.position", blackboard.Vec3(mathx.V3(1, 64, 1)), 0, 0)
	src.BB.Set("scratch", blackboard.Int(99), blackboard.FlagVolatile, 0)
	src.Senses.Memory.Restore(sense.Memory{
		Stimulus:  sense.Stimulus{Kind: sense.KindEntity, Sense: sense.SenseVision, Source: 3, Timestamp: t0},
		FirstSeen: t0, LastSeen: t0, Detections: 1, MeanIntensity: 0.5, Strength: 0.5,
	})

	rec := RecordOf(src)
	assert.Equal(t, uint64(5), rec.ID)
	assert.Len(t, rec.Memories, 1)
	for _, e := range rec.Blackboard {
		assert.NotEqual(t, "scratch", e.Key, "volatile entries are not persisted")
	}

	data, err := EncodeAgent(rec)
	require.NoError(t, err)
	decoded, err := DecodeAgent(data)
	require.NoError(t, err)

	tree2 := behavior.NewTree(behavior.NewAction("noop", func(*behavior.Context) behavior.Status {
		return behavior.StatusSuccess
	}), 1)
	dst := agent.New(5, "wanderer", mathx.Vec3{}, mathx.QuatIdentity(),
		agent.Stats{}, 0, tree2, cfg, agent.Deps{})
	decoded.Apply(dst)

	assert.Equal(t, src.Pos, dst.Pos)
	assert.Equal(t, src.Orientation, dst.Orientation)
	assert.Equal(t, src.Stats, dst.Stats)
	assert.Equal(t, agent.StatePatrolling, dst.State())
	assert.Equal(t, src.Flags, dst.Flags)

	home, ok := dst.BB.GetVec3("home.position", blackboard.Value{}).AsVec3()
	require.True(t, ok)
	assert.Equal(t, mathx.V3(1, 64, 1), home)

	mem, ok := dst.Senses.Memory.Recall(sense.KindEntity, 3)
	require.True(t, ok)
	assert.Equal(t, 1, mem.Detections)
}

func TestEmptyRecordsRoundTrip(t *testing.T) {
	rec := AgentRecord{ID: 1, TypeName: "bare"}
	data, err := EncodeAgent(rec)
	require.NoError(t, err)
	got, err := DecodeAgent(data)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}
