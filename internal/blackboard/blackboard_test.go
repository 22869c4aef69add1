package blackboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/voxelforge/mobai/internal/mathx"
)

// fixedClock pins the blackboard to a controllable instant.
func fixedClock(b *Blackboard) *time.Time {
	now := time.Unix(1000, 0)
	b.SetClock(func() time.Time { return now })
	return &now
}

func TestSetGetRoundTrip(t *testing.T) {
	b := New()

	assert.True(t, b.Set("health", Float(0.75), 0, 0))
	assert.True(t, b.Set("name", String("grunt"), 0, 0))
	assert.True(t, b.Set("angry", Bool(true), 0, 0))
	assert.True(t, b.Set("kills", Int(3), 0, 0))
	assert.True(t, b.Set("home", Vec3(mathx.V3(1, 2, 3)), 0, 0))
	assert.True(t, b.Set("target", Handle(42), 0, 0))

	assert.Equal(t, 0.75, b.GetFloat("health", 0))
	assert.Equal(t, "grunt", b.GetString("name", ""))
	assert.True(t, b.GetBool("angry", false))
	assert.Equal(t, int64(3), b.GetInt("kills", 0))
	home, ok := b.GetVec3("home", Value{}).AsVec3()
	assert.True(t, ok)
	assert.Equal(t, mathx.V3(1, 2, 3), home)
	assert.Equal(t, uint64(42), b.GetHandle("target", 0))
	assert.Equal(t, 6, b.Len())
}

func TestGetDefaults(t *testing.T) {
	b := New()
	assert.Equal(t, 9.0, b.GetFloat("missing", 9))
	assert.Equal(t, "d", b.GetString("missing", "d"))

	b.Set("k", Float(1), 0, 0)
	b.Remove("k")
	assert.Equal(t, 9.0, b.GetFloat("k", 9), "removed keys read as default")
	assert.False(t, b.Remove("k"), "second remove reports absence")
}

func TestTypeMismatch(t *testing.T) {
	b := New()
	b.Set("k", String("text"), 0, 0)

	assert.Equal(t, int64(7), b.GetInt("k", 7), "wrong-typed read falls back to default")
	assert.Equal(t, uint64(1), b.Stats().TypeErrors)

	// The raw accessor ignores types.
	v, ok := b.Get("k")
	assert.True(t, ok)
	assert.Equal(t, KindString, v.Kind())
}

func TestTTLExpiry(t *testing.T) {
	b := New()
	now := fixedClock(b)

	b.Set("scent", Float(1), 0, 500*time.Millisecond)

	*now = now.Add(400 * time.Millisecond)
	assert.Equal(t, 1.0, b.GetFloat("scent", 0), "alive before the ttl")
	assert.True(t, b.Has("scent"))

	*now = now.Add(200 * time.Millisecond)
	assert.Equal(t, 0.0, b.GetFloat("scent", 0), "default after the ttl")
	assert.False(t, b.Has("scent"))
	assert.GreaterOrEqual(t, b.Stats().Expired, uint64(1))
}

func TestExpireEntriesSweep(t *testing.T) {
	b := New()
	now := fixedClock(b)

	b.Set("a", Int(1), 0, time.Second)
	b.Set("b", Int(2), 0, 3*time.Second)
	b.Set("c", Int(3), 0, 0) // no expiry

	removed := b.ExpireEntries(now.Add(2 * time.Second))
	assert.Equal(t, 1, removed)
	assert.False(t, b.Has("a"))
	assert.True(t, b.Has("b"))
	assert.True(t, b.Has("c"))
}

func TestReadOnlyRejection(t *testing.T) {
	b := New()
	assert.True(t, b.Set("spawn", Vec3(mathx.V3(0, 64, 0)), FlagReadOnly, 0))
	assert.False(t, b.Set("spawn", Vec3(mathx.V3(9, 9, 9)), 0, 0))

	got, _ := b.GetVec3("spawn", Value{}).AsVec3()
	assert.Equal(t, mathx.V3(0, 64, 0), got)
	assert.Equal(t, uint64(1), b.Stats().Rejected)

	// Removal is allowed, only overwriting is not.
	assert.True(t, b.Remove("spawn"))
	assert.True(t, b.Set("spawn", Vec3(mathx.V3(9, 9, 9)), 0, 0))
}

func TestReadOnlyExpiresLikeAnyEntry(t *testing.T) {
	b := New()
	now := fixedClock(b)

	assert.True(t, b.Set("claim", Handle(7), FlagReadOnly, time.Second))
	assert.False(t, b.Set("claim", Handle(8), 0, 0), "live read-only entry still guards the key")

	*now = now.Add(2 * time.Second)
	assert.True(t, b.Set("claim", Handle(8), 0, 0), "expired entry no longer guards the key")
	assert.Equal(t, uint64(8), b.GetHandle("claim", 0))
}

func TestListeners(t *testing.T) {
	b := New()

	type event struct {
		key      string
		old, new Value
	}
	var events []event
	id := b.AddListener("threat", func(key string, old, new Value) {
		events = append(events, event{key, old, new})
	})

	// No NotifyOnChange flag: silent write.
	b.Set("threat", Float(0.1), 0, 0)
	assert.Empty(t, events)

	b.Set("threat", Float(0.5), FlagNotifyOnChange, 0)
	if assert.Len(t, events, 1) {
		assert.Equal(t, "threat", events[0].key)
		oldF, _ := events[0].old.AsFloat()
		newF, _ := events[0].new.AsFloat()
		assert.Equal(t, 0.1, oldF)
		assert.Equal(t, 0.5, newF)
	}

	// Same value: no change, no event.
	b.Set("threat", Float(0.5), FlagNotifyOnChange, 0)
	assert.Len(t, events, 1)

	b.RemoveListener(id)
	b.Set("threat", Float(0.9), FlagNotifyOnChange, 0)
	assert.Len(t, events, 1)
}

func TestWildcardListener(t *testing.T) {
	b := New()
	var keys []string
	b.AddListener("*", func(key string, _, _ Value) {
		keys = append(keys, key)
	})
	b.Set("a", Int(1), FlagNotifyOnChange, 0)
	b.Set("b", Int(2), FlagNotifyOnChange, 0)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestListenerPanicIsolated(t *testing.T) {
	b := New()
	b.AddListener("k", func(string, Value, Value) {
		panic("listener bug")
	})
	// The write must stand despite the panic.
	assert.True(t, b.Set("k", Int(1), FlagNotifyOnChange, 0))
	assert.Equal(t, int64(1), b.GetInt("k", 0))
}

func TestSetManyGetMany(t *testing.T) {
	b := New()
	n := b.SetMany(map[string]Value{
		"x": Int(1),
		"y": Int(2),
	}, 0, 0)
	assert.Equal(t, 2, n)

	got := b.GetMany([]string{"x", "y", "missing"})
	assert.Len(t, got, 2)
}

func TestForEachPersistent(t *testing.T) {
	b := New()
	b.Set("keep", Int(1), FlagPersistent, 0)
	b.Set("skip", Int(2), 0, 0)
	b.Set("volatile", Int(3), FlagPersistent|FlagVolatile, 0)

	var keys []string
	b.ForEachPersistent(func(key string, _ Value, _ Flags) {
		keys = append(keys, key)
	})
	assert.Equal(t, []string{"keep"}, keys)
}

func TestClear(t *testing.T) {
	b := New()
	b.Set("a", Int(1), 0, 0)
	b.Set("b", Int(2), 0, 0)
	b.Clear()
	assert.Equal(t, 0, b.Len())

	// Listener registrations survive Clear.
	fired := false
	b.AddListener("a", func(string, Value, Value) { fired = true })
	b.Clear()
	b.Set("a", Int(1), FlagNotifyOnChange, 0)
	assert.True(t, fired)
}

func TestValueEqual(t *testing.T) {
	assert.True(t, Int(5).Equal(Int(5)))
	assert.False(t, Int(5).Equal(Int(6)))
	assert.False(t, Int(5).Equal(Float(5)))
	assert.True(t, Vec3(mathx.V3(1, 2, 3)).Equal(Vec3(mathx.V3(1, 2, 3))))
	assert.True(t, Opaque(7, []byte{1, 2}).Equal(Opaque(7, []byte{1, 2})))
	assert.False(t, Opaque(7, []byte{1, 2}).Equal(Opaque(8, []byte{1, 2})))
}
