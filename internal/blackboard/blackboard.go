// Package blackboard implements the per-agent typed key/value store
// used as the data channel between the sensory, decision and action
// layers. Entries carry flags and optional expiration; readers never
// observe a value past its expiration time.
package blackboard

import (
	"log/slog"
	"sync"
	"time"
)

// Flags is the per-entry flag bitset.
type Flags uint16

const (
	FlagPersistent     Flags = 1 << iota // survives agent serialization
	FlagVolatile                         // never serialized
	FlagReadOnly                         // writes after the first fail
	FlagNotifyOnChange                   // fires listeners on write
	FlagAutoExpire                       // swept by ExpireEntries
	FlagShared                           // visible to debug/inspection tools
	FlagDebugVisible
)

// Has reports whether all bits in f are set.
func (fl Flags) Has(f Flags) bool { return fl&f == f }

type entry struct {
	value       Value
	createdAt   time.Time
	expiresAt   time.Time // zero = never
	flags       Flags
	description string
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// ChangeFunc observes a key change: (key, old, new). old has
// KindNone when the key was absent.
type ChangeFunc func(key string, old, new Value)

type listener struct {
	id  uint64
	key string // "*" matches every key
	fn  ChangeFunc
}

// Stats counts blackboard outcomes for metrics export.
type Stats struct {
	Hits       uint64
	Misses     uint64
	TypeErrors uint64
	Expired    uint64
	Writes     uint64
	Rejected   uint64 // read-only write attempts
}

// Blackboard is owned by one agent. All methods are safe for
// concurrent use, but the engine only touches it from the
// coordinator tick and the owning agent's sensory pass.
type Blackboard struct {
	mu      sync.RWMutex
	entries map[string]*entry

	listMu    sync.Mutex
	listeners []listener
	nextLst   uint64

	stats Stats

	// now is swappable for tests.
	now func() time.Time
}

// New creates an empty blackboard.
func New() *Blackboard {
	return &Blackboard{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// SetClock replaces the time source (tests only).
func (b *Blackboard) SetClock(now func() time.Time) { b.now = now }

// Set stores a value under key. ttl <= 0 means no expiration.
// Returns false if a ReadOnly entry already exists for the key.
// NotifyOnChange listeners fire after the write lock is released.
func (b *Blackboard) Set(key string, v Value, flags Flags, ttl time.Duration) bool {
	now := b.now()

	b.mu.Lock()
	if prev, ok := b.entries[key]; ok && !prev.expired(now) && prev.flags.Has(FlagReadOnly) {
		b.stats.Rejected++
		b.mu.Unlock()
		return false
	}
	var old Value
	if prev, ok := b.entries[key]; ok && !prev.expired(now) {
		old = prev.value
	}
	e := &entry{value: v, createdAt: now, flags: flags}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
		e.flags |= FlagAutoExpire
	}
	b.entries[key] = e
	b.stats.Writes++
	notify := flags.Has(FlagNotifyOnChange) && !old.Equal(v)
	b.mu.Unlock()

	if notify {
		b.fire(key, old, v)
	}
	return true
}

// SetDescription attaches human-readable metadata to an entry.
func (b *Blackboard) SetDescription(key, desc string) {
	b.mu.Lock()
	if e, ok := b.entries[key]; ok {
		e.description = desc
	}
	b.mu.Unlock()
}

// get is the common read path: counters, expiration and type check.
func (b *Blackboard) get(key string, want Kind) (Value, bool) {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		b.stats.Misses++
		return Value{}, false
	}
	if e.expired(now) {
		delete(b.entries, key)
		b.stats.Expired++
		b.stats.Misses++
		return Value{}, false
	}
	if e.value.kind != want {
		b.stats.TypeErrors++
		return Value{}, false
	}
	b.stats.Hits++
	return e.value, true
}

// GetBool returns the stored bool or def on miss/expiry/type error.
func (b *Blackboard) GetBool(key string, def bool) bool {
	if v, ok := b.get(key, KindBool); ok {
		return v.b
	}
	return def
}

// GetInt returns the stored int or def on miss/expiry/type error.
func (b *Blackboard) GetInt(key string, def int64) int64 {
	if v, ok := b.get(key, KindInt); ok {
		return v.i
	}
	return def
}

// GetFloat returns the stored float or def on miss/expiry/type error.
func (b *Blackboard) GetFloat(key string, def float64) float64 {
	if v, ok := b.get(key, KindFloat); ok {
		return v.f
	}
	return def
}

// GetString returns the stored string or def on miss/expiry/type error.
func (b *Blackboard) GetString(key string, def string) string {
	if v, ok := b.get(key, KindString); ok {
		return v.s
	}
	return def
}

// GetVec3 returns the stored vector or def on miss/expiry/type error.
func (b *Blackboard) GetVec3(key string, def Value) Value {
	if v, ok := b.get(key, KindVec3); ok {
		return v
	}
	return def
}

// GetHandle returns the stored entity handle or def.
func (b *Blackboard) GetHandle(key string, def uint64) uint64 {
	if v, ok := b.get(key, KindHandle); ok {
		return v.handle
	}
	return def
}

// Get returns the raw value and whether it exists unexpired.
// No type check is applied.
func (b *Blackboard) Get(key string) (Value, bool) {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		b.stats.Misses++
		return Value{}, false
	}
	if e.expired(now) {
		delete(b.entries, key)
		b.stats.Expired++
		b.stats.Misses++
		return Value{}, false
	}
	b.stats.Hits++
	return e.value, true
}

// Has reports whether key exists and is not expired.
func (b *Blackboard) Has(key string) bool {
	now := b.now()
	b.mu.RLock()
	e, ok := b.entries[key]
	alive := ok && !e.expired(now)
	b.mu.RUnlock()
	return alive
}

// Remove deletes a key. Returns whether it existed. ReadOnly entries
// can be removed (only overwriting is forbidden).
func (b *Blackboard) Remove(key string) bool {
	b.mu.Lock()
	_, ok := b.entries[key]
	delete(b.entries, key)
	b.mu.Unlock()
	return ok
}

// SetMany stores several values with shared flags and ttl. Returns
// the number of successful writes.
func (b *Blackboard) SetMany(values map[string]Value, flags Flags, ttl time.Duration) int {
	n := 0
	for k, v := range values {
		if b.Set(k, v, flags, ttl) {
			n++
		}
	}
	return n
}

// GetMany returns the live values for the requested keys.
func (b *Blackboard) GetMany(keys []string) map[string]Value {
	out := make(map[string]Value, len(keys))
	for _, k := range keys {
		if v, ok := b.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// ExpireEntries removes every entry past its expiration at now.
// Called once per tick before behavior evaluation so the tree never
// reads stale values. Returns the number removed.
func (b *Blackboard) ExpireEntries(now time.Time) int {
	b.mu.Lock()
	removed := 0
	for k, e := range b.entries {
		if e.expired(now) {
			delete(b.entries, k)
			removed++
		}
	}
	b.stats.Expired += uint64(removed)
	b.mu.Unlock()
	return removed
}

// Clear removes every entry. Listener registrations survive.
func (b *Blackboard) Clear() {
	b.mu.Lock()
	b.entries = make(map[string]*entry)
	b.mu.Unlock()
}

// Len returns the number of live entries.
func (b *Blackboard) Len() int {
	now := b.now()
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, e := range b.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Stats returns a copy of the counters.
func (b *Blackboard) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// AddListener registers fn for changes to key ("*" for all keys).
func (b *Blackboard) AddListener(key string, fn ChangeFunc) uint64 {
	b.listMu.Lock()
	defer b.listMu.Unlock()
	b.nextLst++
	id := b.nextLst
	b.listeners = append(b.listeners, listener{id: id, key: key, fn: fn})
	return id
}

// RemoveListener drops a registration by id.
func (b *Blackboard) RemoveListener(id uint64) {
	b.listMu.Lock()
	defer b.listMu.Unlock()
	for i, l := range b.listeners {
		if l.id == id {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

// fire invokes matching listeners. Panics in listener code are
// isolated and logged; the write that caused the event stands.
func (b *Blackboard) fire(key string, old, new Value) {
	b.listMu.Lock()
	matched := make([]ChangeFunc, 0, 2)
	for _, l := range b.listeners {
		if l.key == "*" || l.key == key {
			matched = append(matched, l.fn)
		}
	}
	b.listMu.Unlock()

	for _, fn := range matched {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("blackboard listener panicked", "key", key, "panic", r)
				}
			}()
			fn(key, old, new)
		}()
	}
}

// ForEachPersistent visits entries flagged Persistent (serialization
// support). Volatile entries are skipped even if also Persistent.
func (b *Blackboard) ForEachPersistent(fn func(key string, v Value, flags Flags)) {
	now := b.now()
	b.mu.RLock()
	type kv struct {
		k string
		v Value
		f Flags
	}
	snapshot := make([]kv, 0, len(b.entries))
	for k, e := range b.entries {
		if e.flags.Has(FlagPersistent) && !e.flags.Has(FlagVolatile) && !e.expired(now) {
			snapshot = append(snapshot, kv{k, e.value, e.flags})
		}
	}
	b.mu.RUnlock()

	for _, p := range snapshot {
		fn(p.k, p.v, p.f)
	}
}
