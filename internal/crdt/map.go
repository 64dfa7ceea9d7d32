package crdt

import "github.com/crdtkit/mapcrdt/internal/vclock"

// Map is a composable CRDT with reset-remove semantics: if one replica
// removes an entry while another actor concurrently edits it, merging the
// two replicas leaves the entry in the map but drops every edit the
// remover had already observed.
type Map[K comparable, V Val[V, A, O], A vclock.Actor, O any] struct {
	clock    vclock.VClock[A]
	entries  map[K]entry[V, A, O]
	deferred map[string]deferredEntry[K, A]
}

// deferredEntry holds a remove clock that arrived before its causal
// prerequisites and the set of keys it applies to, keyed by clock.Key()
// since a VClock cannot itself be a Go map key.
type deferredEntry[K comparable, A vclock.Actor] struct {
	clock vclock.VClock[A]
	keys  map[K]struct{}
}

// New constructs an empty Map. Fresh nested values for unseen keys come
// from V's Default capability rather than a stored constructor, so a Map
// rebuilt by gob decoding behaves identically to one built here.
func New[K comparable, V Val[V, A, O], A vclock.Actor, O any]() *Map[K, V, A, O] {
	return &Map[K, V, A, O]{
		clock:    vclock.New[A](),
		entries:  make(map[K]entry[V, A, O]),
		deferred: make(map[string]deferredEntry[K, A]),
	}
}

// Default returns a fresh empty Map, satisfying Val so Maps can nest
// inside Maps. Safe on a nil receiver.
func (m *Map[K, V, A, O]) Default() *Map[K, V, A, O] {
	return New[K, V, A, O]()
}

// defaultVal produces the zero-state nested value for a key with no prior
// entry, via V's nil-receiver-safe Default.
func (m *Map[K, V, A, O]) defaultVal() V {
	var zero V
	return zero.Default()
}

// Len returns the number of entries in the Map.
func (m *Map[K, V, A, O]) Len() ReadCtx[A, int] {
	return ReadCtx[A, int]{
		AddClock: m.clock.Clone(),
		RmClock:  m.clock.Clone(),
		Val:      len(m.entries),
	}
}

// IsEmpty reports whether the Map has no entries.
func (m *Map[K, V, A, O]) IsEmpty() ReadCtx[A, bool] {
	return ReadCtx[A, bool]{
		AddClock: m.clock.Clone(),
		RmClock:  m.clock.Clone(),
		Val:      len(m.entries) == 0,
	}
}

// Get retrieves the value stored under key. The RmClock in the result is
// the entry's own clock if present, otherwise an empty clock, matching
// the reference implementation's per-entry remove-context derivation.
func (m *Map[K, V, A, O]) Get(key K) ReadCtx[A, GetResult[V]] {
	e, ok := m.entries[key]
	rmClock := vclock.New[A]()
	result := GetResult[V]{Found: ok}
	if ok {
		rmClock = e.clock.Clone()
		result.Val = e.val.Clone()
	}
	return ReadCtx[A, GetResult[V]]{
		AddClock: m.clock.Clone(),
		RmClock:  rmClock,
		Val:      result,
	}
}

// Keys returns every key currently present in the Map, in no particular
// order. This is a pure read like Get, provided for callers (e.g. the
// collection layer) that need to enumerate entries rather than look one
// up by key.
func (m *Map[K, V, A, O]) Keys() []K {
	keys := make([]K, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

// Update builds an Op that applies f's nested operation to the value
// under key (or a fresh value if key is absent). Update never mutates the
// Map; the op must be passed to Apply to take effect.
func (m *Map[K, V, A, O]) Update(key K, ctx AddCtx[A], f func(val V, ctx AddCtx[A]) O) Op[K, V, A, O] {
	var current V
	if e, ok := m.entries[key]; ok {
		current = e.val.Clone()
	} else {
		current = m.defaultVal()
	}
	return Op[K, V, A, O]{Kind: KindUp, Dot: ctx.Dot, Key: key, Nested: f(current, ctx)}
}

// Rm builds an Op that removes key under ctx's clock. Rm never mutates
// the Map; the op must be passed to Apply to take effect.
func (m *Map[K, V, A, O]) Rm(key K, ctx RmCtx[A]) Op[K, V, A, O] {
	return Op[K, V, A, O]{Kind: KindRm, Clock: ctx.Clock.Clone(), Key: key}
}

// Apply applies an operation record built by Update or Rm. Apply is
// idempotent: re-applying an Up op whose dot the Map has already observed
// is a no-op.
func (m *Map[K, V, A, O]) Apply(op Op[K, V, A, O]) {
	switch op.Kind {
	case KindNop:
		return
	case KindRm:
		m.applyRm(op.Key, op.Clock)
	case KindUp:
		if m.clock.Get(op.Dot.Actor) >= op.Dot.Counter {
			return
		}
		e, ok := m.entries[op.Key]
		if !ok {
			e = entry[V, A, O]{clock: vclock.New[A](), val: m.defaultVal()}
		}
		e.clock.Apply(op.Dot)
		e.val.Apply(op.Nested)
		m.entries[op.Key] = e

		m.clock.Apply(op.Dot)
		m.applyDeferred()
	}
}

// Merge joins other into m: a state-based CvRDT merge. Merge never
// mutates other.
func (m *Map[K, V, A, O]) Merge(other *Map[K, V, A, O]) {
	otherRemaining := make(map[K]entry[V, A, O], len(other.entries))
	for k, e := range other.entries {
		otherRemaining[k] = e
	}

	keep := make(map[K]entry[V, A, O], len(m.entries))

	for key, selfEntry := range m.entries {
		e := selfEntry.clone()
		otherEntry, inOther := other.entries[key]
		if !inOther {
			// other doesn't contain this entry because it either has
			// witnessed it and dropped it, or hasn't witnessed it.
			e.clock.Subtract(other.clock)
			if e.clock.IsEmpty() {
				// other has seen this entry and dropped it
				continue
			}
			deletedBy := other.clock.Clone()
			deletedBy.Subtract(e.clock)
			e.val.Truncate(deletedBy)
			keep[key] = e
			continue
		}

		// present in both, but that doesn't mean we shouldn't drop it.
		oe := otherEntry.clone()
		delete(otherRemaining, key)

		eClock := e.clock.Clone()
		oeClock := oe.clock.Clone()
		common := eClock.Intersection(oeClock)
		eClock.Subtract(common)
		oeClock.Subtract(common)
		eClock.Subtract(other.clock)
		oeClock.Subtract(m.clock)

		// perfectly possible that an item in both maps should be dropped
		common.Merge(eClock)
		common.Merge(oeClock)
		if common.IsEmpty() {
			continue
		}

		e.val.Merge(oe.val)
		deletedBy := e.clock.Clone()
		deletedBy.Merge(oe.clock)
		deletedBy.Subtract(common)
		e.val.Truncate(deletedBy)
		e.clock = common
		keep[key] = e
	}

	for key, otherEntry := range otherRemaining {
		e := otherEntry.clone()
		e.clock.Subtract(m.clock)
		if e.clock.IsEmpty() {
			continue
		}
		deletedBy := m.clock.Clone()
		deletedBy.Subtract(e.clock)
		e.val.Truncate(deletedBy)
		keep[key] = e
	}

	// Install the merged entries before discharging other's deferred
	// removes: a remove whose clock this map has already witnessed is
	// applied immediately, and it must prune the merged state, not the
	// about-to-be-replaced one.
	m.entries = keep

	otherDeferred := make([]deferredEntry[K, A], 0, len(other.deferred))
	for _, d := range other.deferred {
		otherDeferred = append(otherDeferred, d)
	}
	for _, d := range otherDeferred {
		for key := range d.keys {
			m.applyRm(key, d.clock)
		}
	}

	m.clock.Merge(other.clock)
	m.applyDeferred()
}

// Truncate implements the Causal projection: every entry's clock has
// clockToRemove subtracted; entries left with an empty clock are dropped,
// surviving entries recurse the truncation into their nested value.
func (m *Map[K, V, A, O]) Truncate(clockToRemove vclock.VClock[A]) {
	for key, e := range m.entries {
		e.clock.Subtract(clockToRemove)
		if e.clock.IsEmpty() {
			delete(m.entries, key)
			continue
		}
		e.val.Truncate(clockToRemove)
		m.entries[key] = e
	}

	deferred := make(map[string]deferredEntry[K, A], len(m.deferred))
	for _, d := range m.deferred {
		rmClock := d.clock.Clone()
		rmClock.Subtract(clockToRemove)
		if !rmClock.IsEmpty() {
			deferred[rmClock.Key()] = deferredEntry[K, A]{clock: rmClock, keys: d.keys}
		}
	}
	m.deferred = deferred

	m.clock.Subtract(clockToRemove)
}

// Clone returns a deep, independent copy of m, letting *Map itself satisfy
// Val so Maps can nest inside Maps.
func (m *Map[K, V, A, O]) Clone() *Map[K, V, A, O] {
	out := &Map[K, V, A, O]{
		clock:    m.clock.Clone(),
		entries:  make(map[K]entry[V, A, O], len(m.entries)),
		deferred: make(map[string]deferredEntry[K, A], len(m.deferred)),
	}
	for k, e := range m.entries {
		out.entries[k] = e.clone()
	}
	for ck, d := range m.deferred {
		keys := make(map[K]struct{}, len(d.keys))
		for key := range d.keys {
			keys[key] = struct{}{}
		}
		out.deferred[ck] = deferredEntry[K, A]{clock: d.clock.Clone(), keys: keys}
	}
	return out
}

// applyRm removes key under clock. If clock is not yet dominated by m's
// clock (it is concurrent with or ahead of what m has observed), the
// remove is deferred until m catches up.
func (m *Map[K, V, A, O]) applyRm(key K, clock vclock.VClock[A]) {
	switch clock.Compare(m.clock) {
	case vclock.Concurrent, vclock.Greater:
		ck := clock.Key()
		d, ok := m.deferred[ck]
		if !ok {
			d = deferredEntry[K, A]{clock: clock.Clone(), keys: make(map[K]struct{})}
		}
		d.keys[key] = struct{}{}
		m.deferred[ck] = d
	}

	e, ok := m.entries[key]
	if !ok {
		return
	}
	delete(m.entries, key)
	e.clock.Subtract(clock)
	if !e.clock.IsEmpty() {
		e.val.Truncate(clock)
		m.entries[key] = e
	}
}

// applyDeferred drains the deferred table and retries each held remove,
// running to a fixed point since retrying one remove can unblock another.
func (m *Map[K, V, A, O]) applyDeferred() {
	deferred := m.deferred
	m.deferred = make(map[string]deferredEntry[K, A])
	for _, d := range deferred {
		for key := range d.keys {
			m.applyRm(key, d.clock)
		}
	}
}
