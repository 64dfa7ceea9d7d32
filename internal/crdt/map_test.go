package crdt

import (
	"math/rand"
	"testing"

	"github.com/crdtkit/mapcrdt/internal/vclock"
)

type testActor = uint8
type testKey = uint8

func newTestMVRegMap() *Map[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]] {
	return New[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]]()
}

// TestOpExchangeConverges: two replicas apply a disjoint,
// partially-causally-dependent stream of ops in different orders and must
// converge to identical state. The remove of key 9 reaches m2 before the
// update it tombstones, exercising the deferred-remove path.
func TestOpExchangeConverges(t *testing.T) {
	type innerOp = Op[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]]
	type outerOp = Op[testKey, *Map[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]], testActor, innerOp]

	newOuter := func() *Map[testKey, *Map[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]], testActor, innerOp] {
		return New[testKey, *Map[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]], testActor, innerOp]()
	}

	opActor1 := outerOp{
		Kind: KindUp,
		Dot:  vclock.Dot[testActor]{Actor: 0, Counter: 3},
		Key:  9,
		Nested: innerOp{
			Kind: KindUp,
			Dot:  vclock.Dot[testActor]{Actor: 0, Counter: 3},
			Key:  0,
			Nested: MVRegOp[uint8, testActor]{
				Kind:  MVRegPut,
				Clock: vclock.FromDot(vclock.Dot[testActor]{Actor: 0, Counter: 3}),
				Val:   0,
			},
		},
	}
	op1Actor2 := outerOp{
		Kind: KindUp,
		Dot:  vclock.Dot[testActor]{Actor: 1, Counter: 1},
		Key:  9,
		Nested: innerOp{
			Kind:  KindRm,
			Clock: vclock.FromDot(vclock.Dot[testActor]{Actor: 1, Counter: 1}),
			Key:   0,
		},
	}
	op2Actor2 := outerOp{
		Kind:  KindRm,
		Clock: vclock.FromDot(vclock.Dot[testActor]{Actor: 1, Counter: 2}),
		Key:   9,
	}

	m1 := newOuter()
	m2 := newOuter()

	m1.Apply(opActor1)
	if m1.clock.Get(0) != 3 {
		t.Fatalf("m1 clock should show actor 0 at 3, got %d", m1.clock.Get(0))
	}

	m2.Apply(op1Actor2)
	m2.Apply(op2Actor2)
	if m2.clock.Get(1) != 1 {
		t.Fatalf("m2 clock should show actor 1 at 1 (the rm of key 9 is deferred), got %d", m2.clock.Get(1))
	}
	if _, ok := m2.entries[9]; ok {
		t.Fatal("key 9 should have been removed in m2")
	}
	if len(m2.deferred) != 1 {
		t.Fatalf("expected one deferred remove in m2, got %d", len(m2.deferred))
	}

	// m1 <- m2
	m1.Apply(op1Actor2)
	m1.Apply(op2Actor2)

	// m2 <- m1
	m2.Apply(opActor1)

	if len(m1.entries) != len(m2.entries) {
		t.Fatalf("m1 and m2 did not converge: %d vs %d entries", len(m1.entries), len(m2.entries))
	}
	if m1.clock.Compare(m2.clock) != vclock.Equal {
		t.Fatalf("m1 and m2 clocks did not converge: %v vs %v", m1.clock, m2.clock)
	}
}

// TestMergeDropsDominatedDot: merging a replica that has already observed
// (and removed) one concurrent ORSet addition must leave only the
// surviving addition behind, in both the outer entry clock and the nested
// ORSet.
func TestMergeDropsDominatedDot(t *testing.T) {
	newSetMap := func() *Map[testKey, *ORSet[uint8, testActor], testActor, ORSetOp[uint8, testActor]] {
		return New[testKey, *ORSet[uint8, testActor], testActor, ORSetOp[uint8, testActor]]()
	}

	m1 := newSetMap()
	m1.clock = vclock.FromDot(vclock.Dot[testActor]{Actor: 75, Counter: 1})

	m2 := newSetMap()
	m2.clock = vclock.VClock[testActor]{75: 1, 93: 1}
	nested := NewORSet[uint8, testActor]()
	nested.clock = vclock.VClock[testActor]{75: 1, 93: 1}
	nested.entries[1] = vclock.FromDot(vclock.Dot[testActor]{Actor: 75, Counter: 1})
	nested.entries[2] = vclock.FromDot(vclock.Dot[testActor]{Actor: 93, Counter: 1})
	m2.entries[101] = entry[*ORSet[uint8, testActor], testActor, ORSetOp[uint8, testActor]]{
		clock: vclock.VClock[testActor]{75: 1, 93: 1},
		val:   nested,
	}

	m1.Merge(m2)

	if m1.clock.Compare(vclock.VClock[testActor]{75: 1, 93: 1}) != vclock.Equal {
		t.Fatalf("expected merged clock {75:1,93:1}, got %v", m1.clock)
	}
	e, ok := m1.entries[101]
	if !ok {
		t.Fatal("expected key 101 to survive the merge")
	}
	if e.clock.Compare(vclock.FromDot(vclock.Dot[testActor]{Actor: 93, Counter: 1})) != vclock.Equal {
		t.Fatalf("expected surviving entry clock {93:1}, got %v", e.clock)
	}
	if e.val.Contains(1) {
		t.Fatal("element 1 should have been dropped: m1 had already observed dot 75:1 without it")
	}
	if !e.val.Contains(2) {
		t.Fatal("element 2 should survive: only introduced under dot 93:1, which m1 had not observed")
	}

	m2Clone := m2.Clone()
	m2Clone.Merge(m1)
	if m1.clock.Compare(m2Clone.clock) != vclock.Equal {
		t.Fatal("merge must be commutative")
	}
}

func TestApplyIdempotent(t *testing.T) {
	m := newTestMVRegMap()
	ctx := m.Len()
	op := m.Update(1, ctx.DeriveAddCtx(42), func(v *MVReg[uint8, testActor], ctx AddCtx[testActor]) MVRegOp[uint8, testActor] {
		return v.Put(7, ctx)
	})
	m.Apply(op)
	m.Apply(op)
	m.Apply(op)

	got := m.Get(1)
	if !got.Val.Found {
		t.Fatal("expected key 1 to be present")
	}
	if len(got.Val.Val.vals) != 1 {
		t.Fatalf("replaying the same op must not duplicate the write, got %d concurrent vals", len(got.Val.Val.vals))
	}
}

func TestConcurrentAddSurvivesRemove(t *testing.T) {
	m1 := newTestMVRegMap()
	m2 := newTestMVRegMap()

	addCtx := m1.Len().DeriveAddCtx(1)
	addOp := m1.Update(5, addCtx, func(v *MVReg[uint8, testActor], ctx AddCtx[testActor]) MVRegOp[uint8, testActor] {
		return v.Put(100, ctx)
	})
	m1.Apply(addOp)
	m2.Apply(addOp)

	rmCtx := m2.Get(5).DeriveRmCtx()
	rmOp := m2.Rm(5, rmCtx)
	m2.Apply(rmOp)

	concurrentCtx := m1.Get(5).DeriveAddCtx(2)
	editOp := m1.Update(5, concurrentCtx, func(v *MVReg[uint8, testActor], ctx AddCtx[testActor]) MVRegOp[uint8, testActor] {
		return v.Put(200, ctx)
	})
	m1.Apply(editOp)

	m2.Merge(m1)

	got := m2.Get(5)
	if !got.Val.Found {
		t.Fatal("key 5 must survive the merge: actor 2's concurrent edit was not observed by the remover")
	}
	vals := got.Val.Val.Read().Val
	if len(vals) != 1 || vals[0] != 200 {
		t.Fatalf("expected only the concurrent edit (200) to survive, got %v", vals)
	}
}

// TestObservedRemoveConvergesToAbsent: m1 adds a key, m2 removes it under
// a clock covering that add without ever applying the add itself (the
// remove defers on m2). After merging both ways the key is absent on both
// replicas.
func TestObservedRemoveConvergesToAbsent(t *testing.T) {
	m1 := newTestMVRegMap()
	m2 := newTestMVRegMap()

	addOp := m1.Update(0, m1.Len().DeriveAddCtx(1), func(v *MVReg[uint8, testActor], ctx AddCtx[testActor]) MVRegOp[uint8, testActor] {
		return v.Put(1, ctx)
	})
	m1.Apply(addOp)

	rmOp := m1.Rm(0, m1.Get(0).DeriveRmCtx())
	m2.Apply(rmOp)
	if len(m2.deferred) != 1 {
		t.Fatalf("the remove's clock is ahead of m2's, it must defer; got %d deferred entries", len(m2.deferred))
	}

	merged1 := m1.Clone()
	merged1.Merge(m2)
	merged2 := m2.Clone()
	merged2.Merge(m1)

	if merged1.Get(0).Val.Found {
		t.Fatal("key 0 must be absent after m1 absorbs m2's remove")
	}
	if merged2.Get(0).Val.Found {
		t.Fatal("key 0 must be absent after m2's deferred remove discharges against m1's state")
	}
	if len(merged1.deferred) != 0 || len(merged2.deferred) != 0 {
		t.Fatal("both deferred tables must be empty once the remove's clock is dominated")
	}
	if merged1.clock.Compare(merged2.clock) != vclock.Equal {
		t.Fatalf("replicas did not converge: %v vs %v", merged1.clock, merged2.clock)
	}
}

// TestDeepNestingResetRemove: removing an outer key resets the inner map
// along the remover's observed clock, while an inner write concurrent
// with the remove survives with only its own dot.
func TestDeepNestingResetRemove(t *testing.T) {
	type innerOp = Op[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]]
	type outerMap = *Map[testKey, *Map[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]], testActor, innerOp]
	newOuter := func() outerMap {
		return New[testKey, *Map[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]], testActor, innerOp]()
	}

	writeField := func(m outerMap, actor testActor, outerKey, innerKey, val uint8) {
		addCtx := m.Get(outerKey).DeriveAddCtx(actor)
		op := m.Update(outerKey, addCtx, func(inner *Map[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]], ctx AddCtx[testActor]) innerOp {
			return inner.Update(innerKey, ctx, func(reg *MVReg[uint8, testActor], c AddCtx[testActor]) MVRegOp[uint8, testActor] {
				return reg.Put(val, c)
			})
		})
		m.Apply(op)
	}

	m1 := newOuter()
	writeField(m1, 1, 7, 2, 10)

	// m2 observes the write, then removes the outer key.
	m2 := newOuter()
	m2.Merge(m1)
	rmOp := m2.Rm(7, m2.Get(7).DeriveRmCtx())
	m2.Apply(rmOp)
	if m2.Get(7).Val.Found {
		t.Fatal("outer key 7 must be gone on the remover")
	}

	// Concurrently, a second actor writes another inner key on m1 under a
	// dot the remover never observed.
	writeField(m1, 3, 7, 3, 20)

	m1.Merge(m2)
	m2.Merge(m1)

	for name, m := range map[string]outerMap{"m1": m1, "m2": m2} {
		got := m.Get(7)
		if !got.Val.Found {
			t.Fatalf("%s: outer key 7 must survive, the concurrent inner write was not observed by the remover", name)
		}
		if got.RmClock.Compare(vclock.FromDot(vclock.Dot[testActor]{Actor: 3, Counter: 1})) != vclock.Equal {
			t.Fatalf("%s: surviving entry clock = %v, want only the concurrent writer's dot {3:1}", name, got.RmClock)
		}
		inner := got.Val.Val
		if inner.Get(2).Val.Found {
			t.Fatalf("%s: inner key 2 was fully observed by the remover and must be reset away", name)
		}
		fresh := inner.Get(3)
		if !fresh.Val.Found {
			t.Fatalf("%s: inner key 3 was written concurrently with the remove and must survive", name)
		}
		if vals := fresh.Val.Val.Read().Val; len(vals) != 1 || vals[0] != 20 {
			t.Fatalf("%s: inner key 3 = %v, want [20]", name, vals)
		}
	}
	if m1.clock.Compare(m2.clock) != vclock.Equal {
		t.Fatalf("replicas did not converge: %v vs %v", m1.clock, m2.clock)
	}
}

func TestDeepNesting(t *testing.T) {
	type innerOp = Op[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]]
	outer := New[testKey, *Map[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]], testActor, innerOp]()

	addCtx := outer.Len().DeriveAddCtx(1)
	op := outer.Update(1, addCtx, func(v *Map[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]], ctx AddCtx[testActor]) innerOp {
		innerAddCtx := v.Len().DeriveAddCtx(ctx.Dot.Actor)
		return v.Update(2, innerAddCtx, func(reg *MVReg[uint8, testActor], c AddCtx[testActor]) MVRegOp[uint8, testActor] {
			return reg.Put(42, c)
		})
	})
	outer.Apply(op)

	got := outer.Get(1)
	if !got.Val.Found {
		t.Fatal("expected outer key 1 present")
	}
	inner := got.Val.Val.Get(2)
	if !inner.Val.Found {
		t.Fatal("expected nested key 2 present")
	}
	if inner.Val.Val.Read().Val[0] != 42 {
		t.Fatalf("expected nested value 42, got %v", inner.Val.Val.Read().Val)
	}
}

func TestThreeWayMergeAssociative(t *testing.T) {
	m1 := newTestMVRegMap()
	m2 := newTestMVRegMap()
	m3 := newTestMVRegMap()

	op1 := m1.Update(1, m1.Len().DeriveAddCtx(1), func(v *MVReg[uint8, testActor], ctx AddCtx[testActor]) MVRegOp[uint8, testActor] {
		return v.Put(10, ctx)
	})
	m1.Apply(op1)

	op2 := m2.Update(2, m2.Len().DeriveAddCtx(2), func(v *MVReg[uint8, testActor], ctx AddCtx[testActor]) MVRegOp[uint8, testActor] {
		return v.Put(20, ctx)
	})
	m2.Apply(op2)

	op3 := m3.Update(3, m3.Len().DeriveAddCtx(3), func(v *MVReg[uint8, testActor], ctx AddCtx[testActor]) MVRegOp[uint8, testActor] {
		return v.Put(30, ctx)
	})
	m3.Apply(op3)

	left := m1.Clone()
	left.Merge(m2)
	left.Merge(m3)

	right := m3.Clone()
	right.Merge(m2)
	right.Merge(m1)

	if left.Len().Val != right.Len().Val {
		t.Fatalf("associativity broken: left has %d entries, right has %d", left.Len().Val, right.Len().Val)
	}
	if left.clock.Compare(right.clock) != vclock.Equal {
		t.Fatal("associativity broken: clocks diverge depending on merge order")
	}
	for _, key := range []testKey{1, 2, 3} {
		if !left.Get(key).Val.Found || !right.Get(key).Val.Found {
			t.Fatalf("key %d missing from one merge order's result", key)
		}
	}
}

// assertClockDominatesEntries checks the map-wide clock dominates every
// entry's clock, the structural invariant every op and merge must uphold.
func assertClockDominatesEntries(t *testing.T, name string, m *Map[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]]) {
	t.Helper()
	for key, e := range m.entries {
		if !m.clock.Dominates(e.clock) {
			t.Fatalf("%s: map clock %v does not dominate entry %d's clock %v", name, m.clock, key, e.clock)
		}
	}
}

// TestOpMergeEquivalence: splitting one op sequence across two replicas
// and merging must produce the same state as applying the whole sequence
// to a single replica.
func TestOpMergeEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const steps = 60
	const keySpace = 4

	src := newTestMVRegMap()
	ops := make([]Op[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]], 0, steps)
	for i := 0; i < steps; i++ {
		key := testKey(rng.Intn(keySpace))
		if src.Get(key).Val.Found && rng.Intn(3) == 0 {
			op := src.Rm(key, src.Get(key).DeriveRmCtx())
			src.Apply(op)
			ops = append(ops, op)
			continue
		}
		ctx := src.Get(key).DeriveAddCtx(1)
		op := src.Update(key, ctx, func(v *MVReg[uint8, testActor], c AddCtx[testActor]) MVRegOp[uint8, testActor] {
			return v.Put(uint8(rng.Intn(256)), c)
		})
		src.Apply(op)
		ops = append(ops, op)
	}

	full := newTestMVRegMap()
	left := newTestMVRegMap()
	right := newTestMVRegMap()
	for i, op := range ops {
		full.Apply(op)
		if i%2 == 0 {
			left.Apply(op)
		} else {
			right.Apply(op)
		}
	}
	left.Merge(right)

	if left.clock.Compare(full.clock) != vclock.Equal {
		t.Fatalf("merged split replicas' clock %v != single replica's %v", left.clock, full.clock)
	}
	if len(left.entries) != len(full.entries) {
		t.Fatalf("merged split replicas have %d entries, single replica has %d", len(left.entries), len(full.entries))
	}
	for key := testKey(0); key < keySpace; key++ {
		a, b := full.Get(key), left.Get(key)
		if a.Val.Found != b.Val.Found {
			t.Fatalf("key %d presence diverged: %v vs %v", key, a.Val.Found, b.Val.Found)
		}
		if a.Val.Found && !equalValueSets(a.Val.Val.Read().Val, b.Val.Val.Read().Val) {
			t.Fatalf("key %d value set diverged: %v vs %v", key, a.Val.Val.Read().Val, b.Val.Val.Read().Val)
		}
	}
	assertClockDominatesEntries(t, "full", full)
	assertClockDominatesEntries(t, "merged", left)
}

func TestTombstonePruning(t *testing.T) {
	m1 := newTestMVRegMap()
	addCtx := m1.Len().DeriveAddCtx(1)
	addOp := m1.Update(1, addCtx, func(v *MVReg[uint8, testActor], ctx AddCtx[testActor]) MVRegOp[uint8, testActor] {
		return v.Put(7, ctx)
	})
	m1.Apply(addOp)

	rmCtx := m1.Get(1).DeriveRmCtx()
	rmOp := m1.Rm(1, rmCtx)
	m1.Apply(rmOp)

	if _, ok := m1.entries[1]; ok {
		t.Fatal("removed key must not remain as a live entry")
	}

	m2 := newTestMVRegMap()
	m2.Merge(m1)
	if _, ok := m2.entries[1]; ok {
		t.Fatal("a fresh replica merging a tombstoned map must not resurrect the key")
	}
}

// TestMapMergeSelfIdempotent: merging a replica with an identical copy of
// itself must be a no-op.
func TestMapMergeSelfIdempotent(t *testing.T) {
	m := newTestMVRegMap()

	op1 := m.Update(1, m.Len().DeriveAddCtx(1), func(v *MVReg[uint8, testActor], ctx AddCtx[testActor]) MVRegOp[uint8, testActor] {
		return v.Put(9, ctx)
	})
	m.Apply(op1)

	op2 := m.Update(2, m.Get(2).DeriveAddCtx(1), func(v *MVReg[uint8, testActor], ctx AddCtx[testActor]) MVRegOp[uint8, testActor] {
		return v.Put(10, ctx)
	})
	m.Apply(op2)

	before := m.Clone()
	m.Merge(m)

	if m.clock.Compare(before.clock) != vclock.Equal {
		t.Fatalf("self-merge changed the map's clock: %v vs %v", before.clock, m.clock)
	}
	if len(m.entries) != len(before.entries) {
		t.Fatalf("self-merge changed the entry count: %d vs %d", len(before.entries), len(m.entries))
	}
	for _, key := range []testKey{1, 2} {
		got := m.Get(key)
		want := before.Get(key)
		if got.Val.Found != want.Val.Found {
			t.Fatalf("self-merge changed presence of key %d", key)
		}
		if !got.Val.Found {
			continue
		}
		gotVals, wantVals := got.Val.Val.Read().Val, want.Val.Val.Read().Val
		if len(gotVals) != len(wantVals) || gotVals[0] != wantVals[0] {
			t.Fatalf("self-merge changed value of key %d: got %v, want %v", key, gotVals, wantVals)
		}
	}
}

// equalValueSets compares two MVReg read results ignoring order, since
// concurrent values have no defined ordering.
func equalValueSets(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := sortedUint8(a), sortedUint8(b)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// TestRandomOpSequenceReplayIdempotent is the randomized counterpart to
// TestApplyIdempotent: a pseudo-random, causally-consistent op sequence is
// recorded against one replica, then replayed twice in full against a
// second, fresh replica. Apply's per-op idempotence should make the second
// full pass a no-op, so the replica must end up identical to a replica that
// only saw the sequence once.
func TestRandomOpSequenceReplayIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const steps = 200
	const keySpace = 6

	src := newTestMVRegMap()
	ops := make([]Op[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]], 0, steps)

	for i := 0; i < steps; i++ {
		key := testKey(rng.Intn(keySpace))
		if src.Get(key).Val.Found && rng.Intn(3) == 0 {
			op := src.Rm(key, src.Get(key).DeriveRmCtx())
			src.Apply(op)
			ops = append(ops, op)
			continue
		}
		val := uint8(rng.Intn(256))
		ctx := src.Get(key).DeriveAddCtx(1)
		op := src.Update(key, ctx, func(v *MVReg[uint8, testActor], c AddCtx[testActor]) MVRegOp[uint8, testActor] {
			return v.Put(val, c)
		})
		src.Apply(op)
		ops = append(ops, op)
	}

	replica := newTestMVRegMap()
	for _, op := range ops {
		replica.Apply(op)
	}
	once := replica.Clone()

	for _, op := range ops {
		replica.Apply(op)
	}

	if replica.clock.Compare(once.clock) != vclock.Equal {
		t.Fatalf("replaying the op sequence a second time changed the clock: %v vs %v", once.clock, replica.clock)
	}
	if len(replica.entries) != len(once.entries) {
		t.Fatalf("replaying the op sequence a second time changed the entry count: %d vs %d", len(once.entries), len(replica.entries))
	}
	for key := testKey(0); key < keySpace; key++ {
		a, b := once.Get(key), replica.Get(key)
		if a.Val.Found != b.Val.Found {
			t.Fatalf("key %d presence diverged after replay: %v vs %v", key, a.Val.Found, b.Val.Found)
		}
		if a.Val.Found && !equalValueSets(a.Val.Val.Read().Val, b.Val.Val.Read().Val) {
			t.Fatalf("key %d value set diverged after replay: %v vs %v", key, a.Val.Val.Read().Val, b.Val.Val.Read().Val)
		}
	}
}

// TestRandomThreeWayMergeAssociative generalizes TestThreeWayMergeAssociative
// from fixed, hand-picked single-key states to three replicas each built from
// a pseudo-random, causally-consistent mix of inserts and removes, merged in
// several different orders. All orders must converge to the same state.
func TestRandomThreeWayMergeAssociative(t *testing.T) {
	const steps = 30
	const keySpace = 5

	build := func(seed int64, actor testActor) *Map[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]] {
		rng := rand.New(rand.NewSource(seed))
		m := newTestMVRegMap()
		for i := 0; i < steps; i++ {
			key := testKey(rng.Intn(keySpace))
			if m.Get(key).Val.Found && rng.Intn(3) == 0 {
				m.Apply(m.Rm(key, m.Get(key).DeriveRmCtx()))
				continue
			}
			val := uint8(rng.Intn(256))
			ctx := m.Get(key).DeriveAddCtx(actor)
			m.Apply(m.Update(key, ctx, func(v *MVReg[uint8, testActor], c AddCtx[testActor]) MVRegOp[uint8, testActor] {
				return v.Put(val, c)
			}))
		}
		return m
	}

	m1 := build(1, 1)
	m2 := build(2, 2)
	m3 := build(3, 3)

	type trio = [3]*Map[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]]
	orderings := []trio{
		{m1, m2, m3},
		{m3, m1, m2},
		{m2, m3, m1},
	}

	results := make([]*Map[testKey, *MVReg[uint8, testActor], testActor, MVRegOp[uint8, testActor]], 0, len(orderings))
	for _, order := range orderings {
		acc := order[0].Clone()
		acc.Merge(order[1])
		acc.Merge(order[2])
		results = append(results, acc)
	}

	for i := 1; i < len(results); i++ {
		if results[i].clock.Compare(results[0].clock) != vclock.Equal {
			t.Fatalf("merge order %d produced a different clock than order 0: %v vs %v", i, results[i].clock, results[0].clock)
		}
		if len(results[i].entries) != len(results[0].entries) {
			t.Fatalf("merge order %d produced a different entry count than order 0: %d vs %d", i, len(results[i].entries), len(results[0].entries))
		}
		for key := testKey(0); key < keySpace; key++ {
			a, b := results[0].Get(key), results[i].Get(key)
			if a.Val.Found != b.Val.Found {
				t.Fatalf("merge order %d: key %d presence diverged", i, key)
			}
			if a.Val.Found && !equalValueSets(a.Val.Val.Read().Val, b.Val.Val.Read().Val) {
				t.Fatalf("merge order %d: key %d value set diverged: %v vs %v", i, key, a.Val.Val.Read().Val, b.Val.Val.Read().Val)
			}
		}
	}
}
