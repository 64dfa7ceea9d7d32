package crdt

import "github.com/crdtkit/mapcrdt/internal/vclock"

// GCounterOp increments the counter by Delta under the actor that owns
// the AddCtx this op was built from.
type GCounterOp[A vclock.Actor] struct {
	Actor A
	Delta uint64
}

// GCounter is a grow-only counter: each actor tracks its own running
// total and the aggregate value is their sum. It satisfies Val so it can
// live inside a Map.
type GCounter[A vclock.Actor] struct {
	counts map[A]uint64
}

// NewGCounter constructs a zero counter.
func NewGCounter[A vclock.Actor]() *GCounter[A] {
	return &GCounter[A]{counts: make(map[A]uint64)}
}

// Default returns a fresh zero counter, satisfying Val's zero-state
// capability. Safe on a nil receiver.
func (g *GCounter[A]) Default() *GCounter[A] {
	return NewGCounter[A]()
}

// Value returns the sum of every actor's contribution.
func (g *GCounter[A]) Value() uint64 {
	var total uint64
	for _, c := range g.counts {
		total += c
	}
	return total
}

// Inc builds an op that increments the counter by delta under the actor
// in ctx.
func (g *GCounter[A]) Inc(delta uint64, ctx AddCtx[A]) GCounterOp[A] {
	return GCounterOp[A]{Actor: ctx.Dot.Actor, Delta: delta}
}

// Apply adds op.Delta to op.Actor's running total.
func (g *GCounter[A]) Apply(op GCounterOp[A]) {
	g.counts[op.Actor] += op.Delta
}

// Merge takes, per actor, the maximum of the two counters' totals — a
// monotonically growing tally never regresses under merge.
func (g *GCounter[A]) Merge(other *GCounter[A]) {
	for actor, count := range other.counts {
		if count > g.counts[actor] {
			g.counts[actor] = count
		}
	}
}

// Truncate is a no-op for GCounter: a grow-only counter has nothing for
// reset-remove to project away, it only ever accumulates.
func (g *GCounter[A]) Truncate(c vclock.VClock[A]) {}

// Clone returns an independent deep copy.
func (g *GCounter[A]) Clone() *GCounter[A] {
	out := &GCounter[A]{counts: make(map[A]uint64, len(g.counts))}
	for actor, count := range g.counts {
		out.counts[actor] = count
	}
	return out
}
