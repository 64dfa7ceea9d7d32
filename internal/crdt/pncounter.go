package crdt

import "github.com/crdtkit/mapcrdt/internal/vclock"

// PNCounterKind tags whether a PNCounterOp increments or decrements.
type PNCounterKind int

const (
	PNCounterInc PNCounterKind = iota
	PNCounterDec
)

// PNCounterOp carries a signed delta for the actor in ctx.
type PNCounterOp[A vclock.Actor] struct {
	Kind  PNCounterKind
	Actor A
	Delta uint64
}

// PNCounter supports both increment and decrement by pairing two
// GCounters; Value is their difference.
type PNCounter[A vclock.Actor] struct {
	pos *GCounter[A]
	neg *GCounter[A]
}

// NewPNCounter constructs a zero counter.
func NewPNCounter[A vclock.Actor]() *PNCounter[A] {
	return &PNCounter[A]{pos: NewGCounter[A](), neg: NewGCounter[A]()}
}

// Default returns a fresh zero counter, satisfying Val's zero-state
// capability. Safe on a nil receiver.
func (p *PNCounter[A]) Default() *PNCounter[A] {
	return NewPNCounter[A]()
}

// Value returns positive total minus negative total.
func (p *PNCounter[A]) Value() int64 {
	return int64(p.pos.Value()) - int64(p.neg.Value())
}

// Inc builds an op that increases the counter by delta.
func (p *PNCounter[A]) Inc(delta uint64, ctx AddCtx[A]) PNCounterOp[A] {
	return PNCounterOp[A]{Kind: PNCounterInc, Actor: ctx.Dot.Actor, Delta: delta}
}

// Dec builds an op that decreases the counter by delta.
func (p *PNCounter[A]) Dec(delta uint64, ctx AddCtx[A]) PNCounterOp[A] {
	return PNCounterOp[A]{Kind: PNCounterDec, Actor: ctx.Dot.Actor, Delta: delta}
}

// Apply routes op to the positive or negative half.
func (p *PNCounter[A]) Apply(op PNCounterOp[A]) {
	switch op.Kind {
	case PNCounterInc:
		p.pos.Apply(GCounterOp[A]{Actor: op.Actor, Delta: op.Delta})
	case PNCounterDec:
		p.neg.Apply(GCounterOp[A]{Actor: op.Actor, Delta: op.Delta})
	}
}

// Merge merges both halves independently.
func (p *PNCounter[A]) Merge(other *PNCounter[A]) {
	p.pos.Merge(other.pos)
	p.neg.Merge(other.neg)
}

// Truncate is a no-op: like GCounter, a PNCounter has no causal history
// to project away.
func (p *PNCounter[A]) Truncate(c vclock.VClock[A]) {}

// Clone returns an independent deep copy.
func (p *PNCounter[A]) Clone() *PNCounter[A] {
	return &PNCounter[A]{pos: p.pos.Clone(), neg: p.neg.Clone()}
}
