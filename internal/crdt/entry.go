package crdt

import "github.com/crdtkit/mapcrdt/internal/vclock"

// entry pairs a per-entry clock (which actors' dots touched this value)
// with the nested CRDT value itself. Invariant I2: clock is never empty
// while the entry is present in a Map.
type entry[V Val[V, A, O], A vclock.Actor, O any] struct {
	clock vclock.VClock[A]
	val   V
}

func (e entry[V, A, O]) clone() entry[V, A, O] {
	return entry[V, A, O]{clock: e.clock.Clone(), val: e.val.Clone()}
}
