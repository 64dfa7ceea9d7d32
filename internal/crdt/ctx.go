package crdt

import "github.com/crdtkit/mapcrdt/internal/vclock"

// ReadCtx is returned from every read. AddClock is the clock to use when
// deriving an AddCtx for a subsequent update; RmClock is the clock to use
// when deriving an RmCtx for a subsequent remove. Both are independent
// snapshots: mutating the Map afterward does not alias Val or either clock.
type ReadCtx[A vclock.Actor, T any] struct {
	AddClock vclock.VClock[A]
	RmClock  vclock.VClock[A]
	Val      T
}

// DeriveAddCtx picks a fresh dot for actor from the read's AddClock.
func (r ReadCtx[A, T]) DeriveAddCtx(actor A) AddCtx[A] {
	return AddCtx[A]{Dot: r.AddClock.Inc(actor)}
}

// DeriveRmCtx carries the read's RmClock forward for a remove.
func (r ReadCtx[A, T]) DeriveRmCtx() RmCtx[A] {
	return RmCtx[A]{Clock: r.RmClock.Clone()}
}

// AddCtx carries the one fresh dot an update will be recorded under.
type AddCtx[A vclock.Actor] struct {
	Dot vclock.Dot[A]
}

// RmCtx carries the clock a remove will be recorded under.
type RmCtx[A vclock.Actor] struct {
	Clock vclock.VClock[A]
}

// GetResult is the payload of Map.Get's ReadCtx: the cloned nested value,
// or Found=false if the key was absent.
type GetResult[V any] struct {
	Val   V
	Found bool
}
