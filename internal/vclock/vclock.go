// Package vclock implements a generic version clock: a per-actor monotonic
// counter map supporting the partial order, merge, subtract, and
// intersection operations a reset-remove CRDT needs to reason about
// causality.
package vclock

import (
	"fmt"
	"sort"
	"strings"
)

// Actor is an opaque replica identity. It only needs to be comparable so it
// can key a Go map; any total order used for deterministic output is
// derived from its formatted representation (see Key).
type Actor interface {
	comparable
}

// Dot is the unit of causal progress: one actor's counter value.
type Dot[A Actor] struct {
	Actor   A
	Counter uint64
}

// Ordering is the result of comparing two clocks under the dominance
// partial order.
type Ordering int

const (
	Equal Ordering = iota
	Less
	Greater
	Concurrent
)

// VClock maps actor to counter; an absent actor has counter 0. The zero
// value is not usable directly for writes (a nil map panics on assignment);
// always construct one with New.
type VClock[A Actor] map[A]uint64

// New returns an empty, write-ready clock.
func New[A Actor]() VClock[A] {
	return make(VClock[A])
}

// FromDot returns a clock containing exactly one dot.
func FromDot[A Actor](dot Dot[A]) VClock[A] {
	c := New[A]()
	c[dot.Actor] = dot.Counter
	return c
}

// Get returns actor's counter, or 0 if absent.
func (c VClock[A]) Get(actor A) uint64 {
	return c[actor]
}

// Inc returns the next dot for actor without mutating the clock. The
// caller installs it later via Apply.
func (c VClock[A]) Inc(actor A) Dot[A] {
	return Dot[A]{Actor: actor, Counter: c[actor] + 1}
}

// Apply installs dot: clock[actor] = max(clock[actor], dot.Counter).
func (c VClock[A]) Apply(dot Dot[A]) {
	if dot.Counter > c[dot.Actor] {
		c[dot.Actor] = dot.Counter
	}
}

// Merge takes the pointwise max of c and other, mutating c.
func (c VClock[A]) Merge(other VClock[A]) {
	for actor, counter := range other {
		if counter > c[actor] {
			c[actor] = counter
		}
	}
}

// Subtract removes every actor dominated by other, mutating c: for each
// actor a in c, if c[a] <= other[a], a is dropped.
func (c VClock[A]) Subtract(other VClock[A]) {
	for actor, counter := range c {
		if counter <= other.Get(actor) {
			delete(c, actor)
		}
	}
}

// Intersection returns a new clock holding the pointwise minimum of c and
// other, dropping any actor whose minimum is zero. Unlike Merge/Subtract
// this does not mutate c.
func (c VClock[A]) Intersection(other VClock[A]) VClock[A] {
	out := New[A]()
	for actor, counter := range c {
		o := other.Get(actor)
		if o < counter {
			counter = o
		}
		if counter > 0 {
			out[actor] = counter
		}
	}
	return out
}

// IsEmpty returns true iff no actor has a nonzero counter.
func (c VClock[A]) IsEmpty() bool {
	return len(c) == 0
}

// Clone returns an independent copy of c.
func (c VClock[A]) Clone() VClock[A] {
	out := make(VClock[A], len(c))
	for actor, counter := range c {
		out[actor] = counter
	}
	return out
}

// Compare returns the dominance relationship of c to other.
func (c VClock[A]) Compare(other VClock[A]) Ordering {
	greater, less := false, false

	seen := make(map[A]struct{}, len(c)+len(other))
	for a := range c {
		seen[a] = struct{}{}
	}
	for a := range other {
		seen[a] = struct{}{}
	}

	for a := range seen {
		cv, ov := c.Get(a), other.Get(a)
		switch {
		case cv > ov:
			greater = true
		case cv < ov:
			less = true
		}
	}

	switch {
	case !greater && !less:
		return Equal
	case greater && !less:
		return Greater
	case less && !greater:
		return Less
	default:
		return Concurrent
	}
}

// Dominates reports whether c >= other under the partial order (Equal or
// Greater).
func (c VClock[A]) Dominates(other VClock[A]) bool {
	switch c.Compare(other) {
	case Equal, Greater:
		return true
	default:
		return false
	}
}

// Equal reports structural equality.
func (c VClock[A]) Equal(other VClock[A]) bool {
	return c.Compare(other) == Equal
}

// Key returns a canonical string encoding of c, suitable for use as a Go
// map key. Go maps require comparable keys and a VClock (itself a map) is
// not one, so the deferred-remove table is keyed by this string instead.
func (c VClock[A]) Key() string {
	parts := make([]string, 0, len(c))
	for actor, counter := range c {
		parts = append(parts, fmt.Sprintf("%v=%d", actor, counter))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
