// Package crdt implements the composable, recursively-nestable map-style
// CRDT with reset-remove semantics: a replica accepts local mutations and
// merges in remote states (or applies remote operation records) so that any
// two replicas which have observed the same updates converge to identical
// state, independent of delivery order or duplication.
package crdt

import "github.com/crdtkit/mapcrdt/internal/vclock"

// Val is the capability set a nested CRDT value must satisfy to live inside
// a Map: it can produce a fresh zero-state instance of itself, be cloned,
// mutated by an operation record, merged with another instance of itself
// (a CvRDT join), and truncated against a causal frontier (the
// reset-remove projection). A Map itself implements Val, which is what
// lets Maps nest inside Maps.
//
// Default must be callable on the type's zero value (a nil pointer for
// the pointer-receiver implementations in this package): the Map calls it
// to create the entry for a key it has never seen, including on a Map
// that was reconstructed by gob decoding, where no constructor ran.
type Val[V any, A vclock.Actor, O any] interface {
	Default() V
	Clone() V
	Apply(op O)
	Merge(other V)
	Truncate(c vclock.VClock[A])
}
