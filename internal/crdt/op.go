package crdt

import "github.com/crdtkit/mapcrdt/internal/vclock"

// Kind tags the variant of an Op. Go has no sum types, so Op carries every
// variant's fields and Kind says which are meaningful.
type Kind int

const (
	KindNop Kind = iota
	KindRm
	KindUp
)

func (k Kind) String() string {
	switch k {
	case KindNop:
		return "Nop"
	case KindRm:
		return "Rm"
	case KindUp:
		return "Up"
	default:
		return "Unknown"
	}
}

// Op is the operation record applied across replicas: Nop, Rm{clock,key},
// or Up{dot,key,nested op}.
type Op[K comparable, V Val[V, A, O], A vclock.Actor, O any] struct {
	Kind   Kind
	Clock  vclock.VClock[A] // set for KindRm
	Dot    vclock.Dot[A]    // set for KindUp
	Key    K                // set for KindRm, KindUp
	Nested O                // set for KindUp
}

// NopOp builds a no-change operation record.
func NopOp[K comparable, V Val[V, A, O], A vclock.Actor, O any]() Op[K, V, A, O] {
	return Op[K, V, A, O]{Kind: KindNop}
}
