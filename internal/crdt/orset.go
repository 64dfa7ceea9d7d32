package crdt

import "github.com/crdtkit/mapcrdt/internal/vclock"

// ORSetKind tags an ORSet operation.
type ORSetKind int

const (
	ORSetAdd ORSetKind = iota
	ORSetRm
)

// ORSetOp is the operation record for ORSet: Add a member under a fresh
// dot, or Rm a member under an observed clock.
type ORSetOp[M comparable, A vclock.Actor] struct {
	Kind   ORSetKind
	Dot    vclock.Dot[A]     // set for ORSetAdd
	Clock  vclock.VClock[A]  // set for ORSetRm
	Member M
}

type orsetDeferred[M comparable, A vclock.Actor] struct {
	clock   vclock.VClock[A]
	members map[M]struct{}
}

// ORSet is an observed-remove set: a member survives a merge as long as
// some replica's add dot for it hasn't been observed by every remover.
// Its entries/clock/deferred layout is a specialization of Map's own,
// with a bare observed-dot clock where Map stores a nested value.
type ORSet[M comparable, A vclock.Actor] struct {
	clock    vclock.VClock[A]
	entries  map[M]vclock.VClock[A]
	deferred map[string]orsetDeferred[M, A]
}

// NewORSet constructs an empty set.
func NewORSet[M comparable, A vclock.Actor]() *ORSet[M, A] {
	return &ORSet[M, A]{
		clock:    vclock.New[A](),
		entries:  make(map[M]vclock.VClock[A]),
		deferred: make(map[string]orsetDeferred[M, A]),
	}
}

// Default returns a fresh empty set, satisfying Val's zero-state
// capability. Safe on a nil receiver.
func (s *ORSet[M, A]) Default() *ORSet[M, A] {
	return NewORSet[M, A]()
}

// Read reports the members currently present.
func (s *ORSet[M, A]) Read() ReadCtx[A, []M] {
	members := make([]M, 0, len(s.entries))
	for m := range s.entries {
		members = append(members, m)
	}
	return ReadCtx[A, []M]{AddClock: s.clock.Clone(), RmClock: s.clock.Clone(), Val: members}
}

// Contains reports whether member is present.
func (s *ORSet[M, A]) Contains(member M) bool {
	_, ok := s.entries[member]
	return ok
}

// Add builds an op that adds member under ctx's fresh dot.
func (s *ORSet[M, A]) Add(member M, ctx AddCtx[A]) ORSetOp[M, A] {
	return ORSetOp[M, A]{Kind: ORSetAdd, Dot: ctx.Dot, Member: member}
}

// Rm builds an op that removes member under ctx's observed clock.
func (s *ORSet[M, A]) Rm(member M, ctx RmCtx[A]) ORSetOp[M, A] {
	return ORSetOp[M, A]{Kind: ORSetRm, Clock: ctx.Clock.Clone(), Member: member}
}

// Apply applies an Add or Rm operation record.
func (s *ORSet[M, A]) Apply(op ORSetOp[M, A]) {
	switch op.Kind {
	case ORSetAdd:
		if s.clock.Get(op.Dot.Actor) >= op.Dot.Counter {
			return
		}
		c, ok := s.entries[op.Member]
		if !ok {
			c = vclock.New[A]()
		}
		c.Apply(op.Dot)
		s.entries[op.Member] = c
		s.clock.Apply(op.Dot)
		s.applyDeferred()
	case ORSetRm:
		s.applyRm(op.Member, op.Clock)
	}
}

// Merge joins other into s with the same entries-only-in-one-side /
// entries-in-both reasoning Map.Merge uses, specialized to entries whose
// value is just an observed-dot clock rather than a nested CRDT.
func (s *ORSet[M, A]) Merge(other *ORSet[M, A]) {
	otherRemaining := make(map[M]vclock.VClock[A], len(other.entries))
	for m, c := range other.entries {
		otherRemaining[m] = c
	}

	keep := make(map[M]vclock.VClock[A], len(s.entries))

	for member, clock := range s.entries {
		c := clock.Clone()
		otherClock, inOther := other.entries[member]
		if !inOther {
			c.Subtract(other.clock)
			if !c.IsEmpty() {
				keep[member] = c
			}
			continue
		}
		delete(otherRemaining, member)

		oc := otherClock.Clone()
		common := c.Intersection(oc)
		c.Subtract(common)
		oc.Subtract(common)
		c.Subtract(other.clock)
		oc.Subtract(s.clock)

		common.Merge(c)
		common.Merge(oc)
		if !common.IsEmpty() {
			keep[member] = common
		}
	}

	for member, clock := range otherRemaining {
		c := clock.Clone()
		c.Subtract(s.clock)
		if !c.IsEmpty() {
			keep[member] = c
		}
	}

	// Same ordering constraint as Map.Merge: the merged members must be
	// in place before other's deferred removes are discharged, or an
	// already-witnessed remove prunes state that is about to be replaced.
	s.entries = keep

	otherDeferred := make([]orsetDeferred[M, A], 0, len(other.deferred))
	for _, d := range other.deferred {
		otherDeferred = append(otherDeferred, d)
	}
	for _, d := range otherDeferred {
		for member := range d.members {
			s.applyRm(member, d.clock)
		}
	}

	s.clock.Merge(other.clock)
	s.applyDeferred()
}

// Truncate projects s against clockToRemove: the Causal half of the
// reset-remove contract.
func (s *ORSet[M, A]) Truncate(clockToRemove vclock.VClock[A]) {
	for member, clock := range s.entries {
		clock.Subtract(clockToRemove)
		if clock.IsEmpty() {
			delete(s.entries, member)
		} else {
			s.entries[member] = clock
		}
	}

	deferred := make(map[string]orsetDeferred[M, A], len(s.deferred))
	for _, d := range s.deferred {
		rmClock := d.clock.Clone()
		rmClock.Subtract(clockToRemove)
		if !rmClock.IsEmpty() {
			deferred[rmClock.Key()] = orsetDeferred[M, A]{clock: rmClock, members: d.members}
		}
	}
	s.deferred = deferred

	s.clock.Subtract(clockToRemove)
}

// Clone returns an independent deep copy.
func (s *ORSet[M, A]) Clone() *ORSet[M, A] {
	out := &ORSet[M, A]{
		clock:    s.clock.Clone(),
		entries:  make(map[M]vclock.VClock[A], len(s.entries)),
		deferred: make(map[string]orsetDeferred[M, A], len(s.deferred)),
	}
	for m, c := range s.entries {
		out.entries[m] = c.Clone()
	}
	for ck, d := range s.deferred {
		members := make(map[M]struct{}, len(d.members))
		for m := range d.members {
			members[m] = struct{}{}
		}
		out.deferred[ck] = orsetDeferred[M, A]{clock: d.clock.Clone(), members: members}
	}
	return out
}

func (s *ORSet[M, A]) applyRm(member M, clock vclock.VClock[A]) {
	switch clock.Compare(s.clock) {
	case vclock.Concurrent, vclock.Greater:
		ck := clock.Key()
		d, ok := s.deferred[ck]
		if !ok {
			d = orsetDeferred[M, A]{clock: clock.Clone(), members: make(map[M]struct{})}
		}
		d.members[member] = struct{}{}
		s.deferred[ck] = d
	}

	c, ok := s.entries[member]
	if !ok {
		return
	}
	c.Subtract(clock)
	if c.IsEmpty() {
		delete(s.entries, member)
	} else {
		s.entries[member] = c
	}
}

func (s *ORSet[M, A]) applyDeferred() {
	deferred := s.deferred
	s.deferred = make(map[string]orsetDeferred[M, A])
	for _, d := range deferred {
		for member := range d.members {
			s.applyRm(member, d.clock)
		}
	}
}
