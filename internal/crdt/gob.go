package crdt

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/crdtkit/mapcrdt/internal/vclock"
)

// Every CRDT type in this package keeps its fields unexported so the
// purity contract (update/rm never mutate state directly) can't be
// violated from outside the package. encoding/gob only marshals exported
// struct fields, so each type below implements GobEncode/GobDecode
// against a private mirror struct instead of relying on gob's default
// reflection — this is what lets resolver.EncodeSnapshot/MergeRemote
// actually carry a Map's state over the wire.

type mapGob[K comparable, V Val[V, A, O], A vclock.Actor, O any] struct {
	Clock    vclock.VClock[A]
	Entries  map[K]entryGob[V, A]
	Deferred map[string]deferredGob[K, A]
}

type entryGob[V any, A vclock.Actor] struct {
	Clock vclock.VClock[A]
	Val   V
}

type deferredGob[K comparable, A vclock.Actor] struct {
	Clock vclock.VClock[A]
	Keys  map[K]struct{}
}

func (m *Map[K, V, A, O]) GobEncode() ([]byte, error) {
	mg := mapGob[K, V, A, O]{
		Clock:    m.clock,
		Entries:  make(map[K]entryGob[V, A], len(m.entries)),
		Deferred: make(map[string]deferredGob[K, A], len(m.deferred)),
	}
	for k, e := range m.entries {
		mg.Entries[k] = entryGob[V, A]{Clock: e.clock, Val: e.val}
	}
	for ck, d := range m.deferred {
		mg.Deferred[ck] = deferredGob[K, A]{Clock: d.clock, Keys: d.keys}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(mg); err != nil {
		return nil, fmt.Errorf("crdt: encode map: %w", err)
	}
	return buf.Bytes(), nil
}

func (m *Map[K, V, A, O]) GobDecode(data []byte) error {
	var mg mapGob[K, V, A, O]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&mg); err != nil {
		return fmt.Errorf("crdt: decode map: %w", err)
	}
	m.clock = mg.Clock
	m.entries = make(map[K]entry[V, A, O], len(mg.Entries))
	for k, e := range mg.Entries {
		m.entries[k] = entry[V, A, O]{clock: e.Clock, val: e.Val}
	}
	m.deferred = make(map[string]deferredEntry[K, A], len(mg.Deferred))
	for ck, d := range mg.Deferred {
		m.deferred[ck] = deferredEntry[K, A]{clock: d.Clock, keys: d.Keys}
	}
	return nil
}

type mvregGob[V any, A vclock.Actor] struct {
	Clock vclock.VClock[A]
	Vals  []entryGob[V, A]
}

func (r *MVReg[V, A]) GobEncode() ([]byte, error) {
	g := mvregGob[V, A]{Clock: r.clock, Vals: make([]entryGob[V, A], len(r.vals))}
	for i, e := range r.vals {
		g.Vals[i] = entryGob[V, A]{Clock: e.clock, Val: e.val}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(g); err != nil {
		return nil, fmt.Errorf("crdt: encode mvreg: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *MVReg[V, A]) GobDecode(data []byte) error {
	var g mvregGob[V, A]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return fmt.Errorf("crdt: decode mvreg: %w", err)
	}
	r.clock = g.Clock
	r.vals = make([]mvregEntry[V, A], len(g.Vals))
	for i, e := range g.Vals {
		r.vals[i] = mvregEntry[V, A]{clock: e.Clock, val: e.Val}
	}
	return nil
}

type orsetGob[M comparable, A vclock.Actor] struct {
	Clock    vclock.VClock[A]
	Entries  map[M]vclock.VClock[A]
	Deferred map[string]orsetDeferredGob[M, A]
}

type orsetDeferredGob[M comparable, A vclock.Actor] struct {
	Clock   vclock.VClock[A]
	Members map[M]struct{}
}

func (s *ORSet[M, A]) GobEncode() ([]byte, error) {
	g := orsetGob[M, A]{
		Clock:    s.clock,
		Entries:  s.entries,
		Deferred: make(map[string]orsetDeferredGob[M, A], len(s.deferred)),
	}
	for ck, d := range s.deferred {
		g.Deferred[ck] = orsetDeferredGob[M, A]{Clock: d.clock, Members: d.members}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(g); err != nil {
		return nil, fmt.Errorf("crdt: encode orset: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *ORSet[M, A]) GobDecode(data []byte) error {
	var g orsetGob[M, A]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return fmt.Errorf("crdt: decode orset: %w", err)
	}
	s.clock = g.Clock
	s.entries = g.Entries
	s.deferred = make(map[string]orsetDeferred[M, A], len(g.Deferred))
	for ck, d := range g.Deferred {
		s.deferred[ck] = orsetDeferred[M, A]{clock: d.Clock, members: d.Members}
	}
	return nil
}

type gcounterGob[A vclock.Actor] struct {
	Counts map[A]uint64
}

func (g *GCounter[A]) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gcounterGob[A]{Counts: g.counts}); err != nil {
		return nil, fmt.Errorf("crdt: encode gcounter: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *GCounter[A]) GobDecode(data []byte) error {
	var gg gcounterGob[A]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&gg); err != nil {
		return fmt.Errorf("crdt: decode gcounter: %w", err)
	}
	g.counts = gg.Counts
	return nil
}

type pncounterGob[A vclock.Actor] struct {
	Pos *GCounter[A]
	Neg *GCounter[A]
}

func (p *PNCounter[A]) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(pncounterGob[A]{Pos: p.pos, Neg: p.neg}); err != nil {
		return nil, fmt.Errorf("crdt: encode pncounter: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *PNCounter[A]) GobDecode(data []byte) error {
	var pg pncounterGob[A]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&pg); err != nil {
		return fmt.Errorf("crdt: decode pncounter: %w", err)
	}
	p.pos = pg.Pos
	p.neg = pg.Neg
	return nil
}
