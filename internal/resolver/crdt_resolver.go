// Package resolver is the thin translation layer between wire-level bytes
// and the in-memory Map CRDT: it is still where a remote update is
// "resolved" into local state, even though conflict resolution itself now
// lives entirely in internal/crdt's Apply/Merge rather than in a bespoke
// comparison function.
package resolver

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/crdtkit/mapcrdt/internal/crdt"
	"github.com/crdtkit/mapcrdt/internal/vclock"
)

// EncodeOp gob-encodes op for transmission as a types.WireOp body. gob is
// chosen over the rest of this repo's encoding/json usage because Op is a
// bounded, statically-typed Go struct rather than a free-form document —
// the same reasoning that picks gob for the collection layer's full
// snapshot exchange.
func EncodeOp[K comparable, V crdt.Val[V, A, O], A vclock.Actor, O any](op crdt.Op[K, V, A, O]) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(op); err != nil {
		return nil, fmt.Errorf("resolver: encode op: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeOp decodes an Op previously produced by EncodeOp.
func DecodeOp[K comparable, V crdt.Val[V, A, O], A vclock.Actor, O any](data []byte) (crdt.Op[K, V, A, O], error) {
	var op crdt.Op[K, V, A, O]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&op); err != nil {
		return op, fmt.Errorf("resolver: decode op: %w", err)
	}
	return op, nil
}

// ApplyRemote decodes data as an Op and applies it to m. It is the
// op-based half of convergence: idempotent, delivery-order tolerant,
// exactly as crdt.Map.Apply guarantees.
func ApplyRemote[K comparable, V crdt.Val[V, A, O], A vclock.Actor, O any](m *crdt.Map[K, V, A, O], data []byte) error {
	op, err := DecodeOp[K, V, A, O](data)
	if err != nil {
		return err
	}
	m.Apply(op)
	return nil
}

// EncodeSnapshot gob-encodes m's full state for a state-based sync.
func EncodeSnapshot[K comparable, V crdt.Val[V, A, O], A vclock.Actor, O any](m *crdt.Map[K, V, A, O]) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("resolver: encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// MergeRemote decodes data as a full Map snapshot and merges it into m.
// This is the state-based half of convergence, used by a sync
// request/response exchange rather than per-operation broadcast.
func MergeRemote[K comparable, V crdt.Val[V, A, O], A vclock.Actor, O any](m *crdt.Map[K, V, A, O], data []byte) error {
	var other crdt.Map[K, V, A, O]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&other); err != nil {
		return fmt.Errorf("resolver: decode snapshot: %w", err)
	}
	m.Merge(&other)
	return nil
}
