package resolver

import (
	"testing"

	"github.com/crdtkit/mapcrdt/internal/crdt"
)

type reg = *crdt.MVReg[string, string]
type regOp = crdt.MVRegOp[string, string]

func TestEncodeDecodeOp(t *testing.T) {
	m := crdt.New[string, reg, string, regOp]()
	addCtx := m.Get("k").DeriveAddCtx("a")
	op := m.Update("k", addCtx, func(r reg, ctx crdt.AddCtx[string]) regOp {
		return r.Put("v1", ctx)
	})

	data, err := EncodeOp[string, reg, string, regOp](op)
	if err != nil {
		t.Fatalf("EncodeOp: %v", err)
	}

	decoded, err := DecodeOp[string, reg, string, regOp](data)
	if err != nil {
		t.Fatalf("DecodeOp: %v", err)
	}
	if decoded.Key != "k" || decoded.Kind != op.Kind {
		t.Fatalf("decoded op = %+v, want key k, same kind as %+v", decoded, op)
	}
}

func TestApplyRemote(t *testing.T) {
	local := crdt.New[string, reg, string, regOp]()
	remote := crdt.New[string, reg, string, regOp]()

	addCtx := remote.Get("k").DeriveAddCtx("b")
	op := remote.Update("k", addCtx, func(r reg, ctx crdt.AddCtx[string]) regOp {
		return r.Put("from-remote", ctx)
	})
	remote.Apply(op)

	data, err := EncodeOp[string, reg, string, regOp](op)
	if err != nil {
		t.Fatalf("EncodeOp: %v", err)
	}
	if err := ApplyRemote[string, reg, string, regOp](local, data); err != nil {
		t.Fatalf("ApplyRemote: %v", err)
	}

	got := local.Get("k")
	if !got.Val.Found {
		t.Fatal("expected key k to be present after ApplyRemote")
	}
	vals := got.Val.Val.Read().Val
	if len(vals) != 1 || vals[0] != "from-remote" {
		t.Fatalf("Read() = %v, want [from-remote]", vals)
	}
}

func TestEncodeMergeSnapshot(t *testing.T) {
	a := crdt.New[string, reg, string, regOp]()
	addCtx := a.Get("k").DeriveAddCtx("a")
	op := a.Update("k", addCtx, func(r reg, ctx crdt.AddCtx[string]) regOp {
		return r.Put("from-a", ctx)
	})
	a.Apply(op)

	snapshot, err := EncodeSnapshot[string, reg, string, regOp](a)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}

	b := crdt.New[string, reg, string, regOp]()
	if err := MergeRemote[string, reg, string, regOp](b, snapshot); err != nil {
		t.Fatalf("MergeRemote: %v", err)
	}

	got := b.Get("k")
	if !got.Val.Found {
		t.Fatal("expected key k to be present after MergeRemote")
	}
	vals := got.Val.Val.Read().Val
	if len(vals) != 1 || vals[0] != "from-a" {
		t.Fatalf("Read() = %v, want [from-a]", vals)
	}
}
