// Package collection wraps a single replicated document collection around
// the Map CRDT: collection -> document ID -> field name -> multi-value
// register, a three-level Map<K, Map<K, Register>> nesting. Reads derive
// the contexts writes are built under; remote convergence happens both
// op-by-op (broadcast) and by periodic full-state exchange (sync).
package collection

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crdtkit/mapcrdt/internal/crdt"
	"github.com/crdtkit/mapcrdt/internal/logging"
	"github.com/crdtkit/mapcrdt/internal/monitoring"
	netpkg "github.com/crdtkit/mapcrdt/internal/network"
	"github.com/crdtkit/mapcrdt/internal/resolver"
	stor "github.com/crdtkit/mapcrdt/internal/storage"
	"github.com/crdtkit/mapcrdt/internal/tracing"
	typ "github.com/crdtkit/mapcrdt/internal/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// FieldReg is the leaf CRDT: a multi-value register holding one field's
// concurrently-written values.
type FieldReg = *crdt.MVReg[interface{}, string]

// FieldRegOp is the operation record a FieldReg's Put produces.
type FieldRegOp = crdt.MVRegOp[interface{}, string]

// Document is the per-document CRDT: field name -> FieldReg.
type Document = *crdt.Map[string, FieldReg, string, FieldRegOp]

// DocOp is the operation record a Document's Update/Rm produces.
type DocOp = crdt.Op[string, FieldReg, string, FieldRegOp]

// Documents is the collection-wide CRDT: document ID -> Document.
type Documents = *crdt.Map[string, Document, string, DocOp]

// CollectionOp is the operation record Documents.Update/Rm produces; this
// is what travels the wire inside a types.WireOp.Body.
type CollectionOp = crdt.Op[string, Document, string, DocOp]

// Field values travel inside gob-encoded ops and snapshots as interface
// values. gob pre-registers the scalar types; composite JSON shapes need
// explicit registration or encoding a document holding them fails.
func init() {
	gob.Register([]interface{}(nil))
	gob.Register(map[string]interface{}(nil))
}

// DistributedCollection manages one named collection's CRDT state plus its
// network synchronization.
type DistributedCollection struct {
	Name      string
	actor     string
	network   netpkg.Network
	networkID string
	storage   stor.Storage
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	data Documents

	mu             sync.Mutex
	syncInProgress bool
	lastSync       time.Time
}

// NewDistributedCollection constructs a collection named name, owned
// locally by actor (used as the dot-issuing identity for every local
// write). logger/metrics may be nil, in which case logging/metrics are
// skipped.
func NewDistributedCollection(name, actor string, net netpkg.Network, store stor.Storage, logger *logging.Logger, metrics *monitoring.Metrics) *DistributedCollection {
	dc := &DistributedCollection{
		Name:    name,
		actor:   actor,
		network: net,
		storage: store,
		metrics: metrics,
		data:    crdt.New[string, Document, string, DocOp](),
	}
	if logger != nil {
		dc.logger = logger.WithCollection(name)
	}

	if raw, err := store.LoadSnapshot(name); err == nil && raw != nil {
		if err := resolver.MergeRemote[string, Document, string, DocOp](dc.data, raw); err != nil {
			dc.logError("load snapshot", err)
		}
	} else if err != nil {
		dc.logError("load snapshot", err)
	}

	dc.setupMessageHandlers()
	return dc
}

func (dc *DistributedCollection) setupMessageHandlers() {
	dc.network.OnMessage(typ.MsgOperation, func(msg typ.ProtocolMessage) {
		wireOp, ok := decodeWireOp(msg.Payload)
		if !ok || wireOp.Collection != dc.Name {
			return
		}
		go dc.handleRemoteOperation(wireOp)
	})

	dc.network.OnMessage(typ.MsgSyncRequest, func(msg typ.ProtocolMessage) {
		wireOp, ok := decodeWireOp(msg.Payload)
		if !ok || wireOp.Collection != dc.Name {
			return
		}
		go dc.handleSyncRequest(msg.SenderID)
	})

	dc.network.OnMessage(typ.MsgSyncResponse, func(msg typ.ProtocolMessage) {
		wireOp, ok := decodeWireOp(msg.Payload)
		if !ok || wireOp.Collection != dc.Name {
			return
		}
		go dc.handleSyncResponse(wireOp)
	})
}

// decodeWireOp re-marshals a ProtocolMessage payload (arbitrary
// interface{} produced by JSON decoding) back into a typed WireOp.
func decodeWireOp(payload interface{}) (typ.WireOp, bool) {
	var wireOp typ.WireOp
	b, err := json.Marshal(payload)
	if err != nil {
		return wireOp, false
	}
	if err := json.Unmarshal(b, &wireOp); err != nil {
		return wireOp, false
	}
	return wireOp, true
}

// AttachToNetwork joins networkID and kicks off an initial full sync.
func (dc *DistributedCollection) AttachToNetwork(networkID string) error {
	dc.mu.Lock()
	if dc.networkID != "" {
		dc.mu.Unlock()
		return fmt.Errorf("collection %s already attached to %s", dc.Name, dc.networkID)
	}
	dc.networkID = networkID
	dc.mu.Unlock()

	if err := dc.network.AddCollectionToNetwork(networkID, dc.Name); err != nil {
		return err
	}
	return dc.ForceSync()
}

// DetachFromNetwork leaves the currently attached network, if any.
func (dc *DistributedCollection) DetachFromNetwork() error {
	dc.mu.Lock()
	networkID := dc.networkID
	dc.networkID = ""
	dc.mu.Unlock()

	if networkID == "" {
		return nil
	}
	return dc.network.RemoveCollectionFromNetwork(networkID, dc.Name)
}

// Insert adds a new document: doc must contain a non-empty "id" field.
// Every other field is written as one Update op against the document's
// nested field map, applied locally and (if attached) broadcast.
func (dc *DistributedCollection) Insert(ctx context.Context, doc map[string]interface{}) (map[string]interface{}, error) {
	id, ok := doc["id"].(string)
	if !ok || id == "" {
		return nil, errors.New("document must contain a non-empty 'id' field")
	}

	for field, value := range doc {
		if field == "id" {
			continue
		}
		if err := dc.setField(ctx, id, field, value); err != nil {
			return nil, err
		}
	}

	return dc.Find(id)
}

// Update applies update's fields onto the document at id. Returns 1 if
// the document exists (whether or not it previously had these fields), 0
// if it does not.
func (dc *DistributedCollection) Update(id string, update map[string]interface{}) (int, error) {
	if !dc.data.Get(id).Val.Found {
		return 0, nil
	}
	for field, value := range update {
		if field == "id" {
			continue
		}
		if err := dc.setField(context.Background(), id, field, value); err != nil {
			return 0, err
		}
	}
	return 1, nil
}

// setField builds and applies one Update op writing value into field of
// document id, then broadcasts it if attached to a network.
func (dc *DistributedCollection) setField(ctx context.Context, id, field string, value interface{}) error {
	_, span := tracing.StartSpan(ctx, "collection.setField",
		attribute.String("collection", dc.Name),
		attribute.String("document_id", id),
		attribute.String("field", field),
	)
	defer span.End()

	read := dc.data.Get(id)
	addCtx := read.DeriveAddCtx(dc.actor)

	op := dc.data.Update(id, addCtx, func(inner Document, ictx crdt.AddCtx[string]) DocOp {
		return inner.Update(field, ictx, func(reg FieldReg, rctx crdt.AddCtx[string]) FieldRegOp {
			return reg.Put(value, rctx)
		})
	})

	dc.data.Apply(op)
	if dc.metrics != nil {
		dc.metrics.OpsApplied.Inc()
	}
	dc.broadcastOperation(op)
	return dc.persist()
}

// Delete removes the document at id. Returns 1 if it existed, 0 if not.
func (dc *DistributedCollection) Delete(id string) (int, error) {
	read := dc.data.Get(id)
	if !read.Val.Found {
		return 0, nil
	}
	rmCtx := read.DeriveRmCtx()
	op := dc.data.Rm(id, rmCtx)
	dc.data.Apply(op)
	if dc.metrics != nil {
		dc.metrics.OpsApplied.Inc()
	}
	dc.broadcastOperation(op)
	return 1, dc.persist()
}

// Find returns the document at id reassembled from its field registers,
// or (nil, nil) if absent. A field with concurrent writes surfaces as a
// []interface{} of every surviving value, matching MVReg read semantics.
func (dc *DistributedCollection) Find(id string) (map[string]interface{}, error) {
	read := dc.data.Get(id)
	if !read.Val.Found {
		return nil, nil
	}
	return dc.snapshotDoc(id, read.Val.Val), nil
}

// FindAll returns every document currently in the collection.
func (dc *DistributedCollection) FindAll() ([]map[string]interface{}, error) {
	keys := dc.data.Keys()
	docs := make([]map[string]interface{}, 0, len(keys))
	for _, id := range keys {
		read := dc.data.Get(id)
		if !read.Val.Found {
			continue
		}
		docs = append(docs, dc.snapshotDoc(id, read.Val.Val))
	}
	return docs, nil
}

func (dc *DistributedCollection) snapshotDoc(id string, doc Document) map[string]interface{} {
	out := map[string]interface{}{"id": id}
	for _, field := range doc.Keys() {
		regRead := doc.Get(field)
		if !regRead.Val.Found {
			continue
		}
		vals := regRead.Val.Val.Read().Val
		switch len(vals) {
		case 0:
		case 1:
			out[field] = vals[0]
		default:
			out[field] = vals
		}
	}
	return out
}

// ForceSync requests a full state sync from the attached network.
func (dc *DistributedCollection) ForceSync() error {
	dc.mu.Lock()
	networkID := dc.networkID
	inProgress := dc.syncInProgress
	if !inProgress {
		dc.syncInProgress = true
	}
	dc.mu.Unlock()

	if networkID == "" {
		return errors.New("not attached to network")
	}
	if inProgress {
		return nil
	}

	go func() {
		time.Sleep(10 * time.Second)
		dc.mu.Lock()
		dc.syncInProgress = false
		dc.mu.Unlock()
	}()

	return dc.network.BroadcastMessage(networkID, typ.ProtocolMessage{
		Type:      typ.MsgSyncRequest,
		NetworkID: networkID,
		SenderID:  dc.network.GetPeerID(),
		Timestamp: time.Now().UnixMilli(),
		Payload:   typ.WireOp{Collection: dc.Name, Actor: dc.actor, PeerID: dc.network.GetPeerID(), Timestamp: time.Now().UnixMilli()},
	})
}

// broadcastOperation wraps op as a WireOp and broadcasts it to the
// attached network, if any. Failures are logged, not returned: a local
// write must succeed independent of network reachability.
func (dc *DistributedCollection) broadcastOperation(op CollectionOp) {
	dc.mu.Lock()
	networkID := dc.networkID
	dc.mu.Unlock()
	if networkID == "" {
		return
	}

	body, err := resolver.EncodeOp[string, Document, string, DocOp](op)
	if err != nil {
		dc.logError("encode operation", err)
		return
	}

	wireOp := typ.WireOp{
		ID:         uuid.NewString(),
		Collection: dc.Name,
		Actor:      dc.actor,
		Body:       body,
		Timestamp:  time.Now().UnixMilli(),
		PeerID:     dc.network.GetPeerID(),
	}

	err = dc.network.BroadcastMessage(networkID, typ.ProtocolMessage{
		Type:      typ.MsgOperation,
		NetworkID: networkID,
		SenderID:  dc.network.GetPeerID(),
		Timestamp: wireOp.Timestamp,
		Payload:   wireOp,
	})
	if err != nil {
		dc.logError("broadcast operation", err)
	}
}

// handleRemoteOperation decodes and applies a remote peer's op. Apply's
// idempotence/commutativity means this is safe regardless of delivery
// order or duplication.
func (dc *DistributedCollection) handleRemoteOperation(wireOp typ.WireOp) {
	_, span := tracing.StartSpan(context.Background(), "collection.handleRemoteOperation",
		attribute.String("collection", dc.Name),
		attribute.String("from_actor", wireOp.Actor),
	)
	defer span.End()

	op, err := resolver.DecodeOp[string, Document, string, DocOp](wireOp.Body)
	if err != nil {
		dc.logError("decode remote operation", err)
		return
	}
	dc.data.Apply(op)
	if dc.metrics != nil {
		dc.metrics.OpsApplied.Inc()
	}
	if err := dc.persist(); err != nil {
		dc.logError("persist after remote operation", err)
	}
}

// handleSyncRequest answers a peer's sync request with this collection's
// full current state.
func (dc *DistributedCollection) handleSyncRequest(senderID string) {
	dc.mu.Lock()
	networkID := dc.networkID
	dc.mu.Unlock()
	if networkID == "" {
		return
	}

	snapshot, err := resolver.EncodeSnapshot[string, Document, string, DocOp](dc.data)
	if err != nil {
		dc.logError("encode snapshot", err)
		return
	}

	err = dc.network.SendToPeer(senderID, networkID, typ.ProtocolMessage{
		Type:      typ.MsgSyncResponse,
		NetworkID: networkID,
		SenderID:  dc.network.GetPeerID(),
		Timestamp: time.Now().UnixMilli(),
		Payload: typ.WireOp{
			Collection: dc.Name,
			Actor:      dc.actor,
			Body:       snapshot,
			Timestamp:  time.Now().UnixMilli(),
			PeerID:     dc.network.GetPeerID(),
		},
	})
	if err != nil {
		dc.logError("send sync response", err)
	}
}

// handleSyncResponse merges a peer's full snapshot into this collection's
// state, the state-based half of convergence.
func (dc *DistributedCollection) handleSyncResponse(wireOp typ.WireOp) {
	if len(wireOp.Body) == 0 {
		return
	}

	_, span := tracing.StartSpan(context.Background(), "collection.handleSyncResponse",
		attribute.String("collection", dc.Name),
		attribute.String("from_actor", wireOp.Actor),
	)
	defer span.End()

	if err := resolver.MergeRemote[string, Document, string, DocOp](dc.data, wireOp.Body); err != nil {
		dc.logError("merge remote snapshot", err)
		return
	}
	if dc.metrics != nil {
		dc.metrics.MergesPerformed.Inc()
	}

	dc.mu.Lock()
	dc.syncInProgress = false
	dc.lastSync = time.Now()
	dc.mu.Unlock()

	if err := dc.persist(); err != nil {
		dc.logError("persist after merge", err)
	}
}

// persist writes the collection's current state to storage, if storage
// is configured.
func (dc *DistributedCollection) persist() error {
	if dc.storage == nil {
		return nil
	}
	data, err := resolver.EncodeSnapshot[string, Document, string, DocOp](dc.data)
	if err != nil {
		return fmt.Errorf("collection %s: encode snapshot: %w", dc.Name, err)
	}
	if err := dc.storage.SaveSnapshot(dc.Name, data); err != nil {
		return fmt.Errorf("collection %s: save snapshot: %w", dc.Name, err)
	}
	if dc.metrics != nil {
		dc.metrics.SnapshotWriteOps.Inc()
	}
	return nil
}

func (dc *DistributedCollection) logError(action string, err error) {
	if dc.logger == nil {
		return
	}
	dc.logger.Error(action, zap.Error(err))
	if dc.metrics != nil {
		dc.metrics.ErrorCount.Inc()
	}
}
