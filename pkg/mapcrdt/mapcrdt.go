// Package mapcrdt is the public front door: a filesystem-backed, optionally
// distributed set of named collections, each replicating a composable
// reset-remove Map CRDT.
package mapcrdt

import (
	"context"
	"fmt"

	coll "github.com/crdtkit/mapcrdt/internal/collection"
	clus "github.com/crdtkit/mapcrdt/internal/cluster"
	"github.com/crdtkit/mapcrdt/internal/logging"
	"github.com/crdtkit/mapcrdt/internal/monitoring"
	stor "github.com/crdtkit/mapcrdt/internal/storage"
	typ "github.com/crdtkit/mapcrdt/internal/types"
)

// Options configures a DB.
type Options struct {
	DataDir                   string
	Actor                     string // dot-issuing identity for local writes; defaults to DataDir if empty
	DistributedEnabled        bool
	DistributedNetworkID      string
	DistributedBootstrapPeers []string
	AuthSecret                string // non-empty enables JWT capability tokens on peer handshakes
}

// DB is the public wrapper around a Cluster and its backing storage.
type DB struct {
	cluster *clus.Cluster
	store   stor.Storage
}

// New constructs a DB instance with the provided options and storage.
func New(ctx context.Context, opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("DataDir cannot be empty")
	}
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}

	actor := opts.Actor
	if actor == "" {
		actor = opts.DataDir
	}

	store := stor.NewFileStorage(opts.DataDir, actor)
	logger, err := logging.NewLogger("info", "json")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	metrics := monitoring.NewMetrics()

	copts := clus.Options{
		Actor:          actor,
		Distributed:    opts.DistributedEnabled,
		NetworkID:      opts.DistributedNetworkID,
		BootstrapPeers: opts.DistributedBootstrapPeers,
		AuthSecret:     opts.AuthSecret,
	}
	c, err := clus.New(ctx, copts, store, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster: %w", err)
	}
	return &DB{cluster: c, store: store}, nil
}

// CreateNetwork creates a network using the underlying manager.
func (d *DB) CreateNetwork(cfg typ.NetworkConfig) (string, error) {
	if d.cluster == nil {
		return "", fmt.Errorf("database not initialized")
	}
	return d.cluster.CreateNetwork(cfg)
}

// JoinNetwork joins an existing network.
func (d *DB) JoinNetwork(networkID string, bootstrapPeers []string) error {
	return d.cluster.JoinNetwork(networkID, bootstrapPeers)
}

// LeaveNetwork leaves a network.
func (d *DB) LeaveNetwork(networkID string) error {
	return d.cluster.LeaveNetwork(networkID)
}

// Collection returns a collection interface for use by callers.
func (d *DB) Collection(name string) Collection {
	if d.cluster == nil {
		panic("database not initialized")
	}
	if name == "" {
		panic("collection name cannot be empty")
	}
	c := d.cluster.Collection(name, d.store)
	return &collectionAdapter{c: c}
}

// Raw returns the underlying Cluster for advanced usage.
func (d *DB) Raw() *clus.Cluster { return d.cluster }

// RawCollection returns the underlying DistributedCollection for advanced usage.
func (d *DB) RawCollection(name string) *coll.DistributedCollection {
	return d.cluster.Collection(name, d.store)
}

// Shutdown stops the underlying network manager.
func (d *DB) Shutdown() error {
	return d.cluster.Shutdown()
}

// Collection is a thin interface representing collection operations consumers need.
type Collection interface {
	Insert(ctx context.Context, doc map[string]interface{}) (map[string]interface{}, error)
	Update(id string, update map[string]interface{}) (int, error)
	Delete(id string) (int, error)
	Find(id string) (map[string]interface{}, error)
	FindAll() ([]map[string]interface{}, error)
	AttachToNetwork(networkID string) error
	DetachFromNetwork() error
	ForceSync() error
}

// collectionAdapter adapts the internal DistributedCollection to the Collection interface.
type collectionAdapter struct{ c *coll.DistributedCollection }

func (a *collectionAdapter) Insert(ctx context.Context, doc map[string]interface{}) (map[string]interface{}, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}
	if doc == nil {
		return nil, fmt.Errorf("document cannot be nil")
	}
	if id, ok := doc["id"].(string); !ok || id == "" {
		return nil, fmt.Errorf("document must contain a non-empty 'id' field")
	}
	return a.c.Insert(ctx, doc)
}
func (a *collectionAdapter) Update(id string, update map[string]interface{}) (int, error) {
	return a.c.Update(id, update)
}
func (a *collectionAdapter) Delete(id string) (int, error)                  { return a.c.Delete(id) }
func (a *collectionAdapter) Find(id string) (map[string]interface{}, error) { return a.c.Find(id) }
func (a *collectionAdapter) FindAll() ([]map[string]interface{}, error)     { return a.c.FindAll() }
func (a *collectionAdapter) AttachToNetwork(networkID string) error {
	return a.c.AttachToNetwork(networkID)
}
func (a *collectionAdapter) DetachFromNetwork() error { return a.c.DetachFromNetwork() }
func (a *collectionAdapter) ForceSync() error         { return a.c.ForceSync() }
