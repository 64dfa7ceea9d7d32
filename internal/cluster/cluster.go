// Package cluster orchestrates a network.Network plus a set of named
// collection.DistributedCollections. Named Cluster rather than Database
// since there's no document-store semantics here, only CRDT collections.
package cluster

import (
	"context"
	"errors"
	"sync"

	"github.com/crdtkit/mapcrdt/internal/auth"
	coll "github.com/crdtkit/mapcrdt/internal/collection"
	"github.com/crdtkit/mapcrdt/internal/logging"
	"github.com/crdtkit/mapcrdt/internal/monitoring"
	netpkg "github.com/crdtkit/mapcrdt/internal/network"
	stor "github.com/crdtkit/mapcrdt/internal/storage"
	typ "github.com/crdtkit/mapcrdt/internal/types"
)

// Options configures a Cluster.
type Options struct {
	Actor          string // local actor identity issuing dots for every collection in this cluster
	Distributed    bool
	NetworkID      string
	BootstrapPeers []string
	AuthSecret     string // non-empty enables JWT capability tokens on peer handshakes
}

// Cluster orchestrates a network and the collections replicated over it.
type Cluster struct {
	actor       string
	network     netpkg.Network
	storage     stor.Storage
	logger      *logging.Logger
	metrics     *monitoring.Metrics
	distributed bool
	collections map[string]*coll.DistributedCollection
	mu          sync.Mutex
}

// New constructs a Cluster. If opts.Distributed is set, the network
// manager is initialized immediately and, when opts.NetworkID is set,
// either a network is created or joined (depending on whether bootstrap
// peers were supplied).
func New(ctx context.Context, opts Options, store stor.Storage, logger *logging.Logger, metrics *monitoring.Metrics) (*Cluster, error) {
	var tokens *auth.TokenManager
	if opts.AuthSecret != "" {
		tokens = auth.NewTokenManager(opts.AuthSecret)
	}

	nm := netpkg.NewNetworkManager(ctx, tokens)
	c := &Cluster{
		actor:       opts.Actor,
		network:     nm,
		storage:     store,
		logger:      logger,
		metrics:     metrics,
		distributed: opts.Distributed,
		collections: make(map[string]*coll.DistributedCollection),
	}

	if c.distributed {
		if err := nm.Initialize(); err != nil {
			return nil, err
		}
		if opts.NetworkID != "" {
			if len(opts.BootstrapPeers) > 0 {
				if err := nm.JoinNetwork(opts.NetworkID, opts.BootstrapPeers); err != nil {
					return nil, err
				}
			} else if _, err := nm.CreateNetwork(typ.NetworkConfig{NetworkID: opts.NetworkID, Name: "Network " + opts.NetworkID}); err != nil {
				return nil, err
			}
		}
	}

	return c, nil
}

// Collection returns the named collection, creating it (backed by store)
// on first access.
func (c *Cluster) Collection(name string, store stor.Storage) *coll.DistributedCollection {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.collections[name]; ok {
		return existing
	}
	collection := coll.NewDistributedCollection(name, c.actor, c.network, store, c.logger, c.metrics)
	c.collections[name] = collection
	return collection
}

func (c *Cluster) CreateNetwork(cfg typ.NetworkConfig) (string, error) {
	if c.network == nil {
		return "", errors.New("network manager not initialized")
	}
	return c.network.CreateNetwork(cfg)
}

func (c *Cluster) JoinNetwork(networkID string, bootstrapPeers []string) error {
	if c.network == nil {
		return errors.New("network manager not initialized")
	}
	return c.network.JoinNetwork(networkID, bootstrapPeers)
}

func (c *Cluster) LeaveNetwork(networkID string) error {
	if c.network == nil {
		return errors.New("network manager not initialized")
	}
	return c.network.LeaveNetwork(networkID)
}

func (c *Cluster) AddCollectionToNetwork(networkID, collectionName string) error {
	c.mu.Lock()
	collection := c.collections[collectionName]
	c.mu.Unlock()
	if collection == nil {
		return errors.New("collection not found")
	}
	return collection.AttachToNetwork(networkID)
}

func (c *Cluster) RemoveCollectionFromNetwork(collectionName string) error {
	c.mu.Lock()
	collection := c.collections[collectionName]
	c.mu.Unlock()
	if collection == nil {
		return nil
	}
	return collection.DetachFromNetwork()
}

func (c *Cluster) GetNetworkManager() netpkg.Network { return c.network }

func (c *Cluster) Shutdown() error {
	if c.network == nil {
		return nil
	}
	return c.network.Shutdown()
}
