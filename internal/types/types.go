// Package types holds the wire- and session-level shapes shared by the
// network, collection, and cluster layers: peer/network bookkeeping and
// the envelope a CRDT operation travels in. It intentionally knows
// nothing about the CRDT algorithm itself — that lives in internal/crdt
// and internal/resolver.
package types

import (
	"time"
)

// WireOp is the envelope a single crdt.Op travels in between peers: the
// collection it targets, the actor that produced it, and its gob-encoded
// payload. It is generic over any Map[K,V,A,O] instantiation since the Op
// itself is opaque bytes by the time it reaches the network layer.
type WireOp struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	Actor      string `json:"actor"`
	Body       []byte `json:"body"`
	Timestamp  int64  `json:"timestamp"`
	PeerID     string `json:"peerId"`
}

// NetworkConfig holds network-level configuration.
type NetworkConfig struct {
	NetworkID      string
	Name           string
	Collections    map[string]bool
	BootstrapPeers []string

	Encryption struct {
		Enabled      bool
		SharedSecret string
	}
	Replication struct {
		Factor   int
		Strategy string // full | partial | leader
	}
	Discovery struct {
		MDNS      bool
		Bootstrap bool
	}
}

// PeerInfo describes a known remote peer.
type PeerInfo struct {
	PeerID      string
	Addrs       []string
	Protocols   []string
	Latency     time.Duration
	LastSeen    time.Time
	Collections []string
}

// SyncState tracks a collection's synchronization progress against a
// network. LocalVector is a Key()-encoded snapshot of the collection's
// vclock.VClock, kept as a string here so this package need not import
// the generic vclock type for a specific actor instantiation.
type SyncState struct {
	Collection        string
	NetworkID         string
	LocalVector       string
	LastSync          time.Time
	PendingOperations []WireOp
	SyncInProgress    bool
}

// NetworkStats summarizes a network's traffic for observability.
type NetworkStats struct {
	NetworkID          string
	ConnectedPeers     int
	TotalPeers         int
	CollectionsShared  int
	OperationsSent     int64
	OperationsReceived int64
	BytesTransferred   int64
	AverageLatency     time.Duration
}

// MessageType strings for the wire protocol.
type MessageType string

const (
	MsgSyncRequest        MessageType = "sync_request"
	MsgSyncResponse       MessageType = "sync_response"
	MsgOperation          MessageType = "operation"
	MsgHeartbeat          MessageType = "heartbeat"
	MsgCollectionAnnounce MessageType = "collection_announce"
	MsgCollectionRequest  MessageType = "collection_request"
)

// ProtocolMessage is the generic envelope exchanged over the network.
type ProtocolMessage struct {
	Type      MessageType `json:"type"`
	NetworkID string      `json:"networkId"`
	SenderID  string      `json:"senderId"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}
