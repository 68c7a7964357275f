package router

import (
	"time"

	"github.com/opd-ai/ducttape/wire"
)

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since the given time.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

var defaultTimeProvider TimeProvider = DefaultTimeProvider{}

// SetDefaultTimeProvider sets the package-level time provider for testing.
// Pass nil to reset to the default implementation.
func SetDefaultTimeProvider(tp TimeProvider) {
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	defaultTimeProvider = tp
}

func getDefaultTimeProvider() TimeProvider {
	return defaultTimeProvider
}

// NodeStatus represents the liveness status of a routing table entry.
type NodeStatus uint8

const (
	StatusUnknown NodeStatus = iota
	StatusBad
	StatusGood
)

// PingStats tracks ping statistics for a node.
type PingStats struct {
	LastPingSent     time.Time
	LastPingReceived time.Time
	PingCount        uint32
	SuccessCount     uint32
	FailureCount     uint32
}

// NodeAddress is the routing table's entry type: a peer's public key, its
// derived IPv6 address, and the fabric label that currently reaches it.
// This is the network's NodeAddress tuple {key, ip6, label}.
type NodeAddress struct {
	Key       [32]byte
	IP6       [16]byte
	Label     wire.FabricLabel
	LastSeen  time.Time
	Status    NodeStatus
	PingStats PingStats
}

// NewNodeAddress creates a routing table entry for a peer.
func NewNodeAddress(key [32]byte, ip6 [16]byte, label wire.FabricLabel) *NodeAddress {
	return NewNodeAddressWithTimeProvider(key, ip6, label, nil)
}

// NewNodeAddressWithTimeProvider creates a NodeAddress with a custom time provider.
func NewNodeAddressWithTimeProvider(key [32]byte, ip6 [16]byte, label wire.FabricLabel, tp TimeProvider) *NodeAddress {
	if tp == nil {
		tp = getDefaultTimeProvider()
	}
	return &NodeAddress{
		Key:      key,
		IP6:      ip6,
		Label:    label,
		LastSeen: tp.Now(),
		Status:   StatusUnknown,
	}
}

// Distance calculates the XOR distance between two addresses' IP6 fields.
// Routing decisions in this table are keyed by destination IP6, not by
// public key, since GetBest is always asked "who is closest to this
// address".
func (n *NodeAddress) Distance(other *NodeAddress) [16]byte {
	var result [16]byte
	for i := 0; i < 16; i++ {
		result[i] = n.IP6[i] ^ other.IP6[i]
	}
	return result
}

// IsActive checks if the node has been seen within the timeout period.
func (n *NodeAddress) IsActive(timeout time.Duration) bool {
	return time.Since(n.LastSeen) < timeout
}

// Update marks the node as recently seen and updates its status.
func (n *NodeAddress) Update(status NodeStatus) {
	n.UpdateWithTimeProvider(status, nil)
}

// UpdateWithTimeProvider marks the node as recently seen with a custom time provider.
func (n *NodeAddress) UpdateWithTimeProvider(status NodeStatus, tp TimeProvider) {
	if tp == nil {
		tp = getDefaultTimeProvider()
	}
	n.LastSeen = tp.Now()
	n.Status = status
}

// RecordPingSent marks that a ping was sent to this node.
func (n *NodeAddress) RecordPingSent() {
	tp := getDefaultTimeProvider()
	n.PingStats.LastPingSent = tp.Now()
	n.PingStats.PingCount++
}

// RecordPingResponse marks that a ping response was received from this node.
func (n *NodeAddress) RecordPingResponse(success bool) {
	tp := getDefaultTimeProvider()
	if success {
		n.PingStats.LastPingReceived = tp.Now()
		n.PingStats.SuccessCount++
		n.UpdateWithTimeProvider(StatusGood, tp)
	} else {
		n.PingStats.FailureCount++
		if n.PingStats.FailureCount > n.PingStats.SuccessCount {
			n.UpdateWithTimeProvider(StatusBad, tp)
		}
	}
}

// GetReliability returns a reliability score for this node (0.0-1.0).
func (n *NodeAddress) GetReliability() float64 {
	if n.PingStats.PingCount == 0 {
		return 0.0
	}
	return float64(n.PingStats.SuccessCount) / float64(n.PingStats.PingCount)
}
