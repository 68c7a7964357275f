// Package router's KademliaTable implements the DHT routing table using
// Kademlia k-bucket principles, keyed by XOR distance over destination IPv6
// addresses rather than a separate node-ID space: on this network the IPv6
// address IS the routing key, since it is what GetBest is always asked for.
//
// The table provides:
//   - 128 k-buckets organized by XOR distance over the 16-byte IP6 field
//   - Node management with status tracking and lifecycle handling
//   - Closest-node discovery for GetBest
//   - Stale node removal through RemoveStaleNodes, run when the caller invokes it
//   - Thread-safe concurrent access with read-write mutex protection
package router

import (
	"sort"
	"sync"
	"time"

	"github.com/opd-ai/ducttape/wire"
)

// numBuckets is the number of XOR-distance buckets: one per bit of a
// 16-byte IPv6 address.
const numBuckets = 128

// KBucket stores up to maxSize NodeAddress entries within a specific
// distance range from the local node. New nodes replace bad nodes when the
// bucket is full; stable good nodes are preferred over new ones.
type KBucket struct {
	nodes   []*NodeAddress
	maxSize int
	mu      sync.RWMutex
}

// NewKBucket creates a k-bucket with the given maximum capacity.
func NewKBucket(maxSize int) *KBucket {
	return &KBucket{
		nodes:   make([]*NodeAddress, 0, maxSize),
		maxSize: maxSize,
	}
}

// AddNode adds or updates a node in the bucket, following the Kademlia
// replacement strategy: update-and-promote if already present, append if
// there is space, replace a bad node if full, otherwise reject.
func (kb *KBucket) AddNode(node *NodeAddress) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	for i, existing := range kb.nodes {
		if existing.IP6 == node.IP6 {
			kb.nodes = append(kb.nodes[:i], kb.nodes[i+1:]...)
			kb.nodes = append(kb.nodes, node)
			return true
		}
	}

	if len(kb.nodes) < kb.maxSize {
		kb.nodes = append(kb.nodes, node)
		return true
	}

	for i, existing := range kb.nodes {
		if existing.Status == StatusBad {
			kb.nodes[i] = node
			return true
		}
	}

	return false
}

// GetNodes returns a copy of all nodes in the bucket.
func (kb *KBucket) GetNodes() []*NodeAddress {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	result := make([]*NodeAddress, len(kb.nodes))
	copy(result, kb.nodes)
	return result
}

// RemoveNode removes the node with the given IP6 address, if present.
func (kb *KBucket) RemoveNode(ip6 [16]byte) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	for i, node := range kb.nodes {
		if node.IP6 == ip6 {
			lastIndex := len(kb.nodes) - 1
			if i != lastIndex {
				kb.nodes[i] = kb.nodes[lastIndex]
			}
			kb.nodes = kb.nodes[:lastIndex]
			return true
		}
	}
	return false
}

// KademliaTable is the reference Oracle implementation: a 128-bucket
// Kademlia routing table keyed by XOR distance over destination IP6.
type KademliaTable struct {
	kBuckets [numBuckets]*KBucket
	self     NodeAddress
	maxNodes int
	mu       sync.RWMutex
}

// NewKademliaTable creates a routing table for the local node, with
// maxBucketSize entries allowed per bucket.
func NewKademliaTable(self NodeAddress, maxBucketSize int) *KademliaTable {
	rt := &KademliaTable{
		self:     self,
		maxNodes: maxBucketSize * numBuckets,
	}
	for i := 0; i < numBuckets; i++ {
		rt.kBuckets[i] = NewKBucket(maxBucketSize)
	}
	return rt
}

// AddNode adds a peer address to the appropriate bucket. Self-addition is
// rejected to avoid routing loops.
func (rt *KademliaTable) AddNode(addr NodeAddress) {
	if addr.IP6 == rt.self.IP6 {
		return
	}

	node := &NodeAddress{
		Key:       addr.Key,
		IP6:       addr.IP6,
		Label:     addr.Label,
		LastSeen:  addr.LastSeen,
		Status:    addr.Status,
		PingStats: addr.PingStats,
	}
	if node.LastSeen.IsZero() {
		node.LastSeen = getDefaultTimeProvider().Now()
	}

	dist := node.Distance(&rt.self)
	bucketIndex := getBucketIndex(dist)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.kBuckets[bucketIndex].AddNode(node)
}

// GetBest returns the closest known node to destIP6, the network's
// definition of "best next hop": GetBest never guarantees reachability,
// only that it is the closest candidate this table currently knows.
func (rt *KademliaTable) GetBest(destIP6 [16]byte) (NodeAddress, bool) {
	closest := rt.findClosestNodes(destIP6, 1)
	if len(closest) == 0 {
		return NodeAddress{}, false
	}
	return *closest[0], true
}

// BrokenPath marks every entry routed through label as bad, so GetBest
// stops offering it until a fresh AddNode call revives it.
func (rt *KademliaTable) BrokenPath(label wire.FabricLabel) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for _, bucket := range rt.kBuckets {
		for _, node := range bucket.GetNodes() {
			if node.Label == label {
				node.Update(StatusBad)
			}
		}
	}
}

// findClosestNodes collects all nodes, sorts by XOR distance to target,
// and returns up to count closest.
func (rt *KademliaTable) findClosestNodes(target [16]byte, count int) []*NodeAddress {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	targetNode := &NodeAddress{IP6: target}

	allNodes := make([]*NodeAddress, 0, rt.maxNodes)
	for _, bucket := range rt.kBuckets {
		for _, node := range bucket.GetNodes() {
			if node.Status != StatusBad {
				n := *node
				allNodes = append(allNodes, &n)
			}
		}
	}

	sort.Slice(allNodes, func(i, j int) bool {
		distI := allNodes[i].Distance(targetNode)
		distJ := allNodes[j].Distance(targetNode)
		return lessDistance(distI, distJ)
	})

	if len(allNodes) > count {
		allNodes = allNodes[:count]
	}
	return allNodes
}

// getBucketIndex finds the position of the first differing bit between two
// IP6 addresses, which determines bucket placement.
func getBucketIndex(distance [16]byte) int {
	for i := 0; i < 16; i++ {
		if distance[i] == 0 {
			continue
		}
		b := distance[i]
		for j := 0; j < 8; j++ {
			if (b>>(7-j))&1 == 1 {
				return i*8 + j
			}
		}
	}
	return numBuckets - 1
}

// lessDistance compares two XOR distances lexicographically.
func lessDistance(a, b [16]byte) bool {
	for i := 0; i < 16; i++ {
		if a[i] < b[i] {
			return true
		} else if a[i] > b[i] {
			return false
		}
	}
	return false
}

// RemoveStaleNodes removes nodes that haven't been seen within maxAge,
// returning the number removed.
func (rt *KademliaTable) RemoveStaleNodes(maxAge time.Duration) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, bucket := range rt.kBuckets {
		for _, node := range bucket.GetNodes() {
			if now.Sub(node.LastSeen) > maxAge {
				if bucket.RemoveNode(node.IP6) {
					removed++
				}
			}
		}
	}
	return removed
}

// GetTotalNodeCount returns the total number of nodes across all buckets.
func (rt *KademliaTable) GetTotalNodeCount() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	count := 0
	for _, bucket := range rt.kBuckets {
		count += len(bucket.GetNodes())
	}
	return count
}
