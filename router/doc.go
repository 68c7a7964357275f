// Package router implements the DHT routing oracle this module's core
// consults to find the next hop for a destination address: a Kademlia-style
// routing table of NodeAddress entries, organized into k-buckets by XOR
// distance over the destination's IPv6 address.
//
// The oracle interface (GetBest, AddNode, BrokenPath) is deliberately small:
// the core only ever asks "who is closest to this destination", tells the
// table about newly learned nodes, and reports a path that a fabric control
// frame says is broken. Everything else — bootstrap, liveness pinging,
// gossip — is the caller's concern and lives outside this package.
//
// Example:
//
//	table := router.NewKademliaTable(selfAddr, 8)
//	table.AddNode(peer)
//	next, ok := table.GetBest(destIP6)
package router
