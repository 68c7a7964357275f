package router

import "github.com/opd-ai/ducttape/wire"

// Oracle is the DHT routing interface the core consults for next-hop
// decisions. A single bootstrap caller wires a concrete Oracle (typically
// a *KademliaTable) into the core at registration time.
type Oracle interface {
	// GetBest returns the best known next hop toward destIP6, or false if
	// no candidate is known.
	GetBest(destIP6 [16]byte) (NodeAddress, bool)

	// AddNode registers a newly learned peer address.
	AddNode(addr NodeAddress)

	// BrokenPath reports that the fabric considers label unreachable; the
	// table should mark any entry routed through it as bad so GetBest
	// stops offering it.
	BrokenPath(label wire.FabricLabel)
}
