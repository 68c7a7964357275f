package ducttape

import (
	"time"

	"github.com/opd-ai/ducttape/crypto"
	"github.com/opd-ai/ducttape/fabric"
	"github.com/opd-ai/ducttape/router"
	"github.com/opd-ai/ducttape/tuniface"
	"github.com/opd-ai/ducttape/wire"
	"github.com/sirupsen/logrus"
)

const (
	defaultBucketSize    = 8
	defaultSessionMaxAge = 10 * time.Minute
	defaultHopLimit      = 64
)

// DHTMessage is the envelope exchanged with the DHT registry: a router-to-
// router payload and the peer it came from or is addressed to.
type DHTMessage struct {
	Payload []byte
	Peer    router.NodeAddress
}

// PerPacketState is the explicit per-packet envelope threaded through the
// switch-receive pipeline in place of shared mutable context fields: the
// switch header and IP6 header read off the current frame, the peer key the
// outer session has bound to, and the next hop a forwarding decision
// resolved to. A fresh PerPacketState is created per inbound frame and never
// shared across concurrent calls.
type PerPacketState struct {
	SwitchHeader *wire.SwitchHeader
	IP6Header    *wire.IP6Header
	OuterSession *crypto.OuterSession
	PeerKey      [32]byte
	ForwardTo    *router.NodeAddress
}

// Core is the packet-routing and encryption junction: it glues a label-
// switching fabric, the outer (router-to-router) and inner (content)
// cryptographic session layers, a DHT routing oracle, and a local tunnel
// device together behind three entry points — ReceiveFromSwitch,
// InFromTun, and HandleOutgoing.
type Core struct {
	selfKeys crypto.KeyPair
	selfIP6  [16]byte

	fabric   fabric.Switch
	tun      tuniface.Device
	oracle   router.Oracle
	registry DHTRegistry

	sessions *sessionTable
	inner    *crypto.InnerSessionManager

	log *logrus.Entry
}

// SelfIP6 returns the node's own network address, derived from its key pair.
func (c *Core) SelfIP6() [16]byte {
	return c.selfIP6
}

// SelfPublicKey returns the node's own long-term public key.
func (c *Core) SelfPublicKey() [32]byte {
	return c.selfKeys.Public
}
