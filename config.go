package ducttape

import (
	"fmt"
	"time"

	"github.com/opd-ai/ducttape/crypto"
	"github.com/opd-ai/ducttape/fabric"
	"github.com/opd-ai/ducttape/router"
	"github.com/opd-ai/ducttape/tuniface"
	"github.com/sirupsen/logrus"
)

// DHTRegistry is the interface the core delivers decrypted router-to-router
// traffic to. The core itself satisfies HandleOutgoing for the registry to
// call the other direction.
type DHTRegistry interface {
	HandleIncoming(msg DHTMessage) error
}

// Config supplies everything Register needs to wire up a Core: the local
// identity, the DHT collaborators, an optional TUN device, the fabric
// switch, and a logger. Mirrors toxcore's Options/NewOptions constructor
// pattern rather than a config-file loader — this module's caller-facing
// knobs are a handful of collaborator handles, not deployment settings.
type Config struct {
	// PrivateKey is the local node's long-term Curve25519 private key.
	PrivateKey [32]byte

	// Fabric is the label-switching switch frames are sent to. Required.
	Fabric fabric.Switch

	// Tun is the local tunnel device. Optional: a nil Tun means this node
	// has no local host IPv6 stack and cannot deliver application packets,
	// only relay them.
	Tun tuniface.Device

	// Router is the DHT routing oracle consulted for next-hop decisions.
	// If nil, a fresh router.KademliaTable is created.
	Router router.Oracle

	// Registry is the DHT registry incoming router-to-router traffic is
	// delivered to. If nil, incoming DHT traffic is logged and dropped.
	Registry DHTRegistry

	// SessionMaxAge bounds how long an outer session may sit idle before
	// eviction. Zero selects defaultSessionMaxAge.
	SessionMaxAge time.Duration

	// Logger overrides the package-level logrus logger. Nil uses
	// logrus.StandardLogger().
	Logger *logrus.Logger
}

// Register creates a Core from cfg, deriving the local NodeAddress from the
// private key and wiring the collaborators together, mirroring toxcore's
// single New(options) constructor call.
func Register(cfg *Config) (*Core, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ducttape.Register: nil config")
	}
	if cfg.Fabric == nil {
		return nil, ErrNoFabric
	}

	keys, err := crypto.FromSecretKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("ducttape.Register: deriving keypair: %w", err)
	}

	selfIP6 := crypto.DeriveIP6(keys.Public)
	if !crypto.IsValidNetworkAddress(selfIP6) {
		return nil, fmt.Errorf("ducttape.Register: local key derives to out-of-range address %x", selfIP6)
	}

	oracle := cfg.Router
	if oracle == nil {
		oracle = router.NewKademliaTable(router.NodeAddress{
			Key: keys.Public,
			IP6: selfIP6,
		}, defaultBucketSize)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	maxAge := cfg.SessionMaxAge
	if maxAge == 0 {
		maxAge = defaultSessionMaxAge
	}

	core := &Core{
		selfKeys:  *keys,
		selfIP6:   selfIP6,
		fabric:    cfg.Fabric,
		tun:       cfg.Tun,
		oracle:    oracle,
		registry:  cfg.Registry,
		sessions:  newSessionTable(cfg.PrivateKey, maxAge, nil),
		inner:     crypto.NewInnerSessionManager(cfg.PrivateKey),
		log:       logger.WithField("package", "ducttape"),
	}

	if cfg.Tun != nil {
		cfg.Tun.SetReceiveFunc(core.InFromTun)
	}

	return core, nil
}
