// Command ducttaped wires up two Core instances over an in-memory loopback
// fabric and prints their addresses, as a minimal example of registering
// Cores and connecting their fabrics. It sends no packets: neither core is
// given a routing oracle that knows the other.
package main

import (
	"crypto/rand"
	"fmt"
	"log"

	"github.com/opd-ai/ducttape"
	"github.com/opd-ai/ducttape/crypto"
	"github.com/opd-ai/ducttape/fabric"
	"github.com/opd-ai/ducttape/tuniface"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetLevel(logrus.WarnLevel)

	aPriv, aIP6, err := groundedIdentity()
	if err != nil {
		log.Fatalf("generating node A identity: %v", err)
	}
	bPriv, bIP6, err := groundedIdentity()
	if err != nil {
		log.Fatalf("generating node B identity: %v", err)
	}

	aSwitch := fabric.NewLoopbackSwitch()
	bSwitch := fabric.NewLoopbackSwitch()
	aTun := tuniface.NewMemDevice(8)
	bTun := tuniface.NewMemDevice(8)

	coreA, err := ducttape.Register(&ducttape.Config{PrivateKey: aPriv, Fabric: aSwitch, Tun: aTun})
	if err != nil {
		log.Fatalf("registering node A: %v", err)
	}
	coreB, err := ducttape.Register(&ducttape.Config{PrivateKey: bPriv, Fabric: bSwitch, Tun: bTun})
	if err != nil {
		log.Fatalf("registering node B: %v", err)
	}

	fabric.ConnectLoopback(aSwitch, bSwitch, coreA, coreB)

	fmt.Printf("node A address: %x\n", aIP6)
	fmt.Printf("node B address: %x\n", bIP6)
	fmt.Println("two cores are wired over an in-memory fabric; supply a routing oracle")
	fmt.Println("seeded with each other's NodeAddress to exchange packets end to end")
}

// groundedIdentity generates a fresh key pair and derives its network
// address, retrying until the derived address happens to fall in the
// network's valid range (nodes on this network grind for a qualifying key
// the same way).
func groundedIdentity() ([32]byte, [16]byte, error) {
	for {
		var priv [32]byte
		if _, err := rand.Read(priv[:]); err != nil {
			return [32]byte{}, [16]byte{}, err
		}
		keys, err := crypto.FromSecretKey(priv)
		if err != nil {
			return [32]byte{}, [16]byte{}, err
		}
		ip6 := crypto.DeriveIP6(keys.Public)
		if crypto.IsValidNetworkAddress(ip6) {
			return priv, ip6, nil
		}
	}
}
