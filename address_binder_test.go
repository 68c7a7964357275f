package ducttape

import (
	"crypto/rand"
	"testing"

	"github.com/opd-ai/ducttape/crypto"
	"github.com/opd-ai/ducttape/fabric"
	"github.com/opd-ai/ducttape/router"
	"github.com/stretchr/testify/require"
)

// validNetworkKey generates a random 32-byte key whose derived address
// happens to land in the network's valid range, retrying until it does.
func validNetworkKey(t *testing.T) ([32]byte, [16]byte) {
	t.Helper()
	for {
		var key [32]byte
		_, err := rand.Read(key[:])
		require.NoError(t, err)
		ip6 := crypto.DeriveIP6(key)
		if crypto.IsValidNetworkAddress(ip6) {
			return key, ip6
		}
	}
}

func newTestCore(t *testing.T) *Core {
	t.Helper()
	priv, _ := validNetworkKey(t)
	sw := fabric.NewLoopbackSwitch()
	core, err := Register(&Config{PrivateKey: priv, Fabric: sw})
	require.NoError(t, err)
	return core
}

func TestVerifyBindAcceptsAddressDerivedFromKey(t *testing.T) {
	core := newTestCore(t)

	peerKey, claimed := validNetworkKey(t)

	require.True(t, core.verifyBind(peerKey, claimed))
}

func TestVerifyBindRejectsMismatchedAddress(t *testing.T) {
	core := newTestCore(t)

	var peerKey [32]byte
	peerKey[0] = 0x22
	var wrongClaim [16]byte
	wrongClaim[0] = 0xFC
	wrongClaim[1] = 0xFF

	require.False(t, core.verifyBind(peerKey, wrongClaim))
}

func TestAnnouncePeerSkipsOracleOnMismatch(t *testing.T) {
	selfPriv, _ := validNetworkKey(t)
	keys, err := crypto.FromSecretKey(selfPriv)
	require.NoError(t, err)
	selfIP6 := crypto.DeriveIP6(keys.Public)

	oracle := router.NewKademliaTable(router.NodeAddress{Key: keys.Public, IP6: selfIP6}, 8)
	sw := fabric.NewLoopbackSwitch()
	core, err := Register(&Config{PrivateKey: selfPriv, Fabric: sw, Router: oracle})
	require.NoError(t, err)

	var peerKey [32]byte
	peerKey[0] = 0x44
	var bogusClaim [16]byte
	bogusClaim[0] = 0xFC
	bogusClaim[1] = 0x01

	core.announcePeer(peerKey, bogusClaim, 0)

	_, found := oracle.GetBest(bogusClaim)
	require.False(t, found, "a claim that does not derive from the peer key must never reach the oracle")
}

func TestAnnouncePeerAddsVerifiedBinding(t *testing.T) {
	selfPriv, _ := validNetworkKey(t)
	keys, err := crypto.FromSecretKey(selfPriv)
	require.NoError(t, err)
	selfIP6 := crypto.DeriveIP6(keys.Public)

	oracle := router.NewKademliaTable(router.NodeAddress{Key: keys.Public, IP6: selfIP6}, 8)
	sw := fabric.NewLoopbackSwitch()
	core, err := Register(&Config{PrivateKey: selfPriv, Fabric: sw, Router: oracle})
	require.NoError(t, err)

	peerKey, claimed := validNetworkKey(t)

	core.announcePeer(peerKey, claimed, 42)

	got, found := oracle.GetBest(claimed)
	require.True(t, found)
	require.Equal(t, peerKey, got.Key)
}
