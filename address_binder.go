package ducttape

import (
	"github.com/opd-ai/ducttape/crypto"
	"github.com/opd-ai/ducttape/router"
	"github.com/opd-ai/ducttape/wire"
	"github.com/sirupsen/logrus"
)

// announcePeer verifies that claimedIP6 is the address a peer's public key
// actually derives to, and — only then — tells the routing oracle it can be
// reached at label. Called on every decrypted outer frame, since that is the
// only point where a peer's long-term key and its claimed source address are
// both in hand at once.
func (c *Core) announcePeer(peerKey [32]byte, claimedIP6 [16]byte, label wire.FabricLabel) {
	if !c.verifyBind(peerKey, claimedIP6) {
		return
	}
	c.oracle.AddNode(router.NodeAddress{
		Key:   peerKey,
		IP6:   claimedIP6,
		Label: label,
	})
}

// verifyBind reports whether claimed is the address derived from key,
// implementing AddressBinder.verify_bind. A mismatch is logged with both
// addresses since it either indicates a forged source address or a bug in
// the path that produced claimed.
func (c *Core) verifyBind(key [32]byte, claimed [16]byte) bool {
	expected := crypto.DeriveIP6(key)
	if expected != claimed {
		c.log.WithFields(logrus.Fields{
			"expected": expected,
			"claimed":  claimed,
		}).Warn("address binding mismatch: claimed address does not derive from peer key")
		return false
	}
	if !crypto.IsValidNetworkAddress(claimed) {
		c.log.WithField("claimed", claimed).Warn("address binding mismatch: derived address outside network range")
		return false
	}
	return true
}
