package crypto

import (
	"golang.org/x/crypto/blake2b"
)

// addressPrefixByte is the network's reserved high byte: every valid
// address here lives in the fc00::/8 range.
const addressPrefixByte = 0xFC

// DeriveIP6 computes the node's canonical IPv6 address from its public key
// as the first 16 bytes of a BLAKE2b-256 hash of the key. The result is NOT
// forced into fc00::/8 —
// only a fraction of keys hash into the network's valid range, the same way
// the network this module is modeled on requires nodes to grind for a
// qualifying keypair. Callers MUST check IsValidNetworkAddress before
// trusting a derived address; DeriveIP6 does not choose keys, and
// GenerateKeyPair returns keys without regard to the range, so any key
// handed to it may legitimately fall outside the range.
//
// DeriveIP6 is used in exactly three places in this module (self address,
// a session's peer-derived address, and inbound source-address binding) and
// must stay byte-identical across all three; it is a pure function of key
// for that reason.
func DeriveIP6(key [32]byte) [16]byte {
	sum := blake2b.Sum256(key[:])
	var ip6 [16]byte
	copy(ip6[:], sum[:16])
	return ip6
}

// IsValidNetworkAddress reports whether ip6 begins with the network's
// reserved prefix byte.
func IsValidNetworkAddress(ip6 [16]byte) bool {
	return ip6[0] == addressPrefixByte
}
