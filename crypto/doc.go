// Package crypto provides the key material this module's two session
// layers are built on: NaCl/Curve25519 keypairs, ECDH shared-secret
// derivation, the address-prefix hash that turns a public key into the
// node's canonical IPv6 address, and secure-wipe helpers for key material
// that must not linger in memory.
//
// # Core types
//
//   - [KeyPair]: a Curve25519 keypair (Public/Private, 32 bytes each).
//
// # Address derivation
//
// DeriveIP6 is the pure function AddressBinder is built on: it hashes a
// public key down to a 16-byte IPv6 address. Only keys whose derived
// address happens to begin with 0xFC fall within the network's valid
// range; a key that doesn't is simply out of range, not an error.
//
//	addr := crypto.DeriveIP6(keys.Public)
//	if !crypto.IsValidNetworkAddress(addr) { /* key is out of the network's address range */ }
//
// # Thread safety
//
// Key and address derivation depend only on their arguments. The package
// does hold mutable state elsewhere: SetDefaultTimeProvider replaces a
// package-level time provider, InnerSessionManager guards its session map
// with a mutex, and a session's handshake and cipher state is not locked,
// so one session must not be driven from two goroutines at once.
package crypto
