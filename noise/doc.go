// Package noise implements the single Noise Protocol Framework pattern
// this module needs: IK (Initiator with Knowledge), built on the formally
// verified flynn/noise library with ChaCha20-Poly1305 encryption, SHA256
// hashing, and Curve25519 key exchange.
//
// # IK pattern (Initiator with Knowledge)
//
// Every handshake in this module either already knows its peer's static
// key (an outer session opened because the DHT router named a target, or
// an inner session opened for a packet from the TUN device) or learns it during the
// handshake as a responder (an outer session created on first packet from
// an unknown fabric label). That is exactly IK's shape, so it is the only
// pattern implemented.
//
// Security properties:
//   - Mutual authentication: both parties verify each other's identity.
//   - Forward secrecy: compromise of long-term keys doesn't expose past
//     sessions.
//   - Key Compromise Impersonation (KCI) resistance.
//   - Identity hiding: the initiator's identity is protected from passive
//     observers.
//
// Message flow (2 messages, 1 round trip):
//
//	Initiator                              Responder
//	─────────                              ─────────
//	-> e, es, s, ss  (ephemeral, static)
//	                                       <- e, ee, se  (ephemeral)
//	[session established]
//
// Example usage:
//
//	// Initiator (knows peer's public key)
//	ik, err := noise.NewIKHandshake(myPrivKey, peerPubKey, noise.Initiator)
//	if err != nil {
//	    return err
//	}
//	msg, _, err := ik.WriteMessage(nil, nil)  // Create initial message
//	// Send msg to peer...
//	// Receive response...
//	payload, complete, err := ik.ReadMessage(response)
//	if complete {
//	    send, recv, _ := ik.GetCipherStates()
//	    // Use send/recv for encrypted communication
//	}
//
//	// Responder (doesn't need peer's key initially)
//	ik, err := noise.NewIKHandshake(myPrivKey, nil, noise.Responder)
//	reply, _, err := ik.WriteMessage(nil, receivedMsg)  // Process and build the reply
//	// Send reply to peer...
//	// Get peer's key after handshake
//	peerKey, _ := ik.GetRemoteStaticKey()
//
// # Security considerations
//
// Replay protection: each IKHandshake includes a unique 32-byte nonce
// accessible via GetNonce(). Nothing in this module records or checks used
// nonces; the crypto.OuterSession and crypto.InnerSession wrappers do not
// track them.
//
// Timestamp validation: IKHandshake includes a Unix timestamp via
// GetTimestamp(). Recommended limits: maximum age 5 minutes, maximum future
// drift 1 minute.
//
// Key verification: after a successful handshake, AddressBinder verifies
// the peer's identity by deriving its IPv6 address from GetRemoteStaticKey()
// and comparing it to the claimed source address (spec Property 1).
//
// Secure memory: private key material is wiped with crypto.ZeroBytes()
// after key derivation to minimize the exposure window.
//
// # Cipher suite
//
//   - DH: Curve25519 (X25519 key exchange)
//   - Cipher: ChaCha20-Poly1305 (AEAD encryption)
//   - Hash: SHA256 (key derivation and authentication)
//
// # Thread safety
//
// IKHandshake instances are thread-safe for concurrent getter calls, but a
// single instance should only be driven from one goroutine — the protocol
// requires sequential message processing. The resulting CipherStates are
// NOT thread-safe; concurrent encrypt/decrypt calls need external
// synchronization, which is exactly why this module's single-threaded
// dispatch model (spec §5) never calls a session's ciphers concurrently.
package noise
