package crypto

import (
	"fmt"
	"sync"

	"github.com/opd-ai/ducttape/noise"
)

// InnerSession is the content/end-to-end cryptographic session keyed by the
// peer's 16-byte IPv6 address, independent of which fabric path carries it.
type InnerSession struct {
	*handshakeSession
	peerIP6 [16]byte
}

// NewInnerSession creates an inner session for peerIP6. If peerPub is
// non-nil the session is an initiator (the TUN path already knows who
// it's talking to); otherwise it is a responder learning the peer's key
// during the handshake. DHT traffic sent through Core.HandleOutgoing does
// not use an inner session; it travels under the outer session only.
func NewInnerSession(selfPriv [32]byte, peerPub *[32]byte, peerIP6 [16]byte) (*InnerSession, error) {
	role := noise.Responder
	if peerPub != nil {
		role = noise.Initiator
	}

	base, err := newHandshakeSession(selfPriv, peerPub, role)
	if err != nil {
		return nil, fmt.Errorf("creating inner session for %x: %w", peerIP6, err)
	}

	return &InnerSession{handshakeSession: base, peerIP6: peerIP6}, nil
}

// PeerIP6 returns the IPv6 address this session is keyed by.
func (s *InnerSession) PeerIP6() [16]byte {
	return s.peerIP6
}

// InnerSessionManager is the session-manager façade the content layer
// bridges to: it owns one InnerSession per peer address, created lazily, and
// exposes the two callback shapes InnerCryptoAdapter drives.
type InnerSessionManager struct {
	selfPriv [32]byte
	mu       sync.Mutex
	sessions map[[16]byte]*InnerSession
}

// NewInnerSessionManager creates a manager bound to the local private key.
func NewInnerSessionManager(selfPriv [32]byte) *InnerSessionManager {
	return &InnerSessionManager{
		selfPriv: selfPriv,
		sessions: make(map[[16]byte]*InnerSession),
	}
}

// getOrCreate returns the session for peerIP6, creating one if none exists
// yet: an initiator bound to peerPub, or a responder when peerPub is nil.
func (m *InnerSessionManager) getOrCreate(peerIP6 [16]byte, peerPub *[32]byte) (*InnerSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[peerIP6]; ok {
		return s, nil
	}

	s, err := NewInnerSession(m.selfPriv, peerPub, peerIP6)
	if err != nil {
		return nil, err
	}
	m.sessions[peerIP6] = s
	return s, nil
}

// Send is the outgoingFromMe callback: encrypt plaintext addressed to
// peerIP6, driving the handshake first if the session isn't established
// yet. peerPub must be supplied the first time a given destination is
// contacted; it may be nil on subsequent calls once the session exists.
func (m *InnerSessionManager) Send(peerIP6 [16]byte, peerPub *[32]byte, plaintext []byte) ([]byte, error) {
	s, err := m.getOrCreate(peerIP6, peerPub)
	if err != nil {
		return nil, err
	}

	if !s.IsEstablished() {
		return s.WriteHandshake(plaintext)
	}
	return s.Encrypt(plaintext)
}

// ReceiveResult is what the incomingForMe callback returns: at most one of
// Plaintext or EchoReply is set. EchoReply is the self-addressed echo case
// of Property 5 — the session, asked to decrypt, instead produced its own
// handshake reply that must be routed back to the sender rather than
// delivered locally.
type ReceiveResult struct {
	Plaintext []byte
	EchoReply []byte
}

// Receive is the incomingForMe callback: decrypt ciphertext arriving from
// peerIP6. If no established session exists yet, the bytes are treated as
// a handshake message and may produce an EchoReply that the dispatcher must
// forward back to the sender instead of delivering locally.
func (m *InnerSessionManager) Receive(peerIP6 [16]byte, ciphertext []byte) (ReceiveResult, error) {
	s, err := m.getOrCreate(peerIP6, nil)
	if err != nil {
		return ReceiveResult{}, err
	}

	if !s.IsEstablished() {
		payload, reply, err := s.ReadHandshake(ciphertext)
		if err != nil {
			return ReceiveResult{}, err
		}
		if reply != nil {
			return ReceiveResult{EchoReply: reply}, nil
		}
		return ReceiveResult{Plaintext: payload}, nil
	}

	plaintext, err := s.Decrypt(ciphertext)
	if err != nil {
		return ReceiveResult{}, err
	}
	return ReceiveResult{Plaintext: plaintext}, nil
}

// PeerKey returns the established peer key for peerIP6, if a session exists
// and has learned it.
func (m *InnerSessionManager) PeerKey(peerIP6 [16]byte) ([32]byte, bool) {
	m.mu.Lock()
	s, ok := m.sessions[peerIP6]
	m.mu.Unlock()
	if !ok {
		return [32]byte{}, false
	}
	return s.PeerKey()
}
