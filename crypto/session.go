package crypto

import (
	"errors"
	"fmt"

	"github.com/flynn/noise"
	ducttapenoise "github.com/opd-ai/ducttape/noise"
)

// ErrSessionNotEstablished indicates an encrypt/decrypt call was made before
// the handshake completed.
var ErrSessionNotEstablished = errors.New("session handshake not complete")

// handshakeSession is the common shape both OuterSession and InnerSession
// build on: drive an IK handshake to completion, then switch to transport
// encryption using the resulting cipher states. Neither layer needs more
// than this — the difference between them is purely what key they are
// bound to (fabric label vs. IPv6 address), which the two thin wrapper
// types around this struct express.
type handshakeSession struct {
	ik         *ducttapenoise.IKHandshake
	sendCipher *noise.CipherState
	recvCipher *noise.CipherState
	peerKey    [32]byte
	haveKey    bool
}

func newHandshakeSession(selfPriv [32]byte, peerPub *[32]byte, role ducttapenoise.HandshakeRole) (*handshakeSession, error) {
	var peerBytes []byte
	if peerPub != nil {
		peerBytes = peerPub[:]
	}

	ik, err := ducttapenoise.NewIKHandshake(selfPriv[:], peerBytes, role)
	if err != nil {
		return nil, fmt.Errorf("creating handshake session: %w", err)
	}

	s := &handshakeSession{ik: ik}
	if peerPub != nil {
		s.peerKey = *peerPub
		s.haveKey = true
	}
	return s, nil
}

// IsEstablished reports whether the handshake has completed and transport
// ciphers are ready.
func (s *handshakeSession) IsEstablished() bool {
	return s.ik.IsComplete()
}

// PeerKey returns the peer's static public key, known either up front (we
// were the initiator) or learned during the handshake (we were the
// responder).
func (s *handshakeSession) PeerKey() ([32]byte, bool) {
	if s.haveKey {
		return s.peerKey, true
	}
	if !s.ik.IsComplete() {
		return [32]byte{}, false
	}
	remote, err := s.ik.GetRemoteStaticKey()
	if err != nil || len(remote) != 32 {
		return [32]byte{}, false
	}
	copy(s.peerKey[:], remote)
	s.haveKey = true
	return s.peerKey, true
}

// WriteHandshake drives the next outbound handshake message.
func (s *handshakeSession) WriteHandshake(payload []byte) ([]byte, error) {
	logger := NewLogger("WriteHandshake")
	msg, complete, err := s.ik.WriteMessage(payload, nil)
	if err != nil {
		logger.WithError(err, "handshake_write_failed", "write_handshake").Warn("failed to write handshake message")
		return nil, fmt.Errorf("writing handshake message: %w", err)
	}
	if complete {
		s.sendCipher, s.recvCipher, err = s.ik.GetCipherStates()
		if err != nil {
			logger.WithError(err, "cipher_state_failed", "write_handshake").Error("failed to retrieve cipher states after handshake completion")
			return nil, fmt.Errorf("retrieving cipher states: %w", err)
		}
		logger.Info("handshake completed on write")
	}
	return msg, nil
}

// ReadHandshake processes an inbound handshake message. For a responder
// driving its first message it also returns the responder's own reply in
// the same call, matching how WriteMessage's responder branch behaves.
func (s *handshakeSession) ReadHandshake(msg []byte) ([]byte, []byte, error) {
	logger := NewLogger("ReadHandshake")
	if s.ik.IsComplete() {
		return nil, nil, ducttapenoise.ErrHandshakeComplete
	}

	switch s.ik.Role() {
	case ducttapenoise.Initiator:
		payload, complete, err := s.ik.ReadMessage(msg)
		if err != nil {
			logger.WithError(err, "handshake_read_failed", "read_handshake_initiator").Warn("failed to read handshake response")
			return payload, nil, fmt.Errorf("reading handshake response: %w", err)
		}
		if complete {
			s.sendCipher, s.recvCipher, err = s.ik.GetCipherStates()
			if err != nil {
				logger.WithError(err, "cipher_state_failed", "read_handshake_initiator").Error("failed to retrieve cipher states after handshake completion")
				return payload, nil, fmt.Errorf("retrieving cipher states: %w", err)
			}
			logger.Info("handshake completed on read")
		}
		return payload, nil, nil
	default:
		reply, complete, err := s.ik.WriteMessage(nil, msg)
		if err != nil {
			logger.WithError(err, "handshake_reply_failed", "read_handshake_responder").Warn("failed to process handshake and write reply")
			return nil, nil, fmt.Errorf("processing handshake and writing reply: %w", err)
		}
		if complete {
			s.sendCipher, s.recvCipher, err = s.ik.GetCipherStates()
			if err != nil {
				logger.WithError(err, "cipher_state_failed", "read_handshake_responder").Error("failed to retrieve cipher states after handshake completion")
				return nil, reply, fmt.Errorf("retrieving cipher states: %w", err)
			}
			logger.Info("handshake completed on responder reply")
		}
		return nil, reply, nil
	}
}

// Encrypt encrypts a transport message. The session must be established.
func (s *handshakeSession) Encrypt(plaintext []byte) ([]byte, error) {
	if s.sendCipher == nil {
		return nil, ErrSessionNotEstablished
	}
	return s.sendCipher.Encrypt(nil, nil, plaintext), nil
}

// Decrypt decrypts a transport message. The session must be established.
func (s *handshakeSession) Decrypt(ciphertext []byte) ([]byte, error) {
	if s.recvCipher == nil {
		return nil, ErrSessionNotEstablished
	}
	plaintext, err := s.recvCipher.Decrypt(nil, nil, ciphertext)
	if err != nil {
		NewLogger("Decrypt").WithError(err, "transport_decrypt_failed", "decrypt").Warn("failed to decrypt transport message")
		return nil, fmt.Errorf("decrypting transport message: %w", err)
	}
	return plaintext, nil
}
