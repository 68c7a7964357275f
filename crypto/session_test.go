package crypto

import (
	"testing"

	"github.com/opd-ai/ducttape/wire"
)

func mustKeyPair(t *testing.T) *KeyPair {
	t.Helper()
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return kp
}

func TestOuterSessionHandshakeEstablishesCiphers(t *testing.T) {
	initKeys := mustKeyPair(t)
	respKeys := mustKeyPair(t)

	initiator, err := NewOuterSession(initKeys.Private, &respKeys.Public, wire.FabricLabel(1), nil)
	if err != nil {
		t.Fatalf("NewOuterSession(initiator): %v", err)
	}
	responder, err := NewOuterSession(respKeys.Private, nil, wire.FabricLabel(1), nil)
	if err != nil {
		t.Fatalf("NewOuterSession(responder): %v", err)
	}

	msg1, err := initiator.WriteHandshake(nil)
	if err != nil {
		t.Fatalf("initiator.WriteHandshake: %v", err)
	}

	_, reply, err := responder.ReadHandshake(msg1)
	if err != nil {
		t.Fatalf("responder.ReadHandshake: %v", err)
	}
	if reply == nil {
		t.Fatal("expected responder to produce a reply message")
	}
	if !responder.IsEstablished() {
		t.Fatal("expected responder session established after first exchange")
	}

	if _, _, err := initiator.ReadHandshake(reply); err != nil {
		t.Fatalf("initiator.ReadHandshake: %v", err)
	}
	if !initiator.IsEstablished() {
		t.Fatal("expected initiator session established after reading reply")
	}

	plaintext := []byte("hello fabric")
	ciphertext, err := initiator.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("initiator.Encrypt: %v", err)
	}
	decrypted, err := responder.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("responder.Decrypt: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Errorf("expected %q, got %q", plaintext, decrypted)
	}
}

func TestOuterSessionEncryptBeforeEstablishedFails(t *testing.T) {
	keys := mustKeyPair(t)
	peerKeys := mustKeyPair(t)

	s, err := NewOuterSession(keys.Private, &peerKeys.Public, wire.FabricLabel(9), nil)
	if err != nil {
		t.Fatalf("NewOuterSession: %v", err)
	}

	if _, err := s.Encrypt([]byte("too soon")); err != ErrSessionNotEstablished {
		t.Errorf("expected ErrSessionNotEstablished, got %v", err)
	}
}

func TestInnerSessionManagerSendReceive(t *testing.T) {
	initKeys := mustKeyPair(t)
	respKeys := mustKeyPair(t)

	respIP6 := DeriveIP6(respKeys.Public)
	initMgr := NewInnerSessionManager(initKeys.Private)
	respMgr := NewInnerSessionManager(respKeys.Private)

	handshakeMsg, err := initMgr.Send(respIP6, &respKeys.Public, nil)
	if err != nil {
		t.Fatalf("initMgr.Send: %v", err)
	}

	initIP6 := DeriveIP6(initKeys.Public)
	result, err := respMgr.Receive(initIP6, handshakeMsg)
	if err != nil {
		t.Fatalf("respMgr.Receive: %v", err)
	}
	if result.EchoReply == nil {
		t.Fatal("expected responder to emit a handshake reply")
	}

	finalResult, err := initMgr.Receive(respIP6, result.EchoReply)
	if err != nil {
		t.Fatalf("initMgr.Receive(reply): %v", err)
	}
	_ = finalResult
}
