package fabric

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrNoPeer indicates a LoopbackSwitch was asked to send before a peer was
// registered.
var ErrNoPeer = errors.New("loopback switch: no peer registered")

// Switch is the label-switching fabric interface the core sends frames to.
// A frame is always `[SwitchHeader|ciphertext]`; the fabric bit-reverses
// the label on both directions, which is why Send takes the frame exactly
// as the core produced it — the bit-reversal happens at the real fabric's
// boundary, not in this interface.
type Switch interface {
	// Send emits a frame onto the fabric.
	Send(msg []byte) error
}

// Receiver is implemented by whatever the fabric delivers frames to — in
// this module, the core's inFromSwitch entry point.
type Receiver interface {
	ReceiveFromSwitch(msg []byte) error
}

// LoopbackSwitch is an in-memory Switch that hands every sent frame
// directly to a registered peer Receiver, with no real network in between.
// Used by tests and the example daemon to wire two cores together.
type LoopbackSwitch struct {
	peer Receiver
}

// NewLoopbackSwitch creates a LoopbackSwitch with no peer registered yet.
func NewLoopbackSwitch() *LoopbackSwitch {
	return &LoopbackSwitch{}
}

// SetPeer registers the Receiver that Send delivers frames to.
func (l *LoopbackSwitch) SetPeer(r Receiver) {
	l.peer = r
}

// Send delivers msg to the registered peer. The frame is copied before
// delivery so the caller's buffer may be reused immediately.
func (l *LoopbackSwitch) Send(msg []byte) error {
	if l.peer == nil {
		logrus.WithFields(logrus.Fields{
			"function": "LoopbackSwitch.Send",
			"package":  "fabric",
		}).Warn("dropped frame: no peer registered")
		return ErrNoPeer
	}

	frame := make([]byte, len(msg))
	copy(frame, msg)
	return l.peer.ReceiveFromSwitch(frame)
}

// ConnectLoopback wires two LoopbackSwitches together as each other's peer,
// so a.Send delivers to b's registered Receiver and vice versa.
func ConnectLoopback(a, b *LoopbackSwitch, aReceiver, bReceiver Receiver) {
	a.SetPeer(bReceiver)
	b.SetPeer(aReceiver)
}
