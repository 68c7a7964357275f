package tuniface

import "errors"

// ErrClosed indicates an operation was attempted on a closed MemDevice.
var ErrClosed = errors.New("tuniface: device closed")

// ReceiveFunc is the shape of the callback a Device hands received packets
// to. Declared as an alias (not a defined type) so that any Device
// implementation's SetReceiveFunc method is interface-identical to this
// signature.
type ReceiveFunc = func(pkt []byte) error

// Device is the local tunnel interface: the host delivers well-formed IPv6
// packets to the core via the callback registered through SetReceiveFunc,
// and the core delivers decrypted application IPv6 packets to the host via
// Send.
type Device interface {
	// Send delivers a decrypted application IPv6 packet to the host.
	Send(pkt []byte) error

	// SetReceiveFunc registers the callback the core uses to receive
	// packets the host injects.
	SetReceiveFunc(fn ReceiveFunc)
}

// MemDevice is a channel-backed Device test double: packets sent to it are
// buffered on an outbound channel for a test to assert against, and
// packets can be injected into the core via its registered ReceiveFunc.
type MemDevice struct {
	outbound chan []byte
	receive  ReceiveFunc
	closed   bool
}

// NewMemDevice creates a MemDevice with the given outbound buffer depth.
func NewMemDevice(bufferSize int) *MemDevice {
	return &MemDevice{
		outbound: make(chan []byte, bufferSize),
	}
}

// SetReceiveFunc registers the callback the core exposes for host-injected
// packets. Inject calls this function.
func (d *MemDevice) SetReceiveFunc(fn ReceiveFunc) {
	d.receive = fn
}

// Send buffers pkt on the outbound channel for a test to drain with Sent.
func (d *MemDevice) Send(pkt []byte) error {
	if d.closed {
		return ErrClosed
	}
	cp := make([]byte, len(pkt))
	copy(cp, pkt)
	d.outbound <- cp
	return nil
}

// Sent returns the channel of packets the core has sent to this device.
func (d *MemDevice) Sent() <-chan []byte {
	return d.outbound
}

// Inject simulates the host delivering pkt into the core via the
// registered ReceiveFunc.
func (d *MemDevice) Inject(pkt []byte) error {
	if d.receive == nil {
		return errors.New("tuniface: no receive function registered")
	}
	return d.receive(pkt)
}

// Close marks the device closed; subsequent Send calls return ErrClosed.
func (d *MemDevice) Close() {
	if d.closed {
		return
	}
	d.closed = true
	close(d.outbound)
}
