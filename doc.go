// Package ducttape implements a packet-routing and encryption junction for a
// label-switching mesh fabric: it glues together a switched fabric, two
// independent Noise-IK cryptographic session layers, a DHT routing oracle,
// and a local tunnel device behind a single Core and three entry points.
//
// # Getting Started
//
// Create a Core with Register, supplying a private key and the fabric
// switch it should send frames to:
//
//	core, err := ducttape.Register(&ducttape.Config{
//	    PrivateKey: privKey,
//	    Fabric:     mySwitch,
//	    Tun:        myTun,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// The fabric switch then delivers inbound frames to core.ReceiveFromSwitch,
// and, if a TUN device was supplied, Register has already wired
// core.InFromTun as its receive callback.
//
// # Core Types
//
//   - [Core]: the packet-routing and encryption junction itself
//   - [Config]: collaborator handles and options passed to [Register]
//   - [PerPacketState]: the explicit per-packet envelope threaded through
//     the switch-receive pipeline
//   - [DHTMessage]: the envelope exchanged with a [DHTRegistry]
//
// # Packet Direction
//
// A frame arriving from the fabric ([Core.ReceiveFromSwitch]) is decrypted
// at the outer (router-to-router) layer first. If the recovered IP6Header's
// destination is this node, the payload is either router-to-router DHT
// traffic (recognized by its in-band marker and handed to the configured
// [DHTRegistry]) or content traffic decrypted at the inner layer and
// delivered to the TUN device. If the destination is some other node, the
// packet is re-encrypted at the outer layer for the next hop and forwarded.
//
// A packet arriving from the TUN device ([Core.InFromTun]) is encrypted at
// the inner content layer, wrapped in a fresh IP6Header, encrypted again at
// the outer layer for the resolved next hop, and sent to the fabric.
//
// The DHT registry drives outbound router-to-router traffic through
// [Core.HandleOutgoing] and receives inbound traffic through its own
// HandleIncoming method.
//
// # Collaborators
//
// This package ships working reference implementations of every external
// collaborator so a Core is exercisable end-to-end:
//
//   - [fabric]: Switch interface plus an in-memory LoopbackSwitch
//   - [tuniface]: Device interface plus a channel-backed MemDevice
//   - [router]: Oracle interface plus a Kademlia routing table keyed by
//     destination IPv6 address
//   - [crypto]: key material, address derivation, and the outer/inner
//     session layers, built on the IK handshake in package [noise]
//   - [wire]: the switch, IPv6, UDP, and control-frame wire formats
//
// # Error Handling
//
// A nil error from any entry point means the packet was handled normally
// (delivered, forwarded, or intentionally dropped as DHT traffic). Beyond
// that, [ErrInvalid] and [ErrUndeliverable] are sentinel errors always
// tested with errors.Is, since call sites wrap them with additional context.
//
// # Thread Safety
//
// The session table and the inner session manager each guard their session
// maps with their own mutex, but the handshake and cipher state inside a
// single session is not locked, so calls that reach the same session must
// not run concurrently. Dispatch within a single call is single-threaded
// and cooperative: no entry point spawns
// goroutines or recurses back into another entry point more than once (the
// self-addressed echo case replies directly rather than re-entering
// ReceiveFromSwitch).
package ducttape
