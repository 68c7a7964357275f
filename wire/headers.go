// Package wire implements the on-the-wire header formats this module stacks
// but does not define: the fabric's switch header, IPv6, UDP, and the
// fabric's control/error frames. Nothing here picks the wire format; it
// mirrors whatever the fabric, the kernel, and the control-frame protocol
// already use, the way toxcore's transport package marshals packets whose
// shapes are fixed by the Tox wire protocol rather than invented locally.
package wire

import (
	"encoding/binary"
	"fmt"
)

// FabricLabel is the 64-bit opaque routing path along the label-switching
// fabric. Stored big-endian on the wire.
type FabricLabel uint64

// BitReverse returns the label with its bits reversed. The fabric delivers
// packets with the label bit-reversed; reversing again recovers the peer's
// source label, and reversing a reply's destination label before handing it
// back to the fabric undoes the same transform (Property 7).
func (l FabricLabel) BitReverse() FabricLabel {
	var v uint64 = uint64(l)
	var r uint64
	for i := 0; i < 64; i++ {
		r <<= 1
		r |= v & 1
		v >>= 1
	}
	return FabricLabel(r)
}

// MessageType distinguishes data frames from fabric control frames.
type MessageType uint8

const (
	MessageTypeData MessageType = iota
	MessageTypeControl
)

// SwitchHeaderSize is the fixed wire size of a SwitchHeader.
const SwitchHeaderSize = 12

// SwitchHeader is the fabric header carrying the routing label and a 32-bit
// flags field from which the message type is read.
type SwitchHeader struct {
	Label      FabricLabel
	MiscFlags  uint32
	msgTypeBit uint8
}

// GetMessageType reports whether this header marks a control or data frame.
func (h *SwitchHeader) GetMessageType() MessageType {
	if h.MiscFlags&0x1 != 0 {
		return MessageTypeControl
	}
	return MessageTypeData
}

// SetMessageType sets the control/data bit in MiscFlags.
func (h *SwitchHeader) SetMessageType(t MessageType) {
	if t == MessageTypeControl {
		h.MiscFlags |= 0x1
	} else {
		h.MiscFlags &^= 0x1
	}
}

// MarshalBinary encodes the header in its fixed wire layout.
func (h *SwitchHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, SwitchHeaderSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(h.Label))
	binary.BigEndian.PutUint32(buf[8:12], h.MiscFlags)
	return buf, nil
}

// UnmarshalSwitchHeader decodes a SwitchHeader from the front of buf.
func UnmarshalSwitchHeader(buf []byte) (*SwitchHeader, error) {
	if len(buf) < SwitchHeaderSize {
		return nil, fmt.Errorf("wire: switch header needs %d bytes, got %d", SwitchHeaderSize, len(buf))
	}
	return &SwitchHeader{
		Label:     FabricLabel(binary.BigEndian.Uint64(buf[0:8])),
		MiscFlags: binary.BigEndian.Uint32(buf[8:12]),
	}, nil
}

// IP6HeaderSize is the fixed size of a standard IPv6 header.
const IP6HeaderSize = 40

// IP6Header is the subset of the standard IPv6 header this module inspects
// or rewrites: source/destination, hop limit, next-header, and payload
// length. Flow label and traffic class are preserved opaquely but not
// interpreted.
type IP6Header struct {
	PayloadLength   uint16
	NextHeader      uint8
	HopLimit        uint8
	SourceAddr      [16]byte
	DestinationAddr [16]byte
	versionTC       uint32 // version, traffic class, flow label, preserved opaquely
}

// MarshalBinary encodes the header in standard IPv6 wire layout.
func (h *IP6Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, IP6HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.versionTC|(6<<28))
	binary.BigEndian.PutUint16(buf[4:6], h.PayloadLength)
	buf[6] = h.NextHeader
	buf[7] = h.HopLimit
	copy(buf[8:24], h.SourceAddr[:])
	copy(buf[24:40], h.DestinationAddr[:])
	return buf, nil
}

// UnmarshalIP6Header decodes an IP6Header from the front of buf.
func UnmarshalIP6Header(buf []byte) (*IP6Header, error) {
	if len(buf) < IP6HeaderSize {
		return nil, fmt.Errorf("wire: ip6 header needs %d bytes, got %d", IP6HeaderSize, len(buf))
	}
	h := &IP6Header{
		versionTC:     binary.BigEndian.Uint32(buf[0:4]) &^ (0xF << 28),
		PayloadLength: binary.BigEndian.Uint16(buf[4:6]),
		NextHeader:    buf[6],
		HopLimit:      buf[7],
	}
	copy(h.SourceAddr[:], buf[8:24])
	copy(h.DestinationAddr[:], buf[24:40])
	return h, nil
}

// ValidIP6 checks invariant 1 of the data model: both addresses begin with
// 0xFC and the advertised payload length matches the actual trailing bytes.
func ValidIP6(h *IP6Header, totalPayloadLen int) bool {
	return h.SourceAddr[0] == 0xFC &&
		h.DestinationAddr[0] == 0xFC &&
		int(h.PayloadLength) == totalPayloadLen
}

// UDPHeaderSize is the fixed size of the minimal UDP header this module
// cares about (source port, dest port, length, checksum).
const UDPHeaderSize = 8

// UDPHeader is the subset of the UDP header used to recognize DHT traffic.
type UDPHeader struct {
	SourcePort uint16
	DestPort   uint16
	Length     uint16
	Checksum   uint16
}

// MarshalBinary encodes the header in standard UDP wire layout.
func (h *UDPHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, UDPHeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], h.SourcePort)
	binary.BigEndian.PutUint16(buf[2:4], h.DestPort)
	binary.BigEndian.PutUint16(buf[4:6], h.Length)
	binary.BigEndian.PutUint16(buf[6:8], h.Checksum)
	return buf, nil
}

// UnmarshalUDPHeader decodes a UDPHeader from the front of buf.
func UnmarshalUDPHeader(buf []byte) (*UDPHeader, error) {
	if len(buf) < UDPHeaderSize {
		return nil, fmt.Errorf("wire: udp header needs %d bytes, got %d", UDPHeaderSize, len(buf))
	}
	return &UDPHeader{
		SourcePort: binary.BigEndian.Uint16(buf[0:2]),
		DestPort:   binary.BigEndian.Uint16(buf[2:4]),
		Length:     binary.BigEndian.Uint16(buf[4:6]),
		Checksum:   binary.BigEndian.Uint16(buf[6:8]),
	}, nil
}

// IsRouterToRouter reports whether a decrypted content packet is DHT
// control traffic per the in-band marker: UDP sport=dport=0, ip6 hop-limit
// 0, and the UDP length matching the remaining payload.
func IsRouterToRouter(ip6 *IP6Header, udp *UDPHeader, remainingPayload int) bool {
	if ip6.NextHeader != 17 || ip6.HopLimit != 0 {
		return false
	}
	return udp.SourcePort == 0 && udp.DestPort == 0 && int(udp.Length) == remainingPayload
}
