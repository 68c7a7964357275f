package ducttape

import (
	"fmt"
	"sync"

	"github.com/opd-ai/ducttape/crypto"
	"github.com/opd-ai/ducttape/router"
	"github.com/opd-ai/ducttape/wire"
	"github.com/sirupsen/logrus"
)

// dhtScratchPool recycles the buffers deliverDHT copies inbound router-to-
// router payloads into, one per delivered message, rather than reallocating
// on every call. Buffers are returned to the pool once HandleIncoming
// returns, matching the single-threaded, non-reentrant dispatch model: the
// registry is expected to have finished reading the payload by then.
var dhtScratchPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, 2048)
		return &buf
	},
}

// ReceiveFromSwitch is the inFromSwitch entry point: the fabric hands it a
// frame of the form [SwitchHeader|body]. A control-typed frame is handled
// and dropped in place; a data-typed frame is decrypted at the outer layer
// and, once a well-formed IP6Header is recovered, either forwarded toward
// its destination or delivered locally.
func (c *Core) ReceiveFromSwitch(msg []byte) error {
	if len(msg) < wire.SwitchHeaderSize {
		return fmt.Errorf("ducttape: %w: frame shorter than switch header", ErrInvalid)
	}
	sh, err := wire.UnmarshalSwitchHeader(msg)
	if err != nil {
		return fmt.Errorf("ducttape: %w: %v", ErrInvalid, err)
	}
	body := msg[wire.SwitchHeaderSize:]

	if sh.GetMessageType() == wire.MessageTypeControl {
		return c.handleControlFrame(sh, body)
	}
	return c.handleDataFrame(sh, body)
}

// handleDataFrame drives the outer session bound to sh.Label, either
// advancing its handshake or decrypting a transport message.
func (c *Core) handleDataFrame(sh *wire.SwitchHeader, ciphertext []byte) error {
	session, err := c.sessions.getOrCreate(sh.Label, nil)
	if err != nil {
		return fmt.Errorf("ducttape: outer session for label %d: %w", sh.Label, err)
	}

	state := &PerPacketState{SwitchHeader: sh, OuterSession: session}

	var plaintext []byte
	if !session.IsEstablished() {
		payload, reply, err := session.ReadHandshake(ciphertext)
		if err != nil {
			return fmt.Errorf("ducttape: %w: outer handshake: %v", ErrInvalid, err)
		}
		if reply != nil {
			return c.sendFrame(sh.Label.BitReverse(), reply)
		}
		plaintext = payload
	} else {
		plaintext, err = session.Decrypt(ciphertext)
		if err != nil {
			return fmt.Errorf("ducttape: %w: outer decrypt: %v", ErrInvalid, err)
		}
	}

	if len(plaintext) == 0 {
		return nil
	}
	return c.handleOuterPlaintext(state, plaintext)
}

// handleOuterPlaintext parses the IP6Header carried inside a decrypted outer
// message, binds the outer session's peer key to the claimed source address,
// and routes the remaining bytes onward.
func (c *Core) handleOuterPlaintext(state *PerPacketState, plaintext []byte) error {
	if len(plaintext) < wire.IP6HeaderSize {
		return fmt.Errorf("ducttape: %w: outer payload shorter than ip6 header", ErrInvalid)
	}
	ip6, err := wire.UnmarshalIP6Header(plaintext)
	if err != nil {
		return fmt.Errorf("ducttape: %w: %v", ErrInvalid, err)
	}
	rest := plaintext[wire.IP6HeaderSize:]
	if !wire.ValidIP6(ip6, len(rest)) {
		return fmt.Errorf("ducttape: %w: ip6 header invariant violated", ErrInvalid)
	}
	state.IP6Header = ip6

	if key, ok := state.OuterSession.PeerKey(); ok {
		if crypto.IsZeroKey(key) {
			c.log.WithField("switch_label", state.SwitchHeader.Label).Error("outer session produced a zero peer key")
			return ErrZeroPeerKey
		}
		state.PeerKey = key
		c.announcePeer(key, ip6.SourceAddr, state.SwitchHeader.Label.BitReverse())
	}

	if ip6.DestinationAddr != c.selfIP6 {
		return c.forward(state, rest)
	}
	return c.deliverLocally(state, rest)
}

// forward re-encrypts rest for the next hop toward the packet's destination,
// decrementing the hop limit the way a router does.
func (c *Core) forward(state *PerPacketState, rest []byte) error {
	dest := state.IP6Header.DestinationAddr
	next, ok := c.oracle.GetBest(dest)
	if !ok {
		return fmt.Errorf("ducttape: %w: no route to %x", ErrUndeliverable, dest)
	}
	if state.IP6Header.HopLimit == 0 {
		return fmt.Errorf("ducttape: %w: hop limit exhausted for %x", ErrUndeliverable, dest)
	}
	state.ForwardTo = &next

	forwarded := *state.IP6Header
	forwarded.HopLimit--
	headerBytes, err := forwarded.MarshalBinary()
	if err != nil {
		return fmt.Errorf("ducttape: marshaling forwarded ip6 header: %w", err)
	}
	plaintext := append(headerBytes, rest...)

	nextSession, err := c.sessions.getOrCreate(next.Label, &next.Key)
	if err != nil {
		return fmt.Errorf("ducttape: outer session to next hop: %w", err)
	}
	return c.sendViaOuterSession(nextSession, next.Label, plaintext)
}

// deliverLocally handles a frame addressed to this node: router-to-router
// DHT traffic is recognized by its in-band marker and handed to the
// registry; everything else is decrypted at the inner content layer.
func (c *Core) deliverLocally(state *PerPacketState, rest []byte) error {
	ip6 := state.IP6Header
	if ip6.NextHeader == 17 && ip6.HopLimit == 0 && len(rest) >= wire.UDPHeaderSize {
		if udp, err := wire.UnmarshalUDPHeader(rest); err == nil {
			afterUDP := rest[wire.UDPHeaderSize:]
			if wire.IsRouterToRouter(ip6, udp, len(afterUDP)) {
				return c.deliverDHT(ip6, afterUDP)
			}
		}
	}

	result, err := c.inner.Receive(ip6.SourceAddr, rest)
	if err != nil {
		return fmt.Errorf("ducttape: %w: inner decrypt: %v", ErrInvalid, err)
	}
	if key, ok := c.inner.PeerKey(ip6.SourceAddr); ok {
		if derived := crypto.DeriveIP6(key); derived != ip6.SourceAddr {
			c.log.WithFields(logrus.Fields{
				"claimed": ip6.SourceAddr,
				"derived": derived,
			}).Warn("inner session address binding mismatch: claimed source does not derive from peer key")
			return fmt.Errorf("ducttape: %w: inner session address binding mismatch for %x", ErrInvalid, ip6.SourceAddr)
		}
	}
	if result.EchoReply != nil {
		return c.replyInner(state, result.EchoReply)
	}
	if result.Plaintext == nil {
		return nil
	}

	if c.tun == nil {
		return fmt.Errorf("ducttape: %w: no tun device for local delivery", ErrUndeliverable)
	}
	appHeader := &wire.IP6Header{
		PayloadLength:   uint16(len(result.Plaintext)),
		NextHeader:      ip6.NextHeader,
		HopLimit:        ip6.HopLimit,
		SourceAddr:      ip6.SourceAddr,
		DestinationAddr: ip6.DestinationAddr,
	}
	headerBytes, err := appHeader.MarshalBinary()
	if err != nil {
		return fmt.Errorf("ducttape: marshaling delivered ip6 header: %w", err)
	}
	return c.tun.Send(append(headerBytes, result.Plaintext...))
}

// replyInner handles the self-addressed echo case of Property 5: the inner
// session, asked to decrypt, instead produced its own handshake reply, which
// must be routed back to the sender over the same outer path rather than
// delivered as application data.
func (c *Core) replyInner(state *PerPacketState, reply []byte) error {
	ip6Reply := &wire.IP6Header{
		PayloadLength:   uint16(len(reply)),
		NextHeader:      state.IP6Header.NextHeader,
		HopLimit:        defaultHopLimit,
		SourceAddr:      c.selfIP6,
		DestinationAddr: state.IP6Header.SourceAddr,
	}
	headerBytes, err := ip6Reply.MarshalBinary()
	if err != nil {
		return fmt.Errorf("ducttape: marshaling echo reply ip6 header: %w", err)
	}
	outerPlaintext := append(headerBytes, reply...)
	return c.sendViaOuterSession(state.OuterSession, state.SwitchHeader.Label.BitReverse(), outerPlaintext)
}

// deliverDHT hands a recognized router-to-router payload to the configured
// registry, tagged with the best-known NodeAddress for the sender.
func (c *Core) deliverDHT(ip6 *wire.IP6Header, payload []byte) error {
	if c.registry == nil {
		c.log.Debug("dropping dht message: no registry configured")
		return nil
	}

	bufPtr := dhtScratchPool.Get().(*[]byte)
	cp := append((*bufPtr)[:0], payload...)
	defer func() {
		*bufPtr = cp
		dhtScratchPool.Put(bufPtr)
	}()

	peer := router.NodeAddress{IP6: ip6.SourceAddr}
	if best, ok := c.oracle.GetBest(ip6.SourceAddr); ok {
		peer = best
	}
	return c.registry.HandleIncoming(DHTMessage{Payload: cp, Peer: peer})
}

// handleControlFrame parses a fabric control frame and reacts to the
// error types this module understands; unrecognized control frames are
// logged and dropped rather than treated as a protocol violation.
func (c *Core) handleControlFrame(sh *wire.SwitchHeader, body []byte) error {
	ctype, ef, err := wire.ParseControlFrame(body)
	if err != nil {
		return fmt.Errorf("ducttape: %w: control frame: %v", ErrInvalid, err)
	}
	if ctype != wire.ControlError || ef == nil {
		c.log.WithField("control_type", ctype).Debug("dropping unrecognized control frame")
		return nil
	}
	if ef.CauseLabel != sh.Label {
		c.log.WithFields(logrus.Fields{
			"cause_label":  ef.CauseLabel,
			"switch_label": sh.Label,
		}).Warn("dropping control error: cause label does not match frame label")
		return nil
	}

	switch ef.ErrorType {
	case wire.ErrorMalformedAddress:
		c.log.WithField("cause_label", ef.CauseLabel).Warn("peer reported malformed address; marking path broken")
		c.oracle.BrokenPath(ef.CauseLabel)
		c.sessions.breakLabel(ef.CauseLabel)
	default:
		c.log.WithFields(logrus.Fields{
			"error_type":  ef.ErrorType,
			"cause_label": ef.CauseLabel,
		}).Debug("dropping control error of unhandled type")
	}
	return nil
}

// InFromTun is the outgoingFromMe entry point: the host delivers a
// well-formed application IPv6 packet, which is encrypted at the inner
// content layer, wrapped in a fresh IP6Header, encrypted again at the outer
// layer for the resolved next hop, and handed to the fabric.
func (c *Core) InFromTun(pkt []byte) error {
	if len(pkt) < wire.IP6HeaderSize {
		return fmt.Errorf("ducttape: %w: tun packet shorter than ip6 header", ErrInvalid)
	}
	ip6, err := wire.UnmarshalIP6Header(pkt)
	if err != nil {
		return fmt.Errorf("ducttape: %w: %v", ErrInvalid, err)
	}
	payload := pkt[wire.IP6HeaderSize:]
	if !wire.ValidIP6(ip6, len(payload)) {
		return fmt.Errorf("ducttape: %w: ip6 header invariant violated", ErrInvalid)
	}
	if !crypto.IsValidNetworkAddress(ip6.DestinationAddr) {
		return fmt.Errorf("ducttape: %w: destination %x outside network range", ErrInvalid, ip6.DestinationAddr)
	}

	next, ok := c.oracle.GetBest(ip6.DestinationAddr)
	if !ok {
		return fmt.Errorf("ducttape: %w: no route to %x", ErrUndeliverable, ip6.DestinationAddr)
	}

	ciphertext, err := c.inner.Send(ip6.DestinationAddr, &next.Key, payload)
	if err != nil {
		return fmt.Errorf("ducttape: inner encrypt: %w", err)
	}

	outerIP6 := &wire.IP6Header{
		PayloadLength:   uint16(len(ciphertext)),
		NextHeader:      ip6.NextHeader,
		HopLimit:        defaultHopLimit,
		SourceAddr:      c.selfIP6,
		DestinationAddr: ip6.DestinationAddr,
	}
	headerBytes, err := outerIP6.MarshalBinary()
	if err != nil {
		return fmt.Errorf("ducttape: marshaling outbound ip6 header: %w", err)
	}
	outerPlaintext := append(headerBytes, ciphertext...)

	session, err := c.sessions.getOrCreate(next.Label, &next.Key)
	if err != nil {
		return fmt.Errorf("ducttape: outer session: %w", err)
	}
	return c.sendViaOuterSession(session, next.Label, outerPlaintext)
}

// HandleOutgoing is the outFromDHT entry point: the DHT registry supplies a
// router-to-router payload addressed to dmsg.Peer, which DHTOutbound wraps
// in the in-band marker (hop limit zero, source/destination ports zero) and
// sends over the outer layer, exactly as Ducttape_register's DHTModule
// called back into its registering transport's handleOutgoing.
func (c *Core) HandleOutgoing(dmsg DHTMessage) error {
	if !crypto.IsValidNetworkAddress(dmsg.Peer.IP6) {
		return fmt.Errorf("ducttape: %w: dht peer address %x outside network range", ErrInvalid, dmsg.Peer.IP6)
	}

	udp := &wire.UDPHeader{Length: uint16(len(dmsg.Payload))}
	udpBytes, err := udp.MarshalBinary()
	if err != nil {
		return fmt.Errorf("ducttape: marshaling dht udp header: %w", err)
	}
	body := append(udpBytes, dmsg.Payload...)

	ip6 := &wire.IP6Header{
		PayloadLength:   uint16(len(body)),
		NextHeader:      17,
		HopLimit:        0,
		SourceAddr:      c.selfIP6,
		DestinationAddr: dmsg.Peer.IP6,
	}
	headerBytes, err := ip6.MarshalBinary()
	if err != nil {
		return fmt.Errorf("ducttape: marshaling dht ip6 header: %w", err)
	}
	plaintext := append(headerBytes, body...)

	session, err := c.sessions.getOrCreate(dmsg.Peer.Label, &dmsg.Peer.Key)
	if err != nil {
		return fmt.Errorf("ducttape: outer session to dht peer: %w", err)
	}
	return c.sendViaOuterSession(session, dmsg.Peer.Label, plaintext)
}

// sendViaOuterSession drives session's handshake (if not yet established) or
// encrypts plaintext as a transport message, then hands the result to the
// fabric with outgoingLabel on the wire.
func (c *Core) sendViaOuterSession(session *crypto.OuterSession, outgoingLabel wire.FabricLabel, plaintext []byte) error {
	var (
		ciphertext []byte
		err        error
	)
	if !session.IsEstablished() {
		ciphertext, err = session.WriteHandshake(plaintext)
	} else {
		ciphertext, err = session.Encrypt(plaintext)
	}
	if err != nil {
		return fmt.Errorf("ducttape: outer encrypt: %w", err)
	}
	return c.sendFrame(outgoingLabel, ciphertext)
}

// sendFrame prepends a SwitchHeader for label and hands the frame to the
// fabric switch.
func (c *Core) sendFrame(label wire.FabricLabel, body []byte) error {
	sh := &wire.SwitchHeader{Label: label}
	headerBytes, err := sh.MarshalBinary()
	if err != nil {
		return fmt.Errorf("ducttape: marshaling switch header: %w", err)
	}
	return c.fabric.Send(append(headerBytes, body...))
}
