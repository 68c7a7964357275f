package crypto

import (
	"fmt"
	"time"

	"github.com/opd-ai/ducttape/noise"
	"github.com/opd-ai/ducttape/wire"
	"github.com/sirupsen/logrus"
)

// OuterSession is the router-to-router cryptographic session owned by the
// SessionTable: bound to a specific FabricLabel, keyed by the peer's
// PublicKey once known. Created lazily on first packet to or from that
// label; lifecycle is created -> active -> evicted (by age or capacity).
type OuterSession struct {
	*handshakeSession
	label     wire.FabricLabel
	createdAt time.Time
	lastUsed  time.Time
}

// NewOuterSession creates an outer session bound to label. If peerPub is
// non-nil the session is an initiator that already knows the peer's static
// key (the DHT router named this target); otherwise it is a responder that
// will learn the peer's key during the handshake.
func NewOuterSession(selfPriv [32]byte, peerPub *[32]byte, label wire.FabricLabel, tp TimeProvider) (*OuterSession, error) {
	logger := NewLogger("NewOuterSession")
	if tp == nil {
		tp = GetDefaultTimeProvider()
	}

	role := noise.Responder
	if peerPub != nil {
		role = noise.Initiator
	}

	base, err := newHandshakeSession(selfPriv, peerPub, role)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"label": label,
			"error": err.Error(),
		}).Error("failed to create outer session")
		return nil, fmt.Errorf("creating outer session for label %d: %w", label, err)
	}

	now := tp.Now()
	return &OuterSession{
		handshakeSession: base,
		label:            label,
		createdAt:        now,
		lastUsed:         now,
	}, nil
}

// Label returns the fabric label this session is bound to.
func (s *OuterSession) Label() wire.FabricLabel {
	return s.label
}

// Touch updates the session's last-used timestamp, keeping it alive for
// eviction purposes.
func (s *OuterSession) Touch(tp TimeProvider) {
	if tp == nil {
		tp = GetDefaultTimeProvider()
	}
	s.lastUsed = tp.Now()
}

// Age returns how long ago this session was last used.
func (s *OuterSession) Age(tp TimeProvider) time.Duration {
	if tp == nil {
		tp = GetDefaultTimeProvider()
	}
	return tp.Since(s.lastUsed)
}
