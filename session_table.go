package ducttape

import (
	"sync"
	"time"

	"github.com/opd-ai/ducttape/crypto"
	"github.com/opd-ai/ducttape/wire"
)

// defaultMaxSessions bounds the outer session table's size regardless of
// age-based eviction, so a burst of short-lived labels can't grow the table
// without bound between eviction sweeps.
const defaultMaxSessions = 4096

// sessionTable owns one crypto.OuterSession per fabric label, created lazily
// on first use. Grounded on the injectable-clock pattern the rest of this
// module uses for deterministic eviction tests (see crypto.TimeProvider,
// router.TimeProvider): eviction here never calls time.Now() directly.
type sessionTable struct {
	selfPriv [32]byte
	maxAge   time.Duration
	maxSize  int
	tp       crypto.TimeProvider

	mu       sync.Mutex
	sessions map[wire.FabricLabel]*crypto.OuterSession
}

func newSessionTable(selfPriv [32]byte, maxAge time.Duration, tp crypto.TimeProvider) *sessionTable {
	if tp == nil {
		tp = crypto.GetDefaultTimeProvider()
	}
	return &sessionTable{
		selfPriv: selfPriv,
		maxAge:   maxAge,
		maxSize:  defaultMaxSessions,
		tp:       tp,
		sessions: make(map[wire.FabricLabel]*crypto.OuterSession),
	}
}

// canonicalLabel folds a fabric label and its bit-reversed counterpart onto
// the same key. A path's forward and return directions carry bit-reversed
// labels on the wire (Property 7), but both directions belong to the same
// outer session; without this fold, the reply leg of a handshake would look
// up a different map entry than the one the request leg created.
func canonicalLabel(label wire.FabricLabel) wire.FabricLabel {
	if reversed := label.BitReverse(); reversed < label {
		return reversed
	}
	return label
}

// getOrCreate returns the outer session bound to label's path, creating an
// initiator session if peerPub is known or a responder session awaiting a
// handshake if it is nil.
func (t *sessionTable) getOrCreate(label wire.FabricLabel, peerPub *[32]byte) (*crypto.OuterSession, error) {
	key := canonicalLabel(label)

	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[key]; ok {
		s.Touch(t.tp)
		return s, nil
	}

	t.evictLocked()

	s, err := crypto.NewOuterSession(t.selfPriv, peerPub, label, t.tp)
	if err != nil {
		return nil, err
	}
	t.sessions[key] = s
	return s, nil
}

// evictLocked drops every session older than maxAge, then — if the table is
// still at capacity — drops the single oldest session to make room. Must be
// called with t.mu held.
func (t *sessionTable) evictLocked() {
	for label, s := range t.sessions {
		if s.Age(t.tp) > t.maxAge {
			delete(t.sessions, label)
		}
	}
	if len(t.sessions) < t.maxSize {
		return
	}

	var oldestLabel wire.FabricLabel
	oldestAge := time.Duration(-1)
	for label, s := range t.sessions {
		if age := s.Age(t.tp); age > oldestAge {
			oldestAge = age
			oldestLabel = label
		}
	}
	delete(t.sessions, oldestLabel)
}

// breakLabel drops the session for label immediately, forcing the next
// packet on that label to start a fresh handshake. Called when a control
// frame reports the path broken.
func (t *sessionTable) breakLabel(label wire.FabricLabel) {
	key := canonicalLabel(label)
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, key)
}

// size returns the number of active outer sessions, for tests.
func (t *sessionTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
