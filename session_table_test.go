package ducttape

import (
	"testing"
	"time"

	"github.com/opd-ai/ducttape/crypto"
	"github.com/opd-ai/ducttape/wire"
	"github.com/stretchr/testify/require"
)

// fakeTimeProvider lets eviction tests advance time deterministically
// without sleeping, grounded on the same injectable-clock pattern router
// and crypto already use for their own eviction tests.
type fakeTimeProvider struct {
	now time.Time
}

func (f *fakeTimeProvider) Now() time.Time                  { return f.now }
func (f *fakeTimeProvider) Since(t time.Time) time.Duration { return f.now.Sub(t) }

func TestCanonicalLabelFoldsBothDirections(t *testing.T) {
	const label wire.FabricLabel = 0x0123456789ABCDEF
	reversed := label.BitReverse()

	require.Equal(t, canonicalLabel(label), canonicalLabel(reversed))
	require.Equal(t, reversed.BitReverse(), label, "BitReverse must be its own inverse")
}

func TestSessionTableReusesSessionAcrossBitReversedLabels(t *testing.T) {
	var selfPriv [32]byte
	selfPriv[0] = 1
	tp := &fakeTimeProvider{now: time.Unix(1000, 0)}
	table := newSessionTable(selfPriv, time.Hour, tp)

	var peerPub [32]byte
	peerPub[0] = 2

	const outbound wire.FabricLabel = 0x10
	first, err := table.getOrCreate(outbound, &peerPub)
	require.NoError(t, err)

	second, err := table.getOrCreate(outbound.BitReverse(), nil)
	require.NoError(t, err)

	require.Same(t, first, second, "the reply leg's bit-reversed label must hit the same session")
	require.Equal(t, 1, table.size())
}

func TestSessionTableEvictsByAge(t *testing.T) {
	var selfPriv [32]byte
	selfPriv[0] = 7
	tp := &fakeTimeProvider{now: time.Unix(1000, 0)}
	table := newSessionTable(selfPriv, time.Minute, tp)

	var peerPub [32]byte
	peerPub[0] = 9
	_, err := table.getOrCreate(wire.FabricLabel(1), &peerPub)
	require.NoError(t, err)
	require.Equal(t, 1, table.size())

	tp.now = tp.now.Add(2 * time.Minute)

	_, err = table.getOrCreate(wire.FabricLabel(2), &peerPub)
	require.NoError(t, err)
	require.Equal(t, 1, table.size(), "the stale label-1 session should have been evicted on the next getOrCreate")
}

func TestSessionTableEvictsOldestAtCapacity(t *testing.T) {
	var selfPriv [32]byte
	selfPriv[0] = 8
	tp := &fakeTimeProvider{now: time.Unix(1000, 0)}
	table := newSessionTable(selfPriv, time.Hour, tp)
	table.maxSize = 2

	var peerPub [32]byte
	peerPub[0] = 3

	_, err := table.getOrCreate(wire.FabricLabel(1), &peerPub)
	require.NoError(t, err)
	tp.now = tp.now.Add(time.Second)
	_, err = table.getOrCreate(wire.FabricLabel(2), &peerPub)
	require.NoError(t, err)
	require.Equal(t, 2, table.size())

	tp.now = tp.now.Add(time.Second)
	_, err = table.getOrCreate(wire.FabricLabel(3), &peerPub)
	require.NoError(t, err)
	require.Equal(t, 2, table.size(), "adding a third session at capacity must evict exactly one")
}

func TestSessionTableBreakLabelRemovesSession(t *testing.T) {
	var selfPriv [32]byte
	selfPriv[0] = 6
	table := newSessionTable(selfPriv, time.Hour, nil)

	var peerPub [32]byte
	peerPub[0] = 4
	_, err := table.getOrCreate(wire.FabricLabel(5), &peerPub)
	require.NoError(t, err)
	require.Equal(t, 1, table.size())

	table.breakLabel(wire.FabricLabel(5).BitReverse())
	require.Equal(t, 0, table.size(), "breakLabel must fold the same as getOrCreate")
}

func TestSessionTableGetOrCreateUsesDefaultTimeProviderWhenNil(t *testing.T) {
	var selfPriv [32]byte
	selfPriv[0] = 5
	table := newSessionTable(selfPriv, time.Hour, nil)
	require.NotNil(t, table.tp)

	var peerPub [32]byte
	session, err := table.getOrCreate(wire.FabricLabel(1), &peerPub)
	require.NoError(t, err)
	require.NotNil(t, session)
	require.False(t, session.IsEstablished())
}

var _ crypto.TimeProvider = (*fakeTimeProvider)(nil)
