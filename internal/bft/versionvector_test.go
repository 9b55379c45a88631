package bft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruvnet/alienator/internal/bft/wire"
)

func entryAt(replica uint32, view, seq uint64, digest wire.Digest) wire.VersionVectorEntry {
	return wire.VersionVectorEntry{ReplicaID: replica, View: view, Seq: seq, Digest: digest}
}

func TestVersionVectorUpdateMonotone(t *testing.T) {
	vv := NewVersionVector()
	d := wire.HashBytes([]byte("d"))
	vv.Update(1, entryAt(1, 0, 1, d))
	vv.Update(1, entryAt(1, 0, 0, d)) // stale, must be dropped
	latest, ok := vv.LatestOf(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), latest.Seq)
	assert.Len(t, vv.EntriesOf(1), 1)
}

func TestCurrentSystemStateQuorum(t *testing.T) {
	vv := NewVersionVector()
	d := wire.HashBytes([]byte("agreed"))
	// f=1 -> quorum 2f+1=3
	vv.Update(0, entryAt(0, 0, 10, d))
	vv.Update(1, entryAt(1, 0, 10, d))
	vv.Update(2, entryAt(2, 0, 10, d))
	vv.Update(3, entryAt(3, 0, 10, wire.HashBytes([]byte("other")))) // faulty replica disagrees

	state, ok := vv.CurrentSystemState(1)
	require.True(t, ok)
	assert.Equal(t, uint64(10), state.Seq)
	assert.Equal(t, d, state.Digest)
	assert.Equal(t, uint32(0), state.ReplicaID) // tie-break: lowest replica id
}

func TestCurrentSystemStateUndefinedWithoutQuorum(t *testing.T) {
	vv := NewVersionVector()
	d := wire.HashBytes([]byte("x"))
	vv.Update(0, entryAt(0, 0, 10, d))
	vv.Update(1, entryAt(1, 0, 10, d))
	// only 2 agree, need 2f+1=3
	_, ok := vv.CurrentSystemState(1)
	assert.False(t, ok)
}

func TestCurrentSystemStateDetectsFork(t *testing.T) {
	// two independent clients' vectors that observed different digests at
	// the same seq must disagree on current_system_state (invariant 3).
	vvA := NewVersionVector()
	vvB := NewVersionVector()
	dGood := wire.HashBytes([]byte("good"))
	dFork := wire.HashBytes([]byte("fork"))

	for r := uint32(0); r < 3; r++ {
		vvA.Update(r, entryAt(r, 0, 5, dGood))
	}
	for r := uint32(0); r < 3; r++ {
		vvB.Update(r, entryAt(r, 0, 5, dFork))
	}

	stateA, okA := vvA.CurrentSystemState(1)
	stateB, okB := vvB.CurrentSystemState(1)
	require.True(t, okA)
	require.True(t, okB)
	assert.NotEqual(t, stateA.Digest, stateB.Digest)
}
