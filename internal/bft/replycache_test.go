package bft

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ruvnet/alienator/internal/bft/wire"
)

func TestReplyCacheClassify(t *testing.T) {
	rc := NewReplyCache()
	decision, _ := rc.Classify(1, 5)
	assert.Equal(t, DecisionProceed, decision)

	rc.Put(1, wire.Reply{ClientID: 1, T: 5, Result: []byte("ok")})

	decision, cached := rc.Classify(1, 5)
	assert.Equal(t, DecisionResend, decision)
	assert.Equal(t, []byte("ok"), cached.Result)

	decision, _ = rc.Classify(1, 4)
	assert.Equal(t, DecisionDrop, decision)

	decision, _ = rc.Classify(1, 6)
	assert.Equal(t, DecisionProceed, decision)
}

func TestReplyCacheDropBeforeAndSnapshotRestore(t *testing.T) {
	rc := NewReplyCache()
	rc.Put(1, wire.Reply{ClientID: 1, T: 1, Entry: wire.VersionVectorEntry{Seq: 2}})
	rc.Put(2, wire.Reply{ClientID: 2, T: 1, Entry: wire.VersionVectorEntry{Seq: 10}})

	rc.DropBefore(5)
	_, ok := rc.Get(1)
	assert.False(t, ok)
	_, ok = rc.Get(2)
	assert.True(t, ok)

	snap := rc.Snapshot()
	assert.Len(t, snap, 1)

	other := NewReplyCache()
	other.Restore(snap)
	got, ok := other.Get(2)
	assert.True(t, ok)
	assert.Equal(t, uint64(10), got.Entry.Seq)
}
