package bft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ruvnet/alienator/internal/bft/keystore"
	"github.com/ruvnet/alienator/internal/bft/wire"
	"github.com/ruvnet/alienator/pkg/metrics"
)

// captureTransport records every envelope sent to a specific replica id
// instead of delivering it anywhere, so a test can inspect exactly what
// the dominance check produced.
type captureTransport struct {
	sentTo map[uint32][][]byte
}

func newCaptureTransport() *captureTransport {
	return &captureTransport{sentTo: map[uint32][][]byte{}}
}

func (c *captureTransport) SendToReplica(id uint32, envelope []byte) {
	c.sentTo[id] = append(c.sentTo[id], envelope)
}
func (c *captureTransport) BroadcastToReplicas(envelope []byte) {}
func (c *captureTransport) SendToClient(id uint32, envelope []byte) {}

func newUnitReplica(t *testing.T, id uint32, f int, tr Transport) *Replica {
	t.Helper()
	ks, err := keystore.Load("", "")
	require.NoError(t, err)
	return NewReplica(ReplicaOpts{
		ID:                 id,
		F:                  f,
		CheckpointInterval: 100,
		Watermark:          200,
		CohesionWindow:     128,
		ViewTimeout:        time.Second,
		Transport:          tr,
		Keys:               ks,
		Metrics:            metrics.New(),
	})
}

// TestHandleViewChangeDominantSideServesOperationsDict exercises the §7
// NotDominantPrimary fix directly: the replica that is AHEAD on
// receiving a ViewChange from a behind peer must itself build and send
// the OperationsDict, since the behind peer can never assemble one
// (it lacks the 2f+1 commit quorum by definition).
func TestHandleViewChangeDominantSideServesOperationsDict(t *testing.T) {
	tr := newCaptureTransport()
	r := newUnitReplica(t, 0, 1, tr)

	// Manufacture a committed slot at seq 1 with a full commit quorum,
	// as tryAdvanceToCommitted would have left it.
	hcd := wire.Digest{0xAA}
	s := r.slot(slotKey{View: 0, Seq: 1})
	s.State = SlotCommitted
	s.HCD = hcd
	for _, rid := range []uint32{0, 1, 2} {
		s.Commits[rid] = wire.Commit{View: 0, Seq: 1, HCD: hcd, ReplicaID: rid}
	}
	r.lastCommitted = wire.VersionVectorEntry{ReplicaID: 0, View: 0, Seq: 1, Digest: hcd}

	behindID := uint32(3)
	vc := wire.ViewChange{
		NewViewNum:    1,
		ReplicaID:     behindID,
		LastCommitted: wire.VersionVectorEntry{}, // zero value: strictly behind r's seq 1
	}
	r.handleViewChange(vc)

	envelopes := tr.sentTo[behindID]
	require.Len(t, envelopes, 2, "expected both a PrimaryNotDominant and an OperationsDict")

	var sawNotDominant, sawDict bool
	for _, env := range envelopes {
		msg, _, err := wire.Decode(env)
		require.NoError(t, err)
		switch m := msg.(type) {
		case *wire.PrimaryNotDominant:
			sawNotDominant = true
			require.Equal(t, uint32(0), m.FromReplicaID)
			require.Equal(t, behindID, m.ToReplicaID)
		case *wire.OperationsDict:
			sawDict = true
			require.Len(t, m.Entries, 1)
			require.Equal(t, uint64(1), m.Entries[0].Seq)
			require.Len(t, m.Entries[0].Commits, 3)
		}
	}
	require.True(t, sawNotDominant)
	require.True(t, sawDict, "dominant replica must push the OperationsDict itself")
}

// TestHandleOperationsDictAdvancesBehindReplica confirms the served
// dict is actually usable: a replica with nothing recorded for seq 1
// reaches SlotCommitted once it receives a dict entry meeting the
// commit quorum.
func TestHandleOperationsDictAdvancesBehindReplica(t *testing.T) {
	tr := newCaptureTransport()
	r := newUnitReplica(t, 3, 1, tr)

	hcd := wire.Digest{0xAA}
	dict := wire.OperationsDict{Entries: []wire.OpsDictEntry{
		{Seq: 1, Commits: []wire.Commit{
			{View: 0, Seq: 1, HCD: hcd, ReplicaID: 0},
			{View: 0, Seq: 1, HCD: hcd, ReplicaID: 1},
			{View: 0, Seq: 1, HCD: hcd, ReplicaID: 2},
		}},
	}}

	r.handleOperationsDict(dict)

	s := r.slot(slotKey{View: r.view, Seq: 1})
	require.Equal(t, SlotCommitted, s.State)
	require.Equal(t, hcd, s.HCD)
}
