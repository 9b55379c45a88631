package bft

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ruvnet/alienator/internal/bft/faulty"
	"github.com/ruvnet/alienator/internal/bft/keystore"
	"github.com/ruvnet/alienator/internal/bft/wire"
	"github.com/ruvnet/alienator/pkg/metrics"
)

// memTransport wires a fixed set of in-process replicas and clients
// together directly, without touching the network, so the protocol
// engine can be exercised deterministically in tests.
type memTransport struct {
	id       uint32
	replicas map[uint32]*Replica
	clients  map[uint32]*Client
}

func (t *memTransport) SendToReplica(id uint32, envelope []byte) {
	if r, ok := t.replicas[id]; ok {
		r.Enqueue(envelope)
	}
}

func (t *memTransport) BroadcastToReplicas(envelope []byte) {
	for id, r := range t.replicas {
		if id != t.id {
			r.Enqueue(envelope)
		}
	}
	// a replica also "receives" its own broadcast in the reference UDP
	// model (loopback), which is how a primary's own PRE-PREPARE ends up
	// driving its own slot just like every backup's.
	if r, ok := t.replicas[t.id]; ok {
		r.Enqueue(envelope)
	}
}

func (t *memTransport) SendToClient(id uint32, envelope []byte) {
	if c, ok := t.clients[id]; ok {
		c.Deliver(envelope)
	}
}

// clusterOpts lets individual scenario tests deviate from
// newTestCluster's defaults: a smaller checkpoint interval to exercise
// stabilization/truncation quickly (S5), or a boundary adversary
// wrapping one replica's outbound transport (S2).
type clusterOpts struct {
	checkpointInterval uint64
	faultyID           uint32
	faultyMode         faulty.Mode
	hasFaulty          bool
}

func newTestCluster(t *testing.T, f int) ([]*Replica, *Client, context.Context, context.CancelFunc) {
	return newTestClusterWith(t, f, clusterOpts{checkpointInterval: 100})
}

func newTestClusterWith(t *testing.T, f int, o clusterOpts) ([]*Replica, *Client, context.Context, context.CancelFunc) {
	t.Helper()
	n := 3*f + 1
	ks, err := keystore.Load("", "")
	require.NoError(t, err)

	replicas := map[uint32]*Replica{}
	transports := map[uint32]*memTransport{}
	for i := uint32(0); i < uint32(n); i++ {
		tr := &memTransport{id: i, replicas: replicas, clients: map[uint32]*Client{}}
		transports[i] = tr

		var rt Transport = tr
		if o.hasFaulty && i == o.faultyID {
			rt = faulty.New(tr, o.faultyMode, 1.0, int64(i)+1, nil)
		}

		replicas[i] = NewReplica(ReplicaOpts{
			ID:                 i,
			F:                  f,
			CheckpointInterval: o.checkpointInterval,
			Watermark:          200,
			CohesionWindow:     128,
			ViewTimeout:        50 * time.Millisecond,
			Transport:          rt,
			Keys:               ks,
			Metrics:            metrics.New(),
		})
	}
	for _, tr := range transports {
		tr.replicas = replicas
	}

	clientTr := &memTransport{id: 0, replicas: replicas, clients: map[uint32]*Client{}}
	var peerIDs []uint32
	for i := uint32(0); i < uint32(n); i++ {
		peerIDs = append(peerIDs, i)
	}
	client := NewClient(ClientOpts{ID: 100, F: f, Replicas: peerIDs, Transport: clientTr, Keys: ks, ResendTimeout: 200 * time.Millisecond})
	clientTr.clients[100] = client
	for _, tr := range transports {
		tr.clients[100] = client
	}

	ctx, cancel := context.WithCancel(context.Background())
	var list []*Replica
	for i := uint32(0); i < uint32(n); i++ {
		r := replicas[i]
		list = append(list, r)
		go r.Run(ctx)
	}
	return list, client, ctx, cancel
}

func TestClusterNormalCaseS1(t *testing.T) {
	replicas, client, ctx, cancel := newTestCluster(t, 1)
	defer cancel()

	reqCtx, reqCancel := context.WithTimeout(ctx, 2*time.Second)
	defer reqCancel()
	pr, err := client.MakeRequest(reqCtx, []byte("x"))
	require.NoError(t, err)

	outcome, _ := pr.Outcome()
	require.Equal(t, OutcomeComplete, outcome)

	for _, r := range replicas {
		require.Equal(t, 1, r.hcd.Len())
	}
}

func TestClusterDuplicateRequestS4(t *testing.T) {
	replicas, client, ctx, cancel := newTestCluster(t, 1)
	defer cancel()

	reqCtx, reqCancel := context.WithTimeout(ctx, 2*time.Second)
	defer reqCancel()
	first, err := client.MakeRequest(reqCtx, []byte("x"))
	require.NoError(t, err)
	outcome, _ := first.Outcome()
	require.Equal(t, OutcomeComplete, outcome)

	for _, r := range replicas {
		require.Equal(t, 1, r.hcd.Len())
	}

	// Re-submitting the identical (client_id, t) must hit the reply
	// cache, not append a new HCD block (§4.C, S4).
	req := first.req
	client.multicast(req)
	time.Sleep(100 * time.Millisecond)

	for _, r := range replicas {
		require.Equal(t, 1, r.hcd.Len())
	}
}

// TestClusterFaultyBackupDropsS2 exercises S2: a single backup wrapped
// in a ModeDropAll boundary adversary still prepares and commits
// locally, but none of its PREPAREs, COMMITs or replies leave it; the
// remaining 2f+1 correct replicas still carry the request to quorum.
func TestClusterFaultyBackupDropsS2(t *testing.T) {
	replicas, client, ctx, cancel := newTestClusterWith(t, 1, clusterOpts{
		checkpointInterval: 100,
		hasFaulty:          true,
		faultyID:           3,
		faultyMode:         faulty.ModeDropAll,
	})
	defer cancel()

	reqCtx, reqCancel := context.WithTimeout(ctx, 2*time.Second)
	defer reqCancel()
	pr, err := client.MakeRequest(reqCtx, []byte("x"))
	require.NoError(t, err)

	outcome, _ := pr.Outcome()
	require.Equal(t, OutcomeComplete, outcome)

	for _, r := range replicas {
		require.Equal(t, 1, r.hcd.Len())
	}
}

// TestClusterViewChangeOnStalledPrimaryS3 exercises S3: the primary's
// outbound transport is cut, so its PRE-PREPARE never reaches the
// backups. Their view timers (armed the moment the client's direct
// multicast hands them the REQUEST) expire and drive a view change;
// the client's own resend then lands on the new primary and the
// request completes under the new view.
func TestClusterViewChangeOnStalledPrimaryS3(t *testing.T) {
	replicas, client, ctx, cancel := newTestClusterWith(t, 1, clusterOpts{
		checkpointInterval: 100,
		hasFaulty:          true,
		faultyID:           0,
		faultyMode:         faulty.ModeDropAll,
	})
	defer cancel()

	reqCtx, reqCancel := context.WithTimeout(ctx, 5*time.Second)
	defer reqCancel()
	pr, err := client.MakeRequest(reqCtx, []byte("x"))
	require.NoError(t, err)

	outcome, _ := pr.Outcome()
	require.Equal(t, OutcomeComplete, outcome)

	for _, r := range replicas {
		if r.id == 0 {
			continue
		}
		require.Greater(t, r.view, uint64(0))
	}
}

// TestClusterCheckpointStabilizesAndTruncatesS5 exercises S5: once
// every replica commits a sequence that's a multiple of the (small,
// test-only) checkpoint interval, 2f+1 matching CHECKPOINTs make it
// stable and every slot below it is pruned.
func TestClusterCheckpointStabilizesAndTruncatesS5(t *testing.T) {
	replicas, client, ctx, cancel := newTestClusterWith(t, 1, clusterOpts{checkpointInterval: 2})
	defer cancel()

	for i := 0; i < 2; i++ {
		reqCtx, reqCancel := context.WithTimeout(ctx, 2*time.Second)
		pr, err := client.MakeRequest(reqCtx, []byte("x"))
		reqCancel()
		require.NoError(t, err)
		outcome, _ := pr.Outcome()
		require.Equal(t, OutcomeComplete, outcome)
	}

	require.Eventually(t, func() bool {
		for _, r := range replicas {
			if r.stableSeq != 2 {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	for _, r := range replicas {
		for key := range r.slots {
			require.GreaterOrEqual(t, key.Seq, uint64(2))
		}
	}
}

// TestClusterConflictingPrePrepareTriggersViewChangeS6 exercises S6: a
// backup handed two PRE-PREPAREs for the same (view, seq) carrying
// different digests — a forked primary — rejects the second and
// begins a view change rather than accept either blindly.
func TestClusterConflictingPrePrepareTriggersViewChangeS6(t *testing.T) {
	replicas, _, _, cancel := newTestCluster(t, 1)
	defer cancel()

	backup := replicas[1]
	require.False(t, backup.isPrimary())

	var d1, d2 wire.Digest
	d1[0] = 0x01
	d2[0] = 0x02
	pp1 := wire.PrePrepare{View: 0, Seq: 1, Digest: d1}
	pp2 := wire.PrePrepare{View: 0, Seq: 1, Digest: d2}

	backup.Enqueue(wire.Encode(&pp1, backup.sign))
	time.Sleep(50 * time.Millisecond)
	backup.Enqueue(wire.Encode(&pp2, backup.sign))

	// A lone replica spotting the fork can't complete a view change by
	// itself (it needs 2f+1 agreeing ViewChanges) — what S6 requires is
	// that it refuses to silently accept either branch and starts one.
	require.Eventually(t, func() bool {
		bucket, ok := backup.viewChanges[1]
		if !ok {
			return false
		}
		_, ok = bucket[backup.id]
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}
