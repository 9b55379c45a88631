package bft

import (
	"go.uber.org/zap"

	"github.com/ruvnet/alienator/internal/bft/wire"
)

// maybeCheckpoint emits a CHECKPOINT every K committed sequences
// (default K=100), per §4.G.
func (r *Replica) maybeCheckpoint(seq uint64) {
	if r.checkpointInterval == 0 || seq%r.checkpointInterval != 0 {
		return
	}
	if seq <= r.lastCheckpointed {
		return
	}
	r.lastCheckpointed = seq

	cp := wire.Checkpoint{
		ReplicaID: r.id,
		Seq:       seq,
		RCache:    r.rcache.Snapshot(),
	}
	for _, pid := range r.vv.Principals() {
		cp.VV = append(cp.VV, wire.PrincipalEntries{PrincipalID: pid, Entries: r.vv.EntriesOf(pid)})
	}
	// E: signed entries for principals whose last-known entry is old
	// enough (seq <= n - 2I) that a far-behind peer can rejoin without
	// every replica retaining unbounded history (§4.G, and the Open
	// Question resolved in SPEC_FULL.md overriding the buggy
	// vv.is_empty() guard from the original).
	threshold := int64(seq) - 2*int64(r.cohesionWindow)
	for _, pid := range r.vv.Principals() {
		latest, ok := r.vv.LatestOf(pid)
		if ok && int64(latest.Seq) <= threshold {
			cp.E = append(cp.E, latest)
		}
	}
	cp.Digest = digestOfVVSnapshot(cp.VV)

	bucket, ok := r.checkpoints[seq]
	if !ok {
		bucket = map[uint32]wire.Checkpoint{}
		r.checkpoints[seq] = bucket
	}
	bucket[r.id] = cp

	if r.metrics != nil {
		r.metrics.RecordCheckpoint()
	}
	r.broadcast(&cp)
	r.tryStabilize(seq)
}

func (r *Replica) handleCheckpoint(cp wire.Checkpoint) {
	bucket, ok := r.checkpoints[cp.Seq]
	if !ok {
		bucket = map[uint32]wire.Checkpoint{}
		r.checkpoints[cp.Seq] = bucket
	}
	bucket[cp.ReplicaID] = cp
	r.tryStabilize(cp.Seq)
}

// tryStabilize implements §4.G stability: 2f+1 matching checkpoints
// (n, digest_of(vv_snapshot)) from distinct signers. On stability the
// HCD is truncated below n, prepare/commit/pre-prepare stores for
// sequences < n are pruned, and the ReplyCache is replaced wholesale.
func (r *Replica) tryStabilize(seq uint64) {
	if seq <= r.stableSeq {
		return
	}
	bucket := r.checkpoints[seq]
	byDigest := map[wire.Digest]int{}
	for _, cp := range bucket {
		byDigest[cp.Digest]++
	}
	var stableDigest wire.Digest
	stable := false
	for d, count := range byDigest {
		if count >= 2*r.f+1 {
			stableDigest = d
			stable = true
			break
		}
	}
	if !stable {
		return
	}

	var snapshot wire.Checkpoint
	for _, cp := range bucket {
		if cp.Digest == stableDigest {
			snapshot = cp
			break
		}
	}

	r.stableSeq = seq
	r.hcd.TruncateBelow(seq)
	r.rcache.Restore(snapshot.RCache)
	r.pruneSlotsBelow(seq)
	delete(r.checkpoints, seq)
	if r.audit != nil {
		r.audit.RecordCheckpoint(r.id, seq, stableDigest[:])
	}
	if r.metrics != nil {
		r.metrics.RecordCheckpointStable()
		r.metrics.SetWatermark(r.highSeq-r.window, r.highSeq+r.window)
	}
	r.log.Info("checkpoint stable", zap.Uint64("seq", seq))
}

func (r *Replica) pruneSlotsBelow(seq uint64) {
	for key := range r.slots {
		if key.Seq < seq {
			delete(r.slots, key)
		}
	}
}

func digestOfVVSnapshot(vv []wire.PrincipalEntries) wire.Digest {
	var parts [][]byte
	for _, p := range vv {
		for _, e := range p.Entries {
			b := append([]byte{}, byte(e.ReplicaID), byte(e.ReplicaID>>8), byte(e.ReplicaID>>16), byte(e.ReplicaID>>24))
			b = append(b, e.Digest[:]...)
			parts = append(parts, b)
		}
	}
	return wire.HashBytes(parts...)
}
