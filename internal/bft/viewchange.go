package bft

import (
	"time"

	"go.uber.org/zap"

	"github.com/ruvnet/alienator/internal/bft/wire"
	bfterrors "github.com/ruvnet/alienator/internal/errors"
)

// beginViewChange implements the timeout path of §4.F: compute
// last_committed, gather P_m for every prepared-but-uncommitted
// sequence beyond it, broadcast VIEW_CHANGE, and arm the escalation
// timer.
func (r *Replica) beginViewChange() {
	// Each new-view timeout since the last adopted view moves the target
	// one view further: v+1 first, then v+2, and so on.
	nextView := r.view + 1 + uint64(r.viewChangeBackoff)
	vc := wire.ViewChange{
		NewViewNum:    nextView,
		ReplicaID:     r.id,
		LastCommitted: r.lastCommitted,
	}
	for key, s := range r.slots {
		if key.View != r.view || key.Seq <= r.lastCommitted.Seq {
			continue
		}
		if s.PrePared == nil {
			continue
		}
		if s.matchingPrepares(s.PrePared.Digest, r.distrusted) < 2*r.f {
			continue
		}
		cert := wire.PreparedCert{PrePrepare: *s.PrePared}
		for _, p := range s.Prepares {
			if p.Digest == s.PrePared.Digest {
				cert.Prepares = append(cert.Prepares, p)
			}
		}
		vc.P = append(vc.P, cert)
	}

	r.log.Info("beginning view change", zap.Uint64("new_view", nextView))
	r.broadcast(&vc)
	r.recordViewChange(nextView, r.id, vc)
	r.armNewViewTimer()
}

func (r *Replica) recordViewChange(newView uint64, from uint32, vc wire.ViewChange) {
	bucket, ok := r.viewChanges[newView]
	if !ok {
		bucket = map[uint32]wire.ViewChange{}
		r.viewChanges[newView] = bucket
	}
	bucket[from] = vc
}

func (r *Replica) handleViewChange(vc wire.ViewChange) {
	if vc.NewViewNum <= r.view {
		return
	}

	// Dominance check (§4.F BFT2F-specific): if the sender's
	// last_committed is strictly behind ours, assert dominance instead
	// of rolling back.
	if lexLess(vc.LastCommitted, r.lastCommitted) {
		r.reject(bfterrors.NewNotDominantPrimaryError("sender behind our last committed state"))
		nd := wire.PrimaryNotDominant{FromReplicaID: r.id, ToReplicaID: vc.ReplicaID, LastCommitted: r.lastCommitted}
		r.send(&nd, vc.ReplicaID)
		r.sendOperationsDict(vc.ReplicaID, vc.LastCommitted.Seq)
		if r.metrics != nil {
			r.metrics.RecordPrimaryNotDominant()
		}
		return
	}

	r.recordViewChange(vc.NewViewNum, vc.ReplicaID, vc)

	if r.primaryOf(vc.NewViewNum) != r.id {
		return
	}
	bucket := r.viewChanges[vc.NewViewNum]
	if len(bucket) < 2*r.f+1 {
		return
	}
	nv, ok := r.buildNewView(vc.NewViewNum, bucket)
	if !ok {
		return
	}
	r.broadcast(&nv)
	r.adoptNewView(nv)
}

// lexLess reports whether a is strictly behind b in (view, seq)
// lexicographic order.
func lexLess(a, b wire.VersionVectorEntry) bool {
	if a.View != b.View {
		return a.View < b.View
	}
	return a.Seq < b.Seq
}

// buildNewView forms V (non-conflicting 2f+1 ViewChanges) and O (the
// re-issued pre-prepares for (min_s, max_s]), per §4.F. Per the
// resolved Open Question, O is PrePrepare-only.
func (r *Replica) buildNewView(newView uint64, bucket map[uint32]wire.ViewChange) (wire.NewView, bool) {
	var vs []wire.ViewChange
	minS := ^uint64(0)
	maxS := uint64(0)
	digestBySeq := map[uint64]wire.Digest{}
	requestBySeq := map[uint64]wire.Request{}

	for _, vc := range bucket {
		vs = append(vs, vc)
		if vc.LastCommitted.Seq < minS {
			minS = vc.LastCommitted.Seq
		}
		for _, cert := range vc.P {
			seq := cert.PrePrepare.Seq
			if seq > maxS {
				maxS = seq
			}
			if existing, ok := digestBySeq[seq]; ok && existing != cert.PrePrepare.Digest {
				// conflicting certificates for the same sequence: not a
				// valid V set.
				return wire.NewView{}, false
			}
			digestBySeq[seq] = cert.PrePrepare.Digest
			requestBySeq[seq] = cert.PrePrepare.Request
		}
	}
	if minS == ^uint64(0) {
		minS = 0
	}

	nv := wire.NewView{NewViewNum: newView, V: vs}
	for n := minS + 1; n <= maxS; n++ {
		if d, ok := digestBySeq[n]; ok {
			nv.O = append(nv.O, wire.PrePrepare{View: newView, Seq: n, Digest: d, HasRequest: true, Request: requestBySeq[n]})
		} else {
			nv.O = append(nv.O, wire.PrePrepare{View: newView, Seq: n, HasRequest: false})
		}
	}
	return nv, true
}

func (r *Replica) handleNewView(nv wire.NewView) {
	if nv.NewViewNum <= r.view {
		return
	}
	if len(nv.V) < 2*r.f+1 {
		return
	}
	signers := map[uint32]bool{}
	for _, vc := range nv.V {
		signers[vc.ReplicaID] = true
	}
	if len(signers) < 2*r.f+1 {
		return
	}
	r.adoptNewView(nv)
}

// adoptNewView installs the O-set as the pre-prepare store for the new
// view and emits PREPAREs for every non-null entry (§4.F).
func (r *Replica) adoptNewView(nv wire.NewView) {
	r.log.Info("adopting new view", zap.Uint64("view", nv.NewViewNum))
	r.view = nv.NewViewNum
	r.viewChangeBackoff = 0
	if r.newViewTimer != nil {
		r.newViewTimer.Stop()
	}
	if r.metrics != nil {
		r.metrics.RecordViewChange(r.view)
	}

	for _, pp := range nv.O {
		if !pp.HasRequest {
			continue
		}
		key := slotKey{View: r.view, Seq: pp.Seq}
		s := r.slot(key)
		s.PrePared = &pp
		s.State = SlotPrePrepared
		if pp.Seq > r.highSeq {
			r.highSeq = pp.Seq
		}
		if !r.isPrimary() {
			prep := wire.Prepare{View: pp.View, Seq: pp.Seq, Digest: pp.Digest, ReplicaID: r.id}
			s.Prepares[r.id] = prep
			r.broadcast(&prep)
		}
		r.tryAdvanceToPrepared(s)
	}

	r.replayFutureMsgs()
}

// replayFutureMsgs re-delivers every envelope bufferIfFutureView held
// for the view this replica just adopted, then discards anything still
// buffered for a view at or below it (stale: it can never be adopted
// now that the replica has moved past it).
func (r *Replica) replayFutureMsgs() {
	bucket := r.futureMsgs[r.view]
	delete(r.futureMsgs, r.view)
	for v := range r.futureMsgs {
		if v <= r.view {
			delete(r.futureMsgs, v)
		}
	}
	for _, raw := range bucket {
		r.deliver(raw)
	}
}

// armNewViewTimer starts the escalation timer at 2x the base view
// timeout; on expiry it escalates to view+2 with capped exponential
// backoff (§4.F step 4, §5 cancellation policy).
func (r *Replica) armNewViewTimer() {
	if r.newViewTimer != nil {
		r.newViewTimer.Stop()
	}
	mult := 1 << r.viewChangeBackoff
	if mult > r.maxBackoff {
		mult = r.maxBackoff
	}
	d := 2 * r.viewTimeout * time.Duration(mult)
	r.newViewTimer = time.AfterFunc(d, func() {
		select {
		case r.newViewFired <- struct{}{}:
		default:
		}
	})
}

func (r *Replica) onNewViewTimeout() {
	r.viewChangeBackoff++
	r.reject(bfterrors.NewViewChangeFailedError("new-view did not complete before escalation timeout"))
	r.beginViewChange()
}

// --- dominance catch-up (§4.F, §7/§9 push semantics) ------------

// sendOperationsDict serves to (the replica whose ViewChange lost the
// dominance check) every committed slot this replica holds for seq in
// (fromSeq, r.lastCommitted.Seq], each carrying the 2f+1 commit
// certificate that proves it. This is the serving half of §7's
// NotDominantPrimary entry: "respond with PRIMARY_NOT_DOMINANT, then
// serve missing commits" — the dominant replica pushes, since the
// behind replica has no certificate of its own to offer.
func (r *Replica) sendOperationsDict(to uint32, fromSeq uint64) {
	var dict wire.OperationsDict
	for seq := fromSeq + 1; seq <= r.lastCommitted.Seq; seq++ {
		var commits []wire.Commit
		for _, s := range r.slots {
			if s.Key.Seq != seq || (s.State != SlotCommitted && s.State != SlotReplied) {
				continue
			}
			for _, c := range s.Commits {
				if c.HCD == s.HCD {
					commits = append(commits, c)
				}
			}
		}
		if len(commits) == 0 {
			// Already GC'd below our stable checkpoint: the behind
			// replica recovers this range via checkpoint catch-up
			// instead, not via OperationsDict.
			continue
		}
		dict.Entries = append(dict.Entries, wire.OpsDictEntry{Seq: seq, Commits: commits})
	}
	if len(dict.Entries) > 0 {
		r.send(&dict, to)
	}
}

// handlePrimaryNotDominant lands on the replica that lost the
// dominance check. The data it's missing arrives separately via
// sendOperationsDict from the dominant side, so there's nothing to
// build here — this side only has partial, non-certified state and
// can never manufacture a qualifying 2f+1 commit set of its own.
func (r *Replica) handlePrimaryNotDominant(nd wire.PrimaryNotDominant) {
	if nd.ToReplicaID != r.id {
		return
	}
	r.log.Info("primary not dominant, awaiting operations dict",
		zap.Uint32("from", nd.FromReplicaID), zap.Uint64("dominant_seq", nd.LastCommitted.Seq))
}

func (r *Replica) handleOperationsDict(dict wire.OperationsDict) {
	for _, entry := range dict.Entries {
		if len(entry.Commits) < 2*r.f+1 {
			continue
		}
		byDigest := map[wire.Digest]int{}
		var best wire.Digest
		for _, c := range entry.Commits {
			byDigest[c.HCD]++
			if byDigest[c.HCD] > byDigest[best] {
				best = c.HCD
			}
		}
		if byDigest[best] < 2*r.f+1 {
			continue
		}
		key := slotKey{View: r.view, Seq: entry.Seq}
		s := r.slot(key)
		if s.State == SlotCommitted || s.State == SlotReplied {
			continue
		}
		for _, c := range entry.Commits {
			if c.HCD == best {
				s.Commits[c.ReplicaID] = c
			}
		}
		s.HCD = best
		s.State = SlotPrepared
		r.tryAdvanceToCommitted(s)
	}
}
