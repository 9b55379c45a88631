// Package bft implements the BFT2F replicated state machine core: the
// hash-chain digest, version vector, reply cache, per-replica ordering
// state machine, view-change engine, checkpoint engine, and client
// quorum engine (spec §1-§4). Everything in this package is driven by
// a single serialized event loop per replica/client — there is no
// lock discipline inside the state machine itself (§5).
package bft

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ruvnet/alienator/internal/bft/appfsm"
	bfterrors "github.com/ruvnet/alienator/internal/errors"
	"github.com/ruvnet/alienator/internal/bft/keystore"
	"github.com/ruvnet/alienator/internal/bft/wire"
	"github.com/ruvnet/alienator/pkg/metrics"
)

// Replica is the per-node ordering engine (component E). Exactly one
// goroutine (Run) ever touches its fields; transport and timers feed
// events into it through channels instead of calling it directly.
type Replica struct {
	id uint32
	f  int
	n  int

	view    uint64
	highSeq uint64 // h: highest sequence number this replica has assigned or accepted
	window  uint64 // W

	hcd    *HashChain
	vv     *VersionVector
	rcache *ReplyCache
	slots  map[slotKey]*Slot

	// ordered dedups REQUESTs the primary has already assigned a
	// sequence to, so a request forwarded by more than one backup (every
	// backup forwards what the client already multicast directly) is
	// only ever ordered once, ahead of any reply landing in rcache.
	ordered map[requestKey]uint64

	// distrusted holds replica ids caught equivocating (two different
	// PREPAREs for the same view/seq) within the current protocol
	// lifetime. A distrusted replica's votes no longer count toward any
	// quorum (§7); downgrade is never reversed.
	distrusted map[uint32]bool

	lastCommitted wire.VersionVectorEntry

	// view-change engine state (component F)
	viewChanges      map[uint64]map[uint32]wire.ViewChange
	viewChangeBackoff int
	maxBackoff        int

	// checkpoint engine state (component G)
	checkpointInterval uint64
	cohesionWindow     uint64
	checkpoints        map[uint64]map[uint32]wire.Checkpoint
	stableSeq          uint64
	lastCheckpointed   uint64

	app       appfsm.StateMachine
	transport Transport
	keys      *keystore.KeyStore
	metrics   *metrics.Metrics
	audit     AuditSink
	log       *zap.Logger

	viewTimeout time.Duration
	viewTimer   *time.Timer
	viewFired   chan struct{}

	newViewTimer *time.Timer
	newViewFired chan struct{}

	pendingRequest bool // whether the armed view timer guards an outstanding request

	// clientLimiters throttles REQUEST admission per client_id, ahead of
	// any ordering work. This is an anti-flood control independent of
	// Byzantine tolerance (§5/§6 domain stack) — it never rejects a
	// request because of what the request says, only how fast a given
	// client is sending.
	clientLimiters map[uint32]*rate.Limiter
	clientRate     rate.Limit
	clientBurst    int

	// futureMsgs buffers PRE-PREPARE/PREPARE/COMMIT envelopes for a view
	// this replica hasn't adopted yet (§4.E: "a message for a foreign
	// view is buffered iff view > v, else dropped"). Replayed once
	// adoptNewView catches this replica up to that view.
	futureMsgs map[uint64][][]byte

	inbox     chan []byte
	statusReq chan chan Status

	faultHalt bool // set on ChecksumMismatch: replica self-isolates (§7)
}

// ReplicaOpts configures a new Replica.
type ReplicaOpts struct {
	ID                 uint32
	F                  int
	CheckpointInterval uint64
	Watermark          uint64
	CohesionWindow     uint64
	ViewTimeout        time.Duration
	MaxBackoff         int

	// ClientRatePerSec and ClientBurst bound how often any one client_id
	// may have a REQUEST admitted per second; zero ClientRatePerSec
	// disables the limiter entirely.
	ClientRatePerSec float64
	ClientBurst      int

	App       appfsm.StateMachine
	Transport Transport
	Keys      *keystore.KeyStore
	Metrics   *metrics.Metrics
	Audit     AuditSink
	Log       *zap.Logger
}

// AuditSink receives a durable, out-of-band mirror of state this
// replica reaches — the optional `--persist` wiring (§6). Never
// consulted for protocol correctness: a nil AuditSink is always valid.
type AuditSink interface {
	RecordCommit(replicaID uint32, view, seq uint64, digest, op []byte)
	RecordCheckpoint(replicaID uint32, seq uint64, digest []byte)
}

// NewReplica constructs a Replica in view 0, backup or primary
// depending on id.
func NewReplica(o ReplicaOpts) *Replica {
	if o.App == nil {
		o.App = appfsm.NewEcho()
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 8
	}
	r := &Replica{
		id:                 o.ID,
		f:                  o.F,
		n:                  3*o.F + 1,
		window:             o.Watermark,
		hcd:                NewHashChain(),
		vv:                 NewVersionVector(),
		rcache:             NewReplyCache(),
		slots:              map[slotKey]*Slot{},
		ordered:            map[requestKey]uint64{},
		distrusted:         map[uint32]bool{},
		viewChanges:        map[uint64]map[uint32]wire.ViewChange{},
		futureMsgs:         map[uint64][][]byte{},
		maxBackoff:         o.MaxBackoff,
		checkpointInterval: o.CheckpointInterval,
		cohesionWindow:     o.CohesionWindow,
		checkpoints:        map[uint64]map[uint32]wire.Checkpoint{},
		app:                o.App,
		transport:          o.Transport,
		keys:               o.Keys,
		metrics:            o.Metrics,
		audit:              o.Audit,
		log:                o.Log.With(zap.Uint32("replica_id", o.ID)),
		viewTimeout:        o.ViewTimeout,
		viewFired:          make(chan struct{}, 1),
		newViewFired:       make(chan struct{}, 1),
		clientLimiters:     map[uint32]*rate.Limiter{},
		clientRate:         rate.Limit(o.ClientRatePerSec),
		clientBurst:        o.ClientBurst,
		inbox:              make(chan []byte, 1024),
		statusReq:          make(chan chan Status),
	}
	return r
}

// Status is a point-in-time snapshot of a replica's protocol
// position, safe to read from outside the event loop because Run
// answers it synchronously alongside every other select case rather
// than exposing the fields directly (§5: no lock discipline means no
// field is safe to read from a second goroutine).
type Status struct {
	ReplicaID  uint32 `json:"replica_id"`
	View       uint64 `json:"view"`
	IsPrimary  bool   `json:"is_primary"`
	HighSeq    uint64 `json:"high_seq"`
	StableSeq  uint64 `json:"stable_seq"`
	LastCommit uint64 `json:"last_commit_seq"`
}

// Status requests a snapshot from the running event loop and blocks
// until Run answers it, waiting at most one second for Run to take the
// request and one more second for the answer. If either wait runs out
// (for example because Run has already exited) it returns a Status
// carrying only ReplicaID.
func (r *Replica) Status() interface{} {
	reply := make(chan Status, 1)
	select {
	case r.statusReq <- reply:
	case <-time.After(time.Second):
		return Status{ReplicaID: r.id}
	}
	select {
	case s := <-reply:
		return s
	case <-time.After(time.Second):
		return Status{ReplicaID: r.id}
	}
}

// admitClient reports whether client_id's REQUEST may be admitted
// right now, consuming one token if so. Disabled when clientRate is 0.
func (r *Replica) admitClient(clientID uint32) bool {
	if r.clientRate <= 0 {
		return true
	}
	l, ok := r.clientLimiters[clientID]
	if !ok {
		burst := r.clientBurst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(r.clientRate, burst)
		r.clientLimiters[clientID] = l
	}
	return l.Allow()
}

// primaryOf returns the replica id that is primary for view v (§2:
// primary(v) = v mod N).
func (r *Replica) primaryOf(v uint64) uint32 {
	return uint32(v % uint64(r.n))
}

func (r *Replica) isPrimary() bool {
	return r.primaryOf(r.view) == r.id
}

// Enqueue is the Transport's entry point: it hands a raw inbound
// envelope to the replica's event loop without blocking the caller's
// own goroutine (§5: I/O suspension points are separate from state
// transitions).
func (r *Replica) Enqueue(raw []byte) {
	select {
	case r.inbox <- raw:
	default:
		// Backpressure: a full inbound queue drops the incoming
		// datagram. No per-message-kind priority is applied, neither
		// here nor after decoding; entries already queued are never
		// evicted to make room.
		r.log.Warn("inbox full, dropping datagram")
	}
}

// Run drives the replica's single serialized event loop until ctx is
// cancelled. Exactly one goroutine should ever call Run.
func (r *Replica) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-r.inbox:
			if r.faultHalt {
				continue
			}
			r.deliver(raw)
		case <-r.viewFired:
			if r.faultHalt {
				continue
			}
			r.onViewTimeout()
		case <-r.newViewFired:
			if r.faultHalt {
				continue
			}
			r.onNewViewTimeout()
		case reply := <-r.statusReq:
			reply <- Status{
				ReplicaID:  r.id,
				View:       r.view,
				IsPrimary:  r.isPrimary(),
				HighSeq:    r.highSeq,
				StableSeq:  r.stableSeq,
				LastCommit: r.lastCommitted.Seq,
			}
		}
	}
}

// maxFutureMsgsPerView caps how many foreign-view envelopes this
// replica will hold per view before it starts dropping the overflow,
// so a malicious or runaway sender can't grow futureMsgs unboundedly.
const maxFutureMsgsPerView = 4096

// bufferIfFutureView implements the foreign-view half of §4.E's
// transition guard: a PRE-PREPARE/PREPARE/COMMIT for a view this
// replica hasn't adopted yet is held rather than dropped, and replayed
// by adoptNewView once the replica catches up to that view.
func (r *Replica) bufferIfFutureView(view uint64, raw []byte) bool {
	if view <= r.view {
		return false
	}
	bucket := r.futureMsgs[view]
	if len(bucket) >= maxFutureMsgsPerView {
		return true
	}
	r.futureMsgs[view] = append(bucket, append([]byte(nil), raw...))
	return true
}

func (r *Replica) deliver(raw []byte) {
	msg, sig, err := wire.Decode(raw)
	if err != nil {
		r.reject(bfterrors.NewTransientDecodeError(err.Error()))
		return
	}
	if !r.verify(msg, sig) {
		r.reject(bfterrors.NewTransientDecodeError("signature verification failed"))
		return
	}
	switch m := msg.(type) {
	case *wire.Request:
		r.handleRequest(*m, raw)
	case *wire.PrePrepare:
		if r.bufferIfFutureView(m.View, raw) {
			return
		}
		r.handlePrePrepare(*m)
	case *wire.Prepare:
		if r.bufferIfFutureView(m.View, raw) {
			return
		}
		r.handlePrepare(*m)
	case *wire.Commit:
		if r.bufferIfFutureView(m.View, raw) {
			return
		}
		r.handleCommit(*m)
	case *wire.ViewChange:
		r.handleViewChange(*m)
	case *wire.NewView:
		r.handleNewView(*m)
	case *wire.Checkpoint:
		r.handleCheckpoint(*m)
	case *wire.OperationsDict:
		r.handleOperationsDict(*m)
	case *wire.PrimaryNotDominant:
		r.handlePrimaryNotDominant(*m)
	default:
		r.reject(bfterrors.NewTransientDecodeError(fmt.Sprintf("unhandled message type %T", msg)))
	}
}

// verify checks msg's detached signature against the principal the
// protocol expects to have signed it. Messages whose wire shape does
// not name a sender directly (OperationsDict) are trusted on the
// strength of the point-to-point push from the dominant replica that
// carries them, rather than re-verified byte-for-byte here — see
// DESIGN.md.
func (r *Replica) verify(msg wire.Message, sig []byte) bool {
	payload := msg.MarshalPayload()
	switch m := msg.(type) {
	case *wire.Request:
		return r.keys.Verify(keystore.ClientPrincipal(m.ClientID), payload, sig)
	case *wire.PrePrepare:
		return r.keys.Verify(keystore.ReplicaPrincipal(r.primaryOf(m.View)), payload, sig)
	case *wire.Prepare:
		return r.keys.Verify(keystore.ReplicaPrincipal(m.ReplicaID), payload, sig)
	case *wire.Commit:
		return r.keys.Verify(keystore.ReplicaPrincipal(m.ReplicaID), payload, sig)
	case *wire.ViewChange:
		return r.keys.Verify(keystore.ReplicaPrincipal(m.ReplicaID), payload, sig)
	case *wire.NewView:
		return r.keys.Verify(keystore.ReplicaPrincipal(r.primaryOf(m.NewViewNum)), payload, sig)
	case *wire.Checkpoint:
		return r.keys.Verify(keystore.ReplicaPrincipal(m.ReplicaID), payload, sig)
	case *wire.PrimaryNotDominant:
		return r.keys.Verify(keystore.ReplicaPrincipal(m.FromReplicaID), payload, sig)
	case *wire.OperationsDict:
		return true
	default:
		return false
	}
}

func (r *Replica) reject(err *bfterrors.ProtocolError) {
	r.log.Debug("rejected message", zap.String("code", string(err.Code)), zap.String("detail", err.Message))
	if r.metrics != nil {
		r.metrics.RecordRejectedMessage(string(err.Code))
	}
}

func (r *Replica) sign(payload []byte) []byte {
	return r.keys.Sign(payload)
}

func (r *Replica) send(msg wire.Message, to uint32) {
	env := wire.Encode(msg, r.sign)
	r.transport.SendToReplica(to, env)
}

func (r *Replica) broadcast(msg wire.Message) {
	env := wire.Encode(msg, r.sign)
	r.transport.BroadcastToReplicas(env)
}

func (r *Replica) replyToClient(msg *wire.Reply) {
	env := wire.Encode(msg, r.sign)
	r.transport.SendToClient(msg.ClientID, env)
}

func (r *Replica) slot(key slotKey) *Slot {
	s, ok := r.slots[key]
	if !ok {
		s = newSlot(key)
		r.slots[key] = s
	}
	return s
}

// --- REQUEST (§4.E) ----------------------------------------------------

func (r *Replica) handleRequest(req wire.Request, raw []byte) {
	if !r.admitClient(req.ClientID) {
		if r.metrics != nil {
			r.metrics.RecordRejectedMessage("rate_limited")
		}
		return
	}

	decision, cached := r.rcache.Classify(req.ClientID, req.T)
	switch decision {
	case DecisionResend:
		if r.metrics != nil {
			r.metrics.RecordReplyCacheHit()
		}
		r.replyToClient(&cached)
		return
	case DecisionDrop:
		return
	}

	if req.HasKnown {
		if state, ok := r.vv.CurrentSystemState(r.f); ok && req.KnownState.Seq == state.Seq && req.KnownState.Digest != state.Digest {
			r.reject(bfterrors.NewStaleClientKnownStateError("client known_state diverges from current_system_state"))
			r.replyToClient(&wire.Reply{ClientID: req.ClientID, T: req.T, ForkSuspected: true})
			return
		}
	}

	if r.isPrimary() {
		rk := requestKey{ClientID: req.ClientID, T: req.T}
		if _, already := r.ordered[rk]; already {
			// A backup that received this request directly from the
			// client also forwards it to the primary (§4.E); since the
			// client already multicasts to the primary itself, the same
			// logical request can arrive here more than once before any
			// reply exists to dedup against via rcache.
			return
		}
		r.highSeq++
		seq := r.highSeq
		r.ordered[rk] = seq
		digest := wire.HashBytes(req.MarshalPayload())
		pp := wire.PrePrepare{View: r.view, Seq: seq, Digest: digest, HasRequest: true, Request: req}
		key := slotKey{View: r.view, Seq: seq}
		s := r.slot(key)
		s.PrePared = &pp
		s.State = SlotPrePrepared
		if r.metrics != nil {
			r.metrics.RecordPrePrepare()
		}
		r.broadcast(&pp)
	} else {
		primary := r.primaryOf(r.view)
		r.transport.SendToReplica(primary, raw)
	}
	r.armViewTimer()
}

// --- PRE-PREPARE (§4.E) -------------------------------------------------

func (r *Replica) handlePrePrepare(pp wire.PrePrepare) {
	if pp.View != r.view {
		return
	}
	if !r.inWindow(pp.Seq) {
		r.reject(bfterrors.NewOutOfWindowError("pre-prepare outside watermark"))
		return
	}
	if pp.HasRequest {
		want := wire.HashBytes(pp.Request.MarshalPayload())
		if want != pp.Digest {
			r.reject(bfterrors.NewTransientDecodeError("pre-prepare digest does not match request"))
			return
		}
	}
	key := slotKey{View: pp.View, Seq: pp.Seq}
	s := r.slot(key)
	if s.PrePared != nil && s.PrePared.Digest != pp.Digest {
		r.reject(bfterrors.NewConflictingPrePrepareError("primary proposed two digests at (v,n)"))
		r.beginViewChange()
		return
	}
	if s.PrePared != nil {
		return // duplicate, already handled
	}
	s.PrePared = &pp
	if s.State == SlotEmpty {
		s.State = SlotPrePrepared
	}
	if pp.Seq > r.highSeq {
		r.highSeq = pp.Seq
	}
	if r.metrics != nil {
		r.metrics.RecordPrePrepare()
	}

	// The primary never sends PREPAREs (§4.E).
	if !r.isPrimary() {
		prep := wire.Prepare{View: pp.View, Seq: pp.Seq, Digest: pp.Digest, ReplicaID: r.id}
		s.Prepares[r.id] = prep
		r.broadcast(&prep)
	}
	r.armViewTimer()
	r.tryAdvanceToPrepared(s)
}

// --- PREPARE (§4.E) ------------------------------------------------------

func (r *Replica) handlePrepare(p wire.Prepare) {
	if p.View != r.view {
		return
	}
	if !r.inWindow(p.Seq) {
		r.reject(bfterrors.NewOutOfWindowError("prepare outside watermark"))
		return
	}
	key := slotKey{View: p.View, Seq: p.Seq}
	s := r.slot(key)
	if existing, ok := s.Prepares[p.ReplicaID]; ok && existing.Digest != p.Digest {
		r.reject(bfterrors.NewConflictingPrepareError("peer prepared two digests at (v,n)"))
		r.downgrade(p.ReplicaID, s)
		return
	}
	s.Prepares[p.ReplicaID] = p
	r.tryAdvanceToPrepared(s)
}

// downgrade excludes replicaID from every future quorum count (§7:
// "peer downgraded, not trusted for quorum") after it's caught
// equivocating within the current view. If that leaves fewer trusted
// replicas than any quorum needs, no uncommitted slot can ever
// complete on votes alone, so this escalates to a view change rather
// than stalling on votes that will never arrive.
func (r *Replica) downgrade(replicaID uint32, s *Slot) {
	if r.distrusted == nil {
		r.distrusted = map[uint32]bool{}
	}
	if r.distrusted[replicaID] {
		return
	}
	r.distrusted[replicaID] = true
	r.log.Warn("downgrading replica after conflicting prepare", zap.Uint32("replica_id", replicaID))

	if r.n-len(r.distrusted) < 2*r.f+1 && s.State != SlotCommitted && s.State != SlotReplied {
		r.beginViewChange()
	}
}

// tryAdvanceToPrepared implements the PREPARED transition: a matching
// pre-prepare plus 2f matching prepares from distinct backups. On
// entry the HCD is appended and COMMIT is broadcast carrying HCD^n.
func (r *Replica) tryAdvanceToPrepared(s *Slot) {
	if s.State != SlotPrePrepared || s.PrePared == nil {
		return
	}
	if s.matchingPrepares(s.PrePared.Digest, r.distrusted) < 2*r.f {
		return
	}
	block, err := r.hcd.Append(s.PrePared.Request, s.Key.Seq)
	if err != nil {
		r.log.Error("hash chain append failed", zap.Error(err))
		return
	}
	s.State = SlotPrepared
	s.HCD = block.Hash
	if r.metrics != nil {
		r.metrics.RecordPrepare()
	}
	commit := wire.Commit{View: s.Key.View, Seq: s.Key.Seq, HCD: block.Hash, ReplicaID: r.id}
	s.Commits[r.id] = commit
	r.broadcast(&commit)
	r.tryAdvanceToCommitted(s)
}

// --- COMMIT (§4.E) --------------------------------------------------------

func (r *Replica) handleCommit(c wire.Commit) {
	if c.View != r.view {
		return
	}
	if !r.inWindow(c.Seq) {
		r.reject(bfterrors.NewOutOfWindowError("commit outside watermark"))
		return
	}
	key := slotKey{View: c.View, Seq: c.Seq}
	s := r.slot(key)
	s.Commits[c.ReplicaID] = c
	r.tryAdvanceToCommitted(s)
}

// tryAdvanceToCommitted implements the COMMITTED transition: 2f+1
// matching commits (same v, n, HCD^n), including the replica's own.
func (r *Replica) tryAdvanceToCommitted(s *Slot) {
	if s.State != SlotPrepared {
		return
	}
	if s.HCD.IsZero() {
		return
	}
	if s.matchingCommits(s.HCD, r.distrusted) < 2*r.f+1 {
		return
	}
	s.State = SlotCommitted

	start := time.Now()
	var result []byte
	if s.PrePared != nil && s.PrePared.HasRequest {
		res, err := r.app.Execute(s.PrePared.Request.Op)
		if err != nil {
			r.log.Error("application execute failed", zap.Error(err))
			return
		}
		result = res
	}
	if r.metrics != nil {
		r.metrics.RecordCommit(time.Since(start))
	}

	entry := wire.VersionVectorEntry{ReplicaID: r.id, View: s.Key.View, Seq: s.Key.Seq, Digest: s.HCD}
	entry.Signature = r.sign(entryPayload(entry))
	r.vv.Update(r.id, entry)
	r.lastCommitted = entry

	if r.audit != nil {
		var op []byte
		if s.PrePared != nil {
			op = s.PrePared.Request.Op
		}
		r.audit.RecordCommit(r.id, entry.View, entry.Seq, entry.Digest[:], op)
	}

	if s.PrePared != nil && s.PrePared.HasRequest {
		reply := wire.Reply{ClientID: s.PrePared.Request.ClientID, T: s.PrePared.Request.T, Result: result, Entry: entry}
		r.rcache.Put(s.PrePared.Request.ClientID, reply)
		s.State = SlotReplied
		s.Replied = true
		if r.metrics != nil {
			r.metrics.RecordReply()
		}
		r.replyToClient(&reply)
	}

	r.disarmViewTimerIfSettled()
	r.maybeCheckpoint(s.Key.Seq)
}

// entryPayload is the signed preimage of a VersionVectorEntry: every
// field an attacker could replay or splice in isolation (ReplicaID,
// View, Seq, Digest) must be bound into one signature, or a forged
// entry could graft a genuine digest onto a different (view, seq).
func entryPayload(e wire.VersionVectorEntry) []byte {
	var buf []byte
	buf = append(buf, byte(e.ReplicaID), byte(e.ReplicaID>>8), byte(e.ReplicaID>>16), byte(e.ReplicaID>>24))
	buf = append(buf,
		byte(e.View), byte(e.View>>8), byte(e.View>>16), byte(e.View>>24),
		byte(e.View>>32), byte(e.View>>40), byte(e.View>>48), byte(e.View>>56))
	buf = append(buf,
		byte(e.Seq), byte(e.Seq>>8), byte(e.Seq>>16), byte(e.Seq>>24),
		byte(e.Seq>>32), byte(e.Seq>>40), byte(e.Seq>>48), byte(e.Seq>>56))
	return append(buf, e.Digest[:]...)
}

// --- watermark & timers ----------------------------------------------------

func (r *Replica) inWindow(seq uint64) bool {
	if seq+r.window < r.highSeq {
		return false
	}
	if seq > r.highSeq+r.window {
		return false
	}
	return true
}

// armViewTimer starts the per-request view timer on first acceptance
// of any not-yet-committed request, at both the primary and backups
// (SPEC_FULL.md supplemented feature 3): handleRequest arms it on every
// replica, and handlePrePrepare arms it again for a backup that first
// learns of the request from the primary.
func (r *Replica) armViewTimer() {
	if r.pendingRequest {
		return
	}
	r.pendingRequest = true
	r.viewTimer = time.AfterFunc(r.viewTimeout, func() {
		select {
		case r.viewFired <- struct{}{}:
		default:
		}
	})
}

func (r *Replica) disarmViewTimerIfSettled() {
	if !r.pendingRequest {
		return
	}
	for _, s := range r.slots {
		if s.Key.View == r.view && s.State != SlotCommitted && s.State != SlotReplied && s.State != SlotGCd {
			return
		}
	}
	r.pendingRequest = false
	if r.viewTimer != nil {
		r.viewTimer.Stop()
	}
}

func (r *Replica) onViewTimeout() {
	if r.metrics != nil {
		r.metrics.RecordViewChange(r.view + 1)
	}
	r.beginViewChange()
}
