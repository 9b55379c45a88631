package bft

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ruvnet/alienator/internal/bft/keystore"
	"github.com/ruvnet/alienator/internal/bft/wire"
	"github.com/ruvnet/alienator/pkg/metrics"
)

// Outcome is the terminal state of a client request (§4.H).
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeComplete
	OutcomeTentative
	OutcomeForkSuspected
)

// pendingRequest tracks one outstanding request and the replies
// received toward it so far.
type pendingRequest struct {
	req       wire.Request
	replies   map[uint32]wire.Reply // by replying replica id
	outcome   Outcome
	result    []byte
	completed chan struct{}
}

// Client is the quorum-detection engine (component H): it multicasts
// requests, counts matching replies, and updates its VersionVector so
// it can itself check current_system_state for fork consistency.
type Client struct {
	mu sync.Mutex

	id        uint32
	f         int
	replicas  []uint32
	vv        *VersionVector
	pending   map[int64]*pendingRequest // keyed by request timestamp
	lastT     int64

	transport Transport
	keys      *keystore.KeyStore
	metrics   *metrics.Metrics
	log       *zap.Logger

	resendTimeout time.Duration
}

// ClientOpts configures a new Client.
type ClientOpts struct {
	ID            uint32
	F             int
	Replicas      []uint32
	Transport     Transport
	Keys          *keystore.KeyStore
	Metrics       *metrics.Metrics
	Log           *zap.Logger
	ResendTimeout time.Duration
}

// NewClient constructs a Client with an empty version vector.
func NewClient(o ClientOpts) *Client {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.ResendTimeout == 0 {
		o.ResendTimeout = 2 * time.Second
	}
	return &Client{
		id:            o.ID,
		f:             o.F,
		replicas:      o.Replicas,
		vv:            NewVersionVector(),
		pending:       map[int64]*pendingRequest{},
		transport:     o.Transport,
		keys:          o.Keys,
		metrics:       o.Metrics,
		log:           o.Log.With(zap.Uint32("client_id", o.ID)),
		resendTimeout: o.ResendTimeout,
	}
}

// MakeRequest samples a strictly increasing timestamp, builds a
// Request carrying known_state = current_system_state(f), and
// multicasts it to every replica (§4.H).
func (c *Client) MakeRequest(ctx context.Context, op []byte) (*pendingRequest, error) {
	c.mu.Lock()
	c.lastT++
	t := c.lastT
	req := wire.Request{Op: op, T: t, ClientID: c.id}
	if state, ok := c.vv.CurrentSystemState(c.f); ok {
		req.HasKnown = true
		req.KnownState = state
	}
	pr := &pendingRequest{req: req, replies: map[uint32]wire.Reply{}, completed: make(chan struct{})}
	c.pending[t] = pr
	c.mu.Unlock()

	c.multicast(req)

	ticker := time.NewTicker(c.resendTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-pr.completed:
			return pr, nil
		case <-ctx.Done():
			return pr, ctx.Err()
		case <-ticker.C:
			// §4.H: retry on timeout whether the outcome is tentative
			// (f+1 but not yet 2f+1 matching) or still nothing at all;
			// the timestamp is unchanged so replicas recognize the resend
			// via the reply cache instead of re-executing.
			c.mu.Lock()
			stillPending := pr.outcome == OutcomePending || pr.outcome == OutcomeTentative
			c.mu.Unlock()
			if stillPending {
				c.multicast(req)
			}
		}
	}
}

func (c *Client) multicast(req wire.Request) {
	env := wire.Encode(&req, c.keys.Sign)
	for _, rid := range c.replicas {
		c.transport.SendToReplica(rid, env)
	}
}

// Deliver is the Transport's entry point for inbound Reply envelopes.
func (c *Client) Deliver(raw []byte) {
	msg, sig, err := wire.Decode(raw)
	if err != nil {
		return
	}
	reply, ok := msg.(*wire.Reply)
	if !ok {
		return
	}
	if !c.keys.Verify(keystore.ReplicaPrincipal(reply.Entry.ReplicaID), reply.MarshalPayload(), sig) {
		return
	}
	c.handleReply(*reply)
}

// handleReply implements §4.H's matching-reply quorum logic.
func (c *Client) handleReply(reply wire.Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pr, ok := c.pending[reply.T]
	if !ok || (pr.outcome != OutcomePending && pr.outcome != OutcomeTentative) {
		return
	}
	if reply.ForkSuspected {
		pr.outcome = OutcomeForkSuspected
		close(pr.completed)
		delete(c.pending, reply.T)
		return
	}

	pr.replies[reply.Entry.ReplicaID] = reply

	matching := 0
	for _, other := range pr.replies {
		if sameReplyContent(reply, other) {
			matching++
		}
	}

	quorum := 2*c.f + 1
	if matching < quorum {
		if matching >= c.f+1 {
			pr.outcome = OutcomeTentative
		}
		return
	}

	pr.outcome = OutcomeComplete
	pr.result = reply.Result
	for _, other := range pr.replies {
		if sameReplyContent(reply, other) {
			c.vv.Update(other.Entry.ReplicaID, other.Entry)
		}
	}

	if state, ok := c.vv.CurrentSystemState(c.f); ok && state.Digest != reply.Entry.Digest {
		c.log.Warn("current_system_state diverges from matched reply digest — fork suspected",
			zap.Uint64("seq", reply.Entry.Seq))
		if c.metrics != nil {
			c.metrics.RecordForkDetected()
		}
		pr.outcome = OutcomeForkSuspected
	}

	close(pr.completed)
	delete(c.pending, reply.T)
}

// sameReplyContent reports whether a and b agree on everything a
// matching-reply quorum must agree on, regardless of whether they were
// signed by the same or different replicas (§4.H: a reply always
// "matches" itself when counting toward the quorum it started).
func sameReplyContent(a, b wire.Reply) bool {
	return a.T == b.T &&
		a.ClientID == b.ClientID &&
		string(a.Result) == string(b.Result) &&
		a.Entry.View == b.Entry.View &&
		a.Entry.Seq == b.Entry.Seq &&
		a.Entry.Digest == b.Entry.Digest
}

// Outcome returns the terminal outcome and result of a completed
// pendingRequest, for CLI exit-code mapping (§6).
func (pr *pendingRequest) Outcome() (Outcome, []byte) {
	return pr.outcome, pr.result
}
