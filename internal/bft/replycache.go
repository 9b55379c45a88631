package bft

import "github.com/ruvnet/alienator/internal/bft/wire"

// ReplyCache provides at-most-once delivery per client (component C):
// the last Reply sent to each client, consulted on REQUEST to recognize
// re-sends (§4.C).
type ReplyCache struct {
	cache map[uint32]wire.Reply
}

// NewReplyCache returns an empty cache.
func NewReplyCache() *ReplyCache {
	return &ReplyCache{cache: map[uint32]wire.Reply{}}
}

// Get returns the cached reply for a client, if any.
func (c *ReplyCache) Get(clientID uint32) (wire.Reply, bool) {
	r, ok := c.cache[clientID]
	return r, ok
}

// Put stores reply as the latest for clientID.
func (c *ReplyCache) Put(clientID uint32, reply wire.Reply) {
	c.cache[clientID] = reply
}

// DropBefore removes cached replies whose committed seq is older than
// seq — used by checkpoint garbage collection.
func (c *ReplyCache) DropBefore(seq uint64) {
	for id, r := range c.cache {
		if r.Entry.Seq < seq {
			delete(c.cache, id)
		}
	}
}

// Clear empties the cache, e.g. before installing a checkpoint's
// rcache_snapshot wholesale.
func (c *ReplyCache) Clear() {
	c.cache = map[uint32]wire.Reply{}
}

// Snapshot returns every cached entry as a wire-ready slice, in no
// particular order (the caller sorts if determinism is required).
func (c *ReplyCache) Snapshot() []wire.ReplyCacheEntry {
	out := make([]wire.ReplyCacheEntry, 0, len(c.cache))
	for id, r := range c.cache {
		out = append(out, wire.ReplyCacheEntry{ClientID: id, Reply: r})
	}
	return out
}

// Restore replaces the cache contents with a checkpoint's snapshot.
func (c *ReplyCache) Restore(entries []wire.ReplyCacheEntry) {
	c.Clear()
	for _, e := range entries {
		c.cache[e.ClientID] = e.Reply
	}
}

// Decision is what a replica should do with an inbound REQUEST, per the
// dedup rule in §4.C / §4.E.
type Decision int

const (
	// DecisionProceed: no cached reply, or the request's timestamp is
	// strictly newer than the cached one — proceed to ordering.
	DecisionProceed Decision = iota
	// DecisionResend: request timestamp equals the cached one — resend
	// the cached reply instead of re-executing.
	DecisionResend
	// DecisionDrop: request timestamp is strictly older than cached —
	// drop silently.
	DecisionDrop
)

// Classify implements the ReplyCache dedup rule for an inbound request.
func (c *ReplyCache) Classify(clientID uint32, t int64) (Decision, wire.Reply) {
	cached, ok := c.Get(clientID)
	if !ok {
		return DecisionProceed, wire.Reply{}
	}
	switch {
	case t == cached.T:
		return DecisionResend, cached
	case t < cached.T:
		return DecisionDrop, wire.Reply{}
	default:
		return DecisionProceed, wire.Reply{}
	}
}
