package bft

import "github.com/ruvnet/alienator/internal/bft/wire"

// SlotState is the per-(view,seq) state machine of §4.E:
// EMPTY → PRE_PREPARED → PREPARED → COMMITTED → REPLIED → GC'd.
type SlotState int

const (
	SlotEmpty SlotState = iota
	SlotPrePrepared
	SlotPrepared
	SlotCommitted
	SlotReplied
	SlotGCd
)

func (s SlotState) String() string {
	switch s {
	case SlotEmpty:
		return "EMPTY"
	case SlotPrePrepared:
		return "PRE_PREPARED"
	case SlotPrepared:
		return "PREPARED"
	case SlotCommitted:
		return "COMMITTED"
	case SlotReplied:
		return "REPLIED"
	case SlotGCd:
		return "GC'D"
	default:
		return "UNKNOWN"
	}
}

// slotKey identifies a slot by the (view, seq) pair it was opened
// under. A sequence number can have a live slot in more than one view
// across its lifetime (a view change may re-propose it); the replica
// only ever acts on the slot for its current view.
type slotKey struct {
	View uint64
	Seq  uint64
}

// Slot accumulates pre-prepare/prepare/commit evidence for one
// (view, seq), per §4.E. A slot never regresses state once advanced.
type Slot struct {
	Key      slotKey
	State    SlotState
	PrePared *wire.PrePrepare
	Prepares map[uint32]wire.Prepare // by sending replica id
	Commits  map[uint32]wire.Commit  // by sending replica id
	HCD      wire.Digest             // this replica's HCD^seq, set on entering PREPARED
	Replied  bool
}

// requestKey identifies a client request independent of which replica
// it arrived from, for ordering dedup (§4.E).
type requestKey struct {
	ClientID uint32
	T        int64
}

func newSlot(key slotKey) *Slot {
	return &Slot{
		Key:      key,
		State:    SlotEmpty,
		Prepares: map[uint32]wire.Prepare{},
		Commits:  map[uint32]wire.Commit{},
	}
}

// matchingPrepares counts prepares agreeing with digest, skipping any
// replica id present in distrusted (§7: a replica caught equivocating
// within a view is downgraded and no longer counts toward quorum).
// distrusted may be nil.
func (s *Slot) matchingPrepares(digest wire.Digest, distrusted map[uint32]bool) int {
	n := 0
	for id, p := range s.Prepares {
		if distrusted[id] {
			continue
		}
		if p.Digest == digest {
			n++
		}
	}
	return n
}

func (s *Slot) matchingCommits(hcd wire.Digest, distrusted map[uint32]bool) int {
	n := 0
	for id, c := range s.Commits {
		if distrusted[id] {
			continue
		}
		if c.HCD == hcd {
			n++
		}
	}
	return n
}
