package bft

import (
	"sort"

	"github.com/ruvnet/alienator/internal/bft/wire"
)

// VersionVector maps each principal (replica or client id) to its
// non-decreasing-in-(view,seq) sequence of authenticated entries
// (component B). A replica's own entry is its last committed state; a
// client's entries accumulate one per replica per matched reply.
type VersionVector struct {
	entries map[uint32][]wire.VersionVectorEntry
}

// NewVersionVector returns an empty vector.
func NewVersionVector() *VersionVector {
	return &VersionVector{entries: map[uint32][]wire.VersionVectorEntry{}}
}

// Update appends entry to principal's list, maintaining the
// non-decreasing-(view,seq) invariant: an entry older than (or equal to)
// the current latest is ignored rather than appended out of order.
func (v *VersionVector) Update(principal uint32, entry wire.VersionVectorEntry) {
	list := v.entries[principal]
	if len(list) > 0 {
		last := list[len(list)-1]
		if !last.Less(entry) {
			return
		}
	}
	v.entries[principal] = append(list, entry)
}

// EntriesOf returns the full entry history for a principal.
func (v *VersionVector) EntriesOf(principal uint32) []wire.VersionVectorEntry {
	return v.entries[principal]
}

// LatestOf returns the most recent entry recorded for principal.
func (v *VersionVector) LatestOf(principal uint32) (wire.VersionVectorEntry, bool) {
	list := v.entries[principal]
	if len(list) == 0 {
		return wire.VersionVectorEntry{}, false
	}
	return list[len(list)-1], true
}

// IsEmpty reports whether the vector holds no principals at all.
func (v *VersionVector) IsEmpty() bool {
	return len(v.entries) == 0
}

// Principals returns the set of principal ids with at least one entry,
// in ascending order (for deterministic iteration in checkpoints/tests).
func (v *VersionVector) Principals() []uint32 {
	ids := make([]uint32, 0, len(v.entries))
	for id := range v.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CurrentSystemState is the fork-detection primitive (§4.B): the entry
// that appears with identical (seq, digest) in at least 2f+1 principals'
// latest entries, breaking ties by lowest replica_id. Returns false if no
// such quorum exists ("undefined").
func (v *VersionVector) CurrentSystemState(f int) (wire.VersionVectorEntry, bool) {
	type key struct {
		seq    uint64
		digest wire.Digest
	}
	groups := map[key][]wire.VersionVectorEntry{}
	ids := v.Principals()
	for _, id := range ids {
		latest, ok := v.LatestOf(id)
		if !ok {
			continue
		}
		k := key{seq: latest.Seq, digest: latest.Digest}
		groups[k] = append(groups[k], latest)
	}

	quorum := 2*f + 1
	var best wire.VersionVectorEntry
	found := false
	// iterate in a deterministic order (sorted keys by seq then digest)
	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].seq != keys[j].seq {
			return keys[i].seq < keys[j].seq
		}
		return string(keys[i].digest[:]) < string(keys[j].digest[:])
	})
	for _, k := range keys {
		entries := groups[k]
		if len(entries) < quorum {
			continue
		}
		candidate := entries[0]
		for _, e := range entries[1:] {
			if e.ReplicaID < candidate.ReplicaID {
				candidate = e
			}
		}
		if !found || candidate.Seq > best.Seq {
			best = candidate
			found = true
		}
	}
	return best, found
}
