package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	req := &Request{
		Op:       []byte("x"),
		T:        1000,
		ClientID: 7,
		HasKnown: true,
		KnownState: VersionVectorEntry{
			ReplicaID: 2,
			View:      1,
			Seq:       5,
			Digest:    HashBytes([]byte("abc")),
			Signature: []byte("sig"),
		},
	}

	encoded := Encode(req, func(b []byte) []byte { return []byte("envelope-sig") })
	msg, sig, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte("envelope-sig"), sig)

	got, ok := msg.(*Request)
	require.True(t, ok)
	assert.Equal(t, req.Op, got.Op)
	assert.Equal(t, req.T, got.T)
	assert.Equal(t, req.ClientID, got.ClientID)
	assert.True(t, got.HasKnown)
	assert.True(t, req.KnownState.Equal(got.KnownState))
}

func TestPrePrepareNullRoundTrip(t *testing.T) {
	pp := &PrePrepare{View: 3, Seq: 9, HasRequest: false}
	encoded := Encode(pp, nil)
	msg, sig, err := Decode(encoded)
	require.NoError(t, err)
	assert.Empty(t, sig)
	got := msg.(*PrePrepare)
	assert.False(t, got.HasRequest)
	assert.Equal(t, uint64(3), got.View)
	assert.Equal(t, uint64(9), got.Seq)
}

func TestCommitRoundTrip(t *testing.T) {
	c := &Commit{View: 1, Seq: 2, HCD: HashBytes([]byte("h")), ReplicaID: 4}
	encoded := Encode(c, nil)
	msg, _, err := Decode(encoded)
	require.NoError(t, err)
	got := msg.(*Commit)
	assert.Equal(t, c.HCD, got.HCD)
}

func TestReplyMatches(t *testing.T) {
	entryA := VersionVectorEntry{ReplicaID: 0, View: 1, Seq: 1, Digest: HashBytes([]byte("x"))}
	entryB := entryA
	entryB.ReplicaID = 1

	r1 := &Reply{ClientID: 5, T: 42, Result: []byte("ok"), Entry: entryA}
	r2 := &Reply{ClientID: 5, T: 42, Result: []byte("ok"), Entry: entryB}
	r3 := &Reply{ClientID: 5, T: 42, Result: []byte("different"), Entry: entryB}

	assert.True(t, r1.Matches(r2))
	assert.False(t, r1.Matches(r3))
	assert.False(t, r1.Matches(r1)) // same replica id never "matches" itself
}

func TestViewChangeRoundTripWithCerts(t *testing.T) {
	vc := &ViewChange{
		NewViewNum: 2,
		ReplicaID:  1,
		LastCommitted: VersionVectorEntry{
			ReplicaID: 1, View: 1, Seq: 4, Digest: HashBytes([]byte("d")),
		},
		P: []PreparedCert{
			{
				PrePrepare: PrePrepare{View: 1, Seq: 5, Digest: HashBytes([]byte("r")), HasRequest: true, Request: Request{Op: []byte("y"), ClientID: 3, T: 1}},
				Prepares: []Prepare{
					{View: 1, Seq: 5, Digest: HashBytes([]byte("r")), ReplicaID: 0},
					{View: 1, Seq: 5, Digest: HashBytes([]byte("r")), ReplicaID: 2},
				},
			},
		},
	}
	encoded := Encode(vc, nil)
	msg, _, err := Decode(encoded)
	require.NoError(t, err)
	got := msg.(*ViewChange)
	require.Len(t, got.P, 1)
	assert.Len(t, got.P[0].Prepares, 2)
	assert.True(t, got.P[0].PrePrepare.HasRequest)
	assert.Equal(t, []byte("y"), got.P[0].PrePrepare.Request.Op)
}

func TestNewViewRoundTrip(t *testing.T) {
	nv := &NewView{
		NewViewNum: 3,
		V: []ViewChange{
			{NewViewNum: 3, ReplicaID: 0, LastCommitted: VersionVectorEntry{ReplicaID: 0, View: 2, Seq: 1}},
		},
		O: []PrePrepare{
			{View: 3, Seq: 2, Digest: HashBytes([]byte("z")), HasRequest: true, Request: Request{Op: []byte("z"), ClientID: 1, T: 2}},
			{View: 3, Seq: 3}, // null pre-prepare
		},
	}
	encoded := Encode(nv, nil)
	msg, _, err := Decode(encoded)
	require.NoError(t, err)
	got := msg.(*NewView)
	require.Len(t, got.O, 2)
	assert.True(t, got.O[0].HasRequest)
	assert.False(t, got.O[1].HasRequest)
}

func TestCheckpointRoundTrip(t *testing.T) {
	cp := &Checkpoint{
		ReplicaID: 1,
		Seq:       100,
		Digest:    HashBytes([]byte("vv")),
		RCache: []ReplyCacheEntry{
			{ClientID: 9, Reply: Reply{ClientID: 9, T: 1, Result: []byte("r"), Entry: VersionVectorEntry{ReplicaID: 1, View: 0, Seq: 100}}},
		},
		VV: []PrincipalEntries{
			{PrincipalID: 1, Entries: []VersionVectorEntry{{ReplicaID: 1, View: 0, Seq: 100}}},
		},
		E: []VersionVectorEntry{{ReplicaID: 3, View: 0, Seq: 50}},
	}
	encoded := Encode(cp, nil)
	msg, _, err := Decode(encoded)
	require.NoError(t, err)
	got := msg.(*Checkpoint)
	assert.Equal(t, cp.Seq, got.Seq)
	assert.Len(t, got.RCache, 1)
	assert.Len(t, got.VV, 1)
	assert.Len(t, got.E, 1)
}

func TestOperationsDictRoundTrip(t *testing.T) {
	od := &OperationsDict{
		Entries: []OpsDictEntry{
			{Seq: 5, Commits: []Commit{{View: 1, Seq: 5, HCD: HashBytes([]byte("a")), ReplicaID: 0}}},
		},
	}
	encoded := Encode(od, nil)
	msg, _, err := Decode(encoded)
	require.NoError(t, err)
	got := msg.(*OperationsDict)
	require.Len(t, got.Entries, 1)
	assert.Len(t, got.Entries[0].Commits, 1)
}

func TestDecodeTruncatedEnvelope(t *testing.T) {
	_, err := DecodeEnvelope([]byte{0, 0, 0})
	assert.Error(t, err)
}

func TestDecodeUnknownTag(t *testing.T) {
	env := Envelope{Tag: Tag(99), Payload: nil}
	_, _, err := Decode(env.Encode())
	assert.Error(t, err)
}
