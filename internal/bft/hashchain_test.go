package bft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruvnet/alienator/internal/bft/wire"
)

func req(op string, clientID uint32, t int64) wire.Request {
	return wire.Request{Op: []byte(op), ClientID: clientID, T: t}
}

func TestHashChainAppendContiguous(t *testing.T) {
	c := NewHashChain()
	_, err := c.Append(req("a", 1, 1), 0)
	require.NoError(t, err)
	_, err = c.Append(req("b", 1, 2), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(1), last.Seq)
}

func TestHashChainSequenceGap(t *testing.T) {
	c := NewHashChain()
	_, err := c.Append(req("a", 1, 1), 1) // must start at 0
	require.Error(t, err)
	var gapErr *ErrSequenceGap
	require.ErrorAs(t, err, &gapErr)
	assert.Equal(t, uint64(0), gapErr.Want)
}

func TestHashChainHashIncludesSequenceNumber(t *testing.T) {
	r := req("x", 1, 1)
	h0 := computeBlockHash(0, r, wire.Digest{})
	h1 := computeBlockHash(1, r, wire.Digest{})
	assert.NotEqual(t, h0, h1, "reordering n must change the digest")
}

func TestHashChainVerify(t *testing.T) {
	c := NewHashChain()
	_, _ = c.Append(req("a", 1, 1), 0)
	_, _ = c.Append(req("b", 1, 2), 1)
	_, ok := c.Verify()
	assert.True(t, ok)

	// tamper with a block directly to simulate corruption
	c.blocks[0].Hash = wire.Digest{0xFF}
	badSeq, ok := c.Verify()
	assert.False(t, ok)
	assert.Equal(t, uint64(0), badSeq)
}

func TestHashChainTruncateBelow(t *testing.T) {
	c := NewHashChain()
	for i := uint64(0); i < 5; i++ {
		_, err := c.Append(req("op", 1, int64(i)), i)
		require.NoError(t, err)
	}
	c.TruncateBelow(3)
	assert.Equal(t, 2, c.Len()) // blocks 3,4 remain
	d, ok := c.DigestAt(3)
	assert.True(t, ok)
	assert.NotEqual(t, wire.Digest{}, d)
	_, ok = c.DigestAt(1)
	assert.False(t, ok)
}

func TestHashChainRestoreFromAndAppend(t *testing.T) {
	c := NewHashChain()
	digest := wire.HashBytes([]byte("checkpoint-digest"))
	c.RestoreFrom(99, digest)

	seq, ok := c.HighestSeq()
	require.True(t, ok)
	assert.Equal(t, uint64(99), seq)

	_, err := c.Append(req("next", 1, 1), 100)
	require.NoError(t, err)
	last, _ := c.Last()
	assert.Equal(t, digest, last.Prev)
}
