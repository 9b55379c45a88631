package bft

import (
	"encoding/binary"
	"fmt"

	"github.com/ruvnet/alienator/internal/bft/wire"
)

// HashChainBlock is one append-only block of authenticated history:
// h = H(n ‖ encode(data) ‖ prev). The sequence number is folded into the
// preimage (§9 design notes) to foreclose reordering attacks the
// original data‖prev-only hash admitted.
type HashChainBlock struct {
	Request  wire.Request
	Seq      uint64
	Prev     wire.Digest
	Hash     wire.Digest
	Accepted bool // true once this block has actually been appended (vs. a placeholder)
}

func computeBlockHash(seq uint64, data wire.Request, prev wire.Digest) wire.Digest {
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	return wire.HashBytes(seqBuf[:], data.MarshalPayload(), prev[:])
}

// ErrSequenceGap is returned when Append is called out of order.
type ErrSequenceGap struct {
	Want, Got uint64
}

func (e *ErrSequenceGap) Error() string {
	return fmt.Sprintf("hashchain: sequence gap: want %d, got %d", e.Want, e.Got)
}

// HashChain is the sole authenticated history object (component A):
// an ordered, contiguous sequence of blocks. Created empty at replica
// boot; appended to only on the COMMIT-reached (PREPARED, in this
// implementation — see replica.go) path; truncated only by the
// checkpoint engine.
type HashChain struct {
	blocks []HashChainBlock
	base   uint64 // sequence number of blocks[0], after truncation
}

// NewHashChain returns an empty chain.
func NewHashChain() *HashChain {
	return &HashChain{}
}

// Append adds a block at seq, requiring seq == base+len(chain).
func (c *HashChain) Append(data wire.Request, seq uint64) (HashChainBlock, error) {
	want := c.base + uint64(len(c.blocks))
	if seq != want {
		return HashChainBlock{}, &ErrSequenceGap{Want: want, Got: seq}
	}
	prev := wire.Digest{}
	if len(c.blocks) > 0 {
		prev = c.blocks[len(c.blocks)-1].Hash
	} else if c.base > 0 {
		// truncated chain: we no longer hold block 0, but we do hold the
		// digest at base-1 implicitly via the checkpoint that truncated us.
		// Appends immediately after a checkpoint restore must go through
		// RestoreFrom instead of Append.
		return HashChainBlock{}, fmt.Errorf("hashchain: append after truncation requires RestoreFrom")
	}
	block := HashChainBlock{
		Request:  data,
		Seq:      seq,
		Prev:     prev,
		Hash:     computeBlockHash(seq, data, prev),
		Accepted: true,
	}
	c.blocks = append(c.blocks, block)
	return block, nil
}

// Last returns the most recently appended block, if any.
func (c *HashChain) Last() (HashChainBlock, bool) {
	if len(c.blocks) == 0 {
		return HashChainBlock{}, false
	}
	return c.blocks[len(c.blocks)-1], true
}

// Len returns the number of blocks currently held (post-truncation count,
// not the highest sequence number).
func (c *HashChain) Len() int {
	return len(c.blocks)
}

// HighestSeq returns the highest appended sequence number, or false if
// the chain (post-truncation) holds nothing yet.
func (c *HashChain) HighestSeq() (uint64, bool) {
	if len(c.blocks) == 0 {
		if c.base == 0 {
			return 0, false
		}
		return c.base - 1, true
	}
	return c.blocks[len(c.blocks)-1].Seq, true
}

// DigestAt returns HCD^seq, the digest of the block at the given
// sequence number.
func (c *HashChain) DigestAt(seq uint64) (wire.Digest, bool) {
	if seq < c.base {
		return wire.Digest{}, false
	}
	idx := seq - c.base
	if idx >= uint64(len(c.blocks)) {
		return wire.Digest{}, false
	}
	return c.blocks[idx].Hash, true
}

// TruncateBelow drops every block with seq < below, as directed by the
// checkpoint engine once a checkpoint at `below` becomes stable.
func (c *HashChain) TruncateBelow(below uint64) {
	if below <= c.base {
		return
	}
	idx := below - c.base
	if idx >= uint64(len(c.blocks)) {
		c.base = below
		c.blocks = nil
		return
	}
	c.blocks = append([]HashChainBlock(nil), c.blocks[idx:]...)
	c.base = below
}

// RestoreFrom resets the chain to start fresh at seq+1 with digestAtSeq as
// the synthetic "prev" for the next append — used when a replica catches
// up from a stable checkpoint it did not derive locally.
func (c *HashChain) RestoreFrom(seq uint64, digestAtSeq wire.Digest) {
	c.base = seq
	c.blocks = []HashChainBlock{{Seq: seq, Hash: digestAtSeq, Accepted: true}}
}

// Verify checks the chain's internal integrity: block[i].Hash must equal
// H(i ‖ encode(block[i].data) ‖ block[i-1].Hash) for every held block
// (invariant 2, §8). Returns the first violating sequence number if any.
func (c *HashChain) Verify() (seq uint64, ok bool) {
	for i, b := range c.blocks {
		if i > 0 && b.Prev != c.blocks[i-1].Hash {
			return b.Seq, false
		}
		if want := computeBlockHash(b.Seq, b.Request, b.Prev); want != b.Hash {
			return b.Seq, false
		}
	}
	return 0, true
}
