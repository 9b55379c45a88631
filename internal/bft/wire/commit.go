package wire

// Commit carries (view, seq) and the sender's post-append HCD^seq — NOT
// the request digest. Two Commits for the same (view, seq) match iff
// their HCD digests match, which is what makes COMMITTED imply identical
// history, not merely identical request content (§4.E, invariant 1).
type Commit struct {
	View      uint64
	Seq       uint64
	HCD       Digest
	ReplicaID uint32
}

func (c *Commit) Tag() Tag { return TagCommit }

func (c *Commit) MarshalPayload() []byte {
	var buf []byte
	buf = appendUint64(buf, c.View)
	buf = appendUint64(buf, c.Seq)
	buf = appendDigest(buf, c.HCD)
	buf = appendUint32(buf, c.ReplicaID)
	return buf
}

func (c *Commit) UnmarshalPayload(b []byte) error {
	rd := newReader(b)
	var err error
	if c.View, err = rd.uint64(); err != nil {
		return err
	}
	if c.Seq, err = rd.uint64(); err != nil {
		return err
	}
	if c.HCD, err = rd.digest(); err != nil {
		return err
	}
	if c.ReplicaID, err = rd.uint32(); err != nil {
		return err
	}
	return nil
}
