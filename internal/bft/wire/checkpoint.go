package wire

// ReplyCacheEntry is one (client_id -> last reply) pair in a checkpoint's
// reply-cache snapshot.
type ReplyCacheEntry struct {
	ClientID uint32
	Reply    Reply
}

// PrincipalEntries is one principal's ordered entry list in a checkpoint's
// version-vector snapshot.
type PrincipalEntries struct {
	PrincipalID uint32
	Entries     []VersionVectorEntry
}

// Checkpoint marks a truncation-safe sequence number (§4.G). E carries
// signed entries for principals whose last-known entry is old enough
// (seq ≤ n-2I) that a far-behind peer can rejoin from the checkpoint
// instead of replaying full history.
type Checkpoint struct {
	ReplicaID uint32
	Seq       uint64
	Digest    Digest // digest_of(vv_snapshot), the value 2f+1 matching checkpoints must agree on
	RCache    []ReplyCacheEntry
	VV        []PrincipalEntries
	E         []VersionVectorEntry
}

func (c *Checkpoint) Tag() Tag { return TagCheckpoint }

func (c *Checkpoint) MarshalPayload() []byte {
	var buf []byte
	buf = appendUint32(buf, c.ReplicaID)
	buf = appendUint64(buf, c.Seq)
	buf = appendDigest(buf, c.Digest)
	buf = appendUint32(buf, uint32(len(c.RCache)))
	for _, e := range c.RCache {
		buf = appendUint32(buf, e.ClientID)
		buf = appendBytes(buf, e.Reply.MarshalPayload())
	}
	buf = appendUint32(buf, uint32(len(c.VV)))
	for _, p := range c.VV {
		buf = appendUint32(buf, p.PrincipalID)
		buf = appendUint32(buf, uint32(len(p.Entries)))
		for _, e := range p.Entries {
			buf = appendEntry(buf, e)
		}
	}
	buf = appendUint32(buf, uint32(len(c.E)))
	for _, e := range c.E {
		buf = appendEntry(buf, e)
	}
	return buf
}

func (c *Checkpoint) UnmarshalPayload(b []byte) error {
	rd := newReader(b)
	var err error
	if c.ReplicaID, err = rd.uint32(); err != nil {
		return err
	}
	if c.Seq, err = rd.uint64(); err != nil {
		return err
	}
	if c.Digest, err = rd.digest(); err != nil {
		return err
	}
	rn, err := rd.uint32()
	if err != nil {
		return err
	}
	c.RCache = make([]ReplyCacheEntry, rn)
	for i := range c.RCache {
		if c.RCache[i].ClientID, err = rd.uint32(); err != nil {
			return err
		}
		rb, err := rd.bytes()
		if err != nil {
			return err
		}
		if err := c.RCache[i].Reply.UnmarshalPayload(rb); err != nil {
			return err
		}
	}
	vn, err := rd.uint32()
	if err != nil {
		return err
	}
	c.VV = make([]PrincipalEntries, vn)
	for i := range c.VV {
		if c.VV[i].PrincipalID, err = rd.uint32(); err != nil {
			return err
		}
		en, err := rd.uint32()
		if err != nil {
			return err
		}
		c.VV[i].Entries = make([]VersionVectorEntry, en)
		for j := range c.VV[i].Entries {
			if c.VV[i].Entries[j], err = rd.entry(); err != nil {
				return err
			}
		}
	}
	en2, err := rd.uint32()
	if err != nil {
		return err
	}
	c.E = make([]VersionVectorEntry, en2)
	for i := range c.E {
		if c.E[i], err = rd.entry(); err != nil {
			return err
		}
	}
	return nil
}
