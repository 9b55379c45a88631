package wire

// Prepare carries (view, seq, digest-of-request), signed by the backup
// emitting it.
type Prepare struct {
	View      uint64
	Seq       uint64
	Digest    Digest
	ReplicaID uint32
}

func (p *Prepare) Tag() Tag { return TagPrepare }

func (p *Prepare) MarshalPayload() []byte {
	var buf []byte
	buf = appendUint64(buf, p.View)
	buf = appendUint64(buf, p.Seq)
	buf = appendDigest(buf, p.Digest)
	buf = appendUint32(buf, p.ReplicaID)
	return buf
}

func (p *Prepare) UnmarshalPayload(b []byte) error {
	rd := newReader(b)
	var err error
	if p.View, err = rd.uint64(); err != nil {
		return err
	}
	if p.Seq, err = rd.uint64(); err != nil {
		return err
	}
	if p.Digest, err = rd.digest(); err != nil {
		return err
	}
	if p.ReplicaID, err = rd.uint32(); err != nil {
		return err
	}
	return nil
}
