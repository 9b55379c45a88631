package wire

// PrePrepare is the primary's proposal binding (view, seq) to a request.
// A null pre-prepare (issued by a new primary for a sequence no prepared
// certificate covers) carries HasRequest=false and a zero Digest.
type PrePrepare struct {
	View       uint64
	Seq        uint64
	Digest     Digest
	HasRequest bool
	Request    Request
}

func (p *PrePrepare) Tag() Tag { return TagPrePrepare }

func (p *PrePrepare) MarshalPayload() []byte {
	var buf []byte
	buf = appendUint64(buf, p.View)
	buf = appendUint64(buf, p.Seq)
	buf = appendDigest(buf, p.Digest)
	buf = appendBool(buf, p.HasRequest)
	if p.HasRequest {
		buf = appendBytes(buf, p.Request.MarshalPayload())
	}
	return buf
}

func (p *PrePrepare) UnmarshalPayload(b []byte) error {
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
	if p.HasRequest, err = rd.boolean(); err != nil {
		return err
	}
	if p.HasRequest {
		reqBytes, err := rd.bytes()
		if err != nil {
			return err
		}
		if err := p.Request.UnmarshalPayload(reqBytes); err != nil {
			return err
		}
	}
	return nil
}
