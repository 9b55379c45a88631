package wire

// PreparedCert is one P_m: a pre-prepare plus 2f matching prepares proving
// sequence m was PREPARED in the replica's prior view.
type PreparedCert struct {
	PrePrepare PrePrepare
	Prepares   []Prepare
}

func marshalCert(buf []byte, c PreparedCert) []byte {
	buf = appendBytes(buf, c.PrePrepare.MarshalPayload())
	buf = appendUint32(buf, uint32(len(c.Prepares)))
	for _, p := range c.Prepares {
		buf = appendBytes(buf, p.MarshalPayload())
	}
	return buf
}

func unmarshalCert(rd *reader) (PreparedCert, error) {
	var c PreparedCert
	ppBytes, err := rd.bytes()
	if err != nil {
		return c, err
	}
	if err := c.PrePrepare.UnmarshalPayload(ppBytes); err != nil {
		return c, err
	}
	n, err := rd.uint32()
	if err != nil {
		return c, err
	}
	c.Prepares = make([]Prepare, n)
	for i := range c.Prepares {
		pb, err := rd.bytes()
		if err != nil {
			return c, err
		}
		if err := c.Prepares[i].UnmarshalPayload(pb); err != nil {
			return c, err
		}
	}
	return c, nil
}

// ViewChange is broadcast by a replica that has timed out waiting on the
// current primary, proposing new_view = view+1, or a later view after
// repeated new-view timeouts (§4.F).
type ViewChange struct {
	NewViewNum    uint64
	ReplicaID     uint32
	LastCommitted VersionVectorEntry
	P             []PreparedCert
}

func (v *ViewChange) Tag() Tag { return TagViewChange }

func (v *ViewChange) MarshalPayload() []byte {
	var buf []byte
	buf = appendUint64(buf, v.NewViewNum)
	buf = appendUint32(buf, v.ReplicaID)
	buf = appendEntry(buf, v.LastCommitted)
	buf = appendUint32(buf, uint32(len(v.P)))
	for _, c := range v.P {
		buf = marshalCert(buf, c)
	}
	return buf
}

func (v *ViewChange) UnmarshalPayload(b []byte) error {
	rd := newReader(b)
	var err error
	if v.NewViewNum, err = rd.uint64(); err != nil {
		return err
	}
	if v.ReplicaID, err = rd.uint32(); err != nil {
		return err
	}
	if v.LastCommitted, err = rd.entry(); err != nil {
		return err
	}
	n, err := rd.uint32()
	if err != nil {
		return err
	}
	v.P = make([]PreparedCert, n)
	for i := range v.P {
		if v.P[i], err = unmarshalCert(rd); err != nil {
			return err
		}
	}
	return nil
}
