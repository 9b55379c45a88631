package wire

// NewView is broadcast by the prospective primary of new_view once it
// holds 2f+1 non-conflicting ViewChange messages (V), carrying the
// re-issued pre-prepares (O) for every sequence in (min_s, max_s].
// Per the paper (and the Open Question resolved in SPEC_FULL.md), O
// contains PrePrepare entries only — never a mix of kinds.
type NewView struct {
	NewViewNum uint64
	V          []ViewChange
	O          []PrePrepare
}

func (n *NewView) Tag() Tag { return TagNewView }

func (n *NewView) MarshalPayload() []byte {
	var buf []byte
	buf = appendUint64(buf, n.NewViewNum)
	buf = appendUint32(buf, uint32(len(n.V)))
	for _, vc := range n.V {
		buf = appendBytes(buf, vc.MarshalPayload())
	}
	buf = appendUint32(buf, uint32(len(n.O)))
	for _, pp := range n.O {
		buf = appendBytes(buf, pp.MarshalPayload())
	}
	return buf
}

func (n *NewView) UnmarshalPayload(b []byte) error {
	rd := newReader(b)
	var err error
	if n.NewViewNum, err = rd.uint64(); err != nil {
		return err
	}
	vn, err := rd.uint32()
	if err != nil {
		return err
	}
	n.V = make([]ViewChange, vn)
	for i := range n.V {
		vb, err := rd.bytes()
		if err != nil {
			return err
		}
		if err := n.V[i].UnmarshalPayload(vb); err != nil {
			return err
		}
	}
	on, err := rd.uint32()
	if err != nil {
		return err
	}
	n.O = make([]PrePrepare, on)
	for i := range n.O {
		pb, err := rd.bytes()
		if err != nil {
			return err
		}
		if err := n.O[i].UnmarshalPayload(pb); err != nil {
			return err
		}
	}
	return nil
}
