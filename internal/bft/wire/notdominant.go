package wire

// PrimaryNotDominant is sent by a replica that receives a VIEW_CHANGE
// whose LastCommitted is strictly behind its own: it asserts dominance
// rather than rolling back, and follows up with an OperationsDict
// carrying the range the sender is missing (§4.F, §7 NotDominantPrimary).
type PrimaryNotDominant struct {
	FromReplicaID uint32
	ToReplicaID   uint32
	LastCommitted VersionVectorEntry
}

func (p *PrimaryNotDominant) Tag() Tag { return TagPrimaryNotDominant }

func (p *PrimaryNotDominant) MarshalPayload() []byte {
	var buf []byte
	buf = appendUint32(buf, p.FromReplicaID)
	buf = appendUint32(buf, p.ToReplicaID)
	buf = appendEntry(buf, p.LastCommitted)
	return buf
}

func (p *PrimaryNotDominant) UnmarshalPayload(b []byte) error {
	rd := newReader(b)
	var err error
	if p.FromReplicaID, err = rd.uint32(); err != nil {
		return err
	}
	if p.ToReplicaID, err = rd.uint32(); err != nil {
		return err
	}
	if p.LastCommitted, err = rd.entry(); err != nil {
		return err
	}
	return nil
}
