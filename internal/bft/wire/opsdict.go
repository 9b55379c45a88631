package wire

// OpsDictEntry proves a single committed sequence: the quorum of matching
// Commit messages that justified its execution.
type OpsDictEntry struct {
	Seq     uint64
	Commits []Commit
}

// OperationsDict is the dominant replica's push to whichever peer it
// just told PRIMARY_NOT_DOMINANT: one entry per sequence that peer is
// missing, each proving the committed digest with a commit quorum.
// The peer could never assemble this itself — it lacks the quorum by
// definition — so the side holding the certificate serves it (§4.F
// dominance check, §7 NotDominantPrimary).
type OperationsDict struct {
	Entries []OpsDictEntry
}

func (o *OperationsDict) Tag() Tag { return TagOperationsDict }

func (o *OperationsDict) MarshalPayload() []byte {
	var buf []byte
	buf = appendUint32(buf, uint32(len(o.Entries)))
	for _, e := range o.Entries {
		buf = appendUint64(buf, e.Seq)
		buf = appendUint32(buf, uint32(len(e.Commits)))
		for _, c := range e.Commits {
			buf = appendBytes(buf, c.MarshalPayload())
		}
	}
	return buf
}

func (o *OperationsDict) UnmarshalPayload(b []byte) error {
	rd := newReader(b)
	n, err := rd.uint32()
	if err != nil {
		return err
	}
	o.Entries = make([]OpsDictEntry, n)
	for i := range o.Entries {
		if o.Entries[i].Seq, err = rd.uint64(); err != nil {
			return err
		}
		cn, err := rd.uint32()
		if err != nil {
			return err
		}
		o.Entries[i].Commits = make([]Commit, cn)
		for j := range o.Entries[i].Commits {
			cb, err := rd.bytes()
			if err != nil {
				return err
			}
			if err := o.Entries[i].Commits[j].UnmarshalPayload(cb); err != nil {
				return err
			}
		}
	}
	return nil
}
