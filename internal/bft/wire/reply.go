package wire

// Reply is sent by a replica to a client once a request COMMITs and
// executes. Entry is the replying replica's own VersionVectorEntry at
// that seq, signed, and is what the client accumulates to compute its own
// current_system_state.
type Reply struct {
	ClientID uint32
	T        int64
	Result   []byte
	Entry    VersionVectorEntry

	// ForkSuspected marks a StaleClientKnownState response: no commit
	// occurred, the client is asked to re-synchronize before retrying.
	ForkSuspected bool
}

func (r *Reply) Tag() Tag { return TagReply }

func (r *Reply) MarshalPayload() []byte {
	var buf []byte
	buf = appendUint32(buf, r.ClientID)
	buf = appendUint64(buf, uint64(r.T))
	buf = appendBytes(buf, r.Result)
	buf = appendEntry(buf, r.Entry)
	buf = appendBool(buf, r.ForkSuspected)
	return buf
}

func (r *Reply) UnmarshalPayload(b []byte) error {
	rd := newReader(b)
	var err error
	if r.ClientID, err = rd.uint32(); err != nil {
		return err
	}
	t, err := rd.uint64()
	if err != nil {
		return err
	}
	r.T = int64(t)
	if r.Result, err = rd.bytes(); err != nil {
		return err
	}
	if r.Entry, err = rd.entry(); err != nil {
		return err
	}
	if r.ForkSuspected, err = rd.boolean(); err != nil {
		return err
	}
	return nil
}

// Matches reports whether r and o are matching replies per §4.H: equal in
// everything but the replying replica's identity.
func (r *Reply) Matches(o *Reply) bool {
	return r.T == o.T &&
		r.ClientID == o.ClientID &&
		string(r.Result) == string(o.Result) &&
		r.Entry.View == o.Entry.View &&
		r.Entry.Seq == o.Entry.Seq &&
		r.Entry.Digest == o.Entry.Digest &&
		r.Entry.ReplicaID != o.Entry.ReplicaID
}
