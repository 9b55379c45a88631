package wire

// Request is a client operation submission. KnownState is the client's
// view of current_system_state(f) at the time it issued the request, used
// by the receiving replica to detect that the client is on a diverged
// fork (§4.E, §7 StaleClientKnownState).
type Request struct {
	Op         []byte
	T          int64 // client logical timestamp, strictly increasing per client
	ClientID   uint32
	HasKnown   bool
	KnownState VersionVectorEntry
}

func (r *Request) Tag() Tag { return TagRequest }

func (r *Request) MarshalPayload() []byte {
	var buf []byte
	buf = appendBytes(buf, r.Op)
	buf = appendUint64(buf, uint64(r.T))
	buf = appendUint32(buf, r.ClientID)
	buf = appendBool(buf, r.HasKnown)
	if r.HasKnown {
		buf = appendEntry(buf, r.KnownState)
	}
	return buf
}

func (r *Request) UnmarshalPayload(b []byte) error {
	rd := newReader(b)
	var err error
	if r.Op, err = rd.bytes(); err != nil {
		return err
	}
	t, err := rd.uint64()
	if err != nil {
		return err
	}
	r.T = int64(t)
	if r.ClientID, err = rd.uint32(); err != nil {
		return err
	}
	if r.HasKnown, err = rd.boolean(); err != nil {
		return err
	}
	if r.HasKnown {
		if r.KnownState, err = rd.entry(); err != nil {
			return err
		}
	}
	return nil
}
