package wire

import (
	"encoding/binary"
	"fmt"
)

// Envelope is the outermost framing for every message on the wire:
// tag (u8) ‖ length (u32) ‖ payload ‖ sig length (u32) ‖ signature, all
// integers big-endian. The signature is detached
// — computed over the encoded payload, never over itself.
type Envelope struct {
	Tag       Tag
	Payload   []byte
	Signature []byte
}

// Encode serializes the envelope to its canonical binary form.
func (e Envelope) Encode() []byte {
	buf := make([]byte, 0, 1+4+len(e.Payload)+4+len(e.Signature))
	buf = append(buf, byte(e.Tag))
	buf = appendUint32(buf, uint32(len(e.Payload)))
	buf = append(buf, e.Payload...)
	buf = appendUint32(buf, uint32(len(e.Signature)))
	buf = append(buf, e.Signature...)
	return buf
}

// DecodeEnvelope parses a canonical envelope. Bytes after the signature
// are ignored.
func DecodeEnvelope(data []byte) (Envelope, error) {
	r := newReader(data)
	tagByte, err := r.byte()
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: truncated tag: %w", err)
	}
	plen, err := r.uint32()
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: truncated payload length: %w", err)
	}
	payload, err := r.bytesN(int(plen))
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: truncated payload: %w", err)
	}
	slen, err := r.uint32()
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: truncated signature length: %w", err)
	}
	sig, err := r.bytesN(int(slen))
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: truncated signature: %w", err)
	}
	return Envelope{Tag: Tag(tagByte), Payload: payload, Signature: sig}, nil
}

// Encode builds a signed envelope for msg, invoking sign over the payload.
func Encode(msg Message, sign func([]byte) []byte) []byte {
	payload := msg.MarshalPayload()
	var sig []byte
	if sign != nil {
		sig = sign(payload)
	}
	return Envelope{Tag: msg.Tag(), Payload: payload, Signature: sig}.Encode()
}

// Decode parses an envelope and unmarshals its payload into a fresh
// instance of the type identified by the tag.
func Decode(data []byte) (Message, []byte, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, nil, err
	}
	msg, err := newForTag(env.Tag)
	if err != nil {
		return nil, nil, err
	}
	if err := msg.UnmarshalPayload(env.Payload); err != nil {
		return nil, nil, fmt.Errorf("wire: decode %s payload: %w", env.Tag, err)
	}
	return msg, env.Signature, nil
}

func newForTag(t Tag) (Message, error) {
	switch t {
	case TagRequest:
		return &Request{}, nil
	case TagPrePrepare:
		return &PrePrepare{}, nil
	case TagPrepare:
		return &Prepare{}, nil
	case TagCommit:
		return &Commit{}, nil
	case TagReply:
		return &Reply{}, nil
	case TagViewChange:
		return &ViewChange{}, nil
	case TagNewView:
		return &NewView{}, nil
	case TagCheckpoint:
		return &Checkpoint{}, nil
	case TagOperationsDict:
		return &OperationsDict{}, nil
	case TagPrimaryNotDominant:
		return &PrimaryNotDominant{}, nil
	default:
		return nil, fmt.Errorf("wire: unknown tag %d", uint8(t))
	}
}

// --- low level buffer helpers -------------------------------------------------

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = appendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func appendString(buf []byte, s string) []byte {
	return appendBytes(buf, []byte(s))
}

func appendDigest(buf []byte, d Digest) []byte {
	return append(buf, d[:]...)
}

func appendBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func appendEntry(buf []byte, e VersionVectorEntry) []byte {
	buf = appendUint32(buf, e.ReplicaID)
	buf = appendUint64(buf, e.View)
	buf = appendUint64(buf, e.Seq)
	buf = appendDigest(buf, e.Digest)
	buf = appendBytes(buf, e.Signature)
	return buf
}

type reader struct {
	data []byte
	pos  int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) byte() (byte, error) {
	if r.pos+1 > len(r.data) {
		return 0, fmt.Errorf("eof")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) uint32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("eof")
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) uint64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("eof")
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) bytesN(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, fmt.Errorf("eof")
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	return r.bytesN(int(n))
}

func (r *reader) string() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) digest() (Digest, error) {
	b, err := r.bytesN(DigestSize)
	if err != nil {
		return Digest{}, err
	}
	var d Digest
	copy(d[:], b)
	return d, nil
}

func (r *reader) boolean() (bool, error) {
	b, err := r.byte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (r *reader) entry() (VersionVectorEntry, error) {
	var e VersionVectorEntry
	var err error
	if e.ReplicaID, err = r.uint32(); err != nil {
		return e, err
	}
	if e.View, err = r.uint64(); err != nil {
		return e, err
	}
	if e.Seq, err = r.uint64(); err != nil {
		return e, err
	}
	if e.Digest, err = r.digest(); err != nil {
		return e, err
	}
	if e.Signature, err = r.bytes(); err != nil {
		return e, err
	}
	return e, nil
}

func (r *reader) remaining() bool {
	return r.pos < len(r.data)
}
