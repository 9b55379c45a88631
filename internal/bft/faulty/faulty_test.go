package faulty

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	sent [][]byte
}

func (r *recordingTransport) SendToReplica(id uint32, envelope []byte)  { r.sent = append(r.sent, envelope) }
func (r *recordingTransport) BroadcastToReplicas(envelope []byte)       { r.sent = append(r.sent, envelope) }
func (r *recordingTransport) SendToClient(id uint32, envelope []byte)   { r.sent = append(r.sent, envelope) }

func TestModeDropAllSendsNothing(t *testing.T) {
	rt := &recordingTransport{}
	a := New(rt, ModeDropAll, 0, 1, nil)
	a.SendToReplica(1, []byte("hello"))
	a.BroadcastToReplicas([]byte("hello"))
	a.SendToClient(1, []byte("hello"))
	require.Empty(t, rt.sent)
}

func TestModeCorruptFlipsABit(t *testing.T) {
	rt := &recordingTransport{}
	a := New(rt, ModeCorrupt, 0, 42, nil)
	original := []byte("deterministic payload")
	a.SendToReplica(1, original)
	require.Len(t, rt.sent, 1)
	require.NotEqual(t, original, rt.sent[0])
	require.Len(t, rt.sent[0], len(original))
}

func TestModeRandomDropHonorsZeroRate(t *testing.T) {
	rt := &recordingTransport{}
	a := New(rt, ModeRandomDrop, 0, 7, nil)
	for i := 0; i < 10; i++ {
		a.SendToReplica(1, []byte("x"))
	}
	require.Len(t, rt.sent, 10)
}
