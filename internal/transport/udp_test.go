package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUDPTransportSendToReplica(t *testing.T) {
	a, err := NewUDPTransport(UDPOpts{Bind: "127.0.0.1:0"})
	require.NoError(t, err)
	defer a.Close()

	b, err := NewUDPTransport(UDPOpts{Bind: "127.0.0.1:0"})
	require.NoError(t, err)
	defer b.Close()

	received := make(chan []byte, 1)
	b.OnReplicaMessage(func(raw []byte) { received <- raw })
	go b.Serve()

	a.mu.Lock()
	a.replicas[1] = b.conn.LocalAddr().(*net.UDPAddr)
	a.mu.Unlock()

	a.SendToReplica(1, []byte("hello"))

	select {
	case got := <-received:
		require.Equal(t, "hello", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}
}

func TestUDPTransportUnknownReplicaDoesNotPanic(t *testing.T) {
	a, err := NewUDPTransport(UDPOpts{Bind: "127.0.0.1:0"})
	require.NoError(t, err)
	defer a.Close()

	require.NotPanics(t, func() { a.SendToReplica(99, []byte("nobody")) })
}

func TestUDPTransportSetClientAddr(t *testing.T) {
	a, err := NewUDPTransport(UDPOpts{Bind: "127.0.0.1:0"})
	require.NoError(t, err)
	defer a.Close()

	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:12345")
	require.NoError(t, err)

	a.SetClientAddr(7, addr)
	a.mu.RLock()
	got, ok := a.clients[7]
	a.mu.RUnlock()
	require.True(t, ok)
	require.Equal(t, addr, got)
}
