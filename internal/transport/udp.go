// Package transport provides the Transport implementations that drive
// bft.Replica and bft.Client over real network sockets: UDP datagrams
// as the primary binding (§6), with a WebSocket and a NATS alternative
// for operators who want ordered delivery or a shared broker.
package transport

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
)

const maxDatagramSize = 64 * 1024

// UDPTransport is the reference transport: one UDP socket per process,
// peer addresses resolved once at construction. It never retries a
// failed send — the protocol's own resend/view-change timers are the
// retry mechanism (§5), not the transport.
type UDPTransport struct {
	conn *net.UDPConn
	log  *zap.Logger

	mu       sync.RWMutex
	replicas map[uint32]*net.UDPAddr
	clients  map[uint32]*net.UDPAddr

	onReplicaMsg func(raw []byte)
	onClientMsg  func(raw []byte)

	selfID     uint32
	selfIsPeer bool
}

// UDPOpts configures a new UDPTransport.
type UDPOpts struct {
	Bind     string
	SelfID   uint32
	Replicas map[uint32]string // id -> host:port, including self
	Clients  map[uint32]string
	Log      *zap.Logger
}

// NewUDPTransport binds a UDP socket and resolves every peer address.
func NewUDPTransport(o UDPOpts) (*UDPTransport, error) {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	addr, err := net.ResolveUDPAddr("udp", o.Bind)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address %q: %w", o.Bind, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %q: %w", o.Bind, err)
	}

	t := &UDPTransport{
		conn:     conn,
		log:      o.Log.With(zap.String("transport", "udp")),
		replicas: map[uint32]*net.UDPAddr{},
		clients:  map[uint32]*net.UDPAddr{},
		selfID:   o.SelfID,
	}
	for id, hostport := range o.Replicas {
		a, err := net.ResolveUDPAddr("udp", hostport)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("resolve replica %d address %q: %w", id, hostport, err)
		}
		t.replicas[id] = a
		if id == o.SelfID {
			t.selfIsPeer = true
		}
	}
	for id, hostport := range o.Clients {
		a, err := net.ResolveUDPAddr("udp", hostport)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("resolve client %d address %q: %w", id, hostport, err)
		}
		t.clients[id] = a
	}
	return t, nil
}

// OnReplicaMessage and OnClientMessage register the callbacks Serve
// invokes for every inbound datagram: cmd/replica registers
// bft.Replica.Enqueue via OnReplicaMessage, cmd/client registers
// bft.Client.Deliver via OnClientMessage.
func (t *UDPTransport) OnReplicaMessage(fn func(raw []byte)) { t.onReplicaMsg = fn }
func (t *UDPTransport) OnClientMessage(fn func(raw []byte))  { t.onClientMsg = fn }

// Serve reads datagrams until the socket is closed. It dispatches every
// datagram to both registered callbacks if set, since a single process
// binds exactly one of the two roles in practice (cmd/replica only
// registers OnReplicaMessage, cmd/client only OnClientMessage).
func (t *UDPTransport) Serve() error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])
		if t.onReplicaMsg != nil {
			t.onReplicaMsg(raw)
		}
		if t.onClientMsg != nil {
			t.onClientMsg(raw)
		}
	}
}

// Close stops Serve by closing the underlying socket.
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

func (t *UDPTransport) SendToReplica(id uint32, envelope []byte) {
	t.mu.RLock()
	addr, ok := t.replicas[id]
	t.mu.RUnlock()
	if !ok {
		t.log.Warn("unknown replica id, dropping send", zap.Uint32("id", id))
		return
	}
	if _, err := t.conn.WriteToUDP(envelope, addr); err != nil {
		t.log.Warn("udp write failed", zap.Uint32("id", id), zap.Error(err))
	}
}

func (t *UDPTransport) BroadcastToReplicas(envelope []byte) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for id, addr := range t.replicas {
		if _, err := t.conn.WriteToUDP(envelope, addr); err != nil {
			t.log.Warn("udp broadcast failed", zap.Uint32("id", id), zap.Error(err))
		}
	}
}

func (t *UDPTransport) SendToClient(id uint32, envelope []byte) {
	t.mu.RLock()
	addr, ok := t.clients[id]
	t.mu.RUnlock()
	if !ok {
		t.log.Warn("unknown client id, dropping reply", zap.Uint32("id", id))
		return
	}
	if _, err := t.conn.WriteToUDP(envelope, addr); err != nil {
		t.log.Warn("udp reply failed", zap.Uint32("id", id), zap.Error(err))
	}
}

// SetClientAddr lets a replica learn a client's return address from the
// socket a REQUEST arrived on, for deployments where clients are not
// pre-listed in the static topology.
func (t *UDPTransport) SetClientAddr(id uint32, addr *net.UDPAddr) {
	t.mu.Lock()
	t.clients[id] = addr
	t.mu.Unlock()
}
