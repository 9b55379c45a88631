package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketTransport is an alternative to UDPTransport for operators
// who want an ordered, reconnecting transport instead of best-effort
// datagrams. It implements the same bft.Transport shape.
type WebSocketTransport struct {
	selfID uint32
	bind   string

	peerAddrs map[uint32]string // replica id -> ws host:port
	clientIDs map[uint32]struct{}

	mu    sync.RWMutex
	conns map[uint32]*websocket.Conn

	onReplicaMsg func(raw []byte)
	onClientMsg  func(raw []byte)

	upgrader websocket.Upgrader
	server   *http.Server
	stop     chan struct{}
	wg       sync.WaitGroup
	log      *zap.Logger
}

// WebSocketOpts configures a new WebSocketTransport.
type WebSocketOpts struct {
	SelfID    uint32
	Bind      string
	Peers     map[uint32]string
	ClientIDs []uint32
	Log       *zap.Logger
}

// NewWebSocketTransport wires a router with a single /bft upgrade
// endpoint, grounded on the teacher's consensus WebSocket transport.
func NewWebSocketTransport(o WebSocketOpts) *WebSocketTransport {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	clientIDs := map[uint32]struct{}{}
	for _, id := range o.ClientIDs {
		clientIDs[id] = struct{}{}
	}
	return &WebSocketTransport{
		selfID:    o.SelfID,
		bind:      o.Bind,
		peerAddrs: o.Peers,
		clientIDs: clientIDs,
		conns:     map[uint32]*websocket.Conn{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		stop: make(chan struct{}),
		log:  o.Log.With(zap.String("transport", "websocket")),
	}
}

func (t *WebSocketTransport) OnReplicaMessage(fn func(raw []byte)) { t.onReplicaMsg = fn }
func (t *WebSocketTransport) OnClientMessage(fn func(raw []byte))  { t.onClientMsg = fn }

// Start brings up the HTTP upgrade endpoint and begins dialing peers
// whose id is numerically greater than ours, so every pair of replicas
// ends up with exactly one connection regardless of who reaches out
// first.
func (t *WebSocketTransport) Start() error {
	r := mux.NewRouter()
	r.HandleFunc("/bft", t.handleUpgrade)
	t.server = &http.Server{Addr: t.bind, Handler: r}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.log.Warn("websocket server stopped", zap.Error(err))
		}
	}()

	t.wg.Add(1)
	go t.dialLoop()
	return nil
}

func (t *WebSocketTransport) Stop() error {
	close(t.stop)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if t.server != nil {
		t.server.Shutdown(ctx)
	}
	t.mu.Lock()
	for _, c := range t.conns {
		c.Close()
	}
	t.mu.Unlock()
	t.wg.Wait()
	return nil
}

func (t *WebSocketTransport) dialLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			for id, addr := range t.peerAddrs {
				if id <= t.selfID {
					continue
				}
				t.mu.RLock()
				_, connected := t.conns[id]
				t.mu.RUnlock()
				if !connected {
					go t.dial(id, addr)
				}
			}
		}
	}
}

func (t *WebSocketTransport) dial(id uint32, addr string) {
	url := fmt.Sprintf("ws://%s/bft", addr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return
	}
	ident := []byte{byte(t.selfID >> 24), byte(t.selfID >> 16), byte(t.selfID >> 8), byte(t.selfID)}
	if err := conn.WriteMessage(websocket.BinaryMessage, ident); err != nil {
		conn.Close()
		return
	}
	t.adopt(id, conn)
}

func (t *WebSocketTransport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	_, first, err := conn.ReadMessage()
	if err != nil || len(first) < 4 {
		conn.Close()
		return
	}
	peerID := decodeIdent(first)
	t.adopt(peerID, conn)
}

func (t *WebSocketTransport) adopt(id uint32, conn *websocket.Conn) {
	t.mu.Lock()
	t.conns[id] = conn
	t.mu.Unlock()
	t.wg.Add(1)
	go t.readLoop(id, conn)
}

func (t *WebSocketTransport) readLoop(id uint32, conn *websocket.Conn) {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		delete(t.conns, id)
		t.mu.Unlock()
		conn.Close()
	}()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if _, isClient := t.clientIDs[id]; isClient {
			if t.onClientMsg != nil {
				t.onClientMsg(raw)
			}
			continue
		}
		if t.onReplicaMsg != nil {
			t.onReplicaMsg(raw)
		}
	}
}

func (t *WebSocketTransport) SendToReplica(id uint32, envelope []byte) {
	t.send(id, envelope)
}

func (t *WebSocketTransport) BroadcastToReplicas(envelope []byte) {
	t.mu.RLock()
	ids := make([]uint32, 0, len(t.conns))
	for id := range t.conns {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	for _, id := range ids {
		t.send(id, envelope)
	}
}

func (t *WebSocketTransport) SendToClient(id uint32, envelope []byte) {
	t.send(id, envelope)
}

func (t *WebSocketTransport) send(id uint32, envelope []byte) {
	t.mu.RLock()
	conn, ok := t.conns[id]
	t.mu.RUnlock()
	if !ok {
		t.log.Warn("no open connection, dropping send", zap.Uint32("id", id))
		return
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, envelope); err != nil {
		t.log.Warn("websocket write failed", zap.Uint32("id", id), zap.Error(err))
	}
}

// decodeIdent reads a 4-byte big-endian identification prefix a peer
// sends immediately after dialing, before any protocol envelope.
func decodeIdent(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
