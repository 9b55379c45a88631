package transport

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSTransport replaces point-to-point sockets with a shared broker:
// every replica publishes to per-recipient subjects and subscribes to
// its own. Useful for operators who already run NATS for other
// services and want one less port to manage per replica.
type NATSTransport struct {
	selfID uint32
	kind   string // "replica" or "client"
	peers  []uint32
	conn   *nats.Conn
	sub    *nats.Subscription
	log    *zap.Logger

	onMessage func(raw []byte)
}

// NATSOpts configures a new NATSTransport.
type NATSOpts struct {
	URL    string
	SelfID uint32
	Kind   string // "replica" or "client"
	Peers  []uint32
	Log    *zap.Logger
}

func subject(kind string, id uint32) string {
	return fmt.Sprintf("bft.%s.%d", kind, id)
}

// NewNATSTransport connects to url and subscribes to this node's own
// inbound subject.
func NewNATSTransport(o NATSOpts) (*NATSTransport, error) {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	conn, err := nats.Connect(o.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %q: %w", o.URL, err)
	}
	t := &NATSTransport{
		selfID: o.SelfID,
		kind:   o.Kind,
		peers:  o.Peers,
		conn:   conn,
		log:    o.Log.With(zap.String("transport", "nats")),
	}
	sub, err := conn.Subscribe(subject(o.Kind, o.SelfID), func(msg *nats.Msg) {
		if t.onMessage != nil {
			t.onMessage(msg.Data)
		}
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	t.sub = sub
	return t, nil
}

func (t *NATSTransport) OnMessage(fn func(raw []byte)) { t.onMessage = fn }

func (t *NATSTransport) Close() error {
	if t.sub != nil {
		t.sub.Unsubscribe()
	}
	t.conn.Close()
	return nil
}

func (t *NATSTransport) SendToReplica(id uint32, envelope []byte) {
	if err := t.conn.Publish(subject("replica", id), envelope); err != nil {
		t.log.Warn("nats publish failed", zap.Uint32("id", id), zap.Error(err))
	}
}

// BroadcastToReplicas publishes once per peer id supplied at
// construction (NATSOpts.Peers), since NATS subjects are per-recipient
// rather than a shared topic.
func (t *NATSTransport) BroadcastToReplicas(envelope []byte) {
	for _, id := range t.peers {
		if id == t.selfID {
			continue
		}
		t.SendToReplica(id, envelope)
	}
}

func (t *NATSTransport) SendToClient(id uint32, envelope []byte) {
	if err := t.conn.Publish(subject("client", id), envelope); err != nil {
		t.log.Warn("nats publish failed", zap.Uint32("id", id), zap.Error(err))
	}
}
