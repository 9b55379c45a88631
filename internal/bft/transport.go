package bft

// Transport is the boundary collaborator a Replica or Client uses to
// exchange signed envelopes with peers (§6: unreliable, UDP-shaped
// datagrams — arbitrary loss, duplication, and reordering are
// tolerated by the protocol, not by the transport). Byzantine behavior
// is injected at this boundary, never by overriding engine methods
// (§9 design notes: the faulty-replica simulator is a transport
// adversary, not a Replica subclass).
type Transport interface {
	SendToReplica(id uint32, envelope []byte)
	BroadcastToReplicas(envelope []byte)
	SendToClient(id uint32, envelope []byte)
}
