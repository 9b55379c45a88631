// Package faulty implements the `--faulty` boundary adversary (§9): a
// Transport decorator that corrupts or drops outbound
// envelopes before they reach the wire. It never touches bft.Replica
// or bft.Client — the engine underneath is the same concrete state
// machine either way, only what it hears is unreliable.
package faulty

import (
	"math/rand"

	"go.uber.org/zap"
)

// transport is the subset of bft.Transport this package wraps; kept
// unexported and structurally matched so faulty has no import-cycle
// dependency on package bft.
type transport interface {
	SendToReplica(id uint32, envelope []byte)
	BroadcastToReplicas(envelope []byte)
	SendToClient(id uint32, envelope []byte)
}

// Mode selects which misbehavior Adversary injects.
type Mode int

const (
	// ModeDropAll never sends anything — the S2 scenario ("replica 3
	// randomly drops all messages").
	ModeDropAll Mode = iota
	// ModeRandomDrop drops each outbound envelope independently with
	// probability DropRate.
	ModeRandomDrop
	// ModeCorrupt flips every bit of one randomly chosen byte in the
	// envelope before sending,
	// exercising ChecksumMismatch / signature-rejection paths.
	ModeCorrupt
)

// Adversary wraps a real Transport and is itself a Transport, so
// cmd/replica can pass --faulty without the engine knowing anything
// changed.
type Adversary struct {
	next transport
	mode Mode

	// DropRate is consulted only for ModeRandomDrop.
	DropRate float64

	rand *rand.Rand
	log  *zap.Logger
}

// New wraps next in an Adversary running the given mode.
func New(next transport, mode Mode, dropRate float64, seed int64, log *zap.Logger) *Adversary {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adversary{
		next:     next,
		mode:     mode,
		DropRate: dropRate,
		rand:     rand.New(rand.NewSource(seed)),
		log:      log.With(zap.String("component", "faulty_transport")),
	}
}

func (a *Adversary) shouldDrop() bool {
	switch a.mode {
	case ModeDropAll:
		return true
	case ModeRandomDrop:
		return a.rand.Float64() < a.DropRate
	default:
		return false
	}
}

func (a *Adversary) corrupt(envelope []byte) []byte {
	if a.mode != ModeCorrupt || len(envelope) == 0 {
		return envelope
	}
	out := make([]byte, len(envelope))
	copy(out, envelope)
	i := a.rand.Intn(len(out))
	out[i] ^= 0xFF
	return out
}

func (a *Adversary) SendToReplica(id uint32, envelope []byte) {
	if a.shouldDrop() {
		a.log.Debug("dropping outbound message", zap.Uint32("to", id))
		return
	}
	a.next.SendToReplica(id, a.corrupt(envelope))
}

func (a *Adversary) BroadcastToReplicas(envelope []byte) {
	if a.shouldDrop() {
		a.log.Debug("dropping broadcast")
		return
	}
	a.next.BroadcastToReplicas(a.corrupt(envelope))
}

func (a *Adversary) SendToClient(id uint32, envelope []byte) {
	if a.shouldDrop() {
		a.log.Debug("dropping reply", zap.Uint32("to", id))
		return
	}
	a.next.SendToClient(id, a.corrupt(envelope))
}
