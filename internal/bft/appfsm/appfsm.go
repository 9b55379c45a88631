// Package appfsm provides the external application callback the BFT2F
// engine executes committed operations against. The protocol treats the
// "real" application as an external collaborator (spec.md §1); this
// package is the reference implementation used by cmd/replica and by
// tests — a deterministic, total, pure echo-with-sequence state machine.
package appfsm

import (
	"encoding/binary"
	"sync"
)

// StateMachine is the execute(op) callback the replica engine invokes
// once a request COMMITs (§6 External interfaces). It must be
// deterministic, total, and fast — long-running work is the caller's
// responsibility to move off-thread (§5).
type StateMachine interface {
	Execute(op []byte) ([]byte, error)
}

// Echo is the reference StateMachine: it appends each op to an ordered
// log and returns the op unchanged as its result, prefixed with the
// 1-based index it was applied at. Every replica that executes the same
// committed sequence of ops ends up with an identical log — the
// precondition invariant 1 (agreement) relies on.
type Echo struct {
	mu  sync.Mutex
	log [][]byte
}

// NewEcho returns a fresh Echo state machine.
func NewEcho() *Echo {
	return &Echo{}
}

func (e *Echo) Execute(op []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, append([]byte(nil), op...))

	idx := make([]byte, 8)
	binary.BigEndian.PutUint64(idx, uint64(len(e.log)))
	return append(idx, op...), nil
}

// Log returns a copy of every op applied so far, in application order.
func (e *Echo) Log() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]byte, len(e.log))
	copy(out, e.log)
	return out
}
