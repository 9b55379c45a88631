package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sink adapts a Store to bft.AuditSink's synchronous, error-free
// method shape: each write runs synchronously on the caller's goroutine
// with a 2-second timeout, and failures are logged and dropped rather
// than propagated.
type Sink struct {
	store Store
	log   *zap.Logger
}

// NewSink wraps store as an audit sink.
func NewSink(store Store, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{store: store, log: log}
}

func (s *Sink) RecordCommit(replicaID uint32, view, seq uint64, digest, op []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec := CommitRecord{ReplicaID: replicaID, Seq: seq, View: view, Digest: digest, Op: op, CommittedAt: time.Now()}
	if err := s.store.RecordCommit(ctx, rec); err != nil {
		s.log.Warn("audit commit write failed", zap.Error(err), zap.Uint64("seq", seq))
	}
}

func (s *Sink) RecordCheckpoint(replicaID uint32, seq uint64, digest []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec := CheckpointRecord{ReplicaID: replicaID, Seq: seq, Digest: digest, StableAt: time.Now()}
	if err := s.store.RecordCheckpoint(ctx, rec); err != nil {
		s.log.Warn("audit checkpoint write failed", zap.Error(err), zap.Uint64("seq", seq))
	}
}
