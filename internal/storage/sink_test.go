package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	commits     []CommitRecord
	checkpoints []CheckpointRecord
	failNext    bool
}

func (f *fakeStore) RecordCommit(ctx context.Context, rec CommitRecord) error {
	if f.failNext {
		f.failNext = false
		return context.DeadlineExceeded
	}
	f.commits = append(f.commits, rec)
	return nil
}

func (f *fakeStore) RecordCheckpoint(ctx context.Context, rec CheckpointRecord) error {
	f.checkpoints = append(f.checkpoints, rec)
	return nil
}

func (f *fakeStore) LatestCommit(ctx context.Context, replicaID uint32) (CommitRecord, bool, error) {
	if len(f.commits) == 0 {
		return CommitRecord{}, false, nil
	}
	return f.commits[len(f.commits)-1], true, nil
}

func (f *fakeStore) Close() error { return nil }

func TestSinkRecordCommitForwardsToStore(t *testing.T) {
	store := &fakeStore{}
	sink := NewSink(store, nil)

	sink.RecordCommit(1, 2, 3, []byte("digest"), []byte("op"))

	require.Len(t, store.commits, 1)
	require.Equal(t, uint32(1), store.commits[0].ReplicaID)
	require.Equal(t, uint64(2), store.commits[0].View)
	require.Equal(t, uint64(3), store.commits[0].Seq)
}

func TestSinkRecordCommitSwallowsStoreError(t *testing.T) {
	store := &fakeStore{failNext: true}
	sink := NewSink(store, nil)

	require.NotPanics(t, func() {
		sink.RecordCommit(1, 0, 1, []byte("d"), []byte("o"))
	})
	require.Empty(t, store.commits)
}

func TestSinkRecordCheckpointForwardsToStore(t *testing.T) {
	store := &fakeStore{}
	sink := NewSink(store, nil)

	sink.RecordCheckpoint(5, 100, []byte("digest"))

	require.Len(t, store.checkpoints, 1)
	require.Equal(t, uint64(100), store.checkpoints[0].Seq)
}

func TestRedisKeyFormatsAreStableAndOrderable(t *testing.T) {
	require.Equal(t, "bft:commit:1:00000000000000000042", commitKey(1, 42))
	require.Equal(t, "bft:checkpoint:1:00000000000000000042", checkpointKey(1, 42))
	require.Equal(t, "bft:latest:1", latestKey(1))

	// zero-padded sequence numbers sort lexically the same as numerically
	require.Less(t, commitKey(1, 9), commitKey(1, 10))
}
