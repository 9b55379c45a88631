// Package storage provides the optional `--persist` durable mirror
// (§6): committed HCD blocks and stable checkpoints written out-of-band
// from the replica's own in-memory state, for audit and disaster
// recovery. Never consulted for protocol correctness — a replica that
// loses its persisted mirror simply rejoins via checkpoint catch-up.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// CommitRecord mirrors one HCD block this replica committed.
type CommitRecord struct {
	ReplicaID uint32
	Seq       uint64
	View      uint64
	Digest    []byte
	Op        []byte
	CommittedAt time.Time
}

// CheckpointRecord mirrors one stable checkpoint this replica reached.
type CheckpointRecord struct {
	ReplicaID uint32
	Seq       uint64
	Digest    []byte
	StableAt  time.Time
}

// Store is the durable audit mirror interface.
type Store interface {
	RecordCommit(ctx context.Context, rec CommitRecord) error
	RecordCheckpoint(ctx context.Context, rec CheckpointRecord) error
	LatestCommit(ctx context.Context, replicaID uint32) (CommitRecord, bool, error)
	Close() error
}

// postgresStore implements Store on top of Postgres, for operators who
// set --persist with a postgres DSN.
type postgresStore struct {
	db  *sql.DB
	log *zap.Logger
}

// NewPostgres opens a connection pool against dsn (the `--persist`
// flag's value) and verifies it, grounded on the teacher's
// pool-tuning pattern.
func NewPostgres(dsn string, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &postgresStore{db: db, log: log.With(zap.String("store", "postgres"))}, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS bft_commits (
	replica_id INTEGER NOT NULL,
	seq BIGINT NOT NULL,
	view BIGINT NOT NULL,
	digest BYTEA NOT NULL,
	op BYTEA NOT NULL,
	committed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (replica_id, seq)
);
CREATE TABLE IF NOT EXISTS bft_checkpoints (
	replica_id INTEGER NOT NULL,
	seq BIGINT NOT NULL,
	digest BYTEA NOT NULL,
	stable_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (replica_id, seq)
);
`

func (s *postgresStore) RecordCommit(ctx context.Context, rec CommitRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bft_commits (replica_id, seq, view, digest, op, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (replica_id, seq) DO NOTHING`,
		rec.ReplicaID, rec.Seq, rec.View, rec.Digest, rec.Op, rec.CommittedAt)
	if err != nil {
		s.log.Error("record commit failed", zap.Error(err), zap.Uint64("seq", rec.Seq))
		return fmt.Errorf("record commit: %w", err)
	}
	return nil
}

func (s *postgresStore) RecordCheckpoint(ctx context.Context, rec CheckpointRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bft_checkpoints (replica_id, seq, digest, stable_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (replica_id, seq) DO NOTHING`,
		rec.ReplicaID, rec.Seq, rec.Digest, rec.StableAt)
	if err != nil {
		s.log.Error("record checkpoint failed", zap.Error(err), zap.Uint64("seq", rec.Seq))
		return fmt.Errorf("record checkpoint: %w", err)
	}
	return nil
}

func (s *postgresStore) LatestCommit(ctx context.Context, replicaID uint32) (CommitRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT replica_id, seq, view, digest, op, committed_at
		FROM bft_commits WHERE replica_id = $1
		ORDER BY seq DESC LIMIT 1`, replicaID)

	var rec CommitRecord
	err := row.Scan(&rec.ReplicaID, &rec.Seq, &rec.View, &rec.Digest, &rec.Op, &rec.CommittedAt)
	if err == sql.ErrNoRows {
		return CommitRecord{}, false, nil
	}
	if err != nil {
		return CommitRecord{}, false, fmt.Errorf("latest commit: %w", err)
	}
	return rec, true, nil
}

func (s *postgresStore) Close() error {
	return s.db.Close()
}
