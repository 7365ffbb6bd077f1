package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

// SQLStore implements CheckpointStore on database/sql. The schema and
// $N placeholders are valid in both Postgres (lib/pq) and SQLite
// (modernc.org/sqlite), so one implementation serves both drivers.
type SQLStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	namespace TEXT PRIMARY KEY,
	last_sealed_height BIGINT NOT NULL,
	unsent_block TEXT,
	updated_at TIMESTAMP NOT NULL
);
`

// NewSQLStore wraps an open database handle and ensures the schema.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("store: migrate checkpoints: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Load(ctx context.Context, namespace string) (*Checkpoint, error) {
	query := `SELECT last_sealed_height, unsent_block, updated_at FROM checkpoints WHERE namespace = $1`
	row := s.db.QueryRowContext(ctx, query, namespace)

	var (
		height  int64
		raw     sql.NullString
		updated time.Time
	)
	if err := row.Scan(&height, &raw, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: load checkpoint %q: %w", namespace, err)
	}

	cp := &Checkpoint{Namespace: namespace, LastSealedHeight: uint64(height), UpdatedAt: updated}
	if raw.Valid && raw.String != "" {
		block, err := contracts.DecodeLogBlock([]byte(raw.String))
		if err != nil {
			return nil, fmt.Errorf("store: decode unsent block for %q: %w", namespace, err)
		}
		cp.UnsentBlock = block
	}
	return cp, nil
}

func (s *SQLStore) Save(ctx context.Context, cp *Checkpoint) error {
	var raw any
	if cp.UnsentBlock != nil {
		encoded, err := contracts.EncodeLogBlock(cp.UnsentBlock)
		if err != nil {
			return fmt.Errorf("store: encode unsent block: %w", err)
		}
		raw = string(encoded)
	}

	query := `
		INSERT INTO checkpoints (namespace, last_sealed_height, unsent_block, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace) DO UPDATE SET
			last_sealed_height = EXCLUDED.last_sealed_height,
			unsent_block = EXCLUDED.unsent_block,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, cp.Namespace, int64(cp.LastSealedHeight), raw, cp.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("store: save checkpoint %q: %w", cp.Namespace, err)
	}
	return nil
}

// MarkEmitted clears the unsent block once delivery is acknowledged.
// The height guard keeps a newer seal's block intact if an
// acknowledgment arrives late.
func (s *SQLStore) MarkEmitted(ctx context.Context, namespace string, height uint64) error {
	query := `UPDATE checkpoints SET unsent_block = NULL, updated_at = $1 WHERE namespace = $2 AND last_sealed_height = $3`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), namespace, int64(height)); err != nil {
		return fmt.Errorf("store: mark emitted %q/%d: %w", namespace, height, err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
