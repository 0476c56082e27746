package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// appendLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent InsertBlock calls. The value is arbitrary but must be consistent
// across all ledger instances sharing a database.
const appendLockKey = int64(7_731_450_219)

// PostgresStore persists blocks to a PostgreSQL database.
// It implements the Store interface.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// InitSchema implements Store.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS blocks (
			idx           BIGINT PRIMARY KEY,
			timestamp     TEXT NOT NULL,
			data          TEXT NOT NULL,
			previous_hash TEXT NOT NULL,
			hash          TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create blocks table: %w", err)
	}
	return nil
}

// InsertBlock implements Store.
// A transaction-scoped advisory lock serialises concurrent inserts so that a
// reader never observes a gap while an append is in flight.
func (s *PostgresStore) InsertBlock(ctx context.Context, b *Block) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", appendLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO blocks (idx, timestamp, data, previous_hash, hash)
		 VALUES ($1, $2, $3, $4, $5)`,
		b.Index, b.Timestamp, b.Data, b.PreviousHash, b.Hash,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("insert block %d: %w", b.Index, ErrDuplicateIndex)
		}
		return fmt.Errorf("insert block %d: %w", b.Index, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit block insert: %w", err)
	}

	s.logger.Debug("block persisted",
		zap.Int("index", b.Index),
		zap.String("hash", b.Hash),
	)
	return nil
}

// AllBlocks implements Store.
func (s *PostgresStore) AllBlocks(ctx context.Context) ([]*Block, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT idx, timestamp, data, previous_hash, hash FROM blocks ORDER BY idx ASC`)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var out []*Block
	for rows.Next() {
		b := &Block{}
		if err := rows.Scan(&b.Index, &b.Timestamp, &b.Data, &b.PreviousHash, &b.Hash); err != nil {
			return nil, fmt.Errorf("scan block row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateBlockHashes implements Store.
func (s *PostgresStore) UpdateBlockHashes(ctx context.Context, index int, previousHash, hash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE blocks SET previous_hash = $2, hash = $3 WHERE idx = $1`,
		index, previousHash, hash,
	)
	if err != nil {
		return fmt.Errorf("update block %d hashes: %w", index, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update block %d hashes: not found", index)
	}
	return nil
}

// IsEmpty implements Store.
func (s *PostgresStore) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM blocks").Scan(&n); err != nil {
		return false, fmt.Errorf("count blocks: %w", err)
	}
	return n == 0, nil
}
