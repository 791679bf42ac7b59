package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallnest/ragserve/rag"
)

// DBPool is the subset of pgxpool.Pool the store uses. It exists so tests can
// substitute a pgxmock pool.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore persists session turns in a PostgreSQL table, one row per
// turn ordered by an insertion sequence.
type PostgresStore struct {
	pool DBPool
}

// NewPostgresStore connects to PostgreSQL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithPool creates a PostgresStore over an existing pool
// without touching the schema. Used in tests with pgxmock.
func NewPostgresStoreWithPool(pool DBPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InitSchema creates the session table if it does not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ragserve_sessions (
			seq BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_ragserve_sessions_id
			ON ragserve_sessions (session_id, seq);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (rag.History, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT role, content FROM ragserve_sessions WHERE session_id = $1 ORDER BY seq`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	defer rows.Close()

	history := rag.History{}
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		history = append(history, rag.Message{Role: rag.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	return history, nil
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, id string, turns ...rag.Message) error {
	for _, turn := range turns {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO ragserve_sessions (session_id, role, content) VALUES ($1, $2, $3)`,
			id, string(turn.Role), turn.Content,
		)
		if err != nil {
			return fmt.Errorf("failed to append to session %s: %w", id, err)
		}
	}
	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM ragserve_sessions WHERE session_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
