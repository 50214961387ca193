package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/ragchat/rag"
	"github.com/smallnest/ragchat/store"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresHistoryStore implements store.HistoryStore using PostgreSQL
type PostgresHistoryStore struct {
	pool      DBPool
	tableName string
}

var _ store.HistoryStore = (*PostgresHistoryStore)(nil)

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "exchanges"
}

// NewPostgresHistoryStore creates a new Postgres history store
func NewPostgresHistoryStore(ctx context.Context, opts PostgresOptions) (*PostgresHistoryStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return NewPostgresHistoryStoreWithPool(pool, opts.TableName), nil
}

// NewPostgresHistoryStoreWithPool creates a history store on an existing pool
func NewPostgresHistoryStoreWithPool(pool DBPool, tableName string) *PostgresHistoryStore {
	if tableName == "" {
		tableName = "exchanges"
	}
	return &PostgresHistoryStore{
		pool:      pool,
		tableName: tableName,
	}
}

// InitSchema creates the necessary table if it doesn't exist
func (s *PostgresHistoryStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			query JSONB,
			answer TEXT NOT NULL,
			outcome TEXT NOT NULL DEFAULT '',
			sources JSONB,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s (created_at DESC);
	`, s.tableName, s.tableName, s.tableName)

	_, err := s.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresHistoryStore) Close() {
	s.pool.Close()
}

func encodeQuery(q *rag.StructuredQuery) ([]byte, error) {
	if q == nil {
		return nil, nil
	}
	return json.Marshal(q)
}

// Save stores an exchange
func (s *PostgresHistoryStore) Save(ctx context.Context, exchange *store.Exchange) error {
	queryJSON, err := encodeQuery(exchange.Query)
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}
	sourcesJSON, err := json.Marshal(exchange.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, question, query, answer, outcome, sources, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			question = EXCLUDED.question,
			query = EXCLUDED.query,
			answer = EXCLUDED.answer,
			outcome = EXCLUDED.outcome,
			sources = EXCLUDED.sources,
			created_at = EXCLUDED.created_at
	`, s.tableName)

	_, err = s.pool.Exec(ctx, query,
		exchange.ID,
		exchange.Question,
		queryJSON,
		exchange.Answer,
		exchange.Outcome,
		sourcesJSON,
		exchange.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save exchange: %w", err)
	}
	return nil
}

func scanExchange(row pgx.Row) (*store.Exchange, error) {
	var ex store.Exchange
	var queryJSON, sourcesJSON []byte

	if err := row.Scan(
		&ex.ID,
		&ex.Question,
		&queryJSON,
		&ex.Answer,
		&ex.Outcome,
		&sourcesJSON,
		&ex.CreatedAt,
	); err != nil {
		return nil, err
	}

	if len(queryJSON) > 0 && string(queryJSON) != "null" {
		var q rag.StructuredQuery
		if err := json.Unmarshal(queryJSON, &q); err != nil {
			return nil, fmt.Errorf("failed to unmarshal query: %w", err)
		}
		ex.Query = &q
	}
	if len(sourcesJSON) > 0 {
		if err := json.Unmarshal(sourcesJSON, &ex.Sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
	}
	return &ex, nil
}

// Load retrieves an exchange by ID
func (s *PostgresHistoryStore) Load(ctx context.Context, id string) (*store.Exchange, error) {
	query := fmt.Sprintf(`
		SELECT id, question, query, answer, outcome, sources, created_at
		FROM %s
		WHERE id = $1
	`, s.tableName)

	ex, err := scanExchange(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load exchange: %w", err)
	}
	return ex, nil
}

// List returns the newest exchanges first
func (s *PostgresHistoryStore) List(ctx context.Context, limit int) ([]*store.Exchange, error) {
	query := fmt.Sprintf(`
		SELECT id, question, query, answer, outcome, sources, created_at
		FROM %s
		ORDER BY created_at DESC
		LIMIT $1
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query, store.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list exchanges: %w", err)
	}
	defer rows.Close()

	exchanges := []*store.Exchange{}
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exchange row: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return exchanges, nil
}

// Delete removes an exchange
func (s *PostgresHistoryStore) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete exchange: %w", err)
	}
	return nil
}

// Clear removes every exchange
func (s *PostgresHistoryStore) Clear(ctx context.Context) error {
	query := fmt.Sprintf("DELETE FROM %s", s.tableName)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to clear exchanges: %w", err)
	}
	return nil
}
