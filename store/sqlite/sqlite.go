package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smallnest/ragchat/rag"
	"github.com/smallnest/ragchat/store"
)

// SqliteHistoryStore implements store.HistoryStore using SQLite
type SqliteHistoryStore struct {
	db        *sql.DB
	tableName string
}

var _ store.HistoryStore = (*SqliteHistoryStore)(nil)

// SqliteOptions configuration for SQLite connection
type SqliteOptions struct {
	Path      string
	TableName string // Default "exchanges"
}

// NewSqliteHistoryStore opens the database and creates the table if needed
func NewSqliteHistoryStore(opts SqliteOptions) (*SqliteHistoryStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "exchanges"
	}

	s := &SqliteHistoryStore{
		db:        db,
		tableName: tableName,
	}

	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// InitSchema creates the necessary table if it doesn't exist
func (s *SqliteHistoryStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			query TEXT,
			answer TEXT NOT NULL,
			outcome TEXT NOT NULL DEFAULT '',
			sources TEXT,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s (created_at);
	`, s.tableName, s.tableName, s.tableName)

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SqliteHistoryStore) Close() error {
	return s.db.Close()
}

// Save stores an exchange
func (s *SqliteHistoryStore) Save(ctx context.Context, exchange *store.Exchange) error {
	var queryJSON sql.NullString
	if exchange.Query != nil {
		data, err := json.Marshal(exchange.Query)
		if err != nil {
			return fmt.Errorf("failed to marshal query: %w", err)
		}
		queryJSON = sql.NullString{String: string(data), Valid: true}
	}

	sourcesJSON, err := json.Marshal(exchange.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, question, query, answer, outcome, sources, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			question = excluded.question,
			query = excluded.query,
			answer = excluded.answer,
			outcome = excluded.outcome,
			sources = excluded.sources,
			created_at = excluded.created_at
	`, s.tableName)

	_, err = s.db.ExecContext(ctx, query,
		exchange.ID,
		exchange.Question,
		queryJSON,
		exchange.Answer,
		exchange.Outcome,
		string(sourcesJSON),
		exchange.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save exchange: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExchange(row scanner) (*store.Exchange, error) {
	var ex store.Exchange
	var queryJSON, sourcesJSON sql.NullString

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

	if queryJSON.Valid && queryJSON.String != "" {
		var q rag.StructuredQuery
		if err := json.Unmarshal([]byte(queryJSON.String), &q); err != nil {
			return nil, fmt.Errorf("failed to unmarshal query: %w", err)
		}
		ex.Query = &q
	}
	if sourcesJSON.Valid && sourcesJSON.String != "" {
		if err := json.Unmarshal([]byte(sourcesJSON.String), &ex.Sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
	}
	return &ex, nil
}

// Load retrieves an exchange by ID
func (s *SqliteHistoryStore) Load(ctx context.Context, id string) (*store.Exchange, error) {
	query := fmt.Sprintf(`
		SELECT id, question, query, answer, outcome, sources, created_at
		FROM %s
		WHERE id = ?
	`, s.tableName)

	ex, err := scanExchange(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load exchange: %w", err)
	}
	return ex, nil
}

// List returns the newest exchanges first
func (s *SqliteHistoryStore) List(ctx context.Context, limit int) ([]*store.Exchange, error) {
	query := fmt.Sprintf(`
		SELECT id, question, query, answer, outcome, sources, created_at
		FROM %s
		ORDER BY created_at DESC
		LIMIT ?
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query, store.Limit(limit))
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
func (s *SqliteHistoryStore) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete exchange: %w", err)
	}
	return nil
}

// Clear removes every exchange
func (s *SqliteHistoryStore) Clear(ctx context.Context) error {
	query := fmt.Sprintf("DELETE FROM %s", s.tableName)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to clear exchanges: %w", err)
	}
	return nil
}
