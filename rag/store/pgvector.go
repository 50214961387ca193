package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/ragchat/rag"
)

// DBPool is the subset of pgxpool.Pool used by PGVectorStore.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// DefaultCollection is the table name used when none is configured.
const DefaultCollection = "vector_store"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PGVectorOptions configures a PostgreSQL connection.
type PGVectorOptions struct {
	ConnString string
	Collection string // Table name, default "vector_store"
	Dimensions int    // Embedding size; 0 leaves the column unsized
}

// PGVectorStore stores chunks in a PostgreSQL table with a pgvector column.
type PGVectorStore struct {
	pool       DBPool
	collection string
	dimensions int
}

var _ rag.VectorStore = (*PGVectorStore)(nil)

// NewPGVectorStore connects to PostgreSQL.
func NewPGVectorStore(ctx context.Context, opts PGVectorOptions) (*PGVectorStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	s, err := NewPGVectorStoreWithPool(pool, opts.Collection, opts.Dimensions)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPGVectorStoreWithPool creates a store over an existing pool.
func NewPGVectorStoreWithPool(pool DBPool, collection string, dimensions int) (*PGVectorStore, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	if !identifierPattern.MatchString(collection) {
		return nil, fmt.Errorf("invalid collection name %q", collection)
	}
	if dimensions < 0 {
		return nil, fmt.Errorf("dimensions must not be negative, got %d", dimensions)
	}
	return &PGVectorStore{pool: pool, collection: collection, dimensions: dimensions}, nil
}

// Close closes the connection pool.
func (s *PGVectorStore) Close() {
	s.pool.Close()
}

// CreateCollection creates the extension, table and section index.
func (s *PGVectorStore) CreateCollection(ctx context.Context) error {
	column := "vector"
	if s.dimensions > 0 {
		column = fmt.Sprintf("vector(%d)", s.dimensions)
	}

	query := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding %s NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_section ON %s ((metadata->>'section'));
	`, s.collection, column, s.collection, s.collection)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}
	return nil
}

// DeleteCollection drops the table.
func (s *PGVectorStore) DeleteCollection(ctx context.Context) error {
	query := fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.collection)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert inserts chunks, overwriting rows with the same ID.
func (s *PGVectorStore) Upsert(ctx context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	if err := validateUpsert(chunks, vectors); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4::vector)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
	`, s.collection)

	for i, c := range chunks {
		metadata := c.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}

		if _, err := s.pool.Exec(ctx, query, chunkID(c), c.Content, metadataJSON, vectorLiteral(vectors[i])); err != nil {
			return fmt.Errorf("failed to upsert chunk %d: %w", i, err)
		}
	}
	return nil
}

// SimilaritySearch ranks rows by cosine distance, filtering with JSONB containment.
func (s *PGVectorStore) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]any) ([]rag.Chunk, error) {
	if err := validateK(k); err != nil {
		return nil, err
	}

	if filter == nil {
		filter = map[string]any{}
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal filter: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1::vector) AS score
		FROM %s
		WHERE metadata @> $2::jsonb
		ORDER BY embedding <=> $1::vector
		LIMIT $3
	`, s.collection)

	rows, err := s.pool.Query(ctx, query, vectorLiteral(vector), filterJSON, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", s.collection, err)
	}
	defer rows.Close()

	var chunks []rag.Chunk
	for rows.Next() {
		var c rag.Chunk
		var metadataJSON []byte
		if err := rows.Scan(&c.ID, &c.Content, &metadataJSON, &c.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return chunks, nil
}

// vectorLiteral formats v in pgvector's text form, e.g. "[0.1,0.2]".
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
