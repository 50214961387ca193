package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/smallnest/ragchat/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGVectorStore_CreateCollection(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPGVectorStoreWithPool(mock, "", 384)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector; CREATE TABLE IF NOT EXISTS vector_store (")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.CreateCollection(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorStore_DeleteCollection(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPGVectorStoreWithPool(mock, "docs", 0)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS docs")).
		WillReturnResult(pgxmock.NewResult("DROP", 0))

	require.NoError(t, s.DeleteCollection(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorStore_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPGVectorStoreWithPool(mock, "vector_store", 2)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vector_store (id, content, metadata, embedding)")).
		WithArgs("c1", "hello", []byte(`{"section":"end"}`), "[0.5,1]").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.Upsert(context.Background(),
		[]rag.Chunk{{ID: "c1", Content: "hello", Metadata: map[string]any{rag.MetadataSection: "end"}}},
		[][]float32{{0.5, 1}},
	)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorStore_UpsertError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPGVectorStoreWithPool(mock, "vector_store", 0)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vector_store")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err = s.Upsert(context.Background(), []rag.Chunk{{ID: "c1"}}, [][]float32{{1}})
	assert.ErrorContains(t, err, "failed to upsert chunk 0: connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorStore_SimilaritySearch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPGVectorStoreWithPool(mock, "vector_store", 2)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"id", "content", "metadata", "score"}).
		AddRow("e1", "tool use", []byte(`{"section":"end","source":"post"}`), 0.93).
		AddRow("e2", "challenges", []byte(`{"section":"end"}`), 0.41)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, content, metadata, 1 - (embedding <=> $1::vector) AS score FROM vector_store WHERE metadata @> $2::jsonb")).
		WithArgs("[1,0]", []byte(`{"section":"end"}`), 3).
		WillReturnRows(rows)

	got, err := s.SimilaritySearch(context.Background(), []float32{1, 0}, 3, map[string]any{rag.MetadataSection: "end"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].ID)
	assert.Equal(t, "post", got[0].Source())
	assert.Equal(t, rag.SectionEnd, got[1].Section())
	assert.InDelta(t, 0.93, got[0].Score, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorStore_SimilaritySearchUnfiltered(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPGVectorStoreWithPool(mock, "vector_store", 0)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM vector_store WHERE metadata @> $2::jsonb")).
		WithArgs("[1]", []byte(`{}`), 4).
		WillReturnRows(pgxmock.NewRows([]string{"id", "content", "metadata", "score"}))

	got, err := s.SimilaritySearch(context.Background(), []float32{1}, 4, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPGVectorStoreWithPool_InvalidCollection(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPGVectorStoreWithPool(mock, "docs; DROP TABLE users", 0)
	assert.Error(t, err)

	_, err = NewPGVectorStoreWithPool(mock, "docs", -1)
	assert.Error(t, err)
}
