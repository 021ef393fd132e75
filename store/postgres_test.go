package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresFindOrCreate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents (id, content, versions, updated_at) VALUES ($1, $2, '[]', NOW())`)).
		WithArgs("doc1", string(EmptyContent)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT content, versions FROM documents WHERE id = $1`)).
		WithArgs("doc1").
		WillReturnRows(sqlmock.NewRows([]string{"content", "versions"}).
			AddRow([]byte(`{"ops":[]}`), []byte(`[]`)))

	doc, err := s.FindOrCreate(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, "doc1", doc.ID)
	assert.JSONEq(t, `{"ops":[]}`, string(doc.Content))
	assert.Empty(t, doc.Versions)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindOrCreateExisting(t *testing.T) {
	s, mock := newMockStore(t)

	// The insert conflicts silently; the select reads the winner's row.
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents`)).
		WithArgs("doc1", string(EmptyContent)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT content, versions FROM documents WHERE id = $1`)).
		WithArgs("doc1").
		WillReturnRows(sqlmock.NewRows([]string{"content", "versions"}).
			AddRow([]byte(`{"ops":[{"insert":"hi"}]}`),
				[]byte(`[{"content":{"ops":[{"insert":"hi"}]},"timestamp":"2026-01-01T00:00:00Z","author":"Alice"}]`)))

	doc, err := s.FindOrCreate(context.Background(), "doc1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ops":[{"insert":"hi"}]}`, string(doc.Content))
	require.Len(t, doc.Versions, 1)
	assert.Equal(t, "Alice", doc.Versions[0].Author)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateContent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents SET content = $1, updated_at = NOW() WHERE id = $2`)).
		WithArgs(`{"ops":[{"insert":"hello"}]}`, "doc1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateContent(context.Background(), "doc1", []byte(`{"ops":[{"insert":"hello"}]}`))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateContentNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents SET content = $1`)).
		WithArgs(`{"ops":[]}`, "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateContent(context.Background(), "nope", []byte(`{"ops":[]}`))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppendVersion(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT versions FROM documents WHERE id = $1 FOR UPDATE`)).
		WithArgs("doc1").
		WillReturnRows(sqlmock.NewRows([]string{"versions"}).AddRow([]byte(`[]`)))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents SET versions = $1, updated_at = NOW() WHERE id = $2`)).
		WithArgs(sqlmock.AnyArg(), "doc1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	versions, appended, err := s.AppendVersion(context.Background(), "doc1",
		Version{Content: []byte(`{"ops":[{"insert":"v1"}]}`), Author: "Alice"})
	require.NoError(t, err)
	assert.True(t, appended)
	require.Len(t, versions, 1)
	assert.Equal(t, "Alice", versions[0].Author)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppendVersionDuplicateSkipsWrite(t *testing.T) {
	s, mock := newMockStore(t)

	existing := `[{"content":{"ops":[{"insert":"same"}]},"timestamp":"2026-01-01T00:00:00Z","author":"Alice"}]`
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT versions FROM documents WHERE id = $1 FOR UPDATE`)).
		WithArgs("doc1").
		WillReturnRows(sqlmock.NewRows([]string{"versions"}).AddRow([]byte(existing)))
	mock.ExpectRollback()

	versions, appended, err := s.AppendVersion(context.Background(), "doc1",
		Version{Content: []byte(`{"ops":[{"insert":"same"}]}`), Author: "Bob"})
	require.NoError(t, err)
	assert.False(t, appended)
	require.Len(t, versions, 1)
	assert.Equal(t, "Alice", versions[0].Author)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppendVersionDuplicateAfterJSONBNormalization(t *testing.T) {
	s, mock := newMockStore(t)

	// Postgres rewrites jsonb with spaces after colons and commas; the
	// reloaded newest entry must still match the client's compact bytes.
	existing := `[{"content": {"ops": [{"insert": "same"}]}, "timestamp": "2026-01-01T00:00:00Z", "author": "Alice"}]`
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT versions FROM documents WHERE id = $1 FOR UPDATE`)).
		WithArgs("doc1").
		WillReturnRows(sqlmock.NewRows([]string{"versions"}).AddRow([]byte(existing)))
	mock.ExpectRollback()

	versions, appended, err := s.AppendVersion(context.Background(), "doc1",
		Version{Content: []byte(`{"ops":[{"insert":"same"}]}`), Author: "Bob"})
	require.NoError(t, err)
	assert.False(t, appended)
	require.Len(t, versions, 1)
	assert.Equal(t, "Alice", versions[0].Author)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppendVersionNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT versions FROM documents WHERE id = $1 FOR UPDATE`)).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := s.AppendVersion(context.Background(), "nope", Version{Content: []byte(`{"ops":[]}`)})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEnsureSchema(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS documents").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
