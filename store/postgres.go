package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Schema is the table backing PostgresStore. Version history lives in a
// JSONB column mirroring the wire shape, so a document round-trips as a
// single row.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	content    JSONB NOT NULL,
	versions   JSONB NOT NULL DEFAULT '[]',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore is a Postgres-backed implementation of DocumentStore.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the documents table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

func (s *PostgresStore) FindOrCreate(ctx context.Context, id string) (*Document, error) {
	// First writer wins; concurrent callers fall through to the SELECT
	// and read whichever row landed.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, content, versions, updated_at) VALUES ($1, $2, '[]', NOW())
		 ON CONFLICT (id) DO NOTHING`,
		id, string(EmptyContent))
	if err != nil {
		return nil, fmt.Errorf("create document %q: %w", id, err)
	}

	var content, versions []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT content, versions FROM documents WHERE id = $1`, id).
		Scan(&content, &versions)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load document %q: %w", id, err)
	}

	doc := &Document{ID: id, Content: content}
	if err := json.Unmarshal(versions, &doc.Versions); err != nil {
		return nil, fmt.Errorf("decode versions for document %q: %w", id, err)
	}
	return doc, nil
}

func (s *PostgresStore) UpdateContent(ctx context.Context, id string, content json.RawMessage) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET content = $1, updated_at = NOW() WHERE id = $2`,
		string(content), id)
	if err != nil {
		return fmt.Errorf("update content for document %q: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendVersion(ctx context.Context, id string, v Version) ([]Version, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	// Reload the authoritative list under a row lock; appending against
	// a stale in-memory copy would lose concurrent snapshots.
	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT versions FROM documents WHERE id = $1 FOR UPDATE`, id).
		Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("load versions for document %q: %w", id, err)
	}

	var versions []Version
	if err := json.Unmarshal(raw, &versions); err != nil {
		return nil, false, fmt.Errorf("decode versions for document %q: %w", id, err)
	}

	versions, appended := appendBounded(versions, v)
	if !appended {
		return versions, false, nil
	}

	encoded, err := json.Marshal(versions)
	if err != nil {
		return nil, false, fmt.Errorf("encode versions for document %q: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET versions = $1, updated_at = NOW() WHERE id = $2`,
		string(encoded), id); err != nil {
		return nil, false, fmt.Errorf("store versions for document %q: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return versions, true, nil
}
