package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
)

// ErrNotFound is returned when an operation targets a document that
// does not exist.
var ErrNotFound = errors.New("document not found")

// DocumentStore abstracts document persistence.
// Implementations: PostgresStore, MemoryStore.
type DocumentStore interface {
	// FindOrCreate fetches the document by ID, creating it with empty
	// content and empty history if absent. Creation is race-free:
	// concurrent calls for the same ID yield exactly one stored document.
	FindOrCreate(ctx context.Context, id string) (*Document, error)

	// UpdateContent overwrites the document's current content. It does
	// not touch the version history. Best-effort cache-style save.
	UpdateContent(ctx context.Context, id string, content json.RawMessage) error

	// AppendVersion appends a snapshot to the document's history,
	// evicting the oldest entry beyond MaxVersions. Appending content
	// equal to the newest existing version (per ContentEqual) is a
	// no-op; appended
	// reports whether the history actually changed. The returned list
	// is the authoritative stored history after the call.
	AppendVersion(ctx context.Context, id string, v Version) (versions []Version, appended bool, err error)
}

// ContentEqual reports deep equality of two opaque content values.
// JSONB storage normalizes whitespace and key order on round-trip, so
// comparing raw bytes would call semantically identical content
// different.
func ContentEqual(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var av, bv interface{}
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}

// appendBounded applies the shared history rules: duplicate-snapshot
// suppression against the newest entry, then FIFO eviction beyond
// MaxVersions.
func appendBounded(versions []Version, v Version) ([]Version, bool) {
	if n := len(versions); n > 0 && ContentEqual(versions[n-1].Content, v.Content) {
		return versions, false
	}
	versions = append(versions, v)
	if len(versions) > MaxVersions {
		versions = versions[len(versions)-MaxVersions:]
	}
	return versions, true
}
