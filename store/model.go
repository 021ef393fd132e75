package store

import (
	"encoding/json"
	"time"
)

// MaxVersions bounds a document's version history. The oldest version
// is evicted first once the bound is exceeded.
const MaxVersions = 10

// EmptyContent is the content a freshly created document starts with
// (an empty Quill delta).
var EmptyContent = json.RawMessage(`{"ops":[]}`)

// Version is an immutable point-in-time snapshot of document content.
type Version struct {
	Content   json.RawMessage `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	Author    string          `json:"author"`
}

// Document is the persisted record for one collaborative document.
// Content and deltas are opaque JSON; the server never interprets them
// beyond byte equality and serialized length.
type Document struct {
	ID       string          `json:"id"`
	Content  json.RawMessage `json:"content"`
	Versions []Version       `json:"versions"`
}
