// Package presence tracks which connections are viewing which document
// and the display names they represent.
package presence

import "sync"

type entry struct {
	connID string
	name   string
}

// Tracker is the process-wide presence registry: documentId →
// (connectionId → displayName). Safe for concurrent join/leave from
// different connections.
//
// A display name appears at most once in the visible list per document.
// A second connection joining under an already-present name is still
// tracked internally (so its disconnect is accounted for) but never
// shown; disconnecting such a shadow connection leaves the visible list
// unchanged. Known quirk, kept deliberately.
type Tracker struct {
	mu    sync.Mutex
	rooms map[string][]entry
}

func NewTracker() *Tracker {
	return &Tracker{rooms: make(map[string][]entry)}
}

// Join registers the connection under the document and returns the
// current visible name list (distinct names in insertion order) for
// broadcast. The list is returned even when the name was already
// present, so new joiners still see current occupants.
func (t *Tracker) Join(docID, connID, name string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rooms[docID] = append(t.rooms[docID], entry{connID: connID, name: name})
	return t.namesLocked(docID)
}

// Leave removes the connection from whichever document tracks it and
// returns that document's ID plus the updated visible name list for
// broadcast. When the document's last connection leaves, its presence
// entry is deleted entirely. ok is false if the connection was not
// tracked (e.g. disconnect before any document join completed).
func (t *Tracker) Leave(connID string) (docID string, names []string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for docID, entries := range t.rooms {
		for i, e := range entries {
			if e.connID != connID {
				continue
			}
			t.rooms[docID] = append(entries[:i:i], entries[i+1:]...)
			if len(t.rooms[docID]) == 0 {
				delete(t.rooms, docID)
				return docID, []string{}, true
			}
			return docID, t.namesLocked(docID), true
		}
	}
	return "", nil, false
}

func (t *Tracker) namesLocked(docID string) []string {
	entries := t.rooms[docID]
	seen := make(map[string]bool, len(entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if seen[e.name] {
			continue
		}
		seen[e.name] = true
		names = append(names, e.name)
	}
	return names
}
