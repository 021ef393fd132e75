package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"coedit/pkg/logger"
	"coedit/store"
)

// Session wires one connection into a document room for the lifetime of
// the connection: presence registration, state replay, delta relay,
// debounced content saves, periodic snapshots, and restores. All store
// failures are logged and swallowed; the connection survives degraded.
type Session struct {
	client   *Client
	server   *Server
	docID    string
	username string

	mu           sync.Mutex
	saveTimer    *time.Timer
	pendingSave  json.RawMessage
	lastSnapshot json.RawMessage
	closed       bool
	done         chan struct{}
}

// startSession performs the join-document handshake: room membership,
// presence broadcast, load-or-create, state replay to the joining
// connection, and the per-session snapshot timer.
func (s *Server) startSession(c *Client, docID, username string) *Session {
	sess := &Session{
		client:   c,
		server:   s,
		docID:    docID,
		username: username,
		done:     make(chan struct{}),
	}

	s.Hub.Join(docID, c)

	names := s.Presence.Join(docID, c.ID, username)
	s.Hub.Broadcast(docID, encode(EventUpdateUserList, names))

	ctx := context.Background()
	doc, err := s.Store.FindOrCreate(ctx, docID)
	if err != nil {
		// Editing continues against empty content; saves may catch up later.
		logger.Sugar.Errorf("Failed to load document %s (or not found): %v", docID, err)
		doc = &store.Document{ID: docID, Content: store.EmptyContent}
	}

	// A live room may hold edits newer than the store (unsaved debounce
	// window); joiners get the cached content, not the persisted copy.
	current := s.Hub.InitContent(docID, doc.Content)
	sess.send(encode(EventLoadDocument, current))
	sess.send(encode(EventUpdateVersions, versionList(doc.Versions)))

	sess.lastSnapshot = current

	go sess.snapshotLoop()

	return sess
}

// versionList keeps the wire shape of an empty history a JSON array
// rather than null.
func versionList(versions []store.Version) []store.Version {
	if versions == nil {
		return []store.Version{}
	}
	return versions
}

// Handle dispatches one inbound event for this session.
func (s *Session) Handle(msg Message) {
	switch msg.Event {
	case EventSendChanges:
		s.handleSendChanges(msg.Payload)
	case EventSaveDocument:
		s.handleSaveDocument(msg.Payload)
	case EventSaveVersion:
		s.handleSaveVersion(msg.Payload)
	case EventRestoreVersion:
		s.handleRestoreVersion(msg.Payload)
	default:
		logger.Sugar.Warnf("Client %s sent unknown event %q", s.client.ID, msg.Event)
	}
}

// handleSendChanges relays the delta verbatim to room peers, never back
// to the originator.
func (s *Session) handleSendChanges(delta json.RawMessage) {
	s.server.Hub.Relay(s.docID, s.client, encode(EventReceiveChanges, delta))
}

// handleSaveDocument records the latest live content and (re)arms the
// debounce timer; only the last event in a quiet window hits the store.
func (s *Session) handleSaveDocument(content json.RawMessage) {
	s.server.Hub.SetContent(s.docID, content)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pendingSave = content
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(s.server.SaveDebounce, s.flushSave)
}

func (s *Session) flushSave() {
	s.mu.Lock()
	if s.closed || s.pendingSave == nil {
		s.mu.Unlock()
		return
	}
	content := s.pendingSave
	s.pendingSave = nil
	s.mu.Unlock()

	if err := s.server.Store.UpdateContent(context.Background(), s.docID, content); err != nil {
		// Best-effort save; current content is allowed to lag.
		logger.Sugar.Errorf("Failed to save doc %s: %v", s.docID, err)
		return
	}
	s.server.Hub.MarkSaved(s.docID, content)
}

// handleSaveVersion lets the engine evaluate an explicit snapshot
// request. DocumentID and author come from the session, not the wire.
func (s *Session) handleSaveVersion(payload json.RawMessage) {
	var req SaveVersionPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		logger.Sugar.Errorf("Error unmarshalling save-version payload: %v", err)
		return
	}

	versions, appended, err := s.server.Engine.Append(context.Background(), s.docID, req.Content, s.username)
	if err != nil {
		logger.Sugar.Errorf("Failed to save version for doc %s: %v", s.docID, err)
		return
	}
	if !appended {
		return
	}

	s.mu.Lock()
	s.lastSnapshot = req.Content
	s.mu.Unlock()

	s.server.Hub.Broadcast(s.docID, encode(EventUpdateVersions, versions))
}

// handleRestoreVersion broadcasts the restored content to the whole
// room, requester included, and persists it as current content. The
// history is left untouched.
func (s *Session) handleRestoreVersion(payload json.RawMessage) {
	var req RestoreVersionPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		logger.Sugar.Errorf("Error unmarshalling restore-version payload: %v", err)
		return
	}

	s.server.Hub.Broadcast(s.docID, encode(EventReceiveRestoredVersion, req.Content))
	s.server.Hub.SetContent(s.docID, req.Content)

	if err := s.server.Engine.Restore(context.Background(), s.docID, req.Content); err != nil {
		logger.Sugar.Errorf("Failed to persist restored content for doc %s: %v", s.docID, err)
		return
	}
	s.server.Hub.MarkSaved(s.docID, req.Content)

	// The restored content is the new baseline; without this the next
	// tick would re-snapshot it.
	s.mu.Lock()
	s.lastSnapshot = req.Content
	s.mu.Unlock()
}

// snapshotLoop periodically offers the room's live content to the
// versioning engine. One loop per connection-document pairing; it must
// not outlive the session.
func (s *Session) snapshotLoop() {
	ticker := time.NewTicker(s.server.Engine.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.snapshotTick()
		case <-s.done:
			return
		}
	}
}

func (s *Session) snapshotTick() {
	current, ok := s.server.Hub.Content(s.docID)
	if !ok {
		return
	}

	s.mu.Lock()
	last := s.lastSnapshot
	s.mu.Unlock()

	versions, appended, err := s.server.Engine.Snapshot(context.Background(), s.docID, current, last, s.username)
	if err != nil {
		logger.Sugar.Errorf("Failed to snapshot doc %s: %v", s.docID, err)
		return
	}
	if !appended {
		return
	}

	s.mu.Lock()
	s.lastSnapshot = current
	s.mu.Unlock()

	s.server.Hub.Broadcast(s.docID, encode(EventUpdateVersions, versions))
}

// Close tears the session down on disconnect: both timers are stopped
// before any further state mutation, then presence is unregistered and
// the updated name list broadcast to the room.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.pendingSave = nil
	close(s.done)
	s.mu.Unlock()

	if docID, names, ok := s.server.Presence.Leave(s.client.ID); ok {
		s.server.Hub.Broadcast(docID, encode(EventUpdateUserList, names))
	}

	if content, flush := s.server.Hub.Leave(s.docID, s.client); flush {
		if err := s.server.Store.UpdateContent(context.Background(), s.docID, content); err != nil {
			logger.Sugar.Errorf("Failed to save doc %s on close: %v", s.docID, err)
		}
	}
}

func (s *Session) send(data []byte) {
	if data == nil {
		return
	}
	select {
	case s.client.send <- data:
	default:
		logger.Sugar.Warnf("Client %s's send buffer was full during session setup", s.client.ID)
	}
}
