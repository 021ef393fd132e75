package socket

import (
	"encoding/json"
	"sync"

	"coedit/pkg/logger"
)

// Hub holds the broadcast rooms: the set of connections viewing each
// document. It also caches the room's current live content so snapshot
// timers have something to read; the cache is dropped when the last
// connection leaves.
type Hub struct {
	mu      sync.Mutex
	rooms   map[string]map[*Client]bool
	content map[string]json.RawMessage
	dirty   map[string]bool
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]bool),
		content: make(map[string]json.RawMessage),
		dirty:   make(map[string]bool),
	}
}

// Join adds the connection to the document's room.
func (h *Hub) Join(docID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[*Client]bool)
	}
	h.rooms[docID][c] = true
}

// Leave removes the connection from the document's room. When the room
// empties it is torn down along with the content cache; the final
// cached content is returned with flush=true if it was never persisted,
// so the caller can attempt one last best-effort save.
func (h *Hub) Leave(docID string, c *Client) (content json.RawMessage, flush bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[docID]
	if !ok || !room[c] {
		return nil, false
	}
	delete(room, c)
	if len(room) > 0 {
		return nil, false
	}

	content = h.content[docID]
	flush = h.dirty[docID] && content != nil
	delete(h.rooms, docID)
	delete(h.content, docID)
	delete(h.dirty, docID)
	logger.Sugar.Infof("Closed and cleaned up empty room: %s", docID)
	return content, flush
}

// Broadcast delivers data to every connection in the room, the
// originator included. Slow connections are skipped outright.
func (h *Hub) Broadcast(docID string, data []byte) {
	h.broadcast(docID, nil, data)
}

// Relay delivers data to every connection in the room except the
// originator. No transformation, no buffering, no acknowledgement.
func (h *Hub) Relay(docID string, origin *Client, data []byte) {
	h.broadcast(docID, origin, data)
}

func (h *Hub) broadcast(docID string, origin *Client, data []byte) {
	if data == nil {
		return
	}

	// Sends are non-blocking, so they happen under the lock: concurrent
	// broadcasts to one room reach every peer in the same order.
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.rooms[docID] {
		if c == origin {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Fire-and-forget: a lagging connection just misses the frame.
			logger.Sugar.Warnf("Client %s's send buffer is full, dropping frame", c.ID)
		}
	}
}

// InitContent seeds the room's live-content cache if nothing newer is
// already there, and returns the cached value.
func (h *Hub) InitContent(docID string, content json.RawMessage) json.RawMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cached, ok := h.content[docID]; ok {
		return cached
	}
	h.content[docID] = content
	return content
}

// SetContent records the room's latest live content, marking it dirty
// until a store write confirms it.
func (h *Hub) SetContent(docID string, content json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.content[docID] = content
	h.dirty[docID] = true
}

// MarkSaved clears the dirty flag, but only if the cache still holds
// exactly the content that was written.
func (h *Hub) MarkSaved(docID string, content json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if string(h.content[docID]) == string(content) {
		h.dirty[docID] = false
	}
}

// Content returns the room's current live content.
func (h *Hub) Content(docID string) (json.RawMessage, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	content, ok := h.content[docID]
	return content, ok
}
