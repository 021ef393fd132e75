package socket

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"coedit/pkg/logger"
	"coedit/presence"
	"coedit/store"
	"coedit/version"
)

// defaultSaveDebounce is the quiet window that coalesces bursts of
// save-document events into a single store write.
const defaultSaveDebounce = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The editor frontend runs on a different origin during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server wires websocket connections into document sessions.
type Server struct {
	Hub      *Hub
	Store    store.DocumentStore
	Presence *presence.Tracker
	Engine   *version.Engine

	// SaveDebounce can be lowered in tests.
	SaveDebounce time.Duration
}

func NewServer(st store.DocumentStore, tracker *presence.Tracker, engine *version.Engine) *Server {
	return &Server{
		Hub:          NewHub(),
		Store:        st,
		Presence:     tracker,
		Engine:       engine,
		SaveDebounce: defaultSaveDebounce,
	}
}

// Client represents a single websocket connection.
type Client struct {
	ID string

	server *Server
	conn   *websocket.Conn
	send   chan []byte

	session *Session // nil until get-document completes
}

// ServeWs upgrades the HTTP request to a websocket connection and
// starts its read/write pumps.
func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		ID:     newConnID(),
		server: s,
		conn:   conn,
		send:   make(chan []byte, 256),
	}

	go client.writePump()
	go client.readPump()
}

func newConnID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "conn-unknown"
	}
	return hex.EncodeToString(b)
}

func (c *Client) readPump() {
	defer func() {
		c.disconnect()
		c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			continue
		}

		if msg.Event == EventGetDocument {
			c.handleGetDocument(msg.Payload)
			continue
		}
		if c.session == nil {
			logger.Sugar.Warnf("Client %s sent %s before joining a document", c.ID, msg.Event)
			continue
		}
		c.session.Handle(msg)
	}
}

func (c *Client) handleGetDocument(payload json.RawMessage) {
	if c.session != nil {
		logger.Sugar.Warnf("Client %s already joined document %s", c.ID, c.session.docID)
		return
	}

	var req GetDocumentPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		logger.Sugar.Errorf("Error unmarshalling get-document payload: %v", err)
		return
	}
	if req.DocumentID == "" {
		logger.Sugar.Warnf("Client %s requested a document with no ID", c.ID)
		return
	}
	if req.Username == "" {
		req.Username = "Anonymous"
	}

	c.session = c.server.startSession(c, req.DocumentID, req.Username)
}

func (c *Client) disconnect() {
	if c.session != nil {
		c.session.Close()
	} else if docID, names, ok := c.server.Presence.Leave(c.ID); ok {
		// Disconnect before any document join completed: presence may
		// still be untracked, which is a no-op, not an error.
		c.server.Hub.Broadcast(docID, encode(EventUpdateUserList, names))
	}
	// Safe to close only once the client has left its room: broadcasts
	// deliver under the room lock, so none can still target this
	// channel. writePump drains it and sends the close frame.
	close(c.send)
}

func (c *Client) writePump() {
	// Ping every 30s to keep the connection alive and detect drops.
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
