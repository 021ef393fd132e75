package socket

import (
	"encoding/json"

	"coedit/pkg/logger"
)

// Event names exchanged over the websocket.
const (
	EventGetDocument            = "get-document"
	EventLoadDocument           = "load-document"
	EventUpdateUserList         = "update-user-list"
	EventUpdateVersions         = "update-versions"
	EventSendChanges            = "send-changes"
	EventReceiveChanges         = "receive-changes"
	EventSaveDocument           = "save-document"
	EventSaveVersion            = "save-version"
	EventRestoreVersion         = "restore-version"
	EventReceiveRestoredVersion = "receive-restored-version"
)

// Message is one websocket frame. Payload stays opaque until the event
// type is known.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// GetDocumentPayload opens a document session.
type GetDocumentPayload struct {
	DocumentID string `json:"documentId"`
	Username   string `json:"username"`
}

// SaveVersionPayload asks the versioning engine to evaluate a snapshot.
// DocumentID and Author are overwritten with server-authoritative
// session values before use.
type SaveVersionPayload struct {
	DocumentID string          `json:"documentId"`
	Content    json.RawMessage `json:"content"`
	Author     string          `json:"author"`
}

// RestoreVersionPayload replaces live content for the whole room.
type RestoreVersionPayload struct {
	DocumentID string          `json:"documentId"`
	Content    json.RawMessage `json:"content"`
}

func encode(event string, payload interface{}) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s payload: %v", event, err)
		return nil
	}
	data, err := json.Marshal(Message{Event: event, Payload: raw})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s message: %v", event, err)
		return nil
	}
	return data
}
