package transport

import "github.com/hravel/huddl/internal/store"

// Wire frame types. Inbound: message, typing_start, typing_stop, ack, error.
// Outbound: subscribe, send.
const (
	frameMessage     = "message"
	frameTypingStart = "typing_start"
	frameTypingStop  = "typing_stop"
	frameAck         = "ack"
	frameError       = "error"
	frameSubscribe   = "subscribe"
	frameSend        = "send"
)

// frame is the JSON envelope exchanged over the real-time channel.
type frame struct {
	Type           string        `json:"type"`
	RequestID      string        `json:"request_id,omitempty"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Body           string        `json:"body,omitempty"`
	Message        *messageFrame `json:"message,omitempty"`
	Typing         *typingFrame  `json:"typing,omitempty"`
	Error          string        `json:"error,omitempty"`
}

type messageFrame struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	Body           string `json:"body"`
	CreatedAt      int64  `json:"created_at"` // unix millis
}

type typingFrame struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	DisplayName    string `json:"display_name"`
	StartedAt      int64  `json:"started_at"` // unix millis
}

func (f *messageFrame) toStore(selfID string) store.Message {
	return store.Message{
		ID:             f.ID,
		ConversationID: f.ConversationID,
		SenderID:       f.SenderID,
		SenderName:     f.SenderName,
		Body:           f.Body,
		Status:         store.StatusSent,
		FromMe:         selfID != "" && f.SenderID == selfID,
		Timestamp:      f.CreatedAt,
	}
}

func (f *typingFrame) toStore() store.TypingUser {
	return store.TypingUser{
		ConversationID: f.ConversationID,
		UserID:         f.UserID,
		DisplayName:    f.DisplayName,
		StartedAt:      f.StartedAt,
	}
}
