package store

// ConversationKind distinguishes one-on-one chats from company-wide
// announcement channels.
type ConversationKind string

const (
	KindDirect    ConversationKind = "direct"
	KindBroadcast ConversationKind = "broadcast"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// ConnectionState is the client's view of the real-time connection.
type ConnectionState string

const (
	ConnOffline      ConnectionState = "offline"
	ConnConnecting   ConnectionState = "connecting"
	ConnOnline       ConnectionState = "online"
	ConnReconnecting ConnectionState = "reconnecting"
	ConnFailed       ConnectionState = "failed"
)

// Conversation is a synced chat thread.
type Conversation struct {
	ID                 string
	Name               string
	Kind               ConversationKind
	LastMessagePreview string
	LastMessageAt      int64 // unix millis
	UnreadCount        int
	ParticipantIDs     []string
}

// Message is a single chat message. Before server confirmation the ID is a
// locally generated temporary identifier.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string
	Body           string
	Status         MessageStatus
	FromMe         bool
	Timestamp      int64 // unix millis
}

// Participant is a directory entry eligible for chat.
type Participant struct {
	ID          string
	DisplayName string
	Email       string
	AvatarURL   string
	Role        string
	Presence    string
}

// TypingUser records one participant composing in one conversation.
type TypingUser struct {
	ConversationID string
	UserID         string
	DisplayName    string
	StartedAt      int64 // unix millis
}
