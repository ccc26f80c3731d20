package api

import (
	"time"

	"github.com/hravel/huddl/internal/store"
)

// The backend is mid-migration: the current API speaks camelCase, the legacy
// endpoints still answer in snake_case with different field names. Payload
// structs carry both; normalization picks whichever is populated and falls
// back to defined defaults so undefined values never reach the store.

type conversationPayload struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	ChatName       string   `json:"chat_name"` // legacy
	Kind           string   `json:"kind"`
	Type           string   `json:"type"` // legacy
	LastMessage    string   `json:"lastMessage"`
	LastMsg        string   `json:"last_message"` // legacy
	LastMessageAt  any      `json:"lastMessageAt"`
	LastActivity   any      `json:"last_message_at"` // legacy
	UnreadCount    int      `json:"unreadCount"`
	Unread         int      `json:"unread_count"` // legacy
	ParticipantIDs []string `json:"participantIds"`
	Members        []string `json:"participant_ids"` // legacy
}

type messagePayload struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	ChatID         string `json:"conversation_id"` // legacy
	SenderID       string `json:"senderId"`
	Sender         string `json:"sender_id"` // legacy
	SenderName     string `json:"senderName"`
	SenderNameOld  string `json:"sender_name"` // legacy
	Body           string `json:"body"`
	Msg            string `json:"msg"` // legacy
	CreatedAt      any    `json:"createdAt"`
	Created        any    `json:"created_at"` // legacy
	DeliveredAt    any    `json:"deliveredAt"`
	ReadAt         any    `json:"readAt"`
}

type participantPayload struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Name        string `json:"display_name"` // legacy
	Email       string `json:"email"`
	AvatarURL   string `json:"avatarUrl"`
	Avatar      string `json:"avatar_url"` // legacy
	Role        string `json:"role"`
	Presence    string `json:"presence"`
}

type typingPayload struct {
	UserID      string `json:"userId"`
	User        string `json:"user_id"` // legacy
	DisplayName string `json:"displayName"`
	Name        string `json:"display_name"` // legacy
	StartedAt   any    `json:"startedAt"`
	Started     any    `json:"started_at"` // legacy
}

func normalizeConversation(p conversationPayload) store.Conversation {
	c := store.Conversation{
		ID:                 p.ID,
		Name:               firstNonEmpty(p.Name, p.ChatName, "Unknown Chat"),
		Kind:               store.KindDirect,
		LastMessagePreview: firstNonEmpty(p.LastMessage, p.LastMsg, ""),
		LastMessageAt:      parseTimestamp(firstNonNil(p.LastMessageAt, p.LastActivity)),
		UnreadCount:        p.UnreadCount,
		ParticipantIDs:     p.ParticipantIDs,
	}
	switch firstNonEmpty(p.Kind, p.Type, "") {
	case "broadcast", "announcement":
		c.Kind = store.KindBroadcast
	}
	if c.UnreadCount == 0 {
		c.UnreadCount = p.Unread
	}
	if c.UnreadCount < 0 {
		c.UnreadCount = 0
	}
	if len(c.ParticipantIDs) == 0 {
		c.ParticipantIDs = p.Members
	}
	return c
}

func normalizeMessage(p messagePayload, selfID string) store.Message {
	senderID := firstNonEmpty(p.SenderID, p.Sender, "")
	m := store.Message{
		ID:             p.ID,
		ConversationID: firstNonEmpty(p.ConversationID, p.ChatID, ""),
		SenderID:       senderID,
		SenderName:     firstNonEmpty(p.SenderName, p.SenderNameOld, "Unknown"),
		Body:           firstNonEmpty(p.Body, p.Msg, ""),
		Timestamp:      parseTimestamp(firstNonNil(p.CreatedAt, p.Created)),
		FromMe:         selfID != "" && senderID == selfID,
	}
	switch {
	case parseTimestamp(p.ReadAt) != 0:
		m.Status = store.StatusRead
	case parseTimestamp(p.DeliveredAt) != 0:
		m.Status = store.StatusDelivered
	default:
		m.Status = store.StatusSent
	}
	return m
}

func normalizeParticipant(p participantPayload) store.Participant {
	return store.Participant{
		ID:          p.ID,
		DisplayName: firstNonEmpty(p.DisplayName, p.Name, "Unknown"),
		Email:       p.Email,
		AvatarURL:   firstNonEmpty(p.AvatarURL, p.Avatar, ""),
		Role:        p.Role,
		Presence:    p.Presence,
	}
}

func normalizeTyping(p typingPayload, conversationID string) store.TypingUser {
	return store.TypingUser{
		ConversationID: conversationID,
		UserID:         firstNonEmpty(p.UserID, p.User, ""),
		DisplayName:    firstNonEmpty(p.DisplayName, p.Name, "Unknown"),
		StartedAt:      parseTimestamp(firstNonNil(p.StartedAt, p.Started)),
	}
}

// parseTimestamp accepts RFC3339 strings, unix seconds, or unix millis and
// returns unix millis; anything unparseable is 0.
func parseTimestamp(v any) int64 {
	switch t := v.(type) {
	case float64:
		// Heuristic: values past ~2001 in millis are > 1e12; legacy
		// endpoints send seconds.
		if t > 1e12 {
			return int64(t)
		}
		return int64(t * 1000)
	case string:
		if t == "" {
			return 0
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts.UnixMilli()
		}
		return 0
	default:
		return 0
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonNil(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
