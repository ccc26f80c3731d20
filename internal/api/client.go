package api

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hravel/huddl/internal/store"
	"go.uber.org/zap"
)

// StatusError is returned for non-2xx backend responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

// Client talks to the HR backend's chat REST surface. All list responses are
// normalized into canonical store types before they leave this package; both
// the current camelCase shape and the legacy snake_case shape are accepted.
type Client struct {
	http     *resty.Client
	selfID   string
	selfName string
	logger   *zap.Logger
}

// Options configures a backend client.
type Options struct {
	BaseURL        string
	Token          string
	UserID         string
	UserName       string
	RequestTimeout time.Duration
}

// New creates a backend client.
func New(opts Options, logger *zap.Logger) *Client {
	r := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.RequestTimeout).
		SetHeader("Accept", "application/json")
	if opts.Token != "" {
		r.SetAuthToken(opts.Token)
	}
	return &Client{
		http:     r,
		selfID:   opts.UserID,
		selfName: opts.UserName,
		logger:   logger,
	}
}

// SelfID returns the authenticated viewer's participant id.
func (c *Client) SelfID() string { return c.selfID }

// SelfName returns the authenticated viewer's display name.
func (c *Client) SelfName() string { return c.selfName }

// ListConversations fetches the viewer's conversation list.
func (c *Client) ListConversations(ctx context.Context) ([]store.Conversation, error) {
	var payload []conversationPayload
	if err := c.get(ctx, "/conversations", &payload); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]store.Conversation, 0, len(payload))
	for _, p := range payload {
		out = append(out, normalizeConversation(p))
	}
	return out, nil
}

// ListParticipants fetches the chat participant directory.
func (c *Client) ListParticipants(ctx context.Context) ([]store.Participant, error) {
	var payload []participantPayload
	if err := c.get(ctx, "/participants", &payload); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	out := make([]store.Participant, 0, len(payload))
	for _, p := range payload {
		out = append(out, normalizeParticipant(p))
	}
	return out, nil
}

// ListMessages fetches the message history for a conversation.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	var payload []messagePayload
	if err := c.get(ctx, "/conversations/"+conversationID+"/messages", &payload); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]store.Message, 0, len(payload))
	for _, p := range payload {
		out = append(out, normalizeMessage(p, c.selfID))
	}
	return out, nil
}

// SendMessage posts a message body and returns the server-confirmed record.
func (c *Client) SendMessage(ctx context.Context, conversationID, body string) (store.Message, error) {
	var payload messagePayload
	err := c.post(ctx, "/conversations/"+conversationID+"/messages", map[string]string{"body": body}, &payload)
	if err != nil {
		return store.Message{}, fmt.Errorf("send message: %w", err)
	}
	msg := normalizeMessage(payload, c.selfID)
	if msg.ConversationID == "" {
		msg.ConversationID = conversationID
	}
	return msg, nil
}

// CreateDirectConversation creates (or returns the existing) direct
// conversation with the given participant.
func (c *Client) CreateDirectConversation(ctx context.Context, participantID string) (store.Conversation, error) {
	var payload conversationPayload
	err := c.post(ctx, "/conversations/direct", map[string]string{"participant_id": participantID}, &payload)
	if err != nil {
		return store.Conversation{}, fmt.Errorf("create direct conversation: %w", err)
	}
	return normalizeConversation(payload), nil
}

// MarkRead records a read acknowledgement for the conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	if err := c.post(ctx, "/conversations/"+conversationID+"/read", nil, nil); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// TypingStart signals that the viewer started composing.
func (c *Client) TypingStart(ctx context.Context, conversationID string) error {
	err := c.post(ctx, "/conversations/"+conversationID+"/typing", map[string]string{"action": "start"}, nil)
	if err != nil {
		return fmt.Errorf("typing start: %w", err)
	}
	return nil
}

// TypingStop signals that the viewer stopped composing.
func (c *Client) TypingStop(ctx context.Context, conversationID string) error {
	err := c.post(ctx, "/conversations/"+conversationID+"/typing", map[string]string{"action": "stop"}, nil)
	if err != nil {
		return fmt.Errorf("typing stop: %w", err)
	}
	return nil
}

// TypingUsers fetches who is currently composing in the conversation.
func (c *Client) TypingUsers(ctx context.Context, conversationID string) ([]store.TypingUser, error) {
	var payload []typingPayload
	if err := c.get(ctx, "/conversations/"+conversationID+"/typing", &payload); err != nil {
		return nil, fmt.Errorf("typing users: %w", err)
	}
	out := make([]store.TypingUser, 0, len(payload))
	for _, p := range payload {
		out = append(out, normalizeTyping(p, conversationID))
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req := c.http.R().SetContext(ctx)
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Get(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &StatusError{Code: resp.StatusCode(), Body: string(resp.Body())}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Post(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &StatusError{Code: resp.StatusCode(), Body: string(resp.Body())}
	}
	return nil
}
