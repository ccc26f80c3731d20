package client

import (
	"context"

	"github.com/hravel/huddl/internal/fetch"
	"github.com/hravel/huddl/internal/store"
	"github.com/hravel/huddl/internal/transport"
	"github.com/hravel/huddl/internal/typing"
)

// Client is the single surface the UI talks to. Reads come from store
// snapshots; writes are delegated to the fetch orchestrator and typing
// manager.
type Client struct {
	store     *store.Store
	fetcher   *fetch.Orchestrator
	typing    *typing.Manager
	transport transport.Transport
}

// New assembles the facade. Wired by fx.
func New(st *store.Store, fetcher *fetch.Orchestrator, tm *typing.Manager, tr transport.Transport) *Client {
	return &Client{store: st, fetcher: fetcher, typing: tm, transport: tr}
}

// Snapshot returns the current engine state.
func (c *Client) Snapshot() store.Snapshot {
	return c.store.Snapshot()
}

// Subscribe registers a snapshot listener and returns its unsubscribe
// function.
func (c *Client) Subscribe(fn func(store.Snapshot)) func() {
	return c.store.Subscribe(fn)
}

// OpenConversation makes a conversation active: its unread badge is cleared
// locally and on the server, the live transport tracks it, and its history
// and typing set load in the background.
func (c *Client) OpenConversation(ctx context.Context, conversationID string) {
	c.store.SetActiveConversation(conversationID)
	c.transport.Subscribe(conversationID)
	c.fetcher.MarkConversationRead(ctx, conversationID)

	go func() {
		_ = c.fetcher.LoadMessages(ctx, conversationID, false)
		_, _ = c.typing.TypingUsers(ctx, conversationID)
	}()
}

// SendMessage sends text to a conversation and returns the optimistic
// message id.
func (c *Client) SendMessage(ctx context.Context, conversationID, text string) (string, error) {
	return c.fetcher.SendMessage(ctx, conversationID, text)
}

// RetrySend re-sends a failed message.
func (c *Client) RetrySend(ctx context.Context, tempID string) error {
	return c.fetcher.RetrySend(ctx, tempID)
}

// StartDirectConversation opens (or resolves) a one-to-one conversation.
func (c *Client) StartDirectConversation(ctx context.Context, participantID string) (store.Conversation, error) {
	return c.fetcher.StartDirectConversation(ctx, participantID)
}

// LoadConversations fetches the conversation list.
func (c *Client) LoadConversations(ctx context.Context) error {
	return c.fetcher.LoadConversations(ctx)
}

// LoadParticipants fetches the participant directory.
func (c *Client) LoadParticipants(ctx context.Context) error {
	return c.fetcher.LoadParticipants(ctx)
}

// Refresh force-reloads everything on screen.
func (c *Client) Refresh(ctx context.Context) error {
	return c.fetcher.Refresh(ctx)
}

// StartTyping reports viewer keystrokes in a conversation.
func (c *Client) StartTyping(ctx context.Context, conversationID string) {
	c.typing.StartTyping(ctx, conversationID)
}

// StopTyping ends the viewer's typing state (message sent or input cleared).
func (c *Client) StopTyping(ctx context.Context, conversationID string) {
	c.typing.StopTyping(ctx, conversationID)
}

// Destroy tears down the store: pending notifications are cancelled and
// subscribers dropped. Called once at logout; the fx lifecycle does this for
// the standard wiring.
func (c *Client) Destroy() {
	c.store.Destroy()
}
