// Package reconcile manages the lifecycle of locally-created messages from
// optimistic insertion through server confirmation or failure, and keeps
// inbound delivery idempotent when the same utterance arrives over more than
// one path.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hravel/huddl/internal/bus"
	"github.com/hravel/huddl/internal/store"
	"go.uber.org/zap"
)

// DefaultEchoWindow is the tolerance for matching a broadcast echo of the
// viewer's own message against its optimistic entry. Content matching inside
// a time window is a heuristic: two genuinely distinct messages with the same
// body inside the window would merge. Kept small, and swappable for a
// server-assigned idempotency key later.
const DefaultEchoWindow = 5 * time.Second

// Config tunes the engine.
type Config struct {
	SelfID     string
	SelfName   string
	EchoWindow time.Duration
}

// Engine owns the optimistic-message state machine:
// sending -> confirmed (temp id replaced by the server record) or
// sending -> failed (explicit retry re-enters the pipeline).
type Engine struct {
	store  *store.Store
	bus    *bus.Bus
	logger *zap.Logger

	selfID     string
	selfName   string
	echoWindow time.Duration
	now        func() int64

	mu      sync.Mutex
	pending map[string]draft // temp id -> original submission
	retries map[string]int
	cancel  context.CancelFunc
}

type draft struct {
	ConversationID string
	Body           string
	Timestamp      int64
}

// NewEngine creates a reconciliation engine.
func NewEngine(st *store.Store, b *bus.Bus, cfg Config, logger *zap.Logger) *Engine {
	if cfg.EchoWindow <= 0 {
		cfg.EchoWindow = DefaultEchoWindow
	}
	return &Engine{
		store:      st,
		bus:        b,
		logger:     logger,
		selfID:     cfg.SelfID,
		selfName:   cfg.SelfName,
		echoWindow: cfg.EchoWindow,
		now:        func() int64 { return time.Now().UnixMilli() },
		pending:    make(map[string]draft),
		retries:    make(map[string]int),
	}
}

// Start subscribes to inbound transport messages on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe(bus.TopicMessage, 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				msg, ok := evt.Payload.(store.Message)
				if !ok {
					continue
				}
				e.Ingest(msg)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// AddOptimistic inserts a pending message so the UI shows it immediately, and
// returns the temporary identifier for later correlation.
func (e *Engine) AddOptimistic(conversationID, body string) string {
	tempID := "tmp-" + uuid.NewString()
	now := e.now()

	e.mu.Lock()
	e.pending[tempID] = draft{ConversationID: conversationID, Body: body, Timestamp: now}
	e.mu.Unlock()

	e.store.AddOrUpdateMessage(conversationID, store.Message{
		ID:         tempID,
		SenderID:   e.selfID,
		SenderName: e.selfName,
		Body:       body,
		Status:     store.StatusSending,
		FromMe:     true,
		Timestamp:  now,
	})
	e.store.SetConversationPreview(conversationID, body, now)
	return tempID
}

// Confirm replaces the optimistic entry with the server-confirmed message.
// The temporary identifier and the server identifier never coexist afterward.
func (e *Engine) Confirm(tempID string, serverMsg store.Message) {
	e.mu.Lock()
	d, ok := e.pending[tempID]
	delete(e.pending, tempID)
	delete(e.retries, tempID)
	e.mu.Unlock()

	if ok {
		if serverMsg.ConversationID == "" {
			serverMsg.ConversationID = d.ConversationID
		}
		if serverMsg.Timestamp == 0 {
			serverMsg.Timestamp = d.Timestamp
		}
		e.store.RemoveMessage(d.ConversationID, tempID)
	}
	if serverMsg.Status == "" || serverMsg.Status == store.StatusSending {
		serverMsg.Status = store.StatusSent
	}
	serverMsg.FromMe = true
	e.store.AddOrUpdateMessage(serverMsg.ConversationID, serverMsg)

	e.bus.Publish(bus.Event{
		Topic:     bus.TopicMessageConfirmed,
		Timestamp: time.Now(),
		Payload:   map[string]string{"temp_id": tempID, "server_id": serverMsg.ID},
	})
}

// Fail flips the optimistic entry to failed, visible to the user as
// retryable. The rest of the conversation is unaffected.
func (e *Engine) Fail(tempID string, sendErr error) {
	e.mu.Lock()
	e.retries[tempID]++
	attempts := e.retries[tempID]
	e.mu.Unlock()

	e.store.UpdateMessageStatus(tempID, store.StatusFailed)
	e.logger.Error("message send failed",
		zap.String("temp_id", tempID),
		zap.Int("attempts", attempts),
		zap.Error(sendErr))

	e.bus.Publish(bus.Event{
		Topic:     bus.TopicMessageFailed,
		Timestamp: time.Now(),
		Payload:   map[string]string{"temp_id": tempID, "error": sendErr.Error()},
	})
}

// Retry re-enters a failed message into the pipeline. It returns the original
// draft so the caller can resend it. ok is false if the temp id is unknown.
func (e *Engine) Retry(tempID string) (conversationID, body string, ok bool) {
	e.mu.Lock()
	d, ok := e.pending[tempID]
	e.mu.Unlock()
	if !ok {
		return "", "", false
	}
	e.store.UpdateMessageStatus(tempID, store.StatusSending)
	return d.ConversationID, d.Body, true
}

// Attempts returns how many times the given optimistic message has failed.
func (e *Engine) Attempts(tempID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retries[tempID]
}

// SetMessages bulk-replaces a conversation's history, re-sorted by timestamp.
// Optimistic entries still awaiting confirmation are carried over so a
// refresh never makes an in-flight send vanish from the thread.
func (e *Engine) SetMessages(conversationID string, list []store.Message) {
	current := e.store.Messages(conversationID)

	e.mu.Lock()
	var keep []store.Message
	for _, m := range current {
		if _, ok := e.pending[m.ID]; ok {
			keep = append(keep, m)
		}
	}
	e.mu.Unlock()

	e.store.SetMessages(conversationID, list)
	for _, m := range keep {
		e.store.AddOrUpdateMessage(conversationID, m)
	}
}

// Ingest processes one inbound message idempotently. A server echo of the
// viewer's own optimistic message confirms it; a duplicate of an existing
// entry (same sender, body, timestamp within the echo window) is absorbed;
// anything unmatched is appended as new, never dropped.
func (e *Engine) Ingest(msg store.Message) {
	if msg.ConversationID == "" || msg.ID == "" {
		return
	}
	if msg.SenderID == e.selfID {
		msg.FromMe = true
	}

	if msg.FromMe {
		if tempID, ok := e.matchPending(msg); ok {
			e.Confirm(tempID, msg)
			return
		}
	}

	if e.isEcho(msg) {
		return
	}

	e.store.AddOrUpdateMessage(msg.ConversationID, msg)
	e.store.SetConversationPreview(msg.ConversationID, msg.Body, msg.Timestamp)
	if !msg.FromMe && e.store.ActiveConversation() != msg.ConversationID {
		e.store.IncrementUnread(msg.ConversationID)
	}
}

// matchPending finds an optimistic entry for the same conversation and body
// whose timestamp falls inside the echo window.
func (e *Engine) matchPending(msg store.Message) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for tempID, d := range e.pending {
		if d.ConversationID == msg.ConversationID &&
			d.Body == msg.Body &&
			within(d.Timestamp, msg.Timestamp, e.echoWindow) {
			return tempID, true
		}
	}
	return "", false
}

// isEcho reports whether an entry with a different identifier but identical
// sender, body and near-identical timestamp already exists. Identifier
// matches are left to the store's own upsert.
func (e *Engine) isEcho(msg store.Message) bool {
	list := e.store.Messages(msg.ConversationID)
	for _, existing := range list {
		if existing.ID == msg.ID {
			// Same identifier: the store's upsert handles it.
			return false
		}
	}
	for _, existing := range list {
		if existing.SenderID == msg.SenderID &&
			existing.Body == msg.Body &&
			within(existing.Timestamp, msg.Timestamp, e.echoWindow) {
			return true
		}
	}
	return false
}

func within(a, b int64, window time.Duration) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= window.Milliseconds()
}
