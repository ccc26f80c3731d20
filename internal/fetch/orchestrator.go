// Package fetch coordinates request/response traffic with the server:
// deduplicating concurrent loads, caching recent results, retrying with
// backoff, and routing sends through the push channel when one is up.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hravel/huddl/internal/reconcile"
	"github.com/hravel/huddl/internal/retry"
	"github.com/hravel/huddl/internal/store"
	"github.com/hravel/huddl/internal/transport"
)

var (
	// ErrEmptyMessage rejects sends whose body is blank after trimming.
	ErrEmptyMessage = errors.New("message body is empty")
	// ErrRetriesExhausted wraps a fetch that failed on every attempt.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrUnknownMessage reports a retry for a temp id the engine no longer
	// tracks.
	ErrUnknownMessage = errors.New("unknown message")
)

// Backend is the request/response surface the orchestrator drives.
// *api.Client satisfies it.
type Backend interface {
	ListConversations(ctx context.Context) ([]store.Conversation, error)
	ListParticipants(ctx context.Context) ([]store.Participant, error)
	ListMessages(ctx context.Context, conversationID string) ([]store.Message, error)
	SendMessage(ctx context.Context, conversationID, body string) (store.Message, error)
	CreateDirectConversation(ctx context.Context, participantID string) (store.Conversation, error)
	MarkRead(ctx context.Context, conversationID string) error
}

// Orchestrator owns all outbound request traffic. Loads for the same key are
// collapsed while one is in flight and skipped while a recent result is
// still fresh; sends go optimistic-first through the reconciliation engine.
type Orchestrator struct {
	backend   Backend
	store     *store.Store
	recon     *reconcile.Engine
	transport transport.Transport
	policy    retry.Policy
	ttl       time.Duration
	logger    *zap.Logger

	// sleep is the backoff wait, replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	inflight map[OpKey]struct{}
	fetched  map[OpKey]time.Time
}

// New creates an orchestrator. ttl controls how long a completed load
// suppresses identical loads; zero disables the cache.
func New(backend Backend, st *store.Store, recon *reconcile.Engine, tr transport.Transport, policy retry.Policy, ttl time.Duration, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		backend:   backend,
		store:     st,
		recon:     recon,
		transport: tr,
		policy:    policy,
		ttl:       ttl,
		logger:    logger,
		sleep:     sleepCtx,
		inflight:  make(map[OpKey]struct{}),
		fetched:   make(map[OpKey]time.Time),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoadConversations fetches the conversation list into the store.
func (o *Orchestrator) LoadConversations(ctx context.Context) error {
	return o.run(ctx, keyConversations(), false, func(ctx context.Context) error {
		o.store.SetLoading(true)
		defer o.store.SetLoading(false)
		convs, err := o.backend.ListConversations(ctx)
		if err != nil {
			return err
		}
		o.store.SetConversations(convs)
		return nil
	})
}

// LoadParticipants fetches the participant directory into the store.
func (o *Orchestrator) LoadParticipants(ctx context.Context) error {
	return o.run(ctx, keyParticipants(), false, func(ctx context.Context) error {
		parts, err := o.backend.ListParticipants(ctx)
		if err != nil {
			return err
		}
		o.store.SetParticipants(parts)
		return nil
	})
}

// LoadMessages fetches one conversation's history. force bypasses the
// freshness cache, used when the user explicitly refreshes.
func (o *Orchestrator) LoadMessages(ctx context.Context, conversationID string, force bool) error {
	return o.run(ctx, keyMessages(conversationID), force, func(ctx context.Context) error {
		msgs, err := o.backend.ListMessages(ctx, conversationID)
		if err != nil {
			return err
		}
		o.recon.SetMessages(conversationID, msgs)
		return nil
	})
}

// SendMessage sends text optimistically and returns the temporary message
// id. On failure the optimistic entry is flipped to failed and the temp id
// is still returned so the caller can offer a retry.
func (o *Orchestrator) SendMessage(ctx context.Context, conversationID, text string) (string, error) {
	body := strings.TrimSpace(text)
	if body == "" {
		return "", ErrEmptyMessage
	}

	tempID := o.recon.AddOptimistic(conversationID, body)
	if err := o.deliver(ctx, tempID, conversationID, body); err != nil {
		return tempID, err
	}
	return tempID, nil
}

// RetrySend re-sends a previously failed optimistic message.
func (o *Orchestrator) RetrySend(ctx context.Context, tempID string) error {
	conversationID, body, ok := o.recon.Retry(tempID)
	if !ok {
		return fmt.Errorf("retry %s: %w", tempID, ErrUnknownMessage)
	}
	return o.deliver(ctx, tempID, conversationID, body)
}

// deliver pushes one message over the socket when it is up, otherwise over
// the request/response path, and settles the optimistic entry either way.
// The socket can drop between the Ready check and the write; that race falls
// back to the request/response path instead of failing the message.
func (o *Orchestrator) deliver(ctx context.Context, tempID, conversationID, body string) error {
	var (
		msg store.Message
		err error
	)
	if o.transport != nil && o.transport.Ready() {
		msg, err = o.transport.Send(ctx, conversationID, body)
		if errors.Is(err, transport.ErrUnavailable) {
			o.logger.Warn("socket dropped mid-send, using request path",
				zap.String("conversation", conversationID))
			msg, err = o.backend.SendMessage(ctx, conversationID, body)
		}
	} else {
		msg, err = o.backend.SendMessage(ctx, conversationID, body)
	}
	if err != nil {
		o.recon.Fail(tempID, err)
		return err
	}
	o.recon.Confirm(tempID, msg)
	return nil
}

// MarkConversationRead zeroes the unread badge locally, then tells the
// server. The server call is best effort: a failure is logged and the local
// state stands.
func (o *Orchestrator) MarkConversationRead(ctx context.Context, conversationID string) {
	o.store.SetUnreadCount(conversationID, 0)
	if err := o.backend.MarkRead(ctx, conversationID); err != nil {
		o.logger.Warn("mark read failed",
			zap.String("conversation", conversationID),
			zap.Error(err))
	}
}

// StartDirectConversation creates (or resolves) a one-to-one conversation
// with the given participant and registers it with the live transport.
func (o *Orchestrator) StartDirectConversation(ctx context.Context, participantID string) (store.Conversation, error) {
	conv, err := o.backend.CreateDirectConversation(ctx, participantID)
	if err != nil {
		return store.Conversation{}, fmt.Errorf("start direct conversation: %w", err)
	}
	o.store.UpsertConversation(conv)
	if o.transport != nil {
		o.transport.Subscribe(conv.ID)
	}
	return conv, nil
}

// Refresh drops the freshness cache and reloads everything the user is
// looking at.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	o.mu.Lock()
	o.fetched = make(map[OpKey]time.Time)
	o.mu.Unlock()

	if err := o.LoadConversations(ctx); err != nil {
		return err
	}
	if err := o.LoadParticipants(ctx); err != nil {
		return err
	}
	if active := o.store.ActiveConversation(); active != "" {
		return o.LoadMessages(ctx, active, true)
	}
	return nil
}

// run executes one load with dedup, freshness, and backoff. A load already
// in flight or still fresh is a silent no-op: results land in the store, so
// callers observe them through their snapshot subscription either way.
func (o *Orchestrator) run(ctx context.Context, key OpKey, force bool, fn func(context.Context) error) error {
	o.mu.Lock()
	if _, busy := o.inflight[key]; busy {
		o.mu.Unlock()
		return nil
	}
	if !force && o.ttl > 0 {
		if at, ok := o.fetched[key]; ok && time.Since(at) < o.ttl {
			o.mu.Unlock()
			return nil
		}
	}
	o.inflight[key] = struct{}{}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.inflight, key)
		o.mu.Unlock()
	}()

	attempt := 0
	for {
		err := fn(ctx)
		if err == nil {
			o.mu.Lock()
			o.fetched[key] = time.Now()
			o.mu.Unlock()
			return nil
		}

		attempt++
		if o.policy.Exhausted(attempt) {
			o.logger.Error("fetch gave up",
				zap.String("kind", string(key.Kind)),
				zap.String("scope", key.Scope),
				zap.Int("attempts", attempt),
				zap.Error(err))
			o.store.SetError(fmt.Sprintf("failed to load %s: %v", key.Kind, err))
			return fmt.Errorf("load %s after %d attempts: %w", key.Kind, attempt, ErrRetriesExhausted)
		}

		delay := o.policy.Delay(attempt)
		o.logger.Warn("fetch failed, retrying",
			zap.String("kind", string(key.Kind)),
			zap.String("scope", key.Scope),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		if serr := o.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}
