package transport

import (
	"context"
	"sync"
	"time"

	"github.com/hravel/huddl/internal/bus"
	"github.com/hravel/huddl/internal/status"
	"github.com/hravel/huddl/internal/store"
	"go.uber.org/zap"
)

// Backend is the request/response surface the polling transport needs.
// *api.Client satisfies it.
type Backend interface {
	ListMessages(ctx context.Context, conversationID string) ([]store.Message, error)
	SendMessage(ctx context.Context, conversationID, body string) (store.Message, error)
}

// Polling is the fallback transport for networks where the websocket is
// blocked: subscribed conversations are re-fetched on an interval and new
// messages are published as if they had arrived over the push channel.
type Polling struct {
	backend  Backend
	bus      *bus.Bus
	machine  *status.Machine
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	lastSeen map[string]int64 // conversation id -> newest published timestamp; -1 = baseline pending
	cancel   context.CancelFunc
}

// NewPolling creates the polling transport.
func NewPolling(backend Backend, b *bus.Bus, machine *status.Machine, interval time.Duration, logger *zap.Logger) *Polling {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Polling{
		backend:  backend,
		bus:      b,
		machine:  machine,
		interval: interval,
		logger:   logger,
		lastSeen: make(map[string]int64),
	}
}

// Start launches the poll loop.
func (p *Polling) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	_ = p.machine.Transition(store.ConnConnecting)
	go p.loop(ctx)
	return nil
}

// Stop stops the poll loop.
func (p *Polling) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	_ = p.machine.Transition(store.ConnOffline)
}

// Ready always reports false: there is no push channel, so sends take the
// request/response path directly.
func (p *Polling) Ready() bool { return false }

// Subscribe registers a conversation with the poll loop. The first poll
// records a baseline; only messages newer than it are published.
func (p *Polling) Subscribe(conversationID string) {
	p.mu.Lock()
	if _, ok := p.lastSeen[conversationID]; !ok {
		p.lastSeen[conversationID] = -1
	}
	p.mu.Unlock()
}

// Send delegates to the request/response backend.
func (p *Polling) Send(ctx context.Context, conversationID, body string) (store.Message, error) {
	return p.backend.SendMessage(ctx, conversationID, body)
}

func (p *Polling) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ticker.C:
			p.poll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Polling) poll(ctx context.Context) {
	p.mu.Lock()
	convs := make([]string, 0, len(p.lastSeen))
	for id := range p.lastSeen {
		convs = append(convs, id)
	}
	p.mu.Unlock()

	failed := false
	for _, convID := range convs {
		msgs, err := p.backend.ListMessages(ctx, convID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failed = true
			p.logger.Warn("poll failed", zap.String("conversation", convID), zap.Error(err))
			continue
		}
		p.publishNew(convID, msgs)
	}

	// Connection status is derived from poll outcomes; there is no socket.
	switch {
	case failed && p.machine.Current() == store.ConnOnline:
		_ = p.machine.Transition(store.ConnReconnecting)
	case !failed && p.machine.Current() != store.ConnOnline:
		_ = p.machine.Transition(store.ConnOnline)
	}
}

func (p *Polling) publishNew(convID string, msgs []store.Message) {
	p.mu.Lock()
	last, ok := p.lastSeen[convID]
	p.mu.Unlock()
	if !ok {
		return
	}

	newest := last
	for _, m := range msgs {
		if m.Timestamp > newest {
			newest = m.Timestamp
		}
	}

	if last == -1 {
		// Baseline poll: history is loaded through the fetch orchestrator,
		// not replayed as live events.
		p.setLastSeen(convID, newest)
		return
	}

	for _, m := range msgs {
		if m.Timestamp > last {
			p.bus.Publish(bus.Event{Topic: bus.TopicMessage, Timestamp: time.Now(), Payload: m})
		}
	}
	p.setLastSeen(convID, newest)
}

func (p *Polling) setLastSeen(convID string, ts int64) {
	p.mu.Lock()
	p.lastSeen[convID] = ts
	p.mu.Unlock()
}
