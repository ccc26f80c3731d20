// Package typing manages both sides of the typing indicator: throttling the
// viewer's own signals and expiring other participants' indicators when the
// stop signal never arrives.
package typing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hravel/huddl/internal/bus"
	"github.com/hravel/huddl/internal/store"
)

// Signaler is the server surface for typing traffic. *api.Client satisfies
// it.
type Signaler interface {
	TypingStart(ctx context.Context, conversationID string) error
	TypingStop(ctx context.Context, conversationID string) error
	TypingUsers(ctx context.Context, conversationID string) ([]store.TypingUser, error)
}

// Config tunes the indicator lifecycle. TTL is how long the server keeps a
// typing signal alive; StopBuffer is added on top so the local auto-stop only
// fires once the server-side signal has already expired.
type Config struct {
	SelfID     string
	SelfName   string
	TTL        time.Duration
	StopBuffer time.Duration
}

// Manager owns typing state for all conversations. Keystroke bursts collapse
// into one start signal; inactivity or an explicit stop sends the stop
// signal; remote indicators expire on a local timer so a lost stop signal
// cannot leave a "typing..." line up forever.
type Manager struct {
	api    Signaler
	store  *store.Store
	bus    *bus.Bus
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	self   map[string]*time.Timer            // conversation id -> auto-stop timer
	remote map[string]map[string]*time.Timer // conversation id -> user id -> expiry timer

	cancel context.CancelFunc
	unsub  func()
}

// NewManager creates a manager. Timers only start once typing begins.
func NewManager(api Signaler, st *store.Store, b *bus.Bus, cfg Config, logger *zap.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Second
	}
	return &Manager{
		api:    api,
		store:  st,
		bus:    b,
		cfg:    cfg,
		logger: logger,
		self:   make(map[string]*time.Timer),
		remote: make(map[string]map[string]*time.Timer),
	}
}

// idle is the inactivity window before the auto-stop fires.
func (m *Manager) idle() time.Duration {
	return m.cfg.TTL + m.cfg.StopBuffer
}

// Start subscribes to inbound typing events from the transport.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	ch, unsub := m.bus.Subscribe("rt.typing.", 64)
	m.unsub = unsub

	go func() {
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				m.handle(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop tears down all timers and sends best-effort stop signals for any
// conversation the viewer was still typing in.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.unsub != nil {
		m.unsub()
	}

	m.mu.Lock()
	var open []string
	for convID, t := range m.self {
		t.Stop()
		open = append(open, convID)
	}
	m.self = make(map[string]*time.Timer)
	for _, users := range m.remote {
		for _, t := range users {
			t.Stop()
		}
	}
	m.remote = make(map[string]map[string]*time.Timer)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, convID := range open {
		m.store.RemoveTypingUser(convID, m.cfg.SelfID)
		if err := m.api.TypingStop(ctx, convID); err != nil {
			m.logger.Warn("typing stop on shutdown failed",
				zap.String("conversation", convID), zap.Error(err))
		}
	}
}

// StartTyping registers viewer keystrokes in a conversation. The first call
// signals the server and puts the viewer in the store's typing set; further
// calls within the idle window only push the auto-stop out.
func (m *Manager) StartTyping(ctx context.Context, conversationID string) {
	m.mu.Lock()
	if t, ok := m.self[conversationID]; ok {
		t.Reset(m.idle())
		m.mu.Unlock()
		return
	}
	m.self[conversationID] = time.AfterFunc(m.idle(), func() {
		m.autoStop(conversationID)
	})
	m.mu.Unlock()

	m.store.AddTypingUser(store.TypingUser{
		ConversationID: conversationID,
		UserID:         m.cfg.SelfID,
		DisplayName:    m.cfg.SelfName,
		StartedAt:      time.Now().UnixMilli(),
	})
	if err := m.api.TypingStart(ctx, conversationID); err != nil {
		m.logger.Warn("typing start failed",
			zap.String("conversation", conversationID), zap.Error(err))
	}
}

// StopTyping ends the viewer's typing state. Calling it when no typing is
// active is a no-op.
func (m *Manager) StopTyping(ctx context.Context, conversationID string) {
	m.mu.Lock()
	t, ok := m.self[conversationID]
	if ok {
		t.Stop()
		delete(m.self, conversationID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	m.store.RemoveTypingUser(conversationID, m.cfg.SelfID)
	if err := m.api.TypingStop(ctx, conversationID); err != nil {
		m.logger.Warn("typing stop failed",
			zap.String("conversation", conversationID), zap.Error(err))
	}
}

func (m *Manager) autoStop(conversationID string) {
	m.mu.Lock()
	_, ok := m.self[conversationID]
	delete(m.self, conversationID)
	m.mu.Unlock()
	if !ok {
		return
	}

	m.store.RemoveTypingUser(conversationID, m.cfg.SelfID)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.api.TypingStop(ctx, conversationID); err != nil {
		m.logger.Warn("typing auto-stop failed",
			zap.String("conversation", conversationID), zap.Error(err))
	}
}

// TypingUsers re-reads a conversation's typing set from the server and
// replaces the local view. The server's echo of the viewer is dropped; if
// the viewer is composing right now, the local entry is kept instead.
func (m *Manager) TypingUsers(ctx context.Context, conversationID string) ([]store.TypingUser, error) {
	users, err := m.api.TypingUsers(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	remote := users[:0]
	for _, u := range users {
		if u.UserID == m.cfg.SelfID {
			continue
		}
		remote = append(remote, u)
	}

	m.mu.Lock()
	_, selfActive := m.self[conversationID]
	for _, u := range remote {
		m.armRemoteLocked(conversationID, u.UserID)
	}
	m.mu.Unlock()

	all := remote
	if selfActive {
		all = append(append([]store.TypingUser(nil), remote...), store.TypingUser{
			ConversationID: conversationID,
			UserID:         m.cfg.SelfID,
			DisplayName:    m.cfg.SelfName,
			StartedAt:      time.Now().UnixMilli(),
		})
	}
	m.store.SetTypingUsers(conversationID, all)
	return remote, nil
}

// IsUserTyping reports whether the given user currently shows as typing.
func (m *Manager) IsUserTyping(conversationID, userID string) bool {
	for _, u := range m.store.Snapshot().Typing[conversationID] {
		if u.UserID == userID {
			return true
		}
	}
	return false
}

func (m *Manager) handle(evt bus.Event) {
	user, ok := evt.Payload.(store.TypingUser)
	if !ok || user.UserID == m.cfg.SelfID {
		return
	}

	switch evt.Topic {
	case bus.TopicTypingStart:
		m.store.AddTypingUser(user)
		m.mu.Lock()
		m.armRemoteLocked(user.ConversationID, user.UserID)
		m.mu.Unlock()
	case bus.TopicTypingStop:
		m.clearRemote(user.ConversationID, user.UserID)
	}
}

// armRemoteLocked schedules (or pushes out) the expiry of a remote user's
// indicator. Holds m.mu.
func (m *Manager) armRemoteLocked(conversationID, userID string) {
	users, ok := m.remote[conversationID]
	if !ok {
		users = make(map[string]*time.Timer)
		m.remote[conversationID] = users
	}
	if t, ok := users[userID]; ok {
		t.Reset(m.cfg.TTL)
		return
	}
	users[userID] = time.AfterFunc(m.cfg.TTL, func() {
		m.clearRemote(conversationID, userID)
	})
}

func (m *Manager) clearRemote(conversationID, userID string) {
	m.mu.Lock()
	if users, ok := m.remote[conversationID]; ok {
		if t, ok := users[userID]; ok {
			t.Stop()
			delete(users, userID)
		}
		if len(users) == 0 {
			delete(m.remote, conversationID)
		}
	}
	m.mu.Unlock()

	m.store.RemoveTypingUser(conversationID, userID)
}
