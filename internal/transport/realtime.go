package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/hravel/huddl/internal/bus"
	"github.com/hravel/huddl/internal/retry"
	"github.com/hravel/huddl/internal/status"
	"github.com/hravel/huddl/internal/store"
	"go.uber.org/zap"
)

// RealtimeConfig configures the websocket transport.
type RealtimeConfig struct {
	URL         string
	Token       string
	SelfID      string
	SendTimeout time.Duration
	Reconnect   retry.Policy
}

// Realtime is the push transport: one websocket, a read loop that publishes
// inbound frames on the bus, and send-with-ack correlation by request id.
type Realtime struct {
	cfg     RealtimeConfig
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[string]bool
	acks   map[string]chan ackResult
	cancel context.CancelFunc
}

type ackResult struct {
	msg store.Message
	err error
}

// NewRealtime creates the websocket transport.
func NewRealtime(cfg RealtimeConfig, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Realtime {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Realtime{
		cfg:     cfg,
		bus:     b,
		machine: machine,
		logger:  logger,
		subs:    make(map[string]bool),
		acks:    make(map[string]chan ackResult),
	}
}

// Start launches the connect/read loop in the background.
func (r *Realtime) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)
	return nil
}

// Stop closes the connection and stops reconnecting.
func (r *Realtime) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}
}

// Ready reports whether the socket is up.
func (r *Realtime) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// Subscribe registers interest in a conversation. If the socket is up the
// subscription is sent immediately; it is replayed after every reconnect.
func (r *Realtime) Subscribe(conversationID string) {
	r.mu.Lock()
	if r.subs[conversationID] {
		r.mu.Unlock()
		return
	}
	r.subs[conversationID] = true
	conn := r.conn
	r.mu.Unlock()

	if conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SendTimeout)
		defer cancel()
		if err := wsjson.Write(ctx, conn, frame{Type: frameSubscribe, ConversationID: conversationID}); err != nil {
			r.logger.Warn("subscribe frame failed", zap.String("conversation", conversationID), zap.Error(err))
		}
	}
}

// Send publishes a send frame and waits for the server's ack carrying the
// confirmed message record.
func (r *Realtime) Send(ctx context.Context, conversationID, body string) (store.Message, error) {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return store.Message{}, ErrUnavailable
	}

	reqID := uuid.NewString()
	ch := make(chan ackResult, 1)
	r.mu.Lock()
	r.acks[reqID] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.acks, reqID)
		r.mu.Unlock()
	}()

	err := wsjson.Write(ctx, conn, frame{
		Type:           frameSend,
		RequestID:      reqID,
		ConversationID: conversationID,
		Body:           body,
	})
	if err != nil {
		return store.Message{}, fmt.Errorf("write send frame: %w", err)
	}

	select {
	case res := <-ch:
		return res.msg, res.err
	case <-time.After(r.cfg.SendTimeout):
		return store.Message{}, fmt.Errorf("send ack timeout after %s", r.cfg.SendTimeout)
	case <-ctx.Done():
		return store.Message{}, ctx.Err()
	}
}

func (r *Realtime) run(ctx context.Context) {
	attempt := 0
	for {
		if err := r.machine.Transition(store.ConnConnecting); err != nil {
			r.logger.Warn("connection state", zap.Error(err))
		}

		conn, err := r.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				_ = r.machine.Transition(store.ConnOffline)
				return
			}
			attempt++
			if r.cfg.Reconnect.Exhausted(attempt) {
				r.logger.Error("giving up on real-time connection", zap.Int("attempts", attempt), zap.Error(err))
				_ = r.machine.Transition(store.ConnFailed)
				return
			}
			_ = r.machine.Transition(store.ConnReconnecting)
			delay := r.cfg.Reconnect.Delay(attempt)
			r.logger.Warn("dial failed, retrying", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				_ = r.machine.Transition(store.ConnOffline)
				return
			}
		}

		attempt = 0
		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()
		_ = r.machine.Transition(store.ConnOnline)
		r.logger.Info("real-time channel connected", zap.String("url", r.cfg.URL))
		r.resubscribe(ctx, conn)

		readErr := r.readLoop(ctx, conn)

		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
		if ctx.Err() != nil {
			_ = r.machine.Transition(store.ConnOffline)
			return
		}
		_ = r.machine.Transition(store.ConnReconnecting)
		r.logger.Warn("real-time channel lost", zap.Error(readErr))
	}
}

func (r *Realtime) dial(ctx context.Context) (*websocket.Conn, error) {
	opts := &websocket.DialOptions{}
	if r.cfg.Token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + r.cfg.Token}}
	}
	conn, _, err := websocket.Dial(ctx, r.cfg.URL, opts)
	return conn, err
}

func (r *Realtime) resubscribe(ctx context.Context, conn *websocket.Conn) {
	r.mu.Lock()
	subs := make([]string, 0, len(r.subs))
	for id := range r.subs {
		subs = append(subs, id)
	}
	r.mu.Unlock()

	for _, id := range subs {
		if err := wsjson.Write(ctx, conn, frame{Type: frameSubscribe, ConversationID: id}); err != nil {
			r.logger.Warn("resubscribe failed", zap.String("conversation", id), zap.Error(err))
			return
		}
	}
}

func (r *Realtime) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return err
		}
		r.dispatch(f)
	}
}

func (r *Realtime) dispatch(f frame) {
	now := time.Now()
	switch f.Type {
	case frameMessage:
		if f.Message == nil {
			return
		}
		r.bus.Publish(bus.Event{Topic: bus.TopicMessage, Timestamp: now, Payload: f.Message.toStore(r.cfg.SelfID)})
	case frameTypingStart:
		if f.Typing == nil {
			return
		}
		r.bus.Publish(bus.Event{Topic: bus.TopicTypingStart, Timestamp: now, Payload: f.Typing.toStore()})
	case frameTypingStop:
		if f.Typing == nil {
			return
		}
		r.bus.Publish(bus.Event{Topic: bus.TopicTypingStop, Timestamp: now, Payload: f.Typing.toStore()})
	case frameAck:
		if f.Message == nil {
			r.resolveAck(f.RequestID, ackResult{err: fmt.Errorf("ack without message record")})
			return
		}
		r.resolveAck(f.RequestID, ackResult{msg: f.Message.toStore(r.cfg.SelfID)})
	case frameError:
		r.resolveAck(f.RequestID, ackResult{err: fmt.Errorf("server rejected send: %s", f.Error)})
	default:
		r.logger.Warn("unknown frame type", zap.String("type", f.Type))
	}
}

func (r *Realtime) resolveAck(reqID string, res ackResult) {
	if reqID == "" {
		return
	}
	r.mu.Lock()
	ch := r.acks[reqID]
	r.mu.Unlock()
	if ch != nil {
		ch <- res
	}
}
