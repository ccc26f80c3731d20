// Package transport delivers messages and typing signals for subscribed
// conversations. Implementations publish inbound events on the bus and drive
// the connection state machine; the reconciliation engine consumes the bus
// independently, so the rest of the client is transport-agnostic.
package transport

import (
	"context"
	"errors"

	"github.com/hravel/huddl/internal/store"
)

// ErrUnavailable is returned by Send when the real-time channel is down and
// the caller should fall back to the request/response path.
var ErrUnavailable = errors.New("real-time transport unavailable")

// Transport is the delivery capability selected at construction time.
type Transport interface {
	// Start brings the transport up. It returns once the background
	// machinery is running; connection state is reported through the
	// status machine, not the return value.
	Start(ctx context.Context) error
	// Stop tears the transport down and clears its timers.
	Stop()
	// Subscribe registers interest in a conversation's events.
	Subscribe(conversationID string)
	// Send delivers a message body and returns the server-confirmed record.
	Send(ctx context.Context, conversationID, body string) (store.Message, error)
	// Ready reports whether Send can currently use the real-time channel.
	Ready() bool
}
