package bus

import "time"

// Topics published by the engine. Subscribers filter by prefix, so "rt."
// matches every inbound transport event.
const (
	TopicMessage          = "rt.message"
	TopicTypingStart      = "rt.typing.start"
	TopicTypingStop       = "rt.typing.stop"
	TopicConnChanged      = "conn.changed"
	TopicMessageConfirmed = "message.confirmed"
	TopicMessageFailed    = "message.failed"
)

// Event is a domain event published on the bus.
type Event struct {
	Topic     string
	Timestamp time.Time
	Payload   any
}
