// Package event defines the websocket wire envelope shared by the hub and
// its clients.
package event

import "encoding/json"

// Client -> server events.
const (
	// EventSubscribe asks to join a named channel (an open conversation
	// view subscribing to conversation:{id}).
	EventSubscribe = "subscribe"
	// EventUnsubscribe leaves a named channel.
	EventUnsubscribe = "unsubscribe"
)

// Server -> client events are the relay event names (conversation:new,
// conversation:update, messages:new, message:update) passed through
// unchanged.

// WsEvent is the envelope for everything crossing a websocket connection.
type WsEvent struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
