package gateway

import (
	"encoding/json"
	"errors"

	"github.com/syntrixbase/concierge/internal/realtime"
)

// Message types
const (
	TypeSubscribe      = "subscribe"
	TypeSubscribeAck   = "subscribe_ack"
	TypeJoin           = "join"
	TypeJoinAck        = "join_ack"
	TypeUnsubscribe    = "unsubscribe"
	TypeUnsubscribeAck = "unsubscribe_ack"
	TypePublish        = "publish"
	TypePublishAck     = "publish_ack"
	TypeNotification   = "notification"
	TypeDiscarded      = "discarded"
	TypeError          = "error"
)

// BaseMessage is the envelope for all messages.
type BaseMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload (Client -> Server)
type SubscribePayload struct {
	Index      string          `json:"index"`
	Collection string          `json:"collection"`
	Body       json.RawMessage `json:"body,omitempty"`
	Scope      string          `json:"scope,omitempty"`
	Users      string          `json:"users,omitempty"`
	Volatile   json.RawMessage `json:"volatile,omitempty"`
}

// JoinPayload (Client -> Server)
type JoinPayload struct {
	RoomID   string          `json:"roomId"`
	Scope    string          `json:"scope,omitempty"`
	Users    string          `json:"users,omitempty"`
	Volatile json.RawMessage `json:"volatile,omitempty"`
}

// UnsubscribePayload (Client -> Server)
type UnsubscribePayload struct {
	RoomID   string          `json:"roomId"`
	Volatile json.RawMessage `json:"volatile,omitempty"`
}

// PublishPayload (Client -> Server)
type PublishPayload struct {
	Index      string          `json:"index"`
	Collection string          `json:"collection"`
	Body       json.RawMessage `json:"body"`
}

// AckPayload (Server -> Client) answers subscribe and join requests.
type AckPayload struct {
	RoomID  string `json:"roomId"`
	Channel string `json:"channel"`
}

// ErrorPayload (Server -> Client)
type ErrorPayload struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// errorMessage maps an error to its wire form, preserving stable registry
// error identifiers.
func errorMessage(requestID string, err error) BaseMessage {
	payload := ErrorPayload{Message: err.Error()}
	var rtErr *realtime.Error
	if errors.As(err, &rtErr) {
		payload.ID = rtErr.ID
		payload.Message = rtErr.Message
	}
	return BaseMessage{ID: requestID, Type: TypeError, Payload: mustMarshal(payload)}
}

func mustMarshal(v any) json.RawMessage {
	b, _ := json.Marshal(v) // Should not fail for internal types
	return b
}
