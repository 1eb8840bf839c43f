// Package notifier delivers realtime notifications to the channels of a
// room, honoring each channel's delivery-scoping policy.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/syntrixbase/concierge/internal/ask"
	"github.com/syntrixbase/concierge/internal/realtime"
)

// Broadcaster fans a payload out to every connection bound to a channel.
type Broadcaster interface {
	Broadcast(channelID string, payload json.RawMessage)
}

// RoomProvider resolves live rooms by id.
type RoomProvider interface {
	Room(roomID string) (*realtime.Room, bool)
}

// Tester matches a document against the registered filters of an
// index/collection, returning the matching filter ids.
type Tester interface {
	Test(index, collection string, doc map[string]any) []string
}

// Notification is the wire form pushed to subscribers.
type Notification struct {
	Type       string          `json:"type"` // "user" or "document"
	Index      string          `json:"index"`
	Collection string          `json:"collection"`
	RoomID     string          `json:"room"`
	Channel    string          `json:"channel"`
	User       string          `json:"user,omitempty"`  // "in" or "out", user notifications only
	Scope      string          `json:"scope,omitempty"` // "in" or "out", document notifications only
	Result     json.RawMessage `json:"result,omitempty"`
	Volatile   json.RawMessage `json:"volatile,omitempty"`
	Timestamp  int64           `json:"timestamp"`
}

// Notifier implements the delivery collaborator.
type Notifier struct {
	rooms       RoomProvider
	tester      Tester
	broadcaster Broadcaster
	logger      *slog.Logger
}

// Compile-time check.
var _ realtime.UserNotifier = (*Notifier)(nil)

// New creates a notifier.
func New(rooms RoomProvider, tester Tester, broadcaster Broadcaster, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		rooms:       rooms,
		tester:      tester,
		broadcaster: broadcaster,
		logger:      logger.With("component", "notifier"),
	}
}

// NotifyUser pushes a presence notification to the room's channels whose
// users policy admits the event.
func (n *Notifier) NotifyUser(ctx context.Context, notification realtime.UserNotification) {
	room, ok := n.rooms.Room(notification.RoomID)
	if !ok {
		return
	}

	result := mustMarshal(map[string]int{"count": notification.Count})
	now := time.Now().UnixMilli()

	for channelID, spec := range room.Channels() {
		if !usersDelivered(spec.Users, notification.Event) {
			continue
		}
		n.broadcaster.Broadcast(channelID, mustMarshal(Notification{
			Type:       "user",
			Index:      notification.Index,
			Collection: notification.Collection,
			RoomID:     notification.RoomID,
			Channel:    channelID,
			User:       string(notification.Event),
			Result:     result,
			Volatile:   notification.Volatile,
			Timestamp:  now,
		}))
	}
}

// NotifyDocument matches a published document against the live filters and
// pushes it to the channels of every matching room whose scope admits
// entering documents.
func (n *Notifier) NotifyDocument(ctx context.Context, index, collection string, body json.RawMessage) error {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("invalid document body: %w", err)
	}

	matched := n.tester.Test(index, collection, doc)
	if len(matched) == 0 {
		return nil
	}

	now := time.Now().UnixMilli()
	for _, roomID := range matched {
		room, ok := n.rooms.Room(roomID)
		if !ok {
			continue
		}
		for channelID, spec := range room.Channels() {
			if spec.Scope != realtime.ScopeAll && spec.Scope != realtime.ScopeIn {
				continue
			}
			n.broadcaster.Broadcast(channelID, mustMarshal(Notification{
				Type:       "document",
				Index:      index,
				Collection: collection,
				RoomID:     roomID,
				Channel:    channelID,
				Scope:      string(realtime.ScopeIn),
				Result:     body,
				Timestamp:  now,
			}))
		}
	}
	return nil
}

// RegisterAskHandlers exposes publish on the internal dispatcher.
func (n *Notifier) RegisterAskHandlers(bus *ask.Bus) error {
	return bus.Register(realtime.AskPublish, func(ctx context.Context, req any) (any, error) {
		r, ok := req.(*realtime.PublishRequest)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected request type %T", realtime.AskPublish, req)
		}
		return nil, n.NotifyDocument(ctx, r.Index, r.Collection, r.Body)
	})
}

// usersDelivered tells whether a channel's users policy admits the event.
func usersDelivered(policy realtime.Users, event realtime.UserEvent) bool {
	switch policy {
	case realtime.UsersAll:
		return true
	case realtime.UsersIn:
		return event == realtime.UserEntered
	case realtime.UsersOut:
		return event == realtime.UserLeft
	default:
		return false
	}
}

func mustMarshal(v any) json.RawMessage {
	b, _ := json.Marshal(v) // Should not fail for internal types
	return b
}
