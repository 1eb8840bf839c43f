package realtime

import (
	"context"
	"encoding/json"

	"github.com/syntrixbase/concierge/internal/koncorde"
)

// Scope selects which match-transition events a channel delivers:
// documents entering the matched set, leaving it, both, or neither.
type Scope string

const (
	ScopeAll  Scope = "all"
	ScopeIn   Scope = "in"
	ScopeOut  Scope = "out"
	ScopeNone Scope = "none"
)

// IsValid checks if the scope is a known valid value.
func (s Scope) IsValid() bool {
	switch s {
	case ScopeAll, ScopeIn, ScopeOut, ScopeNone:
		return true
	default:
		return false
	}
}

// Users selects which user-presence events a channel delivers.
type Users string

const (
	UsersAll  Users = "all"
	UsersIn   Users = "in"
	UsersOut  Users = "out"
	UsersNone Users = "none"
)

// IsValid checks if the users filter is a known valid value.
func (u Users) IsValid() bool {
	switch u {
	case UsersAll, UsersIn, UsersOut, UsersNone:
		return true
	default:
		return false
	}
}

// ChannelSpec describes one delivery-scoping policy attached to a room.
// At most one channel exists per distinct (scope, users) pair.
type ChannelSpec struct {
	Scope Scope `json:"scope"`
	Users Users `json:"users"`
}

// SubscribeRequest carries a subscription registration. Scope and Users are
// optional: empty values default to "all" and "none" respectively.
type SubscribeRequest struct {
	Index        string          `json:"index"`
	Collection   string          `json:"collection"`
	Body         json.RawMessage `json:"body"`
	Scope        Scope           `json:"scope,omitempty"`
	Users        Users           `json:"users,omitempty"`
	Volatile     json.RawMessage `json:"volatile,omitempty"`
	ConnectionID string          `json:"-"`
}

// JoinRequest targets an already existing room by id.
type JoinRequest struct {
	RoomID       string          `json:"roomId"`
	Scope        Scope           `json:"scope,omitempty"`
	Users        Users           `json:"users,omitempty"`
	Volatile     json.RawMessage `json:"volatile,omitempty"`
	ConnectionID string          `json:"-"`

	// fromCluster marks a join replayed from a peer node. Such joins are
	// applied locally but never propagated back on the cluster bus.
	fromCluster bool
}

// UnsubscribeRequest removes one subscription of a connection.
type UnsubscribeRequest struct {
	RoomID       string          `json:"roomId"`
	Volatile     json.RawMessage `json:"volatile,omitempty"`
	ConnectionID string          `json:"-"`
}

// PublishRequest carries an ephemeral document to match against the live
// filters and deliver to the scoped channels.
type PublishRequest struct {
	Index        string          `json:"index"`
	Collection   string          `json:"collection"`
	Body         json.RawMessage `json:"body"`
	ConnectionID string          `json:"-"`
}

// SubscribeResult is returned by subscribe and join. Two calls with an
// equivalent filter, scope and users yield the identical result.
type SubscribeResult struct {
	RoomID  string `json:"roomId"`
	Channel string `json:"channel"`
}

// JoinDiff describes a subscription state change for cluster propagation.
// Peers apply it directly, without re-running filter normalization.
type JoinDiff struct {
	RoomID       string          `json:"roomId"`
	Index        string          `json:"index"`
	Collection   string          `json:"collection"`
	Scope        Scope           `json:"scope"`
	Users        Users           `json:"users"`
	ConnectionID string          `json:"connectionId"`
	Volatile     json.RawMessage `json:"volatile,omitempty"`
}

// UserEvent tells whether a connection entered or left a room.
type UserEvent string

const (
	UserEntered UserEvent = "in"
	UserLeft    UserEvent = "out"
)

// UserNotification is handed to the delivery collaborator whenever a room's
// subscriber set changes. Count is the subscriber count after the change.
type UserNotification struct {
	RoomID       string
	Index        string
	Collection   string
	Event        UserEvent
	Count        int
	ConnectionID string
	Volatile     json.RawMessage
}

// Engine is the filter-matching collaborator. Normalize may suspend on a
// remote call; Store and Remove are local and idempotent per canonical id.
type Engine interface {
	Normalize(ctx context.Context, index, collection string, body json.RawMessage) (*koncorde.Normalized, error)
	Store(normalized *koncorde.Normalized) error
	Remove(id string) error
}

// UserNotifier is the notification delivery collaborator.
type UserNotifier interface {
	NotifyUser(ctx context.Context, notification UserNotification)
}

// ConnectionChecker reports whether a connection is still active. Requests
// from dead connections are silently discarded.
type ConnectionChecker interface {
	IsConnectionAlive(connectionID string) bool
}

// Propagator broadcasts join diffs to peer nodes.
type Propagator interface {
	PropagateJoin(ctx context.Context, diff JoinDiff) error
}
