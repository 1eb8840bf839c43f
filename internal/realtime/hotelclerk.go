// Package realtime implements the subscription registry of the service: it
// tracks which connections are bound to which filters, deduplicates identical
// filters into shared rooms, fans subscriber-count notifications out on state
// changes, and enforces tenancy limits.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
)

// Limits bounds tenant subscription usage. A zero value disables the check.
type Limits struct {
	// SubscriptionMinterms caps the number of minterm groups a normalized
	// filter may contain.
	SubscriptionMinterms int `yaml:"subscription_minterms"`

	// SubscriptionRooms caps the number of distinct rooms.
	SubscriptionRooms int `yaml:"subscription_rooms"`
}

// HotelClerk coordinates subscribe, join and unsubscribe requests against the
// room and customer registries. The registry is volatile: it is rebuilt from
// live connections, never persisted.
type HotelClerk struct {
	engine Engine
	limits Limits

	rooms     *roomRegistry
	customers *customerRegistry

	notifier   UserNotifier
	checker    ConnectionChecker
	propagator Propagator

	logger *slog.Logger
}

// Option configures the HotelClerk.
type Option func(*HotelClerk)

// WithNotifier sets the notification delivery collaborator.
func WithNotifier(n UserNotifier) Option {
	return func(h *HotelClerk) { h.notifier = n }
}

// WithConnectionChecker sets the connection liveness collaborator.
func WithConnectionChecker(c ConnectionChecker) Option {
	return func(h *HotelClerk) { h.checker = c }
}

// WithPropagator sets the cluster propagation collaborator. Without one,
// joins are locally authoritative and never broadcast.
func WithPropagator(p Propagator) Option {
	return func(h *HotelClerk) { h.propagator = p }
}

// BindNotifier sets the delivery collaborator after construction. The
// notifier resolves rooms through the clerk, so the two are wired in two
// phases. Must be called before the clerk starts serving requests.
func (h *HotelClerk) BindNotifier(n UserNotifier) {
	h.notifier = n
}

// NewHotelClerk creates the subscription coordinator.
func NewHotelClerk(engine Engine, limits Limits, logger *slog.Logger, opts ...Option) *HotelClerk {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HotelClerk{
		engine:    engine,
		limits:    limits,
		rooms:     newRoomRegistry(),
		customers: newCustomerRegistry(),
		logger:    logger.With("component", "hotelclerk"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a connection on the room matching the request's filter,
// creating the room on first use. A nil result with a nil error means the
// request was discarded because its connection is no longer active.
func (h *HotelClerk) Subscribe(ctx context.Context, req *SubscribeRequest) (*SubscribeResult, error) {
	if req.Index == "" {
		return nil, newMissingArgument("index")
	}
	if req.Collection == "" {
		return nil, newMissingArgument("collection")
	}

	scope, users, err := resolvePolicy(req.Scope, req.Users)
	if err != nil {
		return nil, err
	}

	if h.checker != nil && !h.checker.IsConnectionAlive(req.ConnectionID) {
		h.logger.Debug("Discarding subscription from inactive connection",
			"connectionId", req.ConnectionID)
		return nil, nil
	}

	// Suspension point: no registry lock is held across this call.
	normalized, err := h.engine.Normalize(ctx, req.Index, req.Collection, req.Body)
	if err != nil {
		return nil, err
	}

	if h.limits.SubscriptionMinterms > 0 && len(normalized.Minterms) > h.limits.SubscriptionMinterms {
		return nil, newTooManyTerms(len(normalized.Minterms), h.limits.SubscriptionMinterms)
	}

	// A concurrent last unsubscribe can destroy the room between resolution
	// and registration. The loser just resolves again: Store is idempotent,
	// so recreating the room is safe.
	var (
		room   *Room
		result *SubscribeResult
	)
	for {
		var created bool
		room, created, err = h.rooms.createIfAbsent(normalized, h.limits.SubscriptionRooms, func() error {
			return h.engine.Store(normalized)
		})
		if err != nil {
			return nil, err
		}
		if created {
			h.logger.Info("Room created",
				"roomId", room.ID, "index", room.Index, "collection", room.Collection)
		}

		var live bool
		result, _, _, live = h.subscribeToRoom(room, req.ConnectionID, scope, users, req.Volatile)
		if live {
			break
		}
	}

	h.notifyUser(ctx, room, UserEntered, req.ConnectionID, req.Volatile)

	return result, nil
}

// Join registers a connection on an already existing room, identified by its
// id: the filter is not re-normalized. When the registration changed local
// state and did not itself come from a peer, the resulting diff is broadcast
// so other nodes keep their subscriber counts consistent.
func (h *HotelClerk) Join(ctx context.Context, req *JoinRequest) (*SubscribeResult, error) {
	if req.RoomID == "" {
		return nil, newMissingArgument("roomId")
	}

	scope, users, err := resolvePolicy(req.Scope, req.Users)
	if err != nil {
		return nil, err
	}

	room, ok := h.rooms.get(req.RoomID)
	if !ok {
		return nil, newRoomNotFound(req.RoomID)
	}

	result, _, changed, live := h.subscribeToRoom(room, req.ConnectionID, scope, users, req.Volatile)
	if !live {
		// The room lost its last subscriber while the join was in flight.
		return nil, newRoomNotFound(req.RoomID)
	}

	h.notifyUser(ctx, room, UserEntered, req.ConnectionID, req.Volatile)

	if changed && !req.fromCluster && h.propagator != nil {
		diff := JoinDiff{
			RoomID:       room.ID,
			Index:        room.Index,
			Collection:   room.Collection,
			Scope:        scope,
			Users:        users,
			ConnectionID: req.ConnectionID,
			Volatile:     req.Volatile,
		}
		if err := h.propagator.PropagateJoin(ctx, diff); err != nil {
			h.logger.Error("Failed to propagate join", "roomId", room.ID, "error", err)
		}
	}

	return result, nil
}

// ApplyJoinDiff applies a subscription state change received from a peer
// node. The diff is applied verbatim and never echoed back on the bus.
func (h *HotelClerk) ApplyJoinDiff(ctx context.Context, diff JoinDiff) error {
	req := &JoinRequest{
		RoomID:       diff.RoomID,
		Scope:        diff.Scope,
		Users:        diff.Users,
		Volatile:     diff.Volatile,
		ConnectionID: diff.ConnectionID,
		fromCluster:  true,
	}
	if _, err := h.Join(ctx, req); err != nil {
		return fmt.Errorf("failed to apply join diff for room %s: %w", diff.RoomID, err)
	}
	return nil
}

// Unsubscribe removes one subscription of a connection. When the room loses
// its last subscriber, the room is destroyed and its filter engine
// registration released.
func (h *HotelClerk) Unsubscribe(ctx context.Context, req *UnsubscribeRequest) error {
	if req.RoomID == "" {
		return newMissingArgument("roomId")
	}

	room, ok := h.rooms.get(req.RoomID)
	if !ok {
		return newRoomNotFound(req.RoomID)
	}

	stored, removed := h.customers.removeSubscription(req.ConnectionID, req.RoomID)
	if !removed {
		return newNotSubscribed(req.ConnectionID, req.RoomID)
	}

	remaining := room.removeSubscriber()

	// The leave notification replays the metadata registered with the
	// subscription unless the request carries its own.
	volatile := req.Volatile
	if len(volatile) == 0 {
		volatile = stored
	}
	h.notifyUser(ctx, room, UserLeft, req.ConnectionID, volatile)

	if remaining == 0 {
		h.destroyRoom(room)
	}
	return nil
}

// RemoveConnection tears down every subscription of a connection. Called by
// the connection layer when a client disconnects.
func (h *HotelClerk) RemoveConnection(ctx context.Context, connectionID string) {
	for _, roomID := range h.customers.rooms(connectionID) {
		req := &UnsubscribeRequest{RoomID: roomID, ConnectionID: connectionID}
		if err := h.Unsubscribe(ctx, req); err != nil {
			h.logger.Warn("Failed to clean up subscription on disconnect",
				"connectionId", connectionID, "roomId", roomID, "error", err)
		}
	}
}

// RoomsCount returns the number of live rooms.
func (h *HotelClerk) RoomsCount() int {
	return h.rooms.Count()
}

// CustomersCount returns the number of connections holding subscriptions.
func (h *HotelClerk) CustomersCount() int {
	return h.customers.count()
}

// ListRooms returns a snapshot of all rooms for introspection.
func (h *HotelClerk) ListRooms() []RoomInfo {
	return h.rooms.list()
}

// Room returns a room by id.
func (h *HotelClerk) Room(roomID string) (*Room, bool) {
	return h.rooms.get(roomID)
}

// --- internal ---

// subscribeToRoom performs the registration shared by subscribe and join:
// channel resolution, customer registration and subscriber counting. It
// returns the resolved result, the subscriber count after registration, and
// whether the call changed room state (a new channel or a new subscriber).
// A repeated registration by the same connection is idempotent: no count
// change, metadata refreshed.
//
// live is false when the room was destroyed by a concurrent last
// unsubscribe between resolution and registration; in that case no state is
// left behind and the caller decides whether to retry.
func (h *HotelClerk) subscribeToRoom(room *Room, connectionID string, scope Scope, users Users, volatile []byte) (result *SubscribeResult, count int, changed, live bool) {
	channelID := ChannelID(room.ID, scope, users)
	newChannel, roomLive := room.createChannel(channelID, ChannelSpec{Scope: scope, Users: users})
	if !roomLive {
		return nil, 0, false, false
	}

	added := h.customers.addSubscription(connectionID, room.ID, volatile)
	if added {
		if !room.addSubscriber() {
			// Destroy raced in between: roll the customer entry back.
			h.customers.removeSubscription(connectionID, room.ID)
			return nil, 0, false, false
		}
	}

	result = &SubscribeResult{RoomID: room.ID, Channel: channelID}
	return result, room.Subscribers(), newChannel || added, true
}

func (h *HotelClerk) notifyUser(ctx context.Context, room *Room, event UserEvent, connectionID string, volatile []byte) {
	if h.notifier == nil {
		return
	}
	h.notifier.NotifyUser(ctx, UserNotification{
		RoomID:       room.ID,
		Index:        room.Index,
		Collection:   room.Collection,
		Event:        event,
		Count:        room.Subscribers(),
		ConnectionID: connectionID,
		Volatile:     volatile,
	})
}

func (h *HotelClerk) destroyRoom(room *Room) {
	// A subscribe racing this teardown may have revived the room; in that
	// case the registration stays and so does the engine filter.
	removed := h.rooms.removeIfEmpty(room, func() {
		if err := h.engine.Remove(room.ID); err != nil {
			h.logger.Warn("Failed to release filter registration",
				"roomId", room.ID, "error", err)
		}
	})
	if !removed {
		return
	}
	h.logger.Info("Room destroyed", "roomId", room.ID)
}

// resolvePolicy validates the optional scope and users arguments and applies
// their defaults.
func resolvePolicy(scope Scope, users Users) (Scope, Users, error) {
	if scope == "" {
		scope = ScopeAll
	} else if !scope.IsValid() {
		return "", "", newInvalidScope(string(scope))
	}
	if users == "" {
		users = UsersNone
	} else if !users.IsValid() {
		return "", "", newInvalidUsers(string(users))
	}
	return scope, users, nil
}
