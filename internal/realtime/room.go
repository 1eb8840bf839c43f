package realtime

import (
	"sync"

	"github.com/syntrixbase/concierge/internal/koncorde"
)

// Room tracks one canonical filter within an index/collection: its delivery
// channels and the number of distinct connections subscribed to it.
type Room struct {
	ID         string
	Index      string
	Collection string

	mu          sync.RWMutex
	channels    map[string]ChannelSpec
	subscribers int

	// destroyed is set when the registry drops the room. Registrations
	// check it under the room lock: a subscriber racing the room's last
	// unsubscribe must not land on a dead room.
	destroyed bool
}

func newRoom(id, index, collection string) *Room {
	return &Room{
		ID:         id,
		Index:      index,
		Collection: collection,
		channels:   make(map[string]ChannelSpec),
	}
}

// createChannel registers the channel if absent. created reports whether a
// new channel was made; live is false when the room has been destroyed, in
// which case nothing is registered.
func (r *Room) createChannel(channelID string, spec ChannelSpec) (created, live bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return false, false
	}
	if _, exists := r.channels[channelID]; exists {
		return false, true
	}
	r.channels[channelID] = spec
	return true, true
}

// addSubscriber bumps the count. Returns false when the room has been
// destroyed; the caller must not treat the registration as landed.
func (r *Room) addSubscriber() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return false
	}
	r.subscribers++
	return true
}

// removeSubscriber decrements the count and returns the remaining total.
func (r *Room) removeSubscriber() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers--
	return r.subscribers
}

// Subscribers returns the number of distinct connections in the room.
func (r *Room) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subscribers
}

// Channels returns a snapshot of the room's channels.
func (r *Room) Channels() map[string]ChannelSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ChannelSpec, len(r.channels))
	for id, spec := range r.channels {
		out[id] = spec
	}
	return out
}

// roomRegistry owns the canonical-filter-id -> Room mapping and the
// process-wide room count. Structural operations (insert, remove) are
// serialized by the registry mutex; per-room state is guarded by each room.
type roomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	count int
}

func newRoomRegistry() *roomRegistry {
	return &roomRegistry{rooms: make(map[string]*Room)}
}

func (rr *roomRegistry) get(id string) (*Room, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	room, ok := rr.rooms[id]
	return room, ok
}

// Count returns the number of live rooms.
func (rr *roomRegistry) Count() int {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return rr.count
}

// createIfAbsent atomically resolves the room for a normalized filter. The
// existence check, limit check, engine registration and insertion run under
// the registry lock so two concurrent first-time subscribers to the same
// filter end up sharing exactly one room: the loser of the race reuses the
// winner's entry. The store callback must be local and non-suspending; the
// normalize call that produced the id never runs under this lock.
//
// A nil error with created=false means the room already existed, and no
// limit applies: joining an existing room never grows the room count.
func (rr *roomRegistry) createIfAbsent(n *koncorde.Normalized, limit int, store func() error) (*Room, bool, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if room, ok := rr.rooms[n.ID]; ok {
		return room, false, nil
	}

	if limit > 0 && rr.count >= limit {
		return nil, false, newTooManyRooms(limit)
	}

	// Register with the filter engine first: if this fails, no room is
	// created and the count is untouched.
	if err := store(); err != nil {
		return nil, false, err
	}

	room := newRoom(n.ID, n.Index, n.Collection)
	rr.rooms[n.ID] = room
	rr.count++
	return room, true, nil
}

// removeIfEmpty destroys the room only if it still has no subscribers: a
// concurrent subscribe may have revived it after the caller observed zero.
// The destroyed flag is set under both locks, so no registration can land
// on the room once it is out of the registry. release runs under the
// registry lock, serialized against the store callback of a recreation
// under the same id. Returns true when the room was removed.
func (rr *roomRegistry) removeIfEmpty(room *Room, release func()) bool {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if cur, ok := rr.rooms[room.ID]; !ok || cur != room {
		return false
	}

	room.mu.Lock()
	if room.subscribers > 0 {
		room.mu.Unlock()
		return false
	}
	room.destroyed = true
	room.mu.Unlock()

	delete(rr.rooms, room.ID)
	rr.count--
	if release != nil {
		release()
	}
	return true
}

// RoomInfo is a read-only room summary for introspection surfaces.
type RoomInfo struct {
	RoomID      string                 `json:"roomId"`
	Index       string                 `json:"index"`
	Collection  string                 `json:"collection"`
	Subscribers int                    `json:"subscribers"`
	Channels    map[string]ChannelSpec `json:"channels"`
}

// list returns a snapshot of all rooms.
func (rr *roomRegistry) list() []RoomInfo {
	rr.mu.RLock()
	rooms := make([]*Room, 0, len(rr.rooms))
	for _, room := range rr.rooms {
		rooms = append(rooms, room)
	}
	rr.mu.RUnlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, RoomInfo{
			RoomID:      room.ID,
			Index:       room.Index,
			Collection:  room.Collection,
			Subscribers: room.Subscribers(),
			Channels:    room.Channels(),
		})
	}
	return infos
}
