package realtime

import (
	"encoding/json"
	"sync"
)

// customer holds the subscriptions of one connection: room id -> volatile
// metadata supplied at subscribe time, replayed verbatim on notifications.
type customer struct {
	mu            sync.Mutex
	subscriptions map[string]json.RawMessage
}

// customerRegistry owns the connection-id -> customer mapping. A connection
// appears here if and only if it holds at least one subscription. Structural
// operations are serialized by the registry mutex; subscription mutations of
// one connection are serialized by the customer mutex, so overlapping
// subscribe/unsubscribe calls from the same connection cannot lose updates.
type customerRegistry struct {
	mu        sync.RWMutex
	customers map[string]*customer
}

func newCustomerRegistry() *customerRegistry {
	return &customerRegistry{customers: make(map[string]*customer)}
}

// addSubscription records the room for the connection. Returns false when
// the connection was already subscribed to the room; in that case only the
// volatile metadata is refreshed.
func (cr *customerRegistry) addSubscription(connectionID, roomID string, volatile json.RawMessage) bool {
	cr.mu.Lock()
	c, ok := cr.customers[connectionID]
	if !ok {
		c = &customer{subscriptions: make(map[string]json.RawMessage)}
		cr.customers[connectionID] = c
	}
	cr.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.subscriptions[roomID]
	c.subscriptions[roomID] = volatile
	return !exists
}

// removeSubscription drops the room from the connection and returns the
// volatile metadata it carried. Removing the last subscription removes the
// connection entry entirely.
func (cr *customerRegistry) removeSubscription(connectionID, roomID string) (json.RawMessage, bool) {
	cr.mu.Lock()
	c, ok := cr.customers[connectionID]
	cr.mu.Unlock()
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	volatile, exists := c.subscriptions[roomID]
	if exists {
		delete(c.subscriptions, roomID)
	}
	c.mu.Unlock()
	if !exists {
		return nil, false
	}

	// Drop the entry when its last subscription is gone. Re-checked under
	// both locks: a concurrent subscribe may have re-populated it.
	cr.mu.Lock()
	if cur, ok := cr.customers[connectionID]; ok && cur == c {
		c.mu.Lock()
		if len(c.subscriptions) == 0 {
			delete(cr.customers, connectionID)
		}
		c.mu.Unlock()
	}
	cr.mu.Unlock()

	return volatile, true
}

// rooms returns the room ids the connection is subscribed to.
func (cr *customerRegistry) rooms(connectionID string) []string {
	cr.mu.RLock()
	c, ok := cr.customers[connectionID]
	cr.mu.RUnlock()
	if !ok {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.subscriptions))
	for roomID := range c.subscriptions {
		ids = append(ids, roomID)
	}
	return ids
}

// volatileFor returns the metadata attached to one subscription.
func (cr *customerRegistry) volatileFor(connectionID, roomID string) (json.RawMessage, bool) {
	cr.mu.RLock()
	c, ok := cr.customers[connectionID]
	cr.mu.RUnlock()
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	volatile, exists := c.subscriptions[roomID]
	return volatile, exists
}

// count returns the number of connections holding subscriptions.
func (cr *customerRegistry) count() int {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	return len(cr.customers)
}
