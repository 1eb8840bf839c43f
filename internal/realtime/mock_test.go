package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/syntrixbase/concierge/internal/koncorde"
)

// mockEngine fakes the filter engine. By default it derives a stable id from
// the raw body so equivalent bodies always normalize to the same id, like
// the real content-derived identifiers.
type mockEngine struct {
	mu             sync.Mutex
	normalizeErr   error
	storeErr       error
	mintermsCount  int // minterm groups per normalized filter; default 1
	normalizeCalls int
	storeCalls     int
	storedIDs      []string
	removedIDs     []string
}

func newMockEngine() *mockEngine {
	return &mockEngine{mintermsCount: 1}
}

func (m *mockEngine) Normalize(ctx context.Context, index, collection string, body json.RawMessage) (*koncorde.Normalized, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.normalizeCalls++
	if m.normalizeErr != nil {
		return nil, m.normalizeErr
	}

	minterms := make([]koncorde.Minterm, m.mintermsCount)
	return &koncorde.Normalized{
		Index:      index,
		Collection: collection,
		ID:         fmt.Sprintf("%s-%s-%s", index, collection, string(body)),
		Minterms:   minterms,
	}, nil
}

func (m *mockEngine) Store(normalized *koncorde.Normalized) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeCalls++
	if m.storeErr != nil {
		return m.storeErr
	}
	m.storedIDs = append(m.storedIDs, normalized.ID)
	return nil
}

func (m *mockEngine) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removedIDs = append(m.removedIDs, id)
	return nil
}

func (m *mockEngine) stored() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.storedIDs...)
}

func (m *mockEngine) removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removedIDs...)
}

func (m *mockEngine) storeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeCalls
}

// mockNotifier records user notifications.
type mockNotifier struct {
	mu            sync.Mutex
	notifications []UserNotification
}

func (m *mockNotifier) NotifyUser(ctx context.Context, n UserNotification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
}

func (m *mockNotifier) all() []UserNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]UserNotification(nil), m.notifications...)
}

func (m *mockNotifier) last() (UserNotification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.notifications) == 0 {
		return UserNotification{}, false
	}
	return m.notifications[len(m.notifications)-1], true
}

// mockChecker reports a fixed liveness answer.
type mockChecker struct {
	alive bool
}

func (m *mockChecker) IsConnectionAlive(connectionID string) bool {
	return m.alive
}

// mockPropagator records propagated join diffs.
type mockPropagator struct {
	mu    sync.Mutex
	err   error
	diffs []JoinDiff
}

func (m *mockPropagator) PropagateJoin(ctx context.Context, diff JoinDiff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.diffs = append(m.diffs, diff)
	return nil
}

func (m *mockPropagator) all() []JoinDiff {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]JoinDiff(nil), m.diffs...)
}
