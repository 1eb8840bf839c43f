package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClerk(t *testing.T, limits Limits, opts ...Option) (*HotelClerk, *mockEngine, *mockNotifier) {
	t.Helper()
	engine := newMockEngine()
	notifier := &mockNotifier{}
	opts = append([]Option{WithNotifier(notifier)}, opts...)
	clerk := NewHotelClerk(engine, limits, testLogger(), opts...)
	return clerk, engine, notifier
}

func subscribeReq(connID, body string) *SubscribeRequest {
	return &SubscribeRequest{
		Index:        "index",
		Collection:   "collection",
		Body:         json.RawMessage(body),
		ConnectionID: connID,
	}
}

func TestSubscribeCreatesRoom(t *testing.T) {
	clerk, engine, notifier := newTestClerk(t, Limits{})

	result, err := clerk.Subscribe(context.Background(), subscribeReq("conn-1", `{"equals":{"firstName":"Ada"}}`))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NotEmpty(t, result.RoomID)
	assert.NotEmpty(t, result.Channel)
	assert.Equal(t, 1, clerk.RoomsCount())
	assert.Equal(t, 1, clerk.CustomersCount())
	assert.Equal(t, []string{result.RoomID}, engine.stored())

	room, ok := clerk.Room(result.RoomID)
	require.True(t, ok)
	assert.Equal(t, "index", room.Index)
	assert.Equal(t, "collection", room.Collection)
	assert.Equal(t, 1, room.Subscribers())

	n, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, UserEntered, n.Event)
	assert.Equal(t, 1, n.Count)
	assert.Equal(t, result.RoomID, n.RoomID)
	assert.Equal(t, "conn-1", n.ConnectionID)
}

func TestSubscribeDistinctFiltersCreateDistinctRooms(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{})
	ctx := context.Background()

	first, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{"equals":{"firstName":"Ada"}}`))
	require.NoError(t, err)
	second, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{"exists":"lastName"}`))
	require.NoError(t, err)

	assert.NotEqual(t, first.RoomID, second.RoomID)
	assert.Equal(t, 2, clerk.RoomsCount())
	assert.Equal(t, 1, clerk.CustomersCount())
}

func TestSubscribeSameFilterSharesRoom(t *testing.T) {
	clerk, engine, notifier := newTestClerk(t, Limits{})
	ctx := context.Background()

	first, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{"exists":"name"}`))
	require.NoError(t, err)
	second, err := clerk.Subscribe(ctx, subscribeReq("conn-2", `{"exists":"name"}`))
	require.NoError(t, err)

	assert.Equal(t, first.RoomID, second.RoomID)
	assert.Equal(t, first.Channel, second.Channel)
	assert.Equal(t, 1, clerk.RoomsCount())
	assert.Equal(t, 2, clerk.CustomersCount())
	assert.Equal(t, 1, engine.storeCount(), "filter stored on room creation only")

	room, ok := clerk.Room(first.RoomID)
	require.True(t, ok)
	assert.Equal(t, 2, room.Subscribers())

	n, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, 2, n.Count)
}

func TestSubscribeRepeatedIsIdempotent(t *testing.T) {
	clerk, engine, _ := newTestClerk(t, Limits{})
	ctx := context.Background()

	first, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{"exists":"name"}`))
	require.NoError(t, err)
	second, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{"exists":"name"}`))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, clerk.RoomsCount())
	assert.Equal(t, 1, engine.storeCount())

	room, ok := clerk.Room(first.RoomID)
	require.True(t, ok)
	assert.Equal(t, 1, room.Subscribers(), "repeated registration does not bump the count")
}

func TestSubscribeRefreshesVolatileMetadata(t *testing.T) {
	clerk, _, notifier := newTestClerk(t, Limits{})
	ctx := context.Background()

	req := subscribeReq("conn-1", `{"exists":"name"}`)
	req.Volatile = json.RawMessage(`{"attempt":1}`)
	result, err := clerk.Subscribe(ctx, req)
	require.NoError(t, err)

	req = subscribeReq("conn-1", `{"exists":"name"}`)
	req.Volatile = json.RawMessage(`{"attempt":2}`)
	_, err = clerk.Subscribe(ctx, req)
	require.NoError(t, err)

	err = clerk.Unsubscribe(ctx, &UnsubscribeRequest{RoomID: result.RoomID, ConnectionID: "conn-1"})
	require.NoError(t, err)

	// The leave notification replays the latest metadata the connection
	// registered with.
	n, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, UserLeft, n.Event)
	assert.JSONEq(t, `{"attempt":2}`, string(n.Volatile))
}

func TestSubscribeMissingArguments(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{})
	ctx := context.Background()

	_, err := clerk.Subscribe(ctx, &SubscribeRequest{Collection: "collection", ConnectionID: "conn-1"})
	var rtErr *Error
	require.ErrorAs(t, err, &rtErr)
	assert.Equal(t, IDMissingArgument, rtErr.ID)

	_, err = clerk.Subscribe(ctx, &SubscribeRequest{Index: "index", ConnectionID: "conn-1"})
	require.ErrorAs(t, err, &rtErr)
	assert.Equal(t, IDMissingArgument, rtErr.ID)

	assert.Equal(t, 0, clerk.RoomsCount())
}

func TestSubscribeEmptyFilterIsCatchAll(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{})

	result, err := clerk.Subscribe(context.Background(), subscribeReq("conn-1", `{}`))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, clerk.RoomsCount())
}

func TestSubscribeInvalidScope(t *testing.T) {
	clerk, engine, _ := newTestClerk(t, Limits{})

	req := subscribeReq("conn-1", `{}`)
	req.Scope = "foo"
	_, err := clerk.Subscribe(context.Background(), req)

	var rtErr *Error
	require.ErrorAs(t, err, &rtErr)
	assert.Equal(t, IDInvalidScope, rtErr.ID)
	assert.Equal(t, 0, clerk.RoomsCount())
	assert.Equal(t, 0, engine.storeCount())
}

func TestSubscribeInvalidUsers(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{})

	req := subscribeReq("conn-1", `{}`)
	req.Users = "everybody"
	_, err := clerk.Subscribe(context.Background(), req)

	var rtErr *Error
	require.ErrorAs(t, err, &rtErr)
	assert.Equal(t, IDInvalidUsers, rtErr.ID)
}

func TestSubscribeDefaultChannelPolicy(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{})

	result, err := clerk.Subscribe(context.Background(), subscribeReq("conn-1", `{}`))
	require.NoError(t, err)

	room, ok := clerk.Room(result.RoomID)
	require.True(t, ok)
	channels := room.Channels()
	require.Len(t, channels, 1)
	spec, ok := channels[result.Channel]
	require.True(t, ok)
	assert.Equal(t, ScopeAll, spec.Scope)
	assert.Equal(t, UsersNone, spec.Users)
}

func TestSubscribeDistinctPoliciesShareRoom(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{})
	ctx := context.Background()

	req := subscribeReq("conn-1", `{}`)
	req.Scope = ScopeIn
	first, err := clerk.Subscribe(ctx, req)
	require.NoError(t, err)

	req = subscribeReq("conn-2", `{}`)
	req.Scope = ScopeOut
	second, err := clerk.Subscribe(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.RoomID, second.RoomID)
	assert.NotEqual(t, first.Channel, second.Channel)

	room, ok := clerk.Room(first.RoomID)
	require.True(t, ok)
	assert.Len(t, room.Channels(), 2)
}

func TestSubscribeDiscardsDeadConnection(t *testing.T) {
	clerk, engine, notifier := newTestClerk(t, Limits{},
		WithConnectionChecker(&mockChecker{alive: false}))

	result, err := clerk.Subscribe(context.Background(), subscribeReq("conn-1", `{}`))
	require.NoError(t, err)
	assert.Nil(t, result, "dead connections are silently discarded")
	assert.Equal(t, 0, clerk.RoomsCount())
	assert.Equal(t, 0, engine.storeCount())
	assert.Empty(t, notifier.all())
}

func TestSubscribeNormalizeErrorPropagates(t *testing.T) {
	clerk, engine, _ := newTestClerk(t, Limits{})
	engine.normalizeErr = errors.New("unparseable filter")

	_, err := clerk.Subscribe(context.Background(), subscribeReq("conn-1", `{"nope":1}`))
	require.Error(t, err)
	assert.Equal(t, 0, clerk.RoomsCount())
}

func TestSubscribeStoreErrorLeavesNoState(t *testing.T) {
	clerk, engine, _ := newTestClerk(t, Limits{})
	engine.storeErr = errors.New("engine full")

	_, err := clerk.Subscribe(context.Background(), subscribeReq("conn-1", `{}`))
	require.Error(t, err)
	assert.Equal(t, 0, clerk.RoomsCount())
	assert.Equal(t, 0, clerk.CustomersCount())
}

func TestSubscribeMintermsLimit(t *testing.T) {
	clerk, engine, _ := newTestClerk(t, Limits{SubscriptionMinterms: 4})
	engine.mintermsCount = 5

	_, err := clerk.Subscribe(context.Background(), subscribeReq("conn-1", `{}`))
	var rtErr *Error
	require.ErrorAs(t, err, &rtErr)
	assert.Equal(t, IDTooManyTerms, rtErr.ID)
	assert.Equal(t, 0, clerk.RoomsCount())
	assert.Equal(t, 0, engine.storeCount())
}

func TestSubscribeMintermsLimitDisabled(t *testing.T) {
	clerk, engine, _ := newTestClerk(t, Limits{SubscriptionMinterms: 0})
	engine.mintermsCount = 500

	_, err := clerk.Subscribe(context.Background(), subscribeReq("conn-1", `{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, clerk.RoomsCount())
}

func TestSubscribeRoomsLimit(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{SubscriptionRooms: 2})
	ctx := context.Background()

	_, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{"exists":"a"}`))
	require.NoError(t, err)
	existing, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{"exists":"b"}`))
	require.NoError(t, err)

	_, err = clerk.Subscribe(ctx, subscribeReq("conn-1", `{"exists":"c"}`))
	var rtErr *Error
	require.ErrorAs(t, err, &rtErr)
	assert.Equal(t, IDTooManyRooms, rtErr.ID)
	assert.Equal(t, 2, clerk.RoomsCount())

	// Joining an existing room does not create one and stays allowed.
	result, err := clerk.Subscribe(ctx, subscribeReq("conn-2", `{"exists":"b"}`))
	require.NoError(t, err)
	assert.Equal(t, existing.RoomID, result.RoomID)
}

func TestSubscribeRoomsLimitDisabled(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{SubscriptionRooms: 0})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := clerk.Subscribe(ctx, subscribeReq("conn-1", fmt.Sprintf(`{"exists":"f%d"}`, i)))
		require.NoError(t, err)
	}
	assert.Equal(t, 20, clerk.RoomsCount())
}

func TestSubscribeConcurrentSameFilter(t *testing.T) {
	clerk, engine, _ := newTestClerk(t, Limits{})
	ctx := context.Background()

	const workers = 16
	results := make([]*SubscribeResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := clerk.Subscribe(ctx, subscribeReq(fmt.Sprintf("conn-%d", i), `{"exists":"name"}`))
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	require.NotNil(t, results[0])
	for _, result := range results[1:] {
		require.NotNil(t, result)
		assert.Equal(t, results[0].RoomID, result.RoomID)
	}
	assert.Equal(t, 1, clerk.RoomsCount())
	assert.Equal(t, 1, engine.storeCount(), "race losers reuse the winner's room")

	room, ok := clerk.Room(results[0].RoomID)
	require.True(t, ok)
	assert.Equal(t, workers, room.Subscribers())
}

func TestSubscribeDoesNotLandOnDestroyedRoom(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{})
	ctx := context.Background()

	first, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{"equals":{"age":42}}`))
	require.NoError(t, err)
	stale, ok := clerk.Room(first.RoomID)
	require.True(t, ok)

	err = clerk.Unsubscribe(ctx, &UnsubscribeRequest{RoomID: first.RoomID, ConnectionID: "conn-1"})
	require.NoError(t, err)
	require.Equal(t, 0, clerk.RoomsCount())

	// A registration arriving on the destroyed incarnation must leave no
	// trace: no orphaned customer, no phantom subscriber count.
	_, _, _, live := clerk.subscribeToRoom(stale, "conn-2", ScopeAll, UsersNone, nil)
	assert.False(t, live)
	assert.Equal(t, 0, clerk.CustomersCount())
	assert.Equal(t, 0, clerk.RoomsCount())

	// The public path resolves again and lands on a fresh incarnation.
	second, err := clerk.Subscribe(ctx, subscribeReq("conn-2", `{"equals":{"age":42}}`))
	require.NoError(t, err)
	assert.Equal(t, first.RoomID, second.RoomID)
	assert.Equal(t, 1, clerk.RoomsCount())
	assert.Equal(t, 1, clerk.CustomersCount())

	err = clerk.Unsubscribe(ctx, &UnsubscribeRequest{RoomID: second.RoomID, ConnectionID: "conn-2"})
	require.NoError(t, err)
	assert.Equal(t, 0, clerk.RoomsCount())
	assert.Equal(t, 0, clerk.CustomersCount())
}

func TestSubscribeConcurrentWithLastUnsubscribe(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{})
	ctx := context.Background()

	const (
		workers = 4
		rounds  = 100
	)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", i)
			for j := 0; j < rounds; j++ {
				result, err := clerk.Subscribe(ctx, subscribeReq(connID, `{"exists":"city"}`))
				if !assert.NoError(t, err) || !assert.NotNil(t, result) {
					return
				}
				err = clerk.Unsubscribe(ctx, &UnsubscribeRequest{RoomID: result.RoomID, ConnectionID: connID})
				if !assert.NoError(t, err) {
					return
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, clerk.RoomsCount())
	assert.Equal(t, 0, clerk.CustomersCount())
}

func TestJoinExistingRoom(t *testing.T) {
	clerk, _, notifier := newTestClerk(t, Limits{})
	ctx := context.Background()

	created, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{}`))
	require.NoError(t, err)

	joined, err := clerk.Join(ctx, &JoinRequest{RoomID: created.RoomID, ConnectionID: "conn-2"})
	require.NoError(t, err)
	assert.Equal(t, created, joined)
	assert.Equal(t, 1, clerk.RoomsCount())

	n, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, UserEntered, n.Event)
	assert.Equal(t, 2, n.Count)
}

func TestJoinUnknownRoom(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{})

	_, err := clerk.Join(context.Background(), &JoinRequest{RoomID: "ghost", ConnectionID: "conn-1"})
	var rtErr *Error
	require.ErrorAs(t, err, &rtErr)
	assert.Equal(t, IDRoomNotFound, rtErr.ID)
}

func TestJoinMissingRoomID(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{})

	_, err := clerk.Join(context.Background(), &JoinRequest{ConnectionID: "conn-1"})
	var rtErr *Error
	require.ErrorAs(t, err, &rtErr)
	assert.Equal(t, IDMissingArgument, rtErr.ID)
}

func TestJoinPropagatesDiffOnStateChange(t *testing.T) {
	propagator := &mockPropagator{}
	clerk, _, _ := newTestClerk(t, Limits{}, WithPropagator(propagator))
	ctx := context.Background()

	created, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{}`))
	require.NoError(t, err)

	_, err = clerk.Join(ctx, &JoinRequest{RoomID: created.RoomID, ConnectionID: "conn-2"})
	require.NoError(t, err)

	diffs := propagator.all()
	require.Len(t, diffs, 1)
	assert.Equal(t, created.RoomID, diffs[0].RoomID)
	assert.Equal(t, "index", diffs[0].Index)
	assert.Equal(t, "collection", diffs[0].Collection)
	assert.Equal(t, ScopeAll, diffs[0].Scope)
	assert.Equal(t, UsersNone, diffs[0].Users)
	assert.Equal(t, "conn-2", diffs[0].ConnectionID)
}

func TestJoinWithoutStateChangeDoesNotPropagate(t *testing.T) {
	propagator := &mockPropagator{}
	clerk, _, _ := newTestClerk(t, Limits{}, WithPropagator(propagator))
	ctx := context.Background()

	created, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{}`))
	require.NoError(t, err)

	_, err = clerk.Join(ctx, &JoinRequest{RoomID: created.RoomID, ConnectionID: "conn-2"})
	require.NoError(t, err)
	_, err = clerk.Join(ctx, &JoinRequest{RoomID: created.RoomID, ConnectionID: "conn-2"})
	require.NoError(t, err)

	assert.Len(t, propagator.all(), 1, "idempotent re-join is not broadcast")
}

func TestApplyJoinDiffDoesNotEcho(t *testing.T) {
	propagator := &mockPropagator{}
	clerk, _, _ := newTestClerk(t, Limits{}, WithPropagator(propagator))
	ctx := context.Background()

	created, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{}`))
	require.NoError(t, err)

	err = clerk.ApplyJoinDiff(ctx, JoinDiff{
		RoomID:       created.RoomID,
		Index:        "index",
		Collection:   "collection",
		Scope:        ScopeAll,
		Users:        UsersNone,
		ConnectionID: "peer-conn",
	})
	require.NoError(t, err)

	assert.Empty(t, propagator.all(), "replayed diffs never go back on the bus")

	room, ok := clerk.Room(created.RoomID)
	require.True(t, ok)
	assert.Equal(t, 2, room.Subscribers())
}

func TestApplyJoinDiffUnknownRoom(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{})

	err := clerk.ApplyJoinDiff(context.Background(), JoinDiff{RoomID: "ghost", ConnectionID: "c"})
	require.Error(t, err)
}

func TestUnsubscribeDestroysEmptyRoom(t *testing.T) {
	clerk, engine, notifier := newTestClerk(t, Limits{})
	ctx := context.Background()

	created, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{}`))
	require.NoError(t, err)

	err = clerk.Unsubscribe(ctx, &UnsubscribeRequest{RoomID: created.RoomID, ConnectionID: "conn-1"})
	require.NoError(t, err)

	assert.Equal(t, 0, clerk.RoomsCount())
	assert.Equal(t, 0, clerk.CustomersCount())
	assert.Equal(t, []string{created.RoomID}, engine.removed())

	n, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, UserLeft, n.Event)
	assert.Equal(t, 0, n.Count)
}

func TestUnsubscribeKeepsPopulatedRoom(t *testing.T) {
	clerk, engine, _ := newTestClerk(t, Limits{})
	ctx := context.Background()

	created, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{}`))
	require.NoError(t, err)
	_, err = clerk.Subscribe(ctx, subscribeReq("conn-2", `{}`))
	require.NoError(t, err)

	err = clerk.Unsubscribe(ctx, &UnsubscribeRequest{RoomID: created.RoomID, ConnectionID: "conn-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, clerk.RoomsCount())
	assert.Empty(t, engine.removed())

	room, ok := clerk.Room(created.RoomID)
	require.True(t, ok)
	assert.Equal(t, 1, room.Subscribers())
}

func TestUnsubscribeUnknownRoom(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{})

	err := clerk.Unsubscribe(context.Background(), &UnsubscribeRequest{RoomID: "ghost", ConnectionID: "conn-1"})
	var rtErr *Error
	require.ErrorAs(t, err, &rtErr)
	assert.Equal(t, IDRoomNotFound, rtErr.ID)
}

func TestUnsubscribeNotSubscribed(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{})
	ctx := context.Background()

	created, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{}`))
	require.NoError(t, err)

	err = clerk.Unsubscribe(ctx, &UnsubscribeRequest{RoomID: created.RoomID, ConnectionID: "conn-2"})
	var rtErr *Error
	require.ErrorAs(t, err, &rtErr)
	assert.Equal(t, IDNotSubscribed, rtErr.ID)
	assert.Equal(t, 1, clerk.RoomsCount())
}

func TestRemoveConnectionTearsDownAllSubscriptions(t *testing.T) {
	clerk, engine, _ := newTestClerk(t, Limits{})
	ctx := context.Background()

	_, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{"exists":"a"}`))
	require.NoError(t, err)
	shared, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{"exists":"b"}`))
	require.NoError(t, err)
	_, err = clerk.Subscribe(ctx, subscribeReq("conn-2", `{"exists":"b"}`))
	require.NoError(t, err)

	clerk.RemoveConnection(ctx, "conn-1")

	assert.Equal(t, 1, clerk.RoomsCount(), "room shared with conn-2 survives")
	assert.Equal(t, 1, clerk.CustomersCount())
	assert.Len(t, engine.removed(), 1)

	room, ok := clerk.Room(shared.RoomID)
	require.True(t, ok)
	assert.Equal(t, 1, room.Subscribers())
}

func TestRemoveConnectionUnknownIsNoop(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{})
	clerk.RemoveConnection(context.Background(), "ghost")
	assert.Equal(t, 0, clerk.RoomsCount())
}

func TestListRooms(t *testing.T) {
	clerk, _, _ := newTestClerk(t, Limits{})
	ctx := context.Background()

	_, err := clerk.Subscribe(ctx, subscribeReq("conn-1", `{"exists":"a"}`))
	require.NoError(t, err)
	_, err = clerk.Subscribe(ctx, subscribeReq("conn-2", `{"exists":"b"}`))
	require.NoError(t, err)

	rooms := clerk.ListRooms()
	require.Len(t, rooms, 2)
	for _, info := range rooms {
		assert.Equal(t, "index", info.Index)
		assert.Equal(t, "collection", info.Collection)
		assert.Equal(t, 1, info.Subscribers)
	}
}
