package realtime

import (
	"context"
	"fmt"

	"github.com/syntrixbase/concierge/internal/ask"
)

// Operation names exposed on the internal ask dispatcher.
const (
	AskSubscribe   = "core:realtime:subscribe"
	AskJoin        = "core:realtime:join"
	AskUnsubscribe = "core:realtime:unsubscribe"
	AskPublish     = "core:realtime:publish"
)

// RegisterAskHandlers exposes the coordinator's operations on the internal
// dispatcher, one handler per fixed name.
func (h *HotelClerk) RegisterAskHandlers(bus *ask.Bus) error {
	if err := bus.Register(AskSubscribe, func(ctx context.Context, req any) (any, error) {
		r, ok := req.(*SubscribeRequest)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected request type %T", AskSubscribe, req)
		}
		return h.Subscribe(ctx, r)
	}); err != nil {
		return err
	}

	if err := bus.Register(AskJoin, func(ctx context.Context, req any) (any, error) {
		r, ok := req.(*JoinRequest)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected request type %T", AskJoin, req)
		}
		return h.Join(ctx, r)
	}); err != nil {
		return err
	}

	return bus.Register(AskUnsubscribe, func(ctx context.Context, req any) (any, error) {
		r, ok := req.(*UnsubscribeRequest)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected request type %T", AskUnsubscribe, req)
		}
		return nil, h.Unsubscribe(ctx, r)
	})
}
