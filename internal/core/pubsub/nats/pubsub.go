package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/syntrixbase/concierge/internal/core/pubsub"
)

// natsPublisher implements pubsub.Publisher on the shared connection.
type natsPublisher struct {
	nc natsConnection
}

// Publish sends a message to the specified subject.
func (p *natsPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close releases resources. The underlying connection is owned by the
// provider.
func (p *natsPublisher) Close() error { return nil }

// natsConsumer implements pubsub.Consumer on the shared connection.
type natsConsumer struct {
	nc natsConnection
}

// Subscribe starts consuming messages on the subject. The returned channel
// is closed when the context is cancelled.
func (c *natsConsumer) Subscribe(ctx context.Context, subject string) (<-chan pubsub.Message, error) {
	natsCh := make(chan *nats.Msg, 64)
	sub, err := c.nc.ChanSubscribe(subject, natsCh)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	msgCh := make(chan pubsub.Message, 64)
	go func() {
		defer close(msgCh)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-natsCh:
				if !ok {
					return
				}
				select {
				case msgCh <- pubsub.Message{Subject: msg.Subject, Data: msg.Data}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return msgCh, nil
}
