// Package pubsub provides a generic pub/sub abstraction for message-based
// communication between cluster nodes.
package pubsub

import (
	"context"
	"io"
)

// Message is a received message.
type Message struct {
	// Subject is the message subject/topic.
	Subject string

	// Data is the raw message payload.
	Data []byte
}

// Publisher publishes messages to the bus.
type Publisher interface {
	// Publish sends a message to the specified subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Close releases resources.
	Close() error
}

// Consumer consumes messages from the bus.
type Consumer interface {
	// Subscribe starts consuming messages on the subject and returns a
	// channel. The channel is closed when the context is cancelled or the
	// consumer is torn down.
	Subscribe(ctx context.Context, subject string) (<-chan Message, error)
}

// Provider provides factory methods for creating publishers and consumers.
// This interface abstracts the underlying message broker (NATS, in-memory)
// allowing different implementations to be swapped transparently.
type Provider interface {
	io.Closer

	// NewPublisher creates a new Publisher.
	NewPublisher() (Publisher, error)

	// NewConsumer creates a new Consumer.
	NewConsumer() (Consumer, error)
}

// Connectable is an optional interface for providers that need to establish
// a connection before they can be used. Memory-based providers typically
// don't implement this interface.
type Connectable interface {
	Connect(ctx context.Context) error
}
