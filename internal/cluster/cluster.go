// Package cluster keeps subscriber state consistent across nodes: local
// joins that changed registry state are broadcast on the bus, and peer diffs
// are applied locally without re-running filter normalization.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/syntrixbase/concierge/internal/core/pubsub"
	"github.com/syntrixbase/concierge/internal/realtime"
)

// EventJoin is the bus subject carrying join diffs.
const EventJoin = "core:hotelClerk:join"

// Config holds cluster synchronization settings.
type Config struct {
	// Enabled turns cluster propagation on. Disabled nodes run standalone.
	Enabled bool `yaml:"enabled"`

	// URL is the NATS server address.
	URL string `yaml:"url"`

	// NodeID identifies this node on the bus. Defaults to a random id.
	NodeID string `yaml:"node_id"`
}

// DefaultConfig returns safe defaults for development.
func DefaultConfig() Config {
	return Config{
		Enabled: false,
		URL:     "nats://localhost:4222",
	}
}

// envelope wraps a diff with its origin so nodes can ignore their own
// broadcasts: NATS delivers published messages back to local subscribers.
type envelope struct {
	NodeID string            `json:"nodeId"`
	Diff   realtime.JoinDiff `json:"diff"`
}

// Gate broadcasts join diffs to peer nodes. It implements
// realtime.Propagator.
type Gate struct {
	nodeID    string
	publisher pubsub.Publisher
	logger    *slog.Logger
}

// Compile-time check.
var _ realtime.Propagator = (*Gate)(nil)

// NewGate creates a propagation gate publishing on the bus.
func NewGate(nodeID string, publisher pubsub.Publisher, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		nodeID:    nodeID,
		publisher: publisher,
		logger:    logger.With("component", "cluster"),
	}
}

// PropagateJoin emits the diff so peer nodes can apply the same
// subscriber-count change.
func (g *Gate) PropagateJoin(ctx context.Context, diff realtime.JoinDiff) error {
	data, err := json.Marshal(envelope{NodeID: g.nodeID, Diff: diff})
	if err != nil {
		return fmt.Errorf("failed to encode join diff: %w", err)
	}
	if err := g.publisher.Publish(ctx, EventJoin, data); err != nil {
		return fmt.Errorf("failed to publish join diff: %w", err)
	}
	g.logger.Debug("Join propagated", "roomId", diff.RoomID, "connectionId", diff.ConnectionID)
	return nil
}

// DiffApplier applies a peer's subscription state change locally.
type DiffApplier interface {
	ApplyJoinDiff(ctx context.Context, diff realtime.JoinDiff) error
}

// Listener consumes peer join diffs from the bus and applies them.
type Listener struct {
	nodeID   string
	consumer pubsub.Consumer
	applier  DiffApplier
	logger   *slog.Logger
}

// NewListener creates a bus listener for peer diffs.
func NewListener(nodeID string, consumer pubsub.Consumer, applier DiffApplier, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		nodeID:   nodeID,
		consumer: consumer,
		applier:  applier,
		logger:   logger.With("component", "cluster"),
	}
}

// Start begins consuming peer diffs until the context is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	msgCh, err := l.consumer.Subscribe(ctx, EventJoin)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", EventJoin, err)
	}

	go l.run(ctx, msgCh)
	l.logger.Info("Cluster listener started", "nodeId", l.nodeID)
	return nil
}

func (l *Listener) run(ctx context.Context, msgCh <-chan pubsub.Message) {
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Cluster listener stopping")
			return
		case msg, ok := <-msgCh:
			if !ok {
				l.logger.Info("Cluster bus channel closed")
				return
			}
			l.handle(ctx, msg)
		}
	}
}

func (l *Listener) handle(ctx context.Context, msg pubsub.Message) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		l.logger.Warn("Dropping malformed cluster message", "subject", msg.Subject, "error", err)
		return
	}
	if env.NodeID == l.nodeID {
		return
	}

	if err := l.applier.ApplyJoinDiff(ctx, env.Diff); err != nil {
		l.logger.Warn("Failed to apply peer join diff",
			"roomId", env.Diff.RoomID, "nodeId", env.NodeID, "error", err)
	}
}
