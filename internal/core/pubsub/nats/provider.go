// Package nats implements the pubsub abstraction on a NATS connection.
// Cluster state gossip is ephemeral, so plain core NATS publish/subscribe is
// used: a node that was offline rebuilds its registry from live connections,
// not from replayed messages.
package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/syntrixbase/concierge/internal/core/pubsub"
)

// natsConnection abstracts *nats.Conn for testing purposes.
type natsConnection interface {
	Publish(subject string, data []byte) error
	ChanSubscribe(subject string, ch chan *nats.Msg) (*nats.Subscription, error)
	Close()
}

// natsConnectFunc is a function type for connecting to NATS (injectable for
// testing).
type natsConnectFunc func(url string, opts ...nats.Option) (natsConnection, error)

var defaultNatsConnect natsConnectFunc = func(url string, opts ...nats.Option) (natsConnection, error) {
	return nats.Connect(url, opts...)
}

// Provider implements pubsub.Provider using a NATS connection.
type Provider struct {
	url  string
	name string
	nc   natsConnection

	natsConnect natsConnectFunc // injectable for testing
}

// Compile-time checks.
var (
	_ pubsub.Provider    = (*Provider)(nil)
	_ pubsub.Connectable = (*Provider)(nil)
)

// NewProvider creates a NATS-based pubsub provider. Connect must be called
// before creating publishers or consumers.
func NewProvider(url, name string) *Provider {
	return &Provider{
		url:         url,
		name:        name,
		natsConnect: defaultNatsConnect,
	}
}

// Connect establishes the NATS connection.
func (p *Provider) Connect(ctx context.Context) error {
	connectFn := p.natsConnect
	if connectFn == nil {
		connectFn = defaultNatsConnect
	}

	nc, err := connectFn(p.url,
		nats.Name(p.name),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", p.url, err)
	}
	p.nc = nc

	slog.Info("Connected to NATS", "url", p.url)
	return nil
}

// NewPublisher creates a Publisher backed by the NATS connection.
func (p *Provider) NewPublisher() (pubsub.Publisher, error) {
	if p.nc == nil {
		return nil, fmt.Errorf("NATS not connected, call Connect first")
	}
	return &natsPublisher{nc: p.nc}, nil
}

// NewConsumer creates a Consumer backed by the NATS connection.
func (p *Provider) NewConsumer() (pubsub.Consumer, error) {
	if p.nc == nil {
		return nil, fmt.Errorf("NATS not connected, call Connect first")
	}
	return &natsConsumer{nc: p.nc}, nil
}

// Close tears down the NATS connection.
func (p *Provider) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.nc = nil
	}
	return nil
}
