// Package memory provides an in-process pubsub implementation, used in
// standalone deployments and tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/syntrixbase/concierge/internal/core/pubsub"
)

// ErrProviderClosed is returned when using a closed provider.
var ErrProviderClosed = errors.New("memory provider is closed")

// Provider implements pubsub.Provider with in-process channel routing.
type Provider struct {
	mu            sync.RWMutex
	subscriptions []*subscription
	closed        atomic.Bool
}

type subscription struct {
	subject string
	msgCh   chan pubsub.Message
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

// Compile-time check that Provider implements pubsub.Provider.
var _ pubsub.Provider = (*Provider)(nil)

// NewProvider creates an in-memory pubsub provider.
func NewProvider() *Provider {
	return &Provider{}
}

// NewPublisher creates a Publisher delivering to this provider's consumers.
func (p *Provider) NewPublisher() (pubsub.Publisher, error) {
	if p.closed.Load() {
		return nil, ErrProviderClosed
	}
	return &publisher{provider: p}, nil
}

// NewConsumer creates a Consumer receiving from this provider.
func (p *Provider) NewConsumer() (pubsub.Consumer, error) {
	if p.closed.Load() {
		return nil, ErrProviderClosed
	}
	return &consumer{provider: p}, nil
}

// Close shuts down the provider and all subscriptions.
func (p *Provider) Close() error {
	if p.closed.Swap(true) {
		return nil // Already closed
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sub := range p.subscriptions {
		sub.close()
	}
	p.subscriptions = nil
	return nil
}

func (p *Provider) publish(ctx context.Context, subject string, data []byte) error {
	if p.closed.Load() {
		return ErrProviderClosed
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, sub := range p.subscriptions {
		if sub.subject != subject {
			continue
		}
		select {
		case sub.msgCh <- pubsub.Message{Subject: subject, Data: data}:
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.ctx.Done():
			// Subscription cancelled, skip
		}
	}
	return nil
}

func (p *Provider) subscribe(ctx context.Context, subject string) (<-chan pubsub.Message, error) {
	if p.closed.Load() {
		return nil, ErrProviderClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		subject: subject,
		msgCh:   make(chan pubsub.Message, 64),
		ctx:     subCtx,
		cancel:  cancel,
	}

	p.mu.Lock()
	p.subscriptions = append(p.subscriptions, sub)
	p.mu.Unlock()

	go func() {
		<-subCtx.Done()
		p.remove(sub)
	}()

	return sub.msgCh, nil
}

func (p *Provider) remove(sub *subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.subscriptions {
		if s == sub {
			p.subscriptions = append(p.subscriptions[:i], p.subscriptions[i+1:]...)
			break
		}
	}
	sub.close()
}

func (s *subscription) close() {
	s.once.Do(func() {
		s.cancel()
		close(s.msgCh)
	})
}

type publisher struct {
	provider *Provider
}

func (p *publisher) Publish(ctx context.Context, subject string, data []byte) error {
	return p.provider.publish(ctx, subject, data)
}

func (p *publisher) Close() error { return nil }

type consumer struct {
	provider *Provider
}

func (c *consumer) Subscribe(ctx context.Context, subject string) (<-chan pubsub.Message, error) {
	return c.provider.subscribe(ctx, subject)
}
