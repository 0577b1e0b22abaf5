// Package redisbus publishes transition events on a Redis pub/sub channel.
package redisbus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stockledger/internal/core"
	"stockledger/internal/infra/notify"
)

// DefaultChannel is used when none is configured.
const DefaultChannel = "stockledger:transitions"

// Publisher is a store observer that forwards every transition to Redis.
type Publisher struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger for publish failures.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTimeout bounds each publish call made from Observe.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// New connects to addr and verifies the server answers PING.
func New(ctx context.Context, addr, channel string, opts ...Option) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewWithClient(client, channel, opts...), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, channel string, opts ...Option) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	p := &Publisher{
		client:  client,
		channel: channel,
		timeout: 2 * time.Second,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Channel returns the pub/sub channel name.
func (p *Publisher) Channel() string { return p.channel }

// Publish sends the event for tr and returns the number of receivers.
func (p *Publisher) Publish(ctx context.Context, tr core.Transition) (int64, error) {
	payload, err := notify.Encode(tr)
	if err != nil {
		return 0, err
	}
	n, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return n, nil
}

// Observe publishes tr, logging rather than returning failures.
func (p *Publisher) Observe(tr core.Transition) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if _, err := p.Publish(ctx, tr); err != nil {
		p.logger.Warn("redis publish failed", zap.Uint64("sequence", tr.Sequence), zap.Error(err))
	}
}

// Close closes the underlying client.
func (p *Publisher) Close() error { return p.client.Close() }
