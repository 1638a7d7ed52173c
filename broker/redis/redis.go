// Package redis implements broker.Broker on Redis. Queues are Lists
// (LPUSH to enqueue, BRPOP for bounded blocking dequeue — key order gives
// the router's priority order for free), task bodies are Hashes, in-flight
// tasks live in an unacked Set, and dead-letter entries are Hashes tracked
// by an id Set.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	b := redisbroker.New(client)
//	if err := b.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fezwho/docintel/backoff"
	"github.com/fezwho/docintel/broker"
	"github.com/fezwho/docintel/deadletter"
)

// transportRetries is the bounded internal retry budget for transient
// connectivity failures before a TransportError surfaces to the caller.
const transportRetries = 3

// Compile-time interface checks.
var (
	_ broker.Broker    = (*Broker)(nil)
	_ deadletter.Store = (*Broker)(nil)
)

// Option configures the Broker.
type Option func(*Broker)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithRetryPolicy sets the backoff policy for internal transport retries.
func WithRetryPolicy(p backoff.Policy) Option {
	return func(b *Broker) { b.retry = p }
}

// Broker implements broker.Broker and deadletter.Store backed by Redis.
// The client may be shared across slots; go-redis synchronizes internally.
type Broker struct {
	client goredis.Cmdable
	retry  backoff.Policy
	logger *slog.Logger
}

// New creates a Redis-backed broker. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Broker {
	b := &Broker{
		client: client,
		retry:  backoff.DefaultPolicy(),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Client returns the underlying Redis client.
func (b *Broker) Client() goredis.Cmdable { return b.client }

// Ping verifies the Redis connection is alive.
func (b *Broker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return broker.NewTransportError("ping", err)
	}
	return nil
}

// Close is a no-op — the caller owns the Redis client lifecycle.
func (b *Broker) Close() error { return nil }

// do runs fn, retrying transient failures with backoff up to the retry
// budget. Exhausted retries surface as a TransportError.
func (b *Broker) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
		if attempt >= transportRetries {
			break
		}

		delay := b.retry.Next(attempt + 1)
		b.logger.Warn("transient broker failure, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return broker.NewTransportError(op, ctx.Err())
		case <-time.After(delay):
		}
	}
	return broker.NewTransportError(op, err)
}

// isTransient reports whether err looks like a connectivity failure worth
// retrying. Protocol-level replies (including redis.Nil) and context
// cancellation are not transient.
func isTransient(err error) bool {
	if errors.Is(err, goredis.Nil) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var redisErr goredis.Error
	if errors.As(err, &redisErr) {
		// Error replies from the server mean the connection works.
		return false
	}
	return true
}
