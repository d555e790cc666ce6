package bus

import (
	"chat-relay/domain"
	apperrors "chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// RedisBus is the fan-out bus backed by Redis pub/sub: sub-second delivery
// to every subscribed instance, no persistence. Publishes go through a
// circuit breaker so that a dead bus costs one failed call per reset window
// instead of a timeout per message.
type RedisBus struct {
	log      *slog.Logger
	url      string
	password string
	buffer   int
	client   *redis.Client
	pubsub   *redis.PubSub
	breaker  *gobreaker.CircuitBreaker
}

type BreakerConfig struct {
	FailureThreshold uint32
	ResetTimeout     time.Duration
}

func NewRedisBus(log *slog.Logger, url, password string, buffer int, breakerCfg BreakerConfig) *RedisBus {
	b := &RedisBus{log: log, url: url, password: password, buffer: buffer}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bus-publish",
		MaxRequests: 1,
		Timeout:     breakerCfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerCfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("bus circuit breaker state changed",
				"name", name, "from", from.String(), "to", to.String())
		},
	})
	return b
}

// Connect opens the client and verifies the bus is reachable. Kept apart
// from construction so a boot failure surfaces as an error, not as a
// silently pending connection.
func (b *RedisBus) Connect(ctx context.Context) error {
	opts, err := redis.ParseURL(b.url)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	if b.password != "" {
		opts.Password = b.password
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("bus ping: %w", err)
	}
	b.client = client
	return nil
}

func (b *RedisBus) Publish(ctx context.Context, payload []byte) error {
	if b.client == nil {
		return apperrors.ErrNotConnected
	}
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.client.Publish(ctx, domain.ChannelKey, payload).Err()
	})
	return err
}

// Subscribe opens the channel subscription and pumps raw payloads until the
// context is canceled or the connection drops. The returned channel is
// closed in both cases.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan []byte, error) {
	if b.client == nil {
		return nil, apperrors.ErrNotConnected
	}
	pubsub := b.client.Subscribe(ctx, domain.ChannelKey)
	// Receive forces the SUBSCRIBE round trip so a broken bus fails here.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("bus subscribe: %w", err)
	}
	b.pubsub = pubsub

	out := make(chan []byte, b.buffer)
	go func() {
		defer close(out)
		in := pubsub.Channel()
		for {
			select {
			case msg, ok := <-in:
				if !ok {
					b.log.Warn("bus subscription closed")
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) Close() error {
	if b.pubsub != nil {
		_ = b.pubsub.Close()
	}
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}
