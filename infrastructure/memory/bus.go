// Package memory provides in-process loopback implementations of the bus
// and log contracts. They back single-instance deployments that run without
// brokers, and the integration tests, where several "instances" share one
// Bus and one Log inside a single process.
package memory

import (
	apperrors "chat-relay/errors"
	"context"
	"sync"
)

// Bus is an in-process fan-out bus. Delivery is best-effort: a subscriber
// whose buffer is full loses the message, mirroring the non-durable
// semantics of the real bus.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan []byte
	buffer int
	closed bool
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{buffer: buffer}
}

func (b *Bus) Connect(_ context.Context) error { return nil }

func (b *Bus) Publish(_ context.Context, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return apperrors.ErrBusClosed
	}
	for _, sub := range b.subs {
		select {
		case sub <- payload:
		default:
			// Slow subscriber, the bus never blocks a publisher.
		}
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context) (<-chan []byte, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, apperrors.ErrBusClosed
	}
	sub := make(chan []byte, b.buffer)
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	out := make(chan []byte, b.buffer)
	go func() {
		defer close(out)
		for {
			select {
			case payload, ok := <-sub:
				if !ok {
					return
				}
				select {
				case out <- payload:
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

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub)
	}
	b.subs = nil
	return nil
}
