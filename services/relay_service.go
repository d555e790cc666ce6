//go:generate go run go.uber.org/mock/mockgen -source=relay_service.go -destination=../mocks/mock_relay_service.go -package=mocks
package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"log/slog"
	"sync"
)

type IRelayService interface {
	Submit(ctx context.Context, text string)
}

// RelayService is the ingress relay: one Submit fans a client message onto
// the bus (live path) and into the durable log (persistence path). The two
// side effects are issued concurrently and fail independently; neither
// outcome reaches the submitting client.
type RelayService struct {
	log      *slog.Logger
	bus      contract.BusPublisher
	producer contract.LogProducer
	wg       sync.WaitGroup
}

func NewRelayService(log *slog.Logger, bus contract.BusPublisher, producer contract.LogProducer) *RelayService {
	return &RelayService{log: log, bus: bus, producer: producer}
}

// Submit is fire-and-forget with respect to the caller: it returns as soon
// as both I/O operations are in flight. The caller's context cancellation
// must not abort deliveries already accepted, hence WithoutCancel.
func (s *RelayService) Submit(ctx context.Context, text string) {
	msg := domain.NewMessage(text)
	payload, err := msg.Encode()
	if err != nil {
		// Cannot happen for a plain text field, but a relay never panics.
		s.log.Error("message encode failed", "error", err)
		return
	}

	detached := context.WithoutCancel(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.bus.Publish(detached, payload); err != nil {
			// Live fan-out degrades silently, no retry on this path.
			s.log.Error("bus publish failed, live fan-out degraded", "error", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := s.producer.Append(detached, msg.LogKey(), payload); err != nil {
			// Bounded retries are exhausted inside the log client. Live
			// users may still have seen the message via the bus.
			s.log.Error("log append failed, durability lost for message", "error", err)
		}
	}()
}

// Drain waits for in-flight deliveries, used during shutdown and tests.
func (s *RelayService) Drain() {
	s.wg.Wait()
}
