//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// BusPublisher is the write side of the fan-out bus. Publish is best-effort:
// the bus gives no guarantee beyond "accepted".
type BusPublisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// BusSubscriber is the read side of the fan-out bus. The returned channel
// carries raw envelope payloads and is closed when the subscription ends.
type BusSubscriber interface {
	Subscribe(ctx context.Context) (<-chan []byte, error)
}

// Bus is a connected fan-out bus handle. Construction must not touch the
// network; Connect does, so a startup failure is observable.
type Bus interface {
	BusPublisher
	BusSubscriber
	Connect(ctx context.Context) error
	Close() error
}

// LogProducer appends messages to the durable log. The client retries a
// bounded number of times before giving up; exhaustion loses durability for
// that message only, never live delivery.
type LogProducer interface {
	Connect(ctx context.Context) error
	Append(ctx context.Context, key, value []byte) error
	Close() error
}

// LogConsumer reads the durable log as part of a named consumer group.
// Fetch hands out the next record for the partitions this consumer owns;
// Commit advances the group cursor past a record and must only be called
// after the record has been durably handled (at-least-once).
type LogConsumer interface {
	Connect(ctx context.Context) error
	Fetch(ctx context.Context) (domain.Record, error)
	Commit(ctx context.Context, rec domain.Record) error
	Close() error
}

// MessageStore is the persistent store collaborator. Create is expected to
// be idempotent under redelivery (natural key on the message identity).
type MessageStore interface {
	Create(ctx context.Context, text string, producedAt time.Time) (int64, error)
}

// MessageSink consumes a decoded message that became visible on the bus.
type MessageSink interface {
	Consume(ctx context.Context, msg domain.Message) error
}

// LocalBroadcaster delivers a payload to every client connected to this
// instance. Implemented by the real-time transport.
type LocalBroadcaster interface {
	BroadcastToLocalClients(payload []byte)
}

// IHistoryRepository is the per-instance message history projection.
type IHistoryRepository interface {
	Append(msg domain.Message) error
	Recent(cursor *string) ([]domain.Message, *string, error)
}
