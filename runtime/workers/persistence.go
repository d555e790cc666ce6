package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"log/slog"
	"sync"
	"time"
)

// ConsumerState is the persistence consumer's pause state. It is transient
// and in-memory: a restarted consumer always begins Running.
type ConsumerState int

const (
	StateRunning ConsumerState = iota
	StatePaused
)

func (s ConsumerState) String() string {
	if s == StatePaused {
		return "Paused"
	}
	return "Running"
}

// PersistenceConsumer pulls records from the durable log and writes each to
// the persistent store, committing the group cursor only after a successful
// write. On a store failure it pauses consumption for a fixed window, then
// retries the same record: the cursor never moved, so nothing is skipped,
// only delayed.
//
// One consumer instance owns the partitions its group membership assigns
// to it, so a pause here never stalls partitions held by other members.
// Start several instances in the same group to isolate partitions from
// each other's pauses.
type PersistenceConsumer struct {
	log      *slog.Logger
	consumer contract.LogConsumer
	store    contract.MessageStore
	pauseFor time.Duration

	mu       sync.Mutex
	state    ConsumerState
	resumeAt time.Time
}

func NewPersistenceConsumer(log *slog.Logger, consumer contract.LogConsumer, store contract.MessageStore, pauseFor time.Duration) *PersistenceConsumer {
	return &PersistenceConsumer{
		log:      log,
		consumer: consumer,
		store:    store,
		pauseFor: pauseFor,
		state:    StateRunning,
	}
}

// State reports the current pause state and, when paused, the scheduled
// resume time.
func (c *PersistenceConsumer) State() (ConsumerState, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.resumeAt
}

func (c *PersistenceConsumer) Run(ctx context.Context) error {
	for {
		rec, err := c.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Group rebalance or broker trouble: surface to the
			// supervisor, which restarts us from the committed cursor.
			return err
		}
		if !c.persist(ctx, rec) {
			return nil
		}
	}
}

// persist writes one record to the store, pausing and retrying the same
// record until it succeeds. Returns false when ctx was canceled mid-cycle.
//
// A content error (undecodable envelope) is handled exactly like a store
// failure: pause rather than drop. The log retains the record either way.
func (c *PersistenceConsumer) persist(ctx context.Context, rec domain.Record) bool {
	for {
		err := c.writeOnce(ctx, rec)
		if err == nil {
			if err := c.consumer.Commit(ctx, rec); err != nil {
				if ctx.Err() != nil {
					return false
				}
				// The write landed but the cursor did not move; the
				// record will be redelivered and upserted again.
				c.log.Warn("cursor commit failed, expect redelivery",
					"partition", rec.Partition, "offset", rec.Offset, "error", err)
			}
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		c.log.Error("store write failed, pausing partition set",
			"partition", rec.Partition,
			"offset", rec.Offset,
			"resume_in", c.pauseFor,
			"error", err)
		if !c.pauseAndWait(ctx) {
			return false
		}
		c.log.Info("resuming consumption, retrying same record",
			"partition", rec.Partition, "offset", rec.Offset)
	}
}

func (c *PersistenceConsumer) writeOnce(ctx context.Context, rec domain.Record) error {
	msg, err := domain.Decode(rec.Value)
	if err != nil {
		return err
	}
	_, err = c.store.Create(ctx, msg.Text, msg.ProducedAt)
	return err
}

// pauseAndWait transitions to Paused(resumeAt) and blocks the consume loop
// until the resume timer fires. The timer runs on its own goroutine
// (time.AfterFunc) and signals resumption without ever blocking; the only
// other way out is shutdown.
func (c *PersistenceConsumer) pauseAndWait(ctx context.Context) bool {
	c.mu.Lock()
	c.state = StatePaused
	c.resumeAt = time.Now().Add(c.pauseFor)
	c.mu.Unlock()

	resume := make(chan struct{})
	timer := time.AfterFunc(c.pauseFor, func() { close(resume) })
	defer timer.Stop()

	select {
	case <-resume:
		c.mu.Lock()
		c.state = StateRunning
		c.resumeAt = time.Time{}
		c.mu.Unlock()
		return true
	case <-ctx.Done():
		return false
	}
}
