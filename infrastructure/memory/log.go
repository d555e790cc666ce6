package memory

import (
	"chat-relay/domain"
	apperrors "chat-relay/errors"
	"context"
	"sync"
)

// Log is an in-process append-only log with a single partition. It retains
// every appended record and tracks one committed cursor per consumer group,
// so redelivery after an uncommitted fetch behaves like the real log.
type Log struct {
	mu        sync.Mutex
	topic     string
	records   []domain.Record
	committed map[string]int64 // group -> next offset to read
	changed   chan struct{}
	closed    bool
}

func NewLog(topic string) *Log {
	return &Log{
		topic:     topic,
		committed: make(map[string]int64),
		changed:   make(chan struct{}),
	}
}

func (l *Log) append(key, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return apperrors.ErrLogClosed
	}
	l.records = append(l.records, domain.Record{
		Topic:  l.topic,
		Offset: int64(len(l.records)),
		Key:    key,
		Value:  value,
	})
	// Wake every blocked fetch.
	close(l.changed)
	l.changed = make(chan struct{})
	return nil
}

// Producer returns an append handle for this log.
func (l *Log) Producer() *Producer { return &Producer{log: l} }

// Consumer returns a fetch/commit handle scoped to a consumer group.
// Connect positions the cursor at the group's committed offset, so a
// reconnect after an uncommitted fetch redelivers the same record.
func (l *Log) Consumer(group string) *Consumer {
	return &Consumer{log: l, group: group}
}

type Producer struct {
	log *Log
}

func (p *Producer) Connect(_ context.Context) error { return nil }

func (p *Producer) Append(_ context.Context, key, value []byte) error {
	return p.log.append(key, value)
}

func (p *Producer) Close() error { return nil }

type Consumer struct {
	log   *Log
	group string
	next  int64
}

func (c *Consumer) Connect(_ context.Context) error {
	c.log.mu.Lock()
	defer c.log.mu.Unlock()
	c.next = c.log.committed[c.group]
	return nil
}

func (c *Consumer) Fetch(ctx context.Context) (domain.Record, error) {
	for {
		c.log.mu.Lock()
		if c.log.closed {
			c.log.mu.Unlock()
			return domain.Record{}, apperrors.ErrLogClosed
		}
		if c.next < int64(len(c.log.records)) {
			rec := c.log.records[c.next]
			c.next++
			c.log.mu.Unlock()
			return rec, nil
		}
		wait := c.log.changed
		c.log.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return domain.Record{}, ctx.Err()
		}
	}
}

func (c *Consumer) Commit(_ context.Context, rec domain.Record) error {
	c.log.mu.Lock()
	defer c.log.mu.Unlock()
	if next := rec.Offset + 1; next > c.log.committed[c.group] {
		c.log.committed[c.group] = next
	}
	return nil
}

func (c *Consumer) Close() error { return nil }

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.changed)
	l.changed = make(chan struct{})
	return nil
}
