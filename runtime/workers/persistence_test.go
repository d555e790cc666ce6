package workers

import (
	"chat-relay/domain"
	"chat-relay/infrastructure/memory"
	"chat-relay/mocks"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func appendMessage(t *testing.T, producer *memory.Producer, text string, at int64) {
	t.Helper()
	msg := domain.Message{Text: text, ProducedAt: time.Unix(0, at).UTC()}
	payload, err := msg.Encode()
	require.NoError(t, err)
	require.NoError(t, producer.Append(context.Background(), msg.LogKey(), payload))
}

func TestPersistenceConsumer_WritesInAppendOrder(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	log := memory.NewLog(domain.ChannelKey)
	producer := log.Producer()
	for i := range 5 {
		appendMessage(t, producer, fmt.Sprintf("msg-%d", i), int64(i+1))
	}

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	store := mocks.NewMockMessageStore(ctrl)
	store.EXPECT().
		Create(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, text string, _ time.Time) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, text)
			if len(got) == 5 {
				close(done)
			}
			return int64(len(got)), nil
		}).Times(5)

	consumer := log.Consumer("persistence")
	req.NoError(consumer.Connect(context.Background()))
	worker := NewPersistenceConsumer(logger, consumer, store, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		req.Fail("store did not receive all messages in time")
	}

	mu.Lock()
	defer mu.Unlock()
	req.Equal([]string{"msg-0", "msg-1", "msg-2", "msg-3", "msg-4"}, got)
}

func TestPersistenceConsumer_PauseThenRetrySameMessage(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	log := memory.NewLog(domain.ChannelKey)
	producer := log.Producer()
	appendMessage(t, producer, "x", 1)
	appendMessage(t, producer, "y", 2)

	pauseFor := 80 * time.Millisecond

	var mu sync.Mutex
	var calls []string
	var callTimes []time.Time
	done := make(chan struct{})
	store := mocks.NewMockMessageStore(ctrl)
	first := store.EXPECT().
		Create(gomock.Any(), "x", gomock.Any()).
		Return(int64(0), fmt.Errorf("store down")).
		Times(1)
	store.EXPECT().
		Create(gomock.Any(), gomock.Any(), gomock.Any()).
		After(first).
		DoAndReturn(func(_ context.Context, text string, _ time.Time) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, text)
			callTimes = append(callTimes, time.Now())
			if len(calls) == 2 {
				close(done)
			}
			return int64(len(calls)), nil
		}).Times(2)

	consumer := log.Consumer("persistence")
	req.NoError(consumer.Connect(context.Background()))
	worker := NewPersistenceConsumer(logger, consumer, store, pauseFor)

	start := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	// The consumer must transition to Paused after the injected failure.
	req.Eventually(func() bool {
		state, _ := worker.State()
		return state == StatePaused
	}, time.Second, 5*time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		req.Fail("consumer never recovered after the pause window")
	}

	mu.Lock()
	defer mu.Unlock()
	// The same message is retried before any subsequent one.
	req.Equal([]string{"x", "y"}, calls)
	// No store call happened before the backoff window elapsed.
	req.GreaterOrEqual(callTimes[0].Sub(start), pauseFor)

	state, _ := worker.State()
	req.Equal(StateRunning, state)
}

func TestPersistenceConsumer_AtLeastOnceUnderRepeatedFailures(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	log := memory.NewLog(domain.ChannelKey)
	appendMessage(t, log.Producer(), "stubborn", 1)

	failures := 5
	var attempt int
	done := make(chan struct{})
	store := mocks.NewMockMessageStore(ctrl)
	store.EXPECT().
		Create(gomock.Any(), "stubborn", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ time.Time) (int64, error) {
			attempt++
			if attempt <= failures {
				return 0, fmt.Errorf("failure %d", attempt)
			}
			close(done)
			return 1, nil
		}).Times(failures + 1)

	consumer := log.Consumer("persistence")
	req.NoError(consumer.Connect(context.Background()))
	worker := NewPersistenceConsumer(logger, consumer, store, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	select {
	case <-done:
		// The message was never skipped, however many times the store failed.
	case <-time.After(2 * time.Second):
		req.Fail("message was not persisted after repeated failures")
	}
}

func TestPersistenceConsumer_MalformedRecordPausesInsteadOfDropping(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	log := memory.NewLog(domain.ChannelKey)
	req.NoError(log.Producer().Append(context.Background(), []byte("k"), []byte("not json")))

	// The store must never be reached for an undecodable record.
	store := mocks.NewMockMessageStore(ctrl)

	consumer := log.Consumer("persistence")
	req.NoError(consumer.Connect(context.Background()))
	worker := NewPersistenceConsumer(logger, consumer, store, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	req.Eventually(func() bool {
		state, resumeAt := worker.State()
		return state == StatePaused && !resumeAt.IsZero()
	}, time.Second, 5*time.Millisecond)
}

func TestPersistenceConsumer_RedeliveryAfterRestart(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	log := memory.NewLog(domain.ChannelKey)
	appendMessage(t, log.Producer(), "crashy", 1)

	// First incarnation: the store fails, the consumer pauses, and the
	// process dies (context canceled) before anything is committed.
	ctx1, cancel1 := context.WithCancel(context.Background())
	failing := mocks.NewMockMessageStore(ctrl)
	failed := make(chan struct{})
	failing.EXPECT().
		Create(gomock.Any(), "crashy", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ time.Time) (int64, error) {
			select {
			case <-failed:
			default:
				close(failed)
			}
			return 0, fmt.Errorf("store down")
		}).MinTimes(1)

	consumer1 := log.Consumer("persistence")
	req.NoError(consumer1.Connect(context.Background()))
	worker1 := NewPersistenceConsumer(logger, consumer1, failing, time.Hour)
	go func() { _ = worker1.Run(ctx1) }()
	<-failed
	cancel1()

	// Second incarnation: the cursor never advanced, so the very same
	// message is redelivered and finally lands.
	persisted := make(chan string, 1)
	healthy := mocks.NewMockMessageStore(ctrl)
	healthy.EXPECT().
		Create(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, text string, _ time.Time) (int64, error) {
			persisted <- text
			return 1, nil
		}).Times(1)

	consumer2 := log.Consumer("persistence")
	req.NoError(consumer2.Connect(context.Background()))
	worker2 := NewPersistenceConsumer(logger, consumer2, healthy, 5*time.Millisecond)

	// A restarted consumer always begins Running.
	state, _ := worker2.State()
	req.Equal(StateRunning, state)

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	go func() { _ = worker2.Run(ctx2) }()

	select {
	case text := <-persisted:
		req.Equal("crashy", text)
	case <-time.After(2 * time.Second):
		req.Fail("redelivered message was not persisted")
	}
}
