package services_test

import (
	"chat-relay/domain"
	"chat-relay/mocks"
	"chat-relay/services"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRelayService_BothPathsReceiveTheMessage(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := mocks.NewMockBusPublisher(ctrl)
	producer := mocks.NewMockLogProducer(ctrl)

	bus.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, payload []byte) error {
			msg, err := domain.Decode(payload)
			req.NoError(err)
			req.Equal("hello", msg.Text)
			return nil
		}).Times(1)
	producer.EXPECT().
		Append(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, key, payload []byte) error {
			req.Contains(string(key), "message-")
			msg, err := domain.Decode(payload)
			req.NoError(err)
			req.Equal("hello", msg.Text)
			return nil
		}).Times(1)

	relay := services.NewRelayService(logger, bus, producer)
	relay.Submit(context.Background(), "hello")
	relay.Drain()
}

func TestRelayService_BusFailureDoesNotBlockDurability(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := mocks.NewMockBusPublisher(ctrl)
	producer := mocks.NewMockLogProducer(ctrl)

	bus.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("bus unreachable")).Times(1)
	producer.EXPECT().
		Append(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil).Times(1)

	relay := services.NewRelayService(logger, bus, producer)
	relay.Submit(context.Background(), "still durable")
	relay.Drain()
}

func TestRelayService_DurabilityFailureDoesNotBlockLiveDelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := mocks.NewMockBusPublisher(ctrl)
	producer := mocks.NewMockLogProducer(ctrl)

	bus.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		Return(nil).Times(1)
	producer.EXPECT().
		Append(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("all append attempts exhausted")).Times(1)

	relay := services.NewRelayService(logger, bus, producer)
	relay.Submit(context.Background(), "still visible live")
	relay.Drain()
}

func TestRelayService_SubmitNeverBlocksOnSlowPaths(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := mocks.NewMockBusPublisher(ctrl)
	producer := mocks.NewMockLogProducer(ctrl)

	release := make(chan struct{})
	slow := func(_ context.Context, _ ...any) error {
		<-release
		return nil
	}
	bus.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ []byte) error { return slow(ctx) }).Times(1)
	producer.EXPECT().
		Append(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _, _ []byte) error { return slow(ctx) }).Times(1)

	relay := services.NewRelayService(logger, bus, producer)

	start := time.Now()
	relay.Submit(context.Background(), "hello")
	elapsed := time.Since(start)

	// Submit returns while both I/O operations are still hanging.
	req.Less(elapsed, 50*time.Millisecond)

	close(release)
	relay.Drain()
}
