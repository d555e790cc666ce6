package main

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/infrastructure/bus"
	logstore "chat-relay/infrastructure/log"
	"chat-relay/infrastructure/memory"
	"chat-relay/infrastructure/storage"
	"chat-relay/infrastructure/transport"
	"chat-relay/internal"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/sink"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the instance lifecycle, and centralizes error reporting.
// It ensures all 'defer' statements (store cleanup, bus/log handles) are executed before exit,
// and keeps initialization testable by decoupling it from the main entry point.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx := context.Background()

	// 2. Stores
	// The relational store is canonical for persistence; the badger timeline
	// is a per-instance projection serving /history.
	store, err := storage.OpenMessageStore(config.SQLitePath, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("message store opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing message store...")
		_ = store.Close()
	}()

	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("history database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	history := storage.NewHistoryRepository(db, logger, config.HistoryLimit)

	// 3. Bus and durable log handles.
	// Construction never dials; Connect does, under a boot timeout, so a
	// dead broker fails startup loudly instead of hanging in the background.
	fanout, producer, consumers := buildPipeline(config, logger)

	bootCtx, cancelBoot := context.WithTimeout(ctx, config.BootTimeout)
	defer cancelBoot()

	if err := fanout.Connect(bootCtx); err != nil {
		return exitRuntime, fmt.Errorf("fan-out bus connect failed: %w", err)
	}
	defer func() {
		logger.Info("Closing fan-out bus...")
		_ = fanout.Close()
	}()

	if err := producer.Connect(bootCtx); err != nil {
		return exitRuntime, fmt.Errorf("durable log producer connect failed: %w", err)
	}
	defer func() {
		logger.Info("Closing log producer...")
		_ = producer.Close()
	}()

	for _, consumer := range consumers {
		if err := consumer.Connect(bootCtx); err != nil {
			return exitRuntime, fmt.Errorf("durable log consumer connect failed: %w", err)
		}
	}
	defer func() {
		logger.Info("Closing log consumers...")
		for _, consumer := range consumers {
			_ = consumer.Close()
		}
	}()

	// 4. Ingress relay and transport
	relay := services.NewRelayService(logger, fanout, producer)
	hub := transport.NewHub(logger, config.ConnectionBufferSize)
	hub.OnClientMessage(relay.Submit)
	server := transport.NewServer(transport.ServerConfig{
		Address:         config.HTTPAddr,
		ShutdownTimeout: config.ShutdownTimeout,
	}, hub, history, logger)

	// 5. Workers under supervision: one broadcaster per instance, and the
	// persistence consumer group members.
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	broadcaster := workers.NewBroadcaster(logger, fanout).
		Add(sink.NewTransportSink(hub), sink.NewHistorySink(history))
	sup.Add(broadcaster)
	for _, consumer := range consumers {
		sup.Add(workers.NewPersistenceConsumer(logger, consumer, store, config.PauseDuration))
	}

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)

	go func() {
		logger.Info("Starting workers...", "channel", domain.ChannelKey)
		sup.Run(ctx)
	}()

	go func() {
		if err := server.Listen(ctx); err != nil {
			errChan <- fmt.Errorf("transport error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	relay.Drain()
	sup.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

// buildPipeline picks the concrete bus/log stack from the configuration.
// With a Redis URL and Kafka brokers the instance joins the multi-server
// pipeline; without them it runs on in-process loopbacks, which keeps a
// single instance usable with zero infrastructure.
func buildPipeline(config internal.Config, logger *slog.Logger) (contract.Bus, contract.LogProducer, []contract.LogConsumer) {
	var fanout contract.Bus
	if config.RedisURL != "" {
		fanout = bus.NewRedisBus(logger, config.RedisURL, config.RedisPassword, config.BufferSize, bus.BreakerConfig{
			FailureThreshold: config.BreakerFailureThreshold,
			ResetTimeout:     config.BreakerResetTimeout,
		})
	} else {
		logger.Warn("REDIS_URL not set, using in-process loopback bus")
		fanout = memory.NewBus(config.BufferSize)
	}

	if config.KafkaBrokers != "" {
		brokers := strings.Split(config.KafkaBrokers, ",")
		producer := logstore.NewKafkaProducer(logger, logstore.ProducerConfig{
			Brokers:     brokers,
			Topic:       config.KafkaTopic,
			MaxAttempts: config.AppendMaxAttempts,
		})
		// One group member per persistence worker: the group assigns each
		// partition to exactly one of them.
		consumers := lo.Times(max(config.PersistenceWorkers, 1), func(_ int) contract.LogConsumer {
			return logstore.NewKafkaConsumer(logger, logstore.ConsumerConfig{
				Brokers:       brokers,
				Topic:         config.KafkaTopic,
				GroupID:       config.ConsumerGroup,
				FromBeginning: config.FromBeginning,
			})
		})
		return fanout, producer, consumers
	}

	logger.Warn("KAFKA_BROKERS not set, using in-process loopback log")
	memlog := memory.NewLog(config.KafkaTopic)
	// The loopback log has a single partition, one consumer owns it.
	return fanout, memlog.Producer(), []contract.LogConsumer{memlog.Consumer(config.ConsumerGroup)}
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}
	return options
}
