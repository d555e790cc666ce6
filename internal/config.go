package internal

import "time"

// Config is the environment surface of one server instance. The bus and the
// log broker are optional: when an address is missing the instance falls
// back to its in-process loopback implementation, which keeps a single
// instance fully functional without infrastructure.
type Config struct {
	// Fan-out bus (Redis pub/sub).
	RedisURL      string `env:"REDIS_URL"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Durable log (Kafka).
	KafkaBrokers      string `env:"KAFKA_BROKERS"`
	KafkaTopic        string `env:"KAFKA_TOPIC,default=MESSAGES"`
	ConsumerGroup     string `env:"CONSUMER_GROUP,default=chat-relay-persistence"`
	FromBeginning     bool   `env:"FROM_BEGINNING,default=false"`
	AppendMaxAttempts int    `env:"APPEND_MAX_ATTEMPTS,default=3"`

	// Persistence consumer.
	PauseDuration      time.Duration `env:"PAUSE_DURATION,default=5s"`
	PersistenceWorkers int           `env:"PERSISTENCE_WORKERS,default=1"`

	// Bus publish circuit breaker.
	BreakerFailureThreshold uint32        `env:"BREAKER_FAILURE_THRESHOLD,default=5"`
	BreakerResetTimeout     time.Duration `env:"BREAKER_RESET_TIMEOUT,default=10s"`

	// Stores.
	SQLitePath     string `env:"SQLITE_PATH,default=./data/messages.db"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/history"`
	HistoryLimit   *int   `env:"HISTORY_LIMIT"`

	// Transport.
	HTTPAddr             string        `env:"HTTP_ADDR,default=:8080"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=32"`
	BufferSize           int           `env:"BUFFER_SIZE,default=256"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	BootTimeout          time.Duration `env:"BOOT_TIMEOUT,default=15s"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
}
