package main

import (
	"bufio"
	"chat-relay/domain"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `env:"CHAT_SERVER_URL,default=ws://localhost:8080/ws"`
	LogLevel  string `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v", err)
	}
	os.Exit(code)
}

// run handles the websocket client lifecycle: connect, print everything the
// instance broadcasts, and relay stdin lines as submitted messages.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the websocket session.
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, config.ServerURL, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", config.ServerURL, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	log.Info(fmt.Sprintf(">>> Connected to %s! (Ctrl+C to quit)", config.ServerURL))

	// 4. Reception loop: every message any connected client submitted, on
	// any instance, comes back through here via the fan-out bus.
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					log.Error("read error", "error", err)
				}
				stop()
				return
			}
			var envelope domain.Envelope
			if err := json.Unmarshal(data, &envelope); err != nil {
				log.Warn("skipping unreadable payload", "error", err)
				continue
			}
			at := time.Unix(0, envelope.ProducedAt)
			fmt.Printf("[%s] %s\n", at.Format(time.TimeOnly), envelope.Message)
		}
	}()

	// 5. Stdin loop: each line is one submitted message.
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping client...")
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if line == "" {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return exitRuntime, fmt.Errorf("write error: %w", err)
			}
		}
	}
}
