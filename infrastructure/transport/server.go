package transport

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/lo"
)

type ServerConfig struct {
	Address         string
	ShutdownTimeout time.Duration
}

// Server exposes the websocket endpoint and the local history page over a
// single HTTP listener.
type Server struct {
	config  ServerConfig
	log     *slog.Logger
	hub     *Hub
	history contract.IHistoryRepository
	server  *http.Server
}

func NewServer(cfg ServerConfig, hub *Hub, history contract.IHistoryRepository, log *slog.Logger) *Server {
	s := &Server{config: cfg, log: log, hub: hub, history: history}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.server = &http.Server{Addr: cfg.Address, Handler: mux}
	return s
}

// Handler exposes the routed handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Listen serves until ctx is canceled, then shuts down gracefully within
// the configured timeout.
func (s *Server) Listen(ctx context.Context) error {
	s.log.Info("transport listening", "addr", s.config.Address)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.log.Error("transport shutdown error", "error", err)
			return err
		}
		s.hub.CloseAll()
		s.log.Info("transport stopped")
		return nil
	}
}

type historyResponse struct {
	Messages []domain.Envelope `json:"messages"`
	Cursor   *string           `json:"cursor,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}
	messages, next, err := s.history.Recent(cursor)
	if err != nil {
		s.log.Error("history read failed", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	resp := historyResponse{
		Cursor: next,
		Messages: lo.Map(messages, func(msg domain.Message, _ int) domain.Envelope {
			return domain.Envelope{
				Message:    msg.Text,
				ProducedAt: msg.ProducedAt.UnixNano(),
			}
		}),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
