package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"log/slog"
)

// Broadcaster is the local broadcaster: it subscribes to the fan-out bus
// and re-emits every received message to the sinks of this instance (the
// websocket hub, the history projection). The bus is the single source of
// truth for "message became visible", so messages this instance originated
// itself come back through here like everyone else's. There is no local
// echo path and no deduplication.
//
// Malformed payloads are dropped with a log line; nothing crashes the
// subscriber loop.
type Broadcaster struct {
	Log   *slog.Logger
	bus   contract.BusSubscriber
	sinks []contract.MessageSink
}

func NewBroadcaster(log *slog.Logger, bus contract.BusSubscriber) *Broadcaster {
	return &Broadcaster{Log: log, bus: bus}
}

func (w *Broadcaster) Add(sinks ...contract.MessageSink) *Broadcaster {
	w.sinks = append(w.sinks, sinks...)
	return w
}

func (w *Broadcaster) Run(ctx context.Context) error {
	raws, err := w.bus.Subscribe(ctx)
	if err != nil {
		// Returned to the supervisor, which restarts the subscription.
		return err
	}
	w.Log.Info("broadcaster subscribed", "channel", domain.ChannelKey)

	for {
		select {
		case raw, ok := <-raws:
			if !ok {
				w.Log.Warn("bus subscription ended")
				return nil
			}
			msg, err := domain.Decode(raw)
			if err != nil {
				w.Log.Warn("dropping malformed bus payload", "error", err)
				continue
			}
			w.fanout(ctx, msg)
		case <-ctx.Done():
			w.Log.Debug("context done, stopping broadcaster")
			return nil
		}
	}
}

// fanout delivers one message to every sink. A failing sink is logged and
// skipped; sinks fail independently.
func (w *Broadcaster) fanout(ctx context.Context, msg domain.Message) {
	for _, sink := range w.sinks {
		if err := sink.Consume(ctx, msg); err != nil {
			w.Log.Error("sink failed", "error", err)
		}
	}
}
