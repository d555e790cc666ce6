package sink

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
)

// TransportSink re-emits every broadcast message to the clients connected
// to this instance through the real-time transport.
type TransportSink struct {
	broadcaster contract.LocalBroadcaster
}

func NewTransportSink(broadcaster contract.LocalBroadcaster) TransportSink {
	return TransportSink{broadcaster: broadcaster}
}

func (s TransportSink) Consume(_ context.Context, msg domain.Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	s.broadcaster.BroadcastToLocalClients(payload)
	return nil
}
