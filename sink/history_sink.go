package sink

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
)

// HistorySink appends every broadcast message to the local history
// projection so new connections can be served recent messages.
type HistorySink struct {
	history contract.IHistoryRepository
}

func NewHistorySink(history contract.IHistoryRepository) HistorySink {
	return HistorySink{history: history}
}

func (s HistorySink) Consume(_ context.Context, msg domain.Message) error {
	return s.history.Append(msg)
}
