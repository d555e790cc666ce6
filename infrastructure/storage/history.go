package storage

import (
	"chat-relay/domain"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const historyPrefix = "msg:"

// HistoryRepository is the per-instance timeline projection: every message
// the local broadcaster re-emits is also appended here, so a freshly
// connected client can be served recent history without touching the
// canonical store. Best-effort by design, rebuilt per instance.
type HistoryRepository struct {
	db    *badger.DB
	log   *slog.Logger
	limit *int
}

func NewHistoryRepository(db *badger.DB, log *slog.Logger, limit *int) HistoryRepository {
	return HistoryRepository{db: db, log: log, limit: limit}
}

// Append stores one message under "msg:{timestamp_padded}:{uuid}".
// The 19-digit zero padding keeps keys chronologically sorted under
// lexicographic iteration; the uuid disconnects collisions when two
// messages land on the same nanosecond.
func (h HistoryRepository) Append(msg domain.Message) error {
	key := fmt.Sprintf("%s%019d:%s", historyPrefix, msg.ProducedAt.UnixNano(), uuid.New())
	value, err := msg.Encode()
	if err != nil {
		return err
	}
	return h.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Recent walks the timeline newest-first from the cursor (or from the top
// when cursor is nil) and returns up to the configured limit, plus the
// cursor for the next page.
func (h HistoryRepository) Recent(cursor *string) ([]domain.Message, *string, error) {
	var raws [][]byte
	var lastKey string
	err := h.db.View(func(txn *badger.Txn) error {
		prefix := []byte(historyPrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past any possible timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}
		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if h.limit != nil && len(raws) == *h.limit {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(historyPrefix):])
			if err := item.Value(func(value []byte) error {
				raws = append(raws, append([]byte(nil), value...))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var messages []domain.Message
	for _, raw := range raws {
		msg, err := domain.Decode(raw)
		if err != nil {
			// A corrupt entry is skipped, the timeline is a projection.
			h.log.Warn("skipping corrupt history entry", "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, &lastKey, nil
}
