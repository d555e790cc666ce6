package storage_test

import (
	"chat-relay/domain"
	"chat-relay/infrastructure/storage"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openHistory(t *testing.T, limit *int) storage.HistoryRepository {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return storage.NewHistoryRepository(db, logger, limit)
}

func TestHistoryRepository_RecentReturnsNewestFirst(t *testing.T) {
	req := require.New(t)
	history := openHistory(t, nil)

	for i := 1; i <= 3; i++ {
		req.NoError(history.Append(domain.Message{
			Text:       fmt.Sprintf("msg-%d", i),
			ProducedAt: time.Unix(0, int64(i)).UTC(),
		}))
	}

	messages, _, err := history.Recent(nil)
	req.NoError(err)
	texts := lo.Map(messages, func(m domain.Message, _ int) string { return m.Text })
	req.Equal([]string{"msg-3", "msg-2", "msg-1"}, texts)
}

func TestHistoryRepository_CursorPaging(t *testing.T) {
	req := require.New(t)
	history := openHistory(t, lo.ToPtr(2))

	for i := 1; i <= 5; i++ {
		req.NoError(history.Append(domain.Message{
			Text:       fmt.Sprintf("msg-%d", i),
			ProducedAt: time.Unix(0, int64(i)).UTC(),
		}))
	}

	firstPage, cursor, err := history.Recent(nil)
	req.NoError(err)
	req.Len(firstPage, 2)
	req.NotNil(cursor)
	req.Equal("msg-5", firstPage[0].Text)
	req.Equal("msg-4", firstPage[1].Text)

	secondPage, _, err := history.Recent(cursor)
	req.NoError(err)
	req.Len(secondPage, 2)
	req.Equal("msg-3", secondPage[0].Text)
	req.Equal("msg-2", secondPage[1].Text)
}

func TestHistoryRepository_EmptyTimeline(t *testing.T) {
	req := require.New(t)
	history := openHistory(t, nil)

	messages, _, err := history.Recent(nil)
	req.NoError(err)
	req.Empty(messages)
}
