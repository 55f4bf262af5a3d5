package repositories

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type HistoryRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewHistoryRepository(db *badger.DB, log *slog.Logger) HistoryRepository {
	return HistoryRepository{db: db, log: log}
}

// historyKey builds "history:{room}:{ISO-8601 timestamp}". RFC 3339 with
// fixed millisecond precision sorts lexicographically in chronological
// order, so badger's native key order is the message order. Rooms stamp
// strictly increasing timestamps, which keeps keys unique per room.
func historyKey(room string, timestampMillis int64) []byte {
	ts := time.UnixMilli(timestampMillis).UTC().Format("2006-01-02T15:04:05.000Z")
	return []byte(fmt.Sprintf("history:%s:%s", room, ts))
}

func historyPrefix(room string) []byte {
	return []byte(fmt.Sprintf("history:%s:", room))
}

// Append persists one chat line under its timestamp-derived key. Keys are
// append-only: nothing in the service ever mutates or deletes them.
func (r HistoryRepository) Append(room string, timestampMillis int64, payload []byte) error {
	key := historyKey(room, timestampMillis)
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	})
}

// Latest returns up to limit of the most recent persisted lines for a room,
// oldest first. It walks the keys backwards from the newest entry and
// re-reverses locally, which bounds the scan to the requested window no
// matter how much history the room has accumulated.
func (r HistoryRepository) Latest(room string, limit int) ([][]byte, error) {
	var payloads [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := historyPrefix(room)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past every possible timestamp so the reverse scan starts at
		// the newest entry for this room.
		seekKey := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(payloads) == limit {
				r.log.Debug(fmt.Sprintf("History window of %d reached", limit), "room", room)
				break
			}
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			payloads = append(payloads, value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Reverse(payloads), nil
}
