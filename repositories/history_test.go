package repositories

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func setupBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestHistoryRepository_AppendAndLatest_RoundTrip(t *testing.T) {
	req := require.New(t)
	repo := NewHistoryRepository(setupBadger(t), slog.Default())

	// Given: three lines appended in order
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	for i := 0; i < 3; i++ {
		payload := fmt.Sprintf(`{"name":"alice","message":"line %d","timestamp":%d}`, i, base+int64(i))
		req.NoError(repo.Append("lobby", base+int64(i), []byte(payload)))
	}

	// When: reading the latest window
	payloads, err := repo.Latest("lobby", 100)
	req.NoError(err)

	// Then: payloads come back verbatim, oldest first
	req.Len(payloads, 3)
	req.Contains(string(payloads[0]), "line 0")
	req.Contains(string(payloads[2]), "line 2")
}

func TestHistoryRepository_Latest_HonorsWindow(t *testing.T) {
	req := require.New(t)
	repo := NewHistoryRepository(setupBadger(t), slog.Default())

	// Given: more history than the window
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	for i := 0; i < 120; i++ {
		payload := fmt.Sprintf(`{"message":"line %d"}`, i)
		req.NoError(repo.Append("busy", base+int64(i), []byte(payload)))
	}

	// When: reading a window of 100
	payloads, err := repo.Latest("busy", 100)
	req.NoError(err)

	// Then: only the 100 newest survive, still oldest first
	req.Len(payloads, 100)
	req.Contains(string(payloads[0]), "line 20")
	req.Contains(string(payloads[99]), "line 119")
}

func TestHistoryRepository_Latest_IsolatesRooms(t *testing.T) {
	req := require.New(t)
	repo := NewHistoryRepository(setupBadger(t), slog.Default())

	ts := time.Now().UnixMilli()
	req.NoError(repo.Append("alpha", ts, []byte(`{"message":"in alpha"}`)))
	req.NoError(repo.Append("beta", ts, []byte(`{"message":"in beta"}`)))

	payloads, err := repo.Latest("alpha", 100)
	req.NoError(err)
	req.Len(payloads, 1)
	req.Contains(string(payloads[0]), "in alpha")
}

func TestHistoryRepository_Latest_EmptyRoom(t *testing.T) {
	req := require.New(t)
	repo := NewHistoryRepository(setupBadger(t), slog.Default())

	payloads, err := repo.Latest("ghost-town", 100)
	req.NoError(err)
	req.Empty(payloads)
}

func TestHistoryKey_SortsChronologically(t *testing.T) {
	req := require.New(t)

	// Keys for increasing timestamps must compare in the same order, that
	// is what makes badger's iteration order the message order.
	earlier := historyKey("lobby", 1700000000000)
	later := historyKey("lobby", 1700000000001)
	muchLater := historyKey("lobby", 1800000000000)

	req.Less(string(earlier), string(later))
	req.Less(string(later), string(muchLater))
}
