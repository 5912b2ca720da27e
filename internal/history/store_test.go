package history

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"bard-backend/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.GetMigrator(db).Migrate())
	return db
}

func userTurn(userID, text string) *database.ChatTurn {
	return &database.ChatTurn{UserID: userID, Role: database.RoleUser, Text: text}
}

func TestWindowEmptyForFreshUser(t *testing.T) {
	store := NewStore(newTestDB(t))

	window, err := store.Window(context.Background(), "U-fresh")
	require.NoError(t, err)
	assert.Empty(t, window)
}

func TestAppendAssignsIncreasingSequence(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, userTurn("U1", fmt.Sprintf("msg %d", i))))
	}

	window, err := store.Window(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, window, 5)

	for i, turn := range window {
		assert.Equal(t, fmt.Sprintf("msg %d", i), turn.Text)
		assert.Equal(t, int64(i+1), turn.Seq)
		if i > 0 {
			prev := window[i-1]
			assert.True(t, turn.Timestamp.After(prev.Timestamp) ||
				(turn.Timestamp.Equal(prev.Timestamp) && turn.Seq > prev.Seq),
				"window must be in strictly increasing (timestamp, seq) order")
		}
	}
}

func TestWindowBoundHolds(t *testing.T) {
	store := NewStoreWithWindow(newTestDB(t), 5)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, store.Append(ctx, userTurn("U1", fmt.Sprintf("msg %d", i))))
	}

	window, err := store.Window(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, window, 5)

	// The five most recent survive, oldest first.
	for i, turn := range window {
		assert.Equal(t, fmt.Sprintf("msg %d", i+3), turn.Text)
	}
}

func TestEvictionIsFIFO(t *testing.T) {
	store := NewStoreWithWindow(newTestDB(t), 3)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, store.Append(ctx, userTurn("U1", text)))
	}
	require.NoError(t, store.Append(ctx, userTurn("U1", "d")))

	window, err := store.Window(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, "b", window[0].Text)
	assert.Equal(t, "c", window[1].Text)
	assert.Equal(t, "d", window[2].Text)
}

func TestEvictionBoundHoldsUnderClockRegression(t *testing.T) {
	store := NewStoreWithWindow(newTestDB(t), 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, userTurn("U1", fmt.Sprintf("msg %d", i))))
	}

	// A turn arriving from an instance whose wall clock lags the window. Its
	// seq is still the highest, so it is the newest turn and the lowest-seq
	// turn must be the one evicted.
	require.NoError(t, store.Append(ctx, &database.ChatTurn{
		UserID:    "U1",
		Role:      database.RoleUser,
		Text:      "lagging clock",
		Timestamp: time.Now().UTC().Add(-time.Hour),
	}))

	var count int64
	require.NoError(t, store.db.Model(&database.ChatTurn{}).
		Where("user_id = ?", "U1").Count(&count).Error)
	assert.EqualValues(t, 3, count, "stored rows must not exceed the window")

	var seqs []int64
	require.NoError(t, store.db.Model(&database.ChatTurn{}).
		Where("user_id = ?", "U1").Order("seq").Pluck("seq", &seqs).Error)
	assert.Equal(t, []int64{2, 3, 4}, seqs, "eviction goes by seq, not timestamp")
}

func TestFullWindowExchangeKeepsBoundAndNewestTurns(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	for i := 0; i < MaxWindow; i++ {
		require.NoError(t, store.Append(ctx, userTurn("U1", fmt.Sprintf("old %d", i))))
	}

	// One more exchange: user message plus assistant reply.
	require.NoError(t, store.Append(ctx, userTurn("U1", "new question")))
	require.NoError(t, store.Append(ctx, &database.ChatTurn{
		UserID: "U1", Role: database.RoleAssistant, Text: "new answer",
	}))

	window, err := store.Window(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, window, MaxWindow)

	assert.Equal(t, "old 2", window[0].Text, "the two oldest turns should be evicted")
	assert.Equal(t, "new question", window[MaxWindow-2].Text)
	assert.Equal(t, "new answer", window[MaxWindow-1].Text)
}

func TestConcurrentAppendsSameUser(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	const writers = 20

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Append(ctx, userTurn("U1", fmt.Sprintf("msg %d", i)))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "append %d", i)
	}

	window, err := store.Window(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, window, writers, "no append may be lost")

	seen := make(map[int64]bool)
	for _, turn := range window {
		assert.False(t, seen[turn.Seq], "sequence %d assigned twice", turn.Seq)
		seen[turn.Seq] = true
	}
}

func TestUsersAreIsolated(t *testing.T) {
	store := NewStoreWithWindow(newTestDB(t), 3)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, user := range []string{"U1", "U2"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				if err := store.Append(ctx, userTurn(user, fmt.Sprintf("%s msg %d", user, i))); err != nil {
					t.Errorf("append for %s: %v", user, err)
				}
			}
		}(user)
	}
	wg.Wait()

	for _, user := range []string{"U1", "U2"} {
		window, err := store.Window(ctx, user)
		require.NoError(t, err)
		require.Len(t, window, 3)
		for _, turn := range window {
			assert.Equal(t, user, turn.UserID)
			assert.Contains(t, turn.Text, user+" msg")
		}
	}
}

func TestSlowUserDoesNotBlockOthers(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	// Hold U1's per-user lock, as a stalled append for U1 would.
	require.NoError(t, store.locks.Lock("U1"))
	defer store.locks.Unlock("U1") //nolint:errcheck

	done := make(chan error, 1)
	go func() {
		done <- store.Append(ctx, userTurn("U2", "hello"))
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("append for an unrelated user blocked behind another user's lock")
	}

	window, err := store.Window(ctx, "U2")
	require.NoError(t, err)
	assert.Len(t, window, 1)
}

func TestPurgeUser(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, userTurn("U1", "hello")))
	require.NoError(t, store.Append(ctx, userTurn("U2", "hello")))

	require.NoError(t, store.PurgeUser(ctx, "U1"))

	window, err := store.Window(ctx, "U1")
	require.NoError(t, err)
	assert.Empty(t, window)

	window, err = store.Window(ctx, "U2")
	require.NoError(t, err)
	assert.Len(t, window, 1, "purging one user must not touch another")
}
