package bot

import (
	"context"
	"fmt"
	"testing"

	"bard-backend/internal/database"
	"bard-backend/internal/history"
	"bard-backend/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeLLM struct {
	reply string
	err   error
	seen  [][]llm.Message
}

func (f *fakeLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	copied := make([]llm.Message, len(messages))
	copy(copied, messages)
	f.seen = append(f.seen, copied)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestStore(t *testing.T) *history.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.GetMigrator(db).Migrate())
	return history.NewStore(db)
}

func TestRespondFreshUser(t *testing.T) {
	store := newTestStore(t)
	client := &fakeLLM{reply: "Hello there!"}
	responder := NewResponder(store, client)
	ctx := context.Background()

	reply, err := responder.Respond(ctx, "U1", "hello", "Ev001")
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", reply)

	window, err := store.Window(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, window, 2)

	assert.Equal(t, database.RoleUser, window[0].Role)
	assert.Equal(t, "hello", window[0].Text)
	assert.Equal(t, "Ev001", window[0].EventID)

	assert.Equal(t, database.RoleAssistant, window[1].Role)
	assert.Equal(t, "Hello there!", window[1].Text)
	assert.Empty(t, window[1].EventID)
}

func TestRespondSendsWindowThenNewMessage(t *testing.T) {
	store := newTestStore(t)
	client := &fakeLLM{reply: "answer two"}
	responder := NewResponder(store, client)
	ctx := context.Background()

	_, err := responder.Respond(ctx, "U1", "question one", "")
	require.NoError(t, err)
	_, err = responder.Respond(ctx, "U1", "question two", "")
	require.NoError(t, err)

	require.Len(t, client.seen, 2)
	prompt := client.seen[1]
	require.Len(t, prompt, 3, "second prompt must carry the prior exchange plus the new turn")

	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "question one"}, prompt[0])
	assert.Equal(t, llm.RoleAssistant, prompt[1].Role)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "question two"}, prompt[2])
}

func TestRespondFailureKeepsUserTurn(t *testing.T) {
	store := newTestStore(t)
	client := &fakeLLM{err: llm.ErrUnavailable}
	responder := NewResponder(store, client)
	ctx := context.Background()

	_, err := responder.Respond(ctx, "U1", "hello", "Ev001")
	assert.ErrorIs(t, err, llm.ErrUnavailable)

	window, err := store.Window(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, window, 1, "the user's turn survives a failed generation")
	assert.Equal(t, database.RoleUser, window[0].Role)
	assert.Equal(t, "hello", window[0].Text)
}

func TestRespondAdjustsMarkdown(t *testing.T) {
	store := newTestStore(t)
	client := &fakeLLM{reply: "This is **important**."}
	responder := NewResponder(store, client)

	reply, err := responder.Respond(context.Background(), "U1", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "This is *important*.", reply)

	// The stored turn keeps the raw model output.
	window, err := store.Window(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "This is **important**.", window[1].Text)
}
