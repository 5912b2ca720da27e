package bot

import (
	"context"
	"errors"
	"log/slog"

	"bard-backend/internal/database"
	"bard-backend/internal/history"
	"bard-backend/internal/llm"
	"bard-backend/internal/slack"
)

// ErrStoreUnavailable means the history store could not be read or written.
// The whole request fails; a reply is never returned without its turns being
// recorded.
var ErrStoreUnavailable = errors.New("history store unavailable")

// Responder coordinates a generation exchange: read the window, call the
// provider with the window plus the new message, then append both sides of
// the exchange back into the window.
type Responder struct {
	store  *history.Store
	client llm.Client
}

func NewResponder(store *history.Store, client llm.Client) *Responder {
	return &Responder{store: store, client: client}
}

// Respond produces a mrkdwn reply for incomingText from userID. eventID tags
// the recorded user turn for traceability; it may be empty.
//
// The user's turn is appended even when generation fails (the user did ask
// something), but an assistant turn is only appended on success, so the
// window never holds a reply without its question. The user turn goes in
// first so eviction accounting is right when the window is already full.
func (r *Responder) Respond(ctx context.Context, userID, incomingText, eventID string) (string, error) {
	window, err := r.store.Window(ctx, userID)
	if err != nil {
		slog.Error("error reading history window", "user_id", userID, "error", err)
		return "", ErrStoreUnavailable
	}

	messages := make([]llm.Message, 0, len(window)+1)
	for _, turn := range window {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Text})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: incomingText})

	reply, genErr := r.client.Generate(ctx, messages)

	userTurn := &database.ChatTurn{
		UserID:  userID,
		Role:    database.RoleUser,
		Text:    incomingText,
		EventID: eventID,
	}
	if err := r.store.Append(ctx, userTurn); err != nil {
		slog.Error("error recording user turn", "user_id", userID, "error", err)
		return "", ErrStoreUnavailable
	}

	if genErr != nil {
		return "", genErr
	}

	assistantTurn := &database.ChatTurn{
		UserID: userID,
		Role:   database.RoleAssistant,
		Text:   reply,
	}
	if err := r.store.Append(ctx, assistantTurn); err != nil {
		slog.Error("error recording assistant turn", "user_id", userID, "error", err)
		return "", ErrStoreUnavailable
	}

	return slack.AdjustMarkdown(reply), nil
}
