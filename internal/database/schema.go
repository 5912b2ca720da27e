package database

import (
	"time"
)

const (
	RoleUser      string = "user"
	RoleAssistant string = "assistant"
)

// ChatTurn is one message in a user's conversation window. Seq is a per-user
// counter assigned at write time; it breaks timestamp ties, so (Timestamp, Seq)
// is a total order within a user.
type ChatTurn struct {
	UserID string `gorm:"primaryKey;size:64;index:idx_chat_turns_user_ts,priority:1"`
	Seq    int64  `gorm:"primaryKey;autoIncrement:false"`

	Role      string    `gorm:"size:20;not null"`
	Text      string    `gorm:"not null"`
	Timestamp time.Time `gorm:"not null;index:idx_chat_turns_user_ts,priority:2"`

	// EventID is the Slack delivery id that produced this turn. Empty for
	// assistant-authored turns.
	EventID string `gorm:"size:128"`
}

func (ChatTurn) TableName() string { return "chat_turns" }

type ProcessedEvent struct {
	EventID     string    `gorm:"primaryKey;size:128"`
	ProcessedAt time.Time `gorm:"not null;index"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }
