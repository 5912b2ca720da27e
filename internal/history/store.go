package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bard-backend/internal/database"

	"gorm.io/gorm"
)

// MaxWindow is the number of turns retained per user. Older turns are evicted
// FIFO; bounding the window keeps prompt size and storage cost predictable at
// the expense of losing older context.
const MaxWindow = 100

// seqRetries bounds how often an append retakes its sequence number after
// losing a (user_id, seq) insert race to another instance.
const seqRetries = 5

const maxTrackedUsers = 4096

var ErrContended = errors.New("append contention not resolved")

// Store owns all reads, appends and evictions of per-user conversation
// windows. Nothing else writes chat_turns.
type Store struct {
	db     *gorm.DB
	window int
	locks  MutexMap
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, window: MaxWindow, locks: NewMutexMap(maxTrackedUsers)}
}

// NewStoreWithWindow overrides the retention bound; a non-positive window
// falls back to MaxWindow.
func NewStoreWithWindow(db *gorm.DB, window int) *Store {
	if window <= 0 {
		window = MaxWindow
	}
	return &Store{db: db, window: window, locks: NewMutexMap(maxTrackedUsers)}
}

// Append inserts turn at the tail of its user's window and evicts the oldest
// turns beyond the bound, atomically per user. turn.Seq is assigned here; a
// zero Timestamp is filled with the current time. Concurrent appends for the
// same user from other instances are resolved by retaking the sequence number
// on a duplicate-key conflict.
func (s *Store) Append(ctx context.Context, turn *database.ChatTurn) error {
	if turn.UserID == "" {
		return fmt.Errorf("append: missing user id")
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC().Truncate(time.Microsecond)
	}

	if err := s.locks.Lock(turn.UserID); err != nil {
		return fmt.Errorf("append for user %s: %w", turn.UserID, err)
	}
	defer s.locks.Unlock(turn.UserID) //nolint:errcheck

	for attempt := 0; attempt < seqRetries; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
			var maxSeq sql.NullInt64
			if err := txn.Model(&database.ChatTurn{}).
				Where("user_id = ?", turn.UserID).
				Select("MAX(seq)").
				Scan(&maxSeq).Error; err != nil {
				return err
			}

			turn.Seq = maxSeq.Int64 + 1
			if err := txn.Create(turn).Error; err != nil {
				return err
			}

			return s.evict(txn, turn.UserID)
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		return err
	}

	return fmt.Errorf("append for user %s: %w", turn.UserID, ErrContended)
}

// evict deletes everything older than the newest s.window turns. Seq is the
// authoritative per-user order, so both the cutoff and the delete predicate
// go by seq; a wall-clock regression across instances cannot make them
// disagree.
func (s *Store) evict(txn *gorm.DB, userID string) error {
	var cutoff database.ChatTurn
	err := txn.Where("user_id = ?", userID).
		Order("seq DESC").
		Offset(s.window - 1).
		Take(&cutoff).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil // window not yet full
	}
	if err != nil {
		return err
	}

	return txn.Where("user_id = ? AND seq < ?", userID, cutoff.Seq).
		Delete(&database.ChatTurn{}).Error
}

// Window returns the user's retained turns in chronological order, oldest
// first. The query scans newest-first so the limit picks the most recent
// turns, then the slice is reversed for prompt assembly.
func (s *Store) Window(ctx context.Context, userID string) ([]database.ChatTurn, error) {
	var turns []database.ChatTurn
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC, seq DESC").
		Limit(s.window).
		Find(&turns).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// PurgeUser removes every retained turn for a user. Not part of the request
// path; exists for external retention tooling.
func (s *Store) PurgeUser(ctx context.Context, userID string) error {
	if err := s.locks.Lock(userID); err != nil {
		return err
	}
	defer s.locks.Unlock(userID) //nolint:errcheck

	return s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&database.ChatTurn{}).Error
}
