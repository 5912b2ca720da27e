package dedup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bard-backend/internal/database"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultHorizon comfortably covers Slack's redelivery window. Records older
// than this may be swept; re-processing a duplicate that old is tolerated,
// skipping a genuinely new event is not.
const DefaultHorizon = 10 * time.Minute

type Deduplicator struct {
	db      *gorm.DB
	horizon time.Duration
}

func New(db *gorm.DB, horizon time.Duration) *Deduplicator {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Deduplicator{db: db, horizon: horizon}
}

// ShouldProcess records eventID and reports whether this is the first
// delivery. The record-and-check is a single conditional insert, so two
// near-simultaneous deliveries of the same id cannot both get true.
func (d *Deduplicator) ShouldProcess(ctx context.Context, eventID string) (bool, error) {
	record := database.ProcessedEvent{
		EventID:     eventID,
		ProcessedAt: time.Now().UTC(),
	}

	res := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

// Sweep deletes records past the horizon and returns how many were removed.
func (d *Deduplicator) Sweep(ctx context.Context) (int64, error) {
	res := d.db.WithContext(ctx).
		Where("processed_at < ?", time.Now().UTC().Add(-d.horizon)).
		Delete(&database.ProcessedEvent{})
	return res.RowsAffected, res.Error
}

// StartSweeper sweeps on a schedule until ctx is cancelled. Sweeping is
// decoupled from request handling so eviction cost never lands on a request.
func (d *Deduplicator) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := d.Sweep(ctx)
				if err != nil {
					slog.Error("error sweeping processed events", "error", err)
				} else if removed > 0 {
					slog.Debug("swept processed events", "removed", removed)
				}
			}
		}
	}()
}
