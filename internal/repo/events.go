// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Event
// store.
//
// Deduplication is delegated entirely to the unique index on
// events.dedup_key: CreateEvent never checks before inserting, and a unique
// violation is reported as ErrDuplicate.
//
// Status changes go through TransitionEvent, a conditional update restricted
// to the allowed predecessor statuses, so terminal statuses are never
// overwritten.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-xp-backend/internal/domain"
)

// EventFilter narrows ListEvents. Zero values mean "no filter".
type EventFilter struct {
	Type   domain.EventType
	Status domain.EventStatus
	From   *time.Time
	To     *time.Time
	Offset int
	Limit  int
}

// CreateEvent inserts e. A dedup_key collision returns ErrDuplicate and
// leaves no row behind.
func CreateEvent(ctx context.Context, db *gorm.DB, e *domain.Event) error {
	return mapDup(db.WithContext(ctx).Create(e).Error)
}

// GetEvent fetches an event by id.
func GetEvent(ctx context.Context, db *gorm.DB, id string) (*domain.Event, error) {
	var e domain.Event
	if err := db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEventByDedupKey returns the event that owns key.
func GetEventByDedupKey(ctx context.Context, db *gorm.DB, key string) (*domain.Event, error) {
	var e domain.Event
	if err := db.WithContext(ctx).Where("dedup_key = ?", key).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// TransitionEvent moves an event to status `to` if its current status is an
// allowed predecessor. It reports whether the row changed.
func TransitionEvent(ctx context.Context, db *gorm.DB, id string, to domain.EventStatus, now time.Time, msg string) (bool, error) {
	from := domain.EventPredecessors(to)
	if len(from) == 0 {
		return false, nil
	}
	now = now.UTC()
	upd := map[string]any{"status": to, "updated_at": now}
	switch to {
	case domain.EventVerified:
		upd["verified_at"] = now
	case domain.EventProcessed:
		upd["processed_at"] = now
	case domain.EventFailed, domain.EventRejected:
		upd["processed_at"] = now
		upd["error_message"] = truncate(msg, 255)
	}
	res := db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(upd)
	return res.RowsAffected == 1, res.Error
}

// ListEvents returns a page of a user's events, newest first, and the total
// matching count.
func ListEvents(ctx context.Context, db *gorm.DB, userID string, f EventFilter) ([]domain.Event, int64, error) {
	q := db.WithContext(ctx).Model(&domain.Event{}).Where("user_id = ?", userID)
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("occurred_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("occurred_at <= ?", f.To.UTC())
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.Event
	err := q.Order("occurred_at desc, id desc").Offset(f.Offset).Limit(f.Limit).Find(&out).Error
	return out, total, err
}

// HasProcessedEvent reports whether the user has at least one processed
// event of any of the given types.
func HasProcessedEvent(ctx context.Context, db *gorm.DB, userID string, types []domain.EventType) (bool, error) {
	if len(types) == 0 {
		return false, nil
	}
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("user_id = ? AND status = ? AND type IN ?", userID, domain.EventProcessed, types).
		Count(&n).Error
	return n > 0, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
