// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the quest progress rows.
//
// Every mutation is a conditional UPDATE so that the state machine only
// moves forward under concurrent writers:
//
//   - IncrementProgress / SetProgress only touch rows with is_claimed = false.
//   - MarkCompleted flips is_completed once, when progress_value >= target.
//   - ClaimProgress flips is_claimed once, and only for completed rows.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-xp-backend/internal/domain"
)

// GetOrCreateProgress returns the (user, quest, periodKey) row, inserting a
// zero row first if none exists. Concurrent callers converge on one row.
func GetOrCreateProgress(ctx context.Context, db *gorm.DB, userID, questID, periodKey string, start, end *time.Time, now time.Time) (*domain.QuestProgress, error) {
	now = now.UTC()
	row := &domain.QuestProgress{
		ID:          uuid.NewString(),
		UserID:      userID,
		QuestID:     questID,
		PeriodKey:   periodKey,
		PeriodStart: start,
		PeriodEnd:   end,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return nil, err
	}
	return GetProgress(ctx, db, userID, questID, periodKey)
}

// GetProgress fetches the (user, quest, periodKey) row.
func GetProgress(ctx context.Context, db *gorm.DB, userID, questID, periodKey string) (*domain.QuestProgress, error) {
	var p domain.QuestProgress
	err := db.WithContext(ctx).
		Where("user_id = ? AND quest_id = ? AND period_key = ?", userID, questID, periodKey).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProgressByID fetches a row by primary key.
func GetProgressByID(ctx context.Context, db *gorm.DB, id string) (*domain.QuestProgress, error) {
	var p domain.QuestProgress
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// IncrementProgress adds delta to an unclaimed row. It reports whether the
// row changed.
func IncrementProgress(ctx context.Context, db *gorm.DB, id string, delta int64, eventID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.QuestProgress{}).
		Where("id = ? AND is_claimed = ?", id, false).
		Updates(map[string]any{
			"progress_value": gorm.Expr("progress_value + ?", delta),
			"last_event_id":  eventID,
			"updated_at":     now.UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

// SetProgress overwrites the value of an unclaimed row. Only values above
// the stored one are written so progress never moves backwards.
func SetProgress(ctx context.Context, db *gorm.DB, id string, value int64, eventID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.QuestProgress{}).
		Where("id = ? AND is_claimed = ? AND progress_value < ?", id, false, value).
		Updates(map[string]any{
			"progress_value": value,
			"last_event_id":  eventID,
			"updated_at":     now.UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

// MarkCompleted stamps completion exactly once when the target is reached.
// It reports whether this call performed the flip.
func MarkCompleted(ctx context.Context, db *gorm.DB, id string, target int64, now time.Time) (bool, error) {
	now = now.UTC()
	res := db.WithContext(ctx).
		Model(&domain.QuestProgress{}).
		Where("id = ? AND is_completed = ? AND progress_value >= ?", id, false, target).
		Updates(map[string]any{
			"is_completed": true,
			"completed_at": now,
			"updated_at":   now,
		})
	return res.RowsAffected == 1, res.Error
}

// ClaimProgress is the claim compare-and-swap: is_claimed false -> true on a
// completed row. Exactly one concurrent caller observes true.
func ClaimProgress(ctx context.Context, db *gorm.DB, id string, now time.Time) (bool, error) {
	now = now.UTC()
	res := db.WithContext(ctx).
		Model(&domain.QuestProgress{}).
		Where("id = ? AND is_completed = ? AND is_claimed = ?", id, true, false).
		Updates(map[string]any{
			"is_claimed": true,
			"claimed_at": now,
			"updated_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

// ProgressFor returns a user's rows for the given quests, keyed by quest id.
// keys maps quest id to the period key of interest.
func ProgressFor(ctx context.Context, db *gorm.DB, userID string, keys map[string]string) (map[string]domain.QuestProgress, error) {
	out := make(map[string]domain.QuestProgress, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(keys))
	for id := range keys {
		ids = append(ids, id)
	}
	var rows []domain.QuestProgress
	if err := db.WithContext(ctx).
		Where("user_id = ? AND quest_id IN ?", userID, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		if keys[r.QuestID] == r.PeriodKey {
			out[r.QuestID] = r
		}
	}
	return out, nil
}

// ListClaimedProgress returns a user's claimed rows, newest claim first,
// with their quests preloaded.
func ListClaimedProgress(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.QuestProgress, int64, error) {
	q := db.WithContext(ctx).
		Model(&domain.QuestProgress{}).
		Where("user_id = ? AND is_claimed = ?", userID, true)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.QuestProgress
	err := q.Preload("Quest").
		Order("claimed_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, total, err
}
