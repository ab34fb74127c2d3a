// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides leaderboard snapshots and their rows.
//
// Snapshots are created in "generating" and leave it through exactly one
// conditional update (completed or failed). Readers only ever query
// completed snapshots, so a half-written snapshot is never visible.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-xp-backend/internal/domain"
)

// rowBatchSize bounds a single multi-row INSERT.
const rowBatchSize = 500

// CreateSnapshot inserts s (expected in SnapshotGenerating).
func CreateSnapshot(ctx context.Context, db *gorm.DB, s *domain.LeaderboardSnapshot) error {
	return db.WithContext(ctx).Create(s).Error
}

// InsertRows bulk-writes ranked rows in batches.
func InsertRows(ctx context.Context, db *gorm.DB, rows []domain.LeaderboardRow) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Omit("Snapshot").CreateInBatches(rows, rowBatchSize).Error
}

// CompleteSnapshot flips generating -> completed and records the summary.
// It reports whether the transition happened.
func CompleteSnapshot(ctx context.Context, db *gorm.DB, id string, totalUsers int, top int64, avg float64, now time.Time) (bool, error) {
	now = now.UTC()
	res := db.WithContext(ctx).
		Model(&domain.LeaderboardSnapshot{}).
		Where("id = ? AND status = ?", id, domain.SnapshotGenerating).
		Updates(map[string]any{
			"status":        domain.SnapshotCompleted,
			"total_users":   totalUsers,
			"top_score":     top,
			"average_score": avg,
			"completed_at":  now,
			"updated_at":    now,
		})
	return res.RowsAffected == 1, res.Error
}

// FailSnapshot flips generating -> failed with a diagnostic message.
func FailSnapshot(ctx context.Context, db *gorm.DB, id, msg string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.LeaderboardSnapshot{}).
		Where("id = ? AND status = ?", id, domain.SnapshotGenerating).
		Updates(map[string]any{
			"status":        domain.SnapshotFailed,
			"error_message": truncate(msg, 255),
			"updated_at":    now.UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

// GetSnapshot fetches a snapshot by id regardless of status.
func GetSnapshot(ctx context.Context, db *gorm.DB, id string) (*domain.LeaderboardSnapshot, error) {
	var s domain.LeaderboardSnapshot
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// LatestCompletedSnapshot returns the newest completed snapshot of a period.
func LatestCompletedSnapshot(ctx context.Context, db *gorm.DB, p domain.Period) (*domain.LeaderboardSnapshot, error) {
	var s domain.LeaderboardSnapshot
	err := db.WithContext(ctx).
		Where("period = ? AND status = ?", p, domain.SnapshotCompleted).
		Order("generated_at desc, id desc").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListRows returns a rank-ordered page of a snapshot's rows.
func ListRows(ctx context.Context, db *gorm.DB, snapshotID string, offset, limit int) ([]domain.LeaderboardRow, error) {
	var out []domain.LeaderboardRow
	err := db.WithContext(ctx).
		Where("snapshot_id = ?", snapshotID).
		Order("rank asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetRow returns a user's row inside a snapshot.
func GetRow(ctx context.Context, db *gorm.DB, snapshotID, userID string) (*domain.LeaderboardRow, error) {
	var r domain.LeaderboardRow
	err := db.WithContext(ctx).
		Where("snapshot_id = ? AND user_id = ?", snapshotID, userID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}
