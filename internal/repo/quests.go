package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-xp-backend/internal/domain"
)

// CreateQuest inserts q.
func CreateQuest(ctx context.Context, db *gorm.DB, q *domain.Quest) error {
	return db.WithContext(ctx).Create(q).Error
}

// GetQuest fetches a quest by id.
func GetQuest(ctx context.Context, db *gorm.DB, id string) (*domain.Quest, error) {
	var q domain.Quest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&q).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

// GetQuestByName is used by catalog seeding to stay idempotent.
func GetQuestByName(ctx context.Context, db *gorm.DB, name string) (*domain.Quest, error) {
	var q domain.Quest
	if err := db.WithContext(ctx).Where("name = ?", name).First(&q).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

// SaveQuest writes every column of q. Progress rows are not touched.
func SaveQuest(ctx context.Context, db *gorm.DB, q *domain.Quest) error {
	return db.WithContext(ctx).Save(q).Error
}

// ListLiveQuests returns active quests whose window contains now, ordered
// by display order then creation time. An empty cadence matches all.
func ListLiveQuests(ctx context.Context, db *gorm.DB, now time.Time, cadence domain.Cadence) ([]domain.Quest, error) {
	now = now.UTC()
	q := db.WithContext(ctx).
		Where("is_active = ? AND start_at <= ?", true, now).
		Where("(end_at IS NULL OR end_at >= ?)", now)
	if cadence != "" {
		q = q.Where("cadence = ?", cadence)
	}
	var out []domain.Quest
	err := q.Order("display_order asc, created_at asc").Find(&out).Error
	return out, err
}
