package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-xp-backend/internal/domain"
)

// UpsertXPRule inserts or replaces the rule for r.EventType.
func UpsertXPRule(ctx context.Context, db *gorm.DB, r *domain.XPRule) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"xp", "max_per_window", "rule_window", "cooldown_seconds", "is_active", "description", "updated_at"}),
		}).
		Create(r).Error
}

// GetActiveXPRule returns the active rule for t or ErrNotFound.
func GetActiveXPRule(ctx context.Context, db *gorm.DB, t domain.EventType) (*domain.XPRule, error) {
	var r domain.XPRule
	err := db.WithContext(ctx).
		Where("event_type = ? AND is_active = ?", t, true).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListActiveXPRules returns all active rules ordered by event type.
func ListActiveXPRules(ctx context.Context, db *gorm.DB) ([]domain.XPRule, error) {
	var out []domain.XPRule
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("event_type asc").
		Find(&out).Error
	return out, err
}
