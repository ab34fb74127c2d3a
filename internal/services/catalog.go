package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-xp-backend/internal/config"
	"github.com/tbourn/go-xp-backend/internal/domain"
	"github.com/tbourn/go-xp-backend/internal/repo"
)

// SeedResult counts what SeedCatalog wrote.
type SeedResult struct {
	Rules  int
	Quests int
}

// SeedCatalog upserts every catalog rule and creates catalog quests whose
// name is not taken yet. Existing quests are left alone so admin edits
// survive restarts.
func SeedCatalog(ctx context.Context, db *gorm.DB, cat *config.Catalog, clock Clock) (SeedResult, error) {
	var out SeedResult
	if cat == nil {
		return out, nil
	}
	now := nowUTC(clock)

	for _, cr := range cat.Rules {
		r := domain.XPRule{
			EventType:       domain.EventType(cr.EventType),
			XP:              cr.XP,
			MaxPerWindow:    cr.MaxPerWindow,
			Window:          domain.RuleWindow(cr.Window),
			CooldownSeconds: cr.CooldownSeconds,
			IsActive:        !cr.Disabled,
			Description:     cr.Description,
			UpdatedAt:       now,
		}
		if !r.EventType.Valid() {
			return out, fmt.Errorf("%w: catalog rule %q", ErrInvalidEventType, cr.EventType)
		}
		if err := repo.UpsertXPRule(ctx, db, &r); err != nil {
			return out, classify(err)
		}
		out.Rules++
	}

	for _, cq := range cat.Quests {
		_, err := repo.GetQuestByName(ctx, db, cq.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return out, classify(err)
		}
		q := domain.Quest{
			ID:          uuid.NewString(),
			Name:        cq.Name,
			Description: cq.Description,
			Cadence:     domain.Cadence(cq.Cadence),
			StartAt:     now,
			Rule: domain.QuestRule{
				Type:         domain.QuestRuleType(cq.Rule),
				EventType:    domain.EventType(cq.EventType),
				TargetCount:  cq.TargetCount,
				TargetXP:     cq.TargetXP,
				TargetAmount: cq.TargetAmount,
			},
			RewardXP:     cq.RewardXP,
			IsActive:     !cq.Disabled,
			Icon:         cq.Icon,
			Category:     cq.Category,
			Difficulty:   cq.Difficulty,
			DisplayOrder: cq.DisplayOrder,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := domain.ValidateQuest(q); err != nil {
			return out, fmt.Errorf("%w: catalog quest %q: %w", ErrInvalidQuest, cq.Name, err)
		}
		if err := repo.CreateQuest(ctx, db, &q); err != nil {
			return out, classify(err)
		}
		out.Quests++
	}
	return out, nil
}
