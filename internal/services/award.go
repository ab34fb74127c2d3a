package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-xp-backend/internal/domain"
	"github.com/tbourn/go-xp-backend/internal/repo"
)

// award appends a ledger entry and bumps the cached user total. Run it
// inside the transaction that performs the state transition it pays for.
// A taken sourceKey surfaces as repo.ErrDuplicate.
func award(ctx context.Context, tx *gorm.DB, userID string, delta int64, reason domain.LedgerReason, desc string, eventID *string, sourceKey string, now time.Time) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{
		ID:             uuid.NewString(),
		UserID:         userID,
		DeltaXP:        delta,
		Reason:         reason,
		Description:    desc,
		RelatedEventID: eventID,
		CreatedAt:      now.UTC(),
	}
	if sourceKey != "" {
		e.SourceKey = &sourceKey
	}
	if err := repo.AppendLedger(ctx, tx, e); err != nil {
		return nil, err
	}
	if err := repo.AddUserXP(ctx, tx, userID, delta, now); err != nil {
		return nil, err
	}
	return e, nil
}
