package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-xp-backend/internal/domain"
)

// InsertUserIfAbsent inserts u unless a row with the same primary key or
// referral code already exists. It reports whether a row was inserted.
func InsertUserIfAbsent(ctx context.Context, db *gorm.DB, u *domain.User) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(u)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetUser fetches a user by id.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByReferralCode resolves the owner of an (already normalised) code.
func GetUserByReferralCode(ctx context.Context, db *gorm.DB, code string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("referral_code = ?", code).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// SetUserWallet records the wallet address when none is stored yet.
func SetUserWallet(ctx context.Context, db *gorm.DB, id, wallet string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ? AND (wallet_address IS NULL OR wallet_address = '')", id).
		Updates(map[string]any{"wallet_address": wallet, "updated_at": now.UTC()}).Error
}

// SetUserActive flips the leaderboard eligibility flag. Returns ErrNotFound
// when the user does not exist.
func SetUserActive(ctx context.Context, db *gorm.DB, id string, active bool, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": active, "updated_at": now.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddUserXP bumps the cached total. Call it in the same transaction as the
// ledger insert it mirrors.
func AddUserXP(ctx context.Context, db *gorm.DB, id string, delta int64, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_xp":   gorm.Expr("total_xp + ?", delta),
			"updated_at": now.UTC(),
		}).Error
}

// WalletsByUserID returns wallet addresses for the given ids. Users without
// a stored wallet are omitted.
func WalletsByUserID(ctx context.Context, db *gorm.DB, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		ID            string
		WalletAddress string
	}
	// Chunk to stay under driver bind-parameter limits.
	const chunk = 500
	for i := 0; i < len(ids); i += chunk {
		j := i + chunk
		if j > len(ids) {
			j = len(ids)
		}
		rows = rows[:0]
		if err := db.WithContext(ctx).
			Model(&domain.User{}).
			Select("id, wallet_address").
			Where("id IN ? AND wallet_address <> ''", ids[i:j]).
			Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out[r.ID] = r.WalletAddress
		}
	}
	return out, nil
}
