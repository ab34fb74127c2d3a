// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the append-only XP ledger.
//
// There is intentionally no update or delete function for ledger entries.
// Every "pay at most once" guarantee is backed by the unique index on
// ledger_entries.source_key: AppendLedger returns ErrDuplicate when the key
// has already been paid.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-xp-backend/internal/domain"
)

// LedgerFilter narrows ListLedger. Zero values mean "no filter".
type LedgerFilter struct {
	Reason domain.LedgerReason
	From   *time.Time
	To     *time.Time
	Offset int
	Limit  int
}

// AppendLedger inserts one entry.
func AppendLedger(ctx context.Context, db *gorm.DB, e *domain.LedgerEntry) error {
	return mapDup(db.WithContext(ctx).Create(e).Error)
}

// SumUserXP returns the authoritative XP total of a user: the sum of all
// ledger deltas. When since is non-nil only entries at or after it count.
func SumUserXP(ctx context.Context, db *gorm.DB, userID string, since *time.Time) (int64, error) {
	var total int64
	q := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Select("COALESCE(SUM(delta_xp), 0)").
		Where("user_id = ?", userID)
	if since != nil {
		q = q.Where("created_at >= ?", since.UTC())
	}
	err := q.Scan(&total).Error
	return total, err
}

// SumUserXPByReason groups a user's ledger by reason.
func SumUserXPByReason(ctx context.Context, db *gorm.DB, userID string) (map[string]int64, error) {
	var rows []struct {
		Reason string
		Total  int64
	}
	err := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Select("reason, COALESCE(SUM(delta_xp), 0) AS total").
		Where("user_id = ?", userID).
		Group("reason").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Reason] = r.Total
	}
	return out, nil
}

// ListLedger returns a page of a user's entries, newest first, and the
// total matching count.
func ListLedger(ctx context.Context, db *gorm.DB, userID string, f LedgerFilter) ([]domain.LedgerEntry, int64, error) {
	q := db.WithContext(ctx).Model(&domain.LedgerEntry{}).Where("user_id = ?", userID)
	if f.Reason != "" {
		q = q.Where("reason = ?", f.Reason)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", f.To.UTC())
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.LedgerEntry
	err := q.Order("created_at desc, id desc").Offset(f.Offset).Limit(f.Limit).Find(&out).Error
	return out, total, err
}

// CountSourceKeys counts entries whose source key starts with prefix. Capped
// XP rules name their award slots "<prefix>#<n>", so this is the number of
// slots already taken in a window.
func CountSourceKeys(ctx context.Context, db *gorm.DB, prefix string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("source_key LIKE ? ESCAPE '\\'", likeEscaper.Replace(prefix)+"%").
		Count(&n).Error
	return n, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LastAwardAt returns the time of the newest positive entry with the given
// reason, or nil when there is none.
func LastAwardAt(ctx context.Context, db *gorm.DB, userID string, reason domain.LedgerReason) (*time.Time, error) {
	var e domain.LedgerEntry
	err := db.WithContext(ctx).
		Where("user_id = ? AND reason = ? AND delta_xp > 0", userID, reason).
		Order("created_at desc").
		Limit(1).
		Find(&e).Error
	if err != nil || e.ID == "" {
		return nil, err
	}
	t := e.CreatedAt
	return &t, nil
}

// AggregateScores sums ledger deltas per user for the leaderboard. When
// from/to are nil the whole ledger counts. Inactive users and non-positive
// sums are excluded. Results are ordered by (score desc, user_id asc).
func AggregateScores(ctx context.Context, db *gorm.DB, from, to *time.Time) ([]domain.Score, error) {
	inactive := db.Session(&gorm.Session{NewDB: true}).
		Model(&domain.User{}).
		Select("id").
		Where("is_active = ?", false)

	q := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Select("user_id, SUM(delta_xp) AS score").
		Where("user_id NOT IN (?)", inactive)
	if from != nil {
		q = q.Where("created_at >= ?", from.UTC())
	}
	if to != nil {
		q = q.Where("created_at <= ?", to.UTC())
	}
	var out []domain.Score
	err := q.Group("user_id").
		Having("SUM(delta_xp) > 0").
		Order("score desc, user_id asc").
		Scan(&out).Error
	return out, err
}
