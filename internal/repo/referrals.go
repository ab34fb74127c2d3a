package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-xp-backend/internal/domain"
)

// CreateReferral inserts r. A second referral for the same invitee returns
// ErrDuplicate.
func CreateReferral(ctx context.Context, db *gorm.DB, r *domain.Referral) error {
	return mapDup(db.WithContext(ctx).Create(r).Error)
}

// GetReferral fetches a referral by id.
func GetReferral(ctx context.Context, db *gorm.DB, id string) (*domain.Referral, error) {
	var r domain.Referral
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// GetReferralByInvitee returns the (single) referral naming userID as invitee.
func GetReferralByInvitee(ctx context.Context, db *gorm.DB, userID string) (*domain.Referral, error) {
	var r domain.Referral
	if err := db.WithContext(ctx).Where("invitee_user_id = ?", userID).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// TransitionReferral moves a referral to status `to` when its current status
// is one of from. extra columns are written in the same statement. It
// reports whether this call performed the transition.
func TransitionReferral(ctx context.Context, db *gorm.DB, id string, from []domain.ReferralStatus, to domain.ReferralStatus, now time.Time, extra map[string]any) (bool, error) {
	now = now.UTC()
	upd := map[string]any{"status": to, "updated_at": now}
	switch to {
	case domain.ReferralVerified:
		upd["verified_at"] = now
	case domain.ReferralRewarded:
		upd["rewarded_at"] = now
	case domain.ReferralRejected:
		upd["rejected_at"] = now
	}
	for k, v := range extra {
		upd[k] = v
	}
	res := db.WithContext(ctx).
		Model(&domain.Referral{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(upd)
	return res.RowsAffected == 1, res.Error
}

// CountReferralsByStatus groups an inviter's referrals by status.
func CountReferralsByStatus(ctx context.Context, db *gorm.DB, inviterID string) (map[domain.ReferralStatus]int64, error) {
	var rows []struct {
		Status domain.ReferralStatus
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Referral{}).
		Select("status, COUNT(*) AS n").
		Where("inviter_user_id = ?", inviterID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.ReferralStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

// ListReferralsByInviter returns a page of an inviter's referrals, newest
// first, and the total count.
func ListReferralsByInviter(ctx context.Context, db *gorm.DB, inviterID string, offset, limit int) ([]domain.Referral, int64, error) {
	q := db.WithContext(ctx).Model(&domain.Referral{}).Where("inviter_user_id = ?", inviterID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.Referral
	err := q.Order("created_at desc, id desc").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}
