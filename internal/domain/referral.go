package domain

import "time"

// ReferralStatus is the lifecycle state of a Referral.
type ReferralStatus string

const (
	ReferralPending  ReferralStatus = "pending"
	ReferralVerified ReferralStatus = "verified"
	ReferralRewarded ReferralStatus = "rewarded"
	ReferralRejected ReferralStatus = "rejected"
)

// Terminal reports whether no further transitions are allowed.
func (s ReferralStatus) Terminal() bool {
	return s == ReferralRewarded || s == ReferralRejected
}

// Referral links an inviter to an invitee. A user can be the invitee of at
// most one referral (unique InviteeUserID).
type Referral struct {
	ID               string         `json:"id"                    gorm:"type:char(36);primaryKey"`
	InviterUserID    string         `json:"inviter_user_id"       gorm:"type:varchar(64);not null;index:idx_referrals_inviter_status,priority:1"`
	InviteeUserID    string         `json:"invitee_user_id"       gorm:"type:varchar(64);not null;uniqueIndex"`
	ReferralCodeUsed string         `json:"referral_code_used"    gorm:"type:varchar(16);not null"`
	Status           ReferralStatus `json:"status"                gorm:"type:varchar(16);not null;default:'pending';index:idx_referrals_inviter_status,priority:2"`
	VerifiedAt       *time.Time     `json:"verified_at,omitempty"`
	RewardedAt       *time.Time     `json:"rewarded_at,omitempty"`
	RejectedAt       *time.Time     `json:"rejected_at,omitempty"`
	Reason           string         `json:"reason,omitempty"      gorm:"type:varchar(255)"`
	InviterXP        int64          `json:"inviter_xp"            gorm:"not null;default:0"`
	InviteeXP        int64          `json:"invitee_xp"            gorm:"not null;default:0"`
	Metadata         map[string]any `json:"metadata,omitempty"    gorm:"type:text;serializer:json"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Referral.
func (Referral) TableName() string { return "referrals" }
