// Package services – ReferralService
//
// This file implements the referral state machine:
//
//	pending -> verified -> rewarded
//	pending | verified -> rejected
//
// Every transition is a conditional update on the current status. The payout
// (verified -> rewarded) runs in one transaction with exactly two ledger
// entries keyed "referral:<id>:inviter" and "referral:<id>:invitee", so a
// referral pays at most once no matter how often DistributeRewards runs.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-xp-backend/internal/domain"
	"github.com/tbourn/go-xp-backend/internal/observability"
	"github.com/tbourn/go-xp-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Default referral rewards.
const (
	DefaultInviterXP int64 = 500
	DefaultInviteeXP int64 = 100
)

// DefaultQualifyingEvents are the event types that verify a referral.
var DefaultQualifyingEvents = []domain.EventType{
	domain.EventDeposit, domain.EventSupply, domain.EventBorrow, domain.EventSwap,
}

// Override actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// ThresholdRefresher re-evaluates XP-threshold quests after XP changes that
// did not come from an event.
type ThresholdRefresher interface {
	RefreshThreshold(ctx context.Context, userID string) error
}

// CodeCheck is the result of VerifyCode.
type CodeCheck struct {
	Valid         bool   `json:"valid"`
	ReferralCode  string `json:"referralCode,omitempty"`
	ReferralCount int64  `json:"referralCount"`
}

// ReferralStats summarises an inviter's referrals.
type ReferralStats struct {
	ReferralCode string                          `json:"referralCode"`
	Total        int64                           `json:"total"`
	ByStatus     map[domain.ReferralStatus]int64 `json:"byStatus"`
	XPEarned     int64                           `json:"xpEarned"`
}

// ReferralService tracks, verifies and pays referrals.
type ReferralService struct {
	DB    *gorm.DB
	Clock Clock

	// Nil rewards fall back to DefaultInviterXP and DefaultInviteeXP. An
	// explicit zero pays nothing but still records both ledger entries.
	InviterXP        *int64
	InviteeXP        *int64
	QualifyingEvents []domain.EventType

	Users  *UserService
	Quests ThresholdRefresher
}

var upper = cases.Upper(language.Und)

// NormalizeCode trims and upper-cases a referral code.
func NormalizeCode(code string) string {
	return upper.String(strings.TrimSpace(code))
}

func (s *ReferralService) rewards() (int64, int64) {
	inviter, invitee := DefaultInviterXP, DefaultInviteeXP
	if s.InviterXP != nil {
		inviter = *s.InviterXP
	}
	if s.InviteeXP != nil {
		invitee = *s.InviteeXP
	}
	return inviter, invitee
}

func (s *ReferralService) qualifying() []domain.EventType {
	if len(s.QualifyingEvents) == 0 {
		return DefaultQualifyingEvents
	}
	return s.QualifyingEvents
}

// Track records that inviteeID signed up with code. A user can be referred
// once; self-referrals are refused.
func (s *ReferralService) Track(ctx context.Context, code, inviteeID string, metadata map[string]any) (*domain.Referral, error) {
	tr := otel.Tracer("services/ReferralService")
	ctx, span := tr.Start(ctx, "Track", trace.WithAttributes(attribute.String("user.id", inviteeID)))
	defer span.End()

	inviteeID = strings.TrimSpace(inviteeID)
	if inviteeID == "" {
		return nil, ErrMissingUser
	}
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidCode
	}
	inviter, err := repo.GetUserByReferralCode(ctx, s.DB, code)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, classify(err)
	}
	if inviter.ID == inviteeID {
		return nil, ErrSelfReferral
	}
	if s.Users != nil {
		if _, err := s.Users.Ensure(ctx, inviteeID, ""); err != nil {
			return nil, err
		}
	}

	now := nowUTC(s.Clock)
	r := &domain.Referral{
		ID:               uuid.NewString(),
		InviterUserID:    inviter.ID,
		InviteeUserID:    inviteeID,
		ReferralCodeUsed: code,
		Status:           domain.ReferralPending,
		Metadata:         metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = repo.CreateReferral(ctx, s.DB, r)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrAlreadyReferred
	}
	if err != nil {
		return nil, classify(err)
	}

	// The invitee may already have qualifying activity.
	if ok, err := s.CheckAndVerify(ctx, inviteeID); err != nil {
		log.Warn().Err(err).Str("referral_id", r.ID).Msg("referral verification after track failed")
	} else if ok {
		if cur, err := repo.GetReferral(ctx, s.DB, r.ID); err == nil {
			r = cur
		}
	}
	return r, nil
}

// CheckAndVerify verifies and pays the invitee's pending referral when the
// invitee has a processed qualifying event. It reports whether a payout
// happened.
func (s *ReferralService) CheckAndVerify(ctx context.Context, inviteeID string) (bool, error) {
	tr := otel.Tracer("services/ReferralService")
	ctx, span := tr.Start(ctx, "CheckAndVerify", trace.WithAttributes(attribute.String("user.id", inviteeID)))
	defer span.End()

	r, err := repo.GetReferralByInvitee(ctx, s.DB, inviteeID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, classify(err)
	}
	if r.Status.Terminal() {
		return false, nil
	}
	if r.Status == domain.ReferralPending {
		ok, err := repo.HasProcessedEvent(ctx, s.DB, inviteeID, s.qualifying())
		if err != nil {
			return false, classify(err)
		}
		if !ok {
			return false, nil
		}
		if _, err := repo.TransitionReferral(ctx, s.DB, r.ID,
			[]domain.ReferralStatus{domain.ReferralPending}, domain.ReferralVerified, nowUTC(s.Clock), nil); err != nil {
			return false, classify(err)
		}
	}
	return s.DistributeRewards(ctx, r.ID)
}

// DistributeRewards pays both sides of a verified referral. Calling it again,
// or on a referral that is not verified, is a no-op reporting false.
func (s *ReferralService) DistributeRewards(ctx context.Context, referralID string) (bool, error) {
	tr := otel.Tracer("services/ReferralService")
	ctx, span := tr.Start(ctx, "DistributeRewards", trace.WithAttributes(attribute.String("referral.id", referralID)))
	defer span.End()

	r, err := repo.GetReferral(ctx, s.DB, referralID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, ErrReferralNotFound
	}
	if err != nil {
		return false, classify(err)
	}
	if r.Status != domain.ReferralVerified {
		return false, nil
	}

	inviterXP, inviteeXP := s.rewards()
	now := nowUTC(s.Clock)
	paid := false
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.TransitionReferral(ctx, tx, r.ID,
			[]domain.ReferralStatus{domain.ReferralVerified}, domain.ReferralRewarded, now,
			map[string]any{"inviter_xp": inviterXP, "invitee_xp": inviteeXP})
		if err != nil || !ok {
			return err
		}
		if _, err := award(ctx, tx, r.InviterUserID, inviterXP, domain.ReasonReferralInviter,
			"Referral reward for inviting "+r.InviteeUserID, nil, domain.ReferralAwardKey(r.ID, true), now); err != nil {
			return err
		}
		if _, err := award(ctx, tx, r.InviteeUserID, inviteeXP, domain.ReasonReferralInvitee,
			"Referral welcome reward", nil, domain.ReferralAwardKey(r.ID, false), now); err != nil {
			return err
		}
		paid = true
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, classify(err)
	}
	if !paid {
		return false, nil
	}

	observability.ReferralRewards.WithLabelValues("rewarded").Inc()
	observability.XPAwarded.WithLabelValues(string(domain.ReasonReferralInviter)).Add(float64(inviterXP))
	observability.XPAwarded.WithLabelValues(string(domain.ReasonReferralInvitee)).Add(float64(inviteeXP))
	log.Info().Str("referral_id", r.ID).Str("inviter_id", r.InviterUserID).Str("invitee_id", r.InviteeUserID).Msg("referral rewarded")

	if s.Quests != nil {
		for _, uid := range []string{r.InviterUserID, r.InviteeUserID} {
			if err := s.Quests.RefreshThreshold(ctx, uid); err != nil {
				log.Warn().Err(err).Str("user_id", uid).Msg("threshold refresh after referral failed")
			}
		}
	}
	return true, nil
}

// Override lets an operator approve (verify and pay) or reject a referral
// that has not reached a terminal status.
func (s *ReferralService) Override(ctx context.Context, referralID, action, reason string) (*domain.Referral, error) {
	tr := otel.Tracer("services/ReferralService")
	ctx, span := tr.Start(ctx, "Override",
		trace.WithAttributes(attribute.String("referral.id", referralID), attribute.String("action", action)),
	)
	defer span.End()

	action = strings.ToLower(strings.TrimSpace(action))
	if action != ActionApprove && action != ActionReject {
		return nil, ErrInvalidAction
	}
	r, err := repo.GetReferral(ctx, s.DB, referralID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrReferralNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	if r.Status.Terminal() {
		return nil, ErrReferralFinal
	}

	now := nowUTC(s.Clock)
	extra := map[string]any{}
	if reason = strings.TrimSpace(reason); reason != "" {
		extra["reason"] = reason
	}

	switch action {
	case ActionApprove:
		if r.Status == domain.ReferralPending {
			if _, err := repo.TransitionReferral(ctx, s.DB, r.ID,
				[]domain.ReferralStatus{domain.ReferralPending}, domain.ReferralVerified, now, extra); err != nil {
				return nil, classify(err)
			}
		}
		ok, err := s.DistributeRewards(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrReferralFinal
		}
	case ActionReject:
		ok, err := repo.TransitionReferral(ctx, s.DB, r.ID,
			[]domain.ReferralStatus{domain.ReferralPending, domain.ReferralVerified}, domain.ReferralRejected, now, extra)
		if err != nil {
			return nil, classify(err)
		}
		if !ok {
			return nil, ErrReferralFinal
		}
		observability.ReferralRewards.WithLabelValues("rejected").Inc()
	}

	out, err := repo.GetReferral(ctx, s.DB, r.ID)
	return out, classify(err)
}

// VerifyCode reports whether code belongs to a user. Unknown codes are not
// an error.
func (s *ReferralService) VerifyCode(ctx context.Context, code string) (*CodeCheck, error) {
	code = NormalizeCode(code)
	if code == "" {
		return &CodeCheck{}, nil
	}
	u, err := repo.GetUserByReferralCode(ctx, s.DB, code)
	if errors.Is(err, repo.ErrNotFound) {
		return &CodeCheck{}, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	counts, err := repo.CountReferralsByStatus(ctx, s.DB, u.ID)
	if err != nil {
		return nil, classify(err)
	}
	return &CodeCheck{Valid: true, ReferralCode: u.ReferralCode, ReferralCount: counts[domain.ReferralRewarded]}, nil
}

// Stats returns the caller's referral code and referral counts.
func (s *ReferralService) Stats(ctx context.Context, userID, wallet string) (*ReferralStats, error) {
	tr := otel.Tracer("services/ReferralService")
	ctx, span := tr.Start(ctx, "Stats", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	var u *domain.User
	var err error
	if s.Users != nil {
		u, err = s.Users.Ensure(ctx, userID, wallet)
	} else {
		u, err = repo.GetUser(ctx, s.DB, userID)
		if errors.Is(err, repo.ErrNotFound) {
			err = ErrUserNotFound
		}
	}
	if err != nil {
		return nil, classify(err)
	}
	counts, err := repo.CountReferralsByStatus(ctx, s.DB, userID)
	if err != nil {
		return nil, classify(err)
	}
	byReason, err := repo.SumUserXPByReason(ctx, s.DB, userID)
	if err != nil {
		return nil, classify(err)
	}
	st := &ReferralStats{
		ReferralCode: u.ReferralCode,
		ByStatus:     counts,
		XPEarned:     byReason[string(domain.ReasonReferralInviter)],
	}
	for _, n := range counts {
		st.Total += n
	}
	return st, nil
}

// History returns a page of the user's referrals as inviter, newest first.
func (s *ReferralService) History(ctx context.Context, userID string, offset, limit int) ([]domain.Referral, int64, error) {
	items, total, err := repo.ListReferralsByInviter(ctx, s.DB, userID, offset, limit)
	if err != nil {
		return nil, 0, classify(err)
	}
	if items == nil {
		items = []domain.Referral{}
	}
	return items, total, nil
}

// Get fetches one referral.
func (s *ReferralService) Get(ctx context.Context, id string) (*domain.Referral, error) {
	r, err := repo.GetReferral(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrReferralNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return r, nil
}
