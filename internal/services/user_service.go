package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-xp-backend/internal/domain"
	"github.com/tbourn/go-xp-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// referralCodeAttempts bounds retries on referral code collisions.
const referralCodeAttempts = 5

// UserService owns the local user projection: lazy creation, referral
// codes, wallet address and the leaderboard eligibility flag.
type UserService struct {
	DB    *gorm.DB
	Clock Clock
}

// NewReferralCode returns an 8-character upper-case hex code.
func NewReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Ensure returns the user row for userID, creating it on first sight. A
// wallet address, when given and valid, is recorded if none is stored yet.
func (s *UserService) Ensure(ctx context.Context, userID, wallet string) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Ensure", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrMissingUser
	}
	wallet = NormalizeAddress(wallet)
	now := nowUTC(s.Clock)

	for i := 0; i < referralCodeAttempts; i++ {
		u := &domain.User{
			ID:            userID,
			WalletAddress: wallet,
			ReferralCode:  NewReferralCode(),
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if _, err := repo.InsertUserIfAbsent(ctx, s.DB, u); err != nil {
			return nil, classify(err)
		}
		got, err := repo.GetUser(ctx, s.DB, userID)
		if errors.Is(err, repo.ErrNotFound) {
			// Referral code collided with another user; draw again.
			continue
		}
		if err != nil {
			return nil, classify(err)
		}
		if wallet != "" && got.WalletAddress == "" {
			if err := repo.SetUserWallet(ctx, s.DB, userID, wallet, now); err != nil {
				return nil, classify(err)
			}
			got.WalletAddress = wallet
		}
		return got, nil
	}
	return nil, fmt.Errorf("%w: could not allocate referral code", ErrFatal)
}

// Get returns an existing user.
func (s *UserService) Get(ctx context.Context, userID string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, classify(err)
}

// SetActive flips leaderboard eligibility. Inactive users are excluded from
// snapshots generated afterwards.
func (s *UserService) SetActive(ctx context.Context, userID string, active bool) error {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "SetActive",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.Bool("active", active)),
	)
	defer span.End()

	err := repo.SetUserActive(ctx, s.DB, userID, active, nowUTC(s.Clock))
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	return classify(err)
}
