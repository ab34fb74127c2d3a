// Package handlers exposes the REST surface of the XP backend.
//
// Handlers are transport-thin: they bind and validate input, call application
// services, and translate results and service errors into HTTP responses.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-xp-backend/internal/domain"
	"github.com/tbourn/go-xp-backend/internal/http/middleware"
	"github.com/tbourn/go-xp-backend/internal/repo"
	"github.com/tbourn/go-xp-backend/internal/services"
	"github.com/tbourn/go-xp-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// XPService records activity and serves the XP ledger.
type XPService interface {
	ProcessEvent(ctx context.Context, in services.SubmitInput) (*services.ProcessResult, error)
	ListUserEvents(ctx context.Context, userID string, f repo.EventFilter) ([]domain.Event, int64, error)
	GetUserXPSummary(ctx context.Context, userID string) (*services.XPSummary, error)
	GetUserLedger(ctx context.Context, userID string, f repo.LedgerFilter) ([]domain.LedgerEntry, int64, error)
	LedgerStats(ctx context.Context, userID string) (int64, *time.Time, error)
	ActiveRules(ctx context.Context) ([]domain.XPRule, error)
	UpsertRule(ctx context.Context, r domain.XPRule) error
	MarkEvent(ctx context.Context, eventID string, to domain.EventStatus, msg string) error
}

// QuestService serves quests, progress and claims.
type QuestService interface {
	ListWithProgress(ctx context.Context, userID string, cadence domain.Cadence, search string) ([]services.QuestWithProgress, error)
	Claim(ctx context.Context, userID, questID string) (*services.ClaimResult, error)
	History(ctx context.Context, userID string, offset, limit int) ([]domain.QuestProgress, int64, error)
	Create(ctx context.Context, q domain.Quest) (*domain.Quest, error)
	Update(ctx context.Context, id string, q domain.Quest) (*domain.Quest, error)
}

// ReferralService tracks and pays referrals.
type ReferralService interface {
	VerifyCode(ctx context.Context, code string) (*services.CodeCheck, error)
	Stats(ctx context.Context, userID, wallet string) (*services.ReferralStats, error)
	Track(ctx context.Context, code, inviteeID string, metadata map[string]any) (*domain.Referral, error)
	History(ctx context.Context, userID string, offset, limit int) ([]domain.Referral, int64, error)
	Override(ctx context.Context, referralID, action, reason string) (*domain.Referral, error)
}

// LeaderboardService serves and generates snapshots.
type LeaderboardService interface {
	GetLeaderboard(ctx context.Context, p domain.Period, limit, skip int) (*services.LeaderboardPage, error)
	GetUserRank(ctx context.Context, userID string, p domain.Period) (*services.UserRank, error)
	GetLatest(ctx context.Context, p domain.Period) (*domain.LeaderboardSnapshot, error)
	Generate(ctx context.Context, p domain.Period) (*domain.LeaderboardSnapshot, error)
}

// UserService manages the local user projection.
type UserService interface {
	SetActive(ctx context.Context, userID string, active bool) error
}

// Handlers groups the service dependencies of all endpoints.
type Handlers struct {
	xp          XPService
	quests      QuestService
	referrals   ReferralService
	leaderboard LeaderboardService
	users       UserService
}

// New wires handlers to services and registers the custom binding
// validators.
func New(xp XPService, quests QuestService, referrals ReferralService, leaderboard LeaderboardService, users UserService) *Handlers {
	RegisterValidators()
	return &Handlers{
		xp:          xp,
		quests:      quests,
		referrals:   referrals,
		leaderboard: leaderboard,
		users:       users,
	}
}

//
// Shared DTOs and helpers
//

// Pagination describes a page of a list response.
type Pagination struct {
	Page       int   `json:"page"        example:"1"`
	PageSize   int   `json:"page_size"   example:"20"`
	Total      int64 `json:"total"       example:"42"`
	TotalPages int   `json:"total_pages" example:"3"`
	HasNext    bool  `json:"has_next"    example:"true"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination reads page/page_size with defaults 1/20 and caps page_size
// at 100.
func clampPagination(c *gin.Context) (page, pageSize int) {
	page = utils.AtoiDefault(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), 20)
	if pageSize < 1 {
		pageSize = 20
	}
	return page, utils.Clamp(pageSize, 1, 100)
}

// userID returns the identity placed in the context by middleware.Identity.
func userID(c *gin.Context) string { return middleware.UserID(c) }

// parseTime parses an optional RFC 3339 query parameter.
func parseTime(c *gin.Context, name string) (*time.Time, bool) {
	v := c.Query(name)
	if v == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, false
	}
	t = t.UTC()
	return &t, true
}

// periodParam reads ?period=, defaulting to all-time.
func periodParam(c *gin.Context) domain.Period {
	if p := c.Query("period"); p != "" {
		return domain.Period(p)
	}
	return domain.PeriodAllTime
}
