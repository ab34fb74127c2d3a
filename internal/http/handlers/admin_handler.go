// Admin HTTP handlers. Every route here sits behind middleware.RequireAdmin.
//
//   - POST /admin/leaderboard/generate          build a snapshot now
//   - POST /admin/quests                        create a quest
//   - PUT  /admin/quests/{id}                   replace a quest definition
//   - POST /admin/referrals/{id}/override       approve or reject a referral
//   - PUT  /admin/users/{id}/active             leaderboard eligibility
//   - PUT  /admin/xp/rules/{eventType}          create or replace an XP rule
//   - POST /admin/events/{id}/status            move an event along its lifecycle
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-xp-backend/internal/domain"
)

// GenerateSnapshotRequest selects the window to rebuild.
type GenerateSnapshotRequest struct {
	Period string `json:"period" binding:"required,oneof=all-time daily weekly" example:"weekly"`
}

// QuestRuleRequest is the completion rule of a quest.
type QuestRuleRequest struct {
	Type         string         `json:"type"         binding:"required,oneof=event_count xp_threshold action_once deposit_amount custom" example:"event_count"`
	EventType    string         `json:"eventType"    example:"swap"`
	TargetCount  int64          `json:"targetCount"  binding:"gte=0" example:"3"`
	TargetXP     int64          `json:"targetXP"     binding:"gte=0"`
	TargetAmount int64          `json:"targetAmount" binding:"gte=0"`
	Custom       map[string]any `json:"custom"`
}

// QuestRequest is the payload for creating or replacing a quest.
type QuestRequest struct {
	Name         string           `json:"name"          binding:"required,max=120" example:"Swap three times"`
	Description  string           `json:"description"   binding:"max=2000"`
	Cadence      string           `json:"cadence"       binding:"required,oneof=daily weekly one-time" example:"daily"`
	StartAt      *time.Time       `json:"start_at"`
	EndAt        *time.Time       `json:"end_at"`
	Rule         QuestRuleRequest `json:"rules"`
	RewardXP     int64            `json:"reward_xp"     binding:"gte=0" example:"50"`
	IsActive     *bool            `json:"is_active"`
	Icon         string           `json:"icon"          binding:"max=32"`
	Category     string           `json:"category"      binding:"max=32"`
	Difficulty   string           `json:"difficulty"    binding:"omitempty,oneof=easy medium hard"`
	DisplayOrder int              `json:"display_order"`
}

func (r QuestRequest) toDomain() domain.Quest {
	q := domain.Quest{
		Name:        r.Name,
		Description: r.Description,
		Cadence:     domain.Cadence(r.Cadence),
		EndAt:       r.EndAt,
		Rule: domain.QuestRule{
			Type:         domain.QuestRuleType(r.Rule.Type),
			EventType:    domain.EventType(r.Rule.EventType),
			TargetCount:  r.Rule.TargetCount,
			TargetXP:     r.Rule.TargetXP,
			TargetAmount: r.Rule.TargetAmount,
			Custom:       r.Rule.Custom,
		},
		RewardXP:     r.RewardXP,
		IsActive:     r.IsActive == nil || *r.IsActive,
		Icon:         r.Icon,
		Category:     r.Category,
		Difficulty:   r.Difficulty,
		DisplayOrder: r.DisplayOrder,
	}
	if r.StartAt != nil {
		q.StartAt = *r.StartAt
	}
	return q
}

// OverrideReferralRequest approves or rejects a referral.
type OverrideReferralRequest struct {
	Action string `json:"action" binding:"required,oneof=approve reject" example:"reject"`
	Reason string `json:"reason" binding:"max=255" example:"duplicate device"`
}

// SetActiveRequest toggles leaderboard eligibility.
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required" example:"false"`
}

// XPRuleRequest creates or replaces the rule of one event type.
type XPRuleRequest struct {
	XP              int64  `json:"xp"               binding:"gte=0" example:"150"`
	MaxPerWindow    int    `json:"max_per_window"   binding:"gte=0" example:"1"`
	Window          string `json:"window"           binding:"omitempty,oneof=daily weekly lifetime" example:"daily"`
	CooldownSeconds int64  `json:"cooldown_seconds" binding:"gte=0"`
	IsActive        *bool  `json:"is_active"`
	Description     string `json:"description"      binding:"max=255"`
}

// EventStatusRequest moves an event to a later status.
type EventStatusRequest struct {
	Status  string `json:"status"  binding:"required,oneof=verified processed failed rejected" example:"rejected"`
	Message string `json:"message" binding:"max=255"`
}

// GenerateSnapshot godoc
// @ID          generateSnapshot
// @Summary     Generate a leaderboard snapshot
// @Description Builds a snapshot synchronously. On failure or timeout the snapshot is marked failed and readers keep seeing the previous one.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       body           body    handlers.GenerateSnapshotRequest  true  "Period"
// @Success     201  {object} domain.LeaderboardSnapshot
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     503  {object} handlers.ErrorResponse "Generation timed out"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/leaderboard/generate [post]
func (h *Handlers) GenerateSnapshot(c *gin.Context) {
	var req GenerateSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	snap, err := h.leaderboard.Generate(c.Request.Context(), domain.Period(req.Period))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, snap)
}

// CreateQuest godoc
// @ID          createQuest
// @Summary     Create a quest
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       body           body    handlers.QuestRequest  true  "Quest"
// @Success     201  {object} domain.Quest
// @Failure     400  {object} handlers.ErrorResponse "Invalid quest"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/quests [post]
func (h *Handlers) CreateQuest(c *gin.Context) {
	var req QuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	q, err := h.quests.Create(c.Request.Context(), req.toDomain())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, q)
}

// UpdateQuest godoc
// @ID          updateQuest
// @Summary     Replace a quest definition
// @Description Existing progress rows are kept; a changed target applies from the next event.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       id             path    string  true  "Quest ID"  format(uuid)
// @Param       body           body    handlers.QuestRequest  true  "Quest"
// @Success     200  {object} domain.Quest
// @Failure     400  {object} handlers.ErrorResponse "Invalid quest"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     404  {object} handlers.ErrorResponse "Quest not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/quests/{id} [put]
func (h *Handlers) UpdateQuest(c *gin.Context) {
	var req QuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	q, err := h.quests.Update(c.Request.Context(), c.Param("id"), req.toDomain())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, q)
}

// OverrideReferral godoc
// @ID          overrideReferral
// @Summary     Approve or reject a referral
// @Description approve pays both sides (at most once); reject is final. Rewarded or rejected referrals return 409.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       id             path    string  true  "Referral ID"  format(uuid)
// @Param       body           body    handlers.OverrideReferralRequest  true  "Decision"
// @Success     200  {object} domain.Referral
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     404  {object} handlers.ErrorResponse "Referral not found"
// @Failure     409  {object} handlers.ErrorResponse "Already final"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/referrals/{id}/override [post]
func (h *Handlers) OverrideReferral(c *gin.Context) {
	var req OverrideReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	ref, err := h.referrals.Override(c.Request.Context(), c.Param("id"), req.Action, req.Reason)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ref)
}

// SetUserActive godoc
// @ID          setUserActive
// @Summary     Set leaderboard eligibility
// @Description Inactive users keep their ledger but are left out of future snapshots.
// @Tags        Admin
// @Accept      json
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       id             path    string  true  "User ID"
// @Param       body           body    handlers.SetActiveRequest  true  "Flag"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Router      /admin/users/{id}/active [put]
func (h *Handlers) SetUserActive(c *gin.Context) {
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	if err := h.users.SetActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// UpsertXPRule godoc
// @ID          upsertXPRule
// @Summary     Create or replace an XP rule
// @Tags        Admin
// @Accept      json
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       eventType      path    string  true  "Event type"  example(deposit)
// @Param       body           body    handlers.XPRuleRequest  true  "Rule"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Invalid rule"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Router      /admin/xp/rules/{eventType} [put]
func (h *Handlers) UpsertXPRule(c *gin.Context) {
	var req XPRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	err := h.xp.UpsertRule(c.Request.Context(), domain.XPRule{
		EventType:       domain.EventType(c.Param("eventType")),
		XP:              req.XP,
		MaxPerWindow:    req.MaxPerWindow,
		Window:          domain.RuleWindow(req.Window),
		CooldownSeconds: req.CooldownSeconds,
		IsActive:        req.IsActive == nil || *req.IsActive,
		Description:     req.Description,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// SetEventStatus godoc
// @ID          setEventStatus
// @Summary     Move an event along its lifecycle
// @Description pending → verified → processed, or → failed | rejected. Terminal events return 409.
// @Tags        Admin
// @Accept      json
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       id             path    string  true  "Event ID"  format(uuid)
// @Param       body           body    handlers.EventStatusRequest  true  "Target status"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Event not found"
// @Failure     409  {object} handlers.ErrorResponse "Illegal transition"
// @Router      /admin/events/{id}/status [post]
func (h *Handlers) SetEventStatus(c *gin.Context) {
	var req EventStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	if err := h.xp.MarkEvent(c.Request.Context(), c.Param("id"), domain.EventStatus(req.Status), req.Message); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
