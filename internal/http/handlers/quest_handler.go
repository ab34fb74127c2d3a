// Quest HTTP handlers.
//
//   - GET  /quests           live quests with the caller's progress
//   - GET  /quests/today     daily quests with progress
//   - POST /quests/claim     claim a completed quest's reward
//   - GET  /quests/history   claimed quests
//
// Listing works anonymously (progress is zero without X-User-ID).
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-xp-backend/internal/domain"
	"github.com/tbourn/go-xp-backend/internal/services"
	"github.com/tbourn/go-xp-backend/internal/utils"
)

// QuestsResponse lists quests joined with progress.
type QuestsResponse struct {
	Quests []services.QuestWithProgress `json:"quests"`
}

// ClaimQuestRequest is the payload for POST /quests/claim.
type ClaimQuestRequest struct {
	QuestID string `json:"questId" binding:"required,uuid" example:"9b2f6a57-0c1e-4df5-8c43-0c1f1d8e9d10"`
}

// QuestHistoryResponse is a page of claimed progress rows.
type QuestHistoryResponse struct {
	Claims     []domain.QuestProgress `json:"claims"`
	Pagination Pagination             `json:"pagination"`
}

// ListQuests godoc
// @ID          listQuests
// @Summary     Quests with progress
// @Description Lists live quests with the caller's progress in the current period. `q` fuzzy-matches quest names.
// @Tags        Quests
// @Produce     json
//
// @Param       X-User-ID  header  string  false  "User ID"  example(user123)
// @Param       cadence    query   string  false  "Cadence filter"  Enums(daily, weekly, one-time)
// @Param       q          query   string  false  "Fuzzy name search"  example(faucet)
//
// @Success     200  {object} handlers.QuestsResponse
// @Failure     400  {object} handlers.ErrorResponse "Unknown cadence"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /quests [get]
func (h *Handlers) ListQuests(c *gin.Context) {
	h.listQuests(c, domain.Cadence(c.Query("cadence")))
}

// ListTodayQuests godoc
// @ID          listTodayQuests
// @Summary     Today's quests
// @Description Lists live daily quests with the caller's progress for today.
// @Tags        Quests
// @Produce     json
// @Param       X-User-ID  header  string  false  "User ID"  example(user123)
// @Success     200  {object} handlers.QuestsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /quests/today [get]
func (h *Handlers) ListTodayQuests(c *gin.Context) {
	h.listQuests(c, domain.CadenceDaily)
}

func (h *Handlers) listQuests(c *gin.Context, cadence domain.Cadence) {
	items, err := h.quests.ListWithProgress(c.Request.Context(), userID(c), cadence, strings.TrimSpace(c.Query("q")))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, QuestsResponse{Quests: items})
}

// ClaimQuest godoc
// @ID          claimQuest
// @Summary     Claim a quest reward
// @Description Pays the reward of a completed quest for the current period. Exactly one claim per period succeeds; repeats return 409 already_claimed.
// @Tags        Quests
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true   "User ID"  example(user123)
// @Param       Idempotency-Key  header  string  false  "Replays the stored response on retry"
// @Param       body             body    handlers.ClaimQuestRequest  true  "Quest"
//
// @Success     200  {object} services.ClaimResult
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Quest not found"
// @Failure     409  {object} handlers.ErrorResponse "Not completed, inactive or already claimed"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /quests/claim [post]
func (h *Handlers) ClaimQuest(c *gin.Context) {
	var req ClaimQuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	res, err := h.quests.Claim(c.Request.Context(), userID(c), req.QuestID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// QuestHistory godoc
// @ID          questHistory
// @Summary     Claimed quests
// @Tags        Quests
// @Produce     json
// @Param       X-User-ID  header  string  true   "User ID"  example(user123)
// @Param       page       query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.QuestHistoryResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /quests/history [get]
func (h *Handlers) QuestHistory(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.quests.History(c.Request.Context(), userID(c), utils.PageOffset(page, pageSize), pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, QuestHistoryResponse{Claims: items, Pagination: newPagination(page, pageSize, total)})
}
