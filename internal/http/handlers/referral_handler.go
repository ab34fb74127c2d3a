// Referral HTTP handlers.
//
//   - GET  /referral/verify/{code}   public code check
//   - GET  /referral/me              the caller's code and referral stats
//   - POST /referral/track           record that the caller used a code
//   - GET  /referral/history         the caller's referrals as inviter
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-xp-backend/internal/domain"
	"github.com/tbourn/go-xp-backend/internal/http/middleware"
	"github.com/tbourn/go-xp-backend/internal/utils"
)

// TrackReferralRequest is the payload for POST /referral/track.
type TrackReferralRequest struct {
	Code     string         `json:"code"     binding:"required,max=16" example:"A1B2C3D4"`
	Metadata map[string]any `json:"metadata"`
}

// TrackReferralResponse reports the created referral.
type TrackReferralResponse struct {
	Success  bool             `json:"success"  example:"true"`
	Referral *domain.Referral `json:"referral,omitempty"`
	Message  string           `json:"message"  example:"referral recorded"`
}

// ReferralHistoryResponse is a page of referrals.
type ReferralHistoryResponse struct {
	Referrals  []domain.Referral `json:"referrals"`
	Pagination Pagination        `json:"pagination"`
}

// VerifyReferralCode godoc
// @ID          verifyReferralCode
// @Summary     Check a referral code
// @Description Reports whether a code belongs to a user and how many referrals it has. Unknown codes return valid=false.
// @Tags        Referrals
// @Produce     json
// @Param       code  path  string  true  "Referral code (case-insensitive)"  example(A1B2C3D4)
// @Success     200  {object} services.CodeCheck
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /referral/verify/{code} [get]
func (h *Handlers) VerifyReferralCode(c *gin.Context) {
	res, err := h.referrals.VerifyCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// MyReferrals godoc
// @ID          myReferrals
// @Summary     Own referral stats
// @Description Returns the caller's referral code, referral counts by status and XP earned from referrals. The user is created on first call.
// @Tags        Referrals
// @Produce     json
// @Param       X-User-ID         header  string  true   "User ID"  example(user123)
// @Param       X-Wallet-Address  header  string  false  "Wallet address"
// @Success     200  {object} services.ReferralStats
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /referral/me [get]
func (h *Handlers) MyReferrals(c *gin.Context) {
	res, err := h.referrals.Stats(c.Request.Context(), userID(c), middleware.Wallet(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// TrackReferral godoc
// @ID          trackReferral
// @Summary     Use a referral code
// @Description Links the caller to the inviter owning the code. A user can be referred once; self-referral is refused. Rewards are paid once the caller has a qualifying processed event.
// @Tags        Referrals
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true   "User ID"  example(user123)
// @Param       Idempotency-Key  header  string  false  "Replays the stored response on retry"
// @Param       body             body    handlers.TrackReferralRequest  true  "Code"
//
// @Success     201  {object} handlers.TrackReferralResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Unknown code"
// @Failure     409  {object} handlers.ErrorResponse "Self referral or already referred"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /referral/track [post]
func (h *Handlers) TrackReferral(c *gin.Context) {
	var req TrackReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	ref, err := h.referrals.Track(c.Request.Context(), req.Code, userID(c), req.Metadata)
	if err != nil {
		failErr(c, err)
		return
	}
	msg := "referral recorded"
	if ref.Status == domain.ReferralRewarded {
		msg = "referral recorded and rewarded"
	}
	ok(c, http.StatusCreated, TrackReferralResponse{Success: true, Referral: ref, Message: msg})
}

// ReferralHistory godoc
// @ID          referralHistory
// @Summary     Own referrals
// @Tags        Referrals
// @Produce     json
// @Param       X-User-ID  header  string  true   "User ID"  example(user123)
// @Param       page       query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ReferralHistoryResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /referral/history [get]
func (h *Handlers) ReferralHistory(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.referrals.History(c.Request.Context(), userID(c), utils.PageOffset(page, pageSize), pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ReferralHistoryResponse{Referrals: items, Pagination: newPagination(page, pageSize, total)})
}
