// XP HTTP handlers.
//
//   - GET /xp/me       summary of the caller's XP
//   - GET /xp/ledger   the caller's ledger entries (paginated, ETag support)
//   - GET /xp/rules    active XP rules
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-xp-backend/internal/domain"
	"github.com/tbourn/go-xp-backend/internal/repo"
	"github.com/tbourn/go-xp-backend/internal/utils"
)

// LedgerResponse is a page of ledger entries.
type LedgerResponse struct {
	Entries    []domain.LedgerEntry `json:"entries"`
	Pagination Pagination           `json:"pagination"`
}

// RulesResponse lists the active XP rules.
type RulesResponse struct {
	Rules []domain.XPRule `json:"rules"`
}

// GetMyXP godoc
// @ID          getMyXP
// @Summary     XP summary
// @Description Returns the caller's total XP (ledger sum), today's and this week's XP and a per-reason breakdown.
// @Tags        XP
// @Produce     json
// @Param       X-User-ID  header  string  true  "User ID"  example(user123)
// @Success     200  {object} services.XPSummary
// @Failure     401  {object} handlers.ErrorResponse "Missing identity"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /xp/me [get]
func (h *Handlers) GetMyXP(c *gin.Context) {
	sum, err := h.xp.GetUserXPSummary(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sum)
}

// GetMyLedger godoc
// @ID          getMyLedger
// @Summary     XP ledger
// @Description Returns the caller's append-only ledger, newest first. A weak ETag derived from (count, newest entry) allows conditional requests.
// @Tags        XP
// @Produce     json
//
// @Param       X-User-ID      header  string  true   "User ID"  example(user123)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       reason         query   string  false  "Ledger reason"  example(deposit)
// @Param       from           query   string  false  "RFC 3339 lower bound"
// @Param       to             query   string  false  "RFC 3339 upper bound"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.LedgerResponse
// @Header      200  {string} ETag  "Weak ETag for the ledger state"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad filter"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /xp/ledger [get]
func (h *Handlers) GetMyLedger(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)
	from, okFrom := parseTime(c, "from")
	to, okTo := parseTime(c, "to")
	if !okFrom || !okTo {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from/to must be RFC 3339 timestamps")
		return
	}

	// ETag pre-check (best effort). The ledger is append-only so its
	// (count, newest) pair changes whenever any page could change.
	if count, newest, err := h.xp.LedgerStats(ctx, uid); err == nil {
		var ts int64
		if newest != nil {
			ts = newest.UnixNano()
		}
		etag := fmt.Sprintf(`W/"ledger:%s:%d:%d:%s:%d:%d"`, uid, count, ts, c.Request.URL.RawQuery, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.xp.GetUserLedger(ctx, uid, repo.LedgerFilter{
		Reason: domain.LedgerReason(c.Query("reason")),
		From:   from,
		To:     to,
		Offset: utils.PageOffset(page, pageSize),
		Limit:  pageSize,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, LedgerResponse{Entries: items, Pagination: newPagination(page, pageSize, total)})
}

// ListRules godoc
// @ID          listXPRules
// @Summary     Active XP rules
// @Description Lists the XP paid per event type with caps and cooldowns.
// @Tags        XP
// @Produce     json
// @Success     200  {object} handlers.RulesResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /xp/rules [get]
func (h *Handlers) ListRules(c *gin.Context) {
	rules, err := h.xp.ActiveRules(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	if rules == nil {
		rules = []domain.XPRule{}
	}
	ok(c, http.StatusOK, RulesResponse{Rules: rules})
}
