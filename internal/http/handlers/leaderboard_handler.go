// Leaderboard HTTP handlers.
//
//   - GET /leaderboard                   a page of the latest snapshot
//   - GET /leaderboard/me                the caller's rank
//   - GET /leaderboard/snapshot/latest   metadata of the latest snapshot
//
// All reads come from completed snapshots only, so responses are stale by
// up to one scheduler interval but never half-built.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-xp-backend/internal/utils"
)

const (
	defaultLeaderboardLimit = 100
	maxLeaderboardLimit     = 500

	// Snapshots only change when the scheduler publishes a new one.
	leaderboardCacheControl = "public, max-age=30"
)

// GetLeaderboard godoc
// @ID          getLeaderboard
// @Summary     Leaderboard page
// @Description Returns rows of the latest completed snapshot, ordered by rank. When no snapshot exists yet a generation is requested and 404 is returned. Snapshots are immutable; the ETag is the snapshot id plus the page window.
// @Tags        Leaderboard
// @Produce     json
//
// @Param       period         query   string  false  "Window"  Enums(all-time, daily, weekly) default(all-time)
// @Param       limit          query   int     false  "Rows"    minimum(1) maximum(500) default(100)
// @Param       skip           query   int     false  "Offset"  minimum(0) default(0)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
//
// @Success     200  {object} services.LeaderboardPage
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Unknown period"
// @Failure     404  {object} handlers.ErrorResponse "Not generated yet"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /leaderboard [get]
func (h *Handlers) GetLeaderboard(c *gin.Context) {
	c.Header("Cache-Control", leaderboardCacheControl)
	limit := utils.Clamp(utils.AtoiDefault(c.Query("limit"), defaultLeaderboardLimit), 1, maxLeaderboardLimit)
	skip := utils.AtoiDefault(c.Query("skip"), 0)
	if skip < 0 {
		skip = 0
	}

	page, err := h.leaderboard.GetLeaderboard(c.Request.Context(), periodParam(c), limit, skip)
	if err != nil {
		failErr(c, err)
		return
	}
	etag := fmt.Sprintf(`W/"lb:%s:%d:%d"`, page.Snapshot.ID, skip, limit)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}
	ok(c, http.StatusOK, page)
}

// GetMyRank godoc
// @ID          getMyRank
// @Summary     Own rank
// @Description Looks the caller up in the latest snapshot. found=false when no snapshot exists or the caller has no positive score in it.
// @Tags        Leaderboard
// @Produce     json
// @Param       X-User-ID  header  string  true   "User ID"  example(user123)
// @Param       period     query   string  false  "Window"   Enums(all-time, daily, weekly) default(all-time)
// @Success     200  {object} services.UserRank
// @Failure     400  {object} handlers.ErrorResponse "Unknown period"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /leaderboard/me [get]
func (h *Handlers) GetMyRank(c *gin.Context) {
	rank, err := h.leaderboard.GetUserRank(c.Request.Context(), userID(c), periodParam(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rank)
}

// GetLatestSnapshot godoc
// @ID          getLatestSnapshot
// @Summary     Latest snapshot metadata
// @Tags        Leaderboard
// @Produce     json
// @Param       period  query  string  false  "Window"  Enums(all-time, daily, weekly) default(all-time)
// @Success     200  {object} domain.LeaderboardSnapshot
// @Failure     400  {object} handlers.ErrorResponse "Unknown period"
// @Failure     404  {object} handlers.ErrorResponse "Not generated yet"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /leaderboard/snapshot/latest [get]
func (h *Handlers) GetLatestSnapshot(c *gin.Context) {
	c.Header("Cache-Control", leaderboardCacheControl)
	snap, err := h.leaderboard.GetLatest(c.Request.Context(), periodParam(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, snap)
}
