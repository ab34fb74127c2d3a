// Event HTTP handlers.
//
//   - POST /events      submit one activity and apply the XP rules
//   - GET  /events/me   list the caller's events (paginated, filterable)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-xp-backend/internal/domain"
	"github.com/tbourn/go-xp-backend/internal/http/middleware"
	"github.com/tbourn/go-xp-backend/internal/repo"
	"github.com/tbourn/go-xp-backend/internal/services"
	"github.com/tbourn/go-xp-backend/internal/utils"
)

// EventMetadataRequest carries the on-chain references of an activity.
type EventMetadataRequest struct {
	TxHash          string         `json:"txHash"          binding:"omitempty,tx_hash"     example:"0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"`
	ChainID         int64          `json:"chainId"         binding:"gte=0"                 example:"8453"`
	ContractAddress string         `json:"contractAddress" binding:"omitempty,evm_address" example:"0x5FbDB2315678afecb367f032d93F642f64180aa3"`
	BlockNumber     int64          `json:"blockNumber"     binding:"gte=0"`
	Amount          int64          `json:"amount"          binding:"gte=0"                 example:"1000000"`
	TokenAddress    string         `json:"tokenAddress"    binding:"omitempty,evm_address"`
	TokenSymbol     string         `json:"tokenSymbol"     binding:"max=16"                example:"USDC"`
	Protocol        string         `json:"protocol"        binding:"max=64"`
	QuestID         string         `json:"questId"`
	ReferralID      string         `json:"referralId"`
	OccurredAt      *time.Time     `json:"occurredAt"`
	Extra           map[string]any `json:"extra"`
}

// SubmitEventRequest is the payload for POST /events.
type SubmitEventRequest struct {
	Type           string               `json:"type"           binding:"required,max=32" example:"deposit"`
	Metadata       EventMetadataRequest `json:"metadata"`
	IdempotencyKey string               `json:"idempotencyKey" binding:"max=200"         example:"deposit-0x5c50"`
}

// listEventsQuery filters GET /events/me.
type listEventsQuery struct {
	Type   string `form:"type"   binding:"max=32"`
	Status string `form:"status" binding:"omitempty,oneof=pending verified processed failed rejected"`
}

// ListEventsResponse is a page of the caller's events.
type ListEventsResponse struct {
	Events     []domain.Event `json:"events"`
	Pagination Pagination     `json:"pagination"`
}

// SubmitEvent godoc
// @ID          submitEvent
// @Summary     Submit an activity event
// @Description Records an event and awards XP per the active rule of its type. Duplicates (same idempotency key, or same user/type/txHash) and throttled events return awarded=false with status 200.
// @Tags        Events
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID         header  string  true   "User ID"                 example(user123)
// @Param       X-Wallet-Address  header  string  false  "Wallet address"
// @Param       Idempotency-Key   header  string  false  "Used as the event key when the body carries none"
// @Param       body              body    handlers.SubmitEventRequest  true  "Event"
//
// @Success     200  {object} services.ProcessResult
// @Failure     400  {object} handlers.ErrorResponse "Invalid type or metadata"
// @Failure     401  {object} handlers.ErrorResponse "Missing identity"
// @Failure     503  {object} handlers.ErrorResponse "Storage temporarily unavailable"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /events [post]
func (h *Handlers) SubmitEvent(c *gin.Context) {
	var req SubmitEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}

	key := req.IdempotencyKey
	if key == "" {
		key, _ = middleware.GetIdempotencyKey(c)
	}
	md := req.Metadata
	res, err := h.xp.ProcessEvent(c.Request.Context(), services.SubmitInput{
		UserID: userID(c),
		Wallet: middleware.Wallet(c),
		Type:   domain.EventType(req.Type),
		Metadata: domain.EventMetadata{
			TxHash:          md.TxHash,
			ChainID:         md.ChainID,
			ContractAddress: md.ContractAddress,
			BlockNumber:     md.BlockNumber,
			Amount:          md.Amount,
			TokenAddress:    md.TokenAddress,
			TokenSymbol:     md.TokenSymbol,
			Protocol:        md.Protocol,
			QuestID:         md.QuestID,
			ReferralID:      md.ReferralID,
			OccurredAt:      md.OccurredAt,
			Extra:           md.Extra,
		},
		IdempotencyKey: key,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// ListMyEvents godoc
// @ID          listMyEvents
// @Summary     List own events
// @Description Returns the caller's events, newest first.
// @Tags        Events
// @Produce     json
//
// @Param       X-User-ID  header  string  true   "User ID"  example(user123)
// @Param       type       query   string  false  "Event type"    example(deposit)
// @Param       status     query   string  false  "Event status"  Enums(pending, verified, processed, failed, rejected)
// @Param       from       query   string  false  "RFC 3339 lower bound on occurredAt"
// @Param       to         query   string  false  "RFC 3339 upper bound on occurredAt"
// @Param       page       query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListEventsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad filter"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /events/me [get]
func (h *Handlers) ListMyEvents(c *gin.Context) {
	var q listEventsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	page, pageSize := clampPagination(c)
	from, okFrom := parseTime(c, "from")
	to, okTo := parseTime(c, "to")
	if !okFrom || !okTo {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from/to must be RFC 3339 timestamps")
		return
	}

	items, total, err := h.xp.ListUserEvents(c.Request.Context(), userID(c), repo.EventFilter{
		Type:   domain.EventType(q.Type),
		Status: domain.EventStatus(q.Status),
		From:   from,
		To:     to,
		Offset: utils.PageOffset(page, pageSize),
		Limit:  pageSize,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListEventsResponse{Events: items, Pagination: newPagination(page, pageSize, total)})
}
