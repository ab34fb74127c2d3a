package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-xp-backend/internal/domain"
	"github.com/tbourn/go-xp-backend/internal/http/middleware"
	"github.com/tbourn/go-xp-backend/internal/repo"
	"github.com/tbourn/go-xp-backend/internal/services"
)

const adminToken = "s3cret"

// fixedNow is a Wednesday.
var fixedNow = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

type env struct {
	r      *gin.Engine
	db     *gorm.DB
	xp     *services.XPService
	quests *services.QuestService
	misses atomic.Int32
}

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newEnv wires real services on an in-memory database behind the same
// route layout the router uses.
func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	clock := services.ClockFunc(func() time.Time { return fixedNow })
	users := &services.UserService{DB: db, Clock: clock}
	quests := &services.QuestService{DB: db, Clock: clock, Loc: time.UTC}
	refs := &services.ReferralService{DB: db, Clock: clock, Users: users, Quests: quests}
	xp := &services.XPService{DB: db, Clock: clock, Loc: time.UTC, Users: users, Quests: quests, Referrals: refs}
	board := &services.LeaderboardService{DB: db, Clock: clock, Loc: time.UTC, Timeout: 10 * time.Second}

	e := &env{db: db, xp: xp, quests: quests}
	board.OnMiss = func(domain.Period) { e.misses.Add(1) }

	h := New(xp, quests, refs, board, users)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Identity(), middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))

	api := r.Group("/api/v1")
	api.GET("/xp/rules", h.ListRules)
	api.GET("/quests", h.ListQuests)
	api.GET("/quests/today", h.ListTodayQuests)
	api.GET("/referral/verify/:code", h.VerifyReferralCode)
	api.GET("/leaderboard", h.GetLeaderboard)
	api.GET("/leaderboard/snapshot/latest", h.GetLatestSnapshot)

	priv := api.Group("", middleware.RequireUser())
	priv.POST("/events", h.SubmitEvent)
	priv.GET("/events/me", h.ListMyEvents)
	priv.GET("/xp/me", h.GetMyXP)
	priv.GET("/xp/ledger", h.GetMyLedger)
	priv.POST("/quests/claim", h.ClaimQuest)
	priv.GET("/quests/history", h.QuestHistory)
	priv.GET("/referral/me", h.MyReferrals)
	priv.POST("/referral/track", h.TrackReferral)
	priv.GET("/referral/history", h.ReferralHistory)
	priv.GET("/leaderboard/me", h.GetMyRank)

	admin := api.Group("/admin", middleware.RequireAdmin(adminToken))
	admin.POST("/leaderboard/generate", h.GenerateSnapshot)
	admin.POST("/quests", h.CreateQuest)
	admin.PUT("/quests/:id", h.UpdateQuest)
	admin.POST("/referrals/:id/override", h.OverrideReferral)
	admin.PUT("/users/:id/active", h.SetUserActive)
	admin.PUT("/xp/rules/:eventType", h.UpsertXPRule)
	admin.POST("/events/:id/status", h.SetEventStatus)

	e.r = r
	return e
}

// do sends a request as user (empty for anonymous) and returns the recorder.
func (e *env) do(t *testing.T, method, path, user string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, "/api/v1"+path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *env) admin(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, "", body, middleware.HeaderAdminToken, adminToken)
}

func (e *env) rule(t *testing.T, typ domain.EventType, xp int64, max int, w domain.RuleWindow) {
	t.Helper()
	err := e.xp.UpsertRule(context.Background(), domain.XPRule{EventType: typ, XP: xp, MaxPerWindow: max, Window: w, IsActive: true})
	if err != nil {
		t.Fatalf("upsert rule: %v", err)
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, status, w.Body.String())
	}
	er := decode[ErrorResponse](t, w)
	if er.Code != code {
		t.Fatalf("code = %q, want %q (message %q)", er.Code, code, er.Message)
	}
	if er.RequestID == "" {
		t.Fatalf("missing request_id in %+v", er)
	}
	return er
}

func txHash(b byte) string {
	return "0x" + strings.Repeat(fmt.Sprintf("%02x", b), 32)
}
