package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-xp-backend/internal/domain"
	"github.com/tbourn/go-xp-backend/internal/repo"
)

// baseTime is a Wednesday.
var baseTime = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
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

// stack wires every service against one database and clock.
type stack struct {
	db        *gorm.DB
	clock     *testClock
	users     *UserService
	xp        *XPService
	quests    *QuestService
	referrals *ReferralService
	board     *LeaderboardService
}

func newStack(t *testing.T) *stack {
	t.Helper()
	return newStackOn(newSvcDB(t))
}

// newStackOn builds the services over db, e.g. a pooled file database.
func newStackOn(db *gorm.DB) *stack {
	clock := newClock(baseTime)
	users := &UserService{DB: db, Clock: clock}
	quests := &QuestService{DB: db, Clock: clock, Loc: time.UTC}
	refs := &ReferralService{
		DB: db, Clock: clock,
		InviterXP: ptr[int64](DefaultInviterXP), InviteeXP: ptr[int64](DefaultInviteeXP),
		Users: users, Quests: quests,
	}
	xp := &XPService{DB: db, Clock: clock, Loc: time.UTC, Users: users, Quests: quests, Referrals: refs}
	board := &LeaderboardService{DB: db, Clock: clock, Loc: time.UTC, Timeout: 10 * time.Second}
	return &stack{db: db, clock: clock, users: users, xp: xp, quests: quests, referrals: refs, board: board}
}

func (s *stack) rule(t *testing.T, typ domain.EventType, xp int64, max int, w domain.RuleWindow, cooldown int64) {
	t.Helper()
	r := domain.XPRule{EventType: typ, XP: xp, MaxPerWindow: max, Window: w, CooldownSeconds: cooldown, IsActive: true}
	if err := s.xp.UpsertRule(context.Background(), r); err != nil {
		t.Fatalf("upsert rule: %v", err)
	}
}

func (s *stack) quest(t *testing.T, name string, c domain.Cadence, rule domain.QuestRule, reward int64) *domain.Quest {
	t.Helper()
	q, err := s.quests.Create(context.Background(), domain.Quest{
		Name: name, Description: name, Cadence: c, Rule: rule, RewardXP: reward, IsActive: true,
	})
	if err != nil {
		t.Fatalf("create quest %s: %v", name, err)
	}
	return q
}

func (s *stack) event(t *testing.T, user string, typ domain.EventType, key string) *ProcessResult {
	t.Helper()
	res, err := s.xp.ProcessEvent(context.Background(), SubmitInput{UserID: user, Type: typ, IdempotencyKey: key})
	if err != nil {
		t.Fatalf("ProcessEvent(%s, %s): %v", user, typ, err)
	}
	return res
}

func (s *stack) ledgerTotal(t *testing.T, user string) int64 {
	t.Helper()
	n, err := repo.SumUserXP(context.Background(), s.db, user, nil)
	if err != nil {
		t.Fatalf("SumUserXP: %v", err)
	}
	return n
}

func (s *stack) ledgerCount(t *testing.T, user string, reason domain.LedgerReason) int64 {
	t.Helper()
	var n int64
	q := s.db.Model(&domain.LedgerEntry{}).Where("user_id = ?", user)
	if reason != "" {
		q = q.Where("reason = ?", reason)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	return n
}

func ptr[T any](v T) *T { return &v }

func txHash(b byte) string {
	return "0x" + strings.Repeat(fmt.Sprintf("%02x", b), 32)
}
