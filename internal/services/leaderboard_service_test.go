package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-xp-backend/internal/cache"
	"github.com/tbourn/go-xp-backend/internal/domain"
	"github.com/tbourn/go-xp-backend/internal/repo"
)

// seedScores gives u3 and u1 300 XP and u2 150 XP.
func seedScores(t *testing.T, s *stack) {
	t.Helper()
	s.rule(t, domain.EventDeposit, 150, 0, domain.WindowNone, 0)
	for _, u := range []string{"u3", "u3", "u1", "u1", "u2"} {
		s.event(t, u, domain.EventDeposit, "")
	}
}

func TestLeaderboard_TieBreakByUserID(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	seedScores(t, s)

	snap, err := s.board.Generate(ctx, domain.PeriodAllTime)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if snap.Status != domain.SnapshotCompleted || snap.TotalUsers != 3 || snap.TopScore != 300 || snap.AverageScore != 250 {
		t.Fatalf("snapshot unexpected: %+v", snap)
	}

	page, err := s.board.GetLeaderboard(ctx, domain.PeriodAllTime, 10, 0)
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	want := []struct {
		user  string
		score int64
	}{{"u1", 300}, {"u3", 300}, {"u2", 150}}
	if len(page.Rows) != len(want) {
		t.Fatalf("rows = %+v", page.Rows)
	}
	for i, w := range want {
		r := page.Rows[i]
		if r.UserID != w.user || r.Score != w.score || r.Rank != i+1 {
			t.Fatalf("row %d = %+v, want %s/%d/rank %d", i, r, w.user, w.score, i+1)
		}
	}

	sub, err := s.board.GetLeaderboard(ctx, domain.PeriodAllTime, 2, 1)
	if err != nil || len(sub.Rows) != 2 || sub.Rows[0].UserID != "u3" || sub.Rows[1].UserID != "u2" {
		t.Fatalf("page = %+v, %v", sub, err)
	}
}

func TestLeaderboard_UserRank(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	r, err := s.board.GetUserRank(ctx, "u1", domain.PeriodAllTime)
	if err != nil || r.Found {
		t.Fatalf("rank before any snapshot = %+v, %v", r, err)
	}

	seedScores(t, s)
	if _, err := s.board.Generate(ctx, domain.PeriodAllTime); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	r, err = s.board.GetUserRank(ctx, "u2", domain.PeriodAllTime)
	if err != nil || !r.Found || r.Rank != 3 || r.Score != 150 || r.TotalUsers != 3 || r.GeneratedAt == nil {
		t.Fatalf("rank = %+v, %v", r, err)
	}
	r, err = s.board.GetUserRank(ctx, "nobody", domain.PeriodAllTime)
	if err != nil || r.Found || r.TotalUsers != 3 {
		t.Fatalf("unranked = %+v, %v", r, err)
	}
}

func TestLeaderboard_InactiveUsersExcluded(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	seedScores(t, s)
	if err := s.users.SetActive(ctx, "u1", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	snap, err := s.board.Generate(ctx, domain.PeriodAllTime)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	page, _ := s.board.GetLeaderboard(ctx, domain.PeriodAllTime, 10, 0)
	if snap.TotalUsers != 2 || page.Rows[0].UserID != "u3" || page.Rows[0].Rank != 1 {
		t.Fatalf("inactive user ranked: %+v %+v", snap, page.Rows)
	}
}

func TestLeaderboard_DailyWindow(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	seedScores(t, s)

	s.clock.Advance(24 * time.Hour)
	s.event(t, "u2", domain.EventDeposit, "")

	daily, err := s.board.Generate(ctx, domain.PeriodDaily)
	if err != nil {
		t.Fatalf("Generate daily: %v", err)
	}
	wantStart := time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)
	if !daily.WindowStart.Equal(wantStart) || daily.TotalUsers != 1 || daily.TopScore != 150 {
		t.Fatalf("daily snapshot unexpected: %+v", daily)
	}
	weekly, err := s.board.Generate(ctx, domain.PeriodWeekly)
	if err != nil {
		t.Fatalf("Generate weekly: %v", err)
	}
	if weekly.TotalUsers != 3 || weekly.TopScore != 300 {
		t.Fatalf("weekly snapshot unexpected: %+v", weekly)
	}
}

func TestLeaderboard_FailedSnapshotStaysInvisible(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	seedScores(t, s)

	good, err := s.board.Generate(ctx, domain.PeriodAllTime)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	s.clock.Advance(time.Hour)
	s.board.Timeout = time.Nanosecond
	if _, err := s.board.Generate(ctx, domain.PeriodAllTime); !errors.Is(err, ErrTransient) {
		t.Fatalf("timed out generation: want ErrTransient, got %v", err)
	}

	var failed []domain.LeaderboardSnapshot
	if err := s.db.Where("status = ?", domain.SnapshotFailed).Find(&failed).Error; err != nil {
		t.Fatalf("query failed snapshots: %v", err)
	}
	if len(failed) != 1 || failed[0].ErrorMessage == "" {
		t.Fatalf("failed snapshots = %+v", failed)
	}
	var rows int64
	s.db.Model(&domain.LeaderboardRow{}).Where("snapshot_id = ?", failed[0].ID).Count(&rows)
	if rows != 0 {
		t.Fatalf("failed snapshot has %d rows", rows)
	}

	// A newer snapshot still generating is not visible either.
	now := s.clock.Now()
	if err := repo.CreateSnapshot(ctx, s.db, &domain.LeaderboardSnapshot{
		ID: "gen", Period: domain.PeriodAllTime, WindowStart: domain.Epoch, WindowEnd: now,
		GeneratedAt: now.Add(time.Minute), Status: domain.SnapshotGenerating, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	latest, err := s.board.GetLatest(ctx, domain.PeriodAllTime)
	if err != nil || latest.ID != good.ID {
		t.Fatalf("latest = %+v, %v; want %s", latest, err, good.ID)
	}
}

func TestLeaderboard_MissTriggersHook(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	var asked []domain.Period
	s.board.OnMiss = func(p domain.Period) { asked = append(asked, p) }

	if _, err := s.board.GetLeaderboard(ctx, domain.PeriodWeekly, 10, 0); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("want ErrSnapshotNotFound, got %v", err)
	}
	if len(asked) != 1 || asked[0] != domain.PeriodWeekly {
		t.Fatalf("OnMiss calls = %v", asked)
	}

	// Rank lookups before the first snapshot also ask for one.
	rank, err := s.board.GetUserRank(ctx, "u1", domain.PeriodDaily)
	if err != nil || rank.Found {
		t.Fatalf("rank without snapshot = %+v, %v", rank, err)
	}
	if len(asked) != 2 || asked[1] != domain.PeriodDaily {
		t.Fatalf("OnMiss calls after rank lookup = %v", asked)
	}
	if _, err := s.board.Generate(ctx, domain.PeriodDaily); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := s.board.GetUserRank(ctx, "u1", domain.PeriodDaily); err != nil || len(asked) != 2 {
		t.Fatalf("hook must not fire once a snapshot exists: %v %v", asked, err)
	}
	if _, err := s.board.GetLeaderboard(ctx, "monthly", 10, 0); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("want ErrInvalidPeriod, got %v", err)
	}
	if _, err := s.board.Generate(ctx, "monthly"); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("want ErrInvalidPeriod, got %v", err)
	}
}

func TestLeaderboard_EmptyLedger(t *testing.T) {
	s := newStack(t)
	snap, err := s.board.Generate(context.Background(), domain.PeriodDaily)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if snap.TotalUsers != 0 || snap.TopScore != 0 || snap.AverageScore != 0 {
		t.Fatalf("empty snapshot unexpected: %+v", snap)
	}
}

func TestLeaderboard_SharedPointer(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c1, err := cache.New(8, rdb)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	s.board.Cache = c1
	seedScores(t, s)
	snap, err := s.board.Generate(ctx, domain.PeriodAllTime)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// A second replica with a cold local cache follows the shared pointer.
	c2, _ := cache.New(8, rdb)
	replica := &LeaderboardService{DB: s.db, Clock: s.clock, Loc: time.UTC, Cache: c2}
	id, ok, err := c2.LatestID(ctx, domain.PeriodAllTime)
	if err != nil || !ok || id != snap.ID {
		t.Fatalf("LatestID = %q, %v, %v", id, ok, err)
	}
	page, err := replica.GetLeaderboard(ctx, domain.PeriodAllTime, 1, 0)
	if err != nil || page.Snapshot.ID != snap.ID || page.Rows[0].UserID != "u1" {
		t.Fatalf("replica page = %+v, %v", page, err)
	}
	if _, hit := c2.Snapshot(snap.ID); !hit {
		t.Fatalf("replica should have cached the snapshot")
	}
}
