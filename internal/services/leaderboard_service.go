// Package services – LeaderboardService
//
// This file implements the snapshot generator and its readers. A snapshot is
// created in "generating", filled with ranked rows, and flipped to
// "completed" in the same transaction as the row insert. Readers only ever
// see completed snapshots; a failed or timed-out run leaves a "failed" row
// behind and the previous snapshot stays current.
//
// Completed snapshots are immutable, so they and their row pages are served
// from cache.SnapshotCache after the first read.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-xp-backend/internal/cache"
	"github.com/tbourn/go-xp-backend/internal/domain"
	"github.com/tbourn/go-xp-backend/internal/observability"
	"github.com/tbourn/go-xp-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSnapshotTimeout bounds one generation when Timeout is unset.
const DefaultSnapshotTimeout = 2 * time.Minute

// LeaderboardPage is one page of the latest snapshot of a period.
type LeaderboardPage struct {
	Snapshot domain.LeaderboardSnapshot `json:"snapshot"`
	Rows     []domain.LeaderboardRow    `json:"rows"`
	Limit    int                        `json:"limit"`
	Skip     int                        `json:"skip"`
}

// UserRank is a user's position in the latest snapshot. Found is false when
// no snapshot exists yet or the user is not ranked in it.
type UserRank struct {
	Found       bool          `json:"found"`
	UserID      string        `json:"userId"`
	Period      domain.Period `json:"period"`
	Rank        int           `json:"rank,omitempty"`
	Score       int64         `json:"score,omitempty"`
	TotalUsers  int           `json:"totalUsers"`
	GeneratedAt *time.Time    `json:"generatedAt,omitempty"`
}

// LeaderboardService generates and serves leaderboard snapshots.
type LeaderboardService struct {
	DB      *gorm.DB
	Clock   Clock
	Loc     *time.Location
	Timeout time.Duration
	Cache   *cache.SnapshotCache

	// OnMiss is called when a period has no completed snapshot yet, e.g.
	// to ask the scheduler for an early run.
	OnMiss func(domain.Period)
}

// Generate builds a new snapshot for period p. On any error, including a
// timeout, the snapshot is marked failed and the error is returned.
func (s *LeaderboardService) Generate(ctx context.Context, p domain.Period) (*domain.LeaderboardSnapshot, error) {
	tr := otel.Tracer("services/LeaderboardService")
	ctx, span := tr.Start(ctx, "Generate", trace.WithAttributes(attribute.String("leaderboard.period", string(p))))
	defer span.End()

	if !p.Valid() {
		return nil, ErrInvalidPeriod
	}
	started := time.Now()
	now := nowUTC(s.Clock)
	start, end, err := domain.SnapshotWindow(p, now, locOrUTC(s.Loc))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPeriod, err)
	}

	snap := &domain.LeaderboardSnapshot{
		ID:          uuid.NewString(),
		Period:      p,
		WindowStart: start,
		WindowEnd:   end,
		GeneratedAt: now,
		Status:      domain.SnapshotGenerating,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.CreateSnapshot(ctx, s.DB, snap); err != nil {
		return nil, classify(err)
	}
	span.SetAttributes(attribute.String("snapshot.id", snap.ID))

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultSnapshotTimeout
	}
	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = s.fill(gctx, snap, start, end)
	observability.SnapshotDuration.WithLabelValues(string(p)).Observe(time.Since(started).Seconds())
	if err != nil {
		s.fail(ctx, snap, err)
		observability.SnapshotRuns.WithLabelValues(string(p), string(domain.SnapshotFailed)).Inc()
		return nil, classify(err)
	}
	observability.SnapshotRuns.WithLabelValues(string(p), string(domain.SnapshotCompleted)).Inc()

	if _, err := s.Cache.Publish(ctx, snap); err != nil {
		log.Warn().Err(err).Str("snapshot_id", snap.ID).Msg("publish snapshot pointer failed")
	}
	log.Info().
		Str("period", string(p)).
		Str("snapshot_id", snap.ID).
		Int("total_users", snap.TotalUsers).
		Dur("took", time.Since(started)).
		Msg("leaderboard snapshot completed")
	return snap, nil
}

func (s *LeaderboardService) fill(ctx context.Context, snap *domain.LeaderboardSnapshot, start, end time.Time) error {
	var from *time.Time
	if snap.Period != domain.PeriodAllTime {
		from = &start
	}
	scores, err := repo.AggregateScores(ctx, s.DB, from, &end)
	if err != nil {
		return err
	}
	rows := domain.RankScores(snap.ID, scores)
	if !domain.InRankOrder(rows) {
		return fmt.Errorf("%w: ranking out of order", ErrFatal)
	}

	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].UserID
	}
	wallets, err := repo.WalletsByUserID(ctx, s.DB, ids)
	if err != nil {
		return err
	}
	for i := range rows {
		rows[i].WalletAddress = wallets[rows[i].UserID]
	}

	top, avg := domain.SnapshotStats(rows)
	completedAt := nowUTC(s.Clock)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.InsertRows(ctx, tx, rows); err != nil {
			return err
		}
		ok, err := repo.CompleteSnapshot(ctx, tx, snap.ID, len(rows), top, avg, completedAt)
		if err != nil {
			return err
		}
		if !ok {
			return ErrSnapshotNotReady
		}
		return ctx.Err()
	})
	if err != nil {
		return err
	}

	snap.Status = domain.SnapshotCompleted
	snap.TotalUsers, snap.TopScore, snap.AverageScore = len(rows), top, avg
	snap.CompletedAt = &completedAt
	return nil
}

// fail records the failure on a detached context so cancellation of the
// generation does not also cancel its bookkeeping.
func (s *LeaderboardService) fail(ctx context.Context, snap *domain.LeaderboardSnapshot, cause error) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := repo.FailSnapshot(dctx, s.DB, snap.ID, cause.Error(), nowUTC(s.Clock)); err != nil {
		log.Error().Err(err).Str("snapshot_id", snap.ID).Msg("mark snapshot failed")
	}
	log.Error().Err(cause).Str("period", string(snap.Period)).Str("snapshot_id", snap.ID).Msg("leaderboard snapshot failed")
}

// GetLatest returns the newest completed snapshot of a period.
func (s *LeaderboardService) GetLatest(ctx context.Context, p domain.Period) (*domain.LeaderboardSnapshot, error) {
	if !p.Valid() {
		return nil, ErrInvalidPeriod
	}
	id, ok, err := s.Cache.LatestID(ctx, p)
	if err != nil {
		log.Warn().Err(err).Str("period", string(p)).Msg("read snapshot pointer failed")
	}
	if ok {
		if snap, hit := s.Cache.Snapshot(id); hit {
			return snap, nil
		}
		snap, err := repo.GetSnapshot(ctx, s.DB, id)
		if err == nil && snap.Status == domain.SnapshotCompleted {
			s.Cache.PutSnapshot(snap)
			return snap, nil
		}
	}

	snap, err := repo.LatestCompletedSnapshot(ctx, s.DB, p)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	s.Cache.PutSnapshot(snap)
	return snap, nil
}

// GetLeaderboard returns a page of the latest snapshot of p. When none
// exists the OnMiss hook fires and ErrSnapshotNotFound is returned.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, p domain.Period, limit, skip int) (*LeaderboardPage, error) {
	tr := otel.Tracer("services/LeaderboardService")
	ctx, span := tr.Start(ctx, "GetLeaderboard",
		trace.WithAttributes(
			attribute.String("leaderboard.period", string(p)),
			attribute.Int("limit", limit),
			attribute.Int("skip", skip),
		),
	)
	defer span.End()

	snap, err := s.GetLatest(ctx, p)
	if errors.Is(err, ErrSnapshotNotFound) && s.OnMiss != nil {
		s.OnMiss(p)
	}
	if err != nil {
		return nil, err
	}

	rows, ok := s.Cache.Rows(snap.ID, skip, limit)
	if !ok {
		rows, err = repo.ListRows(ctx, s.DB, snap.ID, skip, limit)
		if err != nil {
			return nil, classify(err)
		}
		if rows == nil {
			rows = []domain.LeaderboardRow{}
		}
		s.Cache.PutRows(snap.ID, skip, limit, rows)
	}
	return &LeaderboardPage{Snapshot: *snap, Rows: rows, Limit: limit, Skip: skip}, nil
}

// GetUserRank looks a user up in the latest snapshot of p. A missing
// snapshot fires OnMiss and reports found=false.
func (s *LeaderboardService) GetUserRank(ctx context.Context, userID string, p domain.Period) (*UserRank, error) {
	tr := otel.Tracer("services/LeaderboardService")
	ctx, span := tr.Start(ctx, "GetUserRank",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.String("leaderboard.period", string(p))),
	)
	defer span.End()

	out := &UserRank{UserID: userID, Period: p}
	snap, err := s.GetLatest(ctx, p)
	if errors.Is(err, ErrSnapshotNotFound) {
		if s.OnMiss != nil {
			s.OnMiss(p)
		}
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	gen := snap.GeneratedAt
	out.TotalUsers, out.GeneratedAt = snap.TotalUsers, &gen

	row, err := repo.GetRow(ctx, s.DB, snap.ID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	out.Found, out.Rank, out.Score = true, row.Rank, row.Score
	return out, nil
}
