// Package services – QuestService
//
// This file implements the quest progress tracker. Progress rows are keyed by
// (user, quest, period) where the period is the local calendar day, the
// Sunday-started week, or a single "once" period for one-time quests.
//
// Every mutation is a conditional update guarded by is_claimed = false, so a
// claimed row is frozen. Completion is stamped exactly once by MarkCompleted
// and the claim itself is a compare-and-swap paired with a ledger entry keyed
// "quest:<progressID>" inside one transaction.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"
	"gorm.io/gorm"

	"github.com/tbourn/go-xp-backend/internal/domain"
	"github.com/tbourn/go-xp-backend/internal/observability"
	"github.com/tbourn/go-xp-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// QuestWithProgress is a live quest joined with the caller's current period.
type QuestWithProgress struct {
	Quest       domain.Quest      `json:"quest"`
	Progress    int64             `json:"progress"`
	Target      int64             `json:"target"`
	State       domain.QuestState `json:"state"`
	PeriodKey   string            `json:"periodKey"`
	PeriodEnd   *time.Time        `json:"periodEnd,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	ClaimedAt   *time.Time        `json:"claimedAt,omitempty"`
}

// ClaimResult is returned by a successful Claim.
type ClaimResult struct {
	Success   bool                 `json:"success"`
	XPAwarded int64                `json:"xpAwarded"`
	Message   string               `json:"message"`
	Progress  domain.QuestProgress `json:"progress"`
}

// QuestService tracks per-period quest progress and pays quest rewards.
type QuestService struct {
	DB    *gorm.DB
	Clock Clock
	Loc   *time.Location
}

var errClaimLost = errors.New("claim compare-and-swap lost")

// ListWithProgress returns live quests with the user's progress in the
// current period. cadence "" lists every cadence; search fuzzy-matches quest
// names.
func (s *QuestService) ListWithProgress(ctx context.Context, userID string, cadence domain.Cadence, search string) ([]QuestWithProgress, error) {
	tr := otel.Tracer("services/QuestService")
	ctx, span := tr.Start(ctx, "ListWithProgress",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("quest.cadence", string(cadence)),
		),
	)
	defer span.End()

	if cadence != "" && !cadence.Valid() {
		return nil, ErrInvalidCadence
	}
	now := nowUTC(s.Clock)
	quests, err := repo.ListLiveQuests(ctx, s.DB, now, cadence)
	if err != nil {
		return nil, classify(err)
	}
	quests = filterQuests(quests, search)

	if userID != "" {
		for _, q := range quests {
			if q.Rule.Type == domain.RuleXPThreshold {
				if err := s.applyThreshold(ctx, userID, q, now); err != nil {
					return nil, classify(err)
				}
			}
		}
	}

	keys := make(map[string]string, len(quests))
	periods := make(map[string]*time.Time, len(quests))
	for _, q := range quests {
		key, _, end := domain.QuestPeriod(q.Cadence, now, locOrUTC(s.Loc))
		keys[q.ID] = key
		periods[q.ID] = end
	}
	rows := map[string]domain.QuestProgress{}
	if userID != "" {
		if rows, err = repo.ProgressFor(ctx, s.DB, userID, keys); err != nil {
			return nil, classify(err)
		}
	}

	out := make([]QuestWithProgress, 0, len(quests))
	for _, q := range quests {
		p := rows[q.ID]
		out = append(out, QuestWithProgress{
			Quest:       q,
			Progress:    p.ProgressValue,
			Target:      q.Target(),
			State:       p.State(),
			PeriodKey:   keys[q.ID],
			PeriodEnd:   periods[q.ID],
			CompletedAt: p.CompletedAt,
			ClaimedAt:   p.ClaimedAt,
		})
	}
	return out, nil
}

type questNames []domain.Quest

func (n questNames) String(i int) string { return n[i].Name }
func (n questNames) Len() int            { return len(n) }

// filterQuests keeps quests whose name fuzzy-matches search, preserving the
// display order.
func filterQuests(quests []domain.Quest, search string) []domain.Quest {
	search = strings.TrimSpace(search)
	if search == "" {
		return quests
	}
	hit := make(map[int]bool)
	for _, m := range fuzzy.FindFrom(search, questNames(quests)) {
		hit[m.Index] = true
	}
	out := make([]domain.Quest, 0, len(hit))
	for i, q := range quests {
		if hit[i] {
			out = append(out, q)
		}
	}
	return out
}

// GetOrCreate returns the progress row of the current period, creating it
// if needed.
func (s *QuestService) GetOrCreate(ctx context.Context, userID, questID string) (*domain.QuestProgress, error) {
	q, err := repo.GetQuest(ctx, s.DB, questID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrQuestNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	now := nowUTC(s.Clock)
	key, start, end := domain.QuestPeriod(q.Cadence, now, locOrUTC(s.Loc))
	p, err := repo.GetOrCreateProgress(ctx, s.DB, userID, q.ID, key, start, end, now)
	return p, classify(err)
}

// RecordEvent advances every live quest the event counts towards. Errors
// for individual quests are joined; the remaining quests are still updated.
func (s *QuestService) RecordEvent(ctx context.Context, userID string, ev domain.Event) error {
	tr := otel.Tracer("services/QuestService")
	ctx, span := tr.Start(ctx, "RecordEvent",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("event.id", ev.ID),
		),
	)
	defer span.End()

	now := nowUTC(s.Clock)
	quests, err := repo.ListLiveQuests(ctx, s.DB, now, "")
	if err != nil {
		return classify(err)
	}

	var errs []error
	for _, q := range quests {
		if q.Rule.Type == domain.RuleXPThreshold {
			if err := s.applyThreshold(ctx, userID, q, now); err != nil {
				errs = append(errs, fmt.Errorf("quest %s: %w", q.ID, err))
			}
			continue
		}
		inc, ok := domain.ProgressIncrement(q.Rule, ev)
		if !ok {
			continue
		}
		if err := s.advance(ctx, userID, q, inc, ev.ID, now); err != nil {
			errs = append(errs, fmt.Errorf("quest %s: %w", q.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *QuestService) advance(ctx context.Context, userID string, q domain.Quest, inc int64, eventID string, now time.Time) error {
	key, start, end := domain.QuestPeriod(q.Cadence, now, locOrUTC(s.Loc))
	p, err := repo.GetOrCreateProgress(ctx, s.DB, userID, q.ID, key, start, end, now)
	if err != nil {
		return err
	}
	if p.IsClaimed {
		return nil
	}
	if q.Rule.Type == domain.RuleActionOnce {
		_, err = repo.SetProgress(ctx, s.DB, p.ID, 1, eventID, now)
	} else {
		_, err = repo.IncrementProgress(ctx, s.DB, p.ID, inc, eventID, now)
	}
	if err != nil {
		return err
	}
	_, err = repo.MarkCompleted(ctx, s.DB, p.ID, q.Target(), now)
	return err
}

// applyThreshold sets xp_threshold progress to the XP earned since the
// period start (periodic quests) or the quest start (one-time quests).
func (s *QuestService) applyThreshold(ctx context.Context, userID string, q domain.Quest, now time.Time) error {
	key, start, end := domain.QuestPeriod(q.Cadence, now, locOrUTC(s.Loc))
	baseline := q.StartAt.UTC()
	if start != nil {
		baseline = *start
	}
	earned, err := repo.SumUserXP(ctx, s.DB, userID, &baseline)
	if err != nil {
		return err
	}
	if earned <= 0 {
		return nil
	}
	p, err := repo.GetOrCreateProgress(ctx, s.DB, userID, q.ID, key, start, end, now)
	if err != nil {
		return err
	}
	if p.IsClaimed {
		return nil
	}
	if _, err := repo.SetProgress(ctx, s.DB, p.ID, earned, "", now); err != nil {
		return err
	}
	_, err = repo.MarkCompleted(ctx, s.DB, p.ID, q.Target(), now)
	return err
}

// RefreshThreshold re-evaluates every live xp_threshold quest for a user.
func (s *QuestService) RefreshThreshold(ctx context.Context, userID string) error {
	now := nowUTC(s.Clock)
	quests, err := repo.ListLiveQuests(ctx, s.DB, now, "")
	if err != nil {
		return classify(err)
	}
	var errs []error
	for _, q := range quests {
		if q.Rule.Type != domain.RuleXPThreshold {
			continue
		}
		if err := s.applyThreshold(ctx, userID, q, now); err != nil {
			errs = append(errs, err)
		}
	}
	return classify(errors.Join(errs...))
}

// Claim pays the reward of a completed quest in the current period. Exactly
// one of any number of concurrent claims succeeds.
func (s *QuestService) Claim(ctx context.Context, userID, questID string) (*ClaimResult, error) {
	tr := otel.Tracer("services/QuestService")
	ctx, span := tr.Start(ctx, "Claim",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("quest.id", questID),
		),
	)
	defer span.End()

	res, err := s.claim(ctx, userID, questID)
	observability.QuestClaims.WithLabelValues(claimOutcome(err)).Inc()
	return res, err
}

func (s *QuestService) claim(ctx context.Context, userID, questID string) (*ClaimResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUser
	}
	q, err := repo.GetQuest(ctx, s.DB, questID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrQuestNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	now := nowUTC(s.Clock)
	if !q.LiveAt(now) {
		return nil, ErrQuestInactive
	}
	if q.Rule.Type == domain.RuleXPThreshold {
		if err := s.applyThreshold(ctx, userID, *q, now); err != nil {
			return nil, classify(err)
		}
	}

	key, _, _ := domain.QuestPeriod(q.Cadence, now, locOrUTC(s.Loc))
	p, err := repo.GetProgress(ctx, s.DB, userID, q.ID, key)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotCompleted
	}
	if err != nil {
		return nil, classify(err)
	}
	if p.IsClaimed {
		return nil, ErrAlreadyClaimed
	}
	if !p.IsCompleted {
		return nil, ErrNotCompleted
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.ClaimProgress(ctx, tx, p.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return errClaimLost
		}
		if q.RewardXP <= 0 {
			return nil
		}
		_, err = award(ctx, tx, userID, q.RewardXP, domain.ReasonCompleteQuest, "Quest: "+q.Name, nil, domain.QuestAwardKey(p.ID), now)
		return err
	})
	if errors.Is(err, errClaimLost) || errors.Is(err, repo.ErrDuplicate) {
		cur, gerr := repo.GetProgressByID(ctx, s.DB, p.ID)
		if gerr == nil && cur.IsClaimed {
			return nil, ErrAlreadyClaimed
		}
		return nil, ErrNotCompleted
	}
	if err != nil {
		return nil, classify(err)
	}
	if q.RewardXP > 0 {
		observability.XPAwarded.WithLabelValues(string(domain.ReasonCompleteQuest)).Add(float64(q.RewardXP))
	}

	p.IsClaimed = true
	p.ClaimedAt = &now
	return &ClaimResult{
		Success:   true,
		XPAwarded: q.RewardXP,
		Message:   fmt.Sprintf("claimed %d XP for %q", q.RewardXP, q.Name),
		Progress:  *p,
	}, nil
}

func claimOutcome(err error) string {
	switch {
	case err == nil:
		return "claimed"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrNotCompleted):
		return "not_completed"
	case errors.Is(err, ErrQuestInactive):
		return "inactive"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

// History returns a page of the user's claimed quests, newest first.
func (s *QuestService) History(ctx context.Context, userID string, offset, limit int) ([]domain.QuestProgress, int64, error) {
	tr := otel.Tracer("services/QuestService")
	ctx, span := tr.Start(ctx, "History", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	items, total, err := repo.ListClaimedProgress(ctx, s.DB, userID, offset, limit)
	if err != nil {
		return nil, 0, classify(err)
	}
	if items == nil {
		items = []domain.QuestProgress{}
	}
	return items, total, nil
}

// Create validates and stores a new quest definition.
func (s *QuestService) Create(ctx context.Context, q domain.Quest) (*domain.Quest, error) {
	now := nowUTC(s.Clock)
	if q.StartAt.IsZero() {
		q.StartAt = now
	}
	q.StartAt = q.StartAt.UTC()
	if q.EndAt != nil {
		e := q.EndAt.UTC()
		q.EndAt = &e
	}
	if err := domain.ValidateQuest(q); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuest, err)
	}
	q.ID = uuid.NewString()
	q.CreatedAt, q.UpdatedAt = now, now
	if err := repo.CreateQuest(ctx, s.DB, &q); err != nil {
		return nil, classify(err)
	}
	return &q, nil
}

// Update replaces the definition of an existing quest. Progress rows are
// kept; a changed target applies on the next event.
func (s *QuestService) Update(ctx context.Context, id string, q domain.Quest) (*domain.Quest, error) {
	cur, err := repo.GetQuest(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrQuestNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	if q.StartAt.IsZero() {
		q.StartAt = cur.StartAt
	}
	q.StartAt = q.StartAt.UTC()
	if q.EndAt != nil {
		e := q.EndAt.UTC()
		q.EndAt = &e
	}
	if err := domain.ValidateQuest(q); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuest, err)
	}
	q.ID = cur.ID
	q.CreatedAt = cur.CreatedAt
	q.UpdatedAt = nowUTC(s.Clock)
	if err := repo.SaveQuest(ctx, s.DB, &q); err != nil {
		return nil, classify(err)
	}
	return &q, nil
}
