// Package services – XPService
//
// This file implements the event store front door and the XP rule engine.
// ProcessEvent validates an activity, records it once under its dedup key,
// applies the active XPRule (amount, per-window cap, cooldown) and appends a
// ledger entry in the same transaction that marks the event processed.
//
// Caps are enforced by storage: each award of a capped rule claims a numbered
// slot key ("rule:<type>:<user>:<window>#<n>") on the unique ledger
// source_key index, so concurrent submissions cannot overshoot a cap.
//
// Processed events are forwarded to the quest tracker and the referral
// verifier. Failures there are logged and never undo the award.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-xp-backend/internal/domain"
	"github.com/tbourn/go-xp-backend/internal/observability"
	"github.com/tbourn/go-xp-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Outcome reasons reported by ProcessEvent.
const (
	OutcomeAwarded    = "awarded"
	OutcomeDuplicate  = "duplicate"
	OutcomeNoRule     = "no_rule"
	OutcomeCooldown   = "cooldown"
	OutcomeCapReached = "cap_reached"
	OutcomeFailed     = "failed"
)

// QuestRecorder receives processed events.
type QuestRecorder interface {
	RecordEvent(ctx context.Context, userID string, ev domain.Event) error
}

// ReferralVerifier is poked after each processed event of an invitee.
type ReferralVerifier interface {
	CheckAndVerify(ctx context.Context, inviteeID string) (bool, error)
}

// SubmitInput is one incoming activity.
type SubmitInput struct {
	UserID         string
	Wallet         string
	Type           domain.EventType
	Metadata       domain.EventMetadata
	IdempotencyKey string
}

// ProcessResult reports what ProcessEvent did. Awarded is false for
// duplicates, throttled events and event types without a rule.
type ProcessResult struct {
	Awarded         bool               `json:"awarded"`
	XPAwarded       int64              `json:"xpAwarded"`
	NextAvailableAt *time.Time         `json:"nextAvailableAt,omitempty"`
	EventID         string             `json:"eventId,omitempty"`
	Status          domain.EventStatus `json:"status,omitempty"`
	Reason          string             `json:"reason"`
}

// XPSummary aggregates a user's ledger.
type XPSummary struct {
	UserID        string           `json:"userId"`
	TotalXP       int64            `json:"totalXP"`
	CachedTotalXP int64            `json:"cachedTotalXP"`
	TodayXP       int64            `json:"todayXP"`
	WeekXP        int64            `json:"weekXP"`
	ByReason      map[string]int64 `json:"byReason"`
	EntryCount    int64            `json:"entryCount"`
	LastEntryAt   *time.Time       `json:"lastEntryAt,omitempty"`
	ReferralCode  string           `json:"referralCode,omitempty"`
	WalletAddress string           `json:"walletAddress,omitempty"`
}

// XPService records events and pays XP according to the active rules.
type XPService struct {
	DB    *gorm.DB
	Clock Clock
	Loc   *time.Location

	Users     *UserService
	Quests    QuestRecorder
	Referrals ReferralVerifier
}

func (s *XPService) validate(in *SubmitInput) error {
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return ErrMissingUser
	}
	in.Type = domain.EventType(strings.ToLower(strings.TrimSpace(string(in.Type))))
	if !in.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEventType, in.Type)
	}
	return validateMetadata(&in.Metadata)
}

// Submit stores a new pending event. On a dedup key collision it returns the
// already stored event together with ErrDuplicateEvent.
func (s *XPService) Submit(ctx context.Context, in SubmitInput) (*domain.Event, error) {
	tr := otel.Tracer("services/XPService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("user.id", in.UserID),
			attribute.String("event.type", string(in.Type)),
		),
	)
	defer span.End()

	if err := s.validate(&in); err != nil {
		return nil, err
	}
	now := nowUTC(s.Clock)
	occurred := now
	if in.Metadata.OccurredAt != nil {
		occurred = in.Metadata.OccurredAt.UTC()
	}

	ev := &domain.Event{
		ID:         uuid.NewString(),
		UserID:     in.UserID,
		Type:       in.Type,
		DedupKey:   domain.DedupKey(in.IdempotencyKey, in.UserID, in.Type, in.Metadata.TxHash, now),
		TxHash:     in.Metadata.TxHash,
		Metadata:   in.Metadata,
		OccurredAt: occurred,
		Status:     domain.EventPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := repo.CreateEvent(ctx, s.DB, ev)
	if errors.Is(err, repo.ErrDuplicate) {
		existing, gerr := repo.GetEventByDedupKey(ctx, s.DB, ev.DedupKey)
		if gerr != nil || existing.UserID != in.UserID {
			return nil, ErrDuplicateEvent
		}
		return existing, ErrDuplicateEvent
	}
	if err != nil {
		return nil, classify(err)
	}
	return ev, nil
}

// ProcessEvent records an event and applies the XP rule for its type.
// Duplicates and throttled events are reported through the result, not as
// errors.
func (s *XPService) ProcessEvent(ctx context.Context, in SubmitInput) (*ProcessResult, error) {
	tr := otel.Tracer("services/XPService")
	ctx, span := tr.Start(ctx, "ProcessEvent",
		trace.WithAttributes(
			attribute.String("user.id", in.UserID),
			attribute.String("event.type", string(in.Type)),
		),
	)
	defer span.End()

	if err := s.validate(&in); err != nil {
		return nil, err
	}
	if s.Users != nil {
		if _, err := s.Users.Ensure(ctx, in.UserID, in.Wallet); err != nil {
			return nil, err
		}
	}

	rule, err := repo.GetActiveXPRule(ctx, s.DB, in.Type)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		rule = nil
	case err != nil:
		return nil, classify(err)
	}

	ev, err := s.Submit(ctx, in)
	if errors.Is(err, ErrDuplicateEvent) {
		res := &ProcessResult{Reason: OutcomeDuplicate}
		if ev != nil {
			res.EventID = ev.ID
			res.Status = ev.Status
		}
		observability.XPEvents.WithLabelValues(string(in.Type), OutcomeDuplicate).Inc()
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("event.id", ev.ID))

	res, err := s.apply(ctx, ev, rule)
	if err != nil {
		s.failEvent(ctx, ev, err)
		observability.XPEvents.WithLabelValues(string(ev.Type), OutcomeFailed).Inc()
		return nil, classify(err)
	}
	observability.XPEvents.WithLabelValues(string(ev.Type), res.Reason).Inc()

	if res.Status == domain.EventProcessed {
		ev.Status = domain.EventProcessed
		s.downstream(ctx, *ev)
	}
	return res, nil
}

// apply runs the rule engine on a freshly stored event.
func (s *XPService) apply(ctx context.Context, ev *domain.Event, rule *domain.XPRule) (*ProcessResult, error) {
	now := nowUTC(s.Clock)
	res := &ProcessResult{EventID: ev.ID}

	if ev.TxHash != "" {
		if _, err := repo.TransitionEvent(ctx, s.DB, ev.ID, domain.EventVerified, now, ""); err != nil {
			return nil, err
		}
	}

	if rule == nil {
		if _, err := repo.TransitionEvent(ctx, s.DB, ev.ID, domain.EventProcessed, now, ""); err != nil {
			return nil, err
		}
		res.Reason, res.Status = OutcomeNoRule, domain.EventProcessed
		return res, nil
	}

	if rule.CooldownSeconds > 0 {
		last, err := repo.LastAwardAt(ctx, s.DB, ev.UserID, domain.LedgerReason(ev.Type))
		if err != nil {
			return nil, err
		}
		if last != nil {
			next := last.Add(rule.Cooldown())
			if now.Before(next) {
				return s.reject(ctx, ev, res, OutcomeCooldown, &next, now)
			}
		}
	}

	capped := rule.MaxPerWindow > 0
	_, end, windowKey := domain.RuleWindowBounds(rule.Window, now, locOrUTC(s.Loc))
	slotPrefix := strings.TrimSuffix(domain.AwardSlotKey(ev.Type, ev.UserID, windowKey, 0), "0")

	// A lost slot race is retried with the next slot number until the cap
	// is reached.
	for attempt := 0; ; attempt++ {
		key := domain.EventAwardKey(ev.ID)
		if capped {
			n, err := repo.CountSourceKeys(ctx, s.DB, slotPrefix)
			if err != nil {
				return nil, err
			}
			if n >= int64(rule.MaxPerWindow) {
				var next *time.Time
				if windowKey != "life" {
					t := domain.NextWindowStart(end)
					next = &t
				}
				return s.reject(ctx, ev, res, OutcomeCapReached, next, now)
			}
			key = domain.AwardSlotKey(ev.Type, ev.UserID, windowKey, n+1)
		}

		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			eid := ev.ID
			if _, err := award(ctx, tx, ev.UserID, rule.XP, domain.LedgerReason(ev.Type), rule.Description, &eid, key, now); err != nil {
				return err
			}
			ok, err := repo.TransitionEvent(ctx, tx, ev.ID, domain.EventProcessed, now, "")
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: event %s is no longer open", ErrConflict, ev.ID)
			}
			return nil
		})
		if errors.Is(err, repo.ErrDuplicate) && capped && attempt < rule.MaxPerWindow {
			continue
		}
		if errors.Is(err, repo.ErrDuplicate) {
			return s.reject(ctx, ev, res, OutcomeCapReached, nil, now)
		}
		if err != nil {
			return nil, err
		}
		break
	}

	observability.XPAwarded.WithLabelValues(string(ev.Type)).Add(float64(rule.XP))
	res.Awarded, res.XPAwarded = true, rule.XP
	res.Reason, res.Status = OutcomeAwarded, domain.EventProcessed
	return res, nil
}

func (s *XPService) reject(ctx context.Context, ev *domain.Event, res *ProcessResult, reason string, next *time.Time, now time.Time) (*ProcessResult, error) {
	if _, err := repo.TransitionEvent(ctx, s.DB, ev.ID, domain.EventRejected, now, reason); err != nil {
		return nil, err
	}
	res.Reason, res.Status, res.NextAvailableAt = reason, domain.EventRejected, next
	return res, nil
}

// failEvent marks the event failed on a detached context so a cancelled
// request still leaves a terminal status behind.
func (s *XPService) failEvent(ctx context.Context, ev *domain.Event, cause error) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := repo.TransitionEvent(dctx, s.DB, ev.ID, domain.EventFailed, nowUTC(s.Clock), cause.Error()); err != nil {
		log.Error().Err(err).Str("event_id", ev.ID).Msg("mark event failed")
	}
}

func (s *XPService) downstream(ctx context.Context, ev domain.Event) {
	if s.Quests != nil {
		if err := s.Quests.RecordEvent(ctx, ev.UserID, ev); err != nil {
			log.Warn().Err(err).Str("user_id", ev.UserID).Str("event_id", ev.ID).Msg("quest progress update failed")
		}
	}
	if s.Referrals != nil {
		if _, err := s.Referrals.CheckAndVerify(ctx, ev.UserID); err != nil {
			log.Warn().Err(err).Str("user_id", ev.UserID).Msg("referral verification failed")
		}
	}
}

// GetUserXPSummary returns the ledger-derived totals of a user.
func (s *XPService) GetUserXPSummary(ctx context.Context, userID string) (*XPSummary, error) {
	tr := otel.Tracer("services/XPService")
	ctx, span := tr.Start(ctx, "GetUserXPSummary", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUser
	}
	now := nowUTC(s.Clock)
	loc := locOrUTC(s.Loc)
	dayStart, _ := domain.DayWindow(now, loc)
	weekStart, _ := domain.WeekWindow(now, loc)

	sum := &XPSummary{UserID: userID}
	var err error
	if sum.TotalXP, err = repo.SumUserXP(ctx, s.DB, userID, nil); err != nil {
		return nil, classify(err)
	}
	if sum.TodayXP, err = repo.SumUserXP(ctx, s.DB, userID, &dayStart); err != nil {
		return nil, classify(err)
	}
	if sum.WeekXP, err = repo.SumUserXP(ctx, s.DB, userID, &weekStart); err != nil {
		return nil, classify(err)
	}
	if sum.ByReason, err = repo.SumUserXPByReason(ctx, s.DB, userID); err != nil {
		return nil, classify(err)
	}
	if sum.EntryCount, sum.LastEntryAt, err = repo.LedgerStats(ctx, s.DB, userID); err != nil {
		return nil, classify(err)
	}

	u, err := repo.GetUser(ctx, s.DB, userID)
	switch {
	case err == nil:
		sum.CachedTotalXP = u.TotalXP
		sum.ReferralCode = u.ReferralCode
		sum.WalletAddress = u.WalletAddress
	case !errors.Is(err, repo.ErrNotFound):
		return nil, classify(err)
	}
	return sum, nil
}

// GetUserLedger returns a page of ledger entries, newest first.
func (s *XPService) GetUserLedger(ctx context.Context, userID string, f repo.LedgerFilter) ([]domain.LedgerEntry, int64, error) {
	tr := otel.Tracer("services/XPService")
	ctx, span := tr.Start(ctx, "GetUserLedger",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.Int("limit", f.Limit), attribute.Int("offset", f.Offset)),
	)
	defer span.End()

	items, total, err := repo.ListLedger(ctx, s.DB, userID, f)
	if err != nil {
		return nil, 0, classify(err)
	}
	if items == nil {
		items = []domain.LedgerEntry{}
	}
	return items, total, nil
}

// ListUserEvents returns a page of the user's events, newest first.
func (s *XPService) ListUserEvents(ctx context.Context, userID string, f repo.EventFilter) ([]domain.Event, int64, error) {
	tr := otel.Tracer("services/XPService")
	ctx, span := tr.Start(ctx, "ListUserEvents", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if f.Type != "" && !f.Type.Valid() {
		return nil, 0, ErrInvalidEventType
	}
	items, total, err := repo.ListEvents(ctx, s.DB, userID, f)
	if err != nil {
		return nil, 0, classify(err)
	}
	if items == nil {
		items = []domain.Event{}
	}
	return items, total, nil
}

// ActiveRules lists the enabled XP rules.
func (s *XPService) ActiveRules(ctx context.Context) ([]domain.XPRule, error) {
	rules, err := repo.ListActiveXPRules(ctx, s.DB)
	return rules, classify(err)
}

// UpsertRule creates or replaces the rule of an event type.
func (s *XPService) UpsertRule(ctx context.Context, r domain.XPRule) error {
	if !r.EventType.Valid() {
		return ErrInvalidEventType
	}
	if r.XP < 0 || r.MaxPerWindow < 0 || r.CooldownSeconds < 0 {
		return fmt.Errorf("%w: xp, cap and cooldown must be >= 0", ErrValidation)
	}
	switch r.Window {
	case domain.WindowNone, domain.WindowDaily, domain.WindowWeekly, domain.WindowLifetime:
	default:
		return fmt.Errorf("%w: unknown window %q", ErrValidation, r.Window)
	}
	r.UpdatedAt = nowUTC(s.Clock)
	return classify(repo.UpsertXPRule(ctx, s.DB, &r))
}

// MarkEvent moves an event forward in its lifecycle. Transitions out of a
// terminal status, or backwards, fail with ErrConflict.
func (s *XPService) MarkEvent(ctx context.Context, eventID string, to domain.EventStatus, msg string) error {
	if _, err := repo.GetEvent(ctx, s.DB, eventID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: event not found", ErrNotFound)
		}
		return classify(err)
	}
	ok, err := repo.TransitionEvent(ctx, s.DB, eventID, to, nowUTC(s.Clock), msg)
	if err != nil {
		return classify(err)
	}
	if !ok {
		return fmt.Errorf("%w: event cannot move to %s", ErrConflict, to)
	}
	return nil
}

// LedgerStats returns the entry count and newest entry time of a user's
// ledger, used as a cheap change marker for conditional GETs.
func (s *XPService) LedgerStats(ctx context.Context, userID string) (int64, *time.Time, error) {
	n, newest, err := repo.LedgerStats(ctx, s.DB, userID)
	return n, newest, classify(err)
}
