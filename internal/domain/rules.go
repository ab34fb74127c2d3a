package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidRule is returned by ValidateQuest for malformed quest definitions.
var ErrInvalidRule = errors.New("invalid quest rule")

// DedupKey derives the uniqueness key of an event. An explicit key wins and
// is scoped to the user; on-chain events fall back to (user, type, txHash)
// so resubmitting the same transaction collides; anything else gets a random
// per-call key.
func DedupKey(explicit, userID string, t EventType, txHash string, now time.Time) string {
	if k := strings.TrimSpace(explicit); k != "" {
		return userID + ":" + k
	}
	if txHash != "" {
		return fmt.Sprintf("%s_%s_%s", userID, t, strings.ToLower(txHash))
	}
	return fmt.Sprintf("%s_%s_%d_%s", userID, t, now.UnixNano(), uuid.NewString()[:8])
}

// EventPredecessors lists the statuses an event may move to `to` from.
// Terminal statuses have no successors.
func EventPredecessors(to EventStatus) []EventStatus {
	switch to {
	case EventVerified:
		return []EventStatus{EventPending}
	case EventProcessed, EventFailed, EventRejected:
		return []EventStatus{EventPending, EventVerified}
	}
	return nil
}

// ValidateQuest checks cadence, reward and rule shape of a quest definition.
func ValidateQuest(q Quest) error {
	if strings.TrimSpace(q.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if !q.Cadence.Valid() {
		return fmt.Errorf("%w: unknown cadence %q", ErrInvalidRule, q.Cadence)
	}
	if q.RewardXP < 0 {
		return fmt.Errorf("%w: reward_xp must be >= 0", ErrInvalidRule)
	}
	if q.EndAt != nil && q.EndAt.Before(q.StartAt) {
		return fmt.Errorf("%w: end_at before start_at", ErrInvalidRule)
	}
	r := q.Rule
	switch r.Type {
	case RuleEventCount:
		if !r.EventType.Valid() {
			return fmt.Errorf("%w: event_count needs a valid eventType", ErrInvalidRule)
		}
		if r.TargetCount < 1 {
			return fmt.Errorf("%w: targetCount must be >= 1", ErrInvalidRule)
		}
	case RuleActionOnce:
		if !r.EventType.Valid() {
			return fmt.Errorf("%w: action_once needs a valid eventType", ErrInvalidRule)
		}
	case RuleXPThreshold:
		if r.TargetXP < 1 {
			return fmt.Errorf("%w: targetXP must be >= 1", ErrInvalidRule)
		}
	case RuleDepositAmount:
		if r.TargetAmount < 1 {
			return fmt.Errorf("%w: targetAmount must be >= 1", ErrInvalidRule)
		}
	case RuleCustom:
	default:
		return fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, r.Type)
	}
	return nil
}

// ProgressIncrement returns how much an event advances a counting quest
// rule. Threshold and custom rules never increment.
func ProgressIncrement(r QuestRule, ev Event) (int64, bool) {
	switch r.Type {
	case RuleEventCount, RuleActionOnce:
		if ev.Type == r.EventType {
			return 1, true
		}
	case RuleDepositAmount:
		if ev.Type == EventDeposit && ev.Metadata.Amount > 0 {
			return ev.Metadata.Amount, true
		}
	}
	return 0, false
}

// AwardSlotKey names the n-th award of a capped rule inside one window.
func AwardSlotKey(t EventType, userID, windowKey string, n int64) string {
	return fmt.Sprintf("rule:%s:%s:%s#%d", t, userID, windowKey, n)
}

// QuestAwardKey names the single payout of a progress row.
func QuestAwardKey(progressID string) string { return "quest:" + progressID }

// ReferralAwardKey names one side of a referral payout.
func ReferralAwardKey(referralID string, inviter bool) string {
	if inviter {
		return "referral:" + referralID + ":inviter"
	}
	return "referral:" + referralID + ":invitee"
}

// EventAwardKey names the award of an uncapped event.
func EventAwardKey(eventID string) string { return "event:" + eventID }
