// Package services defines the business logic for events, the XP ledger,
// quests, referrals and leaderboards. This file centralizes the error
// taxonomy so that service methods return consistent values and callers can
// branch on the error class with errors.Is.
//
// Every specific error wraps exactly one class sentinel. Translation into
// HTTP status codes is performed at the handler layer.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error classes.
var (
	// ErrValidation marks caller-fixable input problems (bad enum, bad shape).
	ErrValidation = errors.New("validation error")

	// ErrDuplicate marks an idempotent no-op. It never reaches HTTP callers
	// as a failure.
	ErrDuplicate = errors.New("duplicate")

	// ErrNotFound marks an absent entity.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a state-machine violation.
	ErrConflict = errors.New("conflict")

	// ErrTransient marks a retryable storage failure (timeouts, locks).
	ErrTransient = errors.New("transient storage error")

	// ErrFatal marks unexpected failures. Details are logged, never returned
	// to callers.
	ErrFatal = errors.New("internal error")
)

// Specific errors.
var (
	ErrInvalidEventType = fmt.Errorf("%w: unknown event type", ErrValidation)
	ErrInvalidMetadata  = fmt.Errorf("%w: invalid event metadata", ErrValidation)
	ErrInvalidPeriod    = fmt.Errorf("%w: unknown leaderboard period", ErrValidation)
	ErrInvalidCadence   = fmt.Errorf("%w: unknown quest cadence", ErrValidation)
	ErrInvalidQuest     = fmt.Errorf("%w: invalid quest definition", ErrValidation)
	ErrMissingUser      = fmt.Errorf("%w: user id is required", ErrValidation)
	ErrInvalidAction    = fmt.Errorf("%w: action must be approve or reject", ErrValidation)

	ErrDuplicateEvent = fmt.Errorf("%w: event already recorded", ErrDuplicate)

	ErrQuestNotFound    = fmt.Errorf("%w: quest not found", ErrNotFound)
	ErrInvalidCode      = fmt.Errorf("%w: invalid referral code", ErrNotFound)
	ErrReferralNotFound = fmt.Errorf("%w: referral not found", ErrNotFound)
	ErrSnapshotNotFound = fmt.Errorf("%w: leaderboard not yet generated", ErrNotFound)
	ErrUserNotFound     = fmt.Errorf("%w: user not found", ErrNotFound)

	ErrQuestInactive    = fmt.Errorf("%w: quest is not active", ErrConflict)
	ErrNotCompleted     = fmt.Errorf("%w: quest not completed", ErrConflict)
	ErrAlreadyClaimed   = fmt.Errorf("%w: quest reward already claimed", ErrConflict)
	ErrSelfReferral     = fmt.Errorf("%w: cannot refer yourself", ErrConflict)
	ErrAlreadyReferred  = fmt.Errorf("%w: user already referred", ErrConflict)
	ErrReferralFinal    = fmt.Errorf("%w: referral already finalised", ErrConflict)
	ErrSnapshotNotReady = fmt.Errorf("%w: snapshot did not complete", ErrConflict)
)

// classify wraps a raw storage error with its class. Nil and already
// classified errors pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, c := range []error{ErrValidation, ErrDuplicate, ErrNotFound, ErrConflict, ErrTransient, ErrFatal} {
		if errors.Is(err, c) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	low := strings.ToLower(err.Error())
	for _, frag := range []string{"database is locked", "table is locked", "busy", "connection refused", "connection reset", "broken pipe", "timeout"} {
		if strings.Contains(low, frag) {
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}
