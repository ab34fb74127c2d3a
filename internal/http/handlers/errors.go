// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Generic codes mirror the HTTP status they accompany. Domain codes refine a
// status where clients need to branch (e.g. already_claimed vs not_completed,
// both 409). Every error response carries exactly one of these codes.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "self_referral",
//	  "message": "conflict: cannot refer yourself"
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"
	ErrCodeUnavailable  = "unavailable"

	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidEventType = "invalid_event_type"
	ErrCodeInvalidMetadata  = "invalid_metadata"
	ErrCodeInvalidPeriod    = "invalid_period"
	ErrCodeAlreadyClaimed   = "already_claimed"
	ErrCodeNotCompleted     = "not_completed"
	ErrCodeQuestInactive    = "quest_inactive"
	ErrCodeSelfReferral     = "self_referral"
	ErrCodeAlreadyReferred  = "already_referred"
	ErrCodeReferralFinal    = "referral_final"
	ErrCodeInvalidCode      = "invalid_referral_code"
	ErrCodeSnapshotNotFound = "snapshot_not_found"
)
