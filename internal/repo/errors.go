package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates an insert rejected by a unique index. Services
// rely on it as the storage-level "already happened" signal (event dedup
// keys, ledger source keys, one referral per invitee).
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation recognises unique-constraint failures across drivers.
// glebarez/sqlite often returns plain-text errors; Postgres reports
// "duplicate key value violates unique constraint".
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}

// mapDup converts unique violations into ErrDuplicate and passes other
// errors through unchanged.
func mapDup(err error) error {
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}
