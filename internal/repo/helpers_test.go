package repo

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-xp-backend/internal/domain"
)

// newTestDB opens a private in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, id string, active bool) *domain.User {
	t.Helper()
	now := time.Now().UTC()
	u := &domain.User{ID: id, ReferralCode: "C" + id, IsActive: active, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return u
}

func seedLedger(t *testing.T, db *gorm.DB, userID string, delta int64, reason domain.LedgerReason, at time.Time) {
	t.Helper()
	e := &domain.LedgerEntry{ID: uuid.NewString(), UserID: userID, DeltaXP: delta, Reason: reason, CreatedAt: at.UTC()}
	if err := db.Create(e).Error; err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
}
