package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-xp-backend/internal/domain"
)

func TestLedgerStats_Empty(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1", true)

	count, newest, err := LedgerStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("LedgerStats: %v", err)
	}
	if count != 0 || newest != nil {
		t.Fatalf("want (0, nil), got (%d, %v)", count, newest)
	}
}

func TestLedgerStats_FiltersByUserAndTracksNewest(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1", true)
	seedUser(t, db, "u2", true)

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	t3 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	seedLedger(t, db, "u1", 100, domain.LedgerReason(domain.EventDeposit), t2)
	seedLedger(t, db, "u1", 50, domain.ReasonCompleteQuest, t1)
	seedLedger(t, db, "u2", 10, domain.LedgerReason(domain.EventDeposit), t3)

	count, newest, err := LedgerStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("LedgerStats: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if newest == nil || !newest.Equal(t2) {
		t.Fatalf("newest = %v, want %v", newest, t2)
	}

	// An append moves the pair forward, which is what the ETag relies on.
	t4 := t2.Add(time.Minute)
	seedLedger(t, db, "u1", -20, domain.ReasonAdminAdjustment, t4)
	count, newest, err = LedgerStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("LedgerStats: %v", err)
	}
	if count != 3 || newest == nil || !newest.Equal(t4) {
		t.Fatalf("after append got (%d, %v)", count, newest)
	}
}

func TestLedgerStats_ClosedDB(t *testing.T) {
	db := newTestDB(t)
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()

	if _, _, err := LedgerStats(context.Background(), db, "u1"); err == nil {
		t.Fatalf("expected error on closed db")
	}
}
