package repo

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-xp-backend/internal/domain"
)

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "nope", "xp.db")
	if db, err := OpenSQLite(bad); err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}
}

func TestOpenSQLite_PragmasPoolAndSchema(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "xp.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var journal string
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journal); err != nil || strings.ToLower(journal) != "wal" {
		t.Fatalf("journal_mode = %q (%v), want wal", journal, err)
	}
	for pragma, want := range map[string]int{
		"synchronous":  1, // NORMAL
		"foreign_keys": 1,
		"busy_timeout": 5000,
	} {
		var got int
		if err := db.Raw("PRAGMA " + pragma + ";").Row().Scan(&got); err != nil || got != want {
			t.Fatalf("PRAGMA %s = %d (%v), want %d", pragma, got, err, want)
		}
	}
	if n := sqlDB.Stats().MaxOpenConnections; n != 10 {
		t.Fatalf("MaxOpenConnections = %d, want 10", n)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{
		&domain.User{}, &domain.Event{}, &domain.LedgerEntry{}, &domain.XPRule{},
		&domain.Quest{}, &domain.QuestProgress{}, &domain.Referral{},
		&domain.LeaderboardSnapshot{}, &domain.LeaderboardRow{}, &domain.Idempotency{},
	} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T", tbl)
		}
	}

	// dedup_key is globally unique; mapDup turns the violation into ErrDuplicate.
	now := time.Now().UTC()
	if err := db.Create(&domain.User{ID: "u1", ReferralCode: "ABCD1234", IsActive: true, CreatedAt: now, UpdatedAt: now}).Error; err != nil {
		t.Fatalf("insert user: %v", err)
	}
	ev := domain.Event{ID: "e1", UserID: "u1", Type: domain.EventDeposit, DedupKey: "k1", OccurredAt: now, Status: domain.EventPending}
	if err := db.Create(&ev).Error; err != nil {
		t.Fatalf("insert event: %v", err)
	}
	ev.ID = "e2"
	if err := mapDup(db.Create(&ev).Error); err != ErrDuplicate {
		t.Fatalf("second insert with the same dedup key: want ErrDuplicate, got %v", err)
	}
}

func TestOpenSQLite_PragmasOnEveryConnection(t *testing.T) {
	if got := sqliteDSN("a.db?cache=shared"); got != "a.db?cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)" {
		t.Fatalf("sqliteDSN = %q", got)
	}

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "pool.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	// Hold two connections at once so the second is a fresh one.
	ctx := context.Background()
	c1, err := sqlDB.Conn(ctx)
	if err != nil {
		t.Fatalf("conn 1: %v", err)
	}
	defer c1.Close()
	c2, err := sqlDB.Conn(ctx)
	if err != nil {
		t.Fatalf("conn 2: %v", err)
	}
	defer c2.Close()
	for i, c := range []*sql.Conn{c1, c2} {
		var timeout, fk int
		if err := c.QueryRowContext(ctx, "PRAGMA busy_timeout;").Scan(&timeout); err != nil || timeout != 5000 {
			t.Fatalf("conn %d busy_timeout = %d (%v)", i+1, timeout, err)
		}
		if err := c.QueryRowContext(ctx, "PRAGMA foreign_keys;").Scan(&fk); err != nil || fk != 1 {
			t.Fatalf("conn %d foreign_keys = %d (%v)", i+1, fk, err)
		}
	}
}

func TestOpen(t *testing.T) {
	cases := []struct {
		name, driver, path, dsn string
		traced, wantErr         bool
	}{
		{name: "unknown driver", driver: "mysql", wantErr: true},
		{name: "postgres without dsn", driver: DriverPostgres, dsn: "  ", wantErr: true},
		{name: "default driver is sqlite", driver: "", path: "a.db"},
		{name: "sqlite traced", driver: "SQLite", path: "b.db", traced: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := tc.path
			if path != "" {
				path = filepath.Join(t.TempDir(), path)
			}
			db, err := Open(tc.driver, path, tc.dsn, tc.traced)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			sqlDB, _ := db.DB()
			t.Cleanup(func() { _ = sqlDB.Close() })
			if err := AutoMigrate(db); err != nil {
				t.Fatalf("AutoMigrate: %v", err)
			}
		})
	}
}
