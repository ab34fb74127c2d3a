package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-xp-backend/internal/domain"
)

func TestGetIdempotency_Misses(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	expired := &domain.Idempotency{
		ID: "expired", UserID: "u1", Scope: "POST /api/v1/events", Key: "k1",
		Status: 200, Body: "{}", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now,
	}
	if err := db.Create(expired).Error; err != nil {
		t.Fatalf("seed expired: %v", err)
	}

	for name, key := range map[string]string{"blank key": "   ", "expired": "k1", "unknown": "missing"} {
		rec, err := GetIdempotency(ctx, db, "u1", "POST /api/v1/events", key, now)
		if rec != nil || !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: want (nil, ErrNotFound), got (%v, %v)", name, rec, err)
		}
	}

	// The expired row still holds the unique slot until purged.
	if _, err := CreateIdempotency(ctx, db, "u1", "POST /api/v1/events", "k1", 201, `{}`, now, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate before purge, got %v", err)
	}
	if err := PurgeExpiredIdempotency(ctx, db, "u1", "POST /api/v1/events", "k1", now); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "POST /api/v1/events", "k1", 201, `{"status":"processed"}`, now, time.Hour); err != nil {
		t.Fatalf("create after purge: %v", err)
	}
	got, err := GetIdempotency(ctx, db, "u1", "POST /api/v1/events", "k1", now)
	if err != nil || got.Status != 201 || got.Body != `{"status":"processed"}` {
		t.Fatalf("readback after purge: %+v %v", got, err)
	}
}

func TestCreateIdempotency_ScopedPerUserAndRoute(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ttl := 90 * time.Minute
	start := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	rec, err := CreateIdempotency(ctx, db, "u9", "POST /api/v1/quests/claim", "k9", 200, `{"xpAwarded":50}`, start, ttl)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || rec.UserID != "u9" || rec.Key != "k9" || !rec.ExpiresAt.Equal(start.Add(ttl)) {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if _, err := CreateIdempotency(ctx, db, "u9", "POST /api/v1/quests/claim", "k9", 409, "", start, ttl); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("same user, scope and key: want ErrDuplicate, got %v", err)
	}
	for _, other := range []struct{ user, scope string }{
		{"u9", "POST /api/v1/referral/track"},
		{"u10", "POST /api/v1/quests/claim"},
		{"", "POST /api/v1/quests/claim"},
	} {
		if _, err := CreateIdempotency(ctx, db, other.user, other.scope, "k9", 200, "{}", start, ttl); err != nil {
			t.Fatalf("%+v should be independent: %v", other, err)
		}
	}

	// Still live one second before expiry, gone at expiry.
	if _, err := GetIdempotency(ctx, db, "u9", "POST /api/v1/quests/claim", "k9", start.Add(ttl-time.Second)); err != nil {
		t.Fatalf("live record: %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "u9", "POST /api/v1/quests/claim", "k9", start.Add(ttl)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("record at expiry: %v", err)
	}
}

func TestCreateIdempotency_DBError(t *testing.T) {
	db := newTestDB(t)
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()

	_, err := CreateIdempotency(context.Background(), db, "u1", "s", "k", 200, "", time.Now(), time.Minute)
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("want a non-duplicate error, got %v", err)
	}
}
