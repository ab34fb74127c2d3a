package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/tbourn/go-xp-backend/internal/config"
	"github.com/tbourn/go-xp-backend/internal/repo"
)

var codeRE = regexp.MustCompile(`^[0-9A-F]{8}$`)

func TestUserService_Ensure(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	u, err := s.users.Ensure(ctx, "u1", "")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !codeRE.MatchString(u.ReferralCode) || !u.IsActive || u.WalletAddress != "" {
		t.Fatalf("new user unexpected: %+v", u)
	}

	wallet := "0x52908400098527886e0f7030069857d2e4169ee7"
	again, err := s.users.Ensure(ctx, "u1", wallet)
	if err != nil {
		t.Fatalf("Ensure again: %v", err)
	}
	if again.ReferralCode != u.ReferralCode {
		t.Fatalf("referral code changed: %s -> %s", u.ReferralCode, again.ReferralCode)
	}
	if again.WalletAddress != "0x52908400098527886E0F7030069857D2E4169EE7" {
		t.Fatalf("wallet not checksummed: %s", again.WalletAddress)
	}

	// A stored wallet is not replaced.
	third, _ := s.users.Ensure(ctx, "u1", "0x8617E340B3D01FA5F11F306F4090FD50E238070D")
	if third.WalletAddress != again.WalletAddress {
		t.Fatalf("wallet replaced: %s", third.WalletAddress)
	}

	if _, err := s.users.Ensure(ctx, "  ", ""); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("want ErrMissingUser, got %v", err)
	}
}

func TestUserService_SetActiveAndGet(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	if err := s.users.SetActive(ctx, "ghost", false); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}
	if _, err := s.users.Get(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := s.users.Ensure(ctx, "u1", ""); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := s.users.SetActive(ctx, "u1", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	u, err := s.users.Get(ctx, "u1")
	if err != nil || u.IsActive {
		t.Fatalf("Get = %+v, %v", u, err)
	}
}

func TestValidation_TxHashAndAddress(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{txHash(0x01), true},
		{"0x" + fmt.Sprintf("%064d", 0), true},
		{"0x1234", false},
		{txHash(0x01)[2:], false},
		{"0x" + fmt.Sprintf("%063d", 0) + "g", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsTxHash(tc.in); got != tc.want {
			t.Errorf("IsTxHash(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if got := NormalizeAddress("not-an-address"); got != "" {
		t.Fatalf("NormalizeAddress(bad) = %q", got)
	}
	if got := NormalizeAddress(" 0xde709f2102306220921060314715629080e2fb77 "); got != "0xde709f2102306220921060314715629080e2fb77" {
		t.Fatalf("NormalizeAddress = %q", got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		in   error
		want error
	}{
		{ErrQuestNotFound, ErrNotFound},
		{context.DeadlineExceeded, ErrTransient},
		{errors.New("database is locked"), ErrTransient},
		{errors.New("boom"), ErrFatal},
	}
	for _, tc := range cases {
		if got := classify(tc.in); !errors.Is(got, tc.want) {
			t.Errorf("classify(%v) = %v, want class %v", tc.in, got, tc.want)
		}
	}
	if classify(nil) != nil {
		t.Fatalf("classify(nil) must be nil")
	}
}

func TestSeedCatalog(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	cat, err := config.LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	res, err := SeedCatalog(ctx, s.db, cat, s.clock)
	if err != nil {
		t.Fatalf("SeedCatalog: %v", err)
	}
	if res.Rules != len(cat.Rules) || res.Quests != len(cat.Quests) {
		t.Fatalf("seed result = %+v", res)
	}

	// A second run upserts rules and leaves quests alone.
	res, err = SeedCatalog(ctx, s.db, cat, s.clock)
	if err != nil || res.Quests != 0 {
		t.Fatalf("reseed = %+v, %v", res, err)
	}
	rules, _ := repo.ListActiveXPRules(ctx, s.db)
	if len(rules) != len(cat.Rules) {
		t.Fatalf("rules = %d, want %d", len(rules), len(cat.Rules))
	}

	// Seeded policy is live: the faucet pays once a day.
	if r := s.event(t, "u1", "claim_faucet", ""); !r.Awarded || r.XPAwarded != 50 {
		t.Fatalf("faucet = %+v", r)
	}
	if r := s.event(t, "u1", "claim_faucet", ""); r.Awarded {
		t.Fatalf("second faucet should be throttled: %+v", r)
	}

	bad := &config.Catalog{Rules: []config.CatalogRule{{EventType: "teleport", XP: 1}}}
	if _, err := SeedCatalog(ctx, s.db, bad, s.clock); !errors.Is(err, ErrInvalidEventType) {
		t.Fatalf("want ErrInvalidEventType, got %v", err)
	}
}
