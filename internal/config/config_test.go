package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Exit(m.Run())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIBasePath != "/api/v1" || cfg.DBDriver != "sqlite" || cfg.GinMode != "release" {
		t.Fatalf("server defaults unexpected: %+v", cfg)
	}
	if cfg.Timezone != time.UTC {
		t.Fatalf("expected UTC default timezone, got %v", cfg.Timezone)
	}
	if cfg.Referral.InviterXP != 500 || cfg.Referral.InviteeXP != 100 ||
		!reflect.DeepEqual(cfg.Referral.QualifyingEvents, []string{"deposit", "supply", "borrow", "swap"}) {
		t.Fatalf("referral defaults unexpected: %+v", cfg.Referral)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.Workers != 2 ||
		cfg.Scheduler.DailyEvery != 30*time.Minute || cfg.Scheduler.WeeklyEvery != time.Hour {
		t.Fatalf("scheduler defaults unexpected: %+v", cfg.Scheduler)
	}
	if cfg.SnapshotTimeout != 2*time.Minute || cfg.SnapshotCacheSize != 256 {
		t.Fatalf("snapshot defaults unexpected: %v %d", cfg.SnapshotTimeout, cfg.SnapshotCacheSize)
	}
	if !cfg.LogRedact || !cfg.SeedCatalog || cfg.AdminToken != "" || cfg.RateBackend != "memory" {
		t.Fatalf("flags unexpected: %+v", cfg)
	}
	if cfg.OTEL.ServiceName != "go-xp-backend" || cfg.OTEL.Enabled || cfg.Redis.Addr != "" {
		t.Fatalf("otel/redis defaults unexpected: %+v %+v", cfg.OTEL, cfg.Redis)
	}
}

func TestLoad_Overrides(t *testing.T) {
	env := map[string]string{
		"PORT":                        "8088",
		"READ_TIMEOUT":                "2s",
		"WRITE_TIMEOUT":               "3s",
		"MAX_HEADER_BYTES":            "8192",
		"GIN_MODE":                    "weird",
		"LOG_LEVEL":                   "warning",
		"LOG_PRETTY":                  "yes",
		"LOG_REDACT":                  "off",
		"SWAGGER_ENABLED":             "on",
		"API_BASE_PATH":               "api/v2/",
		"DB_DRIVER":                   "postgresql",
		"DATABASE_URL":                "postgres://xp@db/xp",
		"APP_TIMEZONE":                "America/New_York",
		"SEED_CATALOG":                "off",
		"CATALOG_PATH":                "/etc/xp/catalog.toml",
		"ADMIN_TOKEN":                 "s3cret",
		"REFERRAL_INVITER_XP":         "250",
		"REFERRAL_QUALIFYING_EVENTS":  "deposit, swap",
		"SNAPSHOT_CACHE_SIZE":         "16",
		"SCHEDULER_ENABLED":           "false",
		"SCHEDULER_WORKERS":           "4",
		"SCHEDULER_DAILY_EVERY":       "5m",
		"RATE_RPS":                    "x",
		"RATE_BURST":                  "nope",
		"RATE_LIMIT_BACKEND":          "Redis",
		"REDIS_ADDR":                  "cache:6379",
		"REDIS_DB":                    "3",
		"CORS_ALLOWED_ORIGINS":        " https://app.example , , http://localhost:3000 ",
		"ENABLE_HSTS":                 "TRUE",
		"HSTS_MAX_AGE":                "24h",
		"IDEMPOTENCY_TTL":             "48h",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "otel:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "0",
		"OTEL_TRACES_SAMPLER_ARG":     "0.75",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.WriteTimeout != 3*time.Second ||
		cfg.MaxHeaderBytes != 8192 || cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.LogRedact || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.DBDriver != "postgres" || cfg.DatabaseURL != "postgres://xp@db/xp" || cfg.SeedCatalog ||
		cfg.CatalogPath != "/etc/xp/catalog.toml" || cfg.AdminToken != "s3cret" {
		t.Fatalf("storage fields unexpected: %+v", cfg)
	}
	if cfg.Timezone == nil || cfg.Timezone.String() != "America/New_York" {
		t.Fatalf("timezone unexpected: %v", cfg.Timezone)
	}
	if cfg.Referral.InviterXP != 250 || cfg.Referral.InviteeXP != 100 ||
		!reflect.DeepEqual(cfg.Referral.QualifyingEvents, []string{"deposit", "swap"}) {
		t.Fatalf("referral unexpected: %+v", cfg.Referral)
	}
	if cfg.SnapshotCacheSize != 16 || cfg.Scheduler.Enabled || cfg.Scheduler.Workers != 4 ||
		cfg.Scheduler.DailyEvery != 5*time.Minute || cfg.Scheduler.AllTimeEvery != time.Hour {
		t.Fatalf("leaderboard settings unexpected: %+v", cfg.Scheduler)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 || cfg.RateBackend != "redis" {
		t.Fatalf("rate limiting unexpected: %v %d %s", cfg.RateRPS, cfg.RateBurst, cfg.RateBackend)
	}
	if cfg.Redis.Addr != "cache:6379" || cfg.Redis.DB != 3 {
		t.Fatalf("redis unexpected: %+v", cfg.Redis)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://app.example", "http://localhost:3000"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour || cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("web protection unexpected: %+v %v", cfg.Security, cfg.IdempotencyTTL)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"blank port", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"zero timeout", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"blank sqlite path", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"timezone", map[string]string{"APP_TIMEZONE": "Mars/Olympus"}, "APP_TIMEZONE"},
		{"negative reward", map[string]string{"REFERRAL_INVITEE_XP": "-5"}, "referral rewards"},
		{"no qualifying events", map[string]string{"REFERRAL_QUALIFYING_EVENTS": " , "}, "REFERRAL_QUALIFYING_EVENTS"},
		{"snapshot timeout", map[string]string{"SNAPSHOT_TIMEOUT": "0s"}, "SNAPSHOT_TIMEOUT"},
		{"snapshot cache", map[string]string{"SNAPSHOT_CACHE_SIZE": "0"}, "SNAPSHOT_CACHE_SIZE"},
		{"workers", map[string]string{"SCHEDULER_WORKERS": "0"}, "SCHEDULER_WORKERS"},
		{"interval", map[string]string{"SCHEDULER_WEEKLY_EVERY": "0s"}, "scheduler intervals"},
		{"negative rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"redis backend without addr", map[string]string{"RATE_LIMIT_BACKEND": "redis"}, "REDIS_ADDR"},
		{"unknown backend", map[string]string{"RATE_LIMIT_BACKEND": "memcached"}, "RATE_LIMIT_BACKEND"},
		{"hsts", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"idempotency ttl", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestMustLoad(t *testing.T) {
	if cfg := MustLoad(); cfg.APIBasePath == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}

	t.Setenv("SCHEDULER_WORKERS", "-1")
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	t.Setenv("X_STR", "val")
	t.Setenv("X_FLOAT", "3.14")
	t.Setenv("X_INT", "42")
	t.Setenv("X_DUR", "150ms")
	t.Setenv("X_BAD", "zzz")

	if getenv("X_EMPTY", "d") != "d" || getenv("X_STR", "d") != "val" || getenv("X_UNSET", "d") != "d" {
		t.Fatalf("getenv fallbacks wrong")
	}
	if getfloat("X_FLOAT", 0) != 3.14 || getfloat("X_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat wrong")
	}
	if getint("X_INT", 0) != 42 || getint("X_BAD", 7) != 7 || getint("X_FLOAT", 9) != 9 {
		t.Fatalf("getint wrong")
	}
	if getdur("X_DUR", time.Second) != 150*time.Millisecond || getdur("X_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur wrong")
	}
}

func TestGetbool(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "TRUE": true, " yes ": true, "Y": true, "on": true,
		"0": false, "false": false, "FALSE": false, " no ": false, "N": false, "Off": false,
	}
	for raw, want := range cases {
		t.Setenv("X_BOOL", raw)
		if got := getbool("X_BOOL", !want); got != want {
			t.Fatalf("getbool(%q) = %v, want %v", raw, got, want)
		}
	}

	// Empty and unrecognized values keep the default.
	for _, raw := range []string{"", "maybe"} {
		t.Setenv("X_BOOL", raw)
		if !getbool("X_BOOL", true) || getbool("X_BOOL", false) {
			t.Fatalf("getbool(%q) should return the default", raw)
		}
	}
}

func TestSplitCSVAndBasePath(t *testing.T) {
	if splitCSV("") != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" deposit, ,swap ,  borrow  ,"); !reflect.DeepEqual(got, []string{"deposit", "swap", "borrow"}) {
		t.Fatalf("splitCSV mismatch: %#v", got)
	}

	for in, want := range map[string]string{
		"":         "/",
		" / ":      "/",
		"v1":       "/v1",
		"/v1/":     "/v1",
		"/api/v1":  "/api/v1",
		"api//v2/": "/api//v2",
	} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
