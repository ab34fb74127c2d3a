// Command server runs the XP backend: HTTP API, leaderboard scheduler and
// storage wiring.
//
// Two one-shot modes help with deploys and cron setups:
//
//	MIGRATE_ONLY=1       migrate and seed the catalog, then exit
//	GENERATE_AND_EXIT=1  generate one snapshot per period, then exit
//
//go:generate swag init -g cmd/server/main.go -o docs
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-xp-backend/docs"
	"github.com/tbourn/go-xp-backend/internal/cache"
	"github.com/tbourn/go-xp-backend/internal/config"
	"github.com/tbourn/go-xp-backend/internal/domain"
	httpapi "github.com/tbourn/go-xp-backend/internal/http"
	"github.com/tbourn/go-xp-backend/internal/observability"
	"github.com/tbourn/go-xp-backend/internal/repo"
	"github.com/tbourn/go-xp-backend/internal/scheduler"
	"github.com/tbourn/go-xp-backend/internal/services"
	"github.com/tbourn/go-xp-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// @title        XP Backend API
// @version      1.0
// @description  Event ingestion, XP ledger, quests, referrals and leaderboard snapshots.
// @BasePath     /api/v1
func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)
	version = sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg.DBDriver, cfg.DBPath, cfg.DatabaseURL, cfg.OTEL.Enabled)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	if cfg.SeedCatalog {
		cat, err := config.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("load catalog")
		}
		res, err := services.SeedCatalog(ctx, db, cat, services.SystemClock)
		if err != nil {
			log.Fatal().Err(err).Msg("seed catalog")
		}
		log.Info().Int("rules", res.Rules).Int("quests", res.Quests).Msg("catalog seeded")
	}
	if sysutil.EnvFlag("MIGRATE_ONLY") {
		log.Info().Msg("migrations done, exiting")
		return
	}

	var rdb redis.UniversalClient
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis ping")
		}
		defer rdb.Close()
	}
	snapCache, err := cache.New(cfg.SnapshotCacheSize, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("snapshot cache")
	}

	qualifying := make([]domain.EventType, 0, len(cfg.Referral.QualifyingEvents))
	for _, s := range cfg.Referral.QualifyingEvents {
		t := domain.EventType(s)
		if !t.Valid() {
			log.Fatal().Str("event_type", s).Msg("REFERRAL_QUALIFYING_EVENTS: unknown event type")
		}
		qualifying = append(qualifying, t)
	}

	clock := services.SystemClock
	users := &services.UserService{DB: db, Clock: clock}
	quests := &services.QuestService{DB: db, Clock: clock, Loc: cfg.Timezone}
	referrals := &services.ReferralService{
		DB:               db,
		Clock:            clock,
		InviterXP:        &cfg.Referral.InviterXP,
		InviteeXP:        &cfg.Referral.InviteeXP,
		QualifyingEvents: qualifying,
		Users:            users,
		Quests:           quests,
	}
	xp := &services.XPService{DB: db, Clock: clock, Loc: cfg.Timezone, Users: users, Quests: quests, Referrals: referrals}
	board := &services.LeaderboardService{
		DB:      db,
		Clock:   clock,
		Loc:     cfg.Timezone,
		Timeout: cfg.SnapshotTimeout,
		Cache:   snapCache,
	}

	sched := scheduler.New(board, scheduler.JobsFromConfig(cfg.Scheduler), scheduler.Options{
		Workers:    cfg.Scheduler.Workers,
		RunTimeout: cfg.SnapshotTimeout,
	})
	if sysutil.EnvFlag("GENERATE_AND_EXIT") {
		if err := sched.RunAll(ctx); err != nil {
			log.Fatal().Err(err).Msg("snapshot generation failed")
		}
		log.Info().Msg("snapshots generated, exiting")
		return
	}
	if cfg.Scheduler.Enabled {
		// Trigger returns false while a run for the period is already pending.
		board.OnMiss = func(p domain.Period) {
			if sched.Trigger(p) {
				log.Info().Str("period", string(p)).Msg("snapshot requested on miss")
			}
		}
		sched.Start(ctx)
	} else {
		log.Warn().Msg("scheduler disabled; snapshots are only built via the admin API and misses stay 404")
	}

	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = version

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:          db,
		XP:          xp,
		Quests:      quests,
		Referrals:   referrals,
		Leaderboard: board,
		Users:       users,
		Redis:       rdb,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Str("db", cfg.DBDriver).
			Bool("redis", rdb != nil).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := sched.Stop(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("scheduler stop")
	}
	if err := shutdownOTel(sctx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}
