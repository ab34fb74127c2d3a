// Package httpapi wires the HTTP transport (Gin) to the application services,
// middleware and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, identity, logging/redaction, panic recovery,
// metrics, idempotent replays, rate limiting, CORS and security headers.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-xp-backend/internal/config"
	"github.com/tbourn/go-xp-backend/internal/http/handlers"
	"github.com/tbourn/go-xp-backend/internal/http/middleware"
	"github.com/tbourn/go-xp-backend/internal/repo"
	"github.com/tbourn/go-xp-backend/internal/services"
)

// leaderboardMaxAge is how long clients and proxies may reuse a leaderboard
// page. Snapshots are immutable, so the only staleness is a newer snapshot.
const leaderboardMaxAge = 30 * time.Second

// Deps are the collaborators RegisterRoutes mounts. Redis is optional; when
// set and RATE_LIMIT_BACKEND=redis the rate limit budget is shared.
type Deps struct {
	DB          *gorm.DB
	XP          *services.XPService
	Quests      *services.QuestService
	Referrals   *services.ReferralService
	Leaderboard *services.LeaderboardService
	Users       *services.UserService
	Redis       redis.UniversalClient
}

// idempotencyStore adapts the repo free functions to the replay middleware.
type idempotencyStore struct{ db *gorm.DB }

// Lookup proxies repo.GetIdempotency, treating a miss as (nil, nil).
func (s idempotencyStore) Lookup(ctx context.Context, userID, scope, key string, now time.Time) (*middleware.StoredResponse, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &middleware.StoredResponse{Status: rec.Status, Body: []byte(rec.Body)}, nil
}

// Save purges an expired record for the same key, then stores the response.
// Losing a race to a concurrent request with the same key is not an error.
func (s idempotencyStore) Save(ctx context.Context, userID, scope, key string, resp middleware.StoredResponse, now time.Time, ttl time.Duration) error {
	if err := repo.PurgeExpiredIdempotency(ctx, s.db, userID, scope, key, now); err != nil {
		return err
	}
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, resp.Status, string(resp.Body), now, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID and Identity: correlation id and caller, needed by all below
//  3. Access logging (redacting unless LOG_REDACT=false)
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency replay (before rate limiting so replays bypass it)
//  8. Rate limiter (per user/IP)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID(), middleware.Identity())

	if cfg.LogRedact {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{middleware.HeaderWallet},
		}))
	} else {
		r.Use(middleware.Logger())
	}
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200, TTL: cfg.IdempotencyTTL},
		idempotencyStore{db: d.DB},
	))

	r.Use(middleware.RateLimit(newLimiter(d.Redis, cfg), middleware.KeyByUserOrIP()))

	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderUserID, middleware.HeaderWallet, middleware.HeaderAdminToken,
		middleware.HeaderIdempotencyKey, "If-None-Match",
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "ETag", middleware.HeaderIdempotentReplay, "Retry-After"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "ETag", middleware.HeaderIdempotentReplay, "Retry-After"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(d.XP, d.Quests, d.Referrals, d.Leaderboard, d.Users)
	api := groupWithPrefix(r, cfg.APIBasePath)

	// Anonymous reads. Quest lists include the caller's progress when
	// X-User-ID is present.
	api.GET("/xp/rules", h.ListRules)
	api.GET("/quests", h.ListQuests)
	api.GET("/quests/today", h.ListTodayQuests)
	api.GET("/referral/verify/:code", h.VerifyReferralCode)

	board := api.Group("/leaderboard", gzip.Gzip(gzip.DefaultCompression))
	{
		board.GET("", middleware.PublicCache(leaderboardMaxAge), h.GetLeaderboard)
		board.GET("/snapshot/latest", middleware.PublicCache(leaderboardMaxAge), h.GetLatestSnapshot)
		board.GET("/me", middleware.RequireUser(), middleware.NoStore(), h.GetMyRank)
	}

	priv := api.Group("", middleware.RequireUser(), middleware.NoStore())
	{
		priv.POST("/events", h.SubmitEvent)
		priv.GET("/events/me", h.ListMyEvents)

		priv.GET("/xp/me", h.GetMyXP)
		priv.GET("/xp/ledger", h.GetMyLedger)

		priv.POST("/quests/claim", h.ClaimQuest)
		priv.GET("/quests/history", h.QuestHistory)

		priv.GET("/referral/me", h.MyReferrals)
		priv.POST("/referral/track", h.TrackReferral)
		priv.GET("/referral/history", h.ReferralHistory)
	}

	admin := api.Group("/admin", middleware.RequireAdmin(cfg.AdminToken), middleware.NoStore())
	{
		admin.POST("/leaderboard/generate", h.GenerateSnapshot)
		admin.POST("/quests", h.CreateQuest)
		admin.PUT("/quests/:id", h.UpdateQuest)
		admin.POST("/referrals/:id/override", h.OverrideReferral)
		admin.PUT("/users/:id/active", h.SetUserActive)
		admin.PUT("/xp/rules/:eventType", h.UpsertXPRule)
		admin.POST("/events/:id/status", h.SetEventStatus)
	}
}

// newLimiter picks the shared Redis limiter when configured, else the
// per-process token bucket.
func newLimiter(rdb redis.UniversalClient, cfg config.Config) middleware.Limiter {
	if cfg.RateBackend == "redis" && rdb != nil {
		return middleware.NewRedisLimiter(rdb, cfg.RateRPS, cfg.RateBurst)
	}
	return middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
}

// limitBody caps the request body size for all endpoints to maxBytes using
// http.MaxBytesReader. Requests exceeding the cap make downstream body reads
// fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
