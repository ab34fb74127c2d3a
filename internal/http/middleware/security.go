// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides response hardening and cache policy:
//
//   - SecurityHeaders: baseline headers for a JSON API, opt-in HSTS, and
//     exposure of the headers browser clients need (request id, ETag, replay
//     marker, Retry-After).
//   - NoStore: forbids caching, used on private and admin groups.
//   - PublicCache: short shared caching for snapshot-backed reads.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
//
// Enable HSTS only when traffic is HTTPS end-to-end. HSTSMaxAge defaults to
// 180 days.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration
	NoStore      bool // Cache-Control: no-store on every response
	EnablePolicy bool // Permissions-Policy and X-Permitted-Cross-Domain-Policies
}

// exposedHeaders are readable by browser clients across origins.
var exposedHeaders = []string{requestIDHeader, "ETag", HeaderIdempotentReplay, "Retry-After"}

// SecurityHeaders adds nosniff, DENY framing, no-referrer and the optional
// policy, cache and HSTS headers. Exposed headers are appended to any value
// set upstream without duplicates.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.NoStore {
			setNoStore(h)
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		appendExposed(h, exposedHeaders)

		c.Next()
	}
}

// NoStore marks every response of the group as uncacheable.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		setNoStore(c.Writer.Header())
		c.Next()
	}
}

// PublicCache lets shared caches keep successful GET responses for maxAge.
// Clients still revalidate with the ETag afterwards.
func PublicCache(maxAge time.Duration) gin.HandlerFunc {
	v := "public, max-age=" + strconv.Itoa(int(maxAge.Seconds())) + ", must-revalidate"
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			c.Header("Cache-Control", v)
		}
		c.Next()
	}
}

func setNoStore(h http.Header) {
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

func appendExposed(h http.Header, names []string) {
	const hdr = "Access-Control-Expose-Headers"
	cur := h.Get(hdr)
	for _, n := range names {
		if strings.Contains(cur, n) {
			continue
		}
		if cur == "" {
			cur = n
		} else {
			cur += ", " + n
		}
	}
	h.Set(hdr, cur)
}

// isHTTPS reports whether the request arrived over TLS directly or through a
// proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
