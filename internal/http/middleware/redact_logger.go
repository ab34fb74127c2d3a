// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger installed by the
// router. It never logs bodies and scrubs identifiers from the query string
// and header values before they reach the log:
//
//   - transaction hashes  -> [REDACTED:tx]
//   - EVM addresses       -> 0x1234…abcd (first and last four hex digits)
//   - UUIDs and emails    -> [REDACTED:id], [REDACTED:email]
//
// Credentials (Authorization, Cookie, X-Admin-Token, plus MaskHeaders) are
// replaced wholesale. Like Logger, it stores a request-scoped zerolog.Logger
// for LoggerFrom.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders names extra headers whose values are fully replaced with
// "[REDACTED]". Matching is case-insensitive.
type RedactOptions struct {
	MaskHeaders []string
}

var (
	txHashRE  = regexp.MustCompile(`(?i)\b0x[0-9a-f]{64}\b`)
	addressRE = regexp.MustCompile(`(?i)\b0x([0-9a-f]{4})[0-9a-f]{32}([0-9a-f]{4})\b`)
	uuidRE    = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE   = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
)

// Redact scrubs hashes, addresses, UUIDs and emails from s. Hashes go first
// so their prefix is never shortened as an address.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = txHashRE.ReplaceAllString(s, "[REDACTED:tx]")
	s = addressRE.ReplaceAllString(s, "0x${1}…${2}")
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return s
}

// RedactingLogger logs one structured line per request with scrubbed
// metadata; info for 2xx/3xx, warn for 4xx, error for 5xx.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{}
	builtin := []string{"Authorization", "Cookie", "Set-Cookie", HeaderAdminToken}
	for _, h := range append(builtin, opts.MaskHeaders...) {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		safeQuery := Redact(truncate(c.Request.URL.RawQuery, maxQueryLogLength))

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = Redact(strings.Join(vv, ", "))
		}

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		l := log.With().
			Str("request_id", reqID).
			Str("user_id", UserID(c)).
			Str("method", c.Request.Method).
			Str("path", routeOf(c)).
			Logger()
		c.Set("logger", &l)

		c.Next()

		accessEvent(&l, c).
			Str("query", safeQuery).
			Int("status", c.Writer.Status()).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
