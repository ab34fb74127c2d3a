// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotent replay for unsafe requests. A client that
// retries a POST/PUT with the same Idempotency-Key gets the stored status and
// body of the first completed attempt instead of running the handler again.
//
// Records are keyed by (user, scope, key) where scope is the HTTP method plus
// the matched route, so the same key on two different endpoints never
// collides. Persistence sits behind the narrow IdempotencyStore interface.
package middleware

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotentReplay is set on responses served from the store.
const HeaderIdempotentReplay = "Idempotent-Replayed"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the response was served from the replay store.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// StoredResponse is a previously completed response.
type StoredResponse struct {
	Status int
	Body   []byte
}

// IdempotencyStore persists completed responses. Lookup returns (nil, nil)
// when nothing replayable exists.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, scope, key string, now time.Time) (*StoredResponse, error)
	Save(ctx context.Context, userID, scope, key string, resp StoredResponse, now time.Time, ttl time.Duration) error
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// TTL is how long a stored response stays replayable. Defaults to 24h.
	TTL time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// IdempotencyValidator validates the Idempotency-Key header, stashes it for
// handlers and, when store is non-nil, replays or records responses of unsafe
// requests.
//
//   - header absent: no-op
//   - header invalid: 400 bad_request
//   - stored response found: written as-is with Idempotent-Replayed: true,
//     the handler chain is skipped and rate limiting is bypassed
//   - otherwise the response is captured and saved unless it is a 5xx or 429
//
// Store failures never fail the request; they are logged and the request is
// processed normally.
func IdempotencyValidator(opts IdempotencyOptions, store IdempotencyStore) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_request", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if store == nil || !unsafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		uid := UserID(c)
		scope := c.Request.Method + " " + c.FullPath()
		ctx := c.Request.Context()

		prev, err := store.Lookup(ctx, uid, scope, key, now())
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Str("scope", scope).Msg("idempotency lookup failed")
		}
		if prev != nil {
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
			c.Header(HeaderIdempotentReplay, "true")
			c.Data(prev.Status, "application/json; charset=utf-8", prev.Body)
			c.Abort()
			return
		}

		cw := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = cw
		c.Next()

		status := cw.Status()
		if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			return
		}
		resp := StoredResponse{Status: status, Body: cw.buf.Bytes()}
		// Detached from the request context: the client may already be gone.
		if err := store.Save(context.WithoutCancel(ctx), uid, scope, key, resp, now(), ttl); err != nil {
			LoggerFrom(c).Warn().Err(err).Str("scope", scope).Msg("idempotency save failed")
		}
	}
}

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// captureWriter tees the response body so it can be stored after the
// handler returns.
type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
