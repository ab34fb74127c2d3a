// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file carries the caller's identity into the request. Wallet signature
// verification happens upstream (gateway or auth service); by the time a
// request reaches this process the identity headers are trusted.
//
//   - Identity() copies X-User-ID and X-Wallet-Address into the Gin context.
//   - RequireUser() rejects private routes without a user.
//   - RequireAdmin() gates admin routes behind a shared token.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderUserID     = "X-User-ID"
	HeaderWallet     = "X-Wallet-Address"
	HeaderAdminToken = "X-Admin-Token"

	// CtxUserID and CtxWallet are the Gin context keys set by Identity.
	CtxUserID = "userID"
	CtxWallet = "wallet"

	maxUserIDLen = 64
)

// Identity stores the trimmed identity headers in the context. It never
// rejects a request.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" && len(uid) <= maxUserIDLen {
			c.Set(CtxUserID, uid)
		}
		if w := strings.TrimSpace(c.GetHeader(HeaderWallet)); w != "" {
			c.Set(CtxWallet, w)
		}
		c.Next()
	}
}

// UserID returns the caller's user id or "".
func UserID(c *gin.Context) string {
	v, _ := c.Get(CtxUserID)
	return asString(v)
}

// Wallet returns the caller's wallet address header or "".
func Wallet(c *gin.Context) string {
	v, _ := c.Get(CtxWallet)
	return asString(v)
}

// RequireUser aborts with 401 when Identity found no user.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "X-User-ID header required")
			return
		}
		c.Next()
	}
}

// RequireAdmin compares X-Admin-Token with token in constant time. An empty
// token disables the admin surface (403 for everyone).
func RequireAdmin(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		if len(want) == 0 {
			abortJSON(c, http.StatusForbidden, "forbidden", "admin API disabled")
			return
		}
		got := []byte(c.GetHeader(HeaderAdminToken))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			abortJSON(c, http.StatusForbidden, "forbidden", "invalid admin token")
			return
		}
		c.Next()
	}
}

// abortJSON writes the standard error envelope from middleware, which cannot
// import the handlers package.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
