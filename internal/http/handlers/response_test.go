package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-xp-backend/internal/services"
)

// envelopeRouter simulates RequestID and the access logger.
func envelopeRouter(rid string, logs *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zerolog.New(logs)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Set("logger", &logger)
		c.Next()
	})
	return r
}

func Test_fail_EnvelopeCachingAndLogging(t *testing.T) {
	var logs bytes.Buffer
	r := envelopeRouter("rid-1", &logs)
	r.GET("/leaderboard", func(c *gin.Context) {
		c.Header("Cache-Control", "public, max-age=30")
		Fail(c, http.StatusNotFound, ErrCodeSnapshotNotFound, "no snapshot yet")
	})
	r.POST("/events", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "ledger write failed")
	})

	cases := []struct {
		method, path string
		status       int
		code, msg    string
		logged       bool
	}{
		{http.MethodGet, "/leaderboard", http.StatusNotFound, ErrCodeSnapshotNotFound, "no snapshot yet", false},
		{http.MethodPost, "/events", http.StatusInternalServerError, ErrCodeInternal, "ledger write failed", true},
	}
	for _, tc := range cases {
		logs.Reset()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))

		var er ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
			t.Fatalf("%s: json: %v", tc.path, err)
		}
		if w.Code != tc.status || er.RequestID != "rid-1" || er.Code != tc.code || er.Message != tc.msg {
			t.Fatalf("%s: %d %+v", tc.path, w.Code, er)
		}
		if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
			t.Fatalf("%s: errors must not be cached, Cache-Control=%q", tc.path, cc)
		}
		if got := strings.Contains(logs.String(), `"level":"error"`); got != tc.logged {
			t.Fatalf("%s: logged=%v, want %v: %s", tc.path, got, tc.logged, logs.String())
		}
	}
}

func Test_successHelpers(t *testing.T) {
	var logs bytes.Buffer
	r := envelopeRouter("rid-2", &logs)
	r.POST("/referral/track", func(c *gin.Context) {
		ok(c, http.StatusCreated, gin.H{"status": "pending", "xp": 100})
	})
	r.PUT("/admin/users/:id/active", func(c *gin.Context) { noContent(c) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/referral/track", nil))
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if w.Code != http.StatusCreated || body["status"] != "pending" || body["xp"] != float64(100) {
		t.Fatalf("ok: %d %#v", w.Code, body)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/admin/users/u1/active", nil))
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("noContent: %d %q", w.Code, w.Body.String())
	}
}

func Test_statusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrValidation, http.StatusBadRequest, ErrCodeBadRequest},
		{fmt.Errorf("%w: %q", services.ErrInvalidEventType, "x"), http.StatusBadRequest, ErrCodeInvalidEventType},
		{services.ErrInvalidMetadata, http.StatusBadRequest, ErrCodeInvalidMetadata},
		{services.ErrInvalidPeriod, http.StatusBadRequest, ErrCodeInvalidPeriod},
		{services.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrInvalidCode, http.StatusNotFound, ErrCodeInvalidCode},
		{services.ErrSnapshotNotFound, http.StatusNotFound, ErrCodeSnapshotNotFound},
		{services.ErrConflict, http.StatusConflict, ErrCodeConflict},
		{services.ErrAlreadyClaimed, http.StatusConflict, ErrCodeAlreadyClaimed},
		{services.ErrNotCompleted, http.StatusConflict, ErrCodeNotCompleted},
		{services.ErrSelfReferral, http.StatusConflict, ErrCodeSelfReferral},
		{services.ErrAlreadyReferred, http.StatusConflict, ErrCodeAlreadyReferred},
		{services.ErrReferralFinal, http.StatusConflict, ErrCodeReferralFinal},
		{services.ErrTransient, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		status, code := statusFor(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("statusFor(%v) = %d/%s, want %d/%s", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func Test_failErr_HidesInternalDetail(t *testing.T) {
	var buf bytes.Buffer
	r := envelopeRouter("rid-x", &buf)
	r.GET("/internal", func(c *gin.Context) { failErr(c, errors.New("pq: password authentication failed")) })
	r.GET("/transient", func(c *gin.Context) { failErr(c, fmt.Errorf("%w: database is locked", services.ErrTransient)) })
	r.GET("/client", func(c *gin.Context) { failErr(c, services.ErrAlreadyClaimed) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/internal", nil))
	var er ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &er)
	if w.Code != http.StatusInternalServerError || er.Message != "internal server error" || er.RequestID != "rid-x" {
		t.Fatalf("internal: %d %+v", w.Code, er)
	}
	if strings.Contains(w.Body.String(), "password") || !strings.Contains(buf.String(), "password") {
		t.Fatalf("detail must reach logs only; body=%s logs=%s", w.Body.String(), buf.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/transient", nil))
	er = ErrorResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &er)
	if w.Code != http.StatusServiceUnavailable || er.Code != ErrCodeUnavailable || strings.Contains(er.Message, "locked") {
		t.Fatalf("transient: %d %+v", w.Code, er)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/client", nil))
	er = ErrorResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &er)
	if w.Code != http.StatusConflict || er.Code != ErrCodeAlreadyClaimed || er.Message != services.ErrAlreadyClaimed.Error() {
		t.Fatalf("client: %d %+v", w.Code, er)
	}
}
