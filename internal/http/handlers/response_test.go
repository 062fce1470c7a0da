package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-companion-bot/internal/services"
)

// respond runs handler behind a stub RequestID + request logger and returns
// the recorder and captured log output.
func respond(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-1")
		c.Set("logger", &logger)
		c.Next()
	})
	r.POST("/x", handler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
	return w, buf.String()
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return er
}

func TestFail_EnvelopeAndLogLevels(t *testing.T) {
	cases := []struct {
		status int
		code   string
		level  string
	}{
		{http.StatusInternalServerError, ErrCodeInternal, `"level":"error"`},
		{http.StatusUnauthorized, ErrCodeUnauthorized, `"level":"warn"`},
		{http.StatusBadRequest, ErrCodeBadRequest, ""},
	}
	for _, tc := range cases {
		w, logs := respond(t, func(c *gin.Context) { fail(c, tc.status, tc.code, "msg") })
		if w.Code != tc.status {
			t.Fatalf("status = %d; want %d", w.Code, tc.status)
		}
		er := decodeEnvelope(t, w)
		if er.RequestID != "rid-1" || er.Code != tc.code || er.Message != "msg" {
			t.Fatalf("envelope = %+v", er)
		}
		if tc.level == "" && logs != "" {
			t.Errorf("%d logged: %s", tc.status, logs)
		}
		if tc.level != "" && !strings.Contains(logs, tc.level) {
			t.Errorf("%d: want %s in %s", tc.status, tc.level, logs)
		}
	}
}

func TestFailService_MapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{fmt.Errorf("lookup: %w", services.ErrNotFound), http.StatusNotFound, ErrCodeNotFound, "companion not found"},
		{fmt.Errorf("%w: energy cost must be positive", services.ErrInvalidInput), http.StatusBadRequest, ErrCodeBadRequest, "invalid input: energy cost must be positive"},
		{services.ErrUnauthorized, http.StatusUnauthorized, ErrCodeUnauthorized, "unauthorized"},
		{fmt.Errorf("db: locked"), http.StatusInternalServerError, ErrCodeUpdateFailed, "db: locked"},
	}
	for _, tc := range cases {
		w, _ := respond(t, func(c *gin.Context) { failService(c, tc.err, ErrCodeUpdateFailed, "companion not found") })
		er := decodeEnvelope(t, w)
		if w.Code != tc.status || er.Code != tc.code || er.Message != tc.msg {
			t.Errorf("%v -> %d %+v", tc.err, w.Code, er)
		}
	}
}

func TestSuccessHelpers(t *testing.T) {
	w, _ := respond(t, func(c *gin.Context) { ok(c, http.StatusCreated, SeedResponse{Seeded: 6}) })
	var body SeedResponse
	if w.Code != http.StatusCreated || json.Unmarshal(w.Body.Bytes(), &body) != nil || body.Seeded != 6 {
		t.Fatalf("ok: %d %s", w.Code, w.Body.String())
	}

	w, _ = respond(t, func(c *gin.Context) { noContent(c) })
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("noContent: %d %q", w.Code, w.Body.String())
	}

	w, _ = respond(t, func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found") })
	if w.Code != http.StatusNotFound || decodeEnvelope(t, w).Code != ErrCodeNotFound {
		t.Fatalf("Fail: %d %s", w.Code, w.Body.String())
	}
}
