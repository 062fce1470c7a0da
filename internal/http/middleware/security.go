// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, which attaches a conservative set of
// HTTP security headers to every API response. Routes that return identity
// data (the mini-app login) or operational state (the queue report) can be
// marked no-store so intermediaries never cache them.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// defaultHSTSMaxAge is used when SecurityOptions.HSTSMaxAge is not positive.
const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
//
// EnableHSTS emits Strict-Transport-Security for HTTPS requests only. Enable
// it only when traffic is HTTPS end-to-end, including proxy to app.
//
// NoStorePaths lists exact request paths whose responses get
// Cache-Control: no-store plus the legacy Pragma/Expires pair.
//
// EnablePolicy adds Permissions-Policy and X-Permitted-Cross-Domain-Policies.
// The Telegram mini-app is the only browser client.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration
	NoStorePaths []string
	EnablePolicy bool
}

// SecurityHeaders returns a Gin middleware that sets:
//   - always: X-Content-Type-Options, X-Frame-Options, Referrer-Policy;
//   - with EnablePolicy: Permissions-Policy, X-Permitted-Cross-Domain-Policies;
//   - on NoStorePaths: Cache-Control no-store, Pragma, Expires;
//   - with EnableHSTS on HTTPS: Strict-Transport-Security.
//
// When X-Request-ID is already set it is added to
// Access-Control-Expose-Headers so the mini-app can read it.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains; preload"

	noStore := make(map[string]struct{}, len(opt.NoStorePaths))
	for _, p := range opt.NoStorePaths {
		noStore[p] = struct{}{}
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		if _, ok := noStore[c.Request.URL.Path]; ok {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}

		c.Next()
	}
}

// exposeHeader appends name to Access-Control-Expose-Headers unless present.
func exposeHeader(h http.Header, name string) {
	const key = "Access-Control-Expose-Headers"
	cur := h.Get(key)
	switch {
	case cur == "":
		h.Set(key, name)
	case !strings.Contains(cur, name):
		h.Set(key, cur+", "+name)
	}
}

// isHTTPS reports whether the request used HTTPS directly or via a reverse
// proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
