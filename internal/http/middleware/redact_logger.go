// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the single access logger. Bodies are
// never logged; query strings, header values and unrouted paths are scrubbed
// of bot tokens, UUIDs, emails and phone numbers before they reach zerolog.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const masked = "[REDACTED]"

// scrubbers run in order. Bot tokens and UUIDs go before the phone pattern,
// which would otherwise eat their digit runs.
var scrubbers = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\b\d{5,}:[A-Za-z0-9_-]{30,}`), "[REDACTED:token]"},
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
}

// scrub replaces every sensitive token in s.
func scrub(s string) string {
	for _, sc := range scrubbers {
		if s == "" {
			return s
		}
		s = sc.re.ReplaceAllString(s, sc.repl)
	}
	return s
}

// RedactOptions configures RedactingLogger.
//
// MaskHeaders are replaced wholesale with "[REDACTED]" in addition to
// Authorization, Cookie and Set-Cookie. Matching is case-insensitive.
//
// QuietPaths are route patterns (c.FullPath) whose successful responses are
// logged at debug. Telegram delivers every update to the webhook, so its 200
// acks would otherwise drown the info stream.
type RedactOptions struct {
	MaskHeaders []string
	QuietPaths  []string
}

// RedactingLogger logs one "http_request" event per request with method,
// route, scrubbed query and headers, status, size and latency. 4xx logs at
// warn and 5xx at error. It also attaches a request-scoped logger carrying
// request_id, method and path for LoggerFrom.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}
	quiet := make(map[string]struct{}, len(opts.QuietPaths))
	for _, p := range opts.QuietPaths {
		quiet[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = scrub(c.Request.URL.Path)
		}

		rid, _ := c.Get(requestIDKey)
		scoped := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &scoped)

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				headers[k] = masked
				continue
			}
			headers[k] = scrub(strings.Join(vv, ", "))
		}

		c.Next()

		status := c.Writer.Status()
		_, isQuiet := quiet[path]

		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		case isQuiet:
			ev = log.Debug()
		default:
			ev = log.Info()
		}

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}

		ev.
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", truncate(scrub(c.Request.URL.RawQuery), maxQueryLogLength)).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
