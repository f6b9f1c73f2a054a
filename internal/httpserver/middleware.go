package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ephemeral-paste/internal/clock"
)

// TestNowHeader carries an epoch-millisecond override for "now" in test mode.
const TestNowHeader = "x-test-now-ms"

type ctxKey int

const nowKey ctxKey = iota

// RequestTime resolves the instant used for visibility checks once per
// request. With testMode set a parseable TestNowHeader replaces the clock;
// otherwise the header is ignored.
func RequestTime(clk clock.Clock, testMode bool) func(http.Handler) http.Handler {
	if clk == nil {
		clk = clock.Real{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := clk.Now()
			if testMode {
				if ms, ok := parseTestNow(r.Header.Get(TestNowHeader)); ok {
					now = time.UnixMilli(ms)
				}
			}
			ctx := context.WithValue(r.Context(), nowKey, now.UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestNow(r *http.Request) time.Time {
	if now, ok := r.Context().Value(nowKey).(time.Time); ok {
		return now
	}
	return time.Now().UTC()
}

func parseTestNow(v string) (int64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// NoStore marks responses uncacheable. Every read of a paste counts a view,
// so a cached copy would serve views the store never recorded.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
