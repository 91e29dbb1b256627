package middleware

import (
	"net/http"
	"time"
)

// HTTPRecorder receives per-request measurements.
type HTTPRecorder interface {
	HTTPStart()
	HTTPDone(method, route string, status int, d time.Duration)
}

// Metrics tracks request metrics. The route label is the chi pattern so ids
// do not explode label cardinality.
func Metrics(rec HTTPRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rec == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec.HTTPStart()
			wrapped := wrapWriter(w)

			next.ServeHTTP(wrapped, r)

			rec.HTTPDone(r.Method, routePattern(r), wrapped.statusCode, time.Since(start))
		})
	}
}
