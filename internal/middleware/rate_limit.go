package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
)

// SubscribeRateLimit limits new stream subscriptions per client IP so a
// reconnect storm cannot flood the directory. A non-positive limit disables it.
func SubscribeRateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(writeRateLimitError),
	)
}

// writeRateLimitError writes a 429 Too Many Requests response
func writeRateLimitError(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	response := map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"code":    "TOO_MANY_REQUESTS",
			"message": "Rate limit exceeded. Please try again later.",
			"details": map[string]interface{}{
				"retry_after": w.Header().Get("Retry-After"),
			},
		},
		"timestamp": time.Now().UTC(),
	}

	_ = json.NewEncoder(w).Encode(response)
}
