package ratelimit

import (
	"math"
	"net/http"
	"strconv"
)

// CodeRateLimited is the GraphQL error code of rejected requests.
const CodeRateLimited = "RATE_LIMITED"

const limitedBody = `{"errors":[{"message":"too many requests","extensions":{"code":"` + CodeRateLimited + `"}}]}` + "\n"

// Middleware rejects requests over the client's limit with 429 and a
// GraphQL error body. A nil limiter passes every request through.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, retry := l.Allow(l.ClientIP(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Burst()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(limitedBody))
		})
	}
}
