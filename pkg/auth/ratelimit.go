package auth

import (
	"context"
	"net/http"
)

// LimiterStore answers whether an actor may consume tokens from its bucket.
type LimiterStore interface {
	Allow(ctx context.Context, actorID string, policy LimitPolicy, cost int) (bool, error)
}

// LimitPolicy is a token-bucket rate limit.
type LimitPolicy struct {
	RPM   int
	Burst int
}

// RateLimitMiddleware enforces per-actor rate limiting at the HTTP layer.
// It extracts the actor ID from the authenticated Principal (falls back to
// remote IP). On rate limit exceeded, it returns 429 with a Retry-After
// header.
func RateLimitMiddleware(store LimiterStore, policy LimitPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Fail open if no store configured (dev mode) or the
			// limit is unset
			if store == nil || policy.RPM <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			actorID := r.RemoteAddr
			if principal, err := GetPrincipal(r.Context()); err == nil {
				actorID = principal.GetID()
			}

			allowed, err := store.Allow(r.Context(), actorID, policy, 1)
			if err != nil {
				// Fail open on limiter errors to avoid blocking all traffic
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				retryAfter := 60 / policy.RPM
				if retryAfter < 1 {
					retryAfter = 1
				}
				writeTooManyRequests(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
