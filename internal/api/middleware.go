/**
 * @description
 * This file contains custom middleware for the HTTP router: bearer token
 * authentication and distributed rate limiting. The JWT subject claim is the
 * caller identity evaluated by the settlement core's authorization rules
 * (operator, owner or whitelisted).
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: JWT parsing and validation.
 */

package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openclearing/settlement-service/internal/app"
	"github.com/openclearing/settlement-service/internal/domain"
)

// CallerContextKey is a custom type for the context key to avoid collisions.
type CallerContextKey string

const callerIdentityKey CallerContextKey = "callerIdentity"

// AuthMiddleware creates a middleware that validates HMAC-signed JWT tokens
// and stores the subject claim as the caller identity.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil {
				http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
				return
			}
			if !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}
			subject, ok := claims["sub"].(string)
			if !ok || strings.TrimSpace(subject) == "" {
				http.Error(w, "Caller identity not found in token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), callerIdentityKey, domain.Identity(subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCallerIdentity retrieves the caller identity from the request context.
// Handlers should use this function to get the authenticated caller.
func GetCallerIdentity(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(callerIdentityKey).(domain.Identity)
	return id, ok
}

// RateLimitMiddleware enforces a per-caller request ceiling over a one minute
// window. When the limiter or Redis is unavailable requests pass through.
func RateLimitMiddleware(limiter *app.RedisRateLimiter, perMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || perMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			subject := "anonymous"
			if caller, ok := GetCallerIdentity(r.Context()); ok {
				subject = string(caller)
			}
			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), "api", subject, perMinute, time.Minute)
			if err != nil {
				log.Printf("level=warn component=api msg=\"rate limiter unavailable; allowing request\" err=%v", err)
				next.ServeHTTP(w, r)
				return
			}
			if count > perMinute {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
