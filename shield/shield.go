// Package shield provides reusable HTTP hardening middleware for the gaia
// host: security headers, JSON body limits, request tracing, per-IP rate
// limiting, and optional bearer-key authentication.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultAPIStack(shield.APIConfig{}) {
//	    r.Use(mw)
//	}
//
// Individual middlewares compose the same way:
//
//	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
//	r.Use(shield.MaxJSONBody(2 << 20))
//	r.Use(shield.TraceID)
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// APIConfig tunes the default middleware stack.
type APIConfig struct {
	// MaxBodyBytes caps JSON request bodies. Default 2 MiB.
	MaxBodyBytes int64
	// KeyHashes holds bcrypt hashes of accepted API keys. Empty disables auth.
	KeyHashes []string
	// RateLimit caps requests per IP per minute on /execute. 0 disables.
	RateLimit int
	// ExcludePrefixes are path prefixes exempt from auth and rate limiting
	// (health checks, websocket upgrades negotiate their own auth).
	ExcludePrefixes []string
}

// DefaultAPIStack returns the standard middleware stack for the gaia host,
// ordered: SecurityHeaders → MaxJSONBody → TraceID → BearerAuth → RateLimiter.
func DefaultAPIStack(cfg APIConfig) []func(http.Handler) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 2 << 20
	}
	stack := []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(cfg.MaxBodyBytes),
		TraceID,
	}
	if len(cfg.KeyHashes) > 0 {
		stack = append(stack, BearerAuth(cfg.KeyHashes, cfg.ExcludePrefixes...))
	}
	if cfg.RateLimit > 0 {
		rl := NewRateLimiter(Rule{MaxRequests: cfg.RateLimit, WindowSeconds: 60}, cfg.ExcludePrefixes...)
		stack = append(stack, rl.Middleware)
	}
	return stack
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
