// Package middleware provides HTTP middleware for the reelquery answer server.
//
// Available middleware:
//   - RateLimiter: per-client token bucket limiting of /v1/answer calls
//   - Logging: request logging with status capture
//
// Usage:
//
//	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
//	defer rl.Stop()
//	handler = middleware.Logging(rl.Middleware(handler), log)
package middleware
