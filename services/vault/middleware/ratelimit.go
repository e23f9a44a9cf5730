// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianVault/services/vault/datatypes"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientIdleTTL is how long an address bucket survives without traffic
// before the sweep drops it.
const clientIdleTTL = 3 * time.Minute

// clientLimiter pairs one client's token bucket with its last use so
// idle entries can be evicted.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-client token bucket to incoming requests.
//
// # Description
//
// Each client IP gets its own bucket refilling at rps tokens per second
// with the given burst capacity. Buckets idle past clientIdleTTL are
// swept on the next request, bounding memory under churning client
// populations.
//
// # Thread Safety
//
// Safe for concurrent use.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
	rps       rate.Limit
	burst     int
}

// NewRateLimiter creates a limiter refilling at rps tokens per second.
//
// # Inputs
//
//   - rps: Sustained requests per second per client. Values <= 0
//     disable limiting (every request is admitted).
//   - burst: Bucket capacity. Clamped to at least 1 when limiting is
//     active.
//
// # Outputs
//
//   - *RateLimiter: Ready-to-use limiter.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clients:   make(map[string]*clientLimiter),
		lastSweep: time.Now(),
		rps:       limit,
		burst:     burst,
	}
}

// Middleware returns the Gin middleware enforcing the limit.
//
// # Description
//
// Requests over the limit are rejected with 429 and code RATE_LIMITED.
// Clients are keyed by IP as reported by Gin (respecting trusted proxy
// configuration).
//
// # Examples
//
//	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
//	v1.Use(limiter.Middleware())
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, datatypes.ErrorResponse{
				Error: "rate limit exceeded",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// allow takes one token from the client's bucket, creating it on first
// sight and sweeping idle buckets opportunistically.
func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > clientIdleTTL {
		for k, cl := range rl.clients {
			if now.Sub(cl.lastSeen) > clientIdleTTL {
				delete(rl.clients, k)
			}
		}
		rl.lastSweep = now
	}

	cl, ok := rl.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.Allow()
}
