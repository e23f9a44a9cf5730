// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes wires the vault's HTTP surface onto a gin engine.
package routes

import (
	"github.com/AleutianAI/AleutianVault/pkg/extensions"
	"github.com/AleutianAI/AleutianVault/services/vault/handlers"
	"github.com/AleutianAI/AleutianVault/services/vault/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers every endpoint on the router.
//
// /health and /metrics sit outside the authenticated group so probes
// and scrapers need no credentials. Everything under /v1 runs through
// authentication and actor resolution; mutating endpoints additionally
// pass the rate limiter, and the two privileged endpoints (yield
// injection, minting) pass the operator gate.
//
// gate may be nil (operator endpoints answer 503) and limiter may be
// nil (no rate limiting), which keeps test and local wiring small.
func SetupRoutes(router *gin.Engine, h *handlers.Handlers, opts extensions.ServiceOptions,
	gate *middleware.OperatorGate, limiter *middleware.RateLimiter) {

	router.GET("/health", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(opts.AuthProvider))
	v1.Use(middleware.ActorMiddleware())
	{
		v1.GET("/vault/stats", h.HandleStats)
		v1.GET("/vault/holders/:addr", h.HandleHolder)
		v1.GET("/vault/preview/deposit", h.HandlePreviewDeposit)
		v1.GET("/vault/preview/redeem", h.HandlePreviewRedeem)
		v1.GET("/vault/events", h.HandleEvents)
		v1.GET("/token/balances/:addr", h.HandleBalance)
		v1.GET("/events/ws", h.HandleEventsWS)

		// Value-moving endpoints: rate limited, operator ones gated.
		writes := v1.Group("")
		if limiter != nil {
			writes.Use(limiter.Middleware())
		}
		{
			writes.POST("/vault/deposit", h.HandleDeposit)
			writes.POST("/vault/withdraw", h.HandleWithdraw)
			writes.POST("/vault/redeem", h.HandleRedeem)
			writes.POST("/vault/approve", h.HandleApproveShares)
			writes.POST("/vault/yield", middleware.RequireOperator(gate), h.HandleYield)
			writes.POST("/token/mint", middleware.RequireOperator(gate), h.HandleMint)
			writes.POST("/token/transfer", h.HandleTransfer)
			writes.POST("/token/approve", h.HandleTokenApprove)
		}
	}
}
