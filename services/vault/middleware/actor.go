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

	"github.com/AleutianAI/AleutianVault/pkg/validation"
	"github.com/AleutianAI/AleutianVault/services/vault/datatypes"
	"github.com/gin-gonic/gin"
)

// ActorHeader names the ledger address a request acts as.
//
// Identity (who is calling) and ledger address (whose balance moves) are
// separate concerns: the AuthProvider establishes identity, this header
// selects the address. Without the header the authenticated UserID is
// used, which keeps single-address local setups header-free.
const ActorHeader = "X-Vault-Actor"

// actorKey is the context key for the resolved acting address.
const actorKey = "aleutian_vault_actor"

// ActorMiddleware resolves the ledger address acting on a request.
//
// # Description
//
// Reads the X-Vault-Actor header, sanitizes it, and stores it in the
// Gin context for handlers to retrieve via GetActor. When the header is
// absent, falls back to the authenticated UserID if it forms a valid
// ledger address. Requests carrying a malformed header are rejected
// before any handler runs; a UserID that is not a valid address is not
// an error here — the handler rejects the request only if it actually
// needs an actor.
//
// # Inputs
//
// None. Reads request state from the Gin context.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware function ready for use with Gin
//
// # Examples
//
//	v1 := router.Group("/v1")
//	v1.Use(middleware.AuthMiddleware(opts.AuthProvider))
//	v1.Use(middleware.ActorMiddleware())
//
// # Limitations
//
//   - Does not verify the caller is entitled to act as the named
//     address; ownership checks belong to the deployment's
//     AuthzProvider.
//
// # Assumptions
//
//   - Runs after AuthMiddleware so AuthInfo is available for fallback
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(ActorHeader)
		if header == "" {
			if info := GetAuthInfo(c); info != nil {
				if actor, err := validation.SanitizeAddress(info.UserID); err == nil {
					c.Set(actorKey, actor)
				}
			}
			c.Next()
			return
		}

		actor, err := validation.SanitizeAddress(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error: "invalid actor address: " + err.Error(),
				Code:  "INVALID_ACTOR",
			})
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// GetActor retrieves the acting ledger address from the Gin context.
//
// # Description
//
// Called by handlers to learn which address a mutating operation acts
// as. Returns empty string when no actor could be resolved; handlers
// that require an actor must treat that as a client error.
//
// # Inputs
//
//   - c: Gin context. Must not be nil.
//
// # Outputs
//
//   - string: Sanitized acting address, or empty string
//
// # Examples
//
//	actor := middleware.GetActor(c)
//	if actor == "" {
//	    c.JSON(400, datatypes.ErrorResponse{Error: "no actor", Code: "MISSING_ACTOR"})
//	    return
//	}
//
// # Thread Safety
//
// Safe to call concurrently (Gin context is request-scoped).
func GetActor(c *gin.Context) string {
	if v, exists := c.Get(actorKey); exists {
		if actor, ok := v.(string); ok {
			return actor
		}
	}
	return ""
}
