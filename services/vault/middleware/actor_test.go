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
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/AleutianVault/pkg/extensions"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// ActorMiddleware Tests
// =============================================================================

func TestActorMiddleware_HeaderWins(t *testing.T) {
	provider := &mockAuthProvider{authInfo: &extensions.AuthInfo{UserID: "local-user"}}

	var actor string
	router := gin.New()
	router.Use(AuthMiddleware(provider))
	router.Use(ActorMiddleware())
	router.GET("/test", func(c *gin.Context) {
		actor = GetActor(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(ActorHeader, "alice.trading")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice.trading", actor)
}

func TestActorMiddleware_SanitizesHeader(t *testing.T) {
	var actor string
	router := gin.New()
	router.Use(ActorMiddleware())
	router.GET("/test", func(c *gin.Context) {
		actor = GetActor(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(ActorHeader, "  Alice ")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", actor)
}

func TestActorMiddleware_FallsBackToUserID(t *testing.T) {
	provider := &mockAuthProvider{authInfo: &extensions.AuthInfo{UserID: "local-user"}}

	var actor string
	router := gin.New()
	router.Use(AuthMiddleware(provider))
	router.Use(ActorMiddleware())
	router.GET("/test", func(c *gin.Context) {
		actor = GetActor(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "local-user", actor)
}

func TestActorMiddleware_RejectsMalformedHeader(t *testing.T) {
	router := gin.New()
	router.Use(ActorMiddleware())
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(ActorHeader, "no spaces allowed")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_ACTOR")
}

func TestActorMiddleware_InvalidUserIDLeavesActorUnset(t *testing.T) {
	// An enterprise identity like an email is not a ledger address.
	// The request proceeds; only handlers that need an actor reject it.
	provider := &mockAuthProvider{authInfo: &extensions.AuthInfo{UserID: "alice@corp.example"}}

	var actor string
	router := gin.New()
	router.Use(AuthMiddleware(provider))
	router.Use(ActorMiddleware())
	router.GET("/test", func(c *gin.Context) {
		actor = GetActor(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, actor)
}

// =============================================================================
// GetActor Tests
// =============================================================================

func TestGetActor_NotSet(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Empty(t, GetActor(c))
}

func TestGetActor_WrongType(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(actorKey, 42)

	assert.Empty(t, GetActor(c))
}
