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
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/AleutianAI/AleutianVault/pkg/extensions"
	"github.com/AleutianAI/AleutianVault/services/vault/datatypes"
	"github.com/awnumar/memguard"
	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"golang.org/x/sys/unix"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MinMlockLimitKB is the minimum mlock limit required for the
	// operator token enclave, in kilobytes. The enclave itself is tiny;
	// the headroom covers memguard's canary and session-key pages.
	MinMlockLimitKB = 64

	// insecureKeysEnv, when set to "true", allows the operator token to
	// be held in ordinary memory on systems whose mlock limit is too
	// low for a locked enclave.
	insecureKeysEnv = "VAULT_INSECURE_KEYS"
)

// =============================================================================
// Package Variables
// =============================================================================

var (
	// memguardInitOnce ensures memguard initialization happens only once.
	memguardInitOnce sync.Once

	// mlockSufficient is set during initialization to indicate if secure memory is available.
	mlockSufficient bool

	// currentMlockLimitKB stores the current mlock limit for logging.
	currentMlockLimitKB int64
)

// =============================================================================
// Operator Gate
// =============================================================================

// OperatorGate verifies the shared operator token guarding privileged
// endpoints (yield injection, minting).
//
// # Description
//
// The token is read from a file at construction and sealed into a
// memguard enclave so the plaintext never sits in pageable memory
// between verifications. Watch re-reads the file on filesystem change,
// so tokens rotate without a restart. On systems whose mlock limit is
// too low for locked buffers, setting VAULT_INSECURE_KEYS=true degrades
// to plain memory with a logged warning.
//
// # Thread Safety
//
// Safe for concurrent use. Verify may race with a rotation; it sees
// either the old or the new token, never a torn value.
type OperatorGate struct {
	mu       sync.RWMutex
	enclave  *memguard.Enclave // nil in insecure mode
	token    []byte            // only populated in insecure mode
	insecure bool
	path     string
	watcher  *fsnotify.Watcher
}

// NewOperatorGate creates a gate over the token stored at path.
//
// # Description
//
// Initializes memguard (once per process), checks the mlock limit, and
// loads the token. When the limit is insufficient the gate refuses to
// start unless VAULT_INSECURE_KEYS=true, in which case it holds the
// token in ordinary memory and logs a security warning.
//
// # Inputs
//
//   - path: File containing the operator token. Surrounding whitespace
//     is stripped; the file must not be empty.
//
// # Outputs
//
//   - *OperatorGate: Ready-to-use gate. Call Watch in a goroutine to
//     enable rotation, and Close on shutdown.
//   - error: Non-nil if the token cannot be read or secure memory is
//     unavailable without the insecure override.
func NewOperatorGate(path string) (*OperatorGate, error) {
	initMemguard()

	insecure := false
	if !mlockSufficient {
		if os.Getenv(insecureKeysEnv) != "true" {
			return nil, fmt.Errorf(
				"mlock limit insufficient for operator enclave: have %d KB, need %d KB. "+
					"Raise the limit or set %s=true",
				currentMlockLimitKB, MinMlockLimitKB, insecureKeysEnv,
			)
		}
		insecure = true
		slog.Warn("SECURITY: operator token held in plain memory - mlock limit insufficient",
			"current_limit_kb", currentMlockLimitKB,
			"required_kb", MinMlockLimitKB,
			"env_override", insecureKeysEnv+"=true",
		)
	}

	g := &OperatorGate{path: path, insecure: insecure}
	if err := g.load(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("Operator token rotation disabled", "error", err)
		return g, nil
	}
	// Watch the directory, not the file: secret managers rotate by
	// writing a new file and renaming it over the old one, which drops
	// a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		slog.Warn("Operator token rotation disabled",
			"dir", filepath.Dir(path),
			"error", err)
		_ = watcher.Close()
		return g, nil
	}
	g.watcher = watcher

	return g, nil
}

// Watch re-loads the token whenever its file changes.
//
// # Description
//
// Blocks until the context is cancelled or the watcher closes. Should
// be run in a goroutine. A failed reload keeps the previous token so a
// half-written rotation cannot lock operators out.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//
// # Examples
//
//	gate, _ := middleware.NewOperatorGate(cfg.OperatorTokenFile)
//	go gate.Watch(ctx)
func (g *OperatorGate) Watch(ctx context.Context) {
	if g.watcher == nil {
		return
	}

	base := filepath.Base(g.path)
	for {
		select {
		case event, ok := <-g.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := g.load(); err != nil {
				slog.Error("Operator token reload failed, keeping previous token",
					"path", g.path,
					"error", err)
				continue
			}
			slog.Info("Operator token rotated", "path", g.path)

		case err, ok := <-g.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Operator token watcher error", "error", err)

		case <-ctx.Done():
			slog.Debug("Operator token watcher stopping")
			return
		}
	}
}

// Verify checks a presented token against the stored one.
//
// # Description
//
// Comparison is constant-time. Returns extensions.ErrUnauthorized on
// mismatch so callers can map it to an HTTP status with errors.Is.
//
// # Inputs
//
//   - presented: Token from the request's Authorization header.
//
// # Outputs
//
//   - error: Nil on match; extensions.ErrUnauthorized on mismatch;
//     other errors if the enclave cannot be opened.
func (g *OperatorGate) Verify(presented string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.insecure {
		if subtle.ConstantTimeCompare(g.token, []byte(presented)) == 1 {
			return nil
		}
		return extensions.ErrUnauthorized
	}

	if g.enclave == nil {
		return errors.New("operator token not loaded")
	}
	buf, err := g.enclave.Open()
	if err != nil {
		return fmt.Errorf("opening operator enclave: %w", err)
	}
	defer buf.Destroy()

	if subtle.ConstantTimeCompare(buf.Bytes(), []byte(presented)) == 1 {
		return nil
	}
	return extensions.ErrUnauthorized
}

// Close stops the rotation watcher. Safe to call multiple times.
func (g *OperatorGate) Close() error {
	if g.watcher == nil {
		return nil
	}
	return g.watcher.Close()
}

// load reads the token file and seals it into the enclave (or plain
// memory in insecure mode). memguard wipes the source bytes once the
// enclave owns them.
func (g *OperatorGate) load() error {
	raw, err := os.ReadFile(g.path)
	if err != nil {
		return fmt.Errorf("reading operator token: %w", err)
	}
	tok := bytes.TrimSpace(raw)
	if len(tok) == 0 {
		return fmt.Errorf("operator token file %s is empty", g.path)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.insecure {
		g.token = tok
		return nil
	}
	g.enclave = memguard.NewEnclave(tok)
	return nil
}

// =============================================================================
// Operator Middleware
// =============================================================================

// RequireOperator creates a Gin middleware that admits only requests
// bearing the operator token.
//
// # Description
//
// Reads the bearer token from the Authorization header and verifies it
// against the gate. Runs after AuthMiddleware on operator routes, so on
// those routes the bearer token is the operator token.
//
// # Inputs
//
//   - gate: Gate to verify against. May be nil when no token file is
//     configured, in which case operator endpoints answer 503.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware function ready for use with Gin
//
// # Examples
//
//	v1.POST("/vault/yield", middleware.RequireOperator(gate), h.HandleYield)
func RequireOperator(gate *OperatorGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if gate == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{
				Error: "operator endpoints are not configured",
				Code:  "OPERATOR_DISABLED",
			})
			return
		}

		token := extractBearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, datatypes.ErrorResponse{
				Error: "operator token required",
				Code:  "OPERATOR_REQUIRED",
			})
			return
		}

		if err := gate.Verify(token); err != nil {
			if errors.Is(err, extensions.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusForbidden, datatypes.ErrorResponse{
					Error: "operator token rejected",
					Code:  "OPERATOR_REQUIRED",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, datatypes.ErrorResponse{
				Error: "operator verification failed",
				Code:  "INTERNAL",
			})
			return
		}

		c.Next()
	}
}

// =============================================================================
// Package Initialization Functions
// =============================================================================

// initMemguard initializes the memguard library and checks mlock limits.
//
// Performs one-time initialization and validates that the system has
// sufficient mlock limits for locked buffers. Called automatically when
// creating the first OperatorGate.
func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		if mlockSufficient {
			slog.Info("Secure memory initialized",
				"mlock_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB,
				"status", "sufficient",
			)
		}
	})
}

// checkMlockLimit checks if the system has sufficient mlock limits.
//
// Queries the kernel for the current mlock resource limit and compares
// it against the minimum required for the operator enclave. Returns the
// current limit in kilobytes (-1 if unlimited or unknown).
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}

	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}

	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}
