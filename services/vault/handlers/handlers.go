// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers exposes the vault service over HTTP.
//
// Handlers translate between the wire contract (decimal-string
// quantities, ErrorResponse bodies with stable codes) and the service
// layer. They own no ledger state: every mutation goes through the
// VaultService, which serializes transitions. Privileged endpoints
// additionally consult the deployment's AuthzProvider and capture
// request/response pairs for the forensic audit trail.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianVault/pkg/extensions"
	"github.com/AleutianAI/AleutianVault/pkg/validation"
	"github.com/AleutianAI/AleutianVault/services/vault/datatypes"
	"github.com/AleutianAI/AleutianVault/services/vault/ledger"
	"github.com/AleutianAI/AleutianVault/services/vault/middleware"
	"github.com/AleutianAI/AleutianVault/services/vault/observability"
	"github.com/AleutianAI/AleutianVault/services/vault/services"
	"github.com/AleutianAI/AleutianVault/services/vault/token"
	sdkmath "cosmossdk.io/math"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ServiceVersion is the vault service version.
const ServiceVersion = "0.1.0"

const (
	// defaultEventsLimit is how many journal entries GET /events returns
	// when the client does not ask for a specific page size.
	defaultEventsLimit = 50

	// maxEventsLimit caps one journal page. Larger requests are clamped,
	// not rejected.
	maxEventsLimit = 500
)

// Handlers contains the HTTP handlers for the vault service.
type Handlers struct {
	svc  *services.VaultService
	opts extensions.ServiceOptions
}

// NewHandlers creates handlers for the given service with default
// (no-op) extension points.
func NewHandlers(svc *services.VaultService) *Handlers {
	return &Handlers{svc: svc, opts: extensions.DefaultOptions()}
}

// WithOptions sets the extension points consulted by privileged
// handlers (authorization, audit logging, request capture).
func (h *Handlers) WithOptions(opts extensions.ServiceOptions) *Handlers {
	h.opts = opts
	return h
}

// HandleHealth handles GET /health.
//
// Description:
//
//	Returns the health status of the service. Always returns 200 if
//	running.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, datatypes.HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
		Denom:   h.svc.Denom(),
	})
}

// =============================================================================
// Vault Transition Handlers
// =============================================================================

// HandleDeposit handles POST /v1/vault/deposit.
//
// Description:
//
//	Pulls assets from the acting address into the pool and mints shares
//	to the receiver (the actor itself when no receiver is named). The
//	actor must have approved the vault to pull the asset amount.
//
// Request Body:
//
//	DepositRequest
//
// Response:
//
//	200 OK: ledger.Receipt
//	400 Bad Request: Validation error
//	403 Forbidden: Transition blocked by compliance guard
//	422 Unprocessable Entity: Insufficient balance or allowance
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleDeposit(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeposit")
	start := time.Now()

	actor, ok := requireActor(c, logger)
	if !ok {
		return
	}

	auditID := h.captureRequest(c, requestID, actor)

	var req datatypes.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	assets, err := parseAmount(req.Assets)
	if err != nil {
		h.rejectTransition(c, logger, "deposit", auditID, start, err)
		return
	}
	receiver, err := parseOptionalAddress(req.Receiver)
	if err != nil {
		logger.Warn("Invalid receiver address", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_ADDRESS",
		})
		return
	}

	logger.Info("Processing deposit", "actor", actor, "assets", req.Assets)

	rcpt, err := h.svc.Deposit(c.Request.Context(), actor, receiver, assets)
	if err != nil {
		h.rejectTransition(c, logger, "deposit", auditID, start, err)
		return
	}

	logger.Info("Deposit committed",
		"seq", rcpt.Seq,
		"receiver", rcpt.Receiver,
		"assets", rcpt.Assets.String(),
		"shares", rcpt.Shares.String())

	recordOperation("deposit", "ok", start)
	h.captureResponse(c, auditID, http.StatusOK, rcpt)
	c.JSON(http.StatusOK, rcpt)
}

// HandleWithdraw handles POST /v1/vault/withdraw.
//
// Description:
//
//	Pays an exact asset amount to the receiver by burning shares from
//	the owner's position. Receiver and owner default to the actor.
//	Withdrawing from another owner's position spends share allowance.
//
// Request Body:
//
//	WithdrawRequest
//
// Response:
//
//	200 OK: ledger.Receipt
//	400 Bad Request: Validation error
//	403 Forbidden: Transition blocked or receiver risk-blocked
//	422 Unprocessable Entity: Zero claim, insufficient shares or allowance
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleWithdraw(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleWithdraw")
	start := time.Now()

	actor, ok := requireActor(c, logger)
	if !ok {
		return
	}

	auditID := h.captureRequest(c, requestID, actor)

	var req datatypes.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	assets, err := parseAmount(req.Assets)
	if err != nil {
		h.rejectTransition(c, logger, "withdraw", auditID, start, err)
		return
	}
	receiver, owner, err := parseExitAddresses(req.Receiver, req.Owner)
	if err != nil {
		logger.Warn("Invalid address in request", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_ADDRESS",
		})
		return
	}

	logger.Info("Processing withdrawal",
		"actor", actor,
		"owner", owner,
		"assets", req.Assets)

	rcpt, err := h.svc.Withdraw(c.Request.Context(), actor, receiver, owner, assets)
	if err != nil {
		h.rejectTransition(c, logger, "withdraw", auditID, start, err)
		return
	}

	logger.Info("Withdrawal committed",
		"seq", rcpt.Seq,
		"owner", rcpt.Owner,
		"assets", rcpt.Assets.String(),
		"shares", rcpt.Shares.String())

	recordOperation("withdraw", "ok", start)
	h.captureResponse(c, auditID, http.StatusOK, rcpt)
	c.JSON(http.StatusOK, rcpt)
}

// HandleRedeem handles POST /v1/vault/redeem.
//
// Description:
//
//	Burns an exact share amount from the owner's position and pays the
//	receiver the shares' current asset value. Receiver and owner
//	default to the actor. Redeeming another owner's shares spends
//	share allowance.
//
// Request Body:
//
//	RedeemRequest
//
// Response:
//
//	200 OK: ledger.Receipt
//	400 Bad Request: Validation error
//	403 Forbidden: Transition blocked or receiver risk-blocked
//	422 Unprocessable Entity: Zero payout, insufficient shares or allowance
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleRedeem(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRedeem")
	start := time.Now()

	actor, ok := requireActor(c, logger)
	if !ok {
		return
	}

	auditID := h.captureRequest(c, requestID, actor)

	var req datatypes.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	shares, err := parseAmount(req.Shares)
	if err != nil {
		h.rejectTransition(c, logger, "redeem", auditID, start, err)
		return
	}
	receiver, owner, err := parseExitAddresses(req.Receiver, req.Owner)
	if err != nil {
		logger.Warn("Invalid address in request", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_ADDRESS",
		})
		return
	}

	logger.Info("Processing redemption",
		"actor", actor,
		"owner", owner,
		"shares", req.Shares)

	rcpt, err := h.svc.Redeem(c.Request.Context(), actor, receiver, owner, shares)
	if err != nil {
		h.rejectTransition(c, logger, "redeem", auditID, start, err)
		return
	}

	logger.Info("Redemption committed",
		"seq", rcpt.Seq,
		"owner", rcpt.Owner,
		"assets", rcpt.Assets.String(),
		"shares", rcpt.Shares.String())

	recordOperation("redeem", "ok", start)
	h.captureResponse(c, auditID, http.StatusOK, rcpt)
	c.JSON(http.StatusOK, rcpt)
}

// HandleYield handles POST /v1/vault/yield.
//
// Description:
//
//	Credits assets to the pool without minting shares, raising every
//	holder's claim pro rata. The assets are pulled from the acting
//	address, which must have approved the vault. Operator only: the
//	route is gated on the operator token, and the deployment's
//	authorization policy is consulted here.
//
// Request Body:
//
//	YieldRequest
//
// Response:
//
//	200 OK: ledger.Receipt
//	400 Bad Request: Validation error
//	403 Forbidden: Authorization denied or transition blocked
//	422 Unprocessable Entity: Insufficient balance or allowance
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleYield(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleYield")
	start := time.Now()

	actor, ok := requireActor(c, logger)
	if !ok {
		return
	}
	if !h.authorizeOperator(c, logger, "inject_yield", "vault", h.svc.VaultAddress()) {
		return
	}

	auditID := h.captureRequest(c, requestID, actor)

	var req datatypes.YieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.rejectTransition(c, logger, "yield", auditID, start, err)
		return
	}

	logger.Info("Processing yield injection", "actor", actor, "amount", req.Amount)

	rcpt, err := h.svc.InjectYield(c.Request.Context(), actor, amount)
	if err != nil {
		h.rejectTransition(c, logger, "yield", auditID, start, err)
		return
	}

	logger.Info("Yield injected",
		"seq", rcpt.Seq,
		"assets", rcpt.Assets.String(),
		"total_assets", rcpt.TotalAssets.String())

	recordOperation("yield", "ok", start)
	h.captureResponse(c, auditID, http.StatusOK, rcpt)
	c.JSON(http.StatusOK, rcpt)
}

// HandleApproveShares handles POST /v1/vault/approve.
//
// Description:
//
//	Grants a spender the right to burn the actor's shares via withdraw
//	or redeem. The amount is absolute (not additive); zero revokes.
//
// Request Body:
//
//	ApproveSharesRequest
//
// Response:
//
//	200 OK: AckResponse
//	400 Bad Request: Validation error
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleApproveShares(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleApproveShares")
	start := time.Now()

	actor, ok := requireActor(c, logger)
	if !ok {
		return
	}

	auditID := h.captureRequest(c, requestID, actor)

	var req datatypes.ApproveSharesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	shares, err := parseAmount(req.Shares)
	if err != nil {
		h.rejectTransition(c, logger, "approve_shares", auditID, start, err)
		return
	}
	spender, err := validation.SanitizeAddress(req.Spender)
	if err != nil {
		logger.Warn("Invalid spender address", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_ADDRESS",
		})
		return
	}

	if err := h.svc.ApproveShares(c.Request.Context(), actor, spender, shares); err != nil {
		h.rejectTransition(c, logger, "approve_shares", auditID, start, err)
		return
	}

	logger.Info("Share allowance set", "owner", actor, "spender", spender, "shares", req.Shares)

	recordOperation("approve_shares", "ok", start)
	resp := datatypes.AckResponse{Status: "ok"}
	h.captureResponse(c, auditID, http.StatusOK, resp)
	c.JSON(http.StatusOK, resp)
}

// =============================================================================
// Vault Read Handlers
// =============================================================================

// HandleStats handles GET /v1/vault/stats.
//
// Description:
//
//	Returns pool totals, the current exchange rate, the holder count,
//	and the last journaled sequence number.
//
// Response:
//
//	200 OK: StatsResponse
func (h *Handlers) HandleStats(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, h.svc.Stats(c.Request.Context()))
}

// HandleHolder handles GET /v1/vault/holders/:addr.
//
// Description:
//
//	Returns one holder's position: shares, principal, current claim,
//	accrued yield, and redemption limits. Unknown addresses return a
//	zeroed position rather than 404 so clients need not special-case
//	addresses that have never deposited.
//
// Response:
//
//	200 OK: HolderResponse
//	400 Bad Request: Malformed address
func (h *Handlers) HandleHolder(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleHolder")

	addr, err := validation.SanitizeAddress(c.Param("addr"))
	if err != nil {
		logger.Warn("Invalid holder address", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_ADDRESS",
		})
		return
	}

	c.JSON(http.StatusOK, h.svc.Holder(c.Request.Context(), addr))
}

// HandlePreviewDeposit handles GET /v1/vault/preview/deposit?assets=N.
//
// Description:
//
//	Quotes the shares a deposit would mint at the current exchange
//	rate without committing anything. The quote is advisory: the rate
//	can move between preview and deposit.
//
// Response:
//
//	200 OK: PreviewDepositResponse
//	400 Bad Request: Malformed or out-of-range amount
//	422 Unprocessable Entity: Pool in a state that cannot price the deposit
func (h *Handlers) HandlePreviewDeposit(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePreviewDeposit")

	assets, err := parseAmount(c.Query("assets"))
	if err != nil {
		logger.Warn("Invalid preview amount", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_AMOUNT",
		})
		return
	}

	resp, err := h.svc.PreviewDeposit(c.Request.Context(), assets)
	if err != nil {
		statusCode, errCode := transitionStatus(err)
		logger.Warn("Preview rejected", "code", errCode, "error", err)
		c.JSON(statusCode, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandlePreviewRedeem handles GET /v1/vault/preview/redeem?shares=N.
//
// Description:
//
//	Quotes the assets a redemption would pay at the current exchange
//	rate without committing anything.
//
// Response:
//
//	200 OK: PreviewRedeemResponse
//	400 Bad Request: Malformed or out-of-range amount
//	422 Unprocessable Entity: Empty pool or zero payout
func (h *Handlers) HandlePreviewRedeem(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePreviewRedeem")

	shares, err := parseAmount(c.Query("shares"))
	if err != nil {
		logger.Warn("Invalid preview amount", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_AMOUNT",
		})
		return
	}

	resp, err := h.svc.PreviewRedeem(c.Request.Context(), shares)
	if err != nil {
		statusCode, errCode := transitionStatus(err)
		logger.Warn("Preview rejected", "code", errCode, "error", err)
		c.JSON(statusCode, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleEvents handles GET /v1/vault/events?limit=N.
//
// Description:
//
//	Returns the most recent journaled receipts, newest first. The
//	limit defaults to 50 and is clamped to 500.
//
// Response:
//
//	200 OK: EventsResponse
//	400 Bad Request: Malformed limit
//	500 Internal Server Error: Journal scan failure
func (h *Handlers) HandleEvents(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleEvents")

	limit := defaultEventsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			logger.Warn("Invalid events limit", "limit", raw)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error: "limit must be a positive integer",
				Code:  "INVALID_REQUEST",
			})
			return
		}
		limit = n
	}
	if limit > maxEventsLimit {
		limit = maxEventsLimit
	}

	resp, err := h.svc.Events(c.Request.Context(), limit)
	if err != nil {
		logger.Error("Event scan failed", "error", err)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  "INTERNAL",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// =============================================================================
// Shared Handler Plumbing
// =============================================================================

// requireActor fetches the acting address resolved by the middleware,
// rejecting the request when none is present. A missing actor means
// the client sent no X-Vault-Actor header and the authenticated
// identity is not a usable ledger address.
func requireActor(c *gin.Context, logger *slog.Logger) (string, bool) {
	actor := middleware.GetActor(c)
	if actor == "" {
		logger.Warn("No acting address resolved for mutating request")
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: "no acting address: set the " + middleware.ActorHeader + " header",
			Code:  "MISSING_ACTOR",
		})
		return "", false
	}
	return actor, true
}

// authorizeOperator checks the authenticated identity against the
// deployment's authorization policy for a privileged action. The
// operator token gate runs in middleware before this; here the policy
// provider gets its say and denials land in the audit trail.
func (h *Handlers) authorizeOperator(c *gin.Context, logger *slog.Logger, action, resourceType, resourceID string) bool {
	ctx := c.Request.Context()
	authInfo := middleware.GetAuthInfo(c)
	userID := "anonymous"
	if authInfo != nil {
		userID = authInfo.UserID
	}

	err := h.opts.AuthzProvider.Authorize(ctx, extensions.AuthzRequest{
		User:         authInfo,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	})
	if err == nil {
		return true
	}

	logger.Warn("Authorization denied", "action", action, "user", userID, "error", err)
	_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
		EventType:    "authz.denied",
		Timestamp:    time.Now().UTC(),
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Outcome:      "denied",
	})
	c.JSON(http.StatusForbidden, datatypes.ErrorResponse{
		Error: "access denied",
		Code:  "UNAUTHORIZED",
	})
	return false
}

// rejectTransition writes the mapped error response, logs it at a
// severity matching fault ownership, and records the operation metric
// under the mapped code.
func (h *Handlers) rejectTransition(c *gin.Context, logger *slog.Logger, op, auditID string, start time.Time, err error) {
	statusCode, errCode := transitionStatus(err)
	if statusCode == http.StatusInternalServerError {
		logger.Error("Operation failed", "op", op, "error", err)
	} else {
		logger.Warn("Operation rejected", "op", op, "code", errCode, "error", err)
	}
	recordOperation(op, errCode, start)
	resp := datatypes.ErrorResponse{Error: err.Error(), Code: errCode}
	h.captureResponse(c, auditID, statusCode, resp)
	c.JSON(statusCode, resp)
}

// transitionStatus maps a ledger or screening error onto the wire
// contract. Client-correctable input maps to 400, value-state
// conflicts to 422, screening and policy denials to 403. Anything
// unrecognized is a 500.
func transitionStatus(err error) (int, string) {
	statusCode := http.StatusInternalServerError
	errCode := "INTERNAL"

	if errors.Is(err, ledger.ErrInvalidAmount) {
		statusCode = http.StatusBadRequest
		errCode = "INVALID_AMOUNT"
	} else if errors.Is(err, ledger.ErrAmountOverflow) {
		statusCode = http.StatusBadRequest
		errCode = "AMOUNT_OVERFLOW"
	} else if errors.Is(err, ledger.ErrZeroClaimWithdrawal) {
		statusCode = http.StatusUnprocessableEntity
		errCode = "ZERO_CLAIM"
	} else if errors.Is(err, ledger.ErrInsufficientShares) {
		statusCode = http.StatusUnprocessableEntity
		errCode = "INSUFFICIENT_SHARES"
	} else if errors.Is(err, ledger.ErrInsufficientShareAllowance) {
		statusCode = http.StatusUnprocessableEntity
		errCode = "INSUFFICIENT_SHARE_ALLOWANCE"
	} else if errors.Is(err, token.ErrInsufficientBalance) {
		statusCode = http.StatusUnprocessableEntity
		errCode = "INSUFFICIENT_BALANCE"
	} else if errors.Is(err, token.ErrInsufficientAllowance) {
		statusCode = http.StatusUnprocessableEntity
		errCode = "INSUFFICIENT_ALLOWANCE"
	} else if errors.Is(err, ledger.ErrDivisionByZero) {
		statusCode = http.StatusUnprocessableEntity
		errCode = "EMPTY_POOL"
	} else if errors.Is(err, extensions.ErrTransitionBlocked) {
		statusCode = http.StatusForbidden
		errCode = "TRANSITION_BLOCKED"
	} else if errors.Is(err, extensions.ErrUnauthorized) {
		statusCode = http.StatusForbidden
		errCode = "UNAUTHORIZED"
	}

	return statusCode, errCode
}

// recordOperation feeds the prometheus operation counter and duration
// histogram when metrics are initialized.
func recordOperation(op, code string, start time.Time) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordOperation(op, code, time.Since(start).Seconds())
	}
}

// parseAmount converts a decimal-string quantity from the wire into an
// Int. Malformed input folds into ErrInvalidAmount so it maps onto the
// same wire code as a ledger rejection.
func parseAmount(s string) (sdkmath.Int, error) {
	clean, err := validation.SanitizeAmountString(s)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%v: %w", err, ledger.ErrInvalidAmount)
	}
	n, ok := sdkmath.NewIntFromString(clean)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("unparseable amount %q: %w", s, ledger.ErrInvalidAmount)
	}
	return n, nil
}

// parseOptionalAddress sanitizes an address field that may be empty.
// Empty stays empty; the service substitutes its own default.
func parseOptionalAddress(addr string) (string, error) {
	if addr == "" {
		return "", nil
	}
	return validation.SanitizeAddress(addr)
}

// parseExitAddresses sanitizes the receiver/owner pair shared by the
// withdraw and redeem request shapes.
func parseExitAddresses(receiver, owner string) (string, string, error) {
	r, err := parseOptionalAddress(receiver)
	if err != nil {
		return "", "", err
	}
	o, err := parseOptionalAddress(owner)
	if err != nil {
		return "", "", err
	}
	return r, o, nil
}

// captureRequest snapshots the raw request for the forensic audit
// trail and reinstalls the body so binding still works. Returns the
// audit ID for the paired captureResponse call, or empty string when
// capture is unavailable. Must run before ShouldBindJSON.
func (h *Handlers) captureRequest(c *gin.Context, requestID, actor string) string {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		slog.Warn("Could not read request body for capture", "error", err)
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(rawBody))

	userID := "anonymous"
	if info := middleware.GetAuthInfo(c); info != nil {
		userID = info.UserID
	}

	auditID, err := h.opts.RequestAuditor.CaptureRequest(c.Request.Context(), &extensions.AuditableRequest{
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		Headers:   extractHeaders(c),
		Body:      rawBody,
		UserID:    userID,
		Actor:     actor,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("Request capture failed", "error", err)
		return ""
	}
	return auditID
}

// captureResponse records the response half of a captured request.
// Best-effort: failures are already logged by the auditor contract and
// never affect the client response.
func (h *Handlers) captureResponse(c *gin.Context, auditID string, status int, body any) {
	if auditID == "" {
		return
	}
	raw, err := json.Marshal(body)
	if err != nil {
		raw = nil
	}
	_ = h.opts.RequestAuditor.CaptureResponse(c.Request.Context(), auditID, &extensions.AuditableResponse{
		StatusCode: status,
		Headers:    extensions.HTTPHeaders{"Content-Type": "application/json"},
		Body:       raw,
		Timestamp:  time.Now().UTC(),
	})
}

// extractHeaders copies request headers for capture, redacting
// credentials so bearer tokens never reach the audit trail.
func extractHeaders(c *gin.Context) extensions.HTTPHeaders {
	headers := extensions.HTTPHeaders{}
	for name, values := range c.Request.Header {
		if len(values) == 0 {
			continue
		}
		if strings.EqualFold(name, "Authorization") {
			headers[name] = "[REDACTED]"
			continue
		}
		headers[name] = values[0]
	}
	return headers
}

// getOrCreateRequestID returns the request ID from the X-Request-ID
// header, or generates a new UUID if not present. The ID is echoed on
// the response so clients can correlate.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
