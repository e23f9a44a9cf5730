// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianVault/pkg/validation"
	"github.com/AleutianAI/AleutianVault/services/vault/datatypes"
	"github.com/gin-gonic/gin"
)

// HandleMint handles POST /v1/token/mint.
//
// Description:
//
//	Creates new asset units and credits them to the named address.
//	Operator only: the route is gated on the operator token, and the
//	deployment's authorization policy is consulted here. Local setups
//	use this as the faucet.
//
// Request Body:
//
//	MintRequest
//
// Response:
//
//	200 OK: AckResponse
//	400 Bad Request: Validation error
//	403 Forbidden: Authorization denied or transition blocked
//	422 Unprocessable Entity: Supply would exceed the ledger bound
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleMint(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleMint")
	start := time.Now()

	actor, ok := requireActor(c, logger)
	if !ok {
		return
	}
	if !h.authorizeOperator(c, logger, "mint", "token", h.svc.Denom()) {
		return
	}

	auditID := h.captureRequest(c, requestID, actor)

	var req datatypes.MintRequest
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
		h.rejectTransition(c, logger, "mint", auditID, start, err)
		return
	}
	to, err := validation.SanitizeAddress(req.To)
	if err != nil {
		logger.Warn("Invalid recipient address", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_ADDRESS",
		})
		return
	}

	logger.Info("Processing mint", "actor", actor, "to", to, "amount", req.Amount)

	if err := h.svc.Mint(c.Request.Context(), actor, to, amount); err != nil {
		h.rejectTransition(c, logger, "mint", auditID, start, err)
		return
	}

	logger.Info("Mint committed", "to", to, "amount", req.Amount)

	recordOperation("mint", "ok", start)
	resp := datatypes.AckResponse{Status: "ok"}
	h.captureResponse(c, auditID, http.StatusOK, resp)
	c.JSON(http.StatusOK, resp)
}

// HandleTransfer handles POST /v1/token/transfer.
//
// Description:
//
//	Moves asset units from the acting address to another address.
//
// Request Body:
//
//	TransferRequest
//
// Response:
//
//	200 OK: AckResponse
//	400 Bad Request: Validation error
//	403 Forbidden: Transition blocked or recipient risk-blocked
//	422 Unprocessable Entity: Insufficient balance
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleTransfer(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTransfer")
	start := time.Now()

	actor, ok := requireActor(c, logger)
	if !ok {
		return
	}

	auditID := h.captureRequest(c, requestID, actor)

	var req datatypes.TransferRequest
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
		h.rejectTransition(c, logger, "transfer", auditID, start, err)
		return
	}
	to, err := validation.SanitizeAddress(req.To)
	if err != nil {
		logger.Warn("Invalid recipient address", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_ADDRESS",
		})
		return
	}

	logger.Info("Processing transfer", "from", actor, "to", to, "amount", req.Amount)

	if err := h.svc.Transfer(c.Request.Context(), actor, to, amount); err != nil {
		h.rejectTransition(c, logger, "transfer", auditID, start, err)
		return
	}

	logger.Info("Transfer committed", "from", actor, "to", to, "amount", req.Amount)

	recordOperation("transfer", "ok", start)
	resp := datatypes.AckResponse{Status: "ok"}
	h.captureResponse(c, auditID, http.StatusOK, resp)
	c.JSON(http.StatusOK, resp)
}

// HandleTokenApprove handles POST /v1/token/approve.
//
// Description:
//
//	Grants a spender the right to pull the actor's asset units (the
//	vault itself is the usual spender, ahead of a deposit or yield
//	injection). The amount is absolute; zero revokes.
//
// Request Body:
//
//	TokenApproveRequest
//
// Response:
//
//	200 OK: AckResponse
//	400 Bad Request: Validation error
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleTokenApprove(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTokenApprove")
	start := time.Now()

	actor, ok := requireActor(c, logger)
	if !ok {
		return
	}

	auditID := h.captureRequest(c, requestID, actor)

	var req datatypes.TokenApproveRequest
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
		h.rejectTransition(c, logger, "approve_token", auditID, start, err)
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

	if err := h.svc.ApproveToken(c.Request.Context(), actor, spender, amount); err != nil {
		h.rejectTransition(c, logger, "approve_token", auditID, start, err)
		return
	}

	logger.Info("Token allowance set", "owner", actor, "spender", spender, "amount", req.Amount)

	recordOperation("approve_token", "ok", start)
	resp := datatypes.AckResponse{Status: "ok"}
	h.captureResponse(c, auditID, http.StatusOK, resp)
	c.JSON(http.StatusOK, resp)
}

// HandleBalance handles GET /v1/token/balances/:addr.
//
// Description:
//
//	Returns one address's asset balance and its outgoing allowances.
//	Unknown addresses return a zero balance.
//
// Response:
//
//	200 OK: BalanceResponse
//	400 Bad Request: Malformed address
func (h *Handlers) HandleBalance(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleBalance")

	addr, err := validation.SanitizeAddress(c.Param("addr"))
	if err != nil {
		logger.Warn("Invalid balance address", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_ADDRESS",
		})
		return
	}

	c.JSON(http.StatusOK, h.svc.Balance(c.Request.Context(), addr))
}
