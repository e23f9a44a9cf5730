// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the wire structures of the vault HTTP API.
//
// Quantities travel as decimal strings: ledger amounts span the full
// 2^127-1 range and a JSON number would silently lose precision past
// 2^53. Receipts reuse ledger.Receipt, whose integer fields marshal as
// strings for the same reason.
package datatypes

import (
	"github.com/AleutianAI/AleutianVault/services/vault/ledger"
	"github.com/AleutianAI/AleutianVault/services/vault/token"
)

// ========== REQUEST/RESPONSE STRUCTURES ==========

// DepositRequest moves assets from the caller into the pool.
type DepositRequest struct {
	// Assets is the deposit amount in the vault's asset denom.
	Assets string `json:"assets" binding:"required"`
	// Receiver is credited with the minted shares. Defaults to the caller.
	Receiver string `json:"receiver,omitempty"`
}

// WithdrawRequest redeems enough of the owner's shares to pay out an
// exact asset amount.
type WithdrawRequest struct {
	Assets string `json:"assets" binding:"required"`
	// Receiver is paid the assets. Defaults to the caller.
	Receiver string `json:"receiver,omitempty"`
	// Owner is the position drawn down. Defaults to the caller; anyone
	// else requires a share allowance.
	Owner string `json:"owner,omitempty"`
}

// RedeemRequest burns an exact share amount for its current asset value.
type RedeemRequest struct {
	Shares   string `json:"shares" binding:"required"`
	Receiver string `json:"receiver,omitempty"`
	Owner    string `json:"owner,omitempty"`
}

// YieldRequest credits assets to the pool without minting shares.
// Operator only.
type YieldRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// ApproveSharesRequest grants a spender the right to burn the caller's
// shares. Amount is absolute; zero revokes.
type ApproveSharesRequest struct {
	Spender string `json:"spender" binding:"required"`
	Shares  string `json:"shares" binding:"required"`
}

// MintRequest creates new asset units. Operator only.
type MintRequest struct {
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// TransferRequest moves asset units from the caller to another address.
type TransferRequest struct {
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// TokenApproveRequest grants a spender the right to pull the caller's
// asset units. Amount is absolute; zero revokes.
type TokenApproveRequest struct {
	Spender string `json:"spender" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

// StatsResponse is the pool-level view returned by GET /v1/vault/stats.
type StatsResponse struct {
	TotalShares  string  `json:"total_shares"`
	TotalAssets  string  `json:"total_assets"`
	ExchangeRate float64 `json:"exchange_rate"`
	HolderCount  int     `json:"holder_count"`
	AssetDenom   string  `json:"asset_denom"`
	LastSeq      uint64  `json:"last_seq"`
}

// HolderResponse is one holder's position with its current redemption
// limits.
type HolderResponse struct {
	ledger.HolderState
	MaxWithdraw string `json:"max_withdraw"`
	MaxRedeem   string `json:"max_redeem"`
}

// PreviewDepositResponse quotes the shares a deposit would mint at the
// current exchange rate.
type PreviewDepositResponse struct {
	Assets string `json:"assets"`
	Shares string `json:"shares"`
}

// PreviewRedeemResponse quotes the assets a redemption would pay out at
// the current exchange rate.
type PreviewRedeemResponse struct {
	Shares string `json:"shares"`
	Assets string `json:"assets"`
}

// EventsResponse is a page of journaled receipts, newest first.
type EventsResponse struct {
	Events []ledger.Receipt `json:"events"`
	Count  int              `json:"count"`
}

// BalanceResponse is one address's asset holdings and outgoing
// allowances.
type BalanceResponse struct {
	Address    string            `json:"address"`
	Denom      string            `json:"denom"`
	Balance    string            `json:"balance"`
	Allowances []token.Allowance `json:"allowances,omitempty"`
}

// AckResponse acknowledges a mutation that returns no body of its own.
type AckResponse struct {
	Status string `json:"status"`
}

// HealthResponse reports liveness. Denom identifies which asset this
// vault pools, so clients can sanity-check they reached the right one.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Denom   string `json:"denom"`
}

// ErrorResponse is the uniform error body. Code is a stable
// SCREAMING_SNAKE identifier clients can switch on; Error is
// human-readable.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
