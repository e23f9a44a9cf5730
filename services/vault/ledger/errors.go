// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import "errors"

// Sentinel errors for the vault ledger. Every failed operation leaves the
// ledger exactly as it was; none of these are retried internally.
var (
	// ErrInvalidAmount indicates a zero, negative, or malformed quantity.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAmountOverflow indicates a pool total would exceed MaxAmount.
	ErrAmountOverflow = errors.New("amount exceeds ledger bound")

	// ErrDivisionByZero indicates a share/asset conversion against an
	// empty denominator, e.g. redeeming when no shares are outstanding.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrZeroClaimWithdrawal indicates a withdrawal or redemption against
	// a holder whose current claim is zero.
	ErrZeroClaimWithdrawal = errors.New("withdrawal from zero claim")

	// ErrInsufficientShares indicates the owner's share balance cannot
	// cover the requested withdrawal or redemption.
	ErrInsufficientShares = errors.New("insufficient share balance")

	// ErrInsufficientShareAllowance indicates the caller is not approved
	// to spend the owner's shares.
	ErrInsufficientShareAllowance = errors.New("insufficient share allowance")

	// ErrCorruptSnapshot indicates a restored snapshot failed invariant checks.
	ErrCorruptSnapshot = errors.New("corrupt ledger snapshot")
)
