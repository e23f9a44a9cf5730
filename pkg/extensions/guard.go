// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"errors"
)

// ErrTransitionBlocked is returned when a ledger transition is rejected
// by the guard. Enterprise implementations should wrap this error with
// the reason.
//
// Example:
//
//	if onSanctionsList(check.Receiver) {
//	    return nil, fmt.Errorf("receiver is sanctioned: %w", ErrTransitionBlocked)
//	}
var ErrTransitionBlocked = errors.New("transition blocked by guard")

// TransitionCheck describes a pending ledger transition for screening.
//
// Amounts travel as decimal strings so this package stays free of the
// ledger's numeric types; guards that need arithmetic parse them.
//
// Example:
//
//	check := TransitionCheck{
//	    Op:       "WITHDRAW",
//	    Caller:   "alice",
//	    Owner:    "alice",
//	    Receiver: "carol",
//	    Amount:   "250000",
//	}
type TransitionCheck struct {
	// Op is the transition kind: "DEPOSIT", "WITHDRAW", "REDEEM",
	// "YIELD", "MINT", "TRANSFER".
	Op string

	// Caller is the actor driving the transition.
	Caller string

	// Owner is the position being drawn down (withdraw/redeem only).
	Owner string

	// Receiver is where value ends up.
	Receiver string

	// Amount is the asset or share quantity as a decimal string.
	Amount string
}

// GuardResult contains the outcome of a guard check.
//
// This struct provides detailed information about what the guard saw,
// useful for debugging, audit trails, and operator feedback.
//
// Example:
//
//	result := GuardResult{
//	    Blocked:     true,
//	    BlockReason: "receiver exceeds daily velocity limit",
//	    Findings: []GuardFinding{
//	        {Type: "velocity", Detail: "4th payout to carol within 1h", Action: "blocked"},
//	    },
//	}
type GuardResult struct {
	// Blocked indicates the transition must not commit.
	// If true, the caller returns ErrTransitionBlocked to the actor.
	Blocked bool

	// BlockReason explains why the transition was blocked (if Blocked).
	BlockReason string

	// Findings lists what the guard noticed, blocked or not.
	// Useful for audit logging and tuning guard rules.
	Findings []GuardFinding
}

// GuardFinding describes a single observation made by the guard.
//
// Example:
//
//	finding := GuardFinding{
//	    Type:   "limit",
//	    Detail: "single withdrawal above 1000000",
//	    Action: "flagged",
//	}
type GuardFinding struct {
	// Type categorizes the observation.
	// Common types: "sanctions", "velocity", "limit", "structuring",
	// "self_dealing"
	Type string

	// Detail is a human-readable description of the observation.
	Detail string

	// Action describes what the guard did about it.
	// Values: "blocked", "flagged", "logged"
	Action string
}

// TransitionGuard screens ledger transitions before they commit.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Screening Point
//
// The vault service calls CheckTransition after input validation but
// before any state changes. A blocked transition leaves the ledger,
// the token balances, and the journal untouched.
//
// # Open Source Behavior
//
// The default NopTransitionGuard allows every transition with no
// findings. This is appropriate for local single-user deployments
// where compliance screening isn't required.
//
// # Enterprise Implementation
//
// Enterprise versions implement sanctions screening, velocity limits,
// and transaction monitoring policies.
//
// Example enterprise implementation:
//
//	type SanctionsGuard struct {
//	    list *sanctions.List
//	}
//
//	func (g *SanctionsGuard) CheckTransition(ctx context.Context, check TransitionCheck) (*GuardResult, error) {
//	    if g.list.Contains(check.Receiver) {
//	        return &GuardResult{
//	            Blocked:     true,
//	            BlockReason: "receiver on sanctions list",
//	            Findings: []GuardFinding{
//	                {Type: "sanctions", Detail: check.Receiver, Action: "blocked"},
//	            },
//	        }, nil
//	    }
//	    return &GuardResult{}, nil
//	}
//
// # Blocking vs Flagging
//
// Guards can either:
//   - Block: Reject the transition (Blocked=true, BlockReason set)
//   - Flag: Allow it but record findings for the audit trail
//
// A blocked transition is surfaced to the actor as ErrTransitionBlocked;
// flagged findings are only visible in audit logs.
type TransitionGuard interface {
	// CheckTransition screens a pending transition.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - check: The pending transition
	//
	// Returns:
	//   - *GuardResult: The screening outcome, never nil on success
	//   - error: Non-nil only for guard failures (not for blocks)
	//
	// If Blocked is true, the caller should:
	//  1. Log the block via AuditLogger
	//  2. Return ErrTransitionBlocked to the actor
	//  3. NOT apply the transition
	CheckTransition(ctx context.Context, check TransitionCheck) (*GuardResult, error)
}

// NopTransitionGuard is the default guard for open source.
//
// It allows every transition with no findings. This is appropriate
// for local single-user deployments where compliance screening isn't
// required.
//
// Thread-safe: This implementation has no mutable state.
//
// Example:
//
//	guard := &NopTransitionGuard{}
//	result, err := guard.CheckTransition(ctx, check)
//	// result.Blocked == false
//	// err == nil
type NopTransitionGuard struct{}

// CheckTransition allows the transition unconditionally.
//
// No screening is applied.
func (g *NopTransitionGuard) CheckTransition(_ context.Context, _ TransitionCheck) (*GuardResult, error) {
	return &GuardResult{
		Blocked:  false,
		Findings: nil,
	}, nil
}

// Compile-time interface compliance check.
// This ensures NopTransitionGuard implements TransitionGuard.
var _ TransitionGuard = (*NopTransitionGuard)(nil)
