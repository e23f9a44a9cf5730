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

import "context"

// =============================================================================
// Counterparty Risk Types
// =============================================================================

// RiskLevel represents the risk classification of a counterparty address.
//
// Levels follow common AML/KYC policy tiers. Higher levels require
// stricter handling; RiskBlocked addresses must never receive funds.
//
// Example:
//
//	switch level {
//	case RiskBlocked:
//	    // Refuse the payout entirely
//	case RiskHigh:
//	    // Allow but flag for manual review
//	case RiskElevated:
//	    // Allow with enhanced audit metadata
//	case RiskLow:
//	    // Normal processing
//	}
type RiskLevel string

const (
	// RiskLow indicates a known-good or unremarkable counterparty.
	RiskLow RiskLevel = "LOW"

	// RiskElevated indicates a counterparty worth extra audit detail.
	// Examples: newly seen addresses, unusually large first payouts.
	RiskElevated RiskLevel = "ELEVATED"

	// RiskHigh indicates a counterparty requiring review.
	// Examples: velocity anomalies, indirect exposure to flagged
	// addresses.
	RiskHigh RiskLevel = "HIGH"

	// RiskBlocked indicates a counterparty that must not receive funds.
	// Examples: sanctions list matches, confirmed fraud.
	RiskBlocked RiskLevel = "BLOCKED"
)

// RiskResult contains the outcome of a counterparty classification.
//
// A single address may trigger multiple signals (e.g. a velocity
// anomaly and list proximity). The Level field provides a single value
// for quick policy decisions.
//
// Example:
//
//	result, _ := classifier.ClassifyAddress(ctx, receiver)
//	if result.Level == RiskBlocked {
//	    return fmt.Errorf("receiver blocked: %w", ErrTransitionBlocked)
//	}
type RiskResult struct {
	// Level is the overall classification.
	// Use this for quick policy decisions (e.g. refuse if BLOCKED).
	Level RiskLevel

	// Signals lists the individual observations behind the level.
	// May be empty when Level is RiskLow.
	Signals []RiskSignal

	// IsClean is true if no risk signals were detected.
	// Equivalent to Level == RiskLow && len(Signals) == 0.
	IsClean bool
}

// RiskSignal describes a single risk observation about an address.
//
// Example:
//
//	signal := RiskSignal{
//	    Level:  RiskHigh,
//	    Type:   "velocity",
//	    Rule:   "payouts_per_hour",
//	    Detail: "9 payouts in the last hour (limit 5)",
//	}
type RiskSignal struct {
	// Level is the severity of this signal.
	Level RiskLevel

	// Type describes what kind of risk was found.
	// Examples: "sanctions", "velocity", "exposure", "new_address"
	Type string

	// Rule identifies which detection rule matched.
	// Useful for debugging and tuning classification rules.
	Rule string

	// Detail is a human-readable description, safe for audit logs.
	Detail string
}

// =============================================================================
// RiskClassifier Interface
// =============================================================================

// RiskClassifier scores counterparty addresses before funds move to them.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Open Source Behavior
//
// The default NopRiskClassifier always returns RiskLow, indicating no
// risk signals were detected. This allows the local vault to function
// without screening infrastructure.
//
// # Enterprise Implementation
//
// Enterprise versions implement list-based and behavioral detection:
//   - Sanctions and internal blocklists
//   - Velocity and volume anomaly rules
//   - Graph exposure to previously flagged addresses
//
// Example enterprise implementation:
//
//	type ListClassifier struct {
//	    blocked map[string]struct{}
//	}
//
//	func (c *ListClassifier) ClassifyAddress(ctx context.Context, addr string) (*RiskResult, error) {
//	    if _, hit := c.blocked[addr]; hit {
//	        return &RiskResult{
//	            Level: RiskBlocked,
//	            Signals: []RiskSignal{
//	                {Level: RiskBlocked, Type: "sanctions", Rule: "exact_match", Detail: addr},
//	            },
//	        }, nil
//	    }
//	    return &RiskResult{Level: RiskLow, IsClean: true}, nil
//	}
//
// # Usage
//
// The vault service classifies the receiving address of every payout
// and the destination of every mint and transfer:
//
//	result, err := classifier.ClassifyAddress(ctx, receiver)
//	if err != nil {
//	    return fmt.Errorf("risk classification failed: %w", err)
//	}
//	if result.Level == RiskBlocked {
//	    return ErrTransitionBlocked
//	}
//	for _, s := range result.Signals {
//	    auditLogger.Log(ctx, AuditEvent{
//	        EventType: "risk.signal",
//	        Metadata:  map[string]any{"type": s.Type, "rule": s.Rule},
//	    })
//	}
//
// # Limitations
//
//   - List-based detection misses unlisted bad actors
//   - Behavioral rules have false positives
//
// # Assumptions
//
//   - Addresses are already validated/sanitized by the caller
//   - Levels are ordered (BLOCKED > HIGH > ELEVATED > LOW)
type RiskClassifier interface {
	// ClassifyAddress scores a single counterparty address.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - address: The counterparty address to score
	//
	// Returns:
	//   - *RiskResult: Classification details, never nil on success
	//   - error: Non-nil if classification failed (e.g. timeout)
	//
	// Thread-safe: may be called concurrently.
	ClassifyAddress(ctx context.Context, address string) (*RiskResult, error)

	// ClassifyBatch scores multiple addresses efficiently.
	//
	// Results are returned in input order. Implementations may process
	// items in parallel.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - addresses: The addresses to score
	//
	// Returns:
	//   - []*RiskResult: Results in the same order as input
	//   - error: Non-nil if any classification failed
	//
	// Thread-safe: may be called concurrently.
	ClassifyBatch(ctx context.Context, addresses []string) ([]*RiskResult, error)
}

// =============================================================================
// No-Op Implementation
// =============================================================================

// NopRiskClassifier is the default classifier for open source.
//
// It always returns RiskLow with no signals. This allows the vault to
// function without screening infrastructure.
//
// Thread-safe: This implementation has no mutable state.
//
// Example:
//
//	classifier := &NopRiskClassifier{}
//	result, err := classifier.ClassifyAddress(ctx, "anyone")
//	// result.Level == RiskLow
//	// result.IsClean == true
//	// err == nil
type NopRiskClassifier struct{}

// ClassifyAddress always returns RiskLow with no signals.
//
// This is intentional for local single-user deployments where
// counterparty screening isn't required.
func (c *NopRiskClassifier) ClassifyAddress(_ context.Context, _ string) (*RiskResult, error) {
	return &RiskResult{
		Level:   RiskLow,
		Signals: nil,
		IsClean: true,
	}, nil
}

// ClassifyBatch always returns RiskLow for all addresses.
func (c *NopRiskClassifier) ClassifyBatch(_ context.Context, addresses []string) ([]*RiskResult, error) {
	results := make([]*RiskResult, len(addresses))
	for i := range addresses {
		results[i] = &RiskResult{
			Level:   RiskLow,
			Signals: nil,
			IsClean: true,
		}
	}
	return results, nil
}

// =============================================================================
// Interface Compliance
// =============================================================================

// Compile-time interface compliance check.
var _ RiskClassifier = (*NopRiskClassifier)(nil)
