// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines interfaces for enterprise functionality.
//
// This package provides extension points that allow AleutianEnterprise
// to add capabilities without modifying the core AleutianVault codebase.
// The open source version uses no-op defaults for all interfaces.
//
// # Design Philosophy
//
// AleutianVault is designed as a fully functional local ledger that
// works offline without any external dependencies. Enterprise features
// are implemented by providing concrete implementations of these
// interfaces and injecting them via ServiceOptions.
//
// # Extension Categories
//
// The package is organized by domain:
//
//   - auth.go: Authentication and authorization (AuthProvider, AuthzProvider)
//   - audit.go: Compliance audit logging (AuditLogger)
//   - guard.go: Pre-commit transition screening (TransitionGuard)
//   - risk.go: Counterparty risk classification (RiskClassifier)
//   - request_auditor.go: Tamper-evident request capture (RequestAuditor)
//
// # Usage in AleutianVault (Open Source)
//
// The open source version uses no-op implementations:
//
//	opts := extensions.DefaultOptions()
//	svc, err := vault.NewService(cfg, store, opts)
//
// # Usage in AleutianEnterprise
//
// Enterprise provides concrete implementations:
//
//	opts := extensions.ServiceOptions{
//	    AuthProvider:    enterprise.NewOktaProvider(config),
//	    AuditLogger:     enterprise.NewSplunkAuditor(config),
//	    TransitionGuard: enterprise.NewSanctionsGuard(policy),
//	    RiskClassifier:  enterprise.NewAMLClassifier(lists),
//	}
//	svc, err := vault.NewService(cfg, store, opts)
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
// Multiple goroutines may call methods simultaneously.
package extensions

// ServiceOptions groups all extension points for service configuration.
//
// Pass this to service constructors to enable enterprise features.
// All fields are optional; nil values are replaced with no-op defaults
// when DefaultOptions() is called or when services check for nil.
//
// Example:
//
//	// Open source: use defaults
//	opts := extensions.DefaultOptions()
//
//	// Enterprise: inject implementations
//	opts := extensions.ServiceOptions{
//	    AuthProvider:    oktaProvider,
//	    AuditLogger:     splunkAuditor,
//	    TransitionGuard: sanctionsGuard,
//	}
type ServiceOptions struct {
	// AuthProvider validates authentication tokens presented by actors.
	// Default: NopAuthProvider (always returns valid local user)
	AuthProvider AuthProvider

	// AuthzProvider checks authorization permissions, e.g. whether an
	// actor may mint assets or inject yield.
	// Default: NopAuthzProvider (always allows all actions)
	AuthzProvider AuthzProvider

	// AuditLogger records security-relevant events such as committed
	// transitions and denied operator actions.
	// Default: NopAuditLogger (discards all events)
	AuditLogger AuditLogger

	// TransitionGuard screens ledger transitions before they commit.
	// Default: NopTransitionGuard (allows everything)
	TransitionGuard TransitionGuard

	// RiskClassifier scores counterparty addresses before funds move
	// to them.
	// Default: NopRiskClassifier (everything scores low risk)
	RiskClassifier RiskClassifier

	// RequestAuditor captures raw API requests and responses for
	// tamper-evident storage.
	// Default: NopRequestAuditor (discards everything)
	RequestAuditor RequestAuditor
}

// DefaultOptions returns ServiceOptions with no-op defaults.
//
// This is the configuration used by the open source version.
// All operations are allowed, no audit trail, no screening.
//
// Returns:
//   - ServiceOptions with all fields set to no-op implementations
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider:    &NopAuthProvider{},
		AuthzProvider:   &NopAuthzProvider{},
		AuditLogger:     &NopAuditLogger{},
		TransitionGuard: &NopTransitionGuard{},
		RiskClassifier:  &NopRiskClassifier{},
		RequestAuditor:  &NopRequestAuditor{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
// Useful for fluent configuration.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAuthz returns a copy of opts with the given AuthzProvider.
func (opts ServiceOptions) WithAuthz(provider AuthzProvider) ServiceOptions {
	opts.AuthzProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// WithGuard returns a copy of opts with the given TransitionGuard.
func (opts ServiceOptions) WithGuard(guard TransitionGuard) ServiceOptions {
	opts.TransitionGuard = guard
	return opts
}

// WithRisk returns a copy of opts with the given RiskClassifier.
func (opts ServiceOptions) WithRisk(classifier RiskClassifier) ServiceOptions {
	opts.RiskClassifier = classifier
	return opts
}

// WithRequestAuditor returns a copy of opts with the given RequestAuditor.
func (opts ServiceOptions) WithRequestAuditor(auditor RequestAuditor) ServiceOptions {
	opts.RequestAuditor = auditor
	return opts
}
