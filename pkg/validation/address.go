// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// storage keys, log lines, or query filters. Using these validators keeps
// the badger keyspace unambiguous and prevents injection through account
// addresses or quantity strings.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// addressPattern matches valid account addresses.
// Allows: lowercase letters, digits, then dots, hyphens, underscores.
// Max length: 64 characters. Colons are excluded deliberately; addresses
// are embedded in colon-delimited storage keys.
var addressPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._\-]{0,63}$`)

// ValidateAddress validates an account address before it reaches the
// ledger or the storage keyspace.
//
// Valid addresses:
//   - 1-64 characters
//   - Lowercase letters a-z and digits 0-9
//   - Dots (.), hyphens (-), underscores (_) after the first character
//
// Returns an error if the address is invalid.
//
// Example:
//
//	if err := validation.ValidateAddress(addr); err != nil {
//	    return nil, fmt.Errorf("invalid address: %w", err)
//	}
//	// Safe to use as a storage key segment
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if !addressPattern.MatchString(addr) {
		return fmt.Errorf("invalid address format: %q (must be 1-64 lowercase alphanumeric chars, dots, hyphens, or underscores)", addr)
	}

	return nil
}

// ValidateAddresses validates multiple addresses.
// Returns an error listing all invalid addresses if any fail validation.
func ValidateAddresses(addrs []string) error {
	var invalid []string
	for _, a := range addrs {
		if err := ValidateAddress(a); err != nil {
			invalid = append(invalid, a)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid addresses: %v", invalid)
	}
	return nil
}

// SanitizeAddress normalizes and validates an account address.
// Returns the lowercase address if valid, or an error if invalid.
//
// Use this at API boundaries where casing varies:
//
//	addr, err := validation.SanitizeAddress(userInput)
//	if err != nil {
//	    return err
//	}
//	// addr is lowercase and validated
func SanitizeAddress(addr string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(addr))
	if err := ValidateAddress(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
