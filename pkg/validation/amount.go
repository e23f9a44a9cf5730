// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// amountPattern matches unsigned decimal quantity strings. Range checks
// belong to the ledger; this only guards the textual form so arbitrary
// input never reaches big-integer parsing.
// Max length: 40 digits (wider than any in-range amount).
var amountPattern = regexp.MustCompile(`^[0-9]{1,40}$`)

// ValidateAmountString validates the textual form of a quantity before it
// is parsed into ledger arithmetic.
//
// Valid amount strings:
//   - 1-40 characters
//   - Digits 0-9 only; no sign, separators, or exponent
//
// Returns an error if the string is invalid.
func ValidateAmountString(s string) error {
	if s == "" {
		return fmt.Errorf("amount cannot be empty")
	}

	if !amountPattern.MatchString(s) {
		return fmt.Errorf("invalid amount format: %q (must be 1-40 decimal digits)", s)
	}

	return nil
}

// SanitizeAmountString trims and validates a quantity string.
// Returns the trimmed string if valid, or an error if invalid.
func SanitizeAmountString(s string) (string, error) {
	normalized := strings.TrimSpace(s)
	if err := ValidateAmountString(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
