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

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// MaxAmount is the upper bound on every asset and share quantity the
// ledger will hold. Totals are kept at or below 2^127-1 so that any
// intermediate shares*assets product stays inside the 256-bit range of
// sdkmath.Int; overflow is therefore a checked error here, never a panic
// deeper in the arithmetic.
var MaxAmount = sdkmath.NewIntFromBigInt(
	new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1)))

// ParseAmount converts a decimal string into a positive in-range amount.
func ParseAmount(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("parse amount %q: %w", s, ErrInvalidAmount)
	}
	if err := validAmount(v); err != nil {
		return sdkmath.Int{}, err
	}
	return v, nil
}

// validAmount rejects nil, non-positive, and out-of-bound quantities.
func validAmount(v sdkmath.Int) error {
	if v.IsNil() || !v.IsPositive() {
		return ErrInvalidAmount
	}
	if v.GT(MaxAmount) {
		return ErrAmountOverflow
	}
	return nil
}

// mulDivFloor returns floor(a*b/den). The divisor must be positive; a
// zero divisor is reported rather than left to panic.
func mulDivFloor(a, b, den sdkmath.Int) (sdkmath.Int, error) {
	if den.IsNil() || den.IsZero() {
		return sdkmath.Int{}, ErrDivisionByZero
	}
	return a.Mul(b).Quo(den), nil
}

// mulDivCeil returns ceil(a*b/den) under the same divisor rule.
func mulDivCeil(a, b, den sdkmath.Int) (sdkmath.Int, error) {
	if den.IsNil() || den.IsZero() {
		return sdkmath.Int{}, ErrDivisionByZero
	}
	num := a.Mul(b)
	out := num.Quo(den)
	if !num.Mod(den).IsZero() {
		out = out.Add(sdkmath.OneInt())
	}
	return out, nil
}
