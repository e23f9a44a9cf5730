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

	sdkmath "cosmossdk.io/math"
)

// Share/asset conversion. All three functions are pure; the vault passes
// its current totals in. The rounding direction is fixed and consistent:
// value always rounds toward the pool, so round-tripping deposits and
// withdrawals cannot extract value from the other holders.

// sharesForDeposit returns the shares minted for a deposit of assets.
//
// An empty pool bootstraps 1:1. Otherwise the depositor receives
// floor(assets * totalShares / totalAssets); the floor means a holder
// never receives more shares than the deposit exactly warrants.
func sharesForDeposit(assets, totalShares, totalAssets sdkmath.Int) (sdkmath.Int, error) {
	if totalShares.IsZero() {
		return assets, nil
	}
	if totalAssets.IsZero() {
		// Outstanding shares over an empty pool would mean the
		// zero-assets/zero-shares invariant was already broken.
		return sdkmath.Int{}, fmt.Errorf("shares outstanding over empty pool: %w", ErrDivisionByZero)
	}
	return mulDivFloor(assets, totalShares, totalAssets)
}

// assetsForShares returns floor(shares * totalAssets / totalShares), the
// asset value of a share position at the current exchange rate. Fails
// when no shares are outstanding.
func assetsForShares(shares, totalShares, totalAssets sdkmath.Int) (sdkmath.Int, error) {
	if totalShares.IsZero() {
		return sdkmath.Int{}, fmt.Errorf("no shares outstanding: %w", ErrDivisionByZero)
	}
	return mulDivFloor(shares, totalAssets, totalShares)
}

// sharesForWithdraw returns the smallest share count whose asset value
// covers a withdrawal of assets: ceil(assets * totalShares / totalAssets).
// Burning the ceiling keeps payout rounding on the pool's side, the dual
// of the floor used when minting.
func sharesForWithdraw(assets, totalShares, totalAssets sdkmath.Int) (sdkmath.Int, error) {
	if totalShares.IsZero() {
		return sdkmath.Int{}, fmt.Errorf("no shares outstanding: %w", ErrDivisionByZero)
	}
	return mulDivCeil(assets, totalShares, totalAssets)
}
