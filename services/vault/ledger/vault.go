// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger implements the share-accounting core of the vault: the
// share ledger (total shares outstanding plus the share/asset exchange
// rate) and the per-holder principal ledger that splits each claim into
// contributed principal and accrued yield.
//
// # Accounting Model
//
// Depositors receive shares at the current exchange rate; yield injection
// raises totalAssets without minting shares, so every holder's claim
// rises pro-rata. A holder's principal only changes on their own deposits
// and withdrawals: deposits add the contributed assets, withdrawals draw
// the principal down by the same proportion the claim was reduced, and a
// full exit clears it exactly. Yield is always the derived quantity
// max(0, claim - principal), never stored.
//
// # Invariants
//
//   - totalAssets == 0 implies totalShares == 0.
//   - The exchange rate never falls: mint rounding floors, burn rounding
//     ceils, so totalAssets/totalShares is non-decreasing.
//   - Every quantity stays in [0, MaxAmount].
//
// # Thread Safety
//
// All methods are safe for concurrent use. Mutating operations serialize
// behind one mutex and either apply fully, including the paired asset
// transfer, or leave the ledger untouched.
package ledger

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
)

// Op identifies a committed ledger transition.
type Op string

// Transition types journaled and broadcast by the service.
const (
	OpDeposit  Op = "DEPOSIT"
	OpWithdraw Op = "WITHDRAW"
	OpRedeem   Op = "REDEEM"
	OpYield    Op = "YIELD"
)

// AssetLedger is the fungible-asset ledger the vault moves value through.
// The vault assumes nothing beyond ordinary balance/allowance semantics;
// implementations must apply each call atomically.
type AssetLedger interface {
	// Transfer moves amount between two accounts.
	Transfer(from, to string, amount sdkmath.Int) error

	// TransferFrom moves amount out of the owner's account using the
	// spender's allowance.
	TransferFrom(spender, from, to string, amount sdkmath.Int) error
}

// Receipt describes one committed transition. Seq and ID are assigned by
// the journaling layer; everything else is filled in by the vault at
// commit time, with totals reflecting the post-transition state.
type Receipt struct {
	ID          string      `json:"id,omitempty"`
	Seq         uint64      `json:"seq,omitempty"`
	Op          Op          `json:"op"`
	Caller      string      `json:"caller"`
	Owner       string      `json:"owner,omitempty"`
	Receiver    string      `json:"receiver,omitempty"`
	Assets      sdkmath.Int `json:"assets"`
	Shares      sdkmath.Int `json:"shares"`
	Principal   sdkmath.Int `json:"principal"`
	TotalShares sdkmath.Int `json:"total_shares"`
	TotalAssets sdkmath.Int `json:"total_assets"`
	Time        time.Time   `json:"time"`
}

// Vault is the share-accounting core. It owns the share and principal
// ledgers and consults the asset ledger only to move value in and out;
// its own account in that ledger holds the pooled assets, and totalAssets
// stays equal to that balance after every mutating call.
type Vault struct {
	mu      sync.RWMutex
	address string
	assets  AssetLedger

	totalShares sdkmath.Int
	totalAssets sdkmath.Int
	holders     map[string]*holderRecord
	allowances  map[string]map[string]sdkmath.Int
}

// NewVault creates an empty vault bound to its account in the asset ledger.
func NewVault(address string, assets AssetLedger) (*Vault, error) {
	if address == "" {
		return nil, fmt.Errorf("vault address must not be empty")
	}
	if assets == nil {
		return nil, fmt.Errorf("asset ledger must not be nil")
	}
	return &Vault{
		address:     address,
		assets:      assets,
		totalShares: sdkmath.ZeroInt(),
		totalAssets: sdkmath.ZeroInt(),
		holders:     make(map[string]*holderRecord),
		allowances:  make(map[string]map[string]sdkmath.Int),
	}, nil
}

// Address returns the vault's own account in the asset ledger.
func (v *Vault) Address() string {
	return v.address
}

// Deposit pulls assets from the caller's asset account and credits the
// receiver with newly minted shares and principal.
//
// Description:
//
//	The caller must have approved the vault to spend at least the
//	deposited amount. Shares are minted at the current exchange rate,
//	flooring in the pool's favor; a deposit too small to mint a single
//	share is rejected rather than silently donated to the pool.
//
// Inputs:
//
//	caller - Asset account the deposit is pulled from
//	receiver - Holder credited with the shares and principal
//	amount - Assets to deposit, in (0, MaxAmount]
//
// Outputs:
//
//	Receipt - The committed transition, including post-state totals
//	error - ErrInvalidAmount, ErrAmountOverflow, or the asset transfer failure
func (v *Vault) Deposit(caller, receiver string, amount sdkmath.Int) (Receipt, error) {
	if err := validAmount(amount); err != nil {
		return Receipt{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.totalAssets.Add(amount).GT(MaxAmount) {
		return Receipt{}, ErrAmountOverflow
	}
	shares, err := sharesForDeposit(amount, v.totalShares, v.totalAssets)
	if err != nil {
		return Receipt{}, err
	}
	if shares.IsZero() {
		return Receipt{}, fmt.Errorf("deposit of %s mints no shares: %w", amount, ErrInvalidAmount)
	}

	// Pull the assets first: a transfer failure leaves the ledger
	// untouched, and nothing after this point can fail.
	if err := v.assets.TransferFrom(v.address, caller, v.address, amount); err != nil {
		return Receipt{}, fmt.Errorf("pull deposit: %w", err)
	}

	rec := v.holderLocked(receiver)
	rec.shares = rec.shares.Add(shares)
	rec.principal = rec.principal.Add(amount)
	v.totalShares = v.totalShares.Add(shares)
	v.totalAssets = v.totalAssets.Add(amount)

	return v.receiptLocked(OpDeposit, caller, receiver, receiver, amount, shares, rec.principal), nil
}

// Withdraw burns shares from owner to pay the requested assets to receiver.
//
// Description:
//
//	The owner's principal is drawn down in the same proportion the claim
//	is reduced, evaluated against the claim before any shares are burned;
//	withdrawing the full claim, or burning the entire position, clears
//	the principal exactly. When the caller is not the owner the burn
//	consumes share allowance. Ledger mutations are committed before the
//	payout transfer; a payout failure rolls them back under the same
//	lock, so no caller ever observes a partial transition.
//
// Inputs:
//
//	caller - Acting account; must be the owner or hold share allowance
//	receiver - Asset account paid out
//	owner - Holder whose shares are burned
//	amount - Assets to withdraw, in (0, MaxAmount]
//
// Outputs:
//
//	Receipt - The committed transition; Shares is the amount burned
//	error - ErrZeroClaimWithdrawal, ErrInsufficientShares,
//	        ErrInsufficientShareAllowance, or the payout failure
func (v *Vault) Withdraw(caller, receiver, owner string, amount sdkmath.Int) (Receipt, error) {
	if err := validAmount(amount); err != nil {
		return Receipt{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	rec, claimBefore, err := v.claimBeforeLocked(owner)
	if err != nil {
		return Receipt{}, err
	}
	shares, err := sharesForWithdraw(amount, v.totalShares, v.totalAssets)
	if err != nil {
		return Receipt{}, err
	}
	if shares.GT(rec.shares) {
		return Receipt{}, fmt.Errorf("withdraw %s exceeds claim %s: %w", amount, claimBefore, ErrInsufficientShares)
	}
	return v.exitLocked(OpWithdraw, caller, receiver, owner, rec, claimBefore, amount, shares)
}

// Redeem burns an exact share count from owner and pays out their current
// asset value, flooring in the pool's favor. The principal drawdown rule
// is identical to Withdraw.
func (v *Vault) Redeem(caller, receiver, owner string, shares sdkmath.Int) (Receipt, error) {
	if err := validAmount(shares); err != nil {
		return Receipt{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	rec, claimBefore, err := v.claimBeforeLocked(owner)
	if err != nil {
		return Receipt{}, err
	}
	if shares.GT(rec.shares) {
		return Receipt{}, fmt.Errorf("redeem %s of %s shares: %w", shares, rec.shares, ErrInsufficientShares)
	}
	amount, err := assetsForShares(shares, v.totalShares, v.totalAssets)
	if err != nil {
		return Receipt{}, err
	}
	if amount.IsZero() {
		return Receipt{}, fmt.Errorf("redeem of %s shares pays nothing: %w", shares, ErrZeroClaimWithdrawal)
	}
	return v.exitLocked(OpRedeem, caller, receiver, owner, rec, claimBefore, amount, shares)
}

// InjectYield pulls assets from the funding account into the pool without
// minting shares, raising every holder's claim pro-rata. No per-holder
// state is touched. The privileged-capability check lives at the API
// boundary; the ledger only enforces arithmetic and transfer rules.
func (v *Vault) InjectYield(from string, amount sdkmath.Int) (Receipt, error) {
	if err := validAmount(amount); err != nil {
		return Receipt{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.totalAssets.Add(amount).GT(MaxAmount) {
		return Receipt{}, ErrAmountOverflow
	}
	if err := v.assets.TransferFrom(v.address, from, v.address, amount); err != nil {
		return Receipt{}, fmt.Errorf("pull yield: %w", err)
	}
	v.totalAssets = v.totalAssets.Add(amount)

	return v.receiptLocked(OpYield, from, "", "", amount, sdkmath.ZeroInt(), sdkmath.ZeroInt()), nil
}

// ApproveShares sets (not adjusts) the spender's allowance over the
// owner's shares. A zero amount revokes the approval.
func (v *Vault) ApproveShares(owner, spender string, shares sdkmath.Int) error {
	if shares.IsNil() || shares.IsNegative() {
		return ErrInvalidAmount
	}
	if shares.GT(MaxAmount) {
		return ErrAmountOverflow
	}
	if owner == "" || spender == "" {
		return fmt.Errorf("owner and spender must not be empty")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.setShareAllowanceLocked(owner, spender, shares)
	return nil
}

// claimBeforeLocked resolves the owner's record and pre-transition claim,
// rejecting zero-claim positions before any division can happen. A dust
// position whose nonzero shares floor to a zero claim is rejected the
// same way, never given a fallback rate.
func (v *Vault) claimBeforeLocked(owner string) (*holderRecord, sdkmath.Int, error) {
	rec, ok := v.holders[owner]
	if !ok || rec.shares.IsZero() {
		return nil, sdkmath.Int{}, fmt.Errorf("holder %s: %w", owner, ErrZeroClaimWithdrawal)
	}
	claimBefore, err := assetsForShares(rec.shares, v.totalShares, v.totalAssets)
	if err != nil {
		return nil, sdkmath.Int{}, err
	}
	if claimBefore.IsZero() {
		return nil, sdkmath.Int{}, fmt.Errorf("holder %s: %w", owner, ErrZeroClaimWithdrawal)
	}
	return rec, claimBefore, nil
}

// exitLocked applies the shared withdraw/redeem commit: allowance spend,
// principal drawdown, burn, asset outflow, then the payout transfer, with
// a full rollback if the payout fails.
func (v *Vault) exitLocked(op Op, caller, receiver, owner string, rec *holderRecord,
	claimBefore, amount, shares sdkmath.Int) (Receipt, error) {

	allowBefore := v.shareAllowanceLocked(owner, caller)
	if caller != owner {
		if allowBefore.LT(shares) {
			return Receipt{}, fmt.Errorf("%s spending %s shares of %s: %w",
				caller, shares, owner, ErrInsufficientShareAllowance)
		}
		v.setShareAllowanceLocked(owner, caller, allowBefore.Sub(shares))
	}

	// A full exit clears principal exactly, with no rounding dust left
	// behind; the entire position burning counts as a full exit even
	// when the floored payout is a unit short of the claim.
	newPrincipal := sdkmath.ZeroInt()
	if amount.LT(claimBefore) && !shares.Equal(rec.shares) {
		remaining := claimBefore.Sub(amount)
		p, err := mulDivFloor(rec.principal, remaining, claimBefore)
		if err != nil {
			return Receipt{}, err
		}
		newPrincipal = p
	}

	prev := *rec
	prevShares, prevAssets := v.totalShares, v.totalAssets

	rec.shares = rec.shares.Sub(shares)
	rec.principal = newPrincipal
	v.totalShares = v.totalShares.Sub(shares)
	v.totalAssets = v.totalAssets.Sub(amount)

	if err := v.assets.Transfer(v.address, receiver, amount); err != nil {
		*rec = prev
		v.totalShares, v.totalAssets = prevShares, prevAssets
		if caller != owner {
			v.setShareAllowanceLocked(owner, caller, allowBefore)
		}
		return Receipt{}, fmt.Errorf("pay out %s: %w", op, err)
	}
	return v.receiptLocked(op, caller, owner, receiver, amount, shares, rec.principal), nil
}

func (v *Vault) receiptLocked(op Op, caller, owner, receiver string,
	assets, shares, principal sdkmath.Int) Receipt {
	return Receipt{
		Op:          op,
		Caller:      caller,
		Owner:       owner,
		Receiver:    receiver,
		Assets:      assets,
		Shares:      shares,
		Principal:   principal,
		TotalShares: v.totalShares,
		TotalAssets: v.totalAssets,
		Time:        time.Now().UTC(),
	}
}
