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
	"sort"

	sdkmath "cosmossdk.io/math"
)

// holderRecord tracks one depositor's position. Records are created on
// first deposit and never deleted; a position that returns to zero simply
// resumes from zero shares and zero principal on the next deposit.
type holderRecord struct {
	shares    sdkmath.Int
	principal sdkmath.Int
}

// HolderState is the externally visible position of one holder. Claim and
// Yield are derived at read time from the live exchange rate.
type HolderState struct {
	Address   string      `json:"address"`
	Shares    sdkmath.Int `json:"shares"`
	Principal sdkmath.Int `json:"principal"`
	Claim     sdkmath.Int `json:"claim"`
	Yield     sdkmath.Int `json:"yield"`
}

// HolderSnapshot is the persisted form of one holder record.
type HolderSnapshot struct {
	Address   string      `json:"address"`
	Shares    sdkmath.Int `json:"shares"`
	Principal sdkmath.Int `json:"principal"`
}

// ShareAllowance is one persisted owner/spender approval.
type ShareAllowance struct {
	Owner   string      `json:"owner"`
	Spender string      `json:"spender"`
	Shares  sdkmath.Int `json:"shares"`
}

// Snapshot is a complete, restorable copy of the ledger state.
type Snapshot struct {
	TotalShares sdkmath.Int      `json:"total_shares"`
	TotalAssets sdkmath.Int      `json:"total_assets"`
	Holders     []HolderSnapshot `json:"holders,omitempty"`
	Allowances  []ShareAllowance `json:"allowances,omitempty"`
}

func (v *Vault) holderLocked(addr string) *holderRecord {
	rec, ok := v.holders[addr]
	if !ok {
		rec = &holderRecord{shares: sdkmath.ZeroInt(), principal: sdkmath.ZeroInt()}
		v.holders[addr] = rec
	}
	return rec
}

func (v *Vault) shareAllowanceLocked(owner, spender string) sdkmath.Int {
	if m, ok := v.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return a
		}
	}
	return sdkmath.ZeroInt()
}

// setShareAllowanceLocked stores the approval, deleting emptied entries so
// the map never accumulates zero rows.
func (v *Vault) setShareAllowanceLocked(owner, spender string, shares sdkmath.Int) {
	m, ok := v.allowances[owner]
	if shares.IsZero() {
		if ok {
			delete(m, spender)
			if len(m) == 0 {
				delete(v.allowances, owner)
			}
		}
		return
	}
	if !ok {
		m = make(map[string]sdkmath.Int)
		v.allowances[owner] = m
	}
	m[spender] = shares
}

// claimOfLocked is the read-side claim: unknown holders and empty pools
// yield zero rather than an error.
func (v *Vault) claimOfLocked(addr string) sdkmath.Int {
	rec, ok := v.holders[addr]
	if !ok || rec.shares.IsZero() || v.totalShares.IsZero() {
		return sdkmath.ZeroInt()
	}
	claim, err := assetsForShares(rec.shares, v.totalShares, v.totalAssets)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	return claim
}

// SharesOf returns the holder's share balance, zero for unknown holders.
func (v *Vault) SharesOf(addr string) sdkmath.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if rec, ok := v.holders[addr]; ok {
		return rec.shares
	}
	return sdkmath.ZeroInt()
}

// PrincipalOf returns the holder's recorded principal, zero for unknown holders.
func (v *Vault) PrincipalOf(addr string) sdkmath.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if rec, ok := v.holders[addr]; ok {
		return rec.principal
	}
	return sdkmath.ZeroInt()
}

// ClaimOf returns the holder's current total entitlement in asset units.
func (v *Vault) ClaimOf(addr string) sdkmath.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.claimOfLocked(addr)
}

// YieldOf returns max(0, claim - principal) against the current rate.
// Floor rounding can transiently leave principal a unit above claim; the
// clamp keeps yield at zero there instead of going negative.
func (v *Vault) YieldOf(addr string) sdkmath.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	rec, ok := v.holders[addr]
	if !ok {
		return sdkmath.ZeroInt()
	}
	claim := v.claimOfLocked(addr)
	if claim.LTE(rec.principal) {
		return sdkmath.ZeroInt()
	}
	return claim.Sub(rec.principal)
}

// HolderOf returns the holder's full position at the current rate.
func (v *Vault) HolderOf(addr string) HolderState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	state := HolderState{
		Address:   addr,
		Shares:    sdkmath.ZeroInt(),
		Principal: sdkmath.ZeroInt(),
		Claim:     sdkmath.ZeroInt(),
		Yield:     sdkmath.ZeroInt(),
	}
	rec, ok := v.holders[addr]
	if !ok {
		return state
	}
	state.Shares = rec.shares
	state.Principal = rec.principal
	state.Claim = v.claimOfLocked(addr)
	if state.Claim.GT(rec.principal) {
		state.Yield = state.Claim.Sub(rec.principal)
	}
	return state
}

// ShareAllowanceOf returns the spender's remaining approval over the
// owner's shares.
func (v *Vault) ShareAllowanceOf(owner, spender string) sdkmath.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.shareAllowanceLocked(owner, spender)
}

// Totals returns the outstanding shares and pooled assets.
func (v *Vault) Totals() (totalShares, totalAssets sdkmath.Int) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.totalShares, v.totalAssets
}

// HolderCount returns the number of holder records ever created.
func (v *Vault) HolderCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.holders)
}

// PreviewDeposit returns the shares a deposit would mint right now,
// applying exactly the checks and rounding Deposit applies.
func (v *Vault) PreviewDeposit(assets sdkmath.Int) (sdkmath.Int, error) {
	if err := validAmount(assets); err != nil {
		return sdkmath.Int{}, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.totalAssets.Add(assets).GT(MaxAmount) {
		return sdkmath.Int{}, ErrAmountOverflow
	}
	shares, err := sharesForDeposit(assets, v.totalShares, v.totalAssets)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if shares.IsZero() {
		return sdkmath.Int{}, fmt.Errorf("deposit of %s mints no shares: %w", assets, ErrInvalidAmount)
	}
	return shares, nil
}

// PreviewRedeem returns the assets a redemption would pay right now,
// applying exactly the checks and rounding Redeem applies.
func (v *Vault) PreviewRedeem(shares sdkmath.Int) (sdkmath.Int, error) {
	if err := validAmount(shares); err != nil {
		return sdkmath.Int{}, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	assets, err := assetsForShares(shares, v.totalShares, v.totalAssets)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if assets.IsZero() {
		return sdkmath.Int{}, fmt.Errorf("redeem of %s shares pays nothing: %w", shares, ErrZeroClaimWithdrawal)
	}
	return assets, nil
}

// MaxWithdraw returns the most assets the owner can withdraw: their claim.
func (v *Vault) MaxWithdraw(owner string) sdkmath.Int {
	return v.ClaimOf(owner)
}

// MaxRedeem returns the most shares the owner can redeem: their balance.
func (v *Vault) MaxRedeem(owner string) sdkmath.Int {
	return v.SharesOf(owner)
}

// Snapshot copies the full ledger state, holders and allowances sorted by
// address for deterministic output.
func (v *Vault) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	snap := Snapshot{
		TotalShares: v.totalShares,
		TotalAssets: v.totalAssets,
	}
	for addr, rec := range v.holders {
		snap.Holders = append(snap.Holders, HolderSnapshot{
			Address:   addr,
			Shares:    rec.shares,
			Principal: rec.principal,
		})
	}
	sort.Slice(snap.Holders, func(i, j int) bool {
		return snap.Holders[i].Address < snap.Holders[j].Address
	})
	for owner, m := range v.allowances {
		for spender, shares := range m {
			snap.Allowances = append(snap.Allowances, ShareAllowance{
				Owner:   owner,
				Spender: spender,
				Shares:  shares,
			})
		}
	}
	sort.Slice(snap.Allowances, func(i, j int) bool {
		if snap.Allowances[i].Owner != snap.Allowances[j].Owner {
			return snap.Allowances[i].Owner < snap.Allowances[j].Owner
		}
		return snap.Allowances[i].Spender < snap.Allowances[j].Spender
	})
	return snap
}

// Restore replaces the ledger state with a snapshot after verifying its
// invariants: non-negative in-range quantities, holder shares summing to
// the total, and no shares outstanding over an empty pool.
func (v *Vault) Restore(snap Snapshot) error {
	if snap.TotalShares.IsNil() || snap.TotalAssets.IsNil() ||
		snap.TotalShares.IsNegative() || snap.TotalAssets.IsNegative() {
		return fmt.Errorf("negative or missing totals: %w", ErrCorruptSnapshot)
	}
	if snap.TotalShares.GT(MaxAmount) || snap.TotalAssets.GT(MaxAmount) {
		return fmt.Errorf("totals out of range: %w", ErrCorruptSnapshot)
	}
	if snap.TotalAssets.IsZero() && !snap.TotalShares.IsZero() {
		return fmt.Errorf("shares outstanding over empty pool: %w", ErrCorruptSnapshot)
	}

	holders := make(map[string]*holderRecord, len(snap.Holders))
	sum := sdkmath.ZeroInt()
	for _, h := range snap.Holders {
		if h.Address == "" {
			return fmt.Errorf("holder with empty address: %w", ErrCorruptSnapshot)
		}
		if h.Shares.IsNil() || h.Principal.IsNil() || h.Shares.IsNegative() || h.Principal.IsNegative() {
			return fmt.Errorf("holder %s has invalid quantities: %w", h.Address, ErrCorruptSnapshot)
		}
		if _, dup := holders[h.Address]; dup {
			return fmt.Errorf("duplicate holder %s: %w", h.Address, ErrCorruptSnapshot)
		}
		holders[h.Address] = &holderRecord{shares: h.Shares, principal: h.Principal}
		sum = sum.Add(h.Shares)
	}
	if !sum.Equal(snap.TotalShares) {
		return fmt.Errorf("holder shares %s do not sum to total %s: %w",
			sum, snap.TotalShares, ErrCorruptSnapshot)
	}

	allowances := make(map[string]map[string]sdkmath.Int)
	for _, a := range snap.Allowances {
		if a.Owner == "" || a.Spender == "" || a.Shares.IsNil() || a.Shares.IsNegative() {
			return fmt.Errorf("invalid share allowance: %w", ErrCorruptSnapshot)
		}
		if a.Shares.IsZero() {
			continue
		}
		m, ok := allowances[a.Owner]
		if !ok {
			m = make(map[string]sdkmath.Int)
			allowances[a.Owner] = m
		}
		m[a.Spender] = a.Shares
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.totalShares = snap.TotalShares
	v.totalAssets = snap.TotalAssets
	v.holders = holders
	v.allowances = allowances
	return nil
}
