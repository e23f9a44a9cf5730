// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package token implements the in-process fungible-asset ledger the vault
// pulls deposits from and pays withdrawals into. Semantics are the ordinary
// ERC-20 set: mint, transfer, approve, and allowance-checked transferFrom.
// There is no unlimited-allowance sentinel; every spend decrements the
// allowance exactly. The conserved quantity is sum(balances) == totalSupply.
//
// The vault consumes this through the narrow ledger.AssetLedger interface,
// so a remote asset ledger could be substituted without touching the vault.
package token

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/AleutianAI/AleutianVault/services/vault/ledger"
)

// Sentinel errors for the asset ledger. Failed operations leave every
// balance and allowance unchanged.
var (
	// ErrInsufficientBalance indicates the source account cannot cover
	// the transfer.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance indicates the spender's approval cannot
	// cover the transfer.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Balance is one persisted account balance.
type Balance struct {
	Address string      `json:"address"`
	Amount  sdkmath.Int `json:"amount"`
}

// Allowance is one persisted owner/spender approval.
type Allowance struct {
	Owner   string      `json:"owner"`
	Spender string      `json:"spender"`
	Amount  sdkmath.Int `json:"amount"`
}

// Snapshot is a complete, restorable copy of the asset ledger state.
type Snapshot struct {
	Supply     sdkmath.Int `json:"supply"`
	Balances   []Balance   `json:"balances,omitempty"`
	Allowances []Allowance `json:"allowances,omitempty"`
}

// Ledger is a balance/allowance ledger for a single denomination. All
// methods are safe for concurrent use; each mutating call applies fully
// or not at all.
type Ledger struct {
	mu    sync.RWMutex
	denom string

	supply     sdkmath.Int
	balances   map[string]sdkmath.Int
	allowances map[string]map[string]sdkmath.Int
}

var _ ledger.AssetLedger = (*Ledger)(nil)

// NewLedger creates an empty ledger for the given denomination.
func NewLedger(denom string) *Ledger {
	return &Ledger{
		denom:      denom,
		supply:     sdkmath.ZeroInt(),
		balances:   make(map[string]sdkmath.Int),
		allowances: make(map[string]map[string]sdkmath.Int),
	}
}

// Denom returns the ledger's denomination, e.g. "ualeut".
func (l *Ledger) Denom() string {
	return l.denom
}

// Mint creates new supply in the recipient's account. Supply is capped at
// ledger.MaxAmount; the privileged-capability check lives at the API
// boundary, not here.
func (l *Ledger) Mint(to string, amount sdkmath.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if to == "" {
		return fmt.Errorf("mint recipient must not be empty")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.supply.Add(amount).GT(ledger.MaxAmount) {
		return ledger.ErrAmountOverflow
	}
	l.balances[to] = l.balanceLocked(to).Add(amount)
	l.supply = l.supply.Add(amount)
	return nil
}

// Transfer moves amount between two accounts.
func (l *Ledger) Transfer(from, to string, amount sdkmath.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if from == "" || to == "" {
		return fmt.Errorf("transfer accounts must not be empty")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moveLocked(from, to, amount)
}

// TransferFrom moves amount out of the owner's account using the spender's
// allowance. The allowance is always consulted, even when spender == from,
// and decrements by exactly the transferred amount.
func (l *Ledger) TransferFrom(spender, from, to string, amount sdkmath.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if spender == "" || from == "" || to == "" {
		return fmt.Errorf("transfer accounts must not be empty")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balanceLocked(from).LT(amount) {
		return fmt.Errorf("%s has %s, moving %s: %w",
			from, l.balanceLocked(from), amount, ErrInsufficientBalance)
	}
	allow := l.allowanceLocked(from, spender)
	if allow.LT(amount) {
		return fmt.Errorf("%s approved %s for %s, moving %s: %w",
			from, allow, spender, amount, ErrInsufficientAllowance)
	}
	l.setAllowanceLocked(from, spender, allow.Sub(amount))
	return l.moveLocked(from, to, amount)
}

// Approve sets (not adjusts) the spender's allowance over the owner's
// balance. A zero amount revokes the approval.
func (l *Ledger) Approve(owner, spender string, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return ledger.ErrInvalidAmount
	}
	if amount.GT(ledger.MaxAmount) {
		return ledger.ErrAmountOverflow
	}
	if owner == "" || spender == "" {
		return fmt.Errorf("owner and spender must not be empty")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setAllowanceLocked(owner, spender, amount)
	return nil
}

// BalanceOf returns the account's balance, zero for unknown accounts.
func (l *Ledger) BalanceOf(addr string) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(addr)
}

// AllowanceOf returns the spender's remaining approval over the owner's
// balance.
func (l *Ledger) AllowanceOf(owner, spender string) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowanceLocked(owner, spender)
}

// AllowancesOf returns every outbound approval of the owner, sorted by
// spender for deterministic output.
func (l *Ledger) AllowancesOf(owner string) []Allowance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.allowances[owner]
	if !ok {
		return nil
	}
	out := make([]Allowance, 0, len(m))
	for spender, amount := range m {
		out = append(out, Allowance{Owner: owner, Spender: spender, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Spender < out[j].Spender })
	return out
}

// TotalSupply returns the minted supply.
func (l *Ledger) TotalSupply() sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply
}

// Snapshot copies the full ledger state, balances and allowances sorted
// by address for deterministic output.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := Snapshot{Supply: l.supply}
	for addr, amount := range l.balances {
		if amount.IsZero() {
			continue
		}
		snap.Balances = append(snap.Balances, Balance{Address: addr, Amount: amount})
	}
	sort.Slice(snap.Balances, func(i, j int) bool {
		return snap.Balances[i].Address < snap.Balances[j].Address
	})
	for owner, m := range l.allowances {
		for spender, amount := range m {
			snap.Allowances = append(snap.Allowances, Allowance{
				Owner:   owner,
				Spender: spender,
				Amount:  amount,
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
// invariants: non-negative in-range quantities and balances summing to
// the supply.
func (l *Ledger) Restore(snap Snapshot) error {
	if snap.Supply.IsNil() || snap.Supply.IsNegative() || snap.Supply.GT(ledger.MaxAmount) {
		return fmt.Errorf("supply out of range: %w", ledger.ErrCorruptSnapshot)
	}

	balances := make(map[string]sdkmath.Int, len(snap.Balances))
	sum := sdkmath.ZeroInt()
	for _, b := range snap.Balances {
		if b.Address == "" {
			return fmt.Errorf("balance with empty address: %w", ledger.ErrCorruptSnapshot)
		}
		if b.Amount.IsNil() || b.Amount.IsNegative() {
			return fmt.Errorf("account %s has invalid balance: %w", b.Address, ledger.ErrCorruptSnapshot)
		}
		if _, dup := balances[b.Address]; dup {
			return fmt.Errorf("duplicate account %s: %w", b.Address, ledger.ErrCorruptSnapshot)
		}
		balances[b.Address] = b.Amount
		sum = sum.Add(b.Amount)
	}
	if !sum.Equal(snap.Supply) {
		return fmt.Errorf("balances %s do not sum to supply %s: %w",
			sum, snap.Supply, ledger.ErrCorruptSnapshot)
	}

	allowances := make(map[string]map[string]sdkmath.Int)
	for _, a := range snap.Allowances {
		if a.Owner == "" || a.Spender == "" || a.Amount.IsNil() || a.Amount.IsNegative() {
			return fmt.Errorf("invalid allowance: %w", ledger.ErrCorruptSnapshot)
		}
		if a.Amount.IsZero() {
			continue
		}
		m, ok := allowances[a.Owner]
		if !ok {
			m = make(map[string]sdkmath.Int)
			allowances[a.Owner] = m
		}
		m[a.Spender] = a.Amount
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.supply = snap.Supply
	l.balances = balances
	l.allowances = allowances
	return nil
}

// moveLocked debits from and credits to; the balance check covers the
// from == to identity case as well.
func (l *Ledger) moveLocked(from, to string, amount sdkmath.Int) error {
	bal := l.balanceLocked(from)
	if bal.LT(amount) {
		return fmt.Errorf("%s has %s, moving %s: %w", from, bal, amount, ErrInsufficientBalance)
	}
	l.balances[from] = bal.Sub(amount)
	l.balances[to] = l.balanceLocked(to).Add(amount)
	return nil
}

func (l *Ledger) balanceLocked(addr string) sdkmath.Int {
	if b, ok := l.balances[addr]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

func (l *Ledger) allowanceLocked(owner, spender string) sdkmath.Int {
	if m, ok := l.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return a
		}
	}
	return sdkmath.ZeroInt()
}

// setAllowanceLocked stores the approval, deleting emptied entries so the
// map never accumulates zero rows.
func (l *Ledger) setAllowanceLocked(owner, spender string, amount sdkmath.Int) {
	m, ok := l.allowances[owner]
	if amount.IsZero() {
		if ok {
			delete(m, spender)
			if len(m) == 0 {
				delete(l.allowances, owner)
			}
		}
		return
	}
	if !ok {
		m = make(map[string]sdkmath.Int)
		l.allowances[owner] = m
	}
	m[spender] = amount
}

// validAmount rejects nil, non-positive, and out-of-bound quantities,
// mirroring the vault ledger's rule so both ledgers share one bound.
func validAmount(v sdkmath.Int) error {
	if v.IsNil() || !v.IsPositive() {
		return ledger.ErrInvalidAmount
	}
	if v.GT(ledger.MaxAmount) {
		return ledger.ErrAmountOverflow
	}
	return nil
}
