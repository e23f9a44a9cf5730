// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package token

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	sdkmath "cosmossdk.io/math"

	"github.com/AleutianAI/AleutianVault/services/vault/ledger"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger("ualeut")
}

// assertConservation checks that the sum of every balance equals the
// minted supply after any sequence of operations.
func assertConservation(t *testing.T, l *Ledger) {
	t.Helper()
	snap := l.Snapshot()
	sum := sdkmath.ZeroInt()
	for _, b := range snap.Balances {
		if b.Amount.IsNegative() {
			t.Fatalf("conservation broken: %s has negative balance %s", b.Address, b.Amount)
		}
		sum = sum.Add(b.Amount)
	}
	if !sum.Equal(snap.Supply) {
		t.Fatalf("conservation broken: balances sum to %s, supply is %s", sum, snap.Supply)
	}
}

func TestMintCreditsAndGrowsSupply(t *testing.T) {
	l := newTestLedger(t)

	if err := l.Mint("alice", sdkmath.NewInt(500)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := l.Mint("alice", sdkmath.NewInt(250)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := l.Mint("bob", sdkmath.NewInt(100)); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	if got := l.BalanceOf("alice"); !got.Equal(sdkmath.NewInt(750)) {
		t.Errorf("alice balance = %s, want 750", got)
	}
	if got := l.TotalSupply(); !got.Equal(sdkmath.NewInt(850)) {
		t.Errorf("supply = %s, want 850", got)
	}
	assertConservation(t, l)
}

func TestMintSupplyCeiling(t *testing.T) {
	l := newTestLedger(t)

	if err := l.Mint("alice", ledger.MaxAmount); err != nil {
		t.Fatalf("Mint at ceiling: %v", err)
	}
	if err := l.Mint("bob", sdkmath.OneInt()); !errors.Is(err, ledger.ErrAmountOverflow) {
		t.Fatalf("Mint past ceiling = %v, want ErrAmountOverflow", err)
	}
	assertConservation(t, l)
}

func TestTransfer(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Mint("alice", sdkmath.NewInt(100)); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	if err := l.Transfer("alice", "bob", sdkmath.NewInt(60)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := l.BalanceOf("alice"); !got.Equal(sdkmath.NewInt(40)) {
		t.Errorf("alice balance = %s, want 40", got)
	}
	if got := l.BalanceOf("bob"); !got.Equal(sdkmath.NewInt(60)) {
		t.Errorf("bob balance = %s, want 60", got)
	}
	assertConservation(t, l)
}

func TestTransferInsufficientBalance(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Mint("alice", sdkmath.NewInt(10)); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	err := l.Transfer("alice", "bob", sdkmath.NewInt(11))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("Transfer = %v, want ErrInsufficientBalance", err)
	}
	if got := l.BalanceOf("alice"); !got.Equal(sdkmath.NewInt(10)) {
		t.Errorf("failed transfer mutated alice to %s", got)
	}
	if got := l.BalanceOf("bob"); !got.IsZero() {
		t.Errorf("failed transfer credited bob with %s", got)
	}
	assertConservation(t, l)
}

func TestTransferToSelf(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Mint("alice", sdkmath.NewInt(100)); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	if err := l.Transfer("alice", "alice", sdkmath.NewInt(100)); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if got := l.BalanceOf("alice"); !got.Equal(sdkmath.NewInt(100)) {
		t.Errorf("self transfer changed balance to %s", got)
	}
	assertConservation(t, l)
}

func TestTransferFromDecrementsAllowanceExactly(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Mint("alice", sdkmath.NewInt(1000)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := l.Approve("alice", "pool", sdkmath.NewInt(300)); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if err := l.TransferFrom("pool", "alice", "pool", sdkmath.NewInt(120)); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}
	if got := l.AllowanceOf("alice", "pool"); !got.Equal(sdkmath.NewInt(180)) {
		t.Errorf("allowance = %s, want exactly 300-120=180", got)
	}

	if err := l.TransferFrom("pool", "alice", "pool", sdkmath.NewInt(180)); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}
	if got := l.AllowanceOf("alice", "pool"); !got.IsZero() {
		t.Errorf("spent allowance = %s, want 0", got)
	}

	err := l.TransferFrom("pool", "alice", "pool", sdkmath.OneInt())
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("TransferFrom past allowance = %v, want ErrInsufficientAllowance", err)
	}
	if got := l.BalanceOf("pool"); !got.Equal(sdkmath.NewInt(300)) {
		t.Errorf("pool balance = %s, want 300", got)
	}
	assertConservation(t, l)
}

func TestTransferFromChecksBalanceBeforeAllowance(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Mint("alice", sdkmath.NewInt(50)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := l.Approve("alice", "pool", sdkmath.NewInt(500)); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	err := l.TransferFrom("pool", "alice", "pool", sdkmath.NewInt(100))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("TransferFrom = %v, want ErrInsufficientBalance", err)
	}
	if got := l.AllowanceOf("alice", "pool"); !got.Equal(sdkmath.NewInt(500)) {
		t.Errorf("failed transfer spent allowance down to %s", got)
	}
	assertConservation(t, l)
}

func TestApproveSetsAbsoluteAndRevokes(t *testing.T) {
	l := newTestLedger(t)

	if err := l.Approve("alice", "pool", sdkmath.NewInt(100)); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := l.Approve("alice", "pool", sdkmath.NewInt(40)); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got := l.AllowanceOf("alice", "pool"); !got.Equal(sdkmath.NewInt(40)) {
		t.Errorf("allowance = %s, want the re-approved 40, not a sum", got)
	}

	if err := l.Approve("alice", "pool", sdkmath.ZeroInt()); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if got := l.AllowanceOf("alice", "pool"); !got.IsZero() {
		t.Errorf("revoked allowance = %s, want 0", got)
	}
	if got := l.AllowancesOf("alice"); len(got) != 0 {
		t.Errorf("revoked approval still listed: %v", got)
	}
}

func TestAllowancesOfSorted(t *testing.T) {
	l := newTestLedger(t)
	for _, spender := range []string{"zeta", "alpha", "mid"} {
		if err := l.Approve("alice", spender, sdkmath.NewInt(5)); err != nil {
			t.Fatalf("Approve(%s): %v", spender, err)
		}
	}

	got := l.AllowancesOf("alice")
	if len(got) != 3 {
		t.Fatalf("AllowancesOf returned %d entries, want 3", len(got))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if got[i].Spender != want {
			t.Errorf("entry %d spender = %s, want %s", i, got[i].Spender, want)
		}
	}
}

func TestInvalidAmounts(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Mint("alice", sdkmath.NewInt(10)); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	cases := []struct {
		name string
		call func() error
		want error
	}{
		{"mint zero", func() error { return l.Mint("alice", sdkmath.ZeroInt()) }, ledger.ErrInvalidAmount},
		{"mint negative", func() error { return l.Mint("alice", sdkmath.NewInt(-1)) }, ledger.ErrInvalidAmount},
		{"mint nil", func() error { return l.Mint("alice", sdkmath.Int{}) }, ledger.ErrInvalidAmount},
		{"transfer zero", func() error { return l.Transfer("alice", "bob", sdkmath.ZeroInt()) }, ledger.ErrInvalidAmount},
		{"transfer over bound", func() error {
			return l.Transfer("alice", "bob", ledger.MaxAmount.Add(sdkmath.OneInt()))
		}, ledger.ErrAmountOverflow},
		{"transferFrom zero", func() error {
			return l.TransferFrom("pool", "alice", "bob", sdkmath.ZeroInt())
		}, ledger.ErrInvalidAmount},
		{"approve negative", func() error { return l.Approve("alice", "pool", sdkmath.NewInt(-5)) }, ledger.ErrInvalidAmount},
		{"approve over bound", func() error {
			return l.Approve("alice", "pool", ledger.MaxAmount.Add(sdkmath.OneInt()))
		}, ledger.ErrAmountOverflow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.call(); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
	assertConservation(t, l)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Mint("alice", sdkmath.NewInt(700)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := l.Mint("bob", sdkmath.NewInt(300)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := l.Approve("alice", "pool", sdkmath.NewInt(50)); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	snap := l.Snapshot()
	restored := NewLedger("ualeut")
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if got := restored.BalanceOf("alice"); !got.Equal(sdkmath.NewInt(700)) {
		t.Errorf("restored alice = %s, want 700", got)
	}
	if got := restored.AllowanceOf("alice", "pool"); !got.Equal(sdkmath.NewInt(50)) {
		t.Errorf("restored allowance = %s, want 50", got)
	}
	if got := restored.TotalSupply(); !got.Equal(sdkmath.NewInt(1000)) {
		t.Errorf("restored supply = %s, want 1000", got)
	}
	assertConservation(t, restored)
}

func TestRestoreRejectsCorruptSnapshots(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
	}{
		{"nil supply", Snapshot{}},
		{"negative supply", Snapshot{Supply: sdkmath.NewInt(-1)}},
		{"balances exceed supply", Snapshot{
			Supply:   sdkmath.NewInt(10),
			Balances: []Balance{{Address: "alice", Amount: sdkmath.NewInt(20)}},
		}},
		{"balances below supply", Snapshot{
			Supply:   sdkmath.NewInt(30),
			Balances: []Balance{{Address: "alice", Amount: sdkmath.NewInt(20)}},
		}},
		{"duplicate account", Snapshot{
			Supply: sdkmath.NewInt(20),
			Balances: []Balance{
				{Address: "alice", Amount: sdkmath.NewInt(10)},
				{Address: "alice", Amount: sdkmath.NewInt(10)},
			},
		}},
		{"empty address", Snapshot{
			Supply:   sdkmath.NewInt(10),
			Balances: []Balance{{Address: "", Amount: sdkmath.NewInt(10)}},
		}},
		{"negative allowance", Snapshot{
			Supply:     sdkmath.ZeroInt(),
			Allowances: []Allowance{{Owner: "a", Spender: "b", Amount: sdkmath.NewInt(-1)}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLedger("ualeut")
			if err := l.Restore(tc.snap); !errors.Is(err, ledger.ErrCorruptSnapshot) {
				t.Errorf("Restore = %v, want ErrCorruptSnapshot", err)
			}
		})
	}
}

func TestConcurrentTransfersConserveSupply(t *testing.T) {
	l := newTestLedger(t)
	const workers = 8
	const rounds = 50

	for i := 0; i < workers; i++ {
		if err := l.Mint(fmt.Sprintf("acct-%d", i), sdkmath.NewInt(1000)); err != nil {
			t.Fatalf("Mint: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			from := fmt.Sprintf("acct-%d", n)
			to := fmt.Sprintf("acct-%d", (n+1)%workers)
			for r := 0; r < rounds; r++ {
				// Failures are fine; only conservation matters.
				_ = l.Transfer(from, to, sdkmath.NewInt(7))
			}
		}(i)
	}
	wg.Wait()

	if got := l.TotalSupply(); !got.Equal(sdkmath.NewInt(workers * 1000)) {
		t.Errorf("supply drifted to %s", got)
	}
	assertConservation(t, l)
}
