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
	"errors"
	"fmt"
	"sync"
	"testing"

	sdkmath "cosmossdk.io/math"
)

const vaultAddr = "pool"

// fakeAssets is a minimal balance/allowance ledger with injectable
// failures, so transfer aborts and payout rollbacks can be exercised
// without the real token package.
type fakeAssets struct {
	mu         sync.Mutex
	balances   map[string]sdkmath.Int
	allowances map[string]sdkmath.Int // "owner/spender"
	failPull   error
	failPay    error
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{
		balances:   make(map[string]sdkmath.Int),
		allowances: make(map[string]sdkmath.Int),
	}
}

func (f *fakeAssets) fund(addr string, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[addr] = f.balanceLocked(addr).Add(sdkmath.NewInt(amount))
}

func (f *fakeAssets) fundInt(addr string, amount sdkmath.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[addr] = f.balanceLocked(addr).Add(amount)
}

func (f *fakeAssets) approve(owner, spender string, amount sdkmath.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[owner+"/"+spender] = amount
}

func (f *fakeAssets) balance(addr string) sdkmath.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balanceLocked(addr)
}

func (f *fakeAssets) balanceLocked(addr string) sdkmath.Int {
	if b, ok := f.balances[addr]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

func (f *fakeAssets) Transfer(from, to string, amount sdkmath.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPay != nil {
		return f.failPay
	}
	bal := f.balanceLocked(from)
	if bal.LT(amount) {
		return fmt.Errorf("balance %s below %s", bal, amount)
	}
	f.balances[from] = bal.Sub(amount)
	f.balances[to] = f.balanceLocked(to).Add(amount)
	return nil
}

func (f *fakeAssets) TransferFrom(spender, from, to string, amount sdkmath.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPull != nil {
		return f.failPull
	}
	key := from + "/" + spender
	allow, ok := f.allowances[key]
	if !ok || allow.LT(amount) {
		return fmt.Errorf("allowance below %s", amount)
	}
	bal := f.balanceLocked(from)
	if bal.LT(amount) {
		return fmt.Errorf("balance %s below %s", bal, amount)
	}
	f.allowances[key] = allow.Sub(amount)
	f.balances[from] = bal.Sub(amount)
	f.balances[to] = f.balanceLocked(to).Add(amount)
	return nil
}

// newTestVault builds a vault plus a funded, vault-approved account per
// name so tests can deposit without transfer ceremony.
func newTestVault(t *testing.T, funding int64, accounts ...string) (*Vault, *fakeAssets) {
	t.Helper()
	assets := newFakeAssets()
	v, err := NewVault(vaultAddr, assets)
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	for _, acct := range accounts {
		assets.fund(acct, funding)
		assets.approve(acct, vaultAddr, sdkmath.NewInt(funding))
	}
	return v, assets
}

// assertInvariants checks the properties that must hold after every
// committed or aborted operation.
func assertInvariants(t *testing.T, v *Vault, assets *fakeAssets) {
	t.Helper()
	ts, ta := v.Totals()
	if ta.IsZero() && !ts.IsZero() {
		t.Fatalf("invariant broken: %s shares outstanding over empty pool", ts)
	}
	snap := v.Snapshot()
	sum := sdkmath.ZeroInt()
	for _, h := range snap.Holders {
		if h.Shares.IsNegative() || h.Principal.IsNegative() {
			t.Fatalf("invariant broken: holder %s has negative quantities", h.Address)
		}
		sum = sum.Add(h.Shares)
	}
	if !sum.Equal(ts) {
		t.Fatalf("invariant broken: holder shares %s != total %s", sum, ts)
	}
	if !assets.balance(vaultAddr).Equal(ta) {
		t.Fatalf("invariant broken: vault balance %s != totalAssets %s", assets.balance(vaultAddr), ta)
	}
	for _, h := range snap.Holders {
		y := v.YieldOf(h.Address)
		claim := v.ClaimOf(h.Address)
		want := sdkmath.ZeroInt()
		if claim.GT(h.Principal) {
			want = claim.Sub(h.Principal)
		}
		if !y.Equal(want) {
			t.Fatalf("invariant broken: yieldOf(%s) = %s, want max(0, %s-%s)",
				h.Address, y, claim, h.Principal)
		}
	}
}

func TestDepositBootstrap(t *testing.T) {
	v, assets := newTestVault(t, 1000, "alice")

	rcpt, err := v.Deposit("alice", "alice", sdkmath.NewInt(100))
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if !rcpt.Shares.Equal(sdkmath.NewInt(100)) {
		t.Errorf("bootstrap minted %s shares, want 100", rcpt.Shares)
	}
	if !v.PrincipalOf("alice").Equal(sdkmath.NewInt(100)) {
		t.Errorf("principal = %s, want 100", v.PrincipalOf("alice"))
	}
	if !v.YieldOf("alice").IsZero() {
		t.Errorf("yield = %s, want 0", v.YieldOf("alice"))
	}
	assertInvariants(t, v, assets)
}

// The single-holder walkthrough: deposit 100, inject 20, withdraw 60 of
// the 120 claim, leaving principal floor(100*60/120) = 50.
func TestSingleHolderLifecycle(t *testing.T) {
	v, assets := newTestVault(t, 1000, "alice", "operator")

	if _, err := v.Deposit("alice", "alice", sdkmath.NewInt(100)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if !v.PrincipalOf("alice").Equal(sdkmath.NewInt(100)) || !v.YieldOf("alice").IsZero() {
		t.Fatalf("after deposit: principal %s yield %s, want 100/0",
			v.PrincipalOf("alice"), v.YieldOf("alice"))
	}

	if _, err := v.InjectYield("operator", sdkmath.NewInt(20)); err != nil {
		t.Fatalf("InjectYield: %v", err)
	}
	if !v.YieldOf("alice").Equal(sdkmath.NewInt(20)) {
		t.Errorf("after injection: yield = %s, want 20", v.YieldOf("alice"))
	}
	if !v.PrincipalOf("alice").Equal(sdkmath.NewInt(100)) {
		t.Errorf("after injection: principal = %s, want 100", v.PrincipalOf("alice"))
	}
	if !v.ClaimOf("alice").Equal(sdkmath.NewInt(120)) {
		t.Errorf("after injection: claim = %s, want 120", v.ClaimOf("alice"))
	}

	rcpt, err := v.Withdraw("alice", "alice", "alice", sdkmath.NewInt(60))
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if !rcpt.Shares.Equal(sdkmath.NewInt(50)) {
		t.Errorf("withdraw burned %s shares, want 50", rcpt.Shares)
	}
	if !v.PrincipalOf("alice").Equal(sdkmath.NewInt(50)) {
		t.Errorf("after withdraw: principal = %s, want 50", v.PrincipalOf("alice"))
	}
	if !v.ClaimOf("alice").Equal(sdkmath.NewInt(60)) {
		t.Errorf("after withdraw: claim = %s, want 60", v.ClaimOf("alice"))
	}
	assertInvariants(t, v, assets)
}

// Two equal holders share an injection pro-rata without any principal or
// share movement.
func TestTwoHolderInjection(t *testing.T) {
	v, assets := newTestVault(t, 1000, "alice", "bob", "operator")

	for _, holder := range []string{"alice", "bob"} {
		if _, err := v.Deposit(holder, holder, sdkmath.NewInt(100)); err != nil {
			t.Fatalf("Deposit %s: %v", holder, err)
		}
	}
	before := v.Snapshot()

	if _, err := v.InjectYield("operator", sdkmath.NewInt(20)); err != nil {
		t.Fatalf("InjectYield: %v", err)
	}

	after := v.Snapshot()
	if len(before.Holders) != len(after.Holders) {
		t.Fatalf("injection changed holder count: %d -> %d", len(before.Holders), len(after.Holders))
	}
	for i := range before.Holders {
		if !before.Holders[i].Shares.Equal(after.Holders[i].Shares) {
			t.Errorf("injection moved shares for %s", before.Holders[i].Address)
		}
		if !before.Holders[i].Principal.Equal(after.Holders[i].Principal) {
			t.Errorf("injection moved principal for %s", before.Holders[i].Address)
		}
	}
	for _, holder := range []string{"alice", "bob"} {
		if !v.ClaimOf(holder).Equal(sdkmath.NewInt(110)) {
			t.Errorf("claim of %s = %s, want 110", holder, v.ClaimOf(holder))
		}
		if !v.YieldOf(holder).Equal(sdkmath.NewInt(10)) {
			t.Errorf("yield of %s = %s, want 10", holder, v.YieldOf(holder))
		}
	}
	assertInvariants(t, v, assets)
}

func TestFullWithdrawalClearsPrincipal(t *testing.T) {
	tests := []struct {
		name    string
		deposit int64
		inject  int64
	}{
		{name: "at par", deposit: 100, inject: 0},
		{name: "after clean yield", deposit: 100, inject: 20},
		{name: "after awkward yield", deposit: 97, inject: 31},
		{name: "single unit", deposit: 1, inject: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, assets := newTestVault(t, 10_000, "alice", "operator")
			if _, err := v.Deposit("alice", "alice", sdkmath.NewInt(tt.deposit)); err != nil {
				t.Fatalf("Deposit: %v", err)
			}
			if tt.inject > 0 {
				if _, err := v.InjectYield("operator", sdkmath.NewInt(tt.inject)); err != nil {
					t.Fatalf("InjectYield: %v", err)
				}
			}
			claim := v.ClaimOf("alice")
			if _, err := v.Withdraw("alice", "alice", "alice", claim); err != nil {
				t.Fatalf("Withdraw full claim %s: %v", claim, err)
			}
			if !v.PrincipalOf("alice").IsZero() {
				t.Errorf("principal after full withdrawal = %s, want 0", v.PrincipalOf("alice"))
			}
			if !v.SharesOf("alice").IsZero() {
				t.Errorf("shares after full withdrawal = %s, want 0", v.SharesOf("alice"))
			}
			assertInvariants(t, v, assets)
		})
	}
}

// Withdrawing a < claim keeps principal/claim constant to within one unit
// of floor rounding.
func TestProportionalDrawdownPreservesRatio(t *testing.T) {
	v, _ := newTestVault(t, 100_000, "alice", "operator")

	if _, err := v.Deposit("alice", "alice", sdkmath.NewInt(977)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if _, err := v.InjectYield("operator", sdkmath.NewInt(341)); err != nil {
		t.Fatalf("InjectYield: %v", err)
	}

	principalBefore := v.PrincipalOf("alice")
	claimBefore := v.ClaimOf("alice")
	withdraw := sdkmath.NewInt(500)

	if _, err := v.Withdraw("alice", "alice", "alice", withdraw); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}

	// Expected: floor(principalBefore * (claimBefore-withdraw) / claimBefore).
	want, err := mulDivFloor(principalBefore, claimBefore.Sub(withdraw), claimBefore)
	if err != nil {
		t.Fatalf("mulDivFloor: %v", err)
	}
	if !v.PrincipalOf("alice").Equal(want) {
		t.Errorf("principal = %s, want %s", v.PrincipalOf("alice"), want)
	}

	// Cross-check the preserved ratio: principal*claimBefore stays within
	// one claimBefore of principalBefore*claimAfter.
	claimAfter := v.ClaimOf("alice")
	lhs := v.PrincipalOf("alice").Mul(claimBefore)
	rhs := principalBefore.Mul(claimAfter)
	diff := rhs.Sub(lhs)
	if diff.IsNegative() {
		diff = diff.Neg()
	}
	if diff.GT(claimBefore.Add(claimAfter)) {
		t.Errorf("ratio drift too large: |%s - %s| > %s", lhs, rhs, claimBefore.Add(claimAfter))
	}
}

func TestRoundTripDepositWithdraw(t *testing.T) {
	amounts := []int64{1, 7, 100, 999_983}
	for _, amount := range amounts {
		t.Run(fmt.Sprintf("amount_%d", amount), func(t *testing.T) {
			v, assets := newTestVault(t, 10_000_000, "alice")
			if _, err := v.Deposit("alice", "alice", sdkmath.NewInt(amount)); err != nil {
				t.Fatalf("Deposit: %v", err)
			}
			claim := v.ClaimOf("alice")
			if !claim.Equal(sdkmath.NewInt(amount)) {
				t.Fatalf("claim after deposit = %s, want %d", claim, amount)
			}
			if _, err := v.Withdraw("alice", "alice", "alice", claim); err != nil {
				t.Fatalf("Withdraw: %v", err)
			}
			if !v.PrincipalOf("alice").IsZero() || !v.SharesOf("alice").IsZero() {
				t.Errorf("round trip left principal %s shares %s",
					v.PrincipalOf("alice"), v.SharesOf("alice"))
			}
			if !assets.balance("alice").Equal(sdkmath.NewInt(10_000_000)) {
				t.Errorf("round trip changed alice's balance: %s", assets.balance("alice"))
			}
			assertInvariants(t, v, assets)
		})
	}
}

func TestWithdrawErrors(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, v *Vault)
		caller  string
		owner   string
		amount  int64
		wantErr error
	}{
		{
			name:    "unknown holder",
			prepare: func(t *testing.T, v *Vault) {},
			caller:  "ghost", owner: "ghost", amount: 10,
			wantErr: ErrZeroClaimWithdrawal,
		},
		{
			name: "exited holder",
			prepare: func(t *testing.T, v *Vault) {
				mustDeposit(t, v, "alice", 100)
				mustWithdraw(t, v, "alice", 100)
			},
			caller: "alice", owner: "alice", amount: 1,
			wantErr: ErrZeroClaimWithdrawal,
		},
		{
			name: "more than claim",
			prepare: func(t *testing.T, v *Vault) {
				mustDeposit(t, v, "alice", 100)
			},
			caller: "alice", owner: "alice", amount: 101,
			wantErr: ErrInsufficientShares,
		},
		{
			name: "third party without approval",
			prepare: func(t *testing.T, v *Vault) {
				mustDeposit(t, v, "alice", 100)
			},
			caller: "bob", owner: "alice", amount: 10,
			wantErr: ErrInsufficientShareAllowance,
		},
		{
			name:    "zero amount",
			prepare: func(t *testing.T, v *Vault) { mustDeposit(t, v, "alice", 100) },
			caller:  "alice", owner: "alice", amount: 0,
			wantErr: ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, assets := newTestVault(t, 10_000, "alice", "bob")
			tt.prepare(t, v)
			before := v.Snapshot()

			_, err := v.Withdraw(tt.caller, tt.caller, tt.owner, sdkmath.NewInt(tt.amount))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Withdraw error = %v, want %v", err, tt.wantErr)
			}
			if !snapshotsEqual(before, v.Snapshot()) {
				t.Error("failed withdrawal mutated the ledger")
			}
			assertInvariants(t, v, assets)
		})
	}
}

// A dust position whose claim floors to zero is rejected before the
// proportional drawdown can divide by it. Such states cannot be reached
// through the public operations, so the test plants one via Restore.
func TestZeroClaimDustPositionRejected(t *testing.T) {
	assets := newFakeAssets()
	v, err := NewVault(vaultAddr, assets)
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	snap := Snapshot{
		TotalShares: sdkmath.NewInt(1000),
		TotalAssets: sdkmath.NewInt(5),
		Holders: []HolderSnapshot{
			{Address: "dust", Shares: sdkmath.NewInt(10), Principal: sdkmath.NewInt(10)},
			{Address: "whale", Shares: sdkmath.NewInt(990), Principal: sdkmath.NewInt(990)},
		},
	}
	if err := v.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	assets.fund(vaultAddr, 5)

	if _, err := v.Withdraw("dust", "dust", "dust", sdkmath.NewInt(1)); !errors.Is(err, ErrZeroClaimWithdrawal) {
		t.Errorf("Withdraw error = %v, want ErrZeroClaimWithdrawal", err)
	}
	if _, err := v.Redeem("dust", "dust", "dust", sdkmath.NewInt(10)); !errors.Is(err, ErrZeroClaimWithdrawal) {
		t.Errorf("Redeem error = %v, want ErrZeroClaimWithdrawal", err)
	}
}

func TestRedeem(t *testing.T) {
	v, assets := newTestVault(t, 10_000, "alice", "operator")
	mustDeposit(t, v, "alice", 100)
	if _, err := v.InjectYield("operator", sdkmath.NewInt(20)); err != nil {
		t.Fatalf("InjectYield: %v", err)
	}

	rcpt, err := v.Redeem("alice", "alice", "alice", sdkmath.NewInt(50))
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if !rcpt.Assets.Equal(sdkmath.NewInt(60)) {
		t.Errorf("redeem paid %s, want 60", rcpt.Assets)
	}
	if !v.PrincipalOf("alice").Equal(sdkmath.NewInt(50)) {
		t.Errorf("principal after redeem = %s, want 50", v.PrincipalOf("alice"))
	}

	// Redeeming the rest of the position clears principal exactly.
	if _, err := v.Redeem("alice", "alice", "alice", v.SharesOf("alice")); err != nil {
		t.Fatalf("Redeem remainder: %v", err)
	}
	if !v.PrincipalOf("alice").IsZero() || !v.SharesOf("alice").IsZero() {
		t.Errorf("full redeem left principal %s shares %s",
			v.PrincipalOf("alice"), v.SharesOf("alice"))
	}
	assertInvariants(t, v, assets)

	if _, err := v.Redeem("alice", "alice", "alice", sdkmath.NewInt(1)); !errors.Is(err, ErrZeroClaimWithdrawal) {
		t.Errorf("redeem on empty position error = %v, want ErrZeroClaimWithdrawal", err)
	}
}

func TestThirdPartyWithdrawConsumesAllowance(t *testing.T) {
	v, assets := newTestVault(t, 10_000, "alice", "bob")
	mustDeposit(t, v, "alice", 100)

	if err := v.ApproveShares("alice", "bob", sdkmath.NewInt(60)); err != nil {
		t.Fatalf("ApproveShares: %v", err)
	}

	if _, err := v.Withdraw("bob", "bob", "alice", sdkmath.NewInt(40)); err != nil {
		t.Fatalf("approved third-party withdraw: %v", err)
	}
	if !v.ShareAllowanceOf("alice", "bob").Equal(sdkmath.NewInt(20)) {
		t.Errorf("allowance after spend = %s, want 20", v.ShareAllowanceOf("alice", "bob"))
	}
	if !assets.balance("bob").Equal(sdkmath.NewInt(10_040)) {
		t.Errorf("receiver balance = %s, want 10040", assets.balance("bob"))
	}

	// The remaining approval cannot cover another 40 shares.
	if _, err := v.Withdraw("bob", "bob", "alice", sdkmath.NewInt(40)); !errors.Is(err, ErrInsufficientShareAllowance) {
		t.Errorf("over-allowance withdraw error = %v, want ErrInsufficientShareAllowance", err)
	}
	assertInvariants(t, v, assets)
}

func TestDepositTransferFailureLeavesStateUnchanged(t *testing.T) {
	v, assets := newTestVault(t, 10_000, "alice")
	mustDeposit(t, v, "alice", 100)
	before := v.Snapshot()

	assets.failPull = errors.New("asset ledger offline")
	if _, err := v.Deposit("alice", "alice", sdkmath.NewInt(50)); err == nil {
		t.Fatal("Deposit succeeded despite transfer failure")
	}
	assets.failPull = nil

	if !snapshotsEqual(before, v.Snapshot()) {
		t.Error("failed deposit mutated the ledger")
	}
	assertInvariants(t, v, assets)
}

func TestPayoutFailureRollsBack(t *testing.T) {
	v, assets := newTestVault(t, 10_000, "alice", "bob")
	mustDeposit(t, v, "alice", 100)
	if err := v.ApproveShares("alice", "bob", sdkmath.NewInt(100)); err != nil {
		t.Fatalf("ApproveShares: %v", err)
	}
	before := v.Snapshot()
	allowBefore := v.ShareAllowanceOf("alice", "bob")

	assets.failPay = errors.New("asset ledger offline")
	if _, err := v.Withdraw("bob", "bob", "alice", sdkmath.NewInt(60)); err == nil {
		t.Fatal("Withdraw succeeded despite payout failure")
	}
	assets.failPay = nil

	if !snapshotsEqual(before, v.Snapshot()) {
		t.Error("failed payout left a partial transition")
	}
	if !v.ShareAllowanceOf("alice", "bob").Equal(allowBefore) {
		t.Errorf("allowance not restored: %s, want %s", v.ShareAllowanceOf("alice", "bob"), allowBefore)
	}
	assertInvariants(t, v, assets)
}

func TestInjectYieldRequiresFunds(t *testing.T) {
	v, assets := newTestVault(t, 10, "operator")
	mustDepositFunded(t, v, assets, "alice", 100)
	before := v.Snapshot()

	if _, err := v.InjectYield("operator", sdkmath.NewInt(500)); err == nil {
		t.Fatal("InjectYield succeeded beyond the operator's balance")
	}
	if !snapshotsEqual(before, v.Snapshot()) {
		t.Error("failed injection mutated the ledger")
	}
}

func TestInjectYieldIntoEmptyPool(t *testing.T) {
	v, assets := newTestVault(t, 1000, "alice", "operator")

	if _, err := v.InjectYield("operator", sdkmath.NewInt(20)); err != nil {
		t.Fatalf("InjectYield into empty pool: %v", err)
	}
	ts, ta := v.Totals()
	if !ts.IsZero() || !ta.Equal(sdkmath.NewInt(20)) {
		t.Fatalf("totals = %s/%s, want 0/20", ts, ta)
	}

	// The stranded assets become instant yield for the first depositor:
	// bootstrap mints 1:1, then the claim includes the residual.
	mustDeposit(t, v, "alice", 100)
	if !v.ClaimOf("alice").Equal(sdkmath.NewInt(120)) {
		t.Errorf("claim = %s, want 120", v.ClaimOf("alice"))
	}
	if !v.YieldOf("alice").Equal(sdkmath.NewInt(20)) {
		t.Errorf("yield = %s, want 20", v.YieldOf("alice"))
	}
	assertInvariants(t, v, assets)
}

// A deposit too small to mint a share must be rejected, not donated.
// Reachable through public operations once the rate is high enough.
func TestDepositMintingZeroSharesRejected(t *testing.T) {
	v, assets := newTestVault(t, 10_000, "alice", "bob", "operator")
	mustDeposit(t, v, "alice", 1)
	if _, err := v.InjectYield("operator", sdkmath.NewInt(999)); err != nil {
		t.Fatalf("InjectYield: %v", err)
	}

	before := v.Snapshot()
	if _, err := v.Deposit("bob", "bob", sdkmath.NewInt(500)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("Deposit error = %v, want ErrInvalidAmount", err)
	}
	if !snapshotsEqual(before, v.Snapshot()) {
		t.Error("rejected deposit mutated the ledger")
	}
	if !assets.balance("bob").Equal(sdkmath.NewInt(10_000)) {
		t.Errorf("rejected deposit moved bob's assets: %s", assets.balance("bob"))
	}
}

func TestOverflowGuards(t *testing.T) {
	assets := newFakeAssets()
	v, err := NewVault(vaultAddr, assets)
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	assets.fundInt("whale", MaxAmount.Add(sdkmath.NewInt(10)))
	assets.approve("whale", vaultAddr, MaxAmount.Add(sdkmath.NewInt(10)))

	if _, err := v.Deposit("whale", "whale", MaxAmount); err != nil {
		t.Fatalf("Deposit at the bound: %v", err)
	}
	if _, err := v.Deposit("whale", "whale", sdkmath.OneInt()); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("over-bound deposit error = %v, want ErrAmountOverflow", err)
	}
	if _, err := v.InjectYield("whale", sdkmath.OneInt()); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("over-bound injection error = %v, want ErrAmountOverflow", err)
	}
	if _, err := v.Deposit("whale", "whale", MaxAmount.Add(sdkmath.OneInt())); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("oversized amount error = %v, want ErrAmountOverflow", err)
	}
}

func TestPreviewsMatchOperations(t *testing.T) {
	v, _ := newTestVault(t, 100_000, "alice", "bob", "operator")
	mustDeposit(t, v, "alice", 977)
	if _, err := v.InjectYield("operator", sdkmath.NewInt(341)); err != nil {
		t.Fatalf("InjectYield: %v", err)
	}

	for _, amount := range []int64{2, 13, 250, 999} {
		previewed, err := v.PreviewDeposit(sdkmath.NewInt(amount))
		if err != nil {
			t.Fatalf("PreviewDeposit(%d): %v", amount, err)
		}
		rcpt, err := v.Deposit("bob", "bob", sdkmath.NewInt(amount))
		if err != nil {
			t.Fatalf("Deposit(%d): %v", amount, err)
		}
		if !previewed.Equal(rcpt.Shares) {
			t.Errorf("PreviewDeposit(%d) = %s but Deposit minted %s", amount, previewed, rcpt.Shares)
		}
	}

	for _, shares := range []int64{1, 13, 77} {
		previewed, err := v.PreviewRedeem(sdkmath.NewInt(shares))
		if err != nil {
			t.Fatalf("PreviewRedeem(%d): %v", shares, err)
		}
		rcpt, err := v.Redeem("bob", "bob", "bob", sdkmath.NewInt(shares))
		if err != nil {
			t.Fatalf("Redeem(%d): %v", shares, err)
		}
		if !previewed.Equal(rcpt.Assets) {
			t.Errorf("PreviewRedeem(%d) = %s but Redeem paid %s", shares, previewed, rcpt.Assets)
		}
	}
}

func TestPreviewErrors(t *testing.T) {
	v, _ := newTestVault(t, 1000, "alice")

	if _, err := v.PreviewRedeem(sdkmath.NewInt(10)); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("PreviewRedeem on empty vault error = %v, want ErrDivisionByZero", err)
	}
	if _, err := v.PreviewDeposit(sdkmath.ZeroInt()); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("PreviewDeposit(0) error = %v, want ErrInvalidAmount", err)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	v, _ := newTestVault(t, 10_000, "alice", "bob", "operator")
	mustDeposit(t, v, "alice", 500)
	mustDeposit(t, v, "bob", 250)
	if _, err := v.InjectYield("operator", sdkmath.NewInt(75)); err != nil {
		t.Fatalf("InjectYield: %v", err)
	}
	if err := v.ApproveShares("alice", "bob", sdkmath.NewInt(40)); err != nil {
		t.Fatalf("ApproveShares: %v", err)
	}

	snap := v.Snapshot()

	restored, err := NewVault(vaultAddr, newFakeAssets())
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !snapshotsEqual(snap, restored.Snapshot()) {
		t.Error("restored snapshot differs from the original")
	}
	if !restored.ShareAllowanceOf("alice", "bob").Equal(sdkmath.NewInt(40)) {
		t.Errorf("allowance lost in restore: %s", restored.ShareAllowanceOf("alice", "bob"))
	}
}

func TestRestoreRejectsCorruptSnapshots(t *testing.T) {
	valid := Snapshot{
		TotalShares: sdkmath.NewInt(100),
		TotalAssets: sdkmath.NewInt(100),
		Holders: []HolderSnapshot{
			{Address: "alice", Shares: sdkmath.NewInt(100), Principal: sdkmath.NewInt(100)},
		},
	}

	tests := []struct {
		name   string
		mutate func(Snapshot) Snapshot
	}{
		{
			name: "shares do not sum",
			mutate: func(s Snapshot) Snapshot {
				s.TotalShares = sdkmath.NewInt(101)
				return s
			},
		},
		{
			name: "negative principal",
			mutate: func(s Snapshot) Snapshot {
				s.Holders = []HolderSnapshot{
					{Address: "alice", Shares: sdkmath.NewInt(100), Principal: sdkmath.NewInt(-1)},
				}
				return s
			},
		},
		{
			name: "shares over empty pool",
			mutate: func(s Snapshot) Snapshot {
				s.TotalAssets = sdkmath.ZeroInt()
				return s
			},
		},
		{
			name: "duplicate holder",
			mutate: func(s Snapshot) Snapshot {
				s.TotalShares = sdkmath.NewInt(200)
				s.Holders = []HolderSnapshot{
					{Address: "alice", Shares: sdkmath.NewInt(100), Principal: sdkmath.NewInt(100)},
					{Address: "alice", Shares: sdkmath.NewInt(100), Principal: sdkmath.NewInt(100)},
				}
				return s
			},
		},
		{
			name: "empty address",
			mutate: func(s Snapshot) Snapshot {
				s.Holders = []HolderSnapshot{
					{Address: "", Shares: sdkmath.NewInt(100), Principal: sdkmath.NewInt(100)},
				}
				return s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVault(vaultAddr, newFakeAssets())
			if err != nil {
				t.Fatalf("NewVault: %v", err)
			}
			if err := v.Restore(tt.mutate(valid)); !errors.Is(err, ErrCorruptSnapshot) {
				t.Errorf("Restore error = %v, want ErrCorruptSnapshot", err)
			}
		})
	}
}

func TestConcurrentDepositsAndWithdrawals(t *testing.T) {
	t.Parallel()
	const workers = 8
	const rounds = 50

	accounts := make([]string, workers)
	for i := range accounts {
		accounts[i] = fmt.Sprintf("holder-%d", i)
	}
	v, assets := newTestVault(t, 1_000_000, accounts...)

	var wg sync.WaitGroup
	for _, acct := range accounts {
		wg.Add(1)
		go func(acct string) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if _, err := v.Deposit(acct, acct, sdkmath.NewInt(100)); err != nil {
					t.Errorf("Deposit %s: %v", acct, err)
					return
				}
				if i%2 == 1 {
					claim := v.ClaimOf(acct)
					half := claim.Quo(sdkmath.NewInt(2))
					if half.IsZero() {
						continue
					}
					if _, err := v.Withdraw(acct, acct, acct, half); err != nil {
						t.Errorf("Withdraw %s: %v", acct, err)
						return
					}
				}
			}
		}(acct)
	}
	wg.Wait()
	assertInvariants(t, v, assets)
}

func BenchmarkDeposit(b *testing.B) {
	assets := newFakeAssets()
	v, err := NewVault(vaultAddr, assets)
	if err != nil {
		b.Fatalf("NewVault: %v", err)
	}
	assets.fundInt("alice", MaxAmount)
	assets.approve("alice", vaultAddr, MaxAmount)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := v.Deposit("alice", "alice", sdkmath.NewInt(10)); err != nil {
			b.Fatal(err)
		}
	}
}

func mustDeposit(t *testing.T, v *Vault, holder string, amount int64) {
	t.Helper()
	if _, err := v.Deposit(holder, holder, sdkmath.NewInt(amount)); err != nil {
		t.Fatalf("Deposit %s %d: %v", holder, amount, err)
	}
}

func mustDepositFunded(t *testing.T, v *Vault, assets *fakeAssets, holder string, amount int64) {
	t.Helper()
	assets.fund(holder, amount)
	assets.approve(holder, vaultAddr, sdkmath.NewInt(amount))
	mustDeposit(t, v, holder, amount)
}

func mustWithdraw(t *testing.T, v *Vault, holder string, amount int64) {
	t.Helper()
	if _, err := v.Withdraw(holder, holder, holder, sdkmath.NewInt(amount)); err != nil {
		t.Fatalf("Withdraw %s %d: %v", holder, amount, err)
	}
}

func snapshotsEqual(a, b Snapshot) bool {
	if !a.TotalShares.Equal(b.TotalShares) || !a.TotalAssets.Equal(b.TotalAssets) {
		return false
	}
	if len(a.Holders) != len(b.Holders) || len(a.Allowances) != len(b.Allowances) {
		return false
	}
	for i := range a.Holders {
		if a.Holders[i].Address != b.Holders[i].Address ||
			!a.Holders[i].Shares.Equal(b.Holders[i].Shares) ||
			!a.Holders[i].Principal.Equal(b.Holders[i].Principal) {
			return false
		}
	}
	for i := range a.Allowances {
		if a.Allowances[i].Owner != b.Allowances[i].Owner ||
			a.Allowances[i].Spender != b.Allowances[i].Spender ||
			!a.Allowances[i].Shares.Equal(b.Allowances[i].Shares) {
			return false
		}
	}
	return true
}
