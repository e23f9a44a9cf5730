// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides the business logic services for the vault.
//
// Design philosophy:
//   - Testable: services receive every dependency through their constructor
//     and hold no package-level state beyond a tracer.
//   - Composable: one service owns one flow end to end; handlers stay thin.
//   - Traceable: every operation opens an OTel span and records failures.
//
// VaultService is the single writer for pool state. Each transition runs
// the same pipeline: screen through the transition guard, apply to the
// in-memory ledgers, journal the committed state, broadcast the receipt,
// then report metrics and audit off the hot path. The guard check, ledger
// commit, journal write, and broadcast all happen under one mutex so every
// observer sees the same total order of transitions.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianVault/pkg/extensions"
	"github.com/AleutianAI/AleutianVault/services/vault/datatypes"
	"github.com/AleutianAI/AleutianVault/services/vault/events"
	"github.com/AleutianAI/AleutianVault/services/vault/ledger"
	"github.com/AleutianAI/AleutianVault/services/vault/observability"
	"github.com/AleutianAI/AleutianVault/services/vault/storage/badger"
	"github.com/AleutianAI/AleutianVault/services/vault/token"
)

var transitionTracer = otel.Tracer("aleutian.vault.services.transitions")

// VaultService orchestrates vault and token transitions against the
// in-memory ledgers and the Badger journal.
//
// All mutating methods serialize behind a single mutex: the transition
// guard, the ledger operation, the journal write, and the event broadcast
// run as one critical section. This keeps the journal sequence aligned
// with commit order and lets velocity-style guards observe a serialized
// stream of transitions rather than a race.
//
// Journal failures never un-commit a transition. The in-memory ledgers
// are the source of truth for a running process; a failed journal write
// is logged, counted, and the receipt is still broadcast.
type VaultService struct {
	mu     sync.Mutex
	vault  *ledger.Vault
	assets *token.Ledger
	store  *badger.Store
	hub    *events.Hub
	rates  *observability.RateRecorder
	opts   extensions.ServiceOptions
}

// NewVaultService creates a VaultService with the provided dependencies.
//
// Parameters:
//   - vault: the share-accounting ledger. Must not be nil.
//   - assets: the asset token ledger backing the vault. Must not be nil.
//   - store: the Badger-backed state store and transition journal.
//     Must not be nil.
//   - hub: the event hub receipts are broadcast to. Must not be nil.
//   - rates: optional InfluxDB rate recorder. May be nil; a nil recorder
//     drops samples.
//   - opts: extension points (guard, risk, audit). Zero-value fields are
//     not tolerated; pass extensions.DefaultOptions() for local use.
func NewVaultService(
	vault *ledger.Vault,
	assets *token.Ledger,
	store *badger.Store,
	hub *events.Hub,
	rates *observability.RateRecorder,
	opts extensions.ServiceOptions,
) *VaultService {
	return &VaultService{
		vault:  vault,
		assets: assets,
		store:  store,
		hub:    hub,
		rates:  rates,
		opts:   opts,
	}
}

// Denom returns the denomination of the asset token backing the vault.
func (s *VaultService) Denom() string {
	return s.assets.Denom()
}

// VaultAddress returns the address holding the pooled assets.
func (s *VaultService) VaultAddress() string {
	return s.vault.Address()
}

// Subscribe registers a live receipt feed. The returned cancel function
// must be called when the subscriber is done.
func (s *VaultService) Subscribe() (<-chan ledger.Receipt, func()) {
	return s.hub.Subscribe()
}

// ----------------------------------------------------------------------
// Vault transitions
// ----------------------------------------------------------------------

// Deposit moves assets from caller into the pool and mints shares to
// receiver. An empty receiver defaults to the caller.
//
// Returns the committed receipt, or an error if the guard blocked the
// transition or the ledger rejected it (bad amount, missing allowance,
// insufficient balance).
func (s *VaultService) Deposit(ctx context.Context, caller, receiver string, amount sdkmath.Int) (ledger.Receipt, error) {
	ctx, span := transitionTracer.Start(ctx, "VaultService.Deposit")
	defer span.End()

	if receiver == "" {
		receiver = caller
	}
	span.SetAttributes(
		attribute.String("vault.caller", caller),
		attribute.String("vault.receiver", receiver),
		attribute.String("vault.assets", amount.String()),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Step 1: Screen the transition before touching the ledger.
	if err := s.screenLocked(ctx, extensions.TransitionCheck{
		Op:       string(ledger.OpDeposit),
		Caller:   caller,
		Owner:    caller,
		Receiver: receiver,
		Amount:   amount.String(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "deposit blocked")
		return ledger.Receipt{}, err
	}

	// Step 2: Apply. The ledger pulls the assets via the token allowance
	// and mints shares atomically; any failure leaves both ledgers intact.
	rcpt, err := s.vault.Deposit(caller, receiver, amount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "deposit failed")
		return ledger.Receipt{}, err
	}

	// Step 3: Journal the rows the transition touched and broadcast.
	mut := badger.Mutation{
		Totals:  s.totalsRow(),
		Holders: []ledger.HolderSnapshot{s.holderRow(receiver)},
		Balances: []token.Balance{
			s.balanceRow(caller),
			s.balanceRow(s.vault.Address()),
		},
		TokenAllowances: []token.Allowance{s.tokenAllowanceRow(caller, s.vault.Address())},
	}
	s.commitLocked(ctx, &rcpt, mut)

	span.SetAttributes(attribute.String("vault.shares", rcpt.Shares.String()))
	s.afterTransition(ctx, rcpt, map[string]any{
		"assets":   rcpt.Assets.String(),
		"shares":   rcpt.Shares.String(),
		"receiver": receiver,
	})
	return rcpt, nil
}

// Withdraw pays out exactly amount assets to receiver, burning the
// minimum shares from owner that cover it. Empty receiver and owner
// default to the caller. A caller spending another owner's position
// consumes share allowance.
func (s *VaultService) Withdraw(ctx context.Context, caller, receiver, owner string, amount sdkmath.Int) (ledger.Receipt, error) {
	ctx, span := transitionTracer.Start(ctx, "VaultService.Withdraw")
	defer span.End()

	if receiver == "" {
		receiver = caller
	}
	if owner == "" {
		owner = caller
	}
	span.SetAttributes(
		attribute.String("vault.caller", caller),
		attribute.String("vault.owner", owner),
		attribute.String("vault.receiver", receiver),
		attribute.String("vault.assets", amount.String()),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Step 1: Screen. Withdrawals move funds out, so the receiver is also
	// run through the risk classifier.
	if err := s.screenLocked(ctx, extensions.TransitionCheck{
		Op:       string(ledger.OpWithdraw),
		Caller:   caller,
		Owner:    owner,
		Receiver: receiver,
		Amount:   amount.String(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "withdraw blocked")
		return ledger.Receipt{}, err
	}
	if err := s.screenReceiverLocked(ctx, receiver); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "withdraw blocked")
		return ledger.Receipt{}, err
	}

	// Step 2: Apply.
	rcpt, err := s.vault.Withdraw(caller, receiver, owner, amount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "withdraw failed")
		return ledger.Receipt{}, err
	}

	// Step 3: Journal and broadcast.
	s.commitLocked(ctx, &rcpt, s.exitMutation(caller, receiver, owner))

	span.SetAttributes(attribute.String("vault.shares", rcpt.Shares.String()))
	s.afterTransition(ctx, rcpt, map[string]any{
		"assets":   rcpt.Assets.String(),
		"shares":   rcpt.Shares.String(),
		"owner":    owner,
		"receiver": receiver,
	})
	return rcpt, nil
}

// Redeem burns exactly shares from owner and pays out their floored
// asset value to receiver. Empty receiver and owner default to the
// caller.
func (s *VaultService) Redeem(ctx context.Context, caller, receiver, owner string, shares sdkmath.Int) (ledger.Receipt, error) {
	ctx, span := transitionTracer.Start(ctx, "VaultService.Redeem")
	defer span.End()

	if receiver == "" {
		receiver = caller
	}
	if owner == "" {
		owner = caller
	}
	span.SetAttributes(
		attribute.String("vault.caller", caller),
		attribute.String("vault.owner", owner),
		attribute.String("vault.receiver", receiver),
		attribute.String("vault.shares", shares.String()),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Step 1: Screen.
	if err := s.screenLocked(ctx, extensions.TransitionCheck{
		Op:       string(ledger.OpRedeem),
		Caller:   caller,
		Owner:    owner,
		Receiver: receiver,
		Amount:   shares.String(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "redeem blocked")
		return ledger.Receipt{}, err
	}
	if err := s.screenReceiverLocked(ctx, receiver); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "redeem blocked")
		return ledger.Receipt{}, err
	}

	// Step 2: Apply.
	rcpt, err := s.vault.Redeem(caller, receiver, owner, shares)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "redeem failed")
		return ledger.Receipt{}, err
	}

	// Step 3: Journal and broadcast.
	s.commitLocked(ctx, &rcpt, s.exitMutation(caller, receiver, owner))

	span.SetAttributes(attribute.String("vault.assets", rcpt.Assets.String()))
	s.afterTransition(ctx, rcpt, map[string]any{
		"assets":   rcpt.Assets.String(),
		"shares":   rcpt.Shares.String(),
		"owner":    owner,
		"receiver": receiver,
	})
	return rcpt, nil
}

// InjectYield moves amount assets from the operator account into the
// pool without minting shares, raising every holder's claim pro-rata.
// Operator authentication happens at the transport layer; the service
// still screens the transition through the guard.
func (s *VaultService) InjectYield(ctx context.Context, from string, amount sdkmath.Int) (ledger.Receipt, error) {
	ctx, span := transitionTracer.Start(ctx, "VaultService.InjectYield")
	defer span.End()

	span.SetAttributes(
		attribute.String("vault.from", from),
		attribute.String("vault.assets", amount.String()),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Step 1: Screen.
	if err := s.screenLocked(ctx, extensions.TransitionCheck{
		Op:     string(ledger.OpYield),
		Caller: from,
		Owner:  from,
		Amount: amount.String(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "yield blocked")
		return ledger.Receipt{}, err
	}

	// Step 2: Apply.
	rcpt, err := s.vault.InjectYield(from, amount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "yield injection failed")
		return ledger.Receipt{}, err
	}

	// Step 3: Journal and broadcast. Yield touches no holder rows.
	mut := badger.Mutation{
		Totals: s.totalsRow(),
		Balances: []token.Balance{
			s.balanceRow(from),
			s.balanceRow(s.vault.Address()),
		},
		TokenAllowances: []token.Allowance{s.tokenAllowanceRow(from, s.vault.Address())},
	}
	s.commitLocked(ctx, &rcpt, mut)

	s.afterTransition(ctx, rcpt, map[string]any{
		"assets": rcpt.Assets.String(),
	})
	return rcpt, nil
}

// ApproveShares lets owner authorize spender to withdraw or redeem
// against owner's position. Approvals move no value, so they bypass the
// guard and the journal; the allowance row is persisted directly.
func (s *VaultService) ApproveShares(ctx context.Context, owner, spender string, shares sdkmath.Int) error {
	ctx, span := transitionTracer.Start(ctx, "VaultService.ApproveShares")
	defer span.End()

	span.SetAttributes(
		attribute.String("vault.owner", owner),
		attribute.String("vault.spender", spender),
		attribute.String("vault.shares", shares.String()),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.vault.ApproveShares(owner, spender, shares); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "share approval failed")
		return err
	}

	mut := badger.Mutation{
		ShareAllowances: []ledger.ShareAllowance{{Owner: owner, Spender: spender, Shares: shares}},
	}
	if err := s.store.Apply(ctx, mut); err != nil {
		s.reportStateWriteFailure("approve_shares", err)
	}
	return nil
}

// ----------------------------------------------------------------------
// Token operations
// ----------------------------------------------------------------------

// Mint creates amount new tokens in to's balance. Caller identifies the
// operator performing the mint for screening and audit; the transport
// layer has already authenticated them.
func (s *VaultService) Mint(ctx context.Context, caller, to string, amount sdkmath.Int) error {
	ctx, span := transitionTracer.Start(ctx, "VaultService.Mint")
	defer span.End()

	span.SetAttributes(
		attribute.String("token.caller", caller),
		attribute.String("token.to", to),
		attribute.String("token.amount", amount.String()),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.screenLocked(ctx, extensions.TransitionCheck{
		Op:       "MINT",
		Caller:   caller,
		Receiver: to,
		Amount:   amount.String(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mint blocked")
		return err
	}
	if err := s.screenReceiverLocked(ctx, to); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mint blocked")
		return err
	}

	if err := s.assets.Mint(to, amount); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mint failed")
		return err
	}

	supply := s.assets.TotalSupply()
	mut := badger.Mutation{
		Balances: []token.Balance{s.balanceRow(to)},
		Supply:   &supply,
	}
	if err := s.store.Apply(ctx, mut); err != nil {
		s.reportStateWriteFailure("mint", err)
	}

	s.audit(ctx, extensions.AuditEvent{
		EventType:    "token.mint",
		Timestamp:    time.Now().UTC(),
		UserID:       caller,
		Action:       "mint",
		ResourceType: "token",
		ResourceID:   to,
		Outcome:      "success",
		Metadata:     map[string]any{"amount": amount.String()},
	})
	return nil
}

// Transfer moves amount tokens from from to to.
func (s *VaultService) Transfer(ctx context.Context, from, to string, amount sdkmath.Int) error {
	ctx, span := transitionTracer.Start(ctx, "VaultService.Transfer")
	defer span.End()

	span.SetAttributes(
		attribute.String("token.from", from),
		attribute.String("token.to", to),
		attribute.String("token.amount", amount.String()),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.screenLocked(ctx, extensions.TransitionCheck{
		Op:       "TRANSFER",
		Caller:   from,
		Owner:    from,
		Receiver: to,
		Amount:   amount.String(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transfer blocked")
		return err
	}
	if err := s.screenReceiverLocked(ctx, to); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transfer blocked")
		return err
	}

	if err := s.assets.Transfer(from, to, amount); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transfer failed")
		return err
	}

	mut := badger.Mutation{
		Balances: []token.Balance{s.balanceRow(from), s.balanceRow(to)},
	}
	if err := s.store.Apply(ctx, mut); err != nil {
		s.reportStateWriteFailure("transfer", err)
	}

	s.audit(ctx, extensions.AuditEvent{
		EventType:    "token.transfer",
		Timestamp:    time.Now().UTC(),
		UserID:       from,
		Action:       "transfer",
		ResourceType: "token",
		ResourceID:   to,
		Outcome:      "success",
		Metadata:     map[string]any{"amount": amount.String()},
	})
	return nil
}

// ApproveToken lets owner authorize spender to pull tokens from their
// balance. Depositors approve the vault address before depositing.
func (s *VaultService) ApproveToken(ctx context.Context, owner, spender string, amount sdkmath.Int) error {
	ctx, span := transitionTracer.Start(ctx, "VaultService.ApproveToken")
	defer span.End()

	span.SetAttributes(
		attribute.String("token.owner", owner),
		attribute.String("token.spender", spender),
		attribute.String("token.amount", amount.String()),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.assets.Approve(owner, spender, amount); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token approval failed")
		return err
	}

	mut := badger.Mutation{
		TokenAllowances: []token.Allowance{{Owner: owner, Spender: spender, Amount: amount}},
	}
	if err := s.store.Apply(ctx, mut); err != nil {
		s.reportStateWriteFailure("approve_token", err)
	}

	s.audit(ctx, extensions.AuditEvent{
		EventType:    "token.approve",
		Timestamp:    time.Now().UTC(),
		UserID:       owner,
		Action:       "approve",
		ResourceType: "token",
		ResourceID:   spender,
		Outcome:      "success",
		Metadata:     map[string]any{"amount": amount.String()},
	})
	return nil
}

// ----------------------------------------------------------------------
// Reads
// ----------------------------------------------------------------------

// Stats returns the pool-level view: totals, display exchange rate,
// holder count, and the last journaled sequence.
func (s *VaultService) Stats(ctx context.Context) datatypes.StatsResponse {
	_, span := transitionTracer.Start(ctx, "VaultService.Stats")
	defer span.End()

	totalShares, totalAssets := s.vault.Totals()
	return datatypes.StatsResponse{
		TotalShares:  totalShares.String(),
		TotalAssets:  totalAssets.String(),
		ExchangeRate: observability.ExchangeRate(totalShares, totalAssets),
		HolderCount:  s.vault.HolderCount(),
		AssetDenom:   s.assets.Denom(),
		LastSeq:      s.store.LastSeq(),
	}
}

// Holder returns one holder's position: shares, principal, current
// claim and yield, plus withdraw/redeem limits. Unknown addresses
// return a zeroed position rather than an error.
func (s *VaultService) Holder(ctx context.Context, addr string) datatypes.HolderResponse {
	_, span := transitionTracer.Start(ctx, "VaultService.Holder")
	defer span.End()
	span.SetAttributes(attribute.String("vault.holder", addr))

	return datatypes.HolderResponse{
		HolderState: s.vault.HolderOf(addr),
		MaxWithdraw: s.vault.MaxWithdraw(addr).String(),
		MaxRedeem:   s.vault.MaxRedeem(addr).String(),
	}
}

// PreviewDeposit quotes the shares a deposit of assets would mint at the
// current exchange rate, without committing anything.
func (s *VaultService) PreviewDeposit(ctx context.Context, assets sdkmath.Int) (datatypes.PreviewDepositResponse, error) {
	_, span := transitionTracer.Start(ctx, "VaultService.PreviewDeposit")
	defer span.End()

	shares, err := s.vault.PreviewDeposit(assets)
	if err != nil {
		span.RecordError(err)
		return datatypes.PreviewDepositResponse{}, err
	}
	return datatypes.PreviewDepositResponse{
		Assets: assets.String(),
		Shares: shares.String(),
	}, nil
}

// PreviewRedeem quotes the assets redeeming shares would pay out at the
// current exchange rate, without committing anything.
func (s *VaultService) PreviewRedeem(ctx context.Context, shares sdkmath.Int) (datatypes.PreviewRedeemResponse, error) {
	_, span := transitionTracer.Start(ctx, "VaultService.PreviewRedeem")
	defer span.End()

	assets, err := s.vault.PreviewRedeem(shares)
	if err != nil {
		span.RecordError(err)
		return datatypes.PreviewRedeemResponse{}, err
	}
	return datatypes.PreviewRedeemResponse{
		Shares: shares.String(),
		Assets: assets.String(),
	}, nil
}

// Events returns the most recent journaled receipts, newest first.
func (s *VaultService) Events(ctx context.Context, limit int) (datatypes.EventsResponse, error) {
	ctx, span := transitionTracer.Start(ctx, "VaultService.Events")
	defer span.End()

	receipts, err := s.store.Events(ctx, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "event scan failed")
		return datatypes.EventsResponse{}, fmt.Errorf("scanning events: %w", err)
	}
	return datatypes.EventsResponse{Events: receipts, Count: len(receipts)}, nil
}

// Balance returns addr's token balance and any outstanding allowances
// they have granted.
func (s *VaultService) Balance(ctx context.Context, addr string) datatypes.BalanceResponse {
	_, span := transitionTracer.Start(ctx, "VaultService.Balance")
	defer span.End()
	span.SetAttributes(attribute.String("token.address", addr))

	return datatypes.BalanceResponse{
		Address:    addr,
		Denom:      s.assets.Denom(),
		Balance:    s.assets.BalanceOf(addr).String(),
		Allowances: s.assets.AllowancesOf(addr),
	}
}

// ----------------------------------------------------------------------
// Pipeline internals
// ----------------------------------------------------------------------

// screenLocked runs check through the transition guard. A guard that
// blocks produces an audit event and ErrTransitionBlocked; a guard that
// fails is treated as blocked, since screening that cannot run must not
// wave transitions through.
func (s *VaultService) screenLocked(ctx context.Context, check extensions.TransitionCheck) error {
	result, err := s.opts.TransitionGuard.CheckTransition(ctx, check)
	if err != nil {
		return fmt.Errorf("transition guard unavailable: %w", err)
	}
	if result == nil || !result.Blocked {
		return nil
	}

	slog.Warn("transition blocked by guard",
		"op", check.Op,
		"caller", check.Caller,
		"reason", result.BlockReason,
	)
	s.audit(ctx, extensions.AuditEvent{
		EventType:    "vault.blocked",
		Timestamp:    time.Now().UTC(),
		UserID:       check.Caller,
		Action:       strings.ToLower(check.Op),
		ResourceType: "vault",
		Outcome:      "blocked",
		Metadata: map[string]any{
			"reason": result.BlockReason,
			"amount": check.Amount,
		},
	})
	return fmt.Errorf("%s: %w", result.BlockReason, extensions.ErrTransitionBlocked)
}

// screenReceiverLocked classifies an address that is about to receive
// funds. Only a BLOCKED classification refuses the transition; a
// classifier failure is logged and waved through so a screening outage
// cannot freeze payouts.
func (s *VaultService) screenReceiverLocked(ctx context.Context, receiver string) error {
	result, err := s.opts.RiskClassifier.ClassifyAddress(ctx, receiver)
	if err != nil {
		slog.Warn("risk classification failed, continuing", "address", receiver, "error", err)
		return nil
	}
	if result == nil || result.Level != extensions.RiskBlocked {
		return nil
	}
	return fmt.Errorf("receiver %s is risk-blocked: %w", receiver, extensions.ErrTransitionBlocked)
}

// commitLocked journals a committed transition. The receipt is stamped
// with its sequence and ID even when the write fails, so the broadcast
// and response stay consistent and the journal keeps a visible gap.
func (s *VaultService) commitLocked(ctx context.Context, rcpt *ledger.Receipt, mut badger.Mutation) {
	if err := s.store.CommitTransition(ctx, rcpt, mut); err != nil {
		slog.Error("journal write failed, transition committed without durability",
			"op", rcpt.Op,
			"seq", rcpt.Seq,
			"error", err,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordJournalFailure()
		}
	}
	s.hub.Publish(*rcpt)
}

// afterTransition reports a committed receipt: pool gauges, the Influx
// rate sample, and the compliance audit trail. None of these can fail
// the transition.
func (s *VaultService) afterTransition(ctx context.Context, rcpt ledger.Receipt, meta map[string]any) {
	if m := observability.DefaultMetrics; m != nil {
		m.SetPoolState(rcpt.TotalShares, rcpt.TotalAssets, s.vault.HolderCount())
	}
	op := strings.ToLower(string(rcpt.Op))
	s.rates.Record(ctx, op, rcpt.TotalShares, rcpt.TotalAssets, rcpt.Time)

	meta["seq"] = rcpt.Seq
	s.audit(ctx, extensions.AuditEvent{
		EventType:    "vault." + op,
		Timestamp:    rcpt.Time,
		UserID:       rcpt.Caller,
		Action:       op,
		ResourceType: "vault",
		ResourceID:   rcpt.ID,
		Outcome:      "success",
		Metadata:     meta,
	})
}

// audit writes one event to the audit logger. Audit failures are logged
// and dropped; compliance logging never vetoes a committed transition.
func (s *VaultService) audit(ctx context.Context, event extensions.AuditEvent) {
	if err := s.opts.AuditLogger.Log(ctx, event); err != nil {
		slog.Warn("audit log failed", "eventType", event.EventType, "error", err)
	}
}

// exitMutation collects the rows a withdraw or redeem touches: the pool
// totals, the owner's position, the vault and receiver balances, and the
// share allowance when a delegate spent it.
func (s *VaultService) exitMutation(caller, receiver, owner string) badger.Mutation {
	mut := badger.Mutation{
		Totals:  s.totalsRow(),
		Holders: []ledger.HolderSnapshot{s.holderRow(owner)},
		Balances: []token.Balance{
			s.balanceRow(s.vault.Address()),
			s.balanceRow(receiver),
		},
	}
	if caller != owner {
		mut.ShareAllowances = []ledger.ShareAllowance{{
			Owner:   owner,
			Spender: caller,
			Shares:  s.vault.ShareAllowanceOf(owner, caller),
		}}
	}
	return mut
}

func (s *VaultService) totalsRow() *badger.VaultTotals {
	totalShares, totalAssets := s.vault.Totals()
	return &badger.VaultTotals{TotalShares: totalShares, TotalAssets: totalAssets}
}

func (s *VaultService) holderRow(addr string) ledger.HolderSnapshot {
	return ledger.HolderSnapshot{
		Address:   addr,
		Shares:    s.vault.SharesOf(addr),
		Principal: s.vault.PrincipalOf(addr),
	}
}

func (s *VaultService) balanceRow(addr string) token.Balance {
	return token.Balance{Address: addr, Amount: s.assets.BalanceOf(addr)}
}

func (s *VaultService) tokenAllowanceRow(owner, spender string) token.Allowance {
	return token.Allowance{Owner: owner, Spender: spender, Amount: s.assets.AllowanceOf(owner, spender)}
}

// reportStateWriteFailure records a state write that failed after the
// in-memory ledgers already committed. The process keeps serving from
// memory; the next successful write repairs the stored rows.
func (s *VaultService) reportStateWriteFailure(op string, err error) {
	slog.Error("state write failed, continuing from memory", "op", op, "error", err)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordJournalFailure()
	}
}
