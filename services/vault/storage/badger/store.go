// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	sdkmath "cosmossdk.io/math"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianVault/services/vault/ledger"
	"github.com/AleutianAI/AleutianVault/services/vault/token"
)

// Keyspace. Addresses are validated upstream to a colon-free charset, so
// the owner:spender composite keys parse unambiguously.
//
//	vault:state                 -> {total_shares, total_assets}
//	vault:holder:<addr>         -> {shares, principal}
//	vault:shareallow:<o>:<s>    -> amount
//	token:balance:<addr>        -> amount
//	token:allow:<o>:<s>         -> amount
//	token:supply                -> amount
//	event:<seq>                 -> receipt JSON, seq zero-padded
//	event_seq                   -> last sequence number
const (
	keyVaultState      = "vault:state"
	keyTokenSupply     = "token:supply"
	keyEventSeq        = "event_seq"
	prefixHolder       = "vault:holder:"
	prefixShareAllow   = "vault:shareallow:"
	prefixTokenBalance = "token:balance:"
	prefixTokenAllow   = "token:allow:"
	prefixEvent        = "event:"
)

// eventKeyWidth pads sequence numbers so lexicographic key order is
// numeric order.
const eventKeyWidth = 16

// defaultEventLimit caps history reads that pass no explicit limit.
const defaultEventLimit = 100

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%0*d", prefixEvent, eventKeyWidth, seq))
}

// stateRow is the persisted vault:state value.
type stateRow struct {
	TotalShares sdkmath.Int `json:"total_shares"`
	TotalAssets sdkmath.Int `json:"total_assets"`
}

// holderRow is the persisted vault:holder:<addr> value.
type holderRow struct {
	Shares    sdkmath.Int `json:"shares"`
	Principal sdkmath.Int `json:"principal"`
}

// VaultTotals mirrors the vault:state row.
type VaultTotals struct {
	TotalShares sdkmath.Int
	TotalAssets sdkmath.Int
}

// Mutation lists every row one operation touched. The service builds it
// from the in-memory ledgers after a commit; rows with zero amounts are
// deleted rather than stored (holder rows excepted, a holder that exits
// keeps its zeroed row like the in-memory ledger keeps its record).
type Mutation struct {
	Totals          *VaultTotals
	Holders         []ledger.HolderSnapshot
	ShareAllowances []ledger.ShareAllowance
	Balances        []token.Balance
	TokenAllowances []token.Allowance
	Supply          *sdkmath.Int
}

// Store persists vault and token state rows plus the append-only event
// journal. One Store per database; sequence numbers are reserved from an
// in-memory counter seeded at open, so they stay unique even when a
// journal write fails and leaves a gap.
type Store struct {
	db  *DB
	seq atomic.Uint64
}

// NewStore binds a store to an open database and seeds the sequence
// counter from the persisted event_seq row.
func NewStore(ctx context.Context, db *DB) (*Store, error) {
	s := &Store{db: db}
	last, err := s.readLastSeq(ctx)
	if err != nil {
		return nil, err
	}
	s.seq.Store(last)
	return s, nil
}

// LastSeq returns the most recently reserved sequence number.
func (s *Store) LastSeq() uint64 {
	return s.seq.Load()
}

// Apply writes the mutation in one transaction without journaling an
// event. Used for token-only operations (mint, transfer, approve) and the
// genesis bootstrap.
func (s *Store) Apply(ctx context.Context, mut Mutation) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return applyTxn(txn, mut)
	})
}

// CommitTransition assigns the receipt its sequence number and ID, then
// writes the event row and every state row in one transaction. Seq and ID
// are assigned even when the write fails: the transition is already
// committed in memory, so the caller broadcasts the receipt regardless
// and the journal keeps a gap instead of a duplicate.
func (s *Store) CommitTransition(ctx context.Context, rcpt *ledger.Receipt, mut Mutation) error {
	rcpt.Seq = s.seq.Add(1)
	rcpt.ID = uuid.NewString()

	raw, err := json.Marshal(rcpt)
	if err != nil {
		return fmt.Errorf("encode event %d: %w", rcpt.Seq, err)
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(eventKey(rcpt.Seq), raw); err != nil {
			return fmt.Errorf("journal event %d: %w", rcpt.Seq, err)
		}
		if err := txn.Set([]byte(keyEventSeq), []byte(strconv.FormatUint(rcpt.Seq, 10))); err != nil {
			return fmt.Errorf("advance %s: %w", keyEventSeq, err)
		}
		return applyTxn(txn, mut)
	})
}

// LoadVault assembles the persisted vault snapshot. found reports whether
// a vault:state row exists; a fresh store returns found == false so the
// caller can bootstrap from genesis instead.
func (s *Store) LoadVault(ctx context.Context) (snap ledger.Snapshot, found bool, err error) {
	snap = ledger.Snapshot{
		TotalShares: sdkmath.ZeroInt(),
		TotalAssets: sdkmath.ZeroInt(),
	}
	err = s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyVaultState))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", keyVaultState, err)
		}
		found = true

		var row stateRow
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &row) }); err != nil {
			return fmt.Errorf("decode %s: %w", keyVaultState, err)
		}
		snap.TotalShares, snap.TotalAssets = row.TotalShares, row.TotalAssets

		if err := iteratePrefix(txn, prefixHolder, func(addr string, val []byte) error {
			var h holderRow
			if err := json.Unmarshal(val, &h); err != nil {
				return fmt.Errorf("decode holder %s: %w", addr, err)
			}
			snap.Holders = append(snap.Holders, ledger.HolderSnapshot{
				Address:   addr,
				Shares:    h.Shares,
				Principal: h.Principal,
			})
			return nil
		}); err != nil {
			return err
		}

		return iteratePrefix(txn, prefixShareAllow, func(rest string, val []byte) error {
			owner, spender, ok := strings.Cut(rest, ":")
			if !ok {
				return fmt.Errorf("malformed share allowance key %q", rest)
			}
			amount, err := parseAmountRow(val)
			if err != nil {
				return fmt.Errorf("share allowance %s: %w", rest, err)
			}
			snap.Allowances = append(snap.Allowances, ledger.ShareAllowance{
				Owner:   owner,
				Spender: spender,
				Shares:  amount,
			})
			return nil
		})
	})
	return snap, found, err
}

// LoadToken assembles the persisted token snapshot. found reports whether
// a token:supply row exists.
func (s *Store) LoadToken(ctx context.Context) (snap token.Snapshot, found bool, err error) {
	snap = token.Snapshot{Supply: sdkmath.ZeroInt()}
	err = s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyTokenSupply))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", keyTokenSupply, err)
		}
		found = true

		if err := item.Value(func(val []byte) error {
			supply, err := parseAmountRow(val)
			if err != nil {
				return fmt.Errorf("%s: %w", keyTokenSupply, err)
			}
			snap.Supply = supply
			return nil
		}); err != nil {
			return err
		}

		if err := iteratePrefix(txn, prefixTokenBalance, func(addr string, val []byte) error {
			amount, err := parseAmountRow(val)
			if err != nil {
				return fmt.Errorf("balance %s: %w", addr, err)
			}
			snap.Balances = append(snap.Balances, token.Balance{Address: addr, Amount: amount})
			return nil
		}); err != nil {
			return err
		}

		return iteratePrefix(txn, prefixTokenAllow, func(rest string, val []byte) error {
			owner, spender, ok := strings.Cut(rest, ":")
			if !ok {
				return fmt.Errorf("malformed token allowance key %q", rest)
			}
			amount, err := parseAmountRow(val)
			if err != nil {
				return fmt.Errorf("token allowance %s: %w", rest, err)
			}
			snap.Allowances = append(snap.Allowances, token.Allowance{
				Owner:   owner,
				Spender: spender,
				Amount:  amount,
			})
			return nil
		})
	})
	return snap, found, err
}

// Events returns up to limit journaled receipts, most recent first.
func (s *Store) Events(ctx context.Context, limit int) ([]ledger.Receipt, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	var out []ledger.Receipt
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEvent)
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts past the largest event key; padded
		// sequence digits all sort below 0xFF.
		seek := append([]byte(prefixEvent), 0xFF)
		for it.Seek(seek); it.Valid() && len(out) < limit; it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", it.Item().Key(), err)
			}
			var rcpt ledger.Receipt
			if err := json.Unmarshal(val, &rcpt); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, rcpt)
		}
		return nil
	})
	return out, err
}

func (s *Store) readLastSeq(ctx context.Context) (uint64, error) {
	var last uint64
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyEventSeq))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", keyEventSeq, err)
		}
		return item.Value(func(val []byte) error {
			n, err := strconv.ParseUint(string(val), 10, 64)
			if err != nil {
				return fmt.Errorf("malformed %s %q: %w", keyEventSeq, val, err)
			}
			last = n
			return nil
		})
	})
	return last, err
}

func applyTxn(txn *badger.Txn, mut Mutation) error {
	if mut.Totals != nil {
		raw, err := json.Marshal(stateRow{
			TotalShares: mut.Totals.TotalShares,
			TotalAssets: mut.Totals.TotalAssets,
		})
		if err != nil {
			return fmt.Errorf("encode %s: %w", keyVaultState, err)
		}
		if err := txn.Set([]byte(keyVaultState), raw); err != nil {
			return fmt.Errorf("write %s: %w", keyVaultState, err)
		}
	}
	for _, h := range mut.Holders {
		raw, err := json.Marshal(holderRow{Shares: h.Shares, Principal: h.Principal})
		if err != nil {
			return fmt.Errorf("encode holder %s: %w", h.Address, err)
		}
		if err := txn.Set([]byte(prefixHolder+h.Address), raw); err != nil {
			return fmt.Errorf("write holder %s: %w", h.Address, err)
		}
	}
	for _, a := range mut.ShareAllowances {
		if err := setOrDelete(txn, prefixShareAllow+a.Owner+":"+a.Spender, a.Shares); err != nil {
			return err
		}
	}
	for _, b := range mut.Balances {
		if err := setOrDelete(txn, prefixTokenBalance+b.Address, b.Amount); err != nil {
			return err
		}
	}
	for _, a := range mut.TokenAllowances {
		if err := setOrDelete(txn, prefixTokenAllow+a.Owner+":"+a.Spender, a.Amount); err != nil {
			return err
		}
	}
	if mut.Supply != nil {
		if err := txn.Set([]byte(keyTokenSupply), []byte(mut.Supply.String())); err != nil {
			return fmt.Errorf("write %s: %w", keyTokenSupply, err)
		}
	}
	return nil
}

func setOrDelete(txn *badger.Txn, key string, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsZero() {
		if err := txn.Delete([]byte(key)); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	}
	if err := txn.Set([]byte(key), []byte(amount.String())); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func iteratePrefix(txn *badger.Txn, prefix string, fn func(rest string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		rest := strings.TrimPrefix(string(item.Key()), prefix)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read %s: %w", item.Key(), err)
		}
		if err := fn(rest, val); err != nil {
			return err
		}
	}
	return nil
}

func parseAmountRow(val []byte) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(string(val))
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("malformed amount %q", val)
	}
	return v, nil
}
