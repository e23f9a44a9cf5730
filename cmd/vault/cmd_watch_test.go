// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/AleutianAI/AleutianVault/services/vault/datatypes"
	"github.com/AleutianAI/AleutianVault/services/vault/ledger"
)

// watchReceipt builds a receipt for the watch model tests.
func watchReceipt(seq uint64, op ledger.Op, assets, totalShares, totalAssets int64) *ledger.Receipt {
	return &ledger.Receipt{
		Seq:         seq,
		Op:          op,
		Caller:      "alice",
		Assets:      sdkmath.NewInt(assets),
		Shares:      sdkmath.NewInt(assets),
		Principal:   sdkmath.NewInt(assets),
		TotalShares: sdkmath.NewInt(totalShares),
		TotalAssets: sdkmath.NewInt(totalAssets),
		Time:        time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
	}
}

// updateWatch runs one Update cycle and hands back the concrete model.
func updateWatch(t *testing.T, m watchModel, msg tea.Msg) (watchModel, tea.Cmd) {
	t.Helper()

	next, cmd := m.Update(msg)
	model, ok := next.(watchModel)
	if !ok {
		t.Fatalf("Update returned %T, want watchModel", next)
	}
	return model, cmd
}

// TestWatchModel_HelloFrameSetsStats tests that the hello snapshot
// readies the dashboard.
func TestWatchModel_HelloFrameSetsStats(t *testing.T) {
	m := newWatchModel(nil)
	if m.ready {
		t.Fatal("model ready before any frame")
	}

	m, cmd := updateWatch(t, m, frameMsg(streamFrame{
		Type: "hello",
		Stats: &datatypes.StatsResponse{
			TotalShares:  "1000",
			TotalAssets:  "1250",
			ExchangeRate: 1.25,
			AssetDenom:   "ualeut",
			LastSeq:      4,
		},
	}))

	if !m.ready {
		t.Error("model not ready after hello")
	}
	if m.stats.TotalAssets != "1250" {
		t.Errorf("TotalAssets = %s, want 1250", m.stats.TotalAssets)
	}
	if cmd == nil {
		t.Error("Update returned no follow-up read command")
	}
}

// TestWatchModel_EventFramesUpdateHeaderAndRows tests that receipts move
// the header totals and stack newest-first in the table.
func TestWatchModel_EventFramesUpdateHeaderAndRows(t *testing.T) {
	m := newWatchModel(nil)
	m, _ = updateWatch(t, m, frameMsg(streamFrame{
		Type:  "hello",
		Stats: &datatypes.StatsResponse{AssetDenom: "ualeut", LastSeq: 1},
	}))

	m, _ = updateWatch(t, m, frameMsg(streamFrame{
		Type:  "event",
		Event: watchReceipt(2, ledger.OpDeposit, 400, 400, 400),
	}))
	m, _ = updateWatch(t, m, frameMsg(streamFrame{
		Type:  "event",
		Event: watchReceipt(3, ledger.OpYield, 100, 400, 500),
	}))

	if len(m.rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(m.rows))
	}
	if m.rows[0][0] != "3" {
		t.Errorf("newest row seq = %s, want 3 first", m.rows[0][0])
	}
	if m.stats.TotalAssets != "500" {
		t.Errorf("TotalAssets = %s, want 500", m.stats.TotalAssets)
	}
	if m.stats.ExchangeRate != 1.25 {
		t.Errorf("ExchangeRate = %v, want 1.25", m.stats.ExchangeRate)
	}
	if m.stats.LastSeq != 3 {
		t.Errorf("LastSeq = %d, want 3", m.stats.LastSeq)
	}
}

// TestWatchModel_RowCap tests that the table stops growing at the cap.
func TestWatchModel_RowCap(t *testing.T) {
	m := newWatchModel(nil)
	m, _ = updateWatch(t, m, frameMsg(streamFrame{
		Type:  "hello",
		Stats: &datatypes.StatsResponse{},
	}))

	for i := 0; i < watchRowCap+5; i++ {
		m, _ = updateWatch(t, m, frameMsg(streamFrame{
			Type:  "event",
			Event: watchReceipt(uint64(i+1), ledger.OpDeposit, 1, int64(i+1), int64(i+1)),
		}))
	}

	if len(m.rows) != watchRowCap {
		t.Errorf("rows = %d, want capped at %d", len(m.rows), watchRowCap)
	}
	if m.rows[0][0] != "55" {
		t.Errorf("newest row seq = %s, want 55", m.rows[0][0])
	}
}

// TestWatchModel_QuitKeys tests every key that should leave the dashboard.
func TestWatchModel_QuitKeys(t *testing.T) {
	keys := []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyEsc},
		{Type: tea.KeyCtrlC},
	}

	for _, key := range keys {
		t.Run(key.String(), func(t *testing.T) {
			m := newWatchModel(nil)
			_, cmd := updateWatch(t, m, key)
			if cmd == nil {
				t.Fatal("no command returned, want quit")
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Errorf("command produced %T, want tea.QuitMsg", cmd())
			}
		})
	}
}

// TestWatchModel_StreamClosedQuits tests the server hanging up.
func TestWatchModel_StreamClosedQuits(t *testing.T) {
	m := newWatchModel(nil)

	m, cmd := updateWatch(t, m, streamClosedMsg{})
	if !m.closed {
		t.Error("closed = false after streamClosedMsg")
	}
	if cmd == nil {
		t.Fatal("no command returned, want quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("command produced %T, want tea.QuitMsg", cmd())
	}
}

// TestWatchModel_ViewBeforeHello tests the placeholder screen.
func TestWatchModel_ViewBeforeHello(t *testing.T) {
	m := newWatchModel(nil)
	if view := m.View(); !strings.Contains(view, "waiting for the vault") {
		t.Errorf("pre-hello view = %q, want the waiting line", view)
	}
}

// TestWaitForFrame tests the channel-to-message bridge.
func TestWaitForFrame(t *testing.T) {
	frames := make(chan streamFrame, 1)
	frames <- streamFrame{Type: "hello"}

	msg := waitForFrame(frames)()
	frame, ok := msg.(frameMsg)
	if !ok {
		t.Fatalf("msg is %T, want frameMsg", msg)
	}
	if frame.Type != "hello" {
		t.Errorf("Type = %s, want hello", frame.Type)
	}

	close(frames)
	if _, ok := waitForFrame(frames)().(streamClosedMsg); !ok {
		t.Error("closed channel should produce streamClosedMsg")
	}
}
