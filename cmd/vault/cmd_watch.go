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
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianVault/pkg/ux"
	"github.com/AleutianAI/AleutianVault/services/vault/datatypes"
	"github.com/AleutianAI/AleutianVault/services/vault/ledger"
	"github.com/AleutianAI/AleutianVault/services/vault/middleware"
	"github.com/AleutianAI/AleutianVault/services/vault/observability"
)

// watchRowCap bounds the event table; older rows fall off the bottom.
const watchRowCap = 50

// streamFrame mirrors the frames the event stream sends: a "hello"
// carrying a stats snapshot, then one "event" per committed mutation.
type streamFrame struct {
	Type  string                   `json:"type"`
	Stats *datatypes.StatsResponse `json:"stats,omitempty"`
	Event *ledger.Receipt          `json:"event,omitempty"`
}

// frameMsg delivers one decoded frame to the model.
type frameMsg streamFrame

// streamClosedMsg signals the server hung up.
type streamClosedMsg struct{}

// runWatch renders a live dashboard fed by the event stream websocket.
func runWatch(cmd *cobra.Command, args []string) {
	if machineOutput() || !ux.Interactive() {
		OutputError(machineOutput(), "Watch needs a terminal",
			errors.New("use 'vault events --json' for machine output"))
		os.Exit(CLIExitError)
	}

	client := newClient()
	header := http.Header{}
	if client.actor != "" {
		header.Set(middleware.ActorHeader, client.actor)
	}

	ws, _, err := websocket.DefaultDialer.Dial(client.websocketURL(), header)
	if err != nil {
		OutputError(false, "Failed to connect to the event stream", err)
		os.Exit(CLIExitError)
	}
	defer ws.Close()

	frames := make(chan streamFrame, 16)
	go func() {
		defer close(frames)
		for {
			var frame streamFrame
			if err := ws.ReadJSON(&frame); err != nil {
				return
			}
			frames <- frame
		}
	}()

	p := tea.NewProgram(newWatchModel(frames), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		OutputError(false, "Watch failed", err)
		os.Exit(CLIExitError)
	}
	if m, ok := final.(watchModel); ok && m.closed {
		ux.Warning("event stream closed by the server")
	}
}

// =============================================================================
// Model
// =============================================================================

// watchModel is the bubbletea model behind `vault watch`. It shows the
// pool header from the latest known state and a scrolling table of
// receipts, newest first.
type watchModel struct {
	frames <-chan streamFrame

	stats  datatypes.StatsResponse
	events table.Model
	rows   []table.Row

	ready  bool // got the hello frame
	closed bool
}

func newWatchModel(frames <-chan streamFrame) watchModel {
	columns := []table.Column{
		{Title: "SEQ", Width: 6},
		{Title: "OP", Width: 10},
		{Title: "CALLER", Width: 20},
		{Title: "ASSETS", Width: 14},
		{Title: "SHARES", Width: 14},
		{Title: "TIME", Width: 8},
	}

	st := table.DefaultStyles()
	st.Header = st.Header.
		Bold(true).
		Foreground(ux.ColorTealBright).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true)
	st.Selected = st.Selected.
		Foreground(ux.ColorTealBright).
		Bold(true)

	events := table.New(
		table.WithColumns(columns),
		table.WithHeight(watchRowCap/2),
		table.WithFocused(true),
	)
	events.SetStyles(st)

	return watchModel{frames: frames, events: events}
}

// Init implements tea.Model.
func (m watchModel) Init() tea.Cmd {
	return waitForFrame(m.frames)
}

// Update implements tea.Model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		height := msg.Height - 10
		if height < 3 {
			height = 3
		}
		m.events.SetHeight(height)

	case frameMsg:
		m.apply(streamFrame(msg))
		return m, waitForFrame(m.frames)

	case streamClosedMsg:
		m.closed = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.events, cmd = m.events.Update(msg)
	return m, cmd
}

// apply folds one frame into the model state.
func (m *watchModel) apply(frame streamFrame) {
	switch frame.Type {
	case "hello":
		if frame.Stats != nil {
			m.stats = *frame.Stats
			m.ready = true
		}

	case "event":
		if frame.Event == nil {
			return
		}
		rcpt := frame.Event

		// Receipts carry the post-mutation pool totals, so the header
		// stays current without polling.
		m.stats.TotalShares = rcpt.TotalShares.String()
		m.stats.TotalAssets = rcpt.TotalAssets.String()
		m.stats.ExchangeRate = observability.ExchangeRate(rcpt.TotalShares, rcpt.TotalAssets)
		if rcpt.Seq > m.stats.LastSeq {
			m.stats.LastSeq = rcpt.Seq
		}

		row := table.Row{
			strconv.FormatUint(rcpt.Seq, 10),
			string(rcpt.Op),
			rcpt.Caller,
			rcpt.Assets.String(),
			rcpt.Shares.String(),
			rcpt.Time.Local().Format("15:04:05"),
		}
		m.rows = append([]table.Row{row}, m.rows...)
		if len(m.rows) > watchRowCap {
			m.rows = m.rows[:watchRowCap]
		}
		m.events.SetRows(m.rows)
	}
}

// View implements tea.Model.
func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(ux.Styles.Title.Render("Aleutian Vault  live"))
	b.WriteString("\n\n")

	if !m.ready {
		b.WriteString(ux.Styles.Muted.Render("waiting for the vault..."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(ux.KV([][2]string{
		{"Denom", m.stats.AssetDenom},
		{"Total shares", m.stats.TotalShares},
		{"Total assets", m.stats.TotalAssets},
		{"Exchange rate", fmt.Sprintf("%.6f", m.stats.ExchangeRate)},
		{"Last seq", strconv.FormatUint(m.stats.LastSeq, 10)},
	}))
	b.WriteString("\n\n")
	b.WriteString(m.events.View())
	b.WriteString("\n")
	b.WriteString(ux.Styles.Muted.Render("q to quit"))
	b.WriteString("\n")

	return b.String()
}

// waitForFrame hands the next websocket frame to the event loop. Update
// re-issues it after every frame, so exactly one read is in flight.
func waitForFrame(frames <-chan streamFrame) tea.Cmd {
	return func() tea.Msg {
		frame, ok := <-frames
		if !ok {
			return streamClosedMsg{}
		}
		return frameMsg(frame)
	}
}
