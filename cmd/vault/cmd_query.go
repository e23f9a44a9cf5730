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
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianVault/pkg/ux"
)

// runStatus shows the pool totals and exchange rate.
func runStatus(cmd *cobra.Command, args []string) {
	start := time.Now()

	stats, err := newClient().Stats(cmd.Context())
	if err == nil && !machineOutput() {
		ux.Title("Vault Status")
		fmt.Println(ux.KV([][2]string{
			{"Denom", stats.AssetDenom},
			{"Total shares", stats.TotalShares},
			{"Total assets", stats.TotalAssets},
			{"Exchange rate", fmt.Sprintf("%.6f", stats.ExchangeRate)},
			{"Holders", strconv.Itoa(stats.HolderCount)},
			{"Last seq", strconv.FormatUint(stats.LastSeq, 10)},
		}))
	}
	os.Exit(OutputResult(outputCfg(), "vault status", start, stats, err))
}

// runHolder shows one holder's position and redemption limits.
func runHolder(cmd *cobra.Command, args []string) {
	start := time.Now()

	holder, err := newClient().Holder(cmd.Context(), args[0])
	if err == nil && !machineOutput() {
		ux.Title("Holder " + holder.Address)
		fmt.Println(ux.KV([][2]string{
			{"Shares", holder.Shares.String()},
			{"Principal", holder.Principal.String()},
			{"Claim", holder.Claim.String()},
			{"Yield", holder.Yield.String()},
			{"Max withdraw", holder.MaxWithdraw},
			{"Max redeem", holder.MaxRedeem},
		}))
	}
	os.Exit(OutputResult(outputCfg(), "vault holder", start, holder, err))
}

// runEvents lists recent journal entries, newest first.
func runEvents(cmd *cobra.Command, args []string) {
	start := time.Now()

	events, err := newClient().Events(cmd.Context(), eventsLimit)
	if err == nil && !machineOutput() {
		rows := make([][]string, 0, len(events.Events))
		for _, rcpt := range events.Events {
			rows = append(rows, []string{
				strconv.FormatUint(rcpt.Seq, 10),
				string(rcpt.Op),
				rcpt.Caller,
				rcpt.Assets.String(),
				rcpt.Shares.String(),
				rcpt.Time.Local().Format(time.RFC3339),
			})
		}
		if len(rows) == 0 {
			ux.Muted("no events recorded yet")
		} else {
			fmt.Println(ux.Table(
				[]string{"SEQ", "OP", "CALLER", "ASSETS", "SHARES", "TIME"}, rows))
		}
	}
	os.Exit(OutputResult(outputCfg(), "vault events", start, events, err))
}

// runPreviewDeposit quotes a deposit without committing it.
func runPreviewDeposit(cmd *cobra.Command, args []string) {
	start := time.Now()

	preview, err := newClient().PreviewDeposit(cmd.Context(), args[0])
	if err == nil && !machineOutput() {
		fmt.Println(ux.KV([][2]string{
			{"Assets in", preview.Assets},
			{"Shares out", preview.Shares},
		}))
	}
	os.Exit(OutputResult(outputCfg(), "vault preview deposit", start, preview, err))
}

// runPreviewRedeem quotes a redemption without committing it.
func runPreviewRedeem(cmd *cobra.Command, args []string) {
	start := time.Now()

	preview, err := newClient().PreviewRedeem(cmd.Context(), args[0])
	if err == nil && !machineOutput() {
		fmt.Println(ux.KV([][2]string{
			{"Shares in", preview.Shares},
			{"Assets out", preview.Assets},
		}))
	}
	os.Exit(OutputResult(outputCfg(), "vault preview redeem", start, preview, err))
}
