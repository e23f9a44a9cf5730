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
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianVault/pkg/ux"
	"github.com/AleutianAI/AleutianVault/services/vault/ledger"
)

// runDeposit moves assets from the actor into the pool and prints the
// resulting receipt.
func runDeposit(cmd *cobra.Command, args []string) {
	start := time.Now()

	rcpt, err := newClient().Deposit(cmd.Context(), args[0], receiverAddr)
	if err == nil && !machineOutput() {
		ux.Success("deposit committed")
		printReceipt(rcpt)
	}
	os.Exit(OutputResult(outputCfg(), "vault deposit", start, rcpt, err))
}

// runWithdraw pulls an exact asset amount out of the pool.
func runWithdraw(cmd *cobra.Command, args []string) {
	start := time.Now()

	rcpt, err := newClient().Withdraw(cmd.Context(), args[0], receiverAddr, ownerAddr)
	if err == nil && !machineOutput() {
		ux.Success("withdrawal committed")
		printReceipt(rcpt)
	}
	os.Exit(OutputResult(outputCfg(), "vault withdraw", start, rcpt, err))
}

// runRedeem burns an exact number of shares for assets.
func runRedeem(cmd *cobra.Command, args []string) {
	start := time.Now()

	rcpt, err := newClient().Redeem(cmd.Context(), args[0], receiverAddr, ownerAddr)
	if err == nil && !machineOutput() {
		ux.Success("redemption committed")
		printReceipt(rcpt)
	}
	os.Exit(OutputResult(outputCfg(), "vault redeem", start, rcpt, err))
}

// runInject adds yield to the pool. The exchange rate moves for every
// holder at once and cannot be taken back, so an interactive terminal
// gets a confirmation prompt first.
func runInject(cmd *cobra.Command, args []string) {
	start := time.Now()
	amount := args[0]

	token, err := operatorToken()
	if err != nil {
		OutputError(machineOutput(), "Operator token required", err)
		os.Exit(CLIExitError)
	}

	if !skipConfirm && ux.Interactive() {
		confirmed := false
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Inject %s into the pool?", amount)).
				Description("Raises every holder's claim. There is no unwind.").
				Affirmative("Inject").
				Negative("Cancel").
				Value(&confirmed),
		))
		if err := form.Run(); err != nil {
			OutputError(machineOutput(), "Confirmation aborted", err)
			os.Exit(CLIExitError)
		}
		if !confirmed {
			ux.Warning("inject cancelled")
			os.Exit(CLIExitSuccess)
		}
	}

	rcpt, err := newClient().withBearer(token).InjectYield(cmd.Context(), amount)
	if err == nil && !machineOutput() {
		ux.Success("yield injected")
		printReceipt(rcpt)
	}
	os.Exit(OutputResult(outputCfg(), "vault inject", start, rcpt, err))
}

// runApproveShares grants a spender the right to burn the actor's shares.
func runApproveShares(cmd *cobra.Command, args []string) {
	start := time.Now()
	spender, shares := args[0], args[1]

	ack, err := newClient().ApproveShares(cmd.Context(), spender, shares)
	if err == nil && !machineOutput() {
		ux.Success(fmt.Sprintf("approved %s shares for %s", shares, spender))
	}
	os.Exit(OutputResult(outputCfg(), "vault approve", start, ack, err))
}

// printReceipt renders a mutation receipt for humans.
func printReceipt(rcpt ledger.Receipt) {
	pairs := [][2]string{
		{"Seq", fmt.Sprintf("%d", rcpt.Seq)},
		{"Op", string(rcpt.Op)},
		{"Caller", rcpt.Caller},
	}
	if rcpt.Owner != "" && rcpt.Owner != rcpt.Caller {
		pairs = append(pairs, [2]string{"Owner", rcpt.Owner})
	}
	if rcpt.Receiver != "" {
		pairs = append(pairs, [2]string{"Receiver", rcpt.Receiver})
	}
	pairs = append(pairs,
		[2]string{"Assets", rcpt.Assets.String()},
		[2]string{"Shares", rcpt.Shares.String()},
		[2]string{"Pool shares", rcpt.TotalShares.String()},
		[2]string{"Pool assets", rcpt.TotalAssets.String()},
	)
	fmt.Println(ux.KV(pairs))
}

// operatorToken resolves the bearer token for operator-gated endpoints:
// --token-file first, then VAULT_OPERATOR_TOKEN.
func operatorToken() (string, error) {
	if tokenFile != "" {
		data, err := os.ReadFile(tokenFile)
		if err != nil {
			return "", fmt.Errorf("reading token file: %w", err)
		}
		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", fmt.Errorf("token file %s is empty", tokenFile)
		}
		return token, nil
	}
	if token := os.Getenv("VAULT_OPERATOR_TOKEN"); token != "" {
		return token, nil
	}
	return "", errors.New("pass --token-file or set VAULT_OPERATOR_TOKEN")
}
