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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianVault/pkg/ux"
)

// runTokenMint creates new tokens. Operator-gated server side, so it
// needs a bearer token like inject does.
func runTokenMint(cmd *cobra.Command, args []string) {
	start := time.Now()
	to, amount := args[0], args[1]

	token, err := operatorToken()
	if err != nil {
		OutputError(machineOutput(), "Operator token required", err)
		os.Exit(CLIExitError)
	}

	ack, err := newClient().withBearer(token).MintTokens(cmd.Context(), to, amount)
	if err == nil && !machineOutput() {
		ux.Success(fmt.Sprintf("minted %s to %s", amount, to))
	}
	os.Exit(OutputResult(outputCfg(), "vault token mint", start, ack, err))
}

// runTokenTransfer moves tokens from the actor to another account.
func runTokenTransfer(cmd *cobra.Command, args []string) {
	start := time.Now()
	to, amount := args[0], args[1]

	ack, err := newClient().TransferTokens(cmd.Context(), to, amount)
	if err == nil && !machineOutput() {
		ux.Success(fmt.Sprintf("transferred %s to %s", amount, to))
	}
	os.Exit(OutputResult(outputCfg(), "vault token transfer", start, ack, err))
}

// runTokenApprove grants a token allowance. Depositing requires the
// vault's own address to hold one, so this is usually the step before
// a first deposit.
func runTokenApprove(cmd *cobra.Command, args []string) {
	start := time.Now()
	spender, amount := args[0], args[1]

	ack, err := newClient().ApproveTokens(cmd.Context(), spender, amount)
	if err == nil && !machineOutput() {
		ux.Success(fmt.Sprintf("approved %s for %s", amount, spender))
	}
	os.Exit(OutputResult(outputCfg(), "vault token approve", start, ack, err))
}

// runTokenBalance shows a balance; with no argument it shows the actor's.
func runTokenBalance(cmd *cobra.Command, args []string) {
	start := time.Now()

	addr := actorName
	if len(args) == 1 {
		addr = args[0]
	}
	if addr == "" {
		OutputError(machineOutput(), "No address",
			errors.New("pass an address or set --actor"))
		os.Exit(CLIExitError)
	}

	balance, err := newClient().TokenBalance(cmd.Context(), addr)
	if err == nil && !machineOutput() {
		ux.Title("Balance " + balance.Address)
		pairs := [][2]string{
			{"Denom", balance.Denom},
			{"Balance", balance.Balance},
		}
		for _, a := range balance.Allowances {
			pairs = append(pairs, [2]string{"Allowance " + a.Spender, a.Amount.String()})
		}
		fmt.Println(ux.KV(pairs))
	}
	os.Exit(OutputResult(outputCfg(), "vault token balance", start, balance, err))
}
