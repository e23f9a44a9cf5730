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
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianVault/pkg/ux"
)

// --- Global Command Variables ---
var (
	serverURL     string
	actorName     string
	jsonOutput    bool
	compactOutput bool

	configPath string // serve: path to the service config file

	receiverAddr string // deposit/withdraw/redeem: credit target
	ownerAddr    string // withdraw/redeem: spend from this owner's shares
	skipConfirm  bool   // inject: skip the interactive confirmation
	tokenFile    string // inject/mint: operator bearer token file

	eventsLimit int

	backupBucket      string
	backupPrefix      string
	backupDataDir     string
	backupCredentials string

	rootCmd = &cobra.Command{
		Use:   "vault",
		Short: "A cli to operate and query the Aleutian vault service",
		Long: `Vault manages a pooled-asset share vault: deposits and withdrawals,
				share redemption, yield injection, and the asset token ledger
				underneath it. Point it at a running vault service with --server.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Machine output implies no ANSI styling.
			if jsonOutput || compactOutput {
				ux.SetPlain(true)
			}
		},
	}

	// --- Service ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the vault HTTP service",
		Run:   runServe, // Defined in cmd_serve.go
	}

	// --- Vault Operations ---
	depositCmd = &cobra.Command{
		Use:   "deposit [assets]",
		Short: "Deposit assets into the vault in exchange for shares",
		Args:  cobra.ExactArgs(1),
		Run:   runDeposit, // Defined in cmd_vault.go
	}
	withdrawCmd = &cobra.Command{
		Use:   "withdraw [assets]",
		Short: "Withdraw an exact amount of assets, burning shares",
		Args:  cobra.ExactArgs(1),
		Run:   runWithdraw, // Defined in cmd_vault.go
	}
	redeemCmd = &cobra.Command{
		Use:   "redeem [shares]",
		Short: "Redeem an exact number of shares for assets",
		Args:  cobra.ExactArgs(1),
		Run:   runRedeem, // Defined in cmd_vault.go
	}
	injectCmd = &cobra.Command{
		Use:   "inject [amount]",
		Short: "Inject yield into the pool, raising every holder's claim (operator)",
		Args:  cobra.ExactArgs(1),
		Run:   runInject, // Defined in cmd_vault.go
	}
	approveCmd = &cobra.Command{
		Use:   "approve [spender] [shares]",
		Short: "Allow a spender to redeem or withdraw against your shares",
		Args:  cobra.ExactArgs(2),
		Run:   runApproveShares, // Defined in cmd_vault.go
	}

	// --- Queries ---
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show pool totals, exchange rate, and holder count",
		Run:   runStatus, // Defined in cmd_query.go
	}
	holderCmd = &cobra.Command{
		Use:   "holder [address]",
		Short: "Show a holder's shares, principal, and accrued yield",
		Args:  cobra.ExactArgs(1),
		Run:   runHolder, // Defined in cmd_query.go
	}
	eventsCmd = &cobra.Command{
		Use:   "events",
		Short: "List recent vault operations from the journal",
		Run:   runEvents, // Defined in cmd_query.go
	}
	previewCmd = &cobra.Command{
		Use:   "preview",
		Short: "Preview vault math without committing anything",
	}
	previewDepositCmd = &cobra.Command{
		Use:   "deposit [assets]",
		Short: "Quote the shares a deposit would mint",
		Args:  cobra.ExactArgs(1),
		Run:   runPreviewDeposit, // Defined in cmd_query.go
	}
	previewRedeemCmd = &cobra.Command{
		Use:   "redeem [shares]",
		Short: "Quote the assets a redemption would pay out",
		Args:  cobra.ExactArgs(1),
		Run:   runPreviewRedeem, // Defined in cmd_query.go
	}

	// --- Token Ledger ---
	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Operate the asset token ledger beneath the vault",
	}
	tokenMintCmd = &cobra.Command{
		Use:   "mint [to] [amount]",
		Short: "Mint new tokens to an account (operator)",
		Args:  cobra.ExactArgs(2),
		Run:   runTokenMint, // Defined in cmd_token.go
	}
	tokenTransferCmd = &cobra.Command{
		Use:   "transfer [to] [amount]",
		Short: "Transfer tokens from the actor to another account",
		Args:  cobra.ExactArgs(2),
		Run:   runTokenTransfer, // Defined in cmd_token.go
	}
	tokenApproveCmd = &cobra.Command{
		Use:   "approve [spender] [amount]",
		Short: "Grant a spender an allowance over the actor's tokens",
		Args:  cobra.ExactArgs(2),
		Run:   runTokenApprove, // Defined in cmd_token.go
	}
	tokenBalanceCmd = &cobra.Command{
		Use:   "balance [address]",
		Short: "Show an account's token balance and outbound allowances",
		Args:  cobra.MaximumNArgs(1),
		Run:   runTokenBalance, // Defined in cmd_token.go
	}

	// --- Live View ---
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of pool state fed by the event stream",
		Run:   runWatch, // Defined in cmd_watch.go
	}

	// --- Backups ---
	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the vault's state database",
	}
	backupGCSCmd = &cobra.Command{
		Use:   "gcs",
		Short: "Stream a snapshot of the state database to Google Cloud Storage",
		Run:   runBackupGCS, // Defined in cmd_backup.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		envOr("VAULT_SERVER", defaultServerURL), "Base URL of the vault service")
	rootCmd.PersistentFlags().StringVar(&actorName, "actor",
		os.Getenv("VAULT_ACTOR"), "Account to act as (sent as the actor header)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	rootCmd.PersistentFlags().BoolVar(&compactOutput, "compact", false, "JSON without indentation")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to the service config file (YAML)")

	// vault operations
	rootCmd.AddCommand(depositCmd)
	depositCmd.Flags().StringVar(&receiverAddr, "receiver", "", "Credit the shares to this account instead of the actor")

	rootCmd.AddCommand(withdrawCmd)
	withdrawCmd.Flags().StringVar(&receiverAddr, "receiver", "", "Pay the assets to this account instead of the actor")
	withdrawCmd.Flags().StringVar(&ownerAddr, "owner", "", "Burn shares belonging to this account (requires an allowance)")

	rootCmd.AddCommand(redeemCmd)
	redeemCmd.Flags().StringVar(&receiverAddr, "receiver", "", "Pay the assets to this account instead of the actor")
	redeemCmd.Flags().StringVar(&ownerAddr, "owner", "", "Burn shares belonging to this account (requires an allowance)")

	rootCmd.AddCommand(injectCmd)
	injectCmd.Flags().BoolVar(&skipConfirm, "yes", false, "Skip the interactive confirmation")
	injectCmd.Flags().StringVar(&tokenFile, "token-file", "", "File holding the operator bearer token (else VAULT_OPERATOR_TOKEN)")

	rootCmd.AddCommand(approveCmd)

	// queries
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(holderCmd)
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "Maximum number of events to list")

	rootCmd.AddCommand(previewCmd)
	previewCmd.AddCommand(previewDepositCmd)
	previewCmd.AddCommand(previewRedeemCmd)

	// token ledger
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenMintCmd)
	tokenMintCmd.Flags().StringVar(&tokenFile, "token-file", "", "File holding the operator bearer token (else VAULT_OPERATOR_TOKEN)")
	tokenCmd.AddCommand(tokenTransferCmd)
	tokenCmd.AddCommand(tokenApproveCmd)
	tokenCmd.AddCommand(tokenBalanceCmd)

	// live view
	rootCmd.AddCommand(watchCmd)

	// backups
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupGCSCmd)
	backupGCSCmd.Flags().StringVar(&backupBucket, "bucket", "", "GCS bucket to upload the snapshot to (required)")
	backupGCSCmd.Flags().StringVar(&backupPrefix, "prefix", "vault-backups", "Object name prefix inside the bucket")
	backupGCSCmd.Flags().StringVar(&backupDataDir, "data-dir", "vault-data", "Path to the vault's badger data directory")
	backupGCSCmd.Flags().StringVar(&backupCredentials, "credentials", "", "Path to a GCS service account key (default: ambient credentials)")
}

// envOr returns the environment value for key, or fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
