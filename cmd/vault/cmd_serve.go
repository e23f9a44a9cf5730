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
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianVault/pkg/extensions"
	"github.com/AleutianAI/AleutianVault/pkg/ux"
	"github.com/AleutianAI/AleutianVault/services/vault"
)

// runServe boots the vault service in the foreground and blocks until
// SIGINT or SIGTERM.
//
// Config resolution order: --config flag, then the VAULT_CONFIG
// environment variable, then built-in defaults. Individual VAULT_*
// variables override file values either way.
func runServe(cmd *cobra.Command, args []string) {
	cfg, err := vault.LoadConfig(configPath)
	if err != nil {
		OutputError(machineOutput(), "Failed to load config", err)
		os.Exit(CLIExitError)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := vault.NewServer(ctx, cfg, extensions.DefaultOptions())
	if err != nil {
		OutputError(machineOutput(), "Failed to start the vault service", err)
		os.Exit(CLIExitError)
	}

	ux.Title("Aleutian Vault")
	ux.Info("Listening on " + cfg.ListenAddr)

	if err := srv.Run(ctx); err != nil {
		OutputError(machineOutput(), "Vault service exited", err)
		os.Exit(CLIExitError)
	}
}
