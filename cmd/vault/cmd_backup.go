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
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianVault/cmd/vault/gcs"
	"github.com/AleutianAI/AleutianVault/pkg/ux"
	"github.com/AleutianAI/AleutianVault/services/vault/storage/badger"
)

// BackupResult is the `backup gcs` payload for --json consumers.
type BackupResult struct {
	Bucket string `json:"bucket"`
	Object string `json:"object"`
	Bytes  int64  `json:"bytes"`
}

// runBackupGCS streams a badger backup of the vault's data directory
// straight into a GCS object, never touching local disk.
//
// Badger holds a directory lock while the service runs, so this works
// against a stopped service or a filesystem-level copy of the data dir.
func runBackupGCS(cmd *cobra.Command, args []string) {
	start := time.Now()

	if backupBucket == "" {
		OutputError(machineOutput(), "No bucket", errors.New("--bucket is required"))
		os.Exit(CLIExitError)
	}

	ctx := cmd.Context()

	cfg := badger.DefaultConfig()
	cfg.Path = backupDataDir
	cfg.SyncWrites = false
	cfg.GCInterval = 0 // read-only pass, no GC goroutine
	db, err := badger.OpenDB(cfg)
	if err != nil {
		OutputError(machineOutput(),
			"Failed to open the data directory (badger locks it while the service runs; stop the service first)", err)
		os.Exit(CLIExitError)
	}
	defer db.Close()

	client, err := gcs.NewClient(ctx, backupBucket, backupCredentials)
	if err != nil {
		OutputError(machineOutput(), "Failed to create the GCS client", err)
		os.Exit(CLIExitError)
	}
	defer client.Close()

	object := gcs.SnapshotObjectName(backupPrefix, time.Now())
	var bytes int64
	upload := func() error {
		var uploadErr error
		bytes, uploadErr = client.UploadSnapshot(ctx, object, func(w io.Writer) error {
			// since=0 exports the full keyspace, journal included.
			_, backupErr := db.Backup(w, 0)
			return backupErr
		})
		return uploadErr
	}

	if machineOutput() {
		err = upload()
	} else {
		spin := ux.NewSpinner(fmt.Sprintf("Uploading snapshot to gs://%s/%s", backupBucket, object))
		spin.Start()
		if err = upload(); err != nil {
			spin.Stop()
		} else {
			spin.StopWithSuccess(fmt.Sprintf("snapshot uploaded to gs://%s/%s (%d bytes)",
				backupBucket, object, bytes))
		}
	}

	result := BackupResult{Bucket: backupBucket, Object: object, Bytes: bytes}
	os.Exit(OutputResult(outputCfg(), "vault backup gcs", start, result, err))
}
