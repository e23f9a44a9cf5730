// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gcs uploads vault state snapshots to Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type Client struct {
	storageClient *storage.Client
	BucketName    string
}

// NewClient opens a GCS client against one bucket. credentialsFile may
// be empty, in which case Application Default Credentials apply.
func NewClient(ctx context.Context, bucketName, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("credentials file not found at path: %s. Please ensure you have the correct key and it is accessible", credentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &Client{
		storageClient: storageClient,
		BucketName:    bucketName,
	}, nil
}

func (c *Client) Close() error {
	return c.storageClient.Close()
}

// UploadSnapshot streams the output of write into a single GCS object
// and returns the byte count. A failed write cancels the object, so a
// partial snapshot is never committed.
func (c *Client) UploadSnapshot(ctx context.Context, objectPath string, write func(io.Writer) error) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	obj := c.storageClient.Bucket(c.BucketName).Object(objectPath)
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	counted := &countingWriter{w: writer}
	if err := write(counted); err != nil {
		cancel()
		_ = writer.Close()
		return 0, fmt.Errorf("failed to write snapshot to gs://%s/%s: %w", c.BucketName, objectPath, err)
	}

	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("failed to close GCS writer for %s: %w", objectPath, err)
	}
	return counted.n, nil
}

// SnapshotObjectName returns the object path for a snapshot taken at the
// given time, e.g. "vault-backups/vault-20250825T143000Z.badger".
func SnapshotObjectName(prefix string, now time.Time) string {
	name := fmt.Sprintf("vault-%s.badger", now.UTC().Format("20060102T150405Z"))
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
