// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"context"
	"log/slog"
	"time"

	sdkmath "cosmossdk.io/math"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// rateMeasurement is the InfluxDB measurement for exchange-rate samples.
const rateMeasurement = "vault_rate"

// RateRecorder writes an exchange-rate time series to InfluxDB after each
// transition. It is strictly off the critical path: write failures are
// logged and dropped, never surfaced to the caller.
type RateRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	bucket   string
	org      string
	logger   *slog.Logger
}

// NewRateRecorder creates a recorder writing to the given InfluxDB bucket.
// The client buffers nothing; each Record is one blocking write.
func NewRateRecorder(url, token, org, bucket string, logger *slog.Logger) *RateRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClient(url, token)
	writeAPI := client.WriteAPIBlocking(org, bucket)

	return &RateRecorder{
		client:   client,
		writeAPI: writeAPI,
		bucket:   bucket,
		org:      org,
		logger:   logger,
	}
}

// Record writes one vault_rate sample tagged with the operation that
// produced it. Errors are logged, not returned.
func (r *RateRecorder) Record(ctx context.Context, op string, totalShares, totalAssets sdkmath.Int, at time.Time) {
	if r == nil {
		return
	}

	shares := intToFloat(totalShares)
	assets := intToFloat(totalAssets)
	rate := 0.0
	if shares > 0 {
		rate = assets / shares
	}

	p := influxdb2.NewPointWithMeasurement(rateMeasurement).
		AddTag("op", op).
		AddField("exchange_rate", rate).
		AddField("total_shares", shares).
		AddField("total_assets", assets).
		SetTime(at)

	if err := r.writeAPI.WritePoint(ctx, p); err != nil {
		r.logger.Warn("influxdb write failed",
			"measurement", rateMeasurement,
			"op", op,
			"error", err)
	}
}

// Close releases the underlying InfluxDB client.
func (r *RateRecorder) Close() {
	if r == nil {
		return
	}
	r.client.Close()
}
