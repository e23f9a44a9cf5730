// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the vault.
//
// # Description
//
// This package implements Prometheus metrics for monitoring vault ledger
// operations. Metrics include:
//   - Operation counters (by operation and outcome code)
//   - Operation latency histograms
//   - Pool state gauges (shares, assets, exchange rate, holder count)
//   - Websocket subscriber gauge
//   - Journal failure counter (durability degradations)
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus + Grafana
// for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "aleutian_vault"

// VaultMetrics holds all Prometheus metrics for vault operations.
// Initialize once at startup via InitMetrics(); callers nil-guard the
// DefaultMetrics singleton so unit tests run without registration.
type VaultMetrics struct {
	// OperationsTotal counts ledger operations by op and outcome code.
	// Labels: op (deposit, withdraw, redeem, yield, ...), code ("ok" or
	// the SCREAMING_SNAKE error code returned to the client)
	OperationsTotal *prometheus.CounterVec

	// OperationDurationSeconds measures end-to-end operation latency,
	// including the journal write.
	// Labels: op
	OperationDurationSeconds *prometheus.HistogramVec

	// TotalShares tracks the shares outstanding.
	TotalShares prometheus.Gauge

	// TotalAssets tracks the pooled assets.
	TotalAssets prometheus.Gauge

	// ExchangeRate tracks totalAssets/totalShares, 0 for an empty pool.
	ExchangeRate prometheus.Gauge

	// HolderCount tracks the number of holder records.
	HolderCount prometheus.Gauge

	// WebsocketClients tracks connected event stream subscribers.
	WebsocketClients prometheus.Gauge

	// JournalFailuresTotal counts transitions that committed in memory
	// but failed to journal. Each one is a durability degradation.
	JournalFailuresTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of VaultMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *VaultMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// startup; a second call panics on duplicate registration.
func InitMetrics() *VaultMetrics {
	DefaultMetrics = &VaultMetrics{
		OperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_total",
				Help:      "Total ledger operations by op and outcome code",
			},
			[]string{"op", "code"},
		),

		OperationDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "operation_duration_seconds",
				Help:      "End-to-end operation latency including the journal write",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
			},
			[]string{"op"},
		),

		TotalShares: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "total_shares",
			Help:      "Shares outstanding",
		}),

		TotalAssets: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "total_assets",
			Help:      "Pooled assets",
		}),

		ExchangeRate: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "exchange_rate",
			Help:      "Assets per share, 0 for an empty pool",
		}),

		HolderCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "holder_count",
			Help:      "Number of holder records",
		}),

		WebsocketClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "websocket_clients",
			Help:      "Connected event stream subscribers",
		}),

		JournalFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "journal_failures_total",
			Help:      "Transitions committed in memory that failed to journal",
		}),
	}

	return DefaultMetrics
}

// RecordOperation records one completed (or rejected) ledger operation.
func (m *VaultMetrics) RecordOperation(op, code string, seconds float64) {
	m.OperationsTotal.WithLabelValues(op, code).Inc()
	m.OperationDurationSeconds.WithLabelValues(op).Observe(seconds)
}

// SetPoolState updates the pool gauges from the post-transition totals.
func (m *VaultMetrics) SetPoolState(totalShares, totalAssets sdkmath.Int, holderCount int) {
	m.TotalShares.Set(intToFloat(totalShares))
	m.TotalAssets.Set(intToFloat(totalAssets))
	m.ExchangeRate.Set(ExchangeRate(totalShares, totalAssets))
	m.HolderCount.Set(float64(holderCount))
}

// ExchangeRate returns totalAssets/totalShares as a display float, 0 for an
// empty pool. Display only; the ledger never does float arithmetic.
func ExchangeRate(totalShares, totalAssets sdkmath.Int) float64 {
	shares := intToFloat(totalShares)
	if shares <= 0 {
		return 0
	}
	return intToFloat(totalAssets) / shares
}

// RecordJournalFailure counts one durability degradation.
func (m *VaultMetrics) RecordJournalFailure() {
	m.JournalFailuresTotal.Inc()
}

// ClientConnected increments the websocket subscriber gauge.
func (m *VaultMetrics) ClientConnected() {
	m.WebsocketClients.Inc()
}

// ClientDisconnected decrements the websocket subscriber gauge.
func (m *VaultMetrics) ClientDisconnected() {
	m.WebsocketClients.Dec()
}

// intToFloat converts a ledger quantity for gauge display. Precision loss
// at the top of the range is acceptable; gauges are observational only.
func intToFloat(v sdkmath.Int) float64 {
	if v.IsNil() {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.BigInt()).Float64()
	return f
}
