// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events fans committed ledger transitions out to live subscribers.
//
// The hub sits between the vault service (the single publisher) and any
// number of websocket clients. Delivery is best-effort: the journal is the
// durable record, the stream is a convenience. A subscriber that stops
// draining its channel is dropped rather than allowed to stall the
// publisher.
package events

import (
	"log/slog"
	"sync"

	"github.com/AleutianAI/AleutianVault/services/vault/ledger"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this many receipts behind is disconnected.
const subscriberBuffer = 64

// Hub broadcasts receipts to all current subscribers.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan ledger.Receipt]struct{}
	closed bool
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[chan ledger.Receipt]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new subscriber and returns its receive channel
// together with a cancel function. The channel is closed when the
// subscriber is cancelled, dropped for falling behind, or the hub shuts
// down. Cancel is idempotent.
//
// Subscribing to a closed hub returns an already-closed channel.
func (h *Hub) Subscribe() (<-chan ledger.Receipt, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		ch := make(chan ledger.Receipt)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan ledger.Receipt, subscriberBuffer)
	h.subs[ch] = struct{}{}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers a receipt to every subscriber without blocking.
// Subscribers whose buffers are full are dropped and their channels
// closed; their read loops observe the close and tear down.
func (h *Hub) Publish(rcpt ledger.Receipt) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	for ch := range h.subs {
		select {
		case ch <- rcpt:
		default:
			delete(h.subs, ch)
			close(ch)
			h.logger.Warn("dropping slow event subscriber",
				"buffered", subscriberBuffer,
				"seq", rcpt.Seq)
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects all subscribers. Further publishes are no-ops and
// further subscriptions return closed channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
