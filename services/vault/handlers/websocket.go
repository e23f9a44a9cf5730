// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianVault/services/vault/datatypes"
	"github.com/AleutianAI/AleutianVault/services/vault/ledger"
	"github.com/AleutianAI/AleutianVault/services/vault/observability"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// upgrader upgrades HTTP connections to websocket for the event stream.
// Origin checking is left to the deployment's proxy layer.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// wsFrame is the envelope for frames pushed to event stream clients.
// Type is "hello" for the first frame (carrying a pool snapshot) and
// "event" for every committed transition after it.
type wsFrame struct {
	Type  string                   `json:"type"`
	Stats *datatypes.StatsResponse `json:"stats,omitempty"`
	Event *ledger.Receipt          `json:"event,omitempty"`
}

// HandleEventsWS handles GET /v1/events/ws.
//
// Description:
//
//	Upgrades the connection and streams committed transitions as they
//	happen. The first frame is a pool snapshot so clients can render
//	immediately; subsequent frames carry one receipt each, in commit
//	order. The stream is best-effort: a client that stops reading is
//	disconnected, and the journal remains the durable record.
//
// Response:
//
//	101 Switching Protocols, then wsFrame JSON frames
func (h *Handlers) HandleEventsWS(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleEventsWS")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	if m := observability.DefaultMetrics; m != nil {
		m.ClientConnected()
		defer m.ClientDisconnected()
	}

	// Subscribe before snapshotting so no transition can fall between
	// the hello frame and the first streamed event.
	events, cancel := h.svc.Subscribe()
	defer cancel()

	stats := h.svc.Stats(c.Request.Context())
	if !sendJSON(ws, logger, wsFrame{Type: "hello", Stats: &stats}) {
		return
	}

	// The client is not expected to send frames, but reading is how
	// gorilla surfaces close frames and dead connections.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Info("Event stream connected")

	for {
		select {
		case rcpt, ok := <-events:
			if !ok {
				// Hub shut down or this subscriber fell too far behind.
				logger.Info("Event stream closed by hub")
				return
			}
			if !sendJSON(ws, logger, wsFrame{Type: "event", Event: &rcpt}) {
				return
			}

		case <-done:
			logger.Info("Event stream disconnected")
			return

		case <-c.Request.Context().Done():
			return
		}
	}
}

// sendJSON writes one frame to the websocket, reporting failure so the
// caller can drop the connection.
func sendJSON(ws *websocket.Conn, logger *slog.Logger, v any) bool {
	if err := ws.WriteJSON(v); err != nil {
		logger.Warn("Websocket write failed", "error", err)
		return false
	}
	return true
}
