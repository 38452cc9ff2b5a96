package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/perimetra/tunnelgate/internal/audit"
	"github.com/perimetra/tunnelgate/internal/tunnel"
)

// Injected from main.
var (
	Tunnels   *tunnel.Manager
	Broadcast *tunnel.Broadcaster
	Auditor   *audit.Auditor
)

// keepAliveInterval is how often idle status streams receive a liveness ping.
const keepAliveInterval = 25 * time.Second

// GetStatus returns the current tunnel snapshot. Never fails.
func GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Tunnels.Status())
}

// StreamStatus subscribes the caller to status snapshots over SSE: one event
// immediately, one per transition, plus periodic keep-alive comments. Closing
// the stream removes the observer.
func StreamStatus(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "StreamingUnsupported", "response writer does not support streaming")
		return
	}

	ch, cancel := Broadcast.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	writeEvent := func(snap tunnel.Snapshot) error {
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := writeEvent(Tunnels.Status()); err != nil {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case snap, open := <-ch:
			if !open {
				return
			}
			if err := writeEvent(snap); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// StatusWS is the WebSocket variant of the status stream: the same snapshot
// contract, with protocol-level pings as keep-alives.
func StatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("Failed to accept status websocket: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	// No inbound messages are expected; CloseRead pumps control frames and
	// cancels the context when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	ch, cancel := Broadcast.Subscribe()
	defer cancel()

	writeSnap := func(snap tunnel.Snapshot) error {
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageText, data)
	}

	if err := writeSnap(Tunnels.Status()); err != nil {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case snap, open := <-ch:
			if !open {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := writeSnap(snap); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}
