package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/perimetra/tunnelgate/internal/config"
	"github.com/perimetra/tunnelgate/internal/launcher"
	"github.com/perimetra/tunnelgate/internal/tunnel"
)

type connectRequest struct {
	Environment string `json:"environment"`
}

// ConnectTunnel establishes the tunnel for the requested environment,
// replacing any tunnel already running.
func ConnectTunnel(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Environment == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "body must be {\"environment\": \"...\"}")
		return
	}

	// The attempt must not die with the HTTP connection; tearing the tunnel
	// down is the only way to abort it.
	port, err := Tunnels.Connect(context.WithoutCancel(r.Context()), req.Environment)
	if err != nil {
		var f *tunnel.Failure
		if errors.As(err, &f) {
			writeError(w, tunnelFailureStatus(f.Code), string(f.Code), f.Detail)
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tunnelPort": port,
		"message":    fmt.Sprintf("Tunnel to %s established on local port %d", req.Environment, port),
	})
}

// DisconnectTunnel tears the tunnel down. Always succeeds.
func DisconnectTunnel(w http.ResponseWriter, r *http.Request) {
	Tunnels.Disconnect(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Tunnel disconnected"})
}

// OpenLoginTerminal spawns a visible terminal running the interactive SSO
// login for an environment. Fire-and-forget: success means the terminal was
// started, not that login completed.
func OpenLoginTerminal(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Environment == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "body must be {\"environment\": \"...\"}")
		return
	}
	if _, ok := config.Environments[req.Environment]; !ok {
		writeError(w, http.StatusBadRequest, "InvalidEnvironment",
			fmt.Sprintf("unknown environment %q", req.Environment))
		return
	}

	if err := launcher.OpenLoginTerminal(config.Cfg.AuthTool, req.Environment); err != nil {
		log.Printf("Login terminal launch failed: %v", err)
		writeError(w, http.StatusInternalServerError, "TerminalLaunchFailed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Login terminal opened"})
}
