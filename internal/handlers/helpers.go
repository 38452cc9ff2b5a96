package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/perimetra/tunnelgate/internal/gateway"
	"github.com/perimetra/tunnelgate/internal/tunnel"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}

// tunnelFailureStatus maps a classified tunnel failure to an HTTP status.
func tunnelFailureStatus(code tunnel.Code) int {
	switch code {
	case tunnel.CodeInvalidEnvironment:
		return http.StatusBadRequest
	case tunnel.CodeAuthenticationFailed:
		return http.StatusUnauthorized
	case tunnel.CodeNoPortAvailable:
		return http.StatusServiceUnavailable
	case tunnel.CodeStatusQueryFailed, tunnel.CodeTunnelLaunchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// gatewayFailureStatus maps a classified gateway failure to an HTTP status.
func gatewayFailureStatus(code gateway.Code) int {
	switch code {
	case gateway.CodeBadRequest, gateway.CodeQueryRejected:
		return http.StatusBadRequest
	case gateway.CodeTunnelUnreachable:
		return http.StatusServiceUnavailable
	case gateway.CodeQueryExecutionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
