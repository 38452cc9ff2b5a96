package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/perimetra/tunnelgate/internal/audit"
	"github.com/perimetra/tunnelgate/internal/gateway"
)

// Injected from main.
var SQLGateway *gateway.Gateway

type queryRequest struct {
	Query    string            `json:"query"`
	DBConfig *gateway.DBConfig `json:"dbConfig"`
}

// ExecuteQuery runs one read-only statement through the tunnel endpoint.
func ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(gateway.CodeBadRequest), "invalid JSON body")
		return
	}

	rows, err := SQLGateway.Execute(r.Context(), req.Query, req.DBConfig)
	if err != nil {
		var f *gateway.Failure
		if errors.As(err, &f) {
			if f.Code == gateway.CodeQueryRejected {
				audit.LogEvent(audit.Entry{EventType: audit.EventQueryRejected, Details: f.Detail})
			}
			writeError(w, gatewayFailureStatus(f.Code), string(f.Code), f.Detail)
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal", err.Error())
		return
	}

	audit.LogEvent(audit.Entry{
		EventType: audit.EventQueryExecuted,
		Details:   fmt.Sprintf("%d rows", len(rows)),
	})
	writeJSON(w, http.StatusOK, map[string]any{"data": rows})
}
