package handlers

import (
	"net/http"
	"strconv"
)

// ListEvents returns recent audit events, newest first.
func ListEvents(w http.ResponseWriter, r *http.Request) {
	if Auditor == nil {
		writeError(w, http.StatusServiceUnavailable, "AuditUnavailable", "audit log is not initialized")
		return
	}

	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := Auditor.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
