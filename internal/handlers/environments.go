package handlers

import (
	"net/http"
	"sort"

	"github.com/perimetra/tunnelgate/internal/config"
)

type environmentInfo struct {
	ID            string `json:"id"`
	PreferredPort int    `json:"preferredPort"`
	RemoteHost    string `json:"remoteHost"`
}

// ListEnvironments returns the configured environment profiles.
func ListEnvironments(w http.ResponseWriter, r *http.Request) {
	envs := make([]environmentInfo, 0, len(config.Environments))
	for id, p := range config.Environments {
		envs = append(envs, environmentInfo{ID: id, PreferredPort: p.PreferredPort, RemoteHost: p.RemoteHost})
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i].ID < envs[j].ID })

	writeJSON(w, http.StatusOK, map[string]any{"environments": envs})
}
