// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"os"

	"github.com/streamloft/vodhub/internal/version"
)

// handleHealthz is the liveness probe: the process is up and serving.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// handleReadyz is the readiness probe: storage directories must be reachable
// and the catalog database answerable before traffic is admitted.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for _, dir := range []string{s.cfg.ChunkDir, s.cfg.MediaDir, s.cfg.HLSDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": "storage directory missing: " + dir,
			})
			return
		}
	}
	if err := s.catalog.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "catalog database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
