// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/streamloft/vodhub/internal/catalog"
	"github.com/streamloft/vodhub/internal/fsutil"
	"github.com/streamloft/vodhub/internal/log"
	"github.com/streamloft/vodhub/internal/upload"
)

const (
	defaultPageSize = 12
	maxPageSize     = 100
)

// handleListVideos returns the catalog newest-first.
//
// GET /api/upload/videos?page=&limit=
func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	limit := defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	videos, err := s.catalog.List(r.Context(), page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"videos": videos,
		"page":   page,
		"limit":  limit,
	})
}

// handleGetVideo returns one catalog entry. Clients poll this while a video
// is processing.
func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	video, err := s.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}

// handleUpdateVideo edits title and description. Restricted to the uploader.
//
// PATCH /api/upload/videos/{id}
func (s *Server) handleUpdateVideo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, fmt.Errorf("%w: decode body: %v", upload.ErrInvalidArgument, err))
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		writeError(w, r, fmt.Errorf("%w: title must not be empty", upload.ErrInvalidArgument))
		return
	}

	video, err := s.catalog.UpdateMetadata(r.Context(), chi.URLParam(r, "id"),
		uploaderFrom(r), body.Title, body.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}

// handleDeleteVideo removes the catalog entry together with its HLS output
// and any leftover source file.
func (s *Server) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := log.WithComponentFromContext(r.Context(), "api")

	video, err := s.catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if video.Uploader != "" && video.Uploader != uploaderFrom(r) {
		writeError(w, r, catalog.ErrForbidden)
		return
	}

	if err := s.catalog.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	// Artifact removal is best-effort; the catalog record is authoritative
	// and already gone.
	if dir, err := fsutil.ConfineRelPath(s.cfg.HLSDir, id); err == nil {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn().Err(err).Str(log.FieldVideoID, id).Msg("remove hls output")
		}
	}
	if matches, err := filepath.Glob(filepath.Join(s.cfg.MediaDir, id+".*")); err == nil {
		for _, m := range matches {
			if err := os.Remove(m); err != nil {
				logger.Warn().Err(err).Str(log.FieldPath, m).Msg("remove media file")
			}
		}
	}

	logger.Info().Str(log.FieldVideoID, id).Msg("video deleted")
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// handleView bumps the view counter.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.catalog.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.counters.BumpViews(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

// handleLike bumps the like counter.
func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.catalog.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.counters.BumpLikes(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

// handleSearch matches titles and descriptions.
//
// GET /api/upload/search?query=
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, r, fmt.Errorf("%w: query must not be empty", upload.ErrInvalidArgument))
		return
	}
	videos, err := s.catalog.Search(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"videos": videos,
		"query":  query,
	})
}
