// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"github.com/streamloft/vodhub/internal/log"
	"github.com/streamloft/vodhub/internal/metrics"
)

// secureFileServer serves HLS manifests and segments from the output
// directory with traversal, symlink and listing protection. Playback clients
// fetch the master playlist, then the per-rendition playlists and segments.
func (s *Server) secureFileServer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "hls")

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			denyFile(w, logger, r.URL.Path, "method_not_allowed", http.StatusMethodNotAllowed)
			return
		}

		path := r.URL.Path
		if isPathTraversal(path) {
			denyFile(w, logger, path, "path_escape", http.StatusForbidden)
			return
		}
		if path == "" || strings.HasSuffix(path, "/") {
			denyFile(w, logger, path, "directory_listing", http.StatusForbidden)
			return
		}

		absRoot, err := filepath.Abs(s.cfg.HLSDir)
		if err != nil {
			denyFile(w, logger, path, "internal_error", http.StatusInternalServerError)
			return
		}
		fullPath := filepath.Join(absRoot, path)

		realPath, err := filepath.EvalSymlinks(fullPath)
		if err != nil {
			if os.IsNotExist(err) {
				denyFile(w, logger, path, "not_found", http.StatusNotFound)
				return
			}
			denyFile(w, logger, path, "internal_error", http.StatusInternalServerError)
			return
		}
		realRoot, err := filepath.EvalSymlinks(absRoot)
		if err != nil {
			denyFile(w, logger, path, "internal_error", http.StatusInternalServerError)
			return
		}

		rel, err := filepath.Rel(realRoot, realPath)
		if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
			logger.Warn().
				Str(log.FieldEvent, "file_req.denied").
				Str(log.FieldPath, path).
				Str("resolved_path", realPath).
				Str("reason", "path_escape").
				Msg("path escapes hls directory")
			metrics.FileRequestsDenied.WithLabelValues("path_escape").Inc()
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		f, err := os.Open(realPath)
		if err != nil {
			denyFile(w, logger, path, "internal_error", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			denyFile(w, logger, path, "directory_listing", http.StatusForbidden)
			return
		}

		// Weak ETag from modtime and size. VOD output never changes in
		// place, so this is a stable validator.
		etag := fmt.Sprintf(`W/"%x-%x"`, info.ModTime().UnixNano(), info.Size())
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		switch {
		case strings.HasSuffix(realPath, ".m3u8"):
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		case strings.HasSuffix(realPath, ".ts"):
			w.Header().Set("Content-Type", "video/mp2t")
		}

		// ServeContent handles Range requests, which seeking players use
		// heavily on segments.
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

func denyFile(w http.ResponseWriter, logger zerolog.Logger, path, reason string, code int) {
	logger.Warn().
		Str(log.FieldEvent, "file_req.denied").
		Str(log.FieldPath, path).
		Str("reason", reason).
		Msg("file request denied")
	metrics.FileRequestsDenied.WithLabelValues(reason).Inc()
	http.Error(w, http.StatusText(code), code)
}

// isPathTraversal guards against traversal attempts that survive naive
// prefix checks: repeated URL decoding, Unicode normalization tricks and
// embedded NUL bytes.
func isPathTraversal(p string) bool {
	decoded := p
	for i := 0; i < 3; i++ {
		prev := decoded
		if d, err := url.PathUnescape(decoded); err == nil {
			decoded = d
		}
		if decoded == prev {
			break
		}
	}

	if strings.Contains(decoded, "\x00") || strings.Contains(strings.ToLower(decoded), "%00") {
		return true
	}
	if strings.Contains(decoded, "..") {
		return true
	}
	normalized := norm.NFC.String(decoded)
	return strings.Contains(normalized, "..")
}
