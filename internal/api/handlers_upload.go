// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/streamloft/vodhub/internal/fsutil"
	"github.com/streamloft/vodhub/internal/log"
	"github.com/streamloft/vodhub/internal/upload"
)

// maxChunkMemory bounds the multipart parser's in-memory buffer; larger
// chunk payloads spill to temp files.
const maxChunkMemory = 8 << 20

// handleInit opens an upload session.
//
// POST /api/upload/init
// form: filename, totalSize, totalChunks, optional title, description
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, fmt.Errorf("%w: parse form: %v", upload.ErrInvalidArgument, err))
		return
	}
	filename := r.PostFormValue("filename")
	totalSize, err := strconv.ParseInt(r.PostFormValue("totalSize"), 10, 64)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: totalSize: %v", upload.ErrInvalidArgument, err))
		return
	}
	totalChunks, err := strconv.Atoi(r.PostFormValue("totalChunks"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: totalChunks: %v", upload.ErrInvalidArgument, err))
		return
	}

	sess, err := s.tracker.Init(r.Context(), filename,
		r.PostFormValue("title"), r.PostFormValue("description"), totalSize, totalChunks)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "initialized",
		"sessionKey":  sess.Key,
		"totalChunks": sess.TotalChunks,
	})
}

// handleChunk stores one chunk payload.
//
// POST /api/upload/chunk
// multipart: file, chunkIndex, totalChunks, filename
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxChunkMemory); err != nil {
		writeError(w, r, fmt.Errorf("%w: parse multipart form: %v", upload.ErrInvalidArgument, err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	chunkIndex, err := strconv.Atoi(r.PostFormValue("chunkIndex"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: chunkIndex: %v", upload.ErrInvalidArgument, err))
		return
	}
	totalChunks, err := strconv.Atoi(r.PostFormValue("totalChunks"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: totalChunks: %v", upload.ErrInvalidArgument, err))
		return
	}
	key := fsutil.SanitizeFilename(r.PostFormValue("filename"))
	if key == "" {
		writeError(w, r, fmt.Errorf("%w: missing or unusable filename", upload.ErrInvalidArgument))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: missing chunk payload: %v", upload.ErrInvalidArgument, err))
		return
	}
	defer file.Close()

	ctx := log.ContextWithSessionKey(r.Context(), key)
	progress, err := s.receiver.StoreChunk(ctx, key, chunkIndex, totalChunks, file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "chunk_received",
		"chunkIndex":  progress.ChunkIndex,
		"received":    progress.Received,
		"totalChunks": progress.TotalChunks,
		"progress":    progress.Percent,
	})
}

// handleComplete finishes an upload: the chunks are assembled and the
// transcode job is enqueued. Responds 202 since processing continues in the
// background; clients poll the video status until it leaves "processing".
//
// POST /api/upload/complete
// form: filename, totalChunks
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, fmt.Errorf("%w: parse form: %v", upload.ErrInvalidArgument, err))
		return
	}
	key := fsutil.SanitizeFilename(r.PostFormValue("filename"))
	if key == "" {
		writeError(w, r, fmt.Errorf("%w: missing or unusable filename", upload.ErrInvalidArgument))
		return
	}

	ctx := log.ContextWithSessionKey(r.Context(), key)
	videoID, err := s.assembler.Complete(ctx, key, uploaderFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "processing_started",
		"videoId": videoID,
		"hlsUrl":  "/hls/" + videoID + "/master.m3u8",
	})
}
