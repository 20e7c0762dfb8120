// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/streamloft/vodhub/internal/assemble"
	"github.com/streamloft/vodhub/internal/catalog"
	"github.com/streamloft/vodhub/internal/log"
	"github.com/streamloft/vodhub/internal/transcode"
	"github.com/streamloft/vodhub/internal/upload"
)

// errorBody is the JSON error envelope. message carries a human-readable
// explanation the web client shows directly.
type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinel errors onto the HTTP status taxonomy and
// renders the envelope. Unknown errors become opaque 500s so internal detail
// never leaks to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, upload.ErrInvalidArgument):
		code = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, upload.ErrFileTooLarge):
		code = http.StatusRequestEntityTooLarge
		message = err.Error()
	case errors.Is(err, upload.ErrUnknownSession):
		code = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, upload.ErrStorageFull):
		code = http.StatusInsufficientStorage
		message = "not enough storage available, please try again later"
	case errors.Is(err, assemble.ErrIncompleteUpload):
		code = http.StatusConflict
		message = err.Error()
	case errors.Is(err, transcode.ErrQueueFull):
		code = http.StatusServiceUnavailable
		message = "the server is processing too many videos right now, please retry in a few minutes"
	case errors.Is(err, catalog.ErrNotFound):
		code = http.StatusNotFound
		message = "video not found"
	case errors.Is(err, catalog.ErrForbidden):
		code = http.StatusForbidden
		message = "only the uploader may modify this video"
	}

	if code == http.StatusInternalServerError {
		apiLogger := log.WithComponentFromContext(r.Context(), "api")
		apiLogger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, code, errorBody{Status: "error", Message: message})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, errorBody{Status: "error", Message: "unauthorized"})
}
