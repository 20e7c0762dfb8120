// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID  = "request_id"
	FieldSessionKey = "session_key"
	FieldVideoID    = "video_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldChunk     = "chunk_index"
	FieldQuality   = "quality"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath       = "path"
	FieldSourcePath = "source_path"
	FieldOutputDir  = "output_dir"
)
