// SPDX-License-Identifier: MIT

package fsutil

import "regexp"

var (
	unsafeChars     = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	underscoreRuns  = regexp.MustCompile(`_+`)
	leadingSpecials = regexp.MustCompile(`^[._-]+`)
)

// SanitizeFilename reduces a client-supplied filename to a safe on-disk name.
// Unsafe characters collapse to single underscores and leading dots/dashes
// are stripped so the result can never be a hidden file or option-like name.
func SanitizeFilename(name string) string {
	s := unsafeChars.ReplaceAllString(name, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = leadingSpecials.ReplaceAllString(s, "")
	return s
}
