// SPDX-License-Identifier: MIT

package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/streamloft/vodhub/internal/log"
)

// authMiddleware enforces bearer token authentication when a token is
// configured. An empty token means the deployment fronts its own auth layer
// and the API stays open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.APIToken
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		got := bearerToken(r)
		if got == "" {
			authLogger := log.WithComponentFromContext(r.Context(), "auth")
			authLogger.Warn().Str(log.FieldEvent, "auth.missing").Msg("authorization header missing")
			writeUnauthorized(w)
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			authLogger := log.WithComponentFromContext(r.Context(), "auth")
			authLogger.Warn().Str(log.FieldEvent, "auth.invalid").Msg("invalid api token")
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}

// uploaderFrom resolves the caller identity used for the catalog's owner
// check. Identity assertion is the fronting auth layer's job; it forwards
// the claim in a header.
func uploaderFrom(r *http.Request) string {
	if u := strings.TrimSpace(r.Header.Get("X-Uploader")); u != "" {
		return u
	}
	return "anonymous"
}
