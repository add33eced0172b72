package httpapi

import (
	"net/http"
	"strings"

	"loops-server/internal/model"
)

// requireUser wraps a handler with bearer-token authentication. The
// resolved user is passed through explicitly rather than via context so
// handlers cannot forget to scope by owner.
func (s *Server) requireUser(next func(w http.ResponseWriter, r *http.Request, user *model.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		user, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "unauthorized", "could not validate credentials")
			return
		}
		next(w, r, user)
	}
}
