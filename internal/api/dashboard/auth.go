package dashboard

import (
	"crypto/subtle"
	"net/http"
)

const (
	// AdminTokenHeader is the header name for admin authentication token.
	AdminTokenHeader = "X-Admin-Token"
)

// requireAdmin rejects requests without a valid admin token.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(AdminTokenHeader)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing admin token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Admin.Token)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid admin token")
			return
		}
		next(w, r)
	}
}
