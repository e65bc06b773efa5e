package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/bcsanches/DCCLite-sub001/internal/auth"
)

const ctxKeyClaims contextKey = "claims"

// requirePermission rejects requests whose bearer token lacks perm. It is
// a pass-through when API auth is disabled.
//
// The token comes from the Authorization header, or from the token query
// parameter for WebSocket clients that cannot set headers.
func (s *Server) requirePermission(perm auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !s.cfg.Auth.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="dcclite"`)
				writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "missing bearer token")
				return
			}
			claims, err := auth.ParseToken(raw, s.cfg.Auth.Secret)
			if err != nil {
				s.logger.Debug("rejected API token", "path", r.URL.Path, "error", err)
				w.Header().Set("WWW-Authenticate", `Bearer realm="dcclite", error="invalid_token"`)
				writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or expired token")
				return
			}
			if !auth.HasPermission(claims.Role, perm) {
				writeError(w, http.StatusForbidden, ErrCodeForbidden, "role "+string(claims.Role)+" lacks "+string(perm))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyClaims, claims)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// operatorFromContext returns the token subject, or "" for unauthenticated
// requests.
func operatorFromContext(ctx context.Context) string {
	if claims, ok := ctx.Value(ctxKeyClaims).(*auth.Claims); ok {
		return claims.Subject
	}
	return ""
}
