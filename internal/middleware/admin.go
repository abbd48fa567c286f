package middleware

import (
	"context"
	"net/http"
)

// Admin roles. Super admins pass every role check.
const (
	RoleEditConfig   = "config_editor"
	RoleReviewClaims = "claims_reviewer"
	RoleSettleRounds = "round_settler"
)

var Roles = []string{RoleEditConfig, RoleReviewClaims, RoleSettleRounds}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

func RequireAdmin(adminStore AdminStore, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
				return
			}
			isAdmin, isSuper, err := adminStore.IsAdmin(r.Context(), userID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "INTERNAL", "unable to verify admin")
				return
			}
			if !isAdmin {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "admin privileges required")
				return
			}
			if isSuper || role == "" {
				next.ServeHTTP(w, r)
				return
			}
			hasRole, err := adminStore.HasRole(r.Context(), userID, role)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "INTERNAL", "unable to verify role")
				return
			}
			if !hasRole {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "missing required role "+role)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
