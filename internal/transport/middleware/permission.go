package middleware

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/receptionist-billing/internal"
	"github.com/frahmantamala/receptionist-billing/internal/transport"
)

// RequirePermissions lets the request through when the authenticated user holds
// any of permissions.
func RequirePermissions(logger *slog.Logger, permissions ...string) func(http.Handler) http.Handler {
	base := transport.NewBaseHandler(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := internal.UserFromContext(r.Context())
			if !ok {
				base.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
				return
			}

			for _, required := range permissions {
				if user.HasPermission(required) {
					next.ServeHTTP(w, r)
					return
				}
			}

			base.Logger.Warn("Access denied: user lacks required permissions",
				"user_id", user.ID,
				"required_permissions", permissions,
				"user_permissions", user.Permissions)
			base.HandleError(w, internal.NewForbiddenError("insufficient permissions", internal.ErrCodeUnauthorizedAccess))
		})
	}
}

// RequireAdmin is RequirePermissions(internal.PermissionAdmin).
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return RequirePermissions(logger, internal.PermissionAdmin)
}
