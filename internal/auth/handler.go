package auth

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/receptionist-billing/internal"
	"github.com/frahmantamala/receptionist-billing/internal/transport"
	"github.com/frahmantamala/receptionist-billing/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Validator TokenValidator
}

func NewHandler(validator TokenValidator) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Validator:   validator,
	}
}

// AuthMiddleware requires a valid bearer token and puts the caller on the
// request context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.Logger.Warn("auth middleware: missing authorization token", "path", r.URL.Path)
			h.HandleError(w, internal.NewUnauthorizedError("missing authorization token", internal.ErrCodeInvalidToken))
			return
		}

		claims, err := h.Validator.ValidateToken(token)
		if err != nil {
			h.Logger.Warn("auth middleware: token validation failed", "error", err, "path", r.URL.Path)
			h.HandleServiceError(w, err)
			return
		}

		user := claims.User()
		ctx := internal.ContextWithUser(r.Context(), user)
		ctx = logger.With(ctx, "user_id", user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
