package auth

import (
	"errors"
	"net/http"

	"github.com/frahmantamala/sms-expense-pipeline/internal"
	"github.com/frahmantamala/sms-expense-pipeline/internal/transport"
	"github.com/frahmantamala/sms-expense-pipeline/pkg/logger"
)

type ServiceAPI interface {
	ValidateAccessToken(tokenString string) (*Claims, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     svc,
	}
}

// AuthMiddleware rejects requests without a valid bearer token and puts the
// caller id into the request context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.Logger.Warn("auth middleware: missing authorization token", "path", r.URL.Path)
			h.WriteAppError(w, internal.ErrAuthRequired)
			return
		}

		tokenPrefix := token
		if len(token) > 20 {
			tokenPrefix = token[:20]
		}

		claims, err := h.Service.ValidateAccessToken(token)
		if err != nil {
			h.Logger.Warn("token validation failed", "error", err, "token_prefix", tokenPrefix)
			if errors.Is(err, ErrTokenExpired) {
				h.WriteAppError(w, internal.ErrTokenExpired)
				return
			}
			h.WriteAppError(w, internal.ErrInvalidToken)
			return
		}

		userID := claims.Identity()
		h.Logger.Debug("auth middleware: token validated", "user_id", userID)

		ctx := internal.ContextWithUserID(r.Context(), userID)
		ctx = logger.With(ctx, "user_id", userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
