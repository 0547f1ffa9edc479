package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/postpilot/postpilot-backend/api/responses"
	pkgAuth "github.com/postpilot/postpilot-backend/pkg/auth"
	"github.com/postpilot/postpilot-backend/pkg/config"
	pkgerrors "github.com/postpilot/postpilot-backend/pkg/errors"
	"github.com/postpilot/postpilot-backend/pkg/logger"
)

// OperatorAuth validates a bearer operator token and requires scope on its claims.
func OperatorAuth(cfg config.OpsConfig, scope string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseOperatorToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if strings.TrimSpace(claims.Subject) == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing subject"))
				return
			}
			if scope != "" && !claims.HasScope(scope) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient scope"))
				return
			}

			ctx := WithOperator(r.Context(), claims.Subject)
			ctx = context.WithValue(ctx, ctxScopes, claims.Scopes)
			if logg != nil {
				ctx = logg.WithField(ctx, "operator", claims.Subject)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
