package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/taskcoin/backend/internal/auth"
	"github.com/taskcoin/backend/internal/models"
)

type contextKey string

const ctxPrincipalKey contextKey = "principal"

// TokenValidator turns a bearer token into a principal. *auth.Verifier implements it.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Principal, error)
}

// AccountProvisioner returns the principal's account, creating it on first sight.
type AccountProvisioner interface {
	Ensure(ctx context.Context, id uuid.UUID, email, name string, role models.Role) (*models.Account, error)
}

// Authenticate verifies the Bearer token, makes sure an account exists for the
// principal and stores the principal in the request context. The stored
// account's role wins over the token's.
func Authenticate(tokens TokenValidator, accounts AccountProvisioner, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "missing or malformed Authorization header", models.KindUnauthorized)
				return
			}

			p, err := tokens.ValidateToken(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token", models.KindUnauthorized)
				return
			}

			acc, err := accounts.Ensure(r.Context(), p.AccountID, p.Email, p.Name, p.Role)
			if err != nil {
				switch {
				case errors.Is(err, models.ErrUnauthorized):
					writeError(w, http.StatusForbidden, err.Error(), models.KindUnauthorized)
				case errors.Is(err, models.ErrValidation):
					writeError(w, http.StatusUnauthorized, err.Error(), models.KindUnauthorized)
				default:
					logger.Error("provision account", "account_id", p.AccountID, "error", err)
					writeError(w, http.StatusInternalServerError, "internal error", models.KindInternal)
				}
				return
			}
			p.Role = acc.Role
			noteAccount(r.Context(), p.AccountID)

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole rejects principals whose role is not in roles.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromCtx(r.Context())
			if p == nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated", models.KindUnauthorized)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "role "+string(p.Role)+" may not call this endpoint", models.KindUnauthorized)
		})
	}
}

// PrincipalFromCtx returns the authenticated principal or nil.
func PrincipalFromCtx(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(ctxPrincipalKey).(*auth.Principal)
	return p
}

// WithPrincipal returns a context carrying the given principal.
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": kind})
}
