package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/database/models"
)

type contextKey string

const (
	PrincipalKey contextKey = "principal"
	UserEmailKey contextKey = "user_email"
	// TokenSourceKey records whether the JWT came from the session cookie.
	TokenSourceKey contextKey = "token_source"
)

const TokenCookie = "token"

func Auth(tokens auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			fromCookie := false

			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}

			if token == "" {
				if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
					token = cookie.Value
					fromCookie = true
				}
			}

			if token == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			principal := claims.Principal()
			if !principal.Authenticated() {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, PrincipalKey, principal)
			ctx = context.WithValue(ctx, UserEmailKey, claims.Email)
			ctx = context.WithValue(ctx, TokenSourceKey, fromCookie)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal returns the zero Principal outside Auth.
func GetPrincipal(ctx context.Context) auth.Principal {
	if p, ok := ctx.Value(PrincipalKey).(auth.Principal); ok {
		return p
	}
	return auth.Principal{}
}

func GetUserID(ctx context.Context) uuid.UUID {
	return GetPrincipal(ctx).UserID
}

func GetUserEmail(ctx context.Context) string {
	if email, ok := ctx.Value(UserEmailKey).(string); ok {
		return email
	}
	return ""
}

func authenticatedByCookie(ctx context.Context) bool {
	fromCookie, _ := ctx.Value(TokenSourceKey).(bool)
	return fromCookie
}

// RequireRole middleware ensures user has specific role
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userRole := GetPrincipal(r.Context()).Role

			for _, role := range roles {
				if userRole == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, http.StatusForbidden, "forbidden")
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
