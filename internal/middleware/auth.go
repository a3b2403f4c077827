package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/auth"
	"github.com/omega-realm/economy/internal/moderation"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// UserContextKey is the key for storing user claims in request context
	UserContextKey contextKey = "user"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteError writes a JSON error body with the given status
func WriteError(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

// TokenValidator verifies bearer tokens
type TokenValidator interface {
	ValidateToken(token string) (*auth.CustomClaims, error)
}

// BanChecker reports an account's moderation state
type BanChecker interface {
	IsBanned(ctx context.Context, accountID uuid.UUID) (moderation.Status, error)
}

// RequireAuth validates the bearer token and stores its claims in the
// request context.
func RequireAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteError(w, http.StatusUnauthorized, ErrorResponse{Error: "Missing authorization header", Code: "unauthorized"})
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				WriteError(w, http.StatusUnauthorized, ErrorResponse{
					Error: "Invalid authorization header format. Use: Bearer <token>",
					Code:  "unauthorized",
				})
				return
			}

			claims, err := tokens.ValidateToken(parts[1])
			if err != nil {
				WriteError(w, http.StatusUnauthorized, ErrorResponse{Error: "Invalid or expired token", Code: "unauthorized"})
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers whose token lacks the admin claim. It must run
// after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetUserClaims(r)
		if !ok {
			WriteError(w, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Code: "unauthorized"})
			return
		}
		if !claims.Admin {
			WriteError(w, http.StatusForbidden, ErrorResponse{Error: "Admin access required", Code: "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RejectBanned turns away authenticated callers whose account is banned.
// It must run after RequireAuth.
func RejectBanned(bans BanChecker, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserClaims(r)
			if !ok {
				WriteError(w, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Code: "unauthorized"})
				return
			}

			status, err := bans.IsBanned(r.Context(), claims.AccountID)
			if err != nil {
				log.WithError(err).WithField("account_id", claims.AccountID).Error("ban check failed")
				WriteError(w, http.StatusServiceUnavailable, ErrorResponse{
					Error:     "service temporarily unavailable",
					Code:      "unavailable",
					Retryable: true,
				})
				return
			}
			if status.Banned {
				msg := "Account is banned"
				if status.BanReason != "" {
					msg += ": " + status.BanReason
				}
				WriteError(w, http.StatusForbidden, ErrorResponse{Error: msg, Code: "account_banned"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserClaims extracts user claims from request context
func GetUserClaims(r *http.Request) (*auth.CustomClaims, bool) {
	claims, ok := r.Context().Value(UserContextKey).(*auth.CustomClaims)
	return claims, ok
}
