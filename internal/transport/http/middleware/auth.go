package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
	"github.com/vedran77/parley/pkg/apperr"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	UserKey   contextKey = "user"
)

// Authenticator resolves the user behind a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// Auth rejects the request with 401 unless it carries a valid bearer token
// for an existing user, and stores that user on the request context.
func Auth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := BearerToken(r)
			if !ok {
				unauthorized(w, "Missing or invalid token")
				return
			}

			user, err := authn.Authenticate(r.Context(), tokenStr)
			if err != nil {
				var appErr *apperr.Error
				if errors.As(err, &appErr) && appErr.Code == apperr.CodeUnauthenticated {
					unauthorized(w, appErr.Message)
					return
				}
				log.Error("authenticate", "err", err)
				writeError(w, http.StatusInternalServerError, apperr.CodeInternal, "Something went wrong")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// BearerToken extracts the token from the Authorization header, falling back
// to the access_token query parameter browsers use for WebSocket upgrades.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
		return token, true
	}
	if header == "" {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, true
		}
	}
	return "", false
}

func WithUser(ctx context.Context, user *domain.User) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, user.ID)
	return context.WithValue(ctx, UserKey, user)
}

// GetUserID extracts user ID from request context
func GetUserID(ctx context.Context) uuid.UUID {
	return ctx.Value(UserIDKey).(uuid.UUID)
}

// GetUser returns the authenticated user, or nil outside Auth.
func GetUser(ctx context.Context) *domain.User {
	u, _ := ctx.Value(UserKey).(*domain.User)
	return u
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, apperr.CodeUnauthenticated, message)
}

func writeError(w http.ResponseWriter, status int, code apperr.Code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    string(code),
			"message": message,
		},
	})
}
