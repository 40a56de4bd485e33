package api

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erazemk/porabnik/internal/auth"
	"github.com/erazemk/porabnik/internal/inventory"
	"github.com/erazemk/porabnik/internal/model"
	"github.com/erazemk/porabnik/internal/store"
)

type contextKey string

const claimsKey contextKey = "claims"

// AuthMiddleware validates JWT from Authorization header and adds claims to
// context. The account is reloaded on every request: deleted users are
// rejected and the role in the claims is replaced by the current one.
func AuthMiddleware(db *sql.DB, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				jsonError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}

			tokenStr := strings.TrimPrefix(header, "Bearer ")
			claims, err := auth.ValidateToken(secret, tokenStr)
			if err != nil {
				jsonError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			user, err := store.GetUser(r.Context(), db, claims.UserID)
			if err != nil {
				jsonError(w, http.StatusInternalServerError, "failed to load account")
				return
			}
			if user == nil || user.DeletedAt != nil {
				jsonError(w, http.StatusUnauthorized, "account no longer exists")
				return
			}
			claims.Role = user.Role

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns middleware that checks if the user has at least the given role.
func RequireRole(minimum string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				jsonError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if !model.RoleAtLeast(claims.Role, minimum) {
				jsonError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaims retrieves the JWT claims from the context.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

func principal(r *http.Request) inventory.Principal {
	claims := GetClaims(r.Context())
	if claims == nil {
		return inventory.Principal{}
	}
	return inventory.Principal{UserID: claims.UserID, Role: claims.Role}
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// LoggingMiddleware logs HTTP requests with method, path, status, and duration.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.RequestURI()),
				zap.Int("status", rec.status),
				zap.Int("bytes", rec.bytes),
				zap.Duration("duration", time.Since(start)),
			}
			if rec.status >= http.StatusInternalServerError {
				logger.Warn("request", fields...)
				return
			}
			logger.Info("request", fields...)
		})
	}
}
