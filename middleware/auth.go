package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"rentscore/models"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	emailKey  contextKey = "email"
	roleKey   contextKey = "role"
)

// Identity is the caller as asserted by the identity service token
type Identity struct {
	UserID uint
	Email  string
	Role   models.UserRole
}

// AuthMiddleware checks the HS256 bearer token issued by the identity service
// and puts the caller's identity in the request context
func AuthMiddleware(jwtKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				writeJSONError(w, http.StatusUnauthorized, "Authorization header is required")
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return jwtKey, nil
			})
			if err != nil || !token.Valid {
				writeJSONError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "Invalid token claims")
				return
			}

			userID, ok := claims["user_id"].(float64)
			if !ok || userID <= 0 {
				writeJSONError(w, http.StatusUnauthorized, "Invalid user_id in token")
				return
			}
			email, _ := claims["email"].(string)
			role := models.UserRoleTenant
			if raw, ok := claims["role"].(string); ok && raw != "" {
				role = models.UserRole(strings.ToUpper(raw))
			}

			ctx := WithIdentity(r.Context(), Identity{UserID: uint(userID), Email: email, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose role is not listed
func RequireRole(roles ...models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := GetUserFromContext(r)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			for _, role := range roles {
				if identity.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSONError(w, http.StatusForbidden, "Access denied")
		})
	}
}

// GetUserFromContext returns the identity put there by AuthMiddleware
func GetUserFromContext(r *http.Request) (Identity, error) {
	userID, ok := r.Context().Value(userIDKey).(uint)
	if !ok {
		return Identity{}, fmt.Errorf("user_id not found in context")
	}
	email, _ := r.Context().Value(emailKey).(string)
	role, _ := r.Context().Value(roleKey).(models.UserRole)
	return Identity{UserID: userID, Email: email, Role: role}, nil
}

// WithIdentity returns a copy of ctx carrying identity
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	ctx = context.WithValue(ctx, userIDKey, identity.UserID)
	ctx = context.WithValue(ctx, emailKey, identity.Email)
	return context.WithValue(ctx, roleKey, identity.Role)
}
