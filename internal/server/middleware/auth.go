// Package middleware provides HTTP middleware for the REST API.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/virtforge/placementd/internal/config"
)

// ContextKey is the type for context keys.
type ContextKey string

// SubjectKey is the context key for the authenticated token subject.
const SubjectKey ContextKey = "subject"

// Claims represents the JWT claims accepted by the API.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// Auth validates HS256 bearer tokens on API requests. When authentication
// is disabled in the configuration the middleware passes everything through.
type Auth struct {
	enabled bool
	secret  []byte
	logger  *zap.Logger
}

// NewAuth creates the authentication middleware.
func NewAuth(cfg config.AuthConfig, logger *zap.Logger) *Auth {
	return &Auth{
		enabled: cfg.Enabled,
		secret:  []byte(cfg.JWTSecret),
		logger:  logger.With(zap.String("middleware", "auth")),
	}
}

// Handler wraps an HTTP handler with bearer token validation.
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			a.unauthorized(w, "missing authorization header")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			a.unauthorized(w, "invalid authorization format, expected 'Bearer <token>'")
			return
		}

		claims, err := a.verify(tokenString)
		if err != nil {
			a.logger.Debug("Token verification failed", zap.Error(err))
			a.unauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), SubjectKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

func (a *Auth) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    "unauthenticated",
		"message": message,
	})
}

func isPublicPath(path string) bool {
	switch path {
	case "/health", "/ready", "/live":
		return true
	}
	return false
}
