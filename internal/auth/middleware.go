package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const tokenContextKey contextKey = "auth.token"

// Require wraps a handler with token authentication plus an authorization
// check for one object/action pair. With auth disabled it is a no-op.
func (s *Service) Require(object, action string, next http.HandlerFunc) http.HandlerFunc {
	if !s.enabled {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		plain := bearerToken(r)
		if plain == "" {
			unauthorized(w, "missing bearer token")
			return
		}

		token, err := s.Authenticate(r.Context(), plain)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				unauthorized(w, "token expired")
				return
			}
			unauthorized(w, "invalid token")
			return
		}

		if !s.Authorize(token.Role, object, action) {
			forbidden(w, token.Role, object, action)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), tokenContextKey, token)))
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func forbidden(w http.ResponseWriter, role, object, action string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "role " + role + " may not " + action + " " + object,
	})
}
