package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	userIDKey      contextKey = "userID"
	adminClaimsKey contextKey = "adminClaims"
)

// bearerToken reads the Authorization header. Browsers cannot set headers
// on websocket upgrades, so those may pass access_token in the query.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// parseBearer verifies an HS256 bearer token.
func parseBearer(r *http.Request, secret string) (*jwt.RegisteredClaims, bool) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, false
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, false
	}
	return claims, true
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// UserJWT authenticates chat users. The token subject becomes the user id
// for every downstream ownership check.
func UserJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				unauthorized(w, "user auth not configured")
				return
			}
			claims, ok := parseBearer(r, secret)
			if !ok {
				unauthorized(w, "invalid token")
				return
			}
			if strings.TrimSpace(claims.Subject) == "" {
				unauthorized(w, "token has no subject")
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext returns the authenticated user id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithUserID stores a user id the way UserJWT does.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// AdminJWT guards operator endpoints with a separate signing secret.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				unauthorized(w, "admin auth disabled")
				return
			}
			claims, ok := parseBearer(r, secret)
			if !ok {
				unauthorized(w, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), adminClaimsKey, *claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func AdminClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey).(jwt.RegisteredClaims)
	return claims, ok
}
