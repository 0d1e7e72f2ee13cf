package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is an unexported type for context keys in this package, so
// only this package can read or write the userID value.
type contextKey string

const userIDKey contextKey = "userID"

// ClipAuthenticator validates a bookmarklet clip credential and returns the
// userID it belongs to. Implemented by the auth service.
type ClipAuthenticator interface {
	ValidateClipToken(ctx context.Context, userID, secret string) (string, error)
}

// RequireAuth enforces authentication on protected routes. Two credentials
// are accepted:
//
//   - the "token" HttpOnly cookie with a session JWT (browser sessions)
//   - an "Authorization: Clip <userID>:<secret>" header (the bookmarklet,
//     which posts cross-origin and cannot carry the session cookie)
//
// On success the userID lands in the request context; otherwise the chain
// stops with 401.
func RequireAuth(tokens *TokenService, clips ClipAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens, clips)
			if err != nil {
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth extracts the user identity if a valid credential is present
// but never blocks the request. Handlers treat a missing userID as an
// anonymous request.
func OptionalAuth(tokens *TokenService, clips ClipAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := extractUserID(r, tokens, clips); err == nil && userID != "" {
				ctx := context.WithValue(r.Context(), userIDKey, userID)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext retrieves the authenticated user's ID from the request
// context. Returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// extractUserID tries the clip header first, then the session cookie.
func extractUserID(r *http.Request, tokens *TokenService, clips ClipAuthenticator) (string, error) {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Clip ") && clips != nil {
		cred := strings.TrimPrefix(header, "Clip ")
		userID, secret, ok := strings.Cut(cred, ":")
		if !ok {
			return "", http.ErrNoCookie
		}
		return clips.ValidateClipToken(r.Context(), userID, secret)
	}

	cookie, err := r.Cookie("token")
	if err != nil {
		return "", err
	}
	return tokens.Validate(cookie.Value)
}
