package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/Abhisheksantra28/Streamfinity/internal/models"
)

type contextKey string

const userContextKey contextKey = "authenticatedUser"

// ContextWithUser stores the authenticated user in the provided context.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user from context if present.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// ExtractAccessToken pulls the access token from the Authorization header or
// the accessToken cookie, preferring the header.
func ExtractAccessToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie(accessCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// AuthenticateRequest validates the access token on the request and returns
// the user it identifies.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.User, error) {
	token := ExtractAccessToken(r)
	if token == "" {
		return models.User{}, UnauthorizedError("missing access token")
	}
	userID, err := h.Tokens.VerifyAccessToken(token)
	if err != nil {
		return models.User{}, UnauthorizedError("invalid or expired access token")
	}
	user, exists := h.Store.GetUser(userID)
	if !exists {
		return models.User{}, UnauthorizedError("account not found")
	}
	return user, nil
}

func (h *Handler) requireAuthenticatedUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, UnauthorizedError("authentication required"))
		return models.User{}, false
	}
	return user, true
}
