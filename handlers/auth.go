// Package handlers holds the HTTP handlers. Each handler is thin:
// parse the request, call one service, write the envelope.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
)

// contextKey keeps request context keys out of other packages' namespace.
type contextKey string

// UserContextKey carries the authenticated *models.User. Set by
// middleware.AuthMiddleware.
const UserContextKey contextKey = "user"

// ServerIDContextKey carries the int64 {serverId} once the policy
// middleware has admitted the caller.
const ServerIDContextKey contextKey = "server_id"

// userFrom writes a 401 and returns false when no user is attached.
func userFrom(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return nil, false
	}
	return user, true
}

// serverIDFrom prefers the id stored by the policy middleware and falls
// back to the path.
func serverIDFrom(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if id, ok := r.Context().Value(ServerIDContextKey).(int64); ok {
		return id, true
	}
	return pathID(w, r, "serverId")
}

// pathID parses a positive int64 path value.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// AuthHandler serves the caller's own profile.
type AuthHandler struct{}

// NewAuthHandler is the constructor.
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// Me godoc
// GET /api/users/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(w, r)
	if !ok {
		return
	}
	pkg.JSON(w, http.StatusOK, user)
}
